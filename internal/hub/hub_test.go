package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"

	"classpulse/internal/websocket"
	"classpulse/pkg/types"
)

// Mock session store for testing
type mockSessionStore struct {
	sessions map[string]*types.Session
}

func (m *mockSessionStore) CreateSession(ctx context.Context, s *types.Session) error {
	m.sessions[s.ID] = s
	return nil
}

func (m *mockSessionStore) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	s, exists := m.sessions[sessionID]
	if !exists {
		return nil, types.ErrNotFound
	}
	return s, nil
}

func (m *mockSessionStore) SetSessionActive(ctx context.Context, sessionID string, active bool) error {
	return nil // Not used in hub tests
}

func (m *mockSessionStore) ListActiveSessions(ctx context.Context) ([]*types.Session, error) {
	return nil, nil // Not used in hub tests
}

func (m *mockSessionStore) DeleteSession(ctx context.Context, sessionID string) error {
	return nil // Not used in hub tests
}

// Mock stats source for testing
type mockStatsSource struct {
	stats *types.LiveStats
}

func (m *mockStatsSource) LiveStats(ctx context.Context, sessionID string) (*types.LiveStats, error) {
	return m.stats, nil
}

var testUpgrader = gws.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// roomServer upgrades incoming test connections and subscribes them to the
// hub using identity taken from query parameters.
func roomServer(t *testing.T, h *Hub) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		conn := websocket.NewConnection(raw)
		conn.SetIdentity(
			r.URL.Query().Get("client_id"),
			r.URL.Query().Get("role"),
			r.URL.Query().Get("session_id"),
		)
		if err := h.Subscribe(context.Background(), conn); err != nil {
			t.Logf("subscribe rejected: %v", err)
			conn.Close()
		}
	}))
}

func dial(t *testing.T, server *httptest.Server, sessionID, clientID, role string) *gws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") +
		"/?session_id=" + sessionID + "&client_id=" + clientID + "&role=" + role
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return conn
}

func readEvent(t *testing.T, conn *gws.Conn) *types.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var event types.Event
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	return &event
}

func newTestHub() (*Hub, *websocket.Registry, *mockSessionStore) {
	registry := websocket.NewRegistry()
	store := &mockSessionStore{sessions: map[string]*types.Session{
		"s1": {ID: "s1", Name: "Test", Active: true},
	}}
	h := NewHub(registry, store, &mockStatsSource{stats: &types.LiveStats{SessionID: "s1"}})
	return h, registry, store
}

func TestHub_PublishReachesWholeRoom(t *testing.T) {
	h, registry, _ := newTestHub()
	server := roomServer(t, h)
	defer server.Close()

	professor := dial(t, server, "s1", "prof1", types.RoleProfessor)
	defer professor.Close()
	student := dial(t, server, "s1", "student1", types.RoleStudent)
	defer student.Close()

	waitForConnections(t, registry, 2)

	h.Publish("s1", types.NewEvent(types.EventSessionStarted, "s1",
		types.SessionStartedPayload{Code: "GO101"}))

	for _, conn := range []*gws.Conn{professor, student} {
		event := readEvent(t, conn)
		if event.Name != types.EventSessionStarted {
			t.Errorf("Expected session_started, got %s", event.Name)
		}
		if event.SessionID != "s1" {
			t.Errorf("Expected session s1, got %s", event.SessionID)
		}
	}
}

func TestHub_PublishDoesNotCrossRooms(t *testing.T) {
	h, registry, store := newTestHub()
	store.sessions["s2"] = &types.Session{ID: "s2", Name: "Other"}
	server := roomServer(t, h)
	defer server.Close()

	inRoom := dial(t, server, "s1", "student1", types.RoleStudent)
	defer inRoom.Close()
	otherRoom := dial(t, server, "s2", "student2", types.RoleStudent)
	defer otherRoom.Close()

	waitForConnections(t, registry, 2)

	h.Publish("s1", types.NewEvent(types.EventSessionStarted, "s1",
		types.SessionStartedPayload{Code: "GO101"}))

	readEvent(t, inRoom)

	otherRoom.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := otherRoom.ReadMessage(); err == nil {
		t.Error("Subscriber of another session should not receive the event")
	}
}

func TestHub_AnonymousPollResponseRedaction(t *testing.T) {
	h, registry, _ := newTestHub()
	server := roomServer(t, h)
	defer server.Close()

	professor := dial(t, server, "s1", "prof1", types.RoleProfessor)
	defer professor.Close()
	student := dial(t, server, "s1", "student1", types.RoleStudent)
	defer student.Close()

	waitForConnections(t, registry, 2)

	h.Publish("s1", types.NewEvent(types.EventPollResponseReceived, "s1",
		types.PollResponseReceivedPayload{
			PollID:      "p1",
			StudentID:   "student9",
			OptionIndex: 1,
			Correct:     true,
			Anonymous:   true,
		}))

	profEvent := readEvent(t, professor)
	profPayload := decodeResponsePayload(t, profEvent)
	if profPayload.StudentID != "student9" {
		t.Errorf("Professor should see responder identity, got '%s'", profPayload.StudentID)
	}

	studentEvent := readEvent(t, student)
	studentPayload := decodeResponsePayload(t, studentEvent)
	if studentPayload.StudentID != "" {
		t.Errorf("Student should not see responder identity, got '%s'", studentPayload.StudentID)
	}
	if studentPayload.OptionIndex != 1 || !studentPayload.Correct {
		t.Error("Redaction should only strip identity, not the answer detail")
	}
}

func TestHub_NamedPollResponseNotRedacted(t *testing.T) {
	h, registry, _ := newTestHub()
	server := roomServer(t, h)
	defer server.Close()

	student := dial(t, server, "s1", "student1", types.RoleStudent)
	defer student.Close()

	waitForConnections(t, registry, 1)

	h.Publish("s1", types.NewEvent(types.EventPollResponseReceived, "s1",
		types.PollResponseReceivedPayload{
			PollID:    "p1",
			StudentID: "student9",
			Anonymous: false,
		}))

	event := readEvent(t, student)
	payload := decodeResponsePayload(t, event)
	if payload.StudentID != "student9" {
		t.Errorf("Named poll responses should carry identity, got '%s'", payload.StudentID)
	}
}

func TestHub_SubscribeUnknownSession(t *testing.T) {
	h, registry, _ := newTestHub()
	server := roomServer(t, h)
	defer server.Close()

	conn := dial(t, server, "no-such-session", "student1", types.RoleStudent)
	defer conn.Close()

	// Subscription is rejected server-side, so the registry stays empty.
	time.Sleep(100 * time.Millisecond)
	if stats := registry.GetStats(); stats["total_connections"] != 0 {
		t.Errorf("Expected 0 registered connections, got %d", stats["total_connections"])
	}
}

func TestHub_UnsubscribeIdempotent(t *testing.T) {
	h, registry, _ := newTestHub()
	server := roomServer(t, h)
	defer server.Close()

	conn := dial(t, server, "s1", "student1", types.RoleStudent)
	defer conn.Close()

	waitForConnections(t, registry, 1)

	registered, exists := registry.GetClientConnection("student1")
	if !exists {
		t.Fatal("Connection should be registered")
	}

	h.Unsubscribe(registered)
	h.Unsubscribe(registered)

	if stats := registry.GetStats(); stats["total_connections"] != 0 {
		t.Errorf("Expected 0 connections after unsubscribe, got %d", stats["total_connections"])
	}
}

func TestHub_GetLiveStats(t *testing.T) {
	h, _, _ := newTestHub()

	stats, err := h.GetLiveStats(context.Background(), "s1")
	if err != nil {
		t.Fatalf("GetLiveStats failed: %v", err)
	}
	if stats.SessionID != "s1" {
		t.Errorf("Expected stats for s1, got %s", stats.SessionID)
	}
}

func decodeResponsePayload(t *testing.T, event *types.Event) *types.PollResponseReceivedPayload {
	t.Helper()
	raw, err := json.Marshal(event.Payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	var payload types.PollResponseReceivedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	return &payload
}

func waitForConnections(t *testing.T, registry *websocket.Registry, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if registry.GetStats()["total_connections"] >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %d registered connections", want)
}

func TestHub_ReconnectReplacesConnection(t *testing.T) {
	h, registry, _ := newTestHub()
	server := roomServer(t, h)
	defer server.Close()

	old := dial(t, server, "s1", "student1", types.RoleStudent)
	waitForConnections(t, registry, 1)

	replacement := dial(t, server, "s1", "student1", types.RoleStudent)
	defer replacement.Close()

	// The registry closes the replaced connection; drain it until the
	// close surfaces as a read error.
	old.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := old.ReadMessage(); err != nil {
			break
		}
	}
	old.Close()

	if stats := registry.GetStats(); stats["total_connections"] != 1 {
		t.Errorf("Expected 1 connection after reconnect, got %d", stats["total_connections"])
	}

	h.Publish("s1", types.NewEvent(types.EventSessionStarted, "s1",
		types.SessionStartedPayload{Code: "GO101"}))

	event := readEvent(t, replacement)
	if event.Name != types.EventSessionStarted {
		t.Errorf("Expected session_started on replacement connection, got %s", event.Name)
	}
}
