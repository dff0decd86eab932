package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"classpulse/internal/database"
	"classpulse/internal/grades"
	"classpulse/internal/poll"
	"classpulse/internal/session"
	dbconfig "classpulse/pkg/database"
	"classpulse/pkg/types"
)

// Mock registry for testing
type mockRegistry struct{}

func (m *mockRegistry) GetStats() map[string]int {
	return map[string]int{"total_connections": 0, "active_sessions": 0}
}

// Mock publisher for testing
type mockPublisher struct{}

func (m *mockPublisher) Publish(sessionID string, event *types.Event) {}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	config := dbconfig.DefaultConfig()
	config.DatabasePath = filepath.Join(t.TempDir(), "test.db")
	config.MigrationsPath = "../../migrations"

	manager, err := database.NewManager(config)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(func() { manager.Close() })

	migrations := dbconfig.NewMigrationManager(manager.GetDB(), config.MigrationsPath)
	if err := migrations.ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}

	aggregator := grades.NewAggregator(manager)
	authorizer := session.NewOwnerAuthorizer(manager)
	locks := session.NewLocks()
	publisher := &mockPublisher{}

	sessionEngine := session.NewEngine(manager, manager, authorizer, publisher, aggregator, locks)
	pollEngine := poll.NewEngine(manager, authorizer, publisher, locks)

	return NewServer(sessionEngine, pollEngine, aggregator, &mockRegistry{}, manager)
}

func doJSON(t *testing.T, server *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, req)
	return recorder
}

func decode(t *testing.T, recorder *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(recorder.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func createTestSession(t *testing.T, server *Server, code string) *types.Session {
	t.Helper()
	recorder := doJSON(t, server, http.MethodPost, "/api/sessions", CreateSessionRequest{
		Name: "Test Session", Code: code, ProfessorID: "prof1",
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("create session: expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var resp SessionResponse
	decode(t, recorder, &resp)
	return resp.Session
}

func startTestSession(t *testing.T, server *Server, sessionID string) {
	t.Helper()
	recorder := doJSON(t, server, http.MethodPost, "/api/sessions/"+sessionID+"/start", ActorRequest{ProfessorID: "prof1"})
	if recorder.Code != http.StatusOK {
		t.Fatalf("start session: expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestServer_CreateSession(t *testing.T) {
	server := newTestServer(t)

	created := createTestSession(t, server, "GO101")
	if created.ID == "" || created.Code != "GO101" || created.Active {
		t.Errorf("Unexpected session: %+v", created)
	}

	recorder := doJSON(t, server, http.MethodGet, "/api/sessions/"+created.ID, nil)
	if recorder.Code != http.StatusOK {
		t.Errorf("Expected 200 for get, got %d", recorder.Code)
	}
}

func TestServer_CreateSessionValidation(t *testing.T) {
	server := newTestServer(t)

	recorder := doJSON(t, server, http.MethodPost, "/api/sessions", CreateSessionRequest{
		Name: "", Code: "GO101", ProfessorID: "prof1",
	})
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty name, got %d", recorder.Code)
	}
}

func TestServer_DuplicateActiveCode(t *testing.T) {
	server := newTestServer(t)

	first := createTestSession(t, server, "GO101")
	startTestSession(t, server, first.ID)

	recorder := doJSON(t, server, http.MethodPost, "/api/sessions", CreateSessionRequest{
		Name: "Other", Code: "GO101", ProfessorID: "prof1",
	})
	if recorder.Code != http.StatusConflict {
		t.Errorf("Expected 409 for duplicate active code, got %d", recorder.Code)
	}
}

func TestServer_StartStopLifecycle(t *testing.T) {
	server := newTestServer(t)
	created := createTestSession(t, server, "GO101")

	startTestSession(t, server, created.ID)

	// Second start conflicts.
	recorder := doJSON(t, server, http.MethodPost, "/api/sessions/"+created.ID+"/start", ActorRequest{ProfessorID: "prof1"})
	if recorder.Code != http.StatusConflict {
		t.Errorf("Expected 409 for double start, got %d", recorder.Code)
	}

	// Non-owner cannot stop.
	recorder = doJSON(t, server, http.MethodPost, "/api/sessions/"+created.ID+"/stop", ActorRequest{ProfessorID: "prof2"})
	if recorder.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for non-owner stop, got %d", recorder.Code)
	}

	recorder = doJSON(t, server, http.MethodPost, "/api/sessions/"+created.ID+"/stop", ActorRequest{ProfessorID: "prof1"})
	if recorder.Code != http.StatusOK {
		t.Errorf("Expected 200 for stop, got %d: %s", recorder.Code, recorder.Body.String())
	}

	// Second stop conflicts.
	recorder = doJSON(t, server, http.MethodPost, "/api/sessions/"+created.ID+"/stop", ActorRequest{ProfessorID: "prof1"})
	if recorder.Code != http.StatusConflict {
		t.Errorf("Expected 409 for double stop, got %d", recorder.Code)
	}
}

func TestServer_JoinAndInteract(t *testing.T) {
	server := newTestServer(t)
	created := createTestSession(t, server, "GO101")

	// Join before start conflicts.
	recorder := doJSON(t, server, http.MethodPost, "/api/sessions/"+created.ID+"/join", JoinRequest{StudentID: "student1"})
	if recorder.Code != http.StatusConflict {
		t.Errorf("Expected 409 for join before start, got %d", recorder.Code)
	}

	startTestSession(t, server, created.ID)

	recorder = doJSON(t, server, http.MethodPost, "/api/sessions/"+created.ID+"/join", JoinRequest{StudentID: "student1"})
	if recorder.Code != http.StatusOK {
		t.Errorf("Expected 200 for join, got %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = doJSON(t, server, http.MethodPost, "/api/sessions/"+created.ID+"/interactions", InteractionRequest{
		StudentID: "student1", Kind: "hand_raise",
	})
	if recorder.Code != http.StatusOK {
		t.Errorf("Expected 200 for interaction, got %d: %s", recorder.Code, recorder.Body.String())
	}

	// Unenrolled student is rejected.
	recorder = doJSON(t, server, http.MethodPost, "/api/sessions/"+created.ID+"/interactions", InteractionRequest{
		StudentID: "stranger", Kind: "hand_raise",
	})
	if recorder.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for unenrolled student, got %d", recorder.Code)
	}

	// Unknown interaction kind is rejected.
	recorder = doJSON(t, server, http.MethodPost, "/api/sessions/"+created.ID+"/interactions", InteractionRequest{
		StudentID: "student1", Kind: "wave",
	})
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown kind, got %d", recorder.Code)
	}
}

func TestServer_PollFlow(t *testing.T) {
	server := newTestServer(t)
	created := createTestSession(t, server, "GO101")
	startTestSession(t, server, created.ID)

	correct := 1
	recorder := doJSON(t, server, http.MethodPost, "/api/sessions/"+created.ID+"/polls", OpenPollRequest{
		ProfessorID: "prof1", Question: "What is 2+2?", Options: []string{"3", "4", "5"}, CorrectIndex: &correct,
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("Expected 201 for open poll, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var pollResp PollResponse
	decode(t, recorder, &pollResp)

	recorder = doJSON(t, server, http.MethodGet, "/api/sessions/"+created.ID+"/polls", nil)
	if recorder.Code != http.StatusOK {
		t.Errorf("Expected 200 for get open poll, got %d", recorder.Code)
	}

	recorder = doJSON(t, server, http.MethodPost, "/api/polls/"+pollResp.Poll.ID+"/responses", SubmitResponseRequest{
		StudentID: "student1", OptionIndex: 1,
	})
	if recorder.Code != http.StatusCreated {
		t.Errorf("Expected 201 for response, got %d: %s", recorder.Code, recorder.Body.String())
	}

	// Duplicate response conflicts.
	recorder = doJSON(t, server, http.MethodPost, "/api/polls/"+pollResp.Poll.ID+"/responses", SubmitResponseRequest{
		StudentID: "student1", OptionIndex: 0,
	})
	if recorder.Code != http.StatusConflict {
		t.Errorf("Expected 409 for duplicate response, got %d", recorder.Code)
	}

	// Out-of-range option rejected.
	recorder = doJSON(t, server, http.MethodPost, "/api/polls/"+pollResp.Poll.ID+"/responses", SubmitResponseRequest{
		StudentID: "student2", OptionIndex: 9,
	})
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid option, got %d", recorder.Code)
	}

	// Non-owner cannot close.
	recorder = doJSON(t, server, http.MethodPost, "/api/polls/"+pollResp.Poll.ID+"/close", ActorRequest{ProfessorID: "prof2"})
	if recorder.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for non-owner close, got %d", recorder.Code)
	}

	recorder = doJSON(t, server, http.MethodPost, "/api/polls/"+pollResp.Poll.ID+"/close", ActorRequest{ProfessorID: "prof1"})
	if recorder.Code != http.StatusOK {
		t.Errorf("Expected 200 for close, got %d", recorder.Code)
	}

	// Responses after close conflict.
	recorder = doJSON(t, server, http.MethodPost, "/api/polls/"+pollResp.Poll.ID+"/responses", SubmitResponseRequest{
		StudentID: "student3", OptionIndex: 0,
	})
	if recorder.Code != http.StatusConflict {
		t.Errorf("Expected 409 for response after close, got %d", recorder.Code)
	}
}

func TestServer_Gradebook(t *testing.T) {
	server := newTestServer(t)
	created := createTestSession(t, server, "GO101")
	startTestSession(t, server, created.ID)

	doJSON(t, server, http.MethodPost, "/api/sessions/"+created.ID+"/join", JoinRequest{StudentID: "student1"})
	doJSON(t, server, http.MethodPost, "/api/sessions/"+created.ID+"/join", JoinRequest{StudentID: "student2"})

	recorder := doJSON(t, server, http.MethodGet, "/api/sessions/"+created.ID+"/gradebook", nil)
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without professor_id, got %d", recorder.Code)
	}

	recorder = doJSON(t, server, http.MethodGet, "/api/sessions/"+created.ID+"/gradebook?professor_id=prof2", nil)
	if recorder.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for non-owner, got %d", recorder.Code)
	}

	recorder = doJSON(t, server, http.MethodGet, "/api/sessions/"+created.ID+"/gradebook?professor_id=prof1", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200 for owner, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var gradebook GradebookResponse
	decode(t, recorder, &gradebook)
	if len(gradebook.Students) != 2 {
		t.Errorf("Expected 2 gradebook rows, got %d", len(gradebook.Students))
	}
	// Both students joined today, so attendance is full.
	for _, row := range gradebook.Students {
		if row.Attendance != 100 {
			t.Errorf("Expected attendance 100 for %s, got %f", row.StudentID, row.Attendance)
		}
	}
}

func TestServer_Settings(t *testing.T) {
	server := newTestServer(t)
	created := createTestSession(t, server, "GO101")

	recorder := doJSON(t, server, http.MethodGet, "/api/sessions/"+created.ID+"/settings", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200 for settings, got %d", recorder.Code)
	}
	var settings types.Settings
	decode(t, recorder, &settings)
	if settings.QuietMode {
		t.Error("Expected default quiet_mode false")
	}

	recorder = doJSON(t, server, http.MethodPut, "/api/sessions/"+created.ID+"/settings", UpdateSettingsRequest{
		ProfessorID: "prof1", ShowFirstNameOnly: true, QuietMode: true,
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200 for settings update, got %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = doJSON(t, server, http.MethodGet, "/api/sessions/"+created.ID+"/settings", nil)
	decode(t, recorder, &settings)
	if !settings.ShowFirstNameOnly || !settings.QuietMode {
		t.Errorf("Settings should persist, got %+v", settings)
	}
}

func TestServer_DeleteSession(t *testing.T) {
	server := newTestServer(t)
	created := createTestSession(t, server, "GO101")

	recorder := doJSON(t, server, http.MethodDelete, "/api/sessions/"+created.ID, nil)
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without professor_id, got %d", recorder.Code)
	}

	recorder = doJSON(t, server, http.MethodDelete, "/api/sessions/"+created.ID+"?professor_id=prof1", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200 for delete, got %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = doJSON(t, server, http.MethodGet, "/api/sessions/"+created.ID, nil)
	if recorder.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", recorder.Code)
	}
}

func TestServer_ListSessions(t *testing.T) {
	server := newTestServer(t)

	for i := 0; i < 2; i++ {
		created := createTestSession(t, server, fmt.Sprintf("C%d", i))
		startTestSession(t, server, created.ID)
	}
	createTestSession(t, server, "INACTIVE")

	recorder := doJSON(t, server, http.MethodGet, "/api/sessions", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200 for list, got %d", recorder.Code)
	}
	var list ListSessionsResponse
	decode(t, recorder, &list)
	if len(list.Sessions) != 2 {
		t.Errorf("Expected 2 active sessions, got %d", len(list.Sessions))
	}
}

func TestServer_Health(t *testing.T) {
	server := newTestServer(t)

	recorder := doJSON(t, server, http.MethodGet, "/health", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200 for health, got %d", recorder.Code)
	}
	var health HealthResponse
	decode(t, recorder, &health)
	if health.Status != "healthy" {
		t.Errorf("Expected healthy status, got %s", health.Status)
	}
}
