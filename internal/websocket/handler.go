package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"classpulse/pkg/interfaces"
	"classpulse/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for development. Production deployments should
		// implement stricter origin checking.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Subscriber is the room membership surface the handler hands connections to.
type Subscriber interface {
	Subscribe(ctx context.Context, conn *Connection) error
	Unsubscribe(conn *Connection)
	GetLiveStats(ctx context.Context, sessionID string) (*types.LiveStats, error)
}

// clientRequest is the small command vocabulary clients may send upstream.
// Everything else on the socket is server-to-client events.
type clientRequest struct {
	Action string `json:"action"`
}

// Handler upgrades HTTP requests to WebSocket connections and manages their
// lifecycle in a session room.
type Handler struct {
	sessions interfaces.SessionStore
	hub      Subscriber
}

// NewHandler creates a WebSocket handler.
func NewHandler(sessions interfaces.SessionStore, hub Subscriber) *Handler {
	return &Handler{
		sessions: sessions,
		hub:      hub,
	}
}

// HandleWebSocket validates the request, upgrades it, and subscribes the
// connection to its session room. Validation happens before the upgrade so
// bad requests get proper HTTP status codes.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	role := r.URL.Query().Get("role")
	sessionID := r.URL.Query().Get("session_id")

	if clientID == "" || role == "" || sessionID == "" {
		http.Error(w, "Missing required query parameters: client_id, role, session_id", http.StatusBadRequest)
		return
	}

	if !types.IsValidActorID(clientID) {
		http.Error(w, "Invalid client_id format", http.StatusBadRequest)
		return
	}

	if !types.IsValidRole(role) {
		http.Error(w, "Invalid role: must be 'professor' or 'student'", http.StatusBadRequest)
		return
	}

	if _, err := h.sessions.GetSession(r.Context(), sessionID); err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn)
	wsConn.SetIdentity(clientID, role, sessionID)

	if err := h.hub.Subscribe(context.Background(), wsConn); err != nil {
		log.Printf("Failed to subscribe connection: %v", err)
		_ = wsConn.Close()
		return
	}

	go h.handleConnection(wsConn)
}

// handleConnection runs the read loop with heartbeat monitoring. A 60-second
// read deadline refreshed by pongs, pings every 30 seconds.
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		h.hub.Unsubscribe(conn)
		_ = conn.Close()
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: client=%s err=%v", conn.GetClientID(), err)
			}
			break
		}

		if messageType == websocket.TextMessage {
			h.handleClientRequest(conn, data)
		}
	}
}

// handleClientRequest dispatches a client command. Replies go to the
// requesting connection only, never to the whole room.
func (h *Handler) handleClientRequest(conn *Connection, data []byte) {
	var req clientRequest
	if err := json.Unmarshal(data, &req); err != nil {
		h.writeError(conn, "invalid request")
		return
	}

	switch req.Action {
	case "get_live_stats":
		stats, err := h.hub.GetLiveStats(context.Background(), conn.GetSessionID())
		if err != nil {
			log.Printf("Live stats failed: session=%s err=%v", conn.GetSessionID(), err)
			h.writeError(conn, "live stats unavailable")
			return
		}
		reply := map[string]interface{}{
			"type":  "live_stats",
			"stats": stats,
		}
		if err := conn.WriteJSON(reply); err != nil {
			log.Printf("Failed to send live stats: client=%s err=%v", conn.GetClientID(), err)
		}
	default:
		h.writeError(conn, "unknown action")
	}
}

func (h *Handler) writeError(conn *Connection, message string) {
	reply := map[string]interface{}{
		"type":    "error",
		"message": message,
	}
	if err := conn.WriteJSON(reply); err != nil {
		log.Printf("Failed to send error reply: client=%s err=%v", conn.GetClientID(), err)
	}
}
