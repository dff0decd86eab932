package hub

import (
	"context"
	"fmt"
	"log"

	"classpulse/internal/websocket"
	"classpulse/pkg/interfaces"
	"classpulse/pkg/types"
)

// StatsSource computes the live snapshot for a session room.
type StatsSource interface {
	LiveStats(ctx context.Context, sessionID string) (*types.LiveStats, error)
}

// Hub fans events out to the WebSocket connections subscribed to a session
// room. Delivery is best effort: a slow or broken subscriber is logged and
// skipped, never allowed to stall the room or fail a mutation.
type Hub struct {
	registry *websocket.Registry
	sessions interfaces.SessionStore
	stats    StatsSource
}

// NewHub creates a hub over the given connection registry.
func NewHub(registry *websocket.Registry, sessions interfaces.SessionStore, stats StatsSource) *Hub {
	return &Hub{
		registry: registry,
		sessions: sessions,
		stats:    stats,
	}
}

// Subscribe places an identified connection into its session's room. The
// session must exist; it does not have to be active, so professors can watch
// a room before starting the session.
func (h *Hub) Subscribe(ctx context.Context, conn *websocket.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	if _, err := h.sessions.GetSession(ctx, conn.GetSessionID()); err != nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, conn.GetSessionID())
	}

	if err := h.registry.RegisterConnection(conn); err != nil {
		return fmt.Errorf("failed to register connection: %w", err)
	}

	log.Printf("Subscribed: client=%s role=%s session=%s", conn.GetClientID(), conn.GetRole(), conn.GetSessionID())
	return nil
}

// Unsubscribe removes a connection from its room. Safe to call more than
// once for the same connection.
func (h *Hub) Unsubscribe(conn *websocket.Connection) {
	if conn == nil {
		return
	}
	h.registry.UnregisterConnection(conn)
	log.Printf("Unsubscribed: client=%s session=%s", conn.GetClientID(), conn.GetSessionID())
}

// Publish delivers an event to every subscriber of the session's room.
// Responses to anonymous polls go out in two forms: professors receive the
// full payload, everyone else receives a copy with the student identity
// stripped.
func (h *Hub) Publish(sessionID string, event *types.Event) {
	if event == nil {
		return
	}

	if payload, ok := event.Payload.(types.PollResponseReceivedPayload); ok && payload.Anonymous {
		h.deliver(h.registry.GetSessionProfessors(sessionID), event)

		redacted := *event
		redacted.Payload = payload.Redacted()
		h.deliver(h.registry.GetSessionStudents(sessionID), &redacted)
		return
	}

	h.deliver(h.registry.GetSessionConnections(sessionID), event)
}

// GetLiveStats computes the current room snapshot on demand.
func (h *Hub) GetLiveStats(ctx context.Context, sessionID string) (*types.LiveStats, error) {
	return h.stats.LiveStats(ctx, sessionID)
}

func (h *Hub) deliver(connections []*websocket.Connection, event *types.Event) {
	for _, conn := range connections {
		if err := conn.WriteJSON(event); err != nil {
			log.Printf("Event delivery failed: event=%s client=%s session=%s err=%v",
				event.Name, conn.GetClientID(), event.SessionID, err)
		}
	}
}
