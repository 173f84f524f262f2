package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kadirpekel/taskforge/internal/eventstore"
)

// upgrader accepts connections from any origin, matching the teacher's
// permissive-by-default CORS stance for the event stream (pkg/server/http.go
// corsMiddleware's no-config path); a deployment fronting this with its own
// origin policy can reject before the request reaches here.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

type eventPayload struct {
	Timestamp int64          `json:"timestamp"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
}

func toPayloads(events []eventstore.Event) []eventPayload {
	out := make([]eventPayload, len(events))
	for i, ev := range events {
		out[i] = eventPayload{Timestamp: ev.Timestamp, Type: ev.Type, Payload: ev.Payload}
	}
	return out
}

// handleEventStream upgrades to a WebSocket and streams every event stored
// from this point on, first replaying anything the client missed. A
// clientId query parameter opts into cursor persistence (§8 "at-least-once
// delivery"): the client's last-seen timestamp is looked up via
// GetClientCursor, replayed via GetEventsSince, and saved via
// SaveClientCursor as new events are delivered, so a reconnect with the
// same clientId resumes instead of re-seeing the whole ring.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("clientId")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("event stream upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	s.metrics.IncWSConnections()
	defer s.metrics.DecWSConnections()

	var since int64
	if clientID != "" {
		if cursor, ok := s.events.GetClientCursor(clientID); ok {
			since = cursor
		} else if sinceParam := r.URL.Query().Get("since"); sinceParam != "" {
			if parsed, err := strconv.ParseInt(sinceParam, 10, 64); err == nil {
				since = parsed
			}
		}
	}

	ch, unsubscribe := s.events.Subscribe(64)
	defer unsubscribe()

	for _, ev := range s.events.GetEventsSince(since, 0) {
		if err := s.writeEvent(conn, clientID, ev); err != nil {
			return
		}
	}

	done := make(chan struct{})
	go s.drainClient(conn, done)

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := s.writeEvent(conn, clientID, ev); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) writeEvent(conn *websocket.Conn, clientID string, ev eventstore.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(eventPayload{Timestamp: ev.Timestamp, Type: ev.Type, Payload: ev.Payload}); err != nil {
		return err
	}
	if clientID != "" {
		s.events.SaveClientCursor(clientID, ev.Timestamp)
	}
	return nil
}

// drainClient discards inbound client frames (this stream is server-push
// only) so pong control frames and accidental client writes don't back up
// the connection; it closes done once the client disconnects.
func (s *Server) drainClient(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
