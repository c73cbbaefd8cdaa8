package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/p-n-ai/pai-progress/internal/auth"
)

const (
	eventWriteTimeout = 5 * time.Second
	eventPingInterval = 30 * time.Second
)

// sessionEvent is the wire form of a session change. Tokens are never sent.
type sessionEvent struct {
	Type   auth.EventType `json:"type"`
	UserID string         `json:"user_id,omitempty"`
	Email  string         `json:"email,omitempty"`
	At     time.Time      `json:"at"`
}

func newSessionEvent(e auth.Event) sessionEvent {
	out := sessionEvent{Type: e.Type, At: e.At}
	if out.At.IsZero() {
		out.At = time.Now().UTC()
	}
	if e.Session != nil {
		out.UserID = e.Session.User.ID
		out.Email = e.Session.User.Email
	}
	return out
}

// handleSessionEvents streams session changes over a websocket. The first
// message describes the current session.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.originPatterns})
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer c.CloseNow()

	events, cancel := s.sessions.Subscribe()
	defer cancel()

	// Client messages are ignored; CloseRead ends ctx when the peer goes away.
	ctx := c.CloseRead(r.Context())

	initial := auth.Event{Type: auth.EventInitialSession, Session: s.sessions.Current()}
	if err := writeEvent(ctx, c, initial); err != nil {
		return
	}

	ping := time.NewTicker(eventPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				c.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := writeEvent(ctx, c, e); err != nil {
				slog.Debug("session event write failed", "error", err)
				return
			}
		case <-ping.C:
			pctx, pcancel := context.WithTimeout(ctx, eventWriteTimeout)
			err := c.Ping(pctx)
			pcancel()
			if err != nil {
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, c *websocket.Conn, e auth.Event) error {
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, c, newSessionEvent(e))
}
