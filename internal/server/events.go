package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/maauso/guided-audio/internal/session"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// visibilityMessage is the only frame clients send on the events socket.
type visibilityMessage struct {
	Hidden *bool `json:"hidden"`
}

// SessionEvents handles GET /sessions/{id}/events. It upgrades to a
// WebSocket and pushes one JSON progress frame per tick until the session
// is closed or the client goes away. Clients may send {"hidden": bool} to
// relay visibility changes.
func (h *Handlers) SessionEvents(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	feed := s.Feed()
	l := feed.Subscribe()
	defer feed.Unsubscribe(l)

	h.logger.Info("events subscriber connected",
		slog.String("session_id", s.ID),
		slog.Int("listeners", feed.ListenerCount()),
	)

	gone := make(chan struct{})
	go h.readVisibility(conn, s, gone)

	if err := writeFrame(conn, toProgressResponse(s.Snapshot())); err != nil {
		return
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-gone:
			return
		case <-l.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
				time.Now().Add(writeWait))
			return
		case p := <-l.C:
			if err := writeFrame(conn, toProgressResponse(p)); err != nil {
				h.logger.Debug("events write failed", slog.String("error", err.Error()))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readVisibility consumes client frames until the connection fails, then
// closes gone.
func (h *Handlers) readVisibility(conn *websocket.Conn, s *session.Session, gone chan<- struct{}) {
	defer close(gone)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var msg visibilityMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Hidden == nil {
			continue
		}
		if err := s.SetHidden(context.Background(), *msg.Hidden); err != nil {
			h.logger.Warn("visibility change failed",
				slog.String("session_id", s.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func writeFrame(conn *websocket.Conn, p ProgressResponse) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(p)
}
