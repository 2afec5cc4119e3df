package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/roomforge/themekit/pkg/events"
)

const (
	eventBuffer  = 64
	writeTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// EventMessage is the wire form of an engine event on /api/events.
type EventMessage struct {
	Kind    events.Kind  `json:"kind"`
	ThemeID string       `json:"theme_id"`
	Error   string       `json:"error,omitempty"`
	Data    events.Event `json:"data"`
}

func newEventMessage(ev events.Event) EventMessage {
	msg := EventMessage{Kind: ev.Kind(), ThemeID: ev.Theme(), Data: ev}
	switch ev := ev.(type) {
	case events.InheritanceResolveFailed:
		msg.Error = ev.Err.Error()
	case events.OverrideApplyFailed:
		msg.Error = ev.Err.Error()
	}
	return msg
}

// streamEvents upgrades to a WebSocket and forwards engine events until the
// client goes away. With ?theme=<id> only events about that theme are sent.
// Slow clients lose events rather than stall the engine.
func (s *Server) streamEvents(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader already wrote an error response.
		return nil
	}
	defer conn.Close()

	filter := c.QueryParam("theme")
	queue := make(chan EventMessage, eventBuffer)
	unsubscribe := s.engine.Events().Subscribe("websocket "+c.Response().Header().Get(echo.HeaderXRequestID), func(ev events.Event) error {
		if filter != "" && ev.Theme() != filter {
			return nil
		}
		select {
		case queue <- newEventMessage(ev):
		default:
			slog.Warn("Dropping event for slow WebSocket client", "event", ev.Kind(), "theme", ev.Theme())
		}
		return nil
	})
	defer unsubscribe()

	// Reading is only used to notice the client closing the connection.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
			return nil
		case <-closed:
			return nil
		case msg := <-queue:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				slog.Debug("WebSocket client went away", "error", err)
				return nil
			}
		}
	}
}
