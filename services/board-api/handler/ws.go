package handler

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ramiqadoumi/go-task-board/internal/broadcast"
	"github.com/ramiqadoumi/go-task-board/services/board-api/middleware"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxClientFrame = 512
)

// Stream pushes board events to websocket clients as {"event", "data"} frames.
// Client frames other than control frames are read and discarded.
type Stream struct {
	bus      *broadcast.Bus
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewStream creates a websocket endpoint fed by bus. Browser origins must appear
// in allowedOrigins; "*" admits any origin.
func NewStream(bus *broadcast.Bus, allowedOrigins []string, logger *slog.Logger) *Stream {
	return &Stream{
		bus:    bus,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
	}
}

// ServeHTTP handles GET /ws.
func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	name := "ws"
	if u := middleware.UserFrom(r.Context()); u != nil {
		name = "ws:" + u.ID
	}
	sub := s.bus.Subscribe(name)
	s.logger.Info("websocket connected", slog.String("subscriber", name), slog.String("remote_addr", r.RemoteAddr))

	closed := make(chan struct{})
	go s.readLoop(conn, closed)
	s.writeLoop(conn, sub, closed)

	s.bus.Unsubscribe(sub)
	_ = conn.Close()
	s.logger.Info("websocket disconnected", slog.String("subscriber", name), slog.Int64("dropped", sub.Dropped()))
}

// readLoop keeps the read deadline fresh on pongs and signals closed when the
// client goes away.
func (s *Stream) readLoop(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(maxClientFrame)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Stream) writeLoop(conn *websocket.Conn, sub *broadcast.Subscription, closed <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case ev, ok := <-sub.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
