package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"pump-candles/internal/chart"
	"pump-candles/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleChart upgrades the connection and runs one chart session on it.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	mint := r.PathValue("token")
	res, err := domain.ParseResolution(r.PathValue("resolution"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		s.logger.Printf("upgrade %s: %v", r.URL.Path, err)
		return
	}
	defer conn.Close()

	// Detached from the request: the hijacked connection outlives r.Context.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go readUntilClosed(conn, cancel)

	opts := s.opts.Session
	opts.ID = uuid.NewString()
	opts.Logger = s.logger

	sink := &wsSink{conn: conn, writeTimeout: s.opts.WriteTimeout}
	err = chart.NewSession(s.store, sink, mint, res, opts).Run(ctx)

	closeCode := websocket.CloseNormalClosure
	if errors.Is(err, chart.ErrIdleTimeout) {
		closeCode = websocket.CloseGoingAway
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(closeCode, ""),
		time.Now().Add(time.Second))
}

// readUntilClosed drains client frames and cancels the session once the
// connection fails or the client sends a close frame.
func readUntilClosed(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// wsSink writes each point as one JSON text frame. Only the session goroutine writes.
type wsSink struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (s *wsSink) Send(_ context.Context, point domain.TradeOhlcv) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(point)
}
