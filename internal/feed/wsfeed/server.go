// Package wsfeed carries change events over websockets: Handler streams a
// list's events to one connection, Client subscribes to them remotely.
package wsfeed

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/idilsaglam/tada/internal/backend"
	"github.com/idilsaglam/tada/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

// Handler upgrades requests and streams events of one list from Feed.
type Handler struct {
	feed     backend.Feed
	logger   *log.Logger
	upgrader websocket.Upgrader
}

// NewHandler streams events from feed. A nil logger discards output.
func NewHandler(feed backend.Feed, logger *log.Logger) *Handler {
	return &Handler{
		feed:   feed,
		logger: logging.OrDiscard(logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// ServeList upgrades the connection and forwards every event of listID
// until either side goes away.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request, listID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade", "list", listID, "err", err)
		return
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := make(chan backend.Event, sendBuffer)
	sub, err := h.feed.Subscribe(ctx, listID, func(ev backend.Event) {
		select {
		case out <- ev:
		case <-ctx.Done():
		}
	})
	if err != nil {
		h.logger.Error("failed to subscribe", "list", listID, "err", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"),
			time.Now().Add(writeWait))
		return
	}
	defer func() { _ = sub.Close() }()
	h.logger.Debug("feed connected", "list", listID, "remote", r.RemoteAddr)

	go readPump(conn, cancel)

	// A nil channel never fires, for feeds whose subscriptions cannot end
	// on their own.
	var ended <-chan struct{}
	if e, ok := sub.(backend.Ender); ok {
		ended = e.Done()
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case ev := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug("feed write failed", "list", listID, "err", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-ended:
			// The client reconnects and reloads, which covers the events it missed.
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "feed fell behind"),
				time.Now().Add(writeWait))
			h.logger.Warn("feed subscriber dropped", "list", listID)
			return
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			h.logger.Debug("feed disconnected", "list", listID)
			return
		}
	}
}

// readPump drains the connection so control frames are processed and
// cancels once the peer is gone.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
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
