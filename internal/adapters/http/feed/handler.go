package feed

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/okian/verdict/pkg/logger"
)

// Handler upgrades requests and registers them on the hub.
type Handler struct {
	hub      *Hub
	log      logger.Logger
	upgrader websocket.Upgrader
}

// NewHandler builds a websocket handler for hub. checkOrigin may be nil to
// accept any origin.
func NewHandler(hub *Hub, log logger.Logger, checkOrigin func(*http.Request) bool) *Handler {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		hub: hub,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
	}
}

// ServeHTTP handles GET /v1/feed.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}
	client := NewClient(conn, h.log)
	h.hub.Register(client)
	go func() {
		defer func() {
			h.hub.Unregister(client)
			client.Close()
		}()
		// Subscribers only listen; reading detects disconnects.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
