package realtime

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
)

// Handler upgrades dashboard connections, sends initialData and hands the
// session to the Hub.
type Handler struct {
	hub      *Hub
	latest   func() any
	origins  []string
	upgrader websocket.Upgrader
}

// NewHandler accepts connections from origins ("*" allows any). latest
// provides the initialData payload.
func NewHandler(hub *Hub, latest func() any, origins []string) *Handler {
	h := &Handler{hub: hub, latest: latest, origins: origins}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  4096,
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if slices.Contains(h.origins, "*") {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || !slices.Contains(h.origins, origin) {
		h.hub.log.Warn("websocket origin rejected", slog.String("origin", origin))
		return false
	}
	return true
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.log.Warn("websocket upgrade failed", slog.String("err", err.Error()))
		return
	}
	c := newClient(h.hub, conn)
	c.send <- Message{Type: EventInitialData, Data: h.latest()}

	select {
	case h.hub.register <- c:
	case <-h.hub.quit:
		_ = conn.Close()
		return
	case <-r.Context().Done():
		_ = conn.Close()
		return
	}
	c.start()
}
