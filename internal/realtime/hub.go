// Package realtime serves the websocket event channel.
package realtime

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/matheus3301/dmsync/internal/auth"
	"github.com/matheus3301/dmsync/internal/bus"
	"github.com/matheus3301/dmsync/internal/metrics"
	"github.com/matheus3301/dmsync/internal/model"
	"github.com/matheus3301/dmsync/internal/registry"
)

// DefaultBuffer is the per-connection outgoing event buffer.
const DefaultBuffer = 64

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Identity comes from the auth boundary, not the origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub upgrades authenticated requests and keeps their connections in the
// registry. A participant that connects again replaces and closes the
// previous connection.
type Hub struct {
	reg     *registry.Registry
	auth    auth.Authenticator
	bus     *bus.Bus
	metrics *metrics.Metrics
	log     *zap.Logger
	buf     int
}

// NewHub creates a Hub. bufSize <= 0 uses DefaultBuffer.
func NewHub(reg *registry.Registry, a auth.Authenticator, b *bus.Bus, m *metrics.Metrics, log *zap.Logger, bufSize int) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	if bufSize <= 0 {
		bufSize = DefaultBuffer
	}
	return &Hub{reg: reg, auth: a, bus: b, metrics: m, log: log, buf: bufSize}
}

// ServeHTTP handles websocket requests from the peer.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	uid, err := h.auth.Auth(r)
	if err != nil {
		h.log.Warn("websocket auth failed", zap.Error(err))
		http.Error(w, "Authenticate error", http.StatusForbidden)
		return
	}

	// If the upgrade fails, Upgrade has already replied with an HTTP error.
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.String("uid", uid), zap.Error(err))
		return
	}

	conn := newConn(h, uid, ws, h.buf)
	if prev := h.reg.Register(uid, conn); prev != nil {
		h.log.Info("kicking off previous connection", zap.String("uid", uid))
		_ = prev.Close()
		// The online set did not change, so no presence event will follow.
		if evt, err := model.NewEvent(model.EventOnlineUsers, h.reg.Online()); err == nil {
			_ = conn.Send(evt)
		}
	}
	h.log.Info("participant connected", zap.String("uid", uid))

	go conn.recvLoop()
	go conn.sendLoop()
}

// Run broadcasts presence changes to every connection until ctx is done,
// then closes all connections.
func (h *Hub) Run(ctx context.Context) {
	ch, unsub := h.bus.Subscribe(bus.KindPresenceChanged, 16)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			h.reg.CloseAll()
			return
		case evt := <-ch:
			online, ok := evt.Payload.([]string)
			if !ok {
				continue
			}
			h.metrics.SetOnline(len(online))
			h.Broadcast(model.EventOnlineUsers, online)
		}
	}
}

// Broadcast sends an event to every connected participant.
func (h *Hub) Broadcast(typ string, payload any) {
	evt, err := model.NewEvent(typ, payload)
	if err != nil {
		h.log.Error("encode broadcast", zap.String("type", typ), zap.Error(err))
		return
	}
	for _, uid := range h.reg.Online() {
		if c, ok := h.reg.Lookup(uid); ok {
			_ = c.Send(evt)
		}
	}
}
