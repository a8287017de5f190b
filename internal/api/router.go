// Package api exposes the REST surface and mounts the websocket hub.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/matheus3301/dmsync/internal/auth"
	"github.com/matheus3301/dmsync/internal/metrics"
)

// Deps are the collaborators the router mounts.
type Deps struct {
	Messages *MessageService
	Chats    *ChatService
	Users    *UserService
	Auth     auth.Authenticator
	// Realtime serves GET /ws. Optional.
	Realtime http.Handler
	// Gatherer serves GET /metrics when non-nil.
	Gatherer prometheus.Gatherer
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// NewRouter builds the gin engine.
func NewRouter(d Deps) *gin.Engine {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log), d.Metrics.Middleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}
	if d.Realtime != nil {
		r.GET("/ws", gin.WrapH(d.Realtime))
	}

	public := r.Group("/api")
	d.Users.MountPublic(public)

	authed := r.Group("/api", Authenticate(d.Auth, log))
	d.Messages.Mount(authed)
	d.Chats.Mount(authed)
	d.Users.Mount(authed)

	return r
}
