package adapter

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/loykin/warden/internal/metrics"
)

// Gin serves the operational endpoints with gin.
type Gin struct {
	listener
}

func NewGin(deps Deps) (Adapter, error) {
	return &Gin{listener: listener{deps: deps}}, nil
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (a *Gin) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(a.deps.BasePath)
	group.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	private := group.Group("", a.deps.Auth.GinAuth())
	private.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, currentStatus(a.deps))
	})
	if a.deps.Metrics {
		private.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return g
}

func (a *Gin) Start(ctx context.Context) error {
	return a.serve(ctx, a.Handler())
}
