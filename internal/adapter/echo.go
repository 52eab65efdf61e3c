package adapter

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/loykin/warden/internal/metrics"
)

// Echo serves the operational endpoints with echo.
type Echo struct {
	listener
}

func NewEcho(deps Deps) (Adapter, error) {
	return &Echo{listener: listener{deps: deps}}, nil
}

func (a *Echo) Handler() http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	group := e.Group(a.deps.BasePath)
	group.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	guard := a.deps.Auth.EchoAuth()
	group.GET("/status", func(c echo.Context) error {
		return c.JSON(http.StatusOK, currentStatus(a.deps))
	}, guard)
	if a.deps.Metrics {
		group.GET("/metrics", echo.WrapHandler(metrics.Handler()), guard)
	}
	return e
}

func (a *Echo) Start(ctx context.Context) error {
	return a.serve(ctx, a.Handler())
}
