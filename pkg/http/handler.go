package http

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler mounts a group of routes on the server. The ops API and the
// metrics endpoint are both Handlers.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}

// RouteFunc adapts a plain function to Handler.
type RouteFunc func(e *echo.Echo)

func (f RouteFunc) RegisterRoutes(e *echo.Echo) { f(e) }

// Handlers registers each member in order. Nil members are skipped so an
// optional handler can be listed unconditionally.
type Handlers []Handler

func (hs Handlers) RegisterRoutes(e *echo.Echo) {
	for _, h := range hs {
		if h != nil {
			h.RegisterRoutes(e)
		}
	}
}

// metricsRoute exposes the default Prometheus registry at path. An empty
// path disables the endpoint.
func metricsRoute(path string) Handler {
	if path == "" {
		return nil
	}
	return RouteFunc(func(e *echo.Echo) {
		e.GET(path, echo.WrapHandler(promhttp.Handler()))
	})
}
