package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts h on GET path and GET path/*. Everything else, including
// other methods on those paths, is answered by h.NotFound. middlewares wrap
// every request; routeMiddlewares wrap only the weather routes.
func NewRouter(h *WeatherHandler, path string, middlewares []func(http.Handler) http.Handler, routeMiddlewares ...func(http.Handler) http.Handler) http.Handler {
	base := strings.TrimRight(path, "/")

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middlewares...)

	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.NotFound)

	r.Group(func(r chi.Router) {
		r.Use(routeMiddlewares...)
		if base != "" {
			r.Get(base, h.HandleWeather)
		}
		r.Get(base+"/*", h.HandleWeather)
	})
	return r
}
