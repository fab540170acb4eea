package main

import (
	"log"
	"path"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
)

// RouteHelper builds resource URLs for Location headers.
type RouteHelper struct {
	basePath string
}

// NewRouteHelper creates a RouteHelper rooted at basePath, e.g. "/api/v1".
func NewRouteHelper(basePath string) RouteHelper {
	return RouteHelper{basePath: path.Clean("/" + basePath)}
}

// ItemsURL returns the URL of the item collection.
func (rh RouteHelper) ItemsURL() string {
	return path.Join(rh.basePath, "items")
}

// ItemURL returns the URL of a single item.
func (rh RouteHelper) ItemURL(id uuid.UUID) string {
	return path.Join(rh.basePath, "items", id.String())
}

// RouterOptions carries the settings NewRouter needs from Config.
type RouterOptions struct {
	BasePath       string
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// NewRouter mounts the item endpoints and the health probe.
func NewRouter(h *Handler, logger *log.Logger, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			ExposedHeaders: []string{"Location"},
			MaxAge:         300,
		}))
	}
	r.Use(middleware.RequestID)
	r.Use(loggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	if opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(opts.RequestTimeout))
	}

	r.Get("/healthz", h.handleHealth)

	r.Route(NewRouteHelper(opts.BasePath).ItemsURL(), func(r chi.Router) {
		r.Use(jsonContentType)
		r.Get("/", h.handleListItems)
		r.Post("/", h.handleCreateItem)
		r.Put("/", h.handleReplaceItems)
		r.Delete("/", h.handleDeleteItems)
		r.Get("/{id}", h.handleGetItem)
		r.Put("/{id}", h.handleUpsertItem)
		r.Patch("/{id}", h.handlePatchItem)
		r.Delete("/{id}", h.handleDeleteItem)
	})

	return r
}
