package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the canvas endpoints and middleware stack.
func NewRouter(h *Handler) chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	router.Get("/health", h.Health)

	// Websockets outlive any request timeout.
	if h.realtime != nil {
		router.Method(http.MethodGet, "/canvas/ws", h.realtime)
	}

	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Route("/canvas", func(r chi.Router) {
			r.Get("/", h.GetCanvas)
			r.Post("/", h.PlacePixel)
			r.Get("/stats", h.GetStats)
			r.Get("/snapshot", h.GetSnapshot)
			r.Post("/mint", h.MintSession)
			r.Get("/check-sessions", h.CheckSessions)
			r.Post("/check-sessions", h.CheckSessions)
			r.Get("/gallery", h.GetGallery)
			r.Get("/sessions/{id}", h.GetSession)
			r.Get("/config", h.GetConfig)
			r.Get("/cooldown", h.GetCooldown)
		})
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "endpoint not found"})
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
	})

	return router
}
