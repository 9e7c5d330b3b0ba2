package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/BinhNguyenDang/Demo-Turbochat/internal/api/middleware"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/handlers"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, h *handlers.Handler) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/health", h.Health)

	r.Post("/users", h.CreateUser)
	r.Get("/users/{id}", h.GetUser)
	r.Post("/users/{id}/avatar", h.SetAvatar)

	r.Post("/rooms", h.CreateRoom)
	r.Get("/rooms", h.ListRooms)
	r.Post("/rooms/{id}/join", h.JoinRoom)
	r.Get("/rooms/{id}/messages", h.GetRoomMessages)
	r.Post("/rooms/{id}/messages", h.PostMessage)
	r.Patch("/rooms/{id}/messages/{mid}", h.UpdateMessage)
	r.Delete("/rooms/{id}/messages/{mid}", h.DeleteMessage)
	r.Post("/rooms/{id}/read", h.MarkRead)
	r.Get("/rooms/{id}/unread", h.UnreadCount)
	r.Get("/rooms/{id}/live", h.Live)

	r.Get("/attachments/{id}/variant", h.GetVariant)
	r.Get("/blobs/{ref}", h.GetBlob)

	return r
}
