package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// NewRouter creates and configures the HTTP router.
//
// ws is the push endpoint (hub.Hub.ServeWS); it is mounted at /ws.
func NewRouter(logger zerolog.Logger, h *Handler, ws http.HandlerFunc, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(Metrics)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(chimw.Recoverer)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Hub-Signature-256"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/ws", ws)

	r.Get("/webhook", h.HandleWebhookVerify)
	r.Post("/webhook", h.HandleWebhook)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.HandleHealth)
		r.Get("/conversations", h.HandleListConversations)
		r.Get("/messages/{conversationId}", h.HandleGetMessages)
		r.Post("/messages", h.HandleCreateMessage)
		r.Delete("/messages/{id}", h.HandleDeleteMessage)
	})

	return r
}
