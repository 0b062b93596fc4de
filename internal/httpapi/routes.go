package httpapi

import (
	"net/http"

	"github.com/DoyleJ11/map-veto-backend/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

func SetupRoutes(a *API, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(a.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler)

	r.Get("/healthz", Healthz)
	r.Get("/maps", a.Maps)

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", a.CreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", a.GetView)
			r.Delete("/", a.DeleteSession)
			r.Get("/state", a.GetState)
			r.Post("/actions", a.SubmitAction)
		})
	})

	r.Get("/ws", ws.Handler(a.hub, a.log.With(zap.String("component", "ws")), origins))
	return r
}
