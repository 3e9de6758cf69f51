package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"camwatch/internal/config"
	"camwatch/internal/handler"
	"camwatch/internal/middleware"
)

type Handlers struct {
	Auth   *handler.AuthHandler
	Admin  *handler.AdminHandler
	Signal *handler.SignalHandler
}

func New(cfg *config.Config, authMiddleware *middleware.AuthMiddleware, h Handlers) http.Handler {
	r := chi.NewRouter()
	rateLimit := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimit.Handler)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Post("/login", h.Auth.Login)
	r.Post("/register", h.Auth.Register)

	r.Group(func(authed chi.Router) {
		authed.Use(authMiddleware.RequireAuth)

		authed.Post("/offer", h.Signal.Offer)
		authed.Get("/ping", h.Signal.Ping)
		authed.Get("/status", h.Signal.Status)

		authed.Group(func(admin chi.Router) {
			admin.Use(authMiddleware.RequireAdmin)

			admin.Get("/admin/users", h.Admin.ListUsers)
			admin.Post("/admin/update", h.Admin.UpdateUser)
			admin.Post("/admin/delete", h.Admin.DeleteUser)
		})
	})

	return r
}
