package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/pribylovaa/hackathon-site/internal/http/handlers"
	"github.com/pribylovaa/hackathon-site/internal/http/middleware"
	"github.com/pribylovaa/hackathon-site/internal/locale"
)

// Options — параметры сборки HTTP-роутера.
type Options struct {
	Logger  *slog.Logger
	Timeout time.Duration
	Locales *locale.Resolver
	// LoginLimiter ограничивает частоту логина/регистрации с одного IP.
	// nil — без ограничения.
	LoginLimiter *middleware.IPLimiter
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
// Маршруты доступны и на корне, и под префиксом языка (/ar/auth/login).
func NewRouter(h *handlers.Handlers, opts Options) http.Handler {
	root := chi.NewRouter()

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.Recover(),
		middleware.RequestID(), // до логирования
		middleware.Logging(opts.Logger),
		chimw.RealIP,
		middleware.Locale(opts.Locales),
	)
	if opts.Timeout > 0 {
		root.Use(middleware.Timeout(opts.Timeout))
	}

	sub := chi.NewRouter()
	registerRoutes(sub, h, opts.LoginLimiter)

	for _, code := range opts.Locales.Codes() {
		root.Mount("/"+code, sub)
	}
	root.Mount("/", sub)

	return root
}

// registerRoutes — единая точка регистрации всех эндпойнтов шлюза.
func registerRoutes(r chi.Router, h *handlers.Handlers, limiter *middleware.IPLimiter) {
	// auth
	r.Group(func(r chi.Router) {
		if limiter != nil {
			r.Use(middleware.RateLimit(limiter))
		}
		r.Post("/auth/login", h.Login)
		r.Post("/auth/register", h.Register)
	})
	r.Post("/auth/logout", h.Logout)
	r.Get("/auth/session", h.Session)
	r.Get("/auth/me", h.Me)

	// profile
	r.Put("/auth/profile", h.UpdateProfile)
	r.Put("/auth/profile/password", h.ChangePassword)
	r.Post("/auth/avatar", h.UploadAvatar)

	// всё остальное API (события, форум) проксируется как есть
	r.HandleFunc("/api/*", h.Proxy)
}
