package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pribylovaa/hackathon-site/internal/clients"
	"github.com/pribylovaa/hackathon-site/internal/config"
	gwhttp "github.com/pribylovaa/hackathon-site/internal/http"
	"github.com/pribylovaa/hackathon-site/internal/http/handlers"
	"github.com/pribylovaa/hackathon-site/internal/http/middleware"
	"github.com/pribylovaa/hackathon-site/internal/locale"
	"github.com/pribylovaa/hackathon-site/internal/session"
	"github.com/pribylovaa/hackathon-site/internal/tokenstore/cookie"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting site-gateway", "env", cfg.Env, "store", cfg.Store.Driver)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("gateway_failed", slog.String("err", err.Error()))
		cancel()
		os.Exit(1)
	}

	log.Info("service_stopped")
}

// run поднимает зависимости и HTTP-сервер и блокируется до сигнала
// остановки или ошибки Serve.
func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	cl, err := clients.New(ctx, *cfg, log, prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("clients: %w", err)
	}
	defer func() {
		if cerr := cl.Close(); cerr != nil {
			log.Warn("clients_close_failed", slog.String("err", cerr.Error()))
		}
	}()

	site, err := siteHandler(cfg, cl, log)
	if err != nil {
		return err
	}

	var ready atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !ready.Load() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}

		// Для драйвера redis готовность зависит от Redis.
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := cl.Ready(pingCtx); err != nil {
			log.Warn("readiness_check_failed", slog.String("err", err.Error()))
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}

		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", site)

	addr := cfg.HTTP.Addr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	log.Info("http_listen_start", slog.String("addr", addr))

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	ready.Store(true)
	log.Info("gateway_ready")

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown_requested")
	case runErr = <-serveErr:
	}

	ready.Store(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_shutdown_incomplete", slog.String("err", err.Error()))
	} else {
		log.Info("http_stopped")
	}

	return runErr
}

// siteHandler собирает роутер сайта: локали, хранилище токенов по драйверу,
// хендлеры и лимит логина.
func siteHandler(cfg *config.Config, cl *clients.Clients, log *slog.Logger) (http.Handler, error) {
	locales, err := locale.New(cfg.Locales.Supported, cfg.Locales.Default)
	if err != nil {
		return nil, fmt.Errorf("locales: %w", err)
	}

	// same_site уже проверен в config.Validate.
	sameSite, _ := cfg.Cookies.SameSiteMode()
	cookieOpts := cookie.Options{
		Path:     "/",
		Domain:   cfg.Cookies.Domain,
		Secure:   cfg.Cookies.Secure,
		SameSite: sameSite,
	}

	var stores handlers.StoreFactory = handlers.CookieStores{Cookies: cookieOpts}
	if cl.Sessions != nil {
		stores = handlers.RedisStores{
			Backend:    cl.Sessions,
			CookieName: cfg.Store.SessionCookie,
			TTL:        cfg.Store.SessionTTL,
			Cookies:    cookieOpts,
		}
	}

	h := handlers.New(cl.API, handlers.Options{
		Stores:  stores,
		Locales: locales,
		Session: session.Options{
			AccessTTL:      cfg.Tokens.AccessTTL,
			RefreshTTL:     cfg.Tokens.RefreshTTL,
			RevokeOnLogout: cfg.Session.RevokeOnLogout,
		},
		AvatarMaxBytes: cfg.Limits.AvatarMaxBytes,
	})

	return gwhttp.NewRouter(h, gwhttp.Options{
		Logger:       log,
		Timeout:      cfg.Timeouts.Service,
		Locales:      locales,
		LoginLimiter: middleware.NewIPLimiter(cfg.Limits.LoginRPS, cfg.Limits.LoginBurst),
	}), nil
}

func setupLogger(env string) *slog.Logger {
	switch env {
	case envLocal:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}
