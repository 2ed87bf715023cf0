package middleware

import (
	"log/slog"
	"net/http"
	"time"

	logctx "github.com/pribylovaa/hackathon-site/pkg/log"
)

// headerLoginRedirect выставляется хендлерами, когда сессия браузера
// потеряна (см. handlers.HeaderLoginRedirect).
const headerLoginRedirect = "X-Login-Redirect"

// Logging кладёт в контекст логгер с request_id и после ответа пишет
// одну запись "http". Ответы 5xx — Warn, остальные — Info.
func Logging(l *slog.Logger) Middleware {
	if l == nil {
		l = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := l
			if rid := r.Header.Get("X-Request-Id"); rid != "" {
				log = log.With(slog.String("request_id", rid))
			}
			r = r.WithContext(logctx.Into(r.Context(), log))

			sw := newStatusWriter(w)
			start := time.Now()
			next.ServeHTTP(sw, r)

			status := sw.status
			if status == 0 {
				status = http.StatusOK
			}

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Duration("dur", time.Since(start)),
				slog.Int("bytes", sw.count),
				slog.String("ip", clientIP(r)),
			}
			if to := sw.Header().Get(headerLoginRedirect); to != "" {
				attrs = append(attrs, slog.String("login_redirect", to))
			}

			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}

			log.LogAttrs(r.Context(), level, "http", attrs...)
		})
	}
}
