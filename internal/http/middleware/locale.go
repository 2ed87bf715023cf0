package middleware

import (
	"log/slog"
	"net/http"

	"github.com/pribylovaa/hackathon-site/internal/apiclient"
	"github.com/pribylovaa/hackathon-site/internal/locale"
	logctx "github.com/pribylovaa/hackathon-site/pkg/log"
)

// Locale определяет язык запроса и кладёт его в контекст
// (apiclient.WithLocale): диспетчер отправит его в API как Accept-Language,
// а хендлеры строят по нему путь страницы логина.
func Locale(res *locale.Resolver) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			code := res.Resolve(r)

			ctx := apiclient.WithLocale(r.Context(), code)
			ctx = logctx.With(ctx, slog.String("locale", code))
			w.Header().Set("Content-Language", code)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
