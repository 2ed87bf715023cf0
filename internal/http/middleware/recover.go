package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/pribylovaa/hackathon-site/internal/errors"
	logctx "github.com/pribylovaa/hackathon-site/pkg/log"
)

var errPanic = errors.New("internal")

// Recover превращает panic хендлера в 500/internal.
// Если ответ уже начат (прокси успел отдать заголовки), тело не дописываем:
// соединение обрывается через http.ErrAbortHandler.
func Recover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := newStatusWriter(w)

			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logctx.From(r.Context()).Error("panic",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Bool("headers_sent", sw.status != 0),
					slog.Any("reason", rec),
				)

				if sw.status != 0 {
					panic(http.ErrAbortHandler)
				}
				apierrors.WriteError(sw, r, errPanic)
			}()

			next.ServeHTTP(sw, r)
		})
	}
}
