package apiclient

import "context"

type ctxKey string

const (
	ctxRequestID ctxKey = "request_id"
	ctxLocale    ctxKey = "locale"
)

// WithRequestID кладёт X-Request-Id, который диспетчер прокинет в API.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxRequestID, id)
}

// RequestID достаёт X-Request-Id из контекста.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxRequestID).(string)
	return id
}

// WithLocale кладёт язык пользователя (en/ar/fr/tr) для Accept-Language.
func WithLocale(ctx context.Context, locale string) context.Context {
	return context.WithValue(ctx, ctxLocale, locale)
}

// Locale достаёт язык пользователя из контекста.
func Locale(ctx context.Context) string {
	l, _ := ctx.Value(ctxLocale).(string)
	return l
}
