// errors стандартизирует ответы об ошибках HTTP-слоя шлюза.
// На вход он принимает ошибку фасада сессии или диспетчера API,
// а на выход даёт:
//   - корректный HTTP-статус;
//   - краткое безопасное message без утечки деталей;
//   - ошибки полей формы в порядке, в котором их вернул API.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/pribylovaa/hackathon-site/internal/apiclient"
	"github.com/pribylovaa/hackathon-site/internal/session"
)

// Нестандартный код часто используемый для "клиент закрыл соединение".
const StatusClientClosedRequest = 499

var (
	// ErrInvalidBody — тело запроса не разобрано. HTTP 400.
	ErrInvalidBody = stderrors.New("invalid request body")

	// ErrInvalidPath — путь запроса выходит за пределы API. HTTP 400.
	ErrInvalidPath = stderrors.New("invalid request path")

	// ErrRateLimited — превышен лимит попыток. HTTP 429.
	ErrRateLimited = stderrors.New("too many requests")

	// ErrTooLarge — тело запроса больше лимита. HTTP 413.
	ErrTooLarge = stderrors.New("request entity too large")
)

// Field — ошибки одного поля формы.
type Field struct {
	Field    string   `json:"field"`
	Messages []string `json:"messages"`
}

// APIError — единый формат для фронта.
// Code — короткий стабильный код для машиночитаемой обработки на FE.
// Message — безопасное человекочитаемое описание.
// RequestID — прокидывается из X-Request-Id, если есть (для трассировки).
type APIError struct {
	Code      string  `json:"code"`
	Message   string  `json:"message"`
	RequestID string  `json:"request_id,omitempty"`
	Fields    []Field `json:"fields,omitempty"`
}

// ErrorResponse — корневой объект в ответе.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// ToHTTP конвертирует ошибку в HTTP-статус и ответ для фронта.
//
// Поведение:
//   - err == nil — программная ошибка вызова: 500/internal;
//   - *ValidationError — 400 с полями, message — первая ошибка;
//   - ErrInvalidCredentials — 401/invalid_credentials;
//   - ErrSessionExpired — 401/session_expired;
//   - ErrUnauthenticated, session.ErrNotAuthenticated — 401/unauthenticated;
//   - *APIError от API — 4xx как есть, 5xx → 502;
//   - ErrNetwork, ErrMalformedResponse — 502/504;
//   - отмена/дедлайн — 499/504;
//   - прочее — 500/internal.
func ToHTTP(err error) (int, ErrorResponse) {
	if err == nil {
		return internal()
	}

	var ve *apiclient.ValidationError
	if stderrors.As(err, &ve) {
		fields := make([]Field, 0, len(ve.Fields))
		for _, f := range ve.Fields {
			fields = append(fields, Field{Field: f.Field, Messages: f.Messages})
		}

		return http.StatusBadRequest, ErrorResponse{Error: APIError{
			Code:    "invalid_argument",
			Message: ve.Error(),
			Fields:  fields,
		}}
	}

	switch {
	case stderrors.Is(err, apiclient.ErrInvalidCredentials):
		return resp(http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
	case stderrors.Is(err, apiclient.ErrSessionExpired):
		return resp(http.StatusUnauthorized, "session_expired", "session expired, please log in again")
	case stderrors.Is(err, session.ErrNotAuthenticated):
		return resp(http.StatusUnauthorized, "unauthenticated", "unauthenticated")
	case stderrors.Is(err, ErrInvalidBody):
		return resp(http.StatusBadRequest, "invalid_argument", "invalid argument")
	case stderrors.Is(err, ErrInvalidPath):
		return resp(http.StatusBadRequest, "invalid_path", "invalid path")
	case stderrors.Is(err, ErrRateLimited):
		return resp(http.StatusTooManyRequests, "resource_exhausted", "too many requests")
	case stderrors.Is(err, ErrTooLarge):
		return resp(http.StatusRequestEntityTooLarge, "too_large", "request entity too large")
	case stderrors.Is(err, context.Canceled):
		return resp(StatusClientClosedRequest, "canceled", "canceled")
	case stderrors.Is(err, context.DeadlineExceeded):
		return resp(http.StatusGatewayTimeout, "deadline_exceeded", "deadline exceeded")
	case stderrors.Is(err, apiclient.ErrNetwork), stderrors.Is(err, apiclient.ErrMalformedResponse):
		return resp(http.StatusBadGateway, "bad_gateway", "upstream api unavailable")
	}

	var apiErr *apiclient.APIError
	if stderrors.As(err, &apiErr) {
		if apiErr.Status >= 500 {
			return resp(http.StatusBadGateway, "bad_gateway", "upstream api unavailable")
		}

		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.Status)
		}

		return resp(apiErr.Status, apiErr.Code, msg)
	}

	return internal()
}

// WriteError — хелпер для HTTP-хендлеров.
// Пишет корректный статус/тело, добавляет request_id из заголовка, если он есть.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := ToHTTP(err)

	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		body.Error.RequestID = rid
	}

	if status == http.StatusTooManyRequests && w.Header().Get("Retry-After") == "" {
		w.Header().Set("Retry-After", "1")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func resp(status int, code, msg string) (int, ErrorResponse) {
	return status, ErrorResponse{Error: APIError{Code: code, Message: msg}}
}

func internal() (int, ErrorResponse) {
	return resp(http.StatusInternalServerError, "internal", "internal error")
}
