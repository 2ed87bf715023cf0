package apiclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrUnauthenticated — API ответил 401, и обновить токен не удалось
	// (refresh-токена нет) или повторный запрос снова получил 401.
	// Вызывающей стороне следует отправить пользователя на логин.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrSessionExpired — обмен refresh-токена провалился: оба токена удалены,
	// выполнен редирект на логин. Отличается от простого отсутствия токена.
	ErrSessionExpired = errors.New("session expired")

	// ErrNetwork — транспортная ошибка (DNS, TCP, TLS, таймаут клиента).
	ErrNetwork = errors.New("network error")

	// ErrInvalidCredentials — API отверг пару e-mail/пароль при логине.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrMalformedResponse — 2xx-ответ API не соответствует контракту.
	ErrMalformedResponse = errors.New("malformed api response")

	// errNoRefreshToken — внутренний сигнал координатора: обновлять нечем.
	errNoRefreshToken = errors.New("no refresh token")
)

// maxErrorBody — ограничение на чтение тела ошибки.
const maxErrorBody = 64 << 10

// APIError — не-2xx ответ API, не являющийся ошибкой валидации.
type APIError struct {
	Status  int
	Code    string
	Message string
	Body    []byte
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
	}

	return fmt.Sprintf("api error %d", e.Status)
}

// Is позволяет проверять 401 через errors.Is(err, ErrUnauthenticated).
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthenticated && e.Status == http.StatusUnauthorized
}

// FieldError — сообщения об ошибках одного поля.
type FieldError struct {
	Field    string
	Messages []string
}

// ValidationError — API (или локальная проверка) отверг поля формы.
// Порядок Fields совпадает с порядком в ответе API: первая ошибка «побеждает».
type ValidationError struct {
	Status int
	Fields []FieldError
}

// NewValidationError создаёт ошибку валидации с одним сообщением.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Status: http.StatusBadRequest,
		Fields: []FieldError{{Field: field, Messages: []string{message}}},
	}
}

func (e *ValidationError) Error() string {
	if msg := e.First(); msg != "" {
		return msg
	}

	return "validation failed"
}

// First возвращает первое сообщение (first-error-wins).
func (e *ValidationError) First() string {
	for _, f := range e.Fields {
		for _, m := range f.Messages {
			if m != "" {
				return m
			}
		}
	}

	return ""
}

// Map возвращает сообщения по полям.
func (e *ValidationError) Map() map[string][]string {
	out := make(map[string][]string, len(e.Fields))
	for _, f := range e.Fields {
		out[f.Field] = append(out[f.Field], f.Messages...)
	}

	return out
}

// DecodeError превращает не-2xx ответ в типизированную ошибку:
//   - 400 с телом-объектом полей → *ValidationError;
//   - прочее → *APIError (401 матчится с ErrUnauthenticated).
//
// Тело ответа читается (до maxErrorBody), но не закрывается.
func DecodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode == http.StatusBadRequest {
		if fields, err := orderedFields(body); err == nil && len(fields) > 0 {
			return &ValidationError{Status: resp.StatusCode, Fields: fields}
		}
	}

	apiErr := &APIError{
		Status: resp.StatusCode,
		Code:   codeFromStatus(resp.StatusCode),
		Body:   body,
	}

	if fields, err := orderedFields(body); err == nil {
		apiErr.Message = (&ValidationError{Fields: fields}).First()
	}

	return apiErr
}

func codeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_argument"
	case http.StatusUnauthorized:
		return "unauthenticated"
	case http.StatusForbidden:
		return "permission_denied"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "already_exists"
	case http.StatusRequestEntityTooLarge:
		return "too_large"
	case http.StatusTooManyRequests:
		return "resource_exhausted"
	default:
		if status >= 500 {
			return "unavailable"
		}
		return "unknown"
	}
}

// orderedFields разбирает JSON-объект ошибок с сохранением порядка ключей.
// Значения: строка, массив строк, вложенный объект (ключи склеиваются через '.'),
// массив объектов.
func orderedFields(body []byte) ([]FieldError, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return nil, errors.New("not an object")
	}

	var out []FieldError
	if err := walkObject(json.NewDecoder(bytes.NewReader(body)), "", &out); err != nil {
		return nil, err
	}

	return out, nil
}

func walkObject(dec *json.Decoder, prefix string, out *[]FieldError) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("expected object")
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}

		key, _ := keyTok.(string)
		if prefix != "" {
			key = prefix + "." + key
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}

		if err := collect(raw, key, out); err != nil {
			return err
		}
	}

	_, err = dec.Token() // '}'
	return err
}

func collect(raw json.RawMessage, key string, out *[]FieldError) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}

	switch raw[0] {
	case '{':
		return walkObject(json.NewDecoder(bytes.NewReader(raw)), key, out)
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return err
		}

		var msgs []string
		for _, item := range items {
			item = bytes.TrimSpace(item)
			if len(item) > 0 && item[0] == '{' {
				if err := walkObject(json.NewDecoder(bytes.NewReader(item)), key, out); err != nil {
					return err
				}
				continue
			}
			msgs = append(msgs, scalar(item))
		}

		if len(msgs) > 0 {
			*out = append(*out, FieldError{Field: key, Messages: msgs})
		}
		return nil
	default:
		*out = append(*out, FieldError{Field: key, Messages: []string{scalar(raw)}})
		return nil
	}
}

func scalar(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	return strings.TrimSpace(string(raw))
}
