package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
)

// Request — исходящий запрос к API.
// Тело буферизуется целиком, чтобы запрос можно было повторить после refresh.
type Request struct {
	Method string
	// Path — путь относительно базового URL API, например "/auth/me/".
	Path   string
	Query  url.Values
	Header http.Header

	// NoRefresh — 401 на этот запрос не запускает обновление токена
	// (логин, регистрация, сам refresh).
	NoRefresh bool
	// Anonymous — не прикладывать access-токен.
	Anonymous bool

	body []byte
}

// NewRequest создаёт запрос без тела.
func NewRequest(method, path string) *Request {
	return &Request{
		Method: method,
		Path:   path,
		Header: make(http.Header),
	}
}

// NewRawRequest создаёт запрос с готовым телом.
func NewRawRequest(method, path string, body []byte, contentType string) *Request {
	r := NewRequest(method, path)
	r.body = body
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}

	return r
}

// NewJSONRequest создаёт запрос с JSON-телом.
func NewJSONRequest(method, path string, v any) (*Request, error) {
	const op = "apiclient/NewJSONRequest"

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return NewRawRequest(method, path, data, "application/json"), nil
}

// NewMultipartRequest создаёт multipart/form-data запрос с одним файлом
// в поле field и дополнительными текстовыми полями.
func NewMultipartRequest(method, path, field, filename string, file io.Reader, fields map[string]string) (*Request, error) {
	const op = "apiclient/NewMultipartRequest"

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return NewRawRequest(method, path, buf.Bytes(), mw.FormDataContentType()), nil
}

// Body возвращает копию тела запроса.
func (r *Request) Body() []byte {
	return bytes.Clone(r.body)
}

func (r *Request) bodyReader() io.Reader {
	if len(r.body) == 0 {
		return http.NoBody
	}

	return bytes.NewReader(r.body)
}
