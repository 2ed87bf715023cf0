package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/hackathon-site/internal/apiclient"
	apierrors "github.com/pribylovaa/hackathon-site/internal/errors"
	logctx "github.com/pribylovaa/hackathon-site/pkg/log"
)

// Заголовки запроса, которые уходят в API как есть.
// Authorization не пробрасываем: токен подставляет диспетчер.
var forwardRequestHeaders = []string{
	"Accept",
	"Content-Type",
	"If-None-Match",
	"If-Modified-Since",
}

// Hop-by-hop заголовки и Set-Cookie удалённого API браузеру не отдаём.
var dropResponseHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
	"Set-Cookie":          {},
	"Content-Length":      {},
}

// Proxy — /api/*: запрос браузера уходит в удалённый API через диспетчер
// (Bearer, refresh при 401), ответ отдаётся без изменений.
func (h *Handlers) Proxy(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")
	if !confined(path) {
		h.fail(w, r, apierrors.ErrInvalidPath)
		return
	}
	if path == "" {
		path = "/"
	} else if strings.HasSuffix(r.URL.Path, "/") && !strings.HasSuffix(path, "/") {
		path += "/"
	}

	var body []byte
	if r.Body != nil && r.Body != http.NoBody {
		var err error
		body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, h.opts.ProxyMaxBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				h.fail(w, r, apierrors.ErrTooLarge)
				return
			}
			h.fail(w, r, apierrors.ErrInvalidBody)
			return
		}
	}

	req := apiclient.NewRawRequest(r.Method, path, body, r.Header.Get("Content-Type"))
	req.Query = r.URL.Query()
	for _, name := range forwardRequestHeaders {
		if v := r.Header.Get(name); v != "" {
			req.Header.Set(name, v)
		}
	}

	client, _, err := h.client(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp, err := client.Do(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer resp.Body.Close()

	for name, values := range resp.Header {
		if _, drop := dropResponseHeaders[http.CanonicalHeaderKey(name)]; drop {
			continue
		}
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		logctx.From(r.Context()).Warn("proxy_copy_failed",
			slog.String("path", path),
			slog.String("err", err.Error()),
		)
	}
}

// confined — путь не содержит сегментов "." и ".." (в том числе
// percent-encoded), то есть не выходит из-под базового пути API.
func confined(path string) bool {
	decoded, err := url.PathUnescape(path)
	if err != nil {
		return false
	}

	for _, p := range []string{path, decoded} {
		for _, seg := range strings.Split(p, "/") {
			if seg == "." || seg == ".." {
				return false
			}
		}
	}

	return true
}
