package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/pribylovaa/hackathon-site/internal/apiclient"
	apierrors "github.com/pribylovaa/hackathon-site/internal/errors"
	"github.com/pribylovaa/hackathon-site/internal/locale"
	"github.com/pribylovaa/hackathon-site/internal/session"
	"github.com/pribylovaa/hackathon-site/internal/tokenstore"
	logctx "github.com/pribylovaa/hackathon-site/pkg/log"
)

// HeaderLoginRedirect — куда фронту отправить пользователя после
// истечения сессии.
const HeaderLoginRedirect = "X-Login-Redirect"

const (
	maxJSONBody     = 1 << 20
	defaultProxyMax = 10 << 20
	defaultAvatar   = 5 << 20
)

// Options — зависимости хендлеров.
type Options struct {
	Stores  StoreFactory
	Locales *locale.Resolver
	Session session.Options
	// AvatarMaxBytes — лимит размера загружаемого аватара.
	AvatarMaxBytes int64
	// ProxyMaxBytes — лимит тела запроса, проксируемого в API.
	ProxyMaxBytes int64
}

// Handlers агрегирует зависимости (диспетчер API, хранилища, локали).
type Handlers struct {
	api  *apiclient.Client
	opts Options
}

func New(api *apiclient.Client, opts Options) *Handlers {
	if opts.AvatarMaxBytes <= 0 {
		opts.AvatarMaxBytes = defaultAvatar
	}
	if opts.ProxyMaxBytes <= 0 {
		opts.ProxyMaxBytes = defaultProxyMax
	}

	return &Handlers{api: api, opts: opts}
}

// client возвращает диспетчер, привязанный к токенам этого запроса.
// При провале refresh он выставит X-Login-Redirect.
func (h *Handlers) client(w http.ResponseWriter, r *http.Request) (*apiclient.Client, tokenstore.Store, error) {
	store, err := h.opts.Stores.ForRequest(w, r)
	if err != nil {
		return nil, nil, err
	}

	return h.bind(w, r, store), store, nil
}

func (h *Handlers) bind(w http.ResponseWriter, r *http.Request, store tokenstore.Store) *apiclient.Client {
	target := h.loginPath(r)
	redirect := apiclient.RedirectFunc(func(context.Context) {
		w.Header().Set(HeaderLoginRedirect, target)
	})

	return h.api.With(store).WithRedirector(redirect)
}

// session собирает фасад сессии на время одного запроса.
func (h *Handlers) session(w http.ResponseWriter, r *http.Request) (*session.Session, error) {
	client, store, err := h.client(w, r)
	if err != nil {
		return nil, err
	}

	return session.New(client, store, h.opts.Session), nil
}

// freshSession — фасад поверх новой сессии браузера (логин, регистрация).
func (h *Handlers) freshSession(w http.ResponseWriter, r *http.Request) (*session.Session, error) {
	store, err := h.opts.Stores.Rotate(w, r)
	if err != nil {
		return nil, err
	}

	return session.New(h.bind(w, r, store), store, h.opts.Session), nil
}

func (h *Handlers) loginPath(r *http.Request) string {
	return h.opts.Locales.LoginPath(apiclient.Locale(r.Context()))
}

// fail пишет ошибку. Навигацию браузера после истечения сессии
// переводит на страницу логина (303).
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	log := logctx.From(r.Context())

	switch {
	case errors.Is(err, apiclient.ErrSessionExpired):
		if wantsHTML(r) {
			http.Redirect(w, r, h.loginPath(r), http.StatusSeeOther)
			return
		}
		w.Header().Set(HeaderLoginRedirect, h.loginPath(r))
	case errors.Is(err, session.ErrNotAuthenticated):
		w.Header().Set(HeaderLoginRedirect, h.loginPath(r))
	}

	status, _ := apierrors.ToHTTP(err)
	if status >= http.StatusInternalServerError {
		log.Error("request_failed", slog.String("err", err.Error()))
	} else {
		log.Debug("request_rejected", slog.Int("status", status), slog.String("err", err.Error()))
	}

	apierrors.WriteError(w, r, err)
}

// wantsHTML — запрос пришёл от навигации браузера, а не от fetch/XHR.
func wantsHTML(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && mt == "text/html" {
			return true
		}
	}

	return false
}

// writeJSON — единый ответ JSON с нужным Content-Type.
// Ошибки выводим через fail.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict — строгий JSON-декодер: запрещаем неизвестные поля.
func decodeStrict(w http.ResponseWriter, r *http.Request, value any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()

	if err := dec.Decode(value); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apierrors.ErrTooLarge
		}
		return apierrors.ErrInvalidBody
	}

	return nil
}
