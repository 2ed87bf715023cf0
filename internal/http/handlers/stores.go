package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/hackathon-site/internal/tokenstore"
	"github.com/pribylovaa/hackathon-site/internal/tokenstore/cookie"
	"github.com/pribylovaa/hackathon-site/internal/tokenstore/redis"
	logctx "github.com/pribylovaa/hackathon-site/pkg/log"
)

// StoreFactory выдаёт хранилище токенов браузера для конкретного запроса.
type StoreFactory interface {
	// ForRequest — хранилище текущей сессии браузера.
	ForRequest(w http.ResponseWriter, r *http.Request) (tokenstore.Store, error)
	// Rotate — хранилище новой сессии: вызывается перед записью токенов
	// логина/регистрации, чтобы id сессии, известный до входа, не стал
	// аутентифицированным.
	Rotate(w http.ResponseWriter, r *http.Request) (tokenstore.Store, error)
}

// CookieStores — токены лежат в HttpOnly cookie access_token/refresh_token.
type CookieStores struct {
	Cookies cookie.Options
}

func (f CookieStores) ForRequest(w http.ResponseWriter, r *http.Request) (tokenstore.Store, error) {
	return cookie.New(w, r, f.Cookies), nil
}

// Rotate для cookie не нужен: токены и есть сессия, логин перезаписывает оба.
func (f CookieStores) Rotate(w http.ResponseWriter, r *http.Request) (tokenstore.Store, error) {
	return f.ForRequest(w, r)
}

// RedisStores — токены лежат в Redis, браузер держит только id сессии.
// Id (UUID) выдаётся при первом обращении и заново при каждом входе.
type RedisStores struct {
	Backend *redis.Backend
	// CookieName — имя cookie с id сессии.
	CookieName string
	// TTL — срок жизни cookie с id сессии.
	TTL     time.Duration
	Cookies cookie.Options
}

func (f RedisStores) ForRequest(w http.ResponseWriter, r *http.Request) (tokenstore.Store, error) {
	const op = "handlers/RedisStores.ForRequest"

	sid, ok := f.current(r)
	if !ok {
		sid = f.issue(w, r)
	}

	store, err := f.Backend.Session(sid)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return store, nil
}

func (f RedisStores) Rotate(w http.ResponseWriter, r *http.Request) (tokenstore.Store, error) {
	const op = "handlers/RedisStores.Rotate"

	if old, ok := f.current(r); ok {
		// Старая сессия больше не используется; её токены стираем best-effort.
		if store, err := f.Backend.Session(old); err == nil {
			if err := store.Clear(r.Context()); err != nil {
				logctx.From(r.Context()).Warn("session_rotate_clear_failed", slog.String("err", err.Error()))
			}
		}
	}

	store, err := f.Backend.Session(f.issue(w, r))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return store, nil
}

// current — id сессии из cookie, если это корректный UUID.
func (f RedisStores) current(r *http.Request) (string, bool) {
	c, err := r.Cookie(f.CookieName)
	if err != nil {
		return "", false
	}
	if _, err := uuid.Parse(c.Value); err != nil {
		return "", false
	}

	return c.Value, true
}

// issue выдаёт новый id: Set-Cookie в ответ и подмена cookie во входящем
// запросе, чтобы последующие чтения в этом же запросе видели новый id.
func (f RedisStores) issue(w http.ResponseWriter, r *http.Request) string {
	sid := uuid.NewString()

	path := f.Cookies.Path
	if path == "" {
		path = "/"
	}
	sameSite := f.Cookies.SameSite
	if sameSite == 0 {
		sameSite = http.SameSiteLaxMode
	}

	http.SetCookie(w, &http.Cookie{
		Name:     f.CookieName,
		Value:    sid,
		Path:     path,
		Domain:   f.Cookies.Domain,
		MaxAge:   int(f.TTL / time.Second),
		Secure:   f.Cookies.Secure,
		HttpOnly: true,
		SameSite: sameSite,
	})

	replaceCookie(r, f.CookieName, sid)

	return sid
}

func replaceCookie(r *http.Request, name, value string) {
	kept := make([]string, 0, 4)
	for _, c := range r.Cookies() {
		if c.Name != name {
			kept = append(kept, c.String())
		}
	}
	kept = append(kept, (&http.Cookie{Name: name, Value: value}).String())

	r.Header.Set("Cookie", strings.Join(kept, "; "))
}
