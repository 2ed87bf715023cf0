// cookie — хранилище токенов поверх cookie одного HTTP-запроса браузера.
//
// Чтение идёт из cookie входящего запроса, запись — через Set-Cookie
// в ответ. Записи, сделанные в рамках запроса (например, новый access после
// refresh), видны последующим чтениям этого же запроса.
// Cookie выставляются HttpOnly: JS страницы токены не видит.
//
// Хранилище живёт ровно один запрос; все записи должны произойти до того,
// как хендлер начнёт писать тело ответа.
package cookie

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/pribylovaa/hackathon-site/internal/tokenstore"
)

// Options — атрибуты выставляемых cookie.
type Options struct {
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

func (o Options) withDefaults() Options {
	if o.Path == "" {
		o.Path = "/"
	}
	if o.SameSite == 0 {
		o.SameSite = http.SameSiteLaxMode
	}

	return o
}

// Store — cookie-хранилище одного запроса.
type Store struct {
	w    http.ResponseWriter
	r    *http.Request
	opts Options

	mu      sync.Mutex
	pending map[tokenstore.Kind]*string // nil — токен удалён в этом запросе
}

// New создаёт хранилище для пары запрос/ответ.
func New(w http.ResponseWriter, r *http.Request, opts Options) *Store {
	return &Store{
		w:       w,
		r:       r,
		opts:    opts.withDefaults(),
		pending: make(map[tokenstore.Kind]*string, len(tokenstore.Kinds)),
	}
}

func (s *Store) Get(_ context.Context, kind tokenstore.Kind) (string, bool, error) {
	if err := kind.Validate(); err != nil {
		return "", false, err
	}

	s.mu.Lock()
	v, overridden := s.pending[kind]
	s.mu.Unlock()

	if overridden {
		if v == nil {
			return "", false, nil
		}

		return *v, true, nil
	}

	c, err := s.r.Cookie(kind.Name())
	if err != nil || c.Value == "" {
		return "", false, nil
	}

	return c.Value, true, nil
}

func (s *Store) Set(_ context.Context, kind tokenstore.Kind, value string, ttl time.Duration) error {
	if err := kind.Validate(); err != nil {
		return err
	}

	c := s.cookie(kind, value)
	if ttl > 0 {
		c.MaxAge = int(ttl / time.Second)
		c.Expires = time.Now().Add(ttl).UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	http.SetCookie(s.w, c)
	s.pending[kind] = &value

	return nil
}

func (s *Store) Clear(_ context.Context, kinds ...tokenstore.Kind) error {
	kinds, err := tokenstore.Resolve(kinds)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range kinds {
		c := s.cookie(k, "")
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0).UTC()

		http.SetCookie(s.w, c)
		s.pending[k] = nil
	}

	return nil
}

func (s *Store) cookie(kind tokenstore.Kind, value string) *http.Cookie {
	return &http.Cookie{
		Name:     kind.Name(),
		Value:    value,
		Path:     s.opts.Path,
		Domain:   s.opts.Domain,
		Secure:   s.opts.Secure,
		HttpOnly: true,
		SameSite: s.opts.SameSite,
	}
}

// Проверка выполнения контракта верхнего уровня.
var _ tokenstore.Store = (*Store)(nil)
