// session — фасад сессии пользователя: логин, регистрация, выход,
// получение текущего пользователя и операции профиля.
//
// Основные аспекты:
//   - Session — явный объект (New → Init → ... → Close), глобального
//     синглтона нет; экземпляр безопасен для конкурентного использования.
//   - Токены хранит только tokenstore.Store; Session владеет только
//     состоянием в памяти (текущий пользователь и признак загрузки).
//   - Пользователь заменяется целиком (RefreshUser, UpdateProfile) или
//     сбрасывается в nil; частичных мутаций нет.
//   - Сетевые ошибки в RefreshUser не отличаются от ошибок авторизации:
//     любой провал получения профиля закрывает сессию.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/pribylovaa/hackathon-site/internal/apiclient"
	"github.com/pribylovaa/hackathon-site/internal/models"
	"github.com/pribylovaa/hackathon-site/internal/tokenstore"
	logctx "github.com/pribylovaa/hackathon-site/pkg/log"
)

// Эндпоинты API, которые использует фасад.
const (
	pathLogin          = "/auth/login/"
	pathRegister       = "/auth/register/"
	pathLogout         = "/auth/logout/"
	pathMe             = "/auth/me/"
	pathProfile        = "/auth/profile/"
	pathProfilePass    = "/auth/profile/password/"
	pathAvatar         = "/auth/avatar/"
	avatarField        = "avatar"
	defaultAccessTTL   = 24 * time.Hour
	defaultRefreshTTL  = 7 * 24 * time.Hour
	defaultRevokeAfter = 5 * time.Second
)

var (
	// ErrClosed — операция над закрытой сессией.
	// Транспорт: HTTP 500 (ошибка программиста).
	ErrClosed = errors.New("session closed")

	// ErrNotAuthenticated — операция требует пользователя, а сессии нет
	// (нет access-токена). Транспорт: HTTP 401.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// Options — параметры фасада.
type Options struct {
	// AccessTTL — срок жизни access-токена в хранилище (≈ 1 день).
	AccessTTL time.Duration
	// RefreshTTL — срок жизни refresh-токена в хранилище (≈ 7 дней).
	RefreshTTL time.Duration
	// RevokeOnLogout — перед локальным выходом отправить refresh-токен
	// на /auth/logout/ (best-effort).
	RevokeOnLogout bool
	// RevokeTimeout — дедлайн запроса отзыва.
	RevokeTimeout time.Duration
}

// Session — фасад сессии одного пользователя.
type Session struct {
	client *apiclient.Client
	store  tokenstore.Store
	opts   Options

	initOnce sync.Once
	initErr  error

	mu      sync.RWMutex
	user    *models.UserProfile
	loading bool
	closed  bool
	// gen увеличивается при каждом выходе: ответы, начатые до выхода,
	// не восстанавливают пользователя.
	gen uint64
}

// New создаёт сессию поверх клиента API и хранилища токенов.
// Клиент переключается на store через apiclient.Client.With. Его
// редиректор оборачивается: провал refresh на любом запросе сессии
// (профиль, аватар, Client().Do) сбрасывает пользователя.
func New(client *apiclient.Client, store tokenstore.Store, opts Options) *Session {
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = defaultAccessTTL
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = defaultRefreshTTL
	}
	if opts.RevokeTimeout <= 0 {
		opts.RevokeTimeout = defaultRevokeAfter
	}

	s := &Session{
		store: store,
		opts:  opts,
	}

	parent := client.Redirector()
	s.client = client.With(store).WithRedirector(apiclient.RedirectFunc(func(ctx context.Context) {
		s.dropUser()
		if parent != nil {
			parent.RedirectToLogin(ctx)
		}
	}))

	return s
}

// Client возвращает клиент API, привязанный к хранилищу сессии.
func (s *Session) Client() *apiclient.Client { return s.client }

// State возвращает снимок состояния (копию пользователя).
func (s *Session) State() models.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return models.SessionState{User: s.user.Clone(), Loading: s.loading}
}

// User возвращает копию текущего пользователя или nil.
func (s *Session) User() *models.UserProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.user.Clone()
}

// Authenticated сообщает, известен ли текущий пользователь.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.user != nil
}

// Close сбрасывает состояние в памяти. Токены в хранилище не трогает.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.user = nil
	s.loading = false
	s.gen++

	return nil
}

func (s *Session) checkOpen() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrClosed
	}

	return s.gen, nil
}

// setUser заменяет пользователя, если с момента gen не было выхода.
func (s *Session) setUser(gen uint64, u *models.UserProfile) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen || s.closed {
		return false
	}

	s.user = u.Clone()
	return true
}

// dropUser сбрасывает пользователя после того, как диспетчер стёр токены.
// Увеличивает gen: ответы, начатые до провала, пользователя не вернут.
func (s *Session) dropUser() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.user = nil
	s.gen++
}

func (s *Session) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

// teardown удаляет оба токена и сбрасывает пользователя.
func (s *Session) teardown(ctx context.Context, gen uint64) {
	if err := s.store.Clear(context.WithoutCancel(ctx), tokenstore.Kinds...); err != nil {
		logctx.From(ctx).Error("session_clear_failed", slog.String("err", err.Error()))
	}

	s.setUser(gen, nil)
}
