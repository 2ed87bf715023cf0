package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/hackathon-site/internal/apiclient"
	"github.com/pribylovaa/hackathon-site/internal/apitest"
	"github.com/pribylovaa/hackathon-site/internal/models"
	"github.com/pribylovaa/hackathon-site/internal/tokenstore"
	"github.com/pribylovaa/hackathon-site/internal/tokenstore/memory"
	"github.com/pribylovaa/hackathon-site/mocks"
)

type redirects struct{ n atomic.Int32 }

func (r *redirects) RedirectToLogin(context.Context) { r.n.Add(1) }

func newClient(t *testing.T, baseURL string, redirect apiclient.LoginRedirector) *apiclient.Client {
	t.Helper()

	c, err := apiclient.New(memory.New(), apiclient.Options{
		BaseURL:    baseURL,
		Timeout:    5 * time.Second,
		Redirector: redirect,
	})
	require.NoError(t, err)

	return c
}

func newSession(t *testing.T, api *apitest.Server, opts Options) (*Session, *memory.Store, *redirects) {
	t.Helper()

	r := &redirects{}
	store := memory.New()

	return New(newClient(t, api.BaseURL(), r), store, opts), store, r
}

func token(t *testing.T, store tokenstore.Store, kind tokenstore.Kind) (string, bool) {
	t.Helper()

	v, ok, err := store.Get(context.Background(), kind)
	require.NoError(t, err)

	return v, ok
}

func seedPair(t *testing.T, store tokenstore.Store, pair models.TokenPair) {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, tokenstore.Access, pair.Access, time.Hour))
	require.NoError(t, store.Set(ctx, tokenstore.Refresh, pair.Refresh, time.Hour))
}

func TestLogin_StoresPairAndLoadsUser(t *testing.T) {
	t.Parallel()

	api := apitest.New(t)
	api.AddUser("ann@example.com", "secret123", "ann")

	s, store, _ := newSession(t, api, Options{})

	require.NoError(t, s.Login(context.Background(), " ann@example.com ", "secret123"))

	access, ok := token(t, store, tokenstore.Access)
	require.True(t, ok)
	require.Equal(t, "a1", access)

	refresh, ok := token(t, store, tokenstore.Refresh)
	require.True(t, ok)
	require.Equal(t, "r1", refresh)

	st := s.State()
	require.False(t, st.Loading)
	require.NotNil(t, st.User)
	require.Equal(t, "ann", st.User.Username)
	require.True(t, s.Authenticated())

	// Логин уходит без bearer-токена, me — с ним.
	require.Empty(t, api.CallsTo("/auth/login/")[0].Authorization)
	require.Equal(t, "Bearer a1", api.CallsTo("/auth/me/")[0].Authorization)
}

func TestLogin_TTLs(t *testing.T) {
	t.Parallel()

	api := apitest.New(t)
	api.AddUser("ann@example.com", "secret123", "ann")

	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)

	gomock.InOrder(
		store.EXPECT().Set(gomock.Any(), tokenstore.Access, "a1", 24*time.Hour).Return(nil),
		store.EXPECT().Set(gomock.Any(), tokenstore.Refresh, "r1", 7*24*time.Hour).Return(nil),
	)
	store.EXPECT().Get(gomock.Any(), tokenstore.Access).Return("a1", true, nil).AnyTimes()

	s := New(newClient(t, api.BaseURL(), nil), store, Options{})
	require.NoError(t, s.Login(context.Background(), "ann@example.com", "secret123"))
	require.NotNil(t, s.User())
}

func TestLogin_InvalidCredentials(t *testing.T) {
	t.Parallel()

	api := apitest.New(t)
	api.AddUser("ann@example.com", "secret123", "ann")

	s, store, r := newSession(t, api, Options{})

	err := s.Login(context.Background(), "ann@example.com", "wrong")
	require.ErrorIs(t, err, apiclient.ErrInvalidCredentials)

	_, ok := token(t, store, tokenstore.Access)
	require.False(t, ok)
	require.Nil(t, s.User())
	require.Zero(t, api.RefreshCalls.Load())
	require.Zero(t, r.n.Load())
}

func TestLogin_LocalValidation(t *testing.T) {
	t.Parallel()

	api := apitest.New(t)
	s, _, _ := newSession(t, api, Options{})

	var ve *apiclient.ValidationError

	err := s.Login(context.Background(), "  ", "x")
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "email", ve.Fields[0].Field)

	err = s.Login(context.Background(), "a@b.c", "")
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "password", ve.Fields[0].Field)

	require.Empty(t, api.Calls())
}

func TestLogin_StoreFailure(t *testing.T) {
	t.Parallel()

	api := apitest.New(t)
	api.AddUser("ann@example.com", "secret123", "ann")

	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	store.EXPECT().Set(gomock.Any(), tokenstore.Access, gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

	s := New(newClient(t, api.BaseURL(), nil), store, Options{})

	err := s.Login(context.Background(), "ann@example.com", "secret123")
	require.ErrorContains(t, err, "disk full")
	require.Nil(t, s.User())
}

func TestRegister_PasswordMismatchIsLocal(t *testing.T) {
	t.Parallel()

	api := apitest.New(t)
	s, _, _ := newSession(t, api, Options{})

	err := s.Register(context.Background(), models.RegisterInput{
		Email:           "bob@example.com",
		Username:        "bob",
		Password:        "password1",
		PasswordConfirm: "password2",
	})

	var ve *apiclient.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "Passwords do not match", ve.Error())
	require.Empty(t, api.Calls())
}

func TestRegister_APIValidationFirstErrorWins(t *testing.T) {
	t.Parallel()

	api := apitest.New(t)
	api.AddUser("bob@example.com", "password1", "bob")

	s, store, _ := newSession(t, api, Options{})

	err := s.Register(context.Background(), models.RegisterInput{
		Email:           "bob@example.com",
		Username:        "bob2",
		Password:        "short",
		PasswordConfirm: "short",
	})

	var ve *apiclient.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "user with this email already exists.", ve.Error())
	require.Len(t, ve.Fields, 2)

	_, ok := token(t, store, tokenstore.Refresh)
	require.False(t, ok)
}

func TestRegister_Success(t *testing.T) {
	t.Parallel()

	api := apitest.New(t)
	s, store, _ := newSession(t, api, Options{})

	err := s.Register(context.Background(), models.RegisterInput{
		Email:           "bob@example.com",
		Username:        "bob",
		Password:        "password1",
		PasswordConfirm: "password1",
		FullName:        "Bob B",
	})
	require.NoError(t, err)

	refresh, ok := token(t, store, tokenstore.Refresh)
	require.True(t, ok)
	require.Equal(t, "r1", refresh)

	u := s.User()
	require.NotNil(t, u)
	require.Equal(t, "Bob B", u.FullName)
}

func TestRefreshUser_NoAccessTokenKeepsUser(t *testing.T) {
	t.Parallel()

	api := apitest.New(t)
	s, _, _ := newSession(t, api, Options{})

	require.NoError(t, s.RefreshUser(context.Background()))
	require.Nil(t, s.User())
	require.Empty(t, api.Calls())
}

func TestRefreshUser_ExpiredAccessRefreshes(t *testing.T) {
	t.Parallel()

	api := apitest.New(t)
	api.AddUser("ann@example.com", "secret123", "ann")
	pair := api.Issue("ann@example.com")
	api.ExpireAccess(pair.Access)

	s, store, r := newSession(t, api, Options{})
	seedPair(t, store, pair)

	require.NoError(t, s.RefreshUser(context.Background()))
	require.Equal(t, "ann", s.User().Username)
	require.EqualValues(t, 1, api.RefreshCalls.Load())
	require.Zero(t, r.n.Load())

	access, _ := token(t, store, tokenstore.Access)
	require.NotEqual(t, pair.Access, access)
}

func TestRefreshUser_RefreshFailureTearsDown(t *testing.T) {
	t.Parallel()

	api := apitest.New(t)
	api.AddUser("ann@example.com", "secret123", "ann")

	s, store, r := newSession(t, api, Options{})
	require.NoError(t, s.Login(context.Background(), "ann@example.com", "secret123"))
	require.NotNil(t, s.User())

	access, _ := token(t, store, tokenstore.Access)
	refresh, _ := token(t, store, tokenstore.Refresh)
	api.ExpireAccess(access)
	api.RevokeRefresh(refresh)

	err := s.RefreshUser(context.Background())
	require.ErrorIs(t, err, apiclient.ErrSessionExpired)

	require.Nil(t, s.User())
	_, ok := token(t, store, tokenstore.Access)
	require.False(t, ok)
	_, ok = token(t, store, tokenstore.Refresh)
	require.False(t, ok)
	require.EqualValues(t, 1, r.n.Load())
}

func TestRefreshUser_NetworkFailureTearsDown(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	store := memory.New()
	seedPair(t, store, models.TokenPair{Access: "a1", Refresh: "r1"})

	s := New(newClient(t, base, nil), store, Options{})

	err := s.RefreshUser(context.Background())
	require.ErrorIs(t, err, apiclient.ErrNetwork)

	_, ok := token(t, store, tokenstore.Refresh)
	require.False(t, ok)
	require.Nil(t, s.User())
}

func TestRefreshUser_ServerErrorTearsDown(t *testing.T) {
	t.Parallel()

	api := apitest.New(t)
	api.AddUser("ann@example.com", "secret123", "ann")

	s, store, _ := newSession(t, api, Options{})
	require.NoError(t, s.Login(context.Background(), "ann@example.com", "secret123"))

	api.MeStatus.Store(http.StatusServiceUnavailable)

	err := s.RefreshUser(context.Background())

	var apiErr *apiclient.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	require.Nil(t, s.User())

	_, ok := token(t, store, tokenstore.Access)
	require.False(t, ok)
}

func TestRefreshUser_CancelledKeepsSession(t *testing.T) {
	t.Parallel()

	api := apitest.New(t)
	api.AddUser("ann@example.com", "secret123", "ann")

	s, store, _ := newSession(t, api, Options{})
	require.NoError(t, s.Login(context.Background(), "ann@example.com", "secret123"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.RefreshUser(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, s.User())

	_, ok := token(t, store, tokenstore.Refresh)
	require.True(t, ok)
}

func TestRefreshUser_StoreReadFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	store.EXPECT().Get(gomock.Any(), tokenstore.Access).Return("", false, errors.New("redis down"))
	store.EXPECT().Clear(gomock.Any(), tokenstore.Access, tokenstore.Refresh).Return(nil)

	s := New(newClient(t, "http://127.0.0.1:1", nil), store, Options{})

	err := s.RefreshUser(context.Background())
	require.ErrorContains(t, err, "redis down")
	require.Nil(t, s.User())
}

func TestRefreshUser_ReplacesWholesale(t *testing.T) {
	t.Parallel()

	api := apitest.New(t)
	api.AddUser("ann@example.com", "secret123", "ann")

	s, _, _ := newSession(t, api, Options{})
	require.NoError(t, s.Login(context.Background(), "ann@example.com", "secret123"))

	before := s.User()
	before.Username = "mutated by caller"

	bio := "new bio"
	_, err := s.UpdateProfile(context.Background(), models.ProfileUpdate{Bio: &bio})
	require.NoError(t, err)

	require.NoError(t, s.RefreshUser(context.Background()))

	after := s.User()
	require.Equal(t, "ann", after.Username)
	require.Equal(t, "new bio", after.Bio)
	require.Equal(t, "2024-02-01T00:00:00Z", after.UpdatedAt)
}

func TestLogout_ClearsAndIsIdempotent(t *testing.T) {
	t.Parallel()

	api := apitest.New(t)
	api.AddUser("ann@example.com", "secret123", "ann")

	s, store, _ := newSession(t, api, Options{})
	require.NoError(t, s.Login(context.Background(), "ann@example.com", "secret123"))
	refresh, _ := token(t, store, tokenstore.Refresh)

	require.NoError(t, s.Logout(context.Background()))
	require.NoError(t, s.Logout(context.Background()))

	require.Nil(t, s.User())
	_, ok := token(t, store, tokenstore.Access)
	require.False(t, ok)
	_, ok = token(t, store, tokenstore.Refresh)
	require.False(t, ok)

	// Выход локальный: сервер не уведомлялся, refresh всё ещё действителен.
	require.Zero(t, api.LogoutCalls.Load())
	require.True(t, api.RefreshValid(refresh))
}

func TestLogout_RevokeOnLogout(t *testing.T) {
	t.Parallel()

	api := apitest.New(t)
	api.AddUser("ann@example.com", "secret123", "ann")

	s, store, _ := newSession(t, api, Options{RevokeOnLogout: true})
	require.NoError(t, s.Login(context.Background(), "ann@example.com", "secret123"))
	refresh, _ := token(t, store, tokenstore.Refresh)

	require.NoError(t, s.Logout(context.Background()))
	require.EqualValues(t, 1, api.LogoutCalls.Load())
	require.False(t, api.RefreshValid(refresh))

	// Повторный выход: токена уже нет, запрос не отправляется.
	require.NoError(t, s.Logout(context.Background()))
	require.EqualValues(t, 1, api.LogoutCalls.Load())
}

func TestLogout_RevokeFailureIsIgnored(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	store := memory.New()
	seedPair(t, store, models.TokenPair{Access: "a1", Refresh: "r1"})

	s := New(newClient(t, srv.URL, nil), store, Options{RevokeOnLogout: true})
	require.NoError(t, s.Logout(context.Background()))

	_, ok := token(t, store, tokenstore.Refresh)
	require.False(t, ok)
}

func TestLogout_StoreFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	store.EXPECT().Clear(gomock.Any(), tokenstore.Access, tokenstore.Refresh).Return(errors.New("boom"))

	s := New(newClient(t, "http://127.0.0.1:1", nil), store, Options{})
	require.ErrorContains(t, s.Logout(context.Background()), "boom")
}

// slowMe — API, у которого /auth/me/ отвечает только после release.
type slowMe struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
	mu      sync.Mutex
	auth    []string
}

func newSlowMe() *slowMe {
	return &slowMe{entered: make(chan struct{}), release: make(chan struct{})}
}

func (s *slowMe) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.auth = append(s.auth, r.Header.Get("Authorization"))
	s.mu.Unlock()

	if strings.HasSuffix(r.URL.Path, "/auth/me/") {
		s.once.Do(func() { close(s.entered) })
		<-s.release
		_ = json.NewEncoder(w).Encode(models.UserProfile{ID: 1, Username: "ann"})
		return
	}

	w.WriteHeader(http.StatusUnauthorized)
}

func TestLogout_DuringInFlightRefreshUser(t *testing.T) {
	t.Parallel()

	api := newSlowMe()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	store := memory.New()
	seedPair(t, store, models.TokenPair{Access: "a1", Refresh: "r1"})
	s := New(newClient(t, srv.URL, nil), store, Options{})

	done := make(chan error, 1)
	go func() { done <- s.RefreshUser(context.Background()) }()

	<-api.entered
	require.NoError(t, s.Logout(context.Background()))
	close(api.release)

	// Запрос в полёте завершается сам по себе, но не восстанавливает пользователя.
	require.NoError(t, <-done)
	require.Nil(t, s.User())

	// Запросы после выхода уходят без токена.
	resp, err := s.Client().Do(context.Background(), apiclient.NewRequest(http.MethodGet, "/events/"))
	require.NoError(t, err)
	resp.Body.Close()

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Equal(t, "Bearer a1", api.auth[0])
	require.Empty(t, api.auth[len(api.auth)-1])
}

func TestInit_LoadingOnlyDuringFirstPass(t *testing.T) {
	t.Parallel()

	api := newSlowMe()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	store := memory.New()
	seedPair(t, store, models.TokenPair{Access: "a1", Refresh: "r1"})
	s := New(newClient(t, srv.URL, nil), store, Options{})

	require.False(t, s.State().Loading)

	done := make(chan error, 1)
	go func() { done <- s.Init(context.Background()) }()

	<-api.entered
	require.True(t, s.State().Loading)
	close(api.release)

	require.NoError(t, <-done)
	st := s.State()
	require.False(t, st.Loading)
	require.Equal(t, "ann", st.User.Username)

	// Повторный Init ничего не делает.
	require.NoError(t, s.Init(context.Background()))

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Len(t, api.auth, 1)
}

func TestInit_FailureStillClearsLoading(t *testing.T) {
	t.Parallel()

	api := apitest.New(t)
	api.MeStatus.Store(http.StatusInternalServerError)

	s, store, _ := newSession(t, api, Options{})
	seedPair(t, store, models.TokenPair{Access: "a1", Refresh: "r1"})

	require.Error(t, s.Init(context.Background()))

	st := s.State()
	require.False(t, st.Loading)
	require.Nil(t, st.User)
}

func TestClose_RejectsFurtherUse(t *testing.T) {
	t.Parallel()

	api := apitest.New(t)
	api.AddUser("ann@example.com", "secret123", "ann")

	s, store, _ := newSession(t, api, Options{})
	require.NoError(t, s.Login(context.Background(), "ann@example.com", "secret123"))
	require.NoError(t, s.Close())

	require.Nil(t, s.User())
	require.ErrorIs(t, s.Login(context.Background(), "ann@example.com", "secret123"), ErrClosed)
	require.ErrorIs(t, s.RefreshUser(context.Background()), ErrClosed)
	require.ErrorIs(t, s.Logout(context.Background()), ErrClosed)

	// Close не трогает хранилище.
	_, ok := token(t, store, tokenstore.Refresh)
	require.True(t, ok)
}
