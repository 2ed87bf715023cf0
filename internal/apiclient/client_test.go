package apiclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/hackathon-site/internal/apitest"
	"github.com/pribylovaa/hackathon-site/internal/tokenstore"
	"github.com/pribylovaa/hackathon-site/internal/tokenstore/memory"
)

// newTestClient — клиент поверх фейкового API и in-memory хранилища.
func newTestClient(t *testing.T, api *apitest.Server, opts Options) (*Client, *memory.Store) {
	t.Helper()

	store := memory.New()
	opts.BaseURL = api.BaseURL()
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}

	c, err := New(store, opts)
	require.NoError(t, err)

	return c, store
}

func seed(t *testing.T, store tokenstore.Store, access, refresh string) {
	t.Helper()

	ctx := context.Background()
	if access != "" {
		require.NoError(t, store.Set(ctx, tokenstore.Access, access, time.Hour))
	}
	if refresh != "" {
		require.NoError(t, store.Set(ctx, tokenstore.Refresh, refresh, time.Hour))
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Options{BaseURL: "http://x"})
	require.Error(t, err)

	_, err = New(memory.New(), Options{BaseURL: "ftp://x"})
	require.Error(t, err)

	c, err := New(memory.New(), Options{BaseURL: "http://x/api/"})
	require.NoError(t, err)
	require.Equal(t, "http://x/api/auth/me/", c.url(NewRequest(http.MethodGet, "/auth/me/")))
	require.Equal(t, defaultAccessTTL, c.AccessTTL())
}

func TestClient_URLWithQuery(t *testing.T) {
	t.Parallel()

	c, err := New(memory.New(), Options{BaseURL: "http://x/api"})
	require.NoError(t, err)

	req := NewRequest(http.MethodGet, "events/")
	req.Query = map[string][]string{"page": {"2"}}
	require.Equal(t, "http://x/api/events/?page=2", c.url(req))
}

func TestDo_AttachesAccessToken(t *testing.T) {
	t.Parallel()

	api := apitest.New(t)
	api.AddUser("ann@example.com", "secret123", "ann")
	pair := api.Issue("ann@example.com")

	c, store := newTestClient(t, api, Options{})
	seed(t, store, pair.Access, pair.Refresh)

	resp, err := c.Do(context.Background(), NewRequest(http.MethodGet, "/auth/me/"))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	calls := api.CallsTo("/auth/me/")
	require.Len(t, calls, 1)
	require.Equal(t, "Bearer "+pair.Access, calls[0].Authorization)
	require.NotEmpty(t, calls[0].RequestID)
}

func TestDo_DebugLogRedactsHeaders(t *testing.T) {
	t.Parallel()

	api := apitest.New(t)
	api.AddUser("ann@example.com", "secret123", "ann")
	pair := api.Issue("ann@example.com")

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	c, store := newTestClient(t, api, Options{Logger: log})
	seed(t, store, pair.Access, pair.Refresh)

	resp, err := c.Do(context.Background(), NewRequest(http.MethodGet, "/auth/me/"))
	require.NoError(t, err)
	defer resp.Body.Close()

	out := buf.String()
	require.Contains(t, out, `"msg":"api_headers"`)
	require.Contains(t, out, `"Authorization":["[REDACTED]"]`)
	require.NotContains(t, out, pair.Access)
}

func TestDo_NoTokenSendsUnauthenticated(t *testing.T) {
	t.Parallel()

	api := apitest.New(t)
	c, _ := newTestClient(t, api, Options{})

	resp, err := c.Do(context.Background(), NewRequest(http.MethodGet, "/events/"))
	require.NoError(t, err)
	defer resp.Body.Close()

	// Без refresh-токена исходный 401 возвращается без изменений.
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "token_not_valid")

	calls := api.Calls()
	require.Len(t, calls, 1)
	require.Empty(t, calls[0].Authorization)
	require.Equal(t, RefreshFailed, c.RefreshState())
	require.Zero(t, api.RefreshCalls.Load())
}

func TestDo_AnonymousSkipsToken(t *testing.T) {
	t.Parallel()

	api := apitest.New(t)
	c, store := newTestClient(t, api, Options{})
	seed(t, store, "a-anything", "r-anything")

	req := NewRequest(http.MethodGet, "/events/")
	req.Anonymous = true

	resp, err := c.Do(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Empty(t, api.Calls()[0].Authorization)
	require.Zero(t, api.RefreshCalls.Load())
}

func TestDo_PropagatesRequestIDAndLocale(t *testing.T) {
	t.Parallel()

	api := apitest.New(t)
	c, _ := newTestClient(t, api, Options{})

	ctx := WithLocale(WithRequestID(context.Background(), "rid-1"), "ar")

	resp, err := c.Do(ctx, NewRequest(http.MethodGet, "/events/"))
	require.NoError(t, err)
	resp.Body.Close()

	calls := api.Calls()
	require.Equal(t, "rid-1", calls[0].RequestID)
	require.Equal(t, "ar", calls[0].Language)
}

func TestDo_NonUnauthorizedPassThrough(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"detail":"nope"}`)
	}))
	t.Cleanup(srv.Close)

	store := memory.New()
	seed(t, store, "a1", "r1")
	c, err := New(store, Options{BaseURL: srv.URL})
	require.NoError(t, err)

	resp, err := c.Do(context.Background(), NewRequest(http.MethodGet, "/x/"))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, RefreshIdle, c.RefreshState())
}

func TestDo_NetworkError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := New(memory.New(), Options{BaseURL: base, Timeout: time.Second})
	require.NoError(t, err)

	_, err = c.Do(context.Background(), NewRequest(http.MethodGet, "/x/"))
	require.ErrorIs(t, err, ErrNetwork)
}

func TestDo_NoRefreshReturns401(t *testing.T) {
	t.Parallel()

	api := apitest.New(t)
	c, store := newTestClient(t, api, Options{})
	seed(t, store, "stale", "r-valid")

	req := NewRequest(http.MethodGet, "/events/")
	req.NoRefresh = true

	resp, err := c.Do(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Zero(t, api.RefreshCalls.Load())
}

func TestDoJSON_DecodesSuccess(t *testing.T) {
	t.Parallel()

	api := apitest.New(t)
	api.AddUser("ann@example.com", "secret123", "ann")
	pair := api.Issue("ann@example.com")

	c, store := newTestClient(t, api, Options{})
	seed(t, store, pair.Access, pair.Refresh)

	var out struct {
		Page string `json:"page"`
	}
	req := NewRequest(http.MethodGet, "/events/")
	req.Query = map[string][]string{"page": {"3"}}

	require.NoError(t, c.DoJSON(context.Background(), req, &out))
	require.Equal(t, "3", out.Page)
}

func TestDoJSON_ValidationError(t *testing.T) {
	t.Parallel()

	api := apitest.New(t)
	c, _ := newTestClient(t, api, Options{})

	req, err := NewJSONRequest(http.MethodPost, "/auth/register/", map[string]string{
		"email":            "x@example.com",
		"username":         "x",
		"password":         "short",
		"password_confirm": "other",
	})
	require.NoError(t, err)
	req.NoRefresh = true

	err = c.DoJSON(context.Background(), req, nil)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "This password is too short.", ve.Error())
	require.Equal(t, "password", ve.Fields[0].Field)
	require.Equal(t, "password_confirm", ve.Fields[1].Field)
}

func TestDoJSON_MalformedBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"broken`)
	}))
	t.Cleanup(srv.Close)

	c, err := New(memory.New(), Options{BaseURL: srv.URL})
	require.NoError(t, err)

	var out map[string]any
	err = c.DoJSON(context.Background(), NewRequest(http.MethodGet, "/x/"), &out)
	require.ErrorIs(t, err, ErrMalformedResponse)
}

func TestDoJSON_EmptyBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	c, err := New(memory.New(), Options{BaseURL: srv.URL})
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, c.DoJSON(context.Background(), NewRequest(http.MethodGet, "/x/"), &out))
	require.Nil(t, out)
}

func TestDo_StoreReadError(t *testing.T) {
	t.Parallel()

	api := apitest.New(t)
	c, err := New(failingStore{err: errors.New("boom")}, Options{BaseURL: api.BaseURL()})
	require.NoError(t, err)

	_, err = c.Do(context.Background(), NewRequest(http.MethodGet, "/events/"))
	require.ErrorContains(t, err, "boom")
	require.Empty(t, api.Calls())
}

func TestWith_UsesOtherStore(t *testing.T) {
	t.Parallel()

	api := apitest.New(t)
	api.AddUser("ann@example.com", "secret123", "ann")
	pair := api.Issue("ann@example.com")

	c, _ := newTestClient(t, api, Options{})

	other := memory.New()
	seed(t, other, pair.Access, pair.Refresh)

	resp, err := c.With(other).Do(context.Background(), NewRequest(http.MethodGet, "/events/"))
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Same(t, other, c.With(other).Store())
}

type failingStore struct{ err error }

func (f failingStore) Get(context.Context, tokenstore.Kind) (string, bool, error) {
	return "", false, f.err
}

func (f failingStore) Set(context.Context, tokenstore.Kind, string, time.Duration) error {
	return f.err
}

func (f failingStore) Clear(context.Context, ...tokenstore.Kind) error { return f.err }
