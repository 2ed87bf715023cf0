package locale

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newResolver(t *testing.T) *Resolver {
	t.Helper()

	r, err := New([]string{"en", "ar", "fr", "tr"}, "en")
	require.NoError(t, err)

	return r
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, "en")
	require.Error(t, err)

	_, err = New([]string{"ar", "fr"}, "en")
	require.Error(t, err)

	_, err = New([]string{"en", "!!"}, "en")
	require.Error(t, err)
}

func TestFromPath(t *testing.T) {
	t.Parallel()

	r := newResolver(t)

	tests := []struct {
		path string
		code string
		rest string
		ok   bool
	}{
		{"/ar/login", "ar", "/login", true},
		{"/fr", "fr", "/", true},
		{"/tr/events/5", "tr", "/events/5", true},
		{"/de/login", "", "/de/login", false},
		{"/", "", "/", false},
		{"/auth/me", "", "/auth/me", false},
	}

	for _, tt := range tests {
		code, rest, ok := r.FromPath(tt.path)
		require.Equal(t, tt.ok, ok, tt.path)
		require.Equal(t, tt.code, code, tt.path)
		require.Equal(t, tt.rest, rest, tt.path)
	}
}

func TestFromAcceptLanguage(t *testing.T) {
	t.Parallel()

	r := newResolver(t)

	tests := map[string]string{
		"":                        "en",
		"ar-SY,ar;q=0.9,en;q=0.8": "ar",
		"fr-CA":                   "fr",
		"tr":                      "tr",
		"de-DE,de;q=0.9":          "en",
		"de,fr;q=0.5":             "fr",
		"%%%garbage":              "en",
	}

	for header, want := range tests {
		require.Equal(t, want, r.FromAcceptLanguage(header), header)
	}
}

func TestResolve_Priority(t *testing.T) {
	t.Parallel()

	r := newResolver(t)

	req := httptest.NewRequest(http.MethodGet, "/ar/profile", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "fr"})
	req.Header.Set("Accept-Language", "tr")
	require.Equal(t, "ar", r.Resolve(req))

	req = httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "fr"})
	req.Header.Set("Accept-Language", "tr")
	require.Equal(t, "fr", r.Resolve(req))

	req = httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "xx"})
	req.Header.Set("Accept-Language", "tr")
	require.Equal(t, "tr", r.Resolve(req))

	req = httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	require.Equal(t, "en", r.Resolve(req))
}

func TestLoginPath(t *testing.T) {
	t.Parallel()

	r := newResolver(t)

	require.Equal(t, "/ar/login", r.LoginPath("ar"))
	require.Equal(t, "/en/login", r.LoginPath("zz"))
	require.Equal(t, "en", r.Default())
}

func TestDir(t *testing.T) {
	t.Parallel()

	require.Equal(t, "rtl", Dir("ar"))
	require.Equal(t, "ltr", Dir("en"))
}
