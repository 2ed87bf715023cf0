// locale — определение языка пользователя (en/ar/fr/tr).
//
// Порядок: префикс пути /{locale}/ → cookie NEXT_LOCALE → Accept-Language
// (golang.org/x/text/language) → язык по умолчанию.
package locale

import (
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

// CookieName — cookie с выбранным пользователем языком.
const CookieName = "NEXT_LOCALE"

// Resolver определяет язык запроса среди поддерживаемых.
type Resolver struct {
	def     string
	codes   []string
	matcher language.Matcher
}

// New создаёт Resolver. def должен входить в supported.
func New(supported []string, def string) (*Resolver, error) {
	const op = "locale/New"

	if len(supported) == 0 {
		return nil, fmt.Errorf("%s: no supported locales", op)
	}

	// Язык по умолчанию идёт первым: матчер откатывается на первый тег.
	codes := []string{def}
	tags := []language.Tag{}

	found := false
	for _, code := range supported {
		code = strings.ToLower(strings.TrimSpace(code))
		if code == def {
			found = true
			continue
		}
		codes = append(codes, code)
	}
	if !found {
		return nil, fmt.Errorf("%s: default locale %q is not supported", op, def)
	}

	for _, code := range codes {
		tag, err := language.Parse(code)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		tags = append(tags, tag)
	}

	return &Resolver{
		def:     def,
		codes:   codes,
		matcher: language.NewMatcher(tags),
	}, nil
}

// Default возвращает язык по умолчанию.
func (r *Resolver) Default() string { return r.def }

// Codes возвращает поддерживаемые языки, язык по умолчанию первым.
func (r *Resolver) Codes() []string {
	return append([]string(nil), r.codes...)
}

// Supported сообщает, поддерживается ли код языка.
func (r *Resolver) Supported(code string) bool {
	for _, c := range r.codes {
		if c == code {
			return true
		}
	}

	return false
}

// FromPath выделяет язык из префикса пути: "/ar/login" → ("ar", "/login").
func (r *Resolver) FromPath(path string) (string, string, bool) {
	trimmed := strings.TrimPrefix(path, "/")
	code, rest, _ := strings.Cut(trimmed, "/")

	if !r.Supported(code) {
		return "", path, false
	}

	return code, "/" + rest, true
}

// FromAcceptLanguage подбирает ближайший поддерживаемый язык по заголовку.
func (r *Resolver) FromAcceptLanguage(header string) string {
	if header == "" {
		return r.def
	}

	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return r.def
	}

	_, idx, conf := r.matcher.Match(tags...)
	if conf == language.No || idx < 0 || idx >= len(r.codes) {
		return r.def
	}

	return r.codes[idx]
}

// Resolve определяет язык запроса.
func (r *Resolver) Resolve(req *http.Request) string {
	if code, _, ok := r.FromPath(req.URL.Path); ok {
		return code
	}

	if c, err := req.Cookie(CookieName); err == nil && r.Supported(c.Value) {
		return c.Value
	}

	return r.FromAcceptLanguage(req.Header.Get("Accept-Language"))
}

// LoginPath — страница логина на языке code.
func (r *Resolver) LoginPath(code string) string {
	if !r.Supported(code) {
		code = r.def
	}

	return "/" + code + "/login"
}

// Dir — направление письма для языка (ar — справа налево).
func Dir(code string) string {
	if code == "ar" {
		return "rtl"
	}

	return "ltr"
}
