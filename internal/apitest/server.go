// Package apitest — фейковый REST API сайта для тестов.
//
// Сервер реализует контракт эндпоинтов /auth/* (логин, регистрация, me,
// refresh, профиль, аватар, пароль) и пару прикладных ресурсов (/events/),
// выдаёт непрозрачные токены и позволяет тестам «протухать» и отзывать их.
package apitest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/hackathon-site/internal/models"
)

// Call — зафиксированный запрос к фейковому API.
type Call struct {
	Method        string
	Path          string
	Authorization string
	RequestID     string
	Language      string
}

type account struct {
	password string
	profile  models.UserProfile
}

// Server — фейковый API. Базовый URL — URL + "/api".
type Server struct {
	*httptest.Server

	// RefreshDelay задерживает ответ на refresh (для гонок).
	RefreshDelay time.Duration
	// MeStatus, если не 0, принудительно возвращается на GET /auth/me/.
	MeStatus atomic.Int32

	RefreshCalls atomic.Int32
	LogoutCalls  atomic.Int32

	mu       sync.Mutex
	seq      int
	nextID   int64
	accounts map[string]*account
	access   map[string]string
	refresh  map[string]string
	calls    []Call
}

// New запускает сервер и регистрирует его закрытие в t.Cleanup.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		accounts: make(map[string]*account),
		access:   make(map[string]string),
		refresh:  make(map[string]string),
	}

	r := chi.NewRouter()
	r.Use(s.record)
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login/", s.login)
		r.Post("/auth/register/", s.register)
		r.Post("/auth/logout/", s.logout)
		r.Post("/auth/token/refresh/", s.tokenRefresh)
		r.Get("/auth/me/", s.me)
		r.Put("/auth/profile/", s.updateProfile)
		r.Put("/auth/profile/password/", s.changePassword)
		r.Post("/auth/avatar/", s.avatar)
		r.Get("/events/", s.events)
		r.Post("/forum/posts/", s.forumPost)
	})

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)

	return s
}

// BaseURL — корень API для apiclient.Options.
func (s *Server) BaseURL() string { return s.URL + "/api" }

// AddUser регистрирует пользователя напрямую.
func (s *Server) AddUser(email, password, username string) models.UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.addUserLocked(email, password, username, "")
}

func (s *Server) addUserLocked(email, password, username, fullName string) models.UserProfile {
	s.nextID++
	p := models.UserProfile{
		ID:        s.nextID,
		Email:     email,
		Username:  username,
		FullName:  fullName,
		Role:      models.RoleUser,
		CreatedAt: "2024-01-01T00:00:00Z",
		UpdatedAt: "2024-01-01T00:00:00Z",
	}
	s.accounts[email] = &account{password: password, profile: p}

	return p
}

// Issue выдаёт пару токенов пользователю email.
func (s *Server) Issue(email string) models.TokenPair {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.issueLocked(email)
}

func (s *Server) issueLocked(email string) models.TokenPair {
	s.seq++
	p := models.TokenPair{
		Access:  fmt.Sprintf("a%d", s.seq),
		Refresh: fmt.Sprintf("r%d", s.seq),
	}
	s.access[p.Access] = email
	s.refresh[p.Refresh] = email

	return p
}

// ExpireAccess делает access-токен недействительным.
func (s *Server) ExpireAccess(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.access, token)
}

// RevokeRefresh делает refresh-токен недействительным.
func (s *Server) RevokeRefresh(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.refresh, token)
}

// RefreshValid сообщает, принимается ли refresh-токен.
func (s *Server) RefreshValid(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.refresh[token]
	return ok
}

// Calls возвращает копию журнала запросов.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Call(nil), s.calls...)
}

// CallsTo возвращает запросы к path (без префикса /api).
func (s *Server) CallsTo(path string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Path == path {
			out = append(out, c)
		}
	}

	return out
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls = append(s.calls, Call{
			Method:        r.Method,
			Path:          strings.TrimPrefix(r.URL.Path, "/api"),
			Authorization: r.Header.Get("Authorization"),
			RequestID:     r.Header.Get("X-Request-Id"),
			Language:      r.Header.Get("Accept-Language"),
		})
		s.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

// authorized возвращает e-mail владельца bearer-токена.
func (s *Server) authorized(r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email, ok := s.access[token]
	return email, ok
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var in models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "malformed json"})
		return
	}

	var fields [][2]string
	if in.Email == "" {
		fields = append(fields, [2]string{"email", "This field may not be blank."})
	}
	if in.Password == "" {
		fields = append(fields, [2]string{"password", "This field may not be blank."})
	}
	if len(fields) > 0 {
		writeOrdered(w, http.StatusBadRequest, fields)
		return
	}

	s.mu.Lock()
	acc, ok := s.accounts[in.Email]
	if !ok || acc.password != in.Password {
		s.mu.Unlock()
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"detail": "No active account found with the given credentials",
		})
		return
	}
	pair := s.issueLocked(in.Email)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var in models.RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "malformed json"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var fields [][2]string
	if _, exists := s.accounts[in.Email]; exists {
		fields = append(fields, [2]string{"email", "user with this email already exists."})
	}
	if len(in.Password) < 8 {
		fields = append(fields, [2]string{"password", "This password is too short."})
	}
	if in.Password != in.PasswordConfirm {
		fields = append(fields, [2]string{"password_confirm", "Passwords do not match."})
	}
	if len(fields) > 0 {
		writeOrdered(w, http.StatusBadRequest, fields)
		return
	}

	p := s.addUserLocked(in.Email, in.Password, in.Username, in.FullName)
	pair := s.issueLocked(in.Email)

	writeJSON(w, http.StatusCreated, models.RegisterResponse{
		User:    p,
		Tokens:  pair,
		Message: "User registered successfully",
	})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.LogoutCalls.Add(1)

	var in models.RefreshRequest
	_ = json.NewDecoder(r.Body).Decode(&in)

	s.mu.Lock()
	delete(s.refresh, in.Refresh)
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) tokenRefresh(w http.ResponseWriter, r *http.Request) {
	s.RefreshCalls.Add(1)

	if s.RefreshDelay > 0 {
		time.Sleep(s.RefreshDelay)
	}

	var in models.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "malformed json"})
		return
	}

	s.mu.Lock()
	email, ok := s.refresh[in.Refresh]
	if !ok {
		s.mu.Unlock()
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"detail": "Token is invalid or expired",
			"code":   "token_not_valid",
		})
		return
	}
	s.seq++
	access := fmt.Sprintf("a%d", s.seq)
	s.access[access] = email
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, models.RefreshResponse{Access: access})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	if st := s.MeStatus.Load(); st != 0 {
		writeJSON(w, int(st), map[string]any{"detail": http.StatusText(int(st))})
		return
	}

	email, ok := s.authorized(r)
	if !ok {
		unauthorized(w)
		return
	}

	s.mu.Lock()
	p := s.accounts[email].profile
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, p)
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	email, ok := s.authorized(r)
	if !ok {
		unauthorized(w)
		return
	}

	var in models.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "malformed json"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc := s.accounts[email]
	if in.FullName != nil && *in.FullName == "" {
		writeOrdered(w, http.StatusBadRequest, [][2]string{{"full_name", "This field may not be blank."}})
		return
	}
	if in.FullName != nil {
		acc.profile.FullName = *in.FullName
	}
	if in.Bio != nil {
		acc.profile.Bio = *in.Bio
	}
	if in.Location != nil {
		acc.profile.Location = *in.Location
	}
	acc.profile.UpdatedAt = "2024-02-01T00:00:00Z"

	writeJSON(w, http.StatusOK, acc.profile)
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	email, ok := s.authorized(r)
	if !ok {
		unauthorized(w)
		return
	}

	var in models.ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "malformed json"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc := s.accounts[email]
	if acc.password != in.OldPassword {
		writeOrdered(w, http.StatusBadRequest, [][2]string{{"old_password", "Wrong password."}})
		return
	}
	acc.password = in.NewPassword

	writeJSON(w, http.StatusOK, map[string]any{"message": "Password updated successfully"})
}

func (s *Server) avatar(w http.ResponseWriter, r *http.Request) {
	email, ok := s.authorized(r)
	if !ok {
		unauthorized(w)
		return
	}

	f, hdr, err := r.FormFile("avatar")
	if err != nil {
		writeOrdered(w, http.StatusBadRequest, [][2]string{{"avatar", "No file was submitted."}})
		return
	}
	defer f.Close()

	if _, err := io.Copy(io.Discard, f); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": err.Error()})
		return
	}

	s.mu.Lock()
	acc := s.accounts[email]
	url := "/media/avatars/" + hdr.Filename
	acc.profile.Avatar = &url
	p := acc.profile
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, p)
}

func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorized(r); !ok {
		unauthorized(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"results": []map[string]any{{"id": 1, "title": "Hackathon"}},
		"page":    r.URL.Query().Get("page"),
	})
}

func (s *Server) forumPost(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorized(r); !ok {
		unauthorized(w)
		return
	}

	body, _ := io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(body)
}

func unauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, map[string]any{
		"detail": "Given token not valid for any token type",
		"code":   "token_not_valid",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeOrdered пишет ошибки полей в заданном порядке ({"field": ["msg"]}),
// как это делает API.
func writeOrdered(w http.ResponseWriter, status int, fields [][2]string) {
	var b strings.Builder
	b.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		k, _ := json.Marshal(f[0])
		v, _ := json.Marshal([]string{f[1]})
		b.Write(k)
		b.WriteByte(':')
		b.Write(v)
	}
	b.WriteByte('}')

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, b.String())
}
