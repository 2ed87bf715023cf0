package handlers

import (
	"log/slog"
	"net/http"

	"github.com/pribylovaa/hackathon-site/internal/models"
	"github.com/pribylovaa/hackathon-site/internal/session"
	logctx "github.com/pribylovaa/hackathon-site/pkg/log"
)

// Login — POST /auth/login.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var in models.LoginRequest
	if err := decodeStrict(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}

	s, err := h.freshSession(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer s.Close()

	if err := s.Login(r.Context(), in.Email, in.Password); err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, s.State())
}

// Register — POST /auth/register.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var in models.RegisterInput
	if err := decodeStrict(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}

	s, err := h.freshSession(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer s.Close()

	if err := s.Register(r.Context(), in); err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, s.State())
}

// Logout — POST /auth/logout. Всегда 200: локальные токены стираются
// даже без активной сессии.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer s.Close()

	if err := s.Logout(r.Context()); err != nil {
		logctx.From(r.Context()).Warn("logout_clear_failed", slog.String("err", err.Error()))
	}

	writeJSON(w, http.StatusOK, models.SessionState{})
}

// Session — GET /auth/session: восстановление сессии при загрузке страницы.
// Отсутствие пользователя не ошибка, user == null.
func (h *Handlers) Session(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer s.Close()

	if err := s.Init(r.Context()); err != nil {
		logctx.From(r.Context()).Debug("session_init_failed", slog.String("err", err.Error()))
	}

	writeJSON(w, http.StatusOK, s.State())
}

// Me — GET /auth/me.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer s.Close()

	if err := s.RefreshUser(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}

	user := s.User()
	if user == nil {
		h.fail(w, r, session.ErrNotAuthenticated)
		return
	}

	writeJSON(w, http.StatusOK, user)
}
