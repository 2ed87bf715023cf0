package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pribylovaa/hackathon-site/internal/apiclient"
	"github.com/pribylovaa/hackathon-site/internal/models"
	"github.com/pribylovaa/hackathon-site/internal/tokenstore"
	logctx "github.com/pribylovaa/hackathon-site/pkg/log"
	"github.com/pribylovaa/hackathon-site/pkg/redact"
)

// Login выполняет вход по e-mail и паролю, сохраняет пару токенов
// и загружает текущего пользователя.
//
// Ошибки: *apiclient.ValidationError (пустые поля или ошибки полей от API),
// apiclient.ErrInvalidCredentials (API отверг пару), ошибки RefreshUser.
func (s *Session) Login(ctx context.Context, email, password string) error {
	const op = "session/Login"

	if _, err := s.checkOpen(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	email = strings.TrimSpace(email)
	switch {
	case email == "":
		return fmt.Errorf("%s: %w", op, apiclient.NewValidationError("email", "Email is required"))
	case password == "":
		return fmt.Errorf("%s: %w", op, apiclient.NewValidationError("password", "Password is required"))
	}

	req, err := apiclient.NewJSONRequest(http.MethodPost, pathLogin, models.LoginRequest{
		Email:    email,
		Password: password,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.NoRefresh = true
	req.Anonymous = true

	var pair models.TokenPair
	if err := s.client.DoJSON(ctx, req, &pair); err != nil {
		if credentialsRejected(err) {
			logctx.From(ctx).Info("login_rejected", slog.String("email", redact.Email(email)))
			return fmt.Errorf("%s: %w: %w", op, apiclient.ErrInvalidCredentials, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.storePair(ctx, pair); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	logctx.From(ctx).Info("login_succeeded", slog.String("email", redact.Email(email)))

	if err := s.RefreshUser(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Register регистрирует пользователя, сохраняет выданные токены
// и загружает текущего пользователя.
//
// Несовпадение паролей отклоняется локально, без обращения к API.
func (s *Session) Register(ctx context.Context, in models.RegisterInput) error {
	const op = "session/Register"

	if _, err := s.checkOpen(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	in.Email = strings.TrimSpace(in.Email)
	in.Username = strings.TrimSpace(in.Username)

	if in.Password != in.PasswordConfirm {
		return fmt.Errorf("%s: %w", op, apiclient.NewValidationError("password_confirm", "Passwords do not match"))
	}

	req, err := apiclient.NewJSONRequest(http.MethodPost, pathRegister, in)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.NoRefresh = true
	req.Anonymous = true

	var out models.RegisterResponse
	if err := s.client.DoJSON(ctx, req, &out); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.storePair(ctx, out.Tokens); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	logctx.From(ctx).Info("register_succeeded", slog.String("email", redact.Email(in.Email)))

	if err := s.RefreshUser(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Logout удаляет оба токена и сбрасывает пользователя. Идемпотентен.
//
// Выход локальный: refresh-токен может оставаться действительным на сервере.
// С Options.RevokeOnLogout токен сначала отправляется на /auth/logout/;
// ошибки отзыва только логируются.
func (s *Session) Logout(ctx context.Context) error {
	const op = "session/Logout"

	if _, err := s.checkOpen(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if s.opts.RevokeOnLogout {
		s.revoke(ctx)
	}

	s.mu.Lock()
	s.gen++
	s.user = nil
	s.mu.Unlock()

	if err := s.store.Clear(ctx, tokenstore.Kinds...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	logctx.From(ctx).Info("logout")

	return nil
}

// revoke — best-effort отзыв refresh-токена на сервере.
func (s *Session) revoke(ctx context.Context) {
	log := logctx.From(ctx)

	refresh, ok, err := s.store.Get(ctx, tokenstore.Refresh)
	if err != nil || !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.RevokeTimeout)
	defer cancel()

	req, err := apiclient.NewJSONRequest(http.MethodPost, pathLogout, models.RefreshRequest{Refresh: refresh})
	if err != nil {
		return
	}
	req.NoRefresh = true

	if err := s.client.DoJSON(ctx, req, nil); err != nil {
		log.Warn("logout_revoke_failed", slog.String("err", err.Error()))
		return
	}

	log.Info("logout_revoked", slog.String("refresh", redact.Token(refresh)))
}

// RefreshUser загружает текущего пользователя с /auth/me/.
//
// Без access-токена пользователь остаётся прежним. Успех заменяет
// пользователя целиком. Любой провал (включая сетевые ошибки) удаляет оба
// токена и сбрасывает пользователя; ошибка возвращается для логов.
// Отмена ctx вызывающей стороной провалом не считается.
func (s *Session) RefreshUser(ctx context.Context) error {
	const op = "session/RefreshUser"

	gen, err := s.checkOpen()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	_, ok, err := s.store.Get(ctx, tokenstore.Access)
	if err != nil {
		s.teardown(ctx, gen)
		return fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return nil
	}

	var user models.UserProfile
	if err := s.client.DoJSON(ctx, apiclient.NewRequest(http.MethodGet, pathMe), &user); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}

		logctx.From(ctx).Warn("session_user_fetch_failed", slog.String("err", err.Error()))
		s.teardown(ctx, gen)

		return fmt.Errorf("%s: %w", op, err)
	}

	s.setUser(gen, &user)

	return nil
}

// Init выполняет первичное определение пользователя: loading = true,
// один RefreshUser, loading = false независимо от результата.
// Повторные вызовы ничего не делают и возвращают результат первого.
func (s *Session) Init(ctx context.Context) error {
	s.initOnce.Do(func() {
		s.setLoading(true)
		defer s.setLoading(false)

		s.initErr = s.RefreshUser(ctx)
	})

	return s.initErr
}

func (s *Session) storePair(ctx context.Context, pair models.TokenPair) error {
	if pair.Access == "" || pair.Refresh == "" {
		return fmt.Errorf("%w: token pair is incomplete", apiclient.ErrMalformedResponse)
	}

	if err := s.store.Set(ctx, tokenstore.Access, pair.Access, s.opts.AccessTTL); err != nil {
		return err
	}

	return s.store.Set(ctx, tokenstore.Refresh, pair.Refresh, s.opts.RefreshTTL)
}

// credentialsRejected: 401 или 400 без ошибок конкретных полей
// (только detail/non_field_errors).
func credentialsRejected(err error) bool {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusUnauthorized
	}

	var ve *apiclient.ValidationError
	if errors.As(err, &ve) {
		for _, f := range ve.Fields {
			if f.Field != "detail" && f.Field != "non_field_errors" {
				return false
			}
		}
		return true
	}

	return false
}
