package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pribylovaa/hackathon-site/internal/apiclient"
	"github.com/pribylovaa/hackathon-site/internal/models"
	"github.com/pribylovaa/hackathon-site/internal/tokenstore"
	logctx "github.com/pribylovaa/hackathon-site/pkg/log"
)

// UpdateProfile отправляет изменённые поля профиля и заменяет текущего
// пользователя ответом API.
func (s *Session) UpdateProfile(ctx context.Context, upd models.ProfileUpdate) (*models.UserProfile, error) {
	const op = "session/UpdateProfile"

	gen, err := s.requireAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if upd.Empty() {
		return nil, fmt.Errorf("%s: %w", op, apiclient.NewValidationError("profile", "Nothing to update"))
	}

	req, err := apiclient.NewJSONRequest(http.MethodPut, pathProfile, upd)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var user models.UserProfile
	if err := s.client.DoJSON(ctx, req, &user); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.setUser(gen, &user)

	return user.Clone(), nil
}

// UploadAvatar загружает аватар (multipart-поле "avatar") и перечитывает
// пользователя.
func (s *Session) UploadAvatar(ctx context.Context, filename string, file io.Reader) error {
	const op = "session/UploadAvatar"

	if _, err := s.requireAuth(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	filename = strings.TrimSpace(filename)
	if filename == "" || file == nil {
		return fmt.Errorf("%s: %w", op, apiclient.NewValidationError(avatarField, "No file was submitted"))
	}

	req, err := apiclient.NewMultipartRequest(http.MethodPost, pathAvatar, avatarField, filename, file, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.client.DoJSON(ctx, req, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	logctx.From(ctx).Info("avatar_uploaded", slog.Int("bytes", len(req.Body())))

	if err := s.RefreshUser(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// ChangePassword меняет пароль текущего пользователя.
func (s *Session) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	const op = "session/ChangePassword"

	if _, err := s.requireAuth(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	switch {
	case oldPassword == "":
		return fmt.Errorf("%s: %w", op, apiclient.NewValidationError("old_password", "Current password is required"))
	case newPassword == "":
		return fmt.Errorf("%s: %w", op, apiclient.NewValidationError("new_password", "New password is required"))
	}

	req, err := apiclient.NewJSONRequest(http.MethodPut, pathProfilePass, models.ChangePasswordRequest{
		OldPassword: oldPassword,
		NewPassword: newPassword,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.client.DoJSON(ctx, req, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	logctx.From(ctx).Info("password_changed")

	return nil
}

// requireAuth проверяет, что сессия открыта и есть хотя бы один токен:
// при протухшем access диспетчер обновит его по refresh.
func (s *Session) requireAuth(ctx context.Context) (uint64, error) {
	gen, err := s.checkOpen()
	if err != nil {
		return 0, err
	}

	for _, kind := range tokenstore.Kinds {
		_, ok, err := s.store.Get(ctx, kind)
		if err != nil {
			return 0, err
		}
		if ok {
			return gen, nil
		}
	}

	return 0, ErrNotAuthenticated
}
