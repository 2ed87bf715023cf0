package handlers

import (
	"errors"
	"net/http"

	"github.com/pribylovaa/hackathon-site/internal/apiclient"
	apierrors "github.com/pribylovaa/hackathon-site/internal/errors"
	"github.com/pribylovaa/hackathon-site/internal/models"
)

const (
	avatarField = "avatar"
	// Запас сверх лимита файла на заголовки multipart.
	multipartOverhead = 64 << 10
)

// UpdateProfile — PUT /auth/profile.
func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var upd models.ProfileUpdate
	if err := decodeStrict(w, r, &upd); err != nil {
		h.fail(w, r, err)
		return
	}

	s, err := h.session(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer s.Close()

	user, err := s.UpdateProfile(r.Context(), upd)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// ChangePassword — PUT /auth/profile/password.
func (h *Handlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var in models.ChangePasswordRequest
	if err := decodeStrict(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}

	s, err := h.session(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer s.Close()

	if err := s.ChangePassword(r.Context(), in.OldPassword, in.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UploadAvatar — POST /auth/avatar (multipart, поле "avatar").
func (h *Handlers) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.AvatarMaxBytes+multipartOverhead)

	if err := r.ParseMultipartForm(h.opts.AvatarMaxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(w, r, apierrors.ErrTooLarge)
			return
		}
		h.fail(w, r, apierrors.ErrInvalidBody)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(avatarField)
	if err != nil {
		h.fail(w, r, apiclient.NewValidationError(avatarField, "No file was submitted"))
		return
	}
	defer file.Close()

	if header.Size > h.opts.AvatarMaxBytes {
		h.fail(w, r, apierrors.ErrTooLarge)
		return
	}

	s, err := h.session(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer s.Close()

	if err := s.UploadAvatar(r.Context(), header.Filename, file); err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, s.State())
}
