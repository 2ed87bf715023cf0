package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/hackathon-site/internal/apiclient"
	"github.com/pribylovaa/hackathon-site/internal/session"
)

func TestToHTTP_Mapping(t *testing.T) {
	tcs := []struct {
		name       string
		in         error
		wantStatus int
		wantCode   string
	}{
		{"invalid_credentials", fmt.Errorf("op: %w", apiclient.ErrInvalidCredentials), http.StatusUnauthorized, "invalid_credentials"},
		{"session_expired", fmt.Errorf("op: %w: %w", apiclient.ErrSessionExpired, &apiclient.APIError{Status: 401}), http.StatusUnauthorized, "session_expired"},
		{"not_authenticated", session.ErrNotAuthenticated, http.StatusUnauthorized, "unauthenticated"},
		{"api_401", &apiclient.APIError{Status: 401, Code: "unauthenticated", Message: "x"}, http.StatusUnauthorized, "unauthenticated"},
		{"api_403", &apiclient.APIError{Status: 403, Code: "permission_denied"}, http.StatusForbidden, "permission_denied"},
		{"api_404", &apiclient.APIError{Status: 404, Code: "not_found"}, http.StatusNotFound, "not_found"},
		{"api_500", &apiclient.APIError{Status: 500, Code: "unavailable"}, http.StatusBadGateway, "bad_gateway"},
		{"network", fmt.Errorf("x: %w", apiclient.ErrNetwork), http.StatusBadGateway, "bad_gateway"},
		{"malformed", apiclient.ErrMalformedResponse, http.StatusBadGateway, "bad_gateway"},
		{"canceled", context.Canceled, StatusClientClosedRequest, "canceled"},
		{"deadline", fmt.Errorf("x: %w: %w", apiclient.ErrNetwork, context.DeadlineExceeded), http.StatusGatewayTimeout, "deadline_exceeded"},
		{"invalid_body", ErrInvalidBody, http.StatusBadRequest, "invalid_argument"},
		{"invalid_path", ErrInvalidPath, http.StatusBadRequest, "invalid_path"},
		{"rate_limited", ErrRateLimited, http.StatusTooManyRequests, "resource_exhausted"},
		{"too_large", ErrTooLarge, http.StatusRequestEntityTooLarge, "too_large"},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError, "internal"},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			gotStatus, resp := ToHTTP(tc.in)
			require.Equal(t, tc.wantStatus, gotStatus)
			require.Equal(t, tc.wantCode, resp.Error.Code)
			require.NotEmpty(t, resp.Error.Message)
		})
	}
}

func TestToHTTP_ValidationFields(t *testing.T) {
	ve := &apiclient.ValidationError{Status: 400, Fields: []apiclient.FieldError{
		{Field: "username", Messages: []string{"taken"}},
		{Field: "email", Messages: []string{"invalid"}},
	}}

	status, resp := ToHTTP(fmt.Errorf("session/Register: %w", ve))
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "taken", resp.Error.Message)
	require.Equal(t, []Field{
		{Field: "username", Messages: []string{"taken"}},
		{Field: "email", Messages: []string{"invalid"}},
	}, resp.Error.Fields)
}

func TestToHTTP_NilError_Returns500Internal(t *testing.T) {
	gotStatus, resp := ToHTTP(nil)
	require.Equal(t, http.StatusInternalServerError, gotStatus)
	require.Equal(t, "internal", resp.Error.Code)
	require.Equal(t, "internal error", resp.Error.Message)
}

func TestWriteError_EnvelopeAndRequestID(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.Header.Set("X-Request-Id", "rid-42")

	WriteError(rr, req, ErrRateLimited)

	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	require.Equal(t, "1", rr.Header().Get("Retry-After"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "resource_exhausted", body.Error.Code)
	require.Equal(t, "rid-42", body.Error.RequestID)
	require.Empty(t, body.Error.Fields)
}
