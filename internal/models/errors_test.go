package models_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/castleatlas/atlas/internal/models"
)

func TestAPIError(t *testing.T) {
	err := &models.APIError{
		Code:       "UNAUTHORIZED",
		Message:    "Invalid token",
		StatusCode: 401,
		RequestID:  "req-123",
	}

	want := "API error 401 (UNAUTHORIZED): Invalid token"
	assert.Equal(t, want, err.Error())
	assert.ErrorIs(t, err, models.ErrNotAuthenticated)
	assert.NotErrorIs(t, err, models.ErrRateLimited)

	wrapped := fmt.Errorf("fetch progress: %w", &models.APIError{StatusCode: 429})
	assert.ErrorIs(t, wrapped, models.ErrRateLimited)
}

func TestCodeForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{200, ""},
		{400, models.ErrCodeValidation},
		{401, models.ErrCodeAuth},
		{403, models.ErrCodeAuth},
		{404, models.ErrCodeNotFound},
		{429, models.ErrCodeRateLimit},
		{500, models.ErrCodeServerError},
		{503, models.ErrCodeServerError},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, models.CodeForStatus(tt.status))
		})
	}
}

func TestAuthError(t *testing.T) {
	tests := []struct {
		name string
		err  *models.AuthError
		want string
	}{
		{
			name: "with email",
			err: &models.AuthError{
				Op:    "login",
				Email: "test@example.com",
				Err:   models.ErrInvalidCredentials,
			},
			want: "auth login [test@example.com]: invalid credentials",
		},
		{
			name: "without email",
			err: &models.AuthError{
				Op:  "refresh",
				Err: errors.New("token refresh failed"),
			},
			want: "auth refresh: token refresh failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestErrorUnwrapping(t *testing.T) {
	authErr := &models.AuthError{Op: "login", Err: models.ErrInvalidCredentials}
	assert.ErrorIs(t, authErr, models.ErrInvalidCredentials)

	valErr := &models.ValidationError{Field: "email", Reason: "bad", Err: models.ErrInvalidEmail}
	assert.ErrorIs(t, valErr, models.ErrInvalidEmail)
	assert.Equal(t, "invalid email: bad", valErr.Error())

	storeErr := &models.StorageError{Op: "set", Key: "castle_atlas_token", Err: errors.New("disk full")}
	assert.Equal(t, "storage set castle_atlas_token: disk full", storeErr.Error())
	assert.Equal(t, "storage close: disk full", (&models.StorageError{Op: "close", Err: errors.New("disk full")}).Error())
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"credentials", &models.AuthError{Op: "login", Err: models.ErrInvalidCredentials}, models.MsgInvalidCredentials},
		{"expired", models.ErrSessionExpired, models.MsgSessionExpired},
		{"unauthenticated", models.ErrNotAuthenticated, models.MsgUnauthorized},
		{"network", fmt.Errorf("get: %w", models.ErrConnectionLost), models.MsgNetworkError},
		{"api message", &models.APIError{StatusCode: 409, Message: "Email already registered"}, "Email already registered"},
		{"validation", &models.ValidationError{Field: "password", Reason: "Password must be at least 8 characters."}, "Password must be at least 8 characters."},
		{"other", errors.New("boom"), "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, models.UserMessage(tt.err))
		})
	}
}
