package models

import "time"

// User is the signed-in account as the API returns it.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	TOTPEnabled bool      `json:"totp_enabled,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// LoginRequest for POST /auth/login.
// Passwords are only required here; length rules apply to new passwords.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	TOTP     string `json:"mfa,omitempty"`
}

// RegisterRequest for POST /auth/register.
type RegisterRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// AuthResponse from login, register and refresh.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// ResetRequest for POST /auth/reset-password.
type ResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetConfirm for POST /auth/reset-password/confirm.
type ResetConfirm struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8"`
}

// Session is what gets persisted between runs.
type Session struct {
	Token    string    `json:"token"`
	User     User      `json:"user"`
	IssuedAt time.Time `json:"issued_at"`
}

// IsExpired reports whether the session is older than timeout at now.
func (s *Session) IsExpired(now time.Time, timeout time.Duration) bool {
	if s.IssuedAt.IsZero() || timeout <= 0 {
		return false
	}
	return now.Sub(s.IssuedAt) >= timeout
}
