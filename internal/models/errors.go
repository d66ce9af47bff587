package models

import (
	"errors"
	"fmt"
)

// Error codes for structured error handling.
const (
	ErrCodeAuth        = "AUTH_ERROR"
	ErrCodeValidation  = "VALIDATION_ERROR"
	ErrCodeNetwork     = "NETWORK_ERROR"
	ErrCodeStorage     = "STORAGE_ERROR"
	ErrCodeConfig      = "CONFIG_ERROR"
	ErrCodeCrypto      = "CRYPTO_ERROR"
	ErrCodeNotFound    = "NOT_FOUND"
	ErrCodeRateLimit   = "RATE_LIMIT"
	ErrCodeServerError = "SERVER_ERROR"
	ErrCodeTOTP        = "TOTP_REQUIRED"
)

// User-facing messages.
const (
	MsgNetworkError       = "Network error. Please check your connection."
	MsgUnauthorized       = "You are not authorized to perform this action."
	MsgSessionExpired     = "Your session has expired. Please log in again."
	MsgInvalidCredentials = "Invalid email or password."
	MsgRequiredField      = "This field is required."
	MsgInvalidEmail       = "Please enter a valid email address."
	MsgPasswordsMismatch  = "Passwords do not match."
	MsgTOTPRequired       = "Two-factor code required."

	MsgLoginSuccess    = "Successfully logged in."
	MsgRegisterSuccess = "Registration successful."
	MsgPasswordChanged = "Password changed successfully."
	MsgSkillCompleted  = "Congratulations! Skill completed."
)

// Sentinel errors
var (
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionExpired     = errors.New("session expired")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrTOTPRequired       = errors.New("two-factor code required")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrPasswordTooShort   = errors.New("password too short")
	ErrRequiredField      = errors.New("required field missing")
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrRateLimited        = errors.New("rate limited")
	ErrConnectionLost     = errors.New("connection lost")
	ErrInvalidProgress    = errors.New("progress must be between 0 and 100")
	ErrNotFound           = errors.New("not found")
)

// APIError represents an error from the API.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
	RequestID  string `json:"request_id,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// Is maps well-known status codes onto sentinels so callers can use errors.Is.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotAuthenticated:
		return e.StatusCode == 401
	case ErrRateLimited:
		return e.StatusCode == 429
	case ErrNotFound:
		return e.StatusCode == 404
	}
	return false
}

// CodeForStatus picks an error code for an HTTP status.
func CodeForStatus(status int) string {
	switch {
	case status == 401 || status == 403:
		return ErrCodeAuth
	case status == 404:
		return ErrCodeNotFound
	case status == 429:
		return ErrCodeRateLimit
	case status >= 500:
		return ErrCodeServerError
	case status >= 400:
		return ErrCodeValidation
	default:
		return ""
	}
}

// AuthError provides detailed authentication failure information.
type AuthError struct {
	Op    string
	Email string
	Err   error
}

func (e *AuthError) Error() string {
	if e.Email != "" {
		return fmt.Sprintf("auth %s [%s]: %v", e.Op, e.Email, e.Err)
	}
	return fmt.Sprintf("auth %s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// StorageError wraps a failure of the session store.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// UserMessage converts an error into text suitable for a notification.
func UserMessage(err error) string {
	var apiErr *APIError

	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return MsgInvalidCredentials
	case errors.Is(err, ErrSessionExpired):
		return MsgSessionExpired
	case errors.Is(err, ErrTOTPRequired):
		return MsgTOTPRequired
	case errors.Is(err, ErrNotAuthenticated):
		return MsgUnauthorized
	case errors.Is(err, ErrInvalidEmail):
		return MsgInvalidEmail
	case errors.Is(err, ErrRequiredField):
		return MsgRequiredField
	case errors.Is(err, ErrConnectionLost):
		return MsgNetworkError
	case errors.As(err, &apiErr) && apiErr.Message != "":
		return apiErr.Message
	}

	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return valErr.Reason
	}

	return err.Error()
}
