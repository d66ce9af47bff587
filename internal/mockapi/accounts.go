package mockapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/castleatlas/atlas/internal/crypto"
	"github.com/castleatlas/atlas/internal/models"
	"github.com/castleatlas/atlas/internal/sanitize"
)

// account is a stored user. The password is kept as Hash(salt+password).
type account struct {
	user         models.User
	salt         string
	passwordHash string
	totpSecret   string
}

type resetCode struct {
	email   string
	expires time.Time
}

func normalizeEmail(email string) string {
	return sanitize.NormalizeEmail(email)
}

// validateRequest checks req's validate tags, answering failures with 400 and
// the field's user-facing reason.
func validateRequest(req interface{}) error {
	err := models.Validate(req)
	if err == nil {
		return nil
	}

	var valErr *models.ValidationError
	if errors.As(err, &valErr) {
		return apiError(http.StatusBadRequest, valErr.Reason)
	}
	return apiError(http.StatusBadRequest, "Malformed request body")
}

func (s *Server) addUser(id, name, email, password string) (*account, error) {
	salt, err := s.crypto.GenerateToken(passwordSaltSize)
	if err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	acct := &account{
		user: models.User{
			ID:        id,
			Email:     normalizeEmail(email),
			Name:      name,
			CreatedAt: s.now().UTC(),
		},
		salt:         salt,
		passwordHash: s.crypto.Hash(salt + password),
	}
	s.users[acct.user.Email] = acct
	return acct, nil
}

func (s *Server) userByID(id string) *account {
	for _, acct := range s.users {
		if acct.user.ID == id {
			return acct
		}
	}
	return nil
}

func (a *account) checkPassword(u *crypto.Utility, password string) bool {
	return crypto.SecureCompare(a.passwordHash, u.Hash(a.salt+password))
}

func (s *Server) setPassword(a *account, password string) error {
	salt, err := s.crypto.GenerateToken(passwordSaltSize)
	if err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}
	a.salt = salt
	a.passwordHash = s.crypto.Hash(salt + password)
	return nil
}

func (s *Server) authResponse(a *account) (*models.AuthResponse, error) {
	token, err := s.issueToken(a.user.ID)
	if err != nil {
		return nil, err
	}
	return &models.AuthResponse{Token: token, User: a.user}, nil
}

func (s *Server) login(payload interface{}) (interface{}, error) {
	var req models.LoginRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	req.Email = normalizeEmail(req.Email)
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	acct, ok := s.users[req.Email]
	if !ok || !acct.checkPassword(s.crypto, req.Password) {
		return nil, apiError(http.StatusUnauthorized, models.MsgInvalidCredentials)
	}

	if acct.totpSecret != "" {
		if req.TOTP == "" {
			err := apiError(http.StatusUnauthorized, models.MsgTOTPRequired)
			err.Code = models.ErrCodeTOTP
			return nil, err
		}
		if !s.totp.ValidateCode(acct.totpSecret, req.TOTP) {
			return nil, apiError(http.StatusUnauthorized, models.MsgInvalidCredentials)
		}
	}

	s.logger.WithField("user_id", acct.user.ID).Info("User signed in")
	return s.authResponse(acct)
}

func (s *Server) register(payload interface{}) (interface{}, error) {
	var req models.RegisterRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = normalizeEmail(req.Email)
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	email := req.Email

	if _, exists := s.users[email]; exists {
		return nil, apiError(http.StatusConflict, "An account with this email already exists.")
	}

	acct, err := s.addUser(uuid.NewString(), req.Name, email, req.Password)
	if err != nil {
		return nil, err
	}
	s.progress[acct.user.ID] = newUserProgress()

	s.logger.WithField("user_id", acct.user.ID).Info("User registered")
	return s.authResponse(acct)
}

func (s *Server) refresh(token string) (interface{}, error) {
	acct, err := s.authenticate(token)
	if err != nil {
		return nil, err
	}
	return s.authResponse(acct)
}

func (s *Server) me(token string) (interface{}, error) {
	acct, err := s.authenticate(token)
	if err != nil {
		return nil, err
	}
	return acct.user, nil
}

// resetSent is returned whether or not the account exists.
const resetSent = "If an account exists for that email, a reset link has been sent."

func (s *Server) requestReset(payload interface{}) (interface{}, error) {
	var req models.ResetRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}

	req.Email = normalizeEmail(req.Email)
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	email := req.Email

	if _, ok := s.users[email]; ok {
		token, err := s.crypto.GenerateToken(resetTokenSize)
		if err != nil {
			return nil, fmt.Errorf("generate reset token: %w", err)
		}

		s.resets[s.crypto.Hash(token)] = resetCode{
			email:   email,
			expires: s.now().Add(s.resetTTL),
		}
		s.mailbox[email] = token
	}

	return map[string]string{"message": resetSent}, nil
}

func (s *Server) confirmReset(payload interface{}) (interface{}, error) {
	var req models.ResetConfirm
	if err := decode(payload, &req); err != nil {
		return nil, err
	}

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	key := s.crypto.Hash(req.Token)
	code, ok := s.resets[key]
	if !ok || !s.now().Before(code.expires) {
		delete(s.resets, key)
		return nil, apiError(http.StatusBadRequest, "Invalid or expired reset token.")
	}

	acct, ok := s.users[code.email]
	if !ok {
		delete(s.resets, key)
		return nil, apiError(http.StatusBadRequest, "Invalid or expired reset token.")
	}

	if err := s.setPassword(acct, req.NewPassword); err != nil {
		return nil, err
	}
	delete(s.resets, key)

	return map[string]string{"message": models.MsgPasswordChanged}, nil
}

// enableTOTP turns on two-factor login for the signed-in user and returns the
// new secret.
func (s *Server) enableTOTP(token string) (interface{}, error) {
	acct, err := s.authenticate(token)
	if err != nil {
		return nil, err
	}

	key, err := s.totp.GenerateSecret("Castle Atlas", acct.user.Email)
	if err != nil {
		return nil, err
	}

	acct.totpSecret = key.Secret()
	acct.user.TOTPEnabled = true

	return map[string]string{
		"secret": key.Secret(),
		"url":    key.URL(),
	}, nil
}

// DeliveredResetToken returns the last reset token "emailed" to email. It
// stands in for the user's inbox.
func (s *Server) DeliveredResetToken(email string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.mailbox[normalizeEmail(email)]
	return token, ok
}

// EnableTOTP sets a known TOTP secret on an existing account.
func (s *Server) EnableTOTP(email, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.users[normalizeEmail(email)]
	if !ok {
		return models.ErrUserNotFound
	}
	if err := s.totp.IsValidSecret(secret); err != nil {
		return err
	}

	acct.totpSecret = secret
	acct.user.TOTPEnabled = true
	return nil
}
