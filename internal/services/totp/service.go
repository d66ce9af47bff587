package totp

import (
	"errors"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// ErrEmptySecret is returned when no secret is supplied.
var ErrEmptySecret = errors.New("totp: secret cannot be empty")

// Service generates and checks time-based one-time passwords.
type Service interface {
	// GenerateCode generates a code for the current time.
	GenerateCode(secret string) (string, error)

	// ValidateCode checks a code for the current time, allowing one period
	// of clock skew either way.
	ValidateCode(secret, code string) bool

	// GenerateCodeAtTime generates a code for a specific time.
	GenerateCodeAtTime(secret string, t time.Time) (string, error)
}

// DefaultService implements Service on github.com/pquerna/otp.
type DefaultService struct {
	period    uint
	skew      uint
	digits    otp.Digits
	algorithm otp.Algorithm
	now       func() time.Time
}

// Option configures a DefaultService.
type Option func(*DefaultService)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *DefaultService) {
		s.now = now
	}
}

// WithPeriod sets the time step in seconds.
func WithPeriod(period uint) Option {
	return func(s *DefaultService) {
		if period > 0 {
			s.period = period
		}
	}
}

// WithDigits sets the code length (6 or 8).
func WithDigits(digits otp.Digits) Option {
	return func(s *DefaultService) {
		s.digits = digits
	}
}

// WithAlgorithm sets the HMAC hash.
func WithAlgorithm(alg otp.Algorithm) Option {
	return func(s *DefaultService) {
		s.algorithm = alg
	}
}

// NewService creates a TOTP service with the usual authenticator-app
// settings: 30 second period, 6 digits, SHA1.
func NewService(opts ...Option) *DefaultService {
	s := &DefaultService{
		period:    30,
		skew:      1,
		digits:    otp.DigitsSix,
		algorithm: otp.AlgorithmSHA1,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *DefaultService) opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    s.period,
		Skew:      s.skew,
		Digits:    s.digits,
		Algorithm: s.algorithm,
	}
}

// GenerateSecret creates a new random secret for account. The returned key
// carries the otpauth:// URL for enrolment.
func (s *DefaultService) GenerateSecret(issuer, account string) (*otp.Key, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      s.period,
		Digits:      s.digits,
		Algorithm:   s.algorithm,
	})
	if err != nil {
		return nil, fmt.Errorf("totp: generate secret: %w", err)
	}
	return key, nil
}

// GenerateCode generates a code for the service clock's current time.
func (s *DefaultService) GenerateCode(secret string) (string, error) {
	return s.GenerateCodeAtTime(secret, s.now())
}

// GenerateCodeAtTime generates a code for a specific time.
func (s *DefaultService) GenerateCodeAtTime(secret string, t time.Time) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}

	code, err := totp.GenerateCodeCustom(secret, t, s.opts())
	if err != nil {
		return "", fmt.Errorf("totp: failed to generate code: %w", err)
	}

	return code, nil
}

// ValidateCode checks code against secret at the service clock's time.
func (s *DefaultService) ValidateCode(secret, code string) bool {
	return s.ValidateCodeAtTime(secret, code, s.now())
}

// ValidateCodeAtTime checks code against secret at t.
func (s *DefaultService) ValidateCodeAtTime(secret, code string, t time.Time) bool {
	if secret == "" || code == "" {
		return false
	}

	ok, err := totp.ValidateCustom(code, secret, t, s.opts())
	return err == nil && ok
}

// GetTimeWindow returns the current step counter and the time left in it.
func (s *DefaultService) GetTimeWindow() (current int64, remaining time.Duration) {
	now := s.now()
	current = now.Unix() / int64(s.period)

	nextWindow := (current + 1) * int64(s.period)
	remaining = time.Unix(nextWindow, 0).Sub(now)

	return current, remaining
}

// IsValidSecret checks if a secret string decodes as base32.
func (s *DefaultService) IsValidSecret(secret string) error {
	if secret == "" {
		return ErrEmptySecret
	}

	if _, err := totp.GenerateCodeCustom(secret, s.now(), s.opts()); err != nil {
		return fmt.Errorf("totp: invalid secret format: %w", err)
	}

	return nil
}

var _ Service = (*DefaultService)(nil)
