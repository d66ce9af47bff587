package mockapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var errInvalidToken = errors.New("invalid token")

// issueToken signs an HS256 session token for userID.
func (s *Server) issueToken(userID string) (string, error) {
	now := s.now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	})

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// userIDFromToken validates a session token and returns its subject.
func (s *Server) userIDFromToken(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", err
	}

	if !token.Valid || claims.Subject == "" {
		return "", errInvalidToken
	}

	return claims.Subject, nil
}

// authenticate resolves a bearer token to an account.
func (s *Server) authenticate(token string) (*account, error) {
	if token == "" {
		return nil, apiError(http.StatusUnauthorized, "Authentication required")
	}

	userID, err := s.userIDFromToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apiError(http.StatusUnauthorized, "Session expired")
		}
		return nil, apiError(http.StatusUnauthorized, "Invalid token")
	}

	acct := s.userByID(userID)
	if acct == nil {
		return nil, apiError(http.StatusUnauthorized, "Invalid token")
	}
	return acct, nil
}
