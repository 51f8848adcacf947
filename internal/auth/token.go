package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// SessionUserID maps an anonymous session id into its own user-id namespace.
func SessionUserID(sessionID string) string {
	return "session:" + sessionID
}

// TokenService signs and verifies the short-lived HS256 credentials the push
// stream carries as a query parameter (SSE cannot send custom headers). The
// subject is the user id. An empty secret disables JWT verification entirely,
// leaving only anonymous session ids.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenService(secret string, ttl time.Duration) *TokenService {
	return &TokenService{secret: []byte(strings.TrimSpace(secret)), ttl: ttl}
}

func (s *TokenService) Enabled() bool {
	return len(s.secret) > 0
}

func (s *TokenService) Issue(userID string) (string, error) {
	if !s.Enabled() {
		return "", ErrInvalidToken
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	})
	return token.SignedString(s.secret)
}

// Verify returns the user id carried by the token.
func (s *TokenService) Verify(tokenString string) (string, error) {
	if !s.Enabled() {
		return "", ErrInvalidToken
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
