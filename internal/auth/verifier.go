// Package auth is the upstream token-verification collaborator. It is
// consulted only when a join carries both a token and a user identity; the
// coordinator never authenticates anything itself.
package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
)

// TokenPayload is the verified identity extracted from a bearer token.
type TokenPayload struct {
	UserID   string
	Username string
}

// Claims is the expected JWT claim set.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Verifier checks bearer tokens with an HMAC secret.
type Verifier struct {
	secret []byte
	log    *logrus.Entry
}

// NewVerifier creates a Verifier. The secret must be non-empty.
func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("token secret cannot be empty")
	}
	return &Verifier{
		secret: []byte(secret),
		log:    logrus.WithField("component", "token_verifier"),
	}, nil
}

// Verify returns the token payload, or nil for any invalid, expired or
// malformed token. clientIP is recorded for audit logging only.
func (v *Verifier) Verify(token, clientIP string) *TokenPayload {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		v.log.WithError(err).WithField("client_ip", clientIP).Warn("Token verification failed")
		return nil
	}
	if claims.UserID == "" {
		v.log.WithField("client_ip", clientIP).Warn("Token valid but carries no user identity")
		return nil
	}
	return &TokenPayload{UserID: claims.UserID, Username: claims.Username}
}
