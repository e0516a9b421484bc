// Package auth verifies the bearer credential presented at the websocket
// handshake. Tokens are issued by the web app's login route; the relay only
// checks them.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/beamchat/relay/internal/domain"
)

var (
	ErrMissingToken = errors.New("no token provided")
	ErrInvalidToken = errors.New("invalid token")
)

// claims mirrors the payload the identity service signs. Field names are a
// compatibility contract with the issuer; do not rename.
type claims struct {
	jwt.RegisteredClaims
	UserID string `json:"_id"`
	Name   string `json:"name"`
}

// Verifier validates HS256 tokens against the shared signing secret. It is
// stateless and safe for concurrent use.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// Verify checks signature and expiry and extracts the identity.
func (v *Verifier) Verify(token string) (domain.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Identity{}, ErrMissingToken
	}

	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.UserID == "" {
		return domain.Identity{}, fmt.Errorf("%w: missing user id claim", ErrInvalidToken)
	}
	return domain.Identity{UserID: domain.UserID(c.UserID), Name: c.Name}, nil
}
