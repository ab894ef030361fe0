// Package auth issues and verifies actor tokens (JWT, HS256).
package auth

import (
	"errors"
	"fmt"
	"time"

	"servicenest/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

type ActorClaims struct {
	jwt.RegisteredClaims

	Role models.Role `json:"role"`
}

type Tokens struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret, issuer string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
}

// Issue signs a token whose subject is the actor id.
func (t *Tokens) Issue(actor models.Actor) (string, error) {
	if err := actor.Validate(); err != nil {
		return "", err
	}
	if len(t.secret) == 0 {
		return "", fmt.Errorf("missing signing secret")
	}

	now := t.now()
	claims := ActorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
		Role: actor.Role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify checks the signature, time window and issuer and returns the actor.
func (t *Tokens) Verify(tokenString string) (models.Actor, error) {
	if tokenString == "" {
		return models.Actor{}, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}

	claims := &ActorClaims{}
	tok, err := jwt.NewParser(opts...).ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	})
	if err != nil {
		return models.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tok.Valid {
		return models.Actor{}, ErrInvalidToken
	}

	actor := models.Actor{Role: claims.Role, ID: claims.Subject}
	if err := actor.Validate(); err != nil {
		return models.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return actor, nil
}
