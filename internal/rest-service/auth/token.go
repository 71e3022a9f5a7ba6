package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const TokenType = "bearer"

var (
	ErrInvalidToken         = errors.New("invalid token")
	ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")
)

// Claims carries the user id as the subject plus the username.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

type Tokens struct {
	secret []byte
	method jwt.SigningMethod
	now    func() time.Time
}

// NewTokens accepts the HMAC algorithms only: the secret is a shared key.
func NewTokens(secret []byte, algorithm string) (*Tokens, error) {
	if len(secret) == 0 {
		return nil, errors.New("token secret is empty")
	}
	var method jwt.SigningMethod
	switch algorithm {
	case "", jwt.SigningMethodHS256.Alg():
		method = jwt.SigningMethodHS256
	case jwt.SigningMethodHS384.Alg():
		method = jwt.SigningMethodHS384
	case jwt.SigningMethodHS512.Alg():
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, algorithm)
	}
	return &Tokens{secret: secret, method: method, now: time.Now}, nil
}

func (t *Tokens) Issue(claims Claims, ttl time.Duration) (string, error) {
	now := t.now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	return jwt.NewWithClaims(t.method, claims).SignedString(t.secret)
}

// Verify returns the claims of a well signed, unexpired token.
// Every failure wraps ErrInvalidToken.
func (t *Tokens) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) {
			return t.secret, nil
		},
		jwt.WithValidMethods([]string{t.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
