package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenMissing = errors.New("security: token missing")
	ErrTokenInvalid = errors.New("security: token invalid")
)

// Identity is the authenticated caller behind a socket.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// Claims accepts the user id either as "sub" or as the "id" claim the web
// app puts in its session tokens.
type Claims struct {
	UserID string `json:"id,omitempty"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) subject() string {
	if c.Subject != "" {
		return c.Subject
	}
	return c.UserID
}

// JWTVerifier checks HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
	leeway time.Duration
	now    func() time.Time
}

func NewJWTVerifier(secret string, leeway time.Duration) *JWTVerifier {
	if secret == "" {
		panic("security: jwt secret is required")
	}
	return &JWTVerifier{secret: []byte(secret), leeway: leeway, now: time.Now}
}

func (v *JWTVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrTokenMissing
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !parsed.Valid {
		return Identity{}, ErrTokenInvalid
	}
	sub := claims.subject()
	if sub == "" {
		return Identity{}, fmt.Errorf("%w: no subject", ErrTokenInvalid)
	}
	return Identity{UserID: sub, Email: claims.Email, Role: claims.Role}, nil
}

// Sign issues a token for userID. Production tokens come from the web app.
func Sign(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
