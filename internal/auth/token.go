// Package auth verifies bearer tokens minted by the identity provider.
package auth

import (
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const RoleAdmin = "admin"

var ErrInvalidToken = errors.New("invalid token")

// TokenManager issues and validates HS256 tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

// Claims carries the user as known to the identity provider. The subject id lives
// in the registered "sub" claim.
type Claims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) IsAdmin() bool {
	return strings.EqualFold(c.Role, RoleAdmin)
}

// Principal is the authenticated caller.
type Principal struct {
	SubjectID string
	Name      string
	Email     string
	Role      string
}

func (p Principal) IsAdmin() bool {
	return strings.EqualFold(p.Role, RoleAdmin)
}

// Issue signs a token for p that expires after the manager's ttl.
func (tm *TokenManager) Issue(p Principal) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(tm.ttl)
	claims := &Claims{
		Name:  p.Name,
		Email: p.Email,
		Role:  p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.SubjectID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse validates the token and returns the caller it names.
func (tm *TokenManager) Parse(tokenStr string) (Principal, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	})
	if err != nil {
		return Principal{}, errors.Join(ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return Principal{}, ErrInvalidToken
	}
	return Principal{
		SubjectID: claims.Subject,
		Name:      claims.Name,
		Email:     claims.Email,
		Role:      claims.Role,
	}, nil
}
