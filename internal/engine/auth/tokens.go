package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"hamasa/internal/domain"
)

type TokenType string

const (
	AccessToken  TokenType = "access"
	RefreshToken TokenType = "refresh"
	ServiceToken TokenType = "service"
)

// Claims is the signed payload of every token.
type Claims struct {
	jwt.RegisteredClaims
	Role     string    `json:"role"`
	UserType string    `json:"user_type"`
	Email    string    `json:"email,omitempty"`
	ClientID string    `json:"client_id,omitempty"`
	Type     TokenType `json:"type"`
}

// Tokens issues and decodes HS256 bearer tokens.
type Tokens struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ServiceTTL time.Duration
	Now        func() time.Time
}

func (t Tokens) now() time.Time {
	if t.Now == nil {
		return time.Now()
	}
	return t.Now()
}

func (t Tokens) ttl(typ TokenType) time.Duration {
	switch typ {
	case RefreshToken:
		return t.RefreshTTL
	case ServiceToken:
		return t.ServiceTTL
	}
	return t.AccessTTL
}

// Issue signs a token of the given type for p.
func (t Tokens) Issue(p Principal, typ TokenType) (string, time.Time, error) {
	if strings.TrimSpace(t.Secret) == "" {
		return "", time.Time{}, errors.New("jwt secret not configured")
	}
	now := t.now()
	exp := now.Add(t.ttl(typ))
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Role:     string(p.Role),
		UserType: string(p.UserType),
		Email:    p.Email,
		ClientID: p.ClientID,
		Type:     typ,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(t.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Decode verifies signature and expiry and requires sub and role. Every
// failure is an UnauthenticatedError.
func (t Tokens) Decode(token string) (Claims, error) {
	if strings.TrimSpace(t.Secret) == "" {
		return Claims{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	claims := Claims{}
	parsed, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return []byte(t.Secret), nil
	})
	if err != nil || !parsed.Valid {
		return Claims{}, UnauthenticatedError{}
	}
	if claims.Subject == "" || claims.Role == "" {
		return Claims{}, UnauthenticatedError{}
	}
	if claims.Type == "" {
		claims.Type = AccessToken
	}
	return claims, nil
}

// Principal turns verified claims into an unresolved principal. Role and user
// type are validated against the closed sets.
func (c Claims) Principal() (Principal, error) {
	ut := domain.UserTypeStaff
	if c.UserType != "" {
		parsed, err := domain.ParseUserType(c.UserType)
		if err != nil {
			return Principal{}, UnauthenticatedError{}
		}
		ut = parsed
	}
	role, err := domain.ParseRole(ut, c.Role)
	if err != nil {
		return Principal{}, UnauthenticatedError{}
	}
	return Principal{
		ID:       c.Subject,
		Role:     role,
		UserType: ut,
		Email:    c.Email,
		ClientID: c.ClientID,
		Source:   "jwt",
	}, nil
}
