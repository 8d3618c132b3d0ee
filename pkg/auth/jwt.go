// Package auth provides JWT validation and request rate limiting.
package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Validation failures callers are expected to branch on. ErrExpiredToken
// and ErrInvalidSignature are returned unwrapped.
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrMissingToken     = errors.New("missing authentication token")
	ErrInvalidClaims    = errors.New("invalid token claims")
)

// Claims represents the JWT claims. UserID doubles as the owner id every
// graph row is scoped by.
type Claims struct {
	UserID string `json:"sub"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

func (c *Claims) hasAnyAudience(expected []string) bool {
	for _, aud := range expected {
		if slices.Contains(c.Audience, aud) {
			return true
		}
	}
	return false
}

// JWTConfig configures token verification.
type JWTConfig struct {
	SigningMethod string   // RS256 or HS256
	PublicKey     string   // PEM, for RS256
	SecretKey     string   // For HS256
	Issuer        string   // Expected issuer, unchecked when empty
	Audience      []string // Accepted audiences, unchecked when empty
}

// JWTValidator verifies bearer tokens and extracts their claims.
type JWTValidator struct {
	method   jwt.SigningMethod
	key      interface{}
	issuer   string
	audience []string
}

// NewJWTValidator builds a validator for the configured signing method.
func NewJWTValidator(config JWTConfig) (*JWTValidator, error) {
	method, err := parseSigningMethod(config.SigningMethod)
	if err != nil {
		return nil, err
	}

	var key interface{}
	if method == jwt.SigningMethodRS256 {
		if config.PublicKey == "" {
			return nil, errors.New("public key required for RS256")
		}
		pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(config.PublicKey))
		if err != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
		key = pub
	} else {
		if config.SecretKey == "" {
			return nil, errors.New("secret key required for HS256")
		}
		key = []byte(config.SecretKey)
	}

	return &JWTValidator{
		method:   method,
		key:      key,
		issuer:   config.Issuer,
		audience: config.Audience,
	}, nil
}

// ValidateToken verifies the token signature and registered claims and
// returns the parsed claims. A leading "Bearer " scheme is tolerated.
func (v *JWTValidator) ValidateToken(tokenString string) (*Claims, error) {
	raw := strings.TrimSpace(tokenString)
	raw = strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))
	if raw == "" {
		return nil, ErrMissingToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, v.keyFor)
	if err != nil {
		return nil, mapParseError(err)
	}
	if !token.Valid {
		return nil, ErrInvalidClaims
	}
	if err := v.checkClaims(claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (v *JWTValidator) keyFor(token *jwt.Token) (interface{}, error) {
	if token.Method.Alg() != v.method.Alg() {
		return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
	}
	return v.key, nil
}

func (v *JWTValidator) checkClaims(claims *Claims) error {
	if v.issuer != "" && claims.Issuer != v.issuer {
		return fmt.Errorf("%w: invalid issuer", ErrInvalidClaims)
	}
	if len(v.audience) > 0 && !claims.hasAnyAudience(v.audience) {
		return fmt.Errorf("%w: invalid audience", ErrInvalidClaims)
	}
	if claims.UserID == "" {
		return fmt.Errorf("%w: missing subject", ErrInvalidClaims)
	}
	return nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpiredToken
	case errors.Is(err, jwt.ErrSignatureInvalid):
		return ErrInvalidSignature
	default:
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
}

// JWTGeneratorConfig configures token minting.
type JWTGeneratorConfig struct {
	SigningMethod string        // RS256 or HS256
	PrivateKey    string        // PEM, for RS256
	SecretKey     string        // For HS256
	Issuer        string        // Token issuer
	Audience      []string      // Token audience
	ExpiryTime    time.Duration // Token lifetime
}

// JWTGenerator mints tokens the validator accepts.
type JWTGenerator struct {
	method   jwt.SigningMethod
	key      interface{}
	issuer   string
	audience []string
	expiry   time.Duration
}

// NewJWTGenerator builds a generator for the configured signing method.
func NewJWTGenerator(config JWTGeneratorConfig) (*JWTGenerator, error) {
	method, err := parseSigningMethod(config.SigningMethod)
	if err != nil {
		return nil, err
	}

	var key interface{}
	if method == jwt.SigningMethodRS256 {
		if config.PrivateKey == "" {
			return nil, errors.New("private key required for RS256")
		}
		priv, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(config.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		key = priv
	} else {
		if config.SecretKey == "" {
			return nil, errors.New("secret key required for HS256")
		}
		key = []byte(config.SecretKey)
	}

	return &JWTGenerator{
		method:   method,
		key:      key,
		issuer:   config.Issuer,
		audience: config.Audience,
		expiry:   config.ExpiryTime,
	}, nil
}

// GenerateToken mints a signed token for the user.
func (g *JWTGenerator) GenerateToken(userID, email string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    g.issuer,
			Subject:   userID,
			Audience:  g.audience,
			ExpiresAt: jwt.NewNumericDate(now.Add(g.expiry)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(g.method, claims).SignedString(g.key)
}

func parseSigningMethod(name string) (jwt.SigningMethod, error) {
	switch name {
	case "HS256":
		return jwt.SigningMethodHS256, nil
	case "RS256":
		return jwt.SigningMethodRS256, nil
	default:
		return nil, fmt.Errorf("unsupported signing method: %s", name)
	}
}

// UserContext carries the authenticated caller through a request.
type UserContext struct {
	UserID string
	Email  string
}

type contextKey struct{}

// SetUserInContext stores the authenticated user on the context.
func SetUserInContext(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// GetUserFromContext returns the authenticated user stored on the context.
func GetUserFromContext(ctx context.Context) (*UserContext, error) {
	user, _ := ctx.Value(contextKey{}).(*UserContext)
	if user == nil {
		return nil, errors.New("no authenticated user in request context")
	}
	return user, nil
}
