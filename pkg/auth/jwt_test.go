package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-secret"

func newTestValidator(t *testing.T, issuer string, audience ...string) *JWTValidator {
	t.Helper()
	v, err := NewJWTValidator(JWTConfig{
		SigningMethod: "HS256",
		SecretKey:     testSecret,
		Issuer:        issuer,
		Audience:      audience,
	})
	require.NoError(t, err)
	return v
}

func mintTestToken(t *testing.T, secret, issuer, userID string, expiry time.Duration) string {
	t.Helper()
	g, err := NewJWTGenerator(JWTGeneratorConfig{
		SigningMethod: "HS256",
		SecretKey:     secret,
		Issuer:        issuer,
		ExpiryTime:    expiry,
	})
	require.NoError(t, err)
	token, err := g.GenerateToken(userID, userID+"@example.com")
	require.NoError(t, err)
	return token
}

func TestValidateToken_RoundTrip(t *testing.T) {
	v := newTestValidator(t, "trellis")
	token := mintTestToken(t, testSecret, "trellis", "user-1", time.Hour)

	claims, err := v.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "user-1@example.com", claims.Email)
	assert.Equal(t, "trellis", claims.Issuer)
}

func TestValidateToken_AcceptsBearerScheme(t *testing.T) {
	v := newTestValidator(t, "trellis")
	token := mintTestToken(t, testSecret, "trellis", "user-1", time.Hour)

	claims, err := v.ValidateToken("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
}

func TestValidateToken_Expired(t *testing.T) {
	v := newTestValidator(t, "trellis")
	token := mintTestToken(t, testSecret, "trellis", "user-1", -time.Minute)

	_, err := v.ValidateToken(token)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateToken_WrongKey(t *testing.T) {
	v := newTestValidator(t, "trellis")
	token := mintTestToken(t, "a-different-secret", "trellis", "user-1", time.Hour)

	_, err := v.ValidateToken(token)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestValidateToken_IssuerMismatch(t *testing.T) {
	v := newTestValidator(t, "trellis")
	token := mintTestToken(t, testSecret, "someone-else", "user-1", time.Hour)

	_, err := v.ValidateToken(token)
	require.ErrorIs(t, err, ErrInvalidClaims)
}

func TestValidateToken_AudienceChecked(t *testing.T) {
	v := newTestValidator(t, "", "kb-api")

	g, err := NewJWTGenerator(JWTGeneratorConfig{
		SigningMethod: "HS256",
		SecretKey:     testSecret,
		Audience:      []string{"kb-api", "kb-worker"},
		ExpiryTime:    time.Hour,
	})
	require.NoError(t, err)
	accepted, err := g.GenerateToken("user-1", "user-1@example.com")
	require.NoError(t, err)

	_, err = v.ValidateToken(accepted)
	assert.NoError(t, err)

	other := mintTestToken(t, testSecret, "", "user-1", time.Hour)
	_, err = v.ValidateToken(other)
	assert.ErrorIs(t, err, ErrInvalidClaims)
}

func TestValidateToken_MissingSubject(t *testing.T) {
	v := newTestValidator(t, "trellis")
	token := mintTestToken(t, testSecret, "trellis", "", time.Hour)

	_, err := v.ValidateToken(token)
	require.ErrorIs(t, err, ErrInvalidClaims)
}

func TestValidateToken_EmptyAndMalformed(t *testing.T) {
	v := newTestValidator(t, "trellis")

	_, err := v.ValidateToken("")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = v.ValidateToken("Bearer ")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = v.ValidateToken("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewJWTValidator_ConfigErrors(t *testing.T) {
	_, err := NewJWTValidator(JWTConfig{SigningMethod: "none"})
	assert.Error(t, err)

	_, err = NewJWTValidator(JWTConfig{SigningMethod: "HS256"})
	assert.Error(t, err)

	_, err = NewJWTValidator(JWTConfig{SigningMethod: "RS256"})
	assert.Error(t, err)

	_, err = NewJWTValidator(JWTConfig{SigningMethod: "RS256", PublicKey: "not a pem"})
	assert.Error(t, err)
}

func TestUserContext_RoundTrip(t *testing.T) {
	ctx := SetUserInContext(context.Background(), &UserContext{UserID: "user-1", Email: "u@example.com"})

	user, err := GetUserFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.UserID)

	_, err = GetUserFromContext(context.Background())
	assert.Error(t, err)
}
