package server

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/longform-writer/internal/config"
	"github.com/jonathan/longform-writer/internal/server/middleware"
)

const testSecret = "test-secret-key-for-jwt-signing-minimum-32-bytes"

func setupTestJWTService(_ *testing.T, ttl time.Duration) *JWTService {
	return NewJWTService(&config.JWTConfig{Secret: testSecret, Expiration: ttl})
}

func TestJWTService_RoundTrip(t *testing.T) {
	service := setupTestJWTService(t, time.Hour)

	token, err := service.GenerateToken("alice")
	require.NoError(t, err)
	assert.Len(t, strings.Split(token, "."), 3)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, middleware.RoleOperator, claims.Role)
	sub, err := claims.GetSubject()
	require.NoError(t, err)
	assert.Equal(t, "alice", sub)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestJWTService_ValidateToken_Rejects(t *testing.T) {
	service := setupTestJWTService(t, time.Hour)
	other := NewJWTService(&config.JWTConfig{Secret: "a-completely-different-secret-value", Expiration: time.Hour})
	foreign, err := other.GenerateToken("mallory")
	require.NoError(t, err)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Role: middleware.RoleOperator,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	expiredToken, err := expired.SignedString([]byte(testSecret))
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Role: middleware.RoleOperator})
	noneToken, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantErr string
	}{
		{"empty", "", "empty"},
		{"garbage", "not.a.jwt", "malformed"},
		{"wrong secret", foreign, "signature"},
		{"expired", expiredToken, "expired"},
		{"alg none", noneToken, "signature"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.ValidateToken(tt.token)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestJWTService_AsTokenValidator(t *testing.T) {
	service := setupTestJWTService(t, time.Hour)
	token, err := service.GenerateToken("ops")
	require.NoError(t, err)

	claims, err := service.AsTokenValidator().ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, middleware.RoleOperator, claims.GetRole())

	_, err = service.AsTokenValidator().ValidateToken("bad")
	assert.Error(t, err)
}
