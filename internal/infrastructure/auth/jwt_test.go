package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/claimsync/internal/infrastructure/config"
)

func newTestService() *ServiceTokenService {
	return NewServiceTokenService(config.AuthConfig{
		Enabled: true,
		Secret:  "test-secret-key-at-least-32-chars",
		Issuer:  "claimsync-test",
	})
}

func TestNewServiceTokenService(t *testing.T) {
	svc := newTestService()
	assert.Equal(t, DefaultAudience, svc.audience)
	assert.Equal(t, "claimsync-test", svc.issuer)
	assert.Equal(t, DefaultTokenTTL, svc.ttl)

	custom := NewServiceTokenService(config.AuthConfig{Secret: "s", Audience: "other"})
	assert.Equal(t, "other", custom.audience)
}

func TestServiceToken_RoundTrip(t *testing.T) {
	svc := newTestService()

	token, err := svc.GenerateToken("returns-ui")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "returns-ui", claims.Subject)
	assert.Equal(t, jwt.ClaimStrings{DefaultAudience}, claims.Audience)
	assert.Equal(t, "claimsync-test", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestServiceToken_Rejections(t *testing.T) {
	svc := newTestService()

	t.Run("missing subject", func(t *testing.T) {
		_, err := svc.GenerateToken("")
		assert.ErrorIs(t, err, ErrMissingSubject)
	})

	t.Run("expired", func(t *testing.T) {
		issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		svc.now = func() time.Time { return issued }
		token, err := svc.GenerateToken("scheduler")
		require.NoError(t, err)

		svc.now = func() time.Time { return issued.Add(DefaultTokenTTL + time.Minute) }
		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
		svc.now = time.Now
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewServiceTokenService(config.AuthConfig{Secret: "another-secret-key-32-chars-long!"})
		token, err := other.GenerateToken("intruder")
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong audience", func(t *testing.T) {
		other := NewServiceTokenService(config.AuthConfig{Secret: "test-secret-key-at-least-32-chars", Audience: "billing"})
		token, err := other.GenerateToken("billing")
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidAudience)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.ValidateToken("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("none algorithm", func(t *testing.T) {
		claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "x",
			Audience:  jwt.ClaimStrings{DefaultAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
