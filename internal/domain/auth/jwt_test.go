package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkcore/internal/core/apperror"
)

func TestJWTRoundTrip(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("test-secret"))

	token, expiresAt, err := svc.GenerateAccessToken("alice")
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	operator, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", operator)
}

func TestJWTWrongSecret(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("test-secret"))
	token, _, err := svc.GenerateAccessToken("alice")
	require.NoError(t, err)

	other := NewJWTService(DefaultJWTConfig("other-secret"))
	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTExpiredToken(t *testing.T) {
	cfg := DefaultJWTConfig("test-secret")
	cfg.AccessTokenTTL = -time.Minute
	svc := NewJWTService(cfg)

	token, _, err := svc.GenerateAccessToken("alice")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.Error(t, err)
}

func TestLogin(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)

	jwtSvc := NewJWTService(DefaultJWTConfig("test-secret"))
	svc := NewService(map[string]string{"alice": hash}, jwtSvc)
	ctx := context.Background()

	t.Run("valid credentials", func(t *testing.T) {
		token, expiresAt, err := svc.Login(ctx, "alice", "hunter2")
		require.NoError(t, err)
		assert.NotEmpty(t, token)
		assert.True(t, expiresAt.After(time.Now()))

		operator, err := jwtSvc.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, "alice", operator)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, _, err := svc.Login(ctx, "alice", "wrong")
		require.Error(t, err)
		appErr, ok := apperror.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperror.CodeUnauthorized, appErr.Code)
	})

	t.Run("unknown operator", func(t *testing.T) {
		_, _, err := svc.Login(ctx, "mallory", "hunter2")
		require.Error(t, err)
		appErr, ok := apperror.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperror.CodeUnauthorized, appErr.Code)
	})
}
