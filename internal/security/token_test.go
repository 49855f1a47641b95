package security

import (
	"context"
	"testing"
	"time"

	"rentacar-escrow-backend/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager(t *testing.T) {
	tm := NewTokenManager("test-secret")

	t.Run("Round trip", func(t *testing.T) {
		token, err := tm.GenerateAccountToken("GRENTER", time.Hour)
		require.NoError(t, err)

		claims, err := tm.ValidateToken(token)
		assert.NoError(t, err)
		assert.Equal(t, "GRENTER", claims.Account)
	})

	t.Run("Expired token", func(t *testing.T) {
		token, err := tm.GenerateAccountToken("GRENTER", -time.Minute)
		require.NoError(t, err)

		_, err = tm.ValidateToken(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("Wrong secret", func(t *testing.T) {
		token, err := tm.GenerateAccountToken("GRENTER", time.Hour)
		require.NoError(t, err)

		_, err = NewTokenManager("other-secret").ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Garbage token", func(t *testing.T) {
		_, err := tm.ValidateToken("not-a-jwt")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestContextAuthorizer(t *testing.T) {
	auth := NewContextAuthorizer()

	t.Run("Matching identity", func(t *testing.T) {
		ctx := WithCallerAccount(context.Background(), "GADMIN")
		assert.NoError(t, auth.RequireIdentity(ctx, "GADMIN"))
	})

	t.Run("Mismatched identity", func(t *testing.T) {
		ctx := WithCallerAccount(context.Background(), "GRENTER")
		assert.ErrorIs(t, auth.RequireIdentity(ctx, "GADMIN"), domain.ErrNotAuthorized)
	})

	t.Run("No identity", func(t *testing.T) {
		assert.ErrorIs(t, auth.RequireIdentity(context.Background(), "GADMIN"), domain.ErrNotAuthorized)
	})
}
