package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, CheckPassword("correct horse battery staple", hash))
	assert.False(t, CheckPassword("wrong password", hash))
}

func TestHashPasswordUniqueSalt(t *testing.T) {
	h1, err := HashPassword("same-password")
	require.NoError(t, err)
	h2, err := HashPassword("same-password")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2, "two hashes of the same password must use distinct salts")
}

func TestGenerateAndValidateJWT(t *testing.T) {
	SetJWTSecret("test-secret")
	token, err := GenerateJWT("alice", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
}

func TestValidateJWTRejectsExpired(t *testing.T) {
	SetJWTSecret("test-secret")
	token, err := GenerateJWT("bob", -time.Minute)
	require.NoError(t, err)

	_, err = ValidateJWT(token)
	assert.Error(t, err)
}

func TestBlacklistRevokesToken(t *testing.T) {
	SetJWTSecret("test-secret")
	SetDatabase(nil)
	token, err := GenerateJWT("carol", time.Hour)
	require.NoError(t, err)

	_, err = ValidateJWT(token)
	require.NoError(t, err)

	BlacklistToken(token, time.Now().Add(time.Hour))
	_, err = ValidateJWT(token)
	assert.Error(t, err)
}

func TestBlacklistExpiresFromMemory(t *testing.T) {
	SetDatabase(nil)
	token := "some-opaque-token"
	BlacklistToken(token, time.Now().Add(-time.Second))
	assert.False(t, IsTokenBlacklisted(token), "an already-expired blacklist entry must not block the token")
}
