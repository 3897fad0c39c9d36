package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJWTConfig() *JWTConfig {
	return &JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "circlechat",
		Audience: "circlechat",
		TTL:      time.Hour,
	}
}

func TestTokenRoundTrip(t *testing.T) {
	cfg := testJWTConfig()

	token, err := GenerateToken(cfg, "user-1", "alice")
	require.NoError(t, err)

	claims, err := ValidateToken(cfg, token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "alice", claims.Username)
}

func TestTokenRejectedWithWrongSecret(t *testing.T) {
	cfg := testJWTConfig()
	token, err := GenerateToken(cfg, "user-1", "alice")
	require.NoError(t, err)

	other := testJWTConfig()
	other.Secret = []byte("other-secret")
	_, err = ValidateToken(other, token)
	require.Error(t, err)
}

func TestTokenRejectedWithWrongIssuer(t *testing.T) {
	cfg := testJWTConfig()
	token, err := GenerateToken(cfg, "user-1", "alice")
	require.NoError(t, err)

	other := testJWTConfig()
	other.Issuer = "somebody-else"
	_, err = ValidateToken(other, token)
	require.Error(t, err)
}

func TestExpiredTokenRejected(t *testing.T) {
	cfg := testJWTConfig()
	cfg.TTL = -time.Minute

	token, err := GenerateToken(cfg, "user-1", "alice")
	require.NoError(t, err)

	_, err = ValidateToken(cfg, token)
	require.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter22")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22", hash)

	require.NoError(t, ComparePassword(hash, "hunter22"))
	require.Error(t, ComparePassword(hash, "hunter23"))
}
