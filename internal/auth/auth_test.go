package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey    = "unit-test-signing-key"
	testIssuer = "gatelog"
)

func TestIssueAndParse(t *testing.T) {
	tokens, err := Issue("user-1", "frontdesk", testIssuer, testKey, 15*time.Minute, 24*time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, tokens.AccessToken)
	require.NotEmpty(t, tokens.RefreshToken)
	assert.True(t, tokens.RefreshExp.After(tokens.AccessExp))

	claims, err := Parse(tokens.AccessToken, testKey, testIssuer)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "frontdesk", claims.Role)
	assert.Equal(t, testIssuer, claims.Issuer)
}

func TestParseRejectsWrongKey(t *testing.T) {
	tokens, err := Issue("user-1", "admin", testIssuer, testKey, time.Minute, time.Hour)
	require.NoError(t, err)

	_, err = Parse(tokens.AccessToken, "a-different-key", testIssuer)
	assert.Error(t, err)
}

func TestParseRejectsIssuerMismatch(t *testing.T) {
	tokens, err := Issue("user-1", "admin", "someone-else", testKey, time.Minute, time.Hour)
	require.NoError(t, err)

	_, err = Parse(tokens.AccessToken, testKey, testIssuer)
	assert.Error(t, err)
}

func TestParseRejectsExpiredToken(t *testing.T) {
	tokens, err := Issue("user-1", "admin", testIssuer, testKey, -time.Minute, time.Hour)
	require.NoError(t, err)

	_, err = Parse(tokens.AccessToken, testKey, testIssuer)
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", hash)

	assert.True(t, CheckPassword(hash, "hunter2"))
	assert.False(t, CheckPassword(hash, "hunter3"))
	assert.False(t, CheckPassword("not-a-hash", "hunter2"))
}
