package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestEncryptDecrypt(t *testing.T) {
	sealed, err := Encrypt([]byte("EAAB-page-token"), []byte(testKey))
	require.NoError(t, err)
	assert.NotContains(t, sealed, "EAAB")

	again, err := Encrypt([]byte("EAAB-page-token"), []byte(testKey))
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ per call")

	plain, err := Decrypt(sealed, []byte(testKey))
	require.NoError(t, err)
	assert.Equal(t, "EAAB-page-token", plain)

	_, err = Decrypt(sealed, []byte(strings.Repeat("x", 32)))
	assert.Error(t, err)

	_, err = Decrypt("AAAA", []byte(testKey))
	assert.Error(t, err)
}

func TestToken(t *testing.T) {
	token, err := GenerateToken(testKey, 42, time.Hour)
	require.NoError(t, err)

	claims, err := ValidateToken(testKey, token)
	require.NoError(t, err)
	assert.EqualValues(t, 42, claims.UserID)
	assert.Equal(t, "nextpost", claims.Issuer)

	_, err = ValidateToken("another-secret", token)
	assert.Error(t, err)

	expired, err := GenerateToken(testKey, 42, -time.Minute)
	require.NoError(t, err)
	_, err = ValidateToken(testKey, expired)
	assert.Error(t, err)
}

func TestStateToken(t *testing.T) {
	first, err := GenerateStateToken(testKey, 7, "instagram_feed", 10*time.Minute)
	require.NoError(t, err)
	second, err := GenerateStateToken(testKey, 7, "instagram_feed", 10*time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	state, err := ValidateStateToken(testKey, first)
	require.NoError(t, err)
	assert.EqualValues(t, 7, state.UserID)
	assert.Equal(t, "instagram_feed", state.Platform)
	assert.NotEmpty(t, state.ID)
}
