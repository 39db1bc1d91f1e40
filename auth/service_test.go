package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAPIKey(t *testing.T) {
	hash, err := HashAPIKey("test-api-key")
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("test-api-key")))
	assert.Error(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("wrong-key")))
}
