package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerifyToken(t *testing.T) {
	m := NewJWTManager("test-secret", 1, 7)

	tokenStr, err := m.GenerateToken(42, "shopper@example.com", "customer")
	require.NoError(t, err)
	require.NotEmpty(t, tokenStr)

	claims, err := m.VerifyToken(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "shopper@example.com", claims.Email)
	assert.Equal(t, "customer", claims.Role)
}

func TestVerifyTokenWrongSecret(t *testing.T) {
	m := NewJWTManager("test-secret", 1, 7)
	other := NewJWTManager("another-secret", 1, 7)

	tokenStr, err := m.GenerateToken(1, "a@example.com", "admin")
	require.NoError(t, err)

	_, err = other.VerifyToken(tokenStr)
	assert.Error(t, err)
}

func TestVerifyTokenGarbage(t *testing.T) {
	m := NewJWTManager("test-secret", 1, 7)
	_, err := m.VerifyToken("not.a.token")
	assert.Error(t, err)
}

func TestGenerateRandomStringLength(t *testing.T) {
	s := GenerateRandomString(16)
	// hex 编码后长度翻倍
	assert.Len(t, s, 32)
	assert.NotEqual(t, s, GenerateRandomString(16))
}
