package pinuv

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"testing"

	"github.com/go-ctap/ctap2/pkg/ctaptypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testToken = bytes.Repeat([]byte{0x42}, 32)

func TestNewClientRejectsUnknownProtocol(t *testing.T) {
	_, err := NewClient(ctaptypes.PinUvAuthProtocol(3))
	assert.ErrorIs(t, err, ErrInvalidAuthProtocol)
}

func TestHasToken(t *testing.T) {
	c, err := NewClient(ctaptypes.PinUvAuthProtocolOne)
	require.NoError(t, err)

	assert.False(t, c.HasToken())
	assert.Nil(t, c.Authenticate([]byte{0x01}))

	c.SetToken(testToken)
	assert.True(t, c.HasToken())

	c.Invalidate()
	assert.False(t, c.HasToken())
	assert.Nil(t, c.Authenticate([]byte{0x01}))
}

func TestAuthenticateProtocolOne(t *testing.T) {
	c, err := NewClient(ctaptypes.PinUvAuthProtocolOne)
	require.NoError(t, err)
	c.SetToken(testToken)

	message := []byte{0x02}
	param := c.Authenticate(message)
	require.Len(t, param, 16)

	hasher := hmac.New(sha256.New, testToken)
	hasher.Write(message)
	assert.Equal(t, hasher.Sum(nil)[:16], param)
}

func TestAuthenticateProtocolTwo(t *testing.T) {
	c, err := NewClient(ctaptypes.PinUvAuthProtocolTwo)
	require.NoError(t, err)
	c.SetToken(testToken)

	message := []byte{0x02}
	param := c.Authenticate(message)
	require.Len(t, param, 32)

	hasher := hmac.New(sha256.New, testToken)
	hasher.Write(message)
	assert.Equal(t, hasher.Sum(nil), param)
}

func TestAuthenticateDeterministic(t *testing.T) {
	c, err := NewClient(ctaptypes.PinUvAuthProtocolTwo)
	require.NoError(t, err)
	c.SetToken(testToken)

	assert.Equal(t, c.Authenticate([]byte{0x0a, 0x0b}), c.Authenticate([]byte{0x0a, 0x0b}))
	assert.NotEqual(t, c.Authenticate([]byte{0x0a}), c.Authenticate([]byte{0x0b}))
}
