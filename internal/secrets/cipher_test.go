package secrets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestSealOpen(t *testing.T) {
	c, err := New(testKey)
	require.NoError(t, err)
	require.True(t, c.Enabled())

	sealed, err := c.Seal("ya29.token")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, prefix))
	assert.NotContains(t, sealed, "ya29")

	other, _ := c.Seal("ya29.token")
	assert.NotEqual(t, sealed, other, "nonce must differ per seal")

	plain, err := c.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "ya29.token", plain)
}

func TestOpenPlaintextPassesThrough(t *testing.T) {
	c, _ := New(testKey)
	v, err := c.Open("legacy-token")
	require.NoError(t, err)
	assert.Equal(t, "legacy-token", v)
}

func TestTamperedValueRejected(t *testing.T) {
	c, _ := New(testKey)
	sealed, _ := c.Seal("secret")
	b := []byte(sealed)
	b[len(b)-2] ^= 'A' ^ 'B'
	_, err := c.Open(string(b))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestEmptyKeyIsPassthrough(t *testing.T) {
	c, err := New("")
	require.NoError(t, err)
	assert.False(t, c.Enabled())
	v, _ := c.Seal("tok")
	assert.Equal(t, "tok", v)

	k, _ := New(testKey)
	sealed, _ := k.Seal("tok")
	_, err = c.Open(sealed)
	assert.Error(t, err)
}

func TestBadKey(t *testing.T) {
	_, err := New("abcd")
	assert.Error(t, err)
	_, err = New("zz")
	assert.Error(t, err)
}
