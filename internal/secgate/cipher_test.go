package secgate

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifactCipher(t *testing.T) {
	c := NewArtifactCipher()

	t.Run("seal and open round-trip", func(t *testing.T) {
		plaintext := []byte("AWS_SECRET_ACCESS_KEY=hunter2")
		sealed, err := c.Seal(plaintext)
		require.NoError(t, err)
		assert.NotContains(t, string(sealed), "hunter2")

		opened, err := c.Open(sealed)
		require.NoError(t, err)
		assert.Equal(t, plaintext, opened)
	})

	t.Run("sealing twice produces distinct ciphertexts", func(t *testing.T) {
		a, err := c.Seal([]byte("same"))
		require.NoError(t, err)
		b, err := c.Seal([]byte("same"))
		require.NoError(t, err)
		assert.False(t, bytes.Equal(a, b), "nonces must differ")
	})

	t.Run("tampered ciphertext fails to open", func(t *testing.T) {
		sealed, err := c.Seal([]byte("payload"))
		require.NoError(t, err)
		sealed[len(sealed)-1] ^= 0xff
		_, err = c.Open(sealed)
		assert.Error(t, err)
	})

	t.Run("short ciphertext fails to open", func(t *testing.T) {
		_, err := c.Open([]byte("tiny"))
		assert.Error(t, err)
	})

	t.Run("different instances cannot read each other", func(t *testing.T) {
		other := NewArtifactCipher()
		sealed, err := c.Seal([]byte("private"))
		require.NoError(t, err)
		_, err = other.Open(sealed)
		assert.Error(t, err)
	})

	t.Run("caller-supplied key must be the right size", func(t *testing.T) {
		_, err := NewArtifactCipherFromKey([]byte("short"))
		assert.Error(t, err)

		key := make([]byte, 32)
		_, err = NewArtifactCipherFromKey(key)
		assert.NoError(t, err)
	})
}
