package secgate

import (
	"crypto/rand"
	"fmt"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/chacha20poly1305"
)

// ArtifactCipher encrypts sensitive artifact payloads before they are
// written into a session. The key lives in a memguard enclave and is only
// materialized in locked memory for the duration of a seal or open.
type ArtifactCipher struct {
	key *memguard.Enclave
}

// NewArtifactCipher creates a cipher with a fresh random key. The key never
// leaves guarded memory, so artifacts encrypted by one engine instance are
// only readable by that instance.
func NewArtifactCipher() *ArtifactCipher {
	return &ArtifactCipher{key: memguard.NewEnclaveRandom(chacha20poly1305.KeySize)}
}

// NewArtifactCipherFromKey builds a cipher around caller-supplied key
// material, e.g. a key persisted by the session registry. The slice is
// wiped by memguard after sealing it into the enclave.
func NewArtifactCipherFromKey(key []byte) (*ArtifactCipher, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("artifact cipher key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &ArtifactCipher{key: memguard.NewEnclave(key)}, nil
}

// Seal encrypts plaintext with XChaCha20-Poly1305 and a random nonce. The
// nonce is prepended to the returned ciphertext.
func (c *ArtifactCipher) Seal(plaintext []byte) ([]byte, error) {
	buf, err := c.key.Open()
	if err != nil {
		return nil, fmt.Errorf("opening cipher key enclave: %w", err)
	}
	defer buf.Destroy()

	aead, err := chacha20poly1305.NewX(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("initializing cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a payload produced by Seal.
func (c *ArtifactCipher) Open(ciphertext []byte) ([]byte, error) {
	buf, err := c.key.Open()
	if err != nil {
		return nil, fmt.Errorf("opening cipher key enclave: %w", err)
	}
	defer buf.Destroy()

	aead, err := chacha20poly1305.NewX(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("initializing cipher: %w", err)
	}

	if len(ciphertext) < aead.NonceSize() {
		return nil, fmt.Errorf("ciphertext shorter than nonce")
	}
	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting artifact: %w", err)
	}
	return plaintext, nil
}
