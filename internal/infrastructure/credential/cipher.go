package credential

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the length of the bundle encryption key in bytes
const KeySize = chacha20poly1305.KeySize

// Errors returned by the cipher
var (
	ErrInvalidKey      = fmt.Errorf("credential: encryption key must be %d bytes", KeySize)
	ErrMalformedBundle = errors.New("credential: sealed bundle is malformed")
)

// Bundle is the plaintext token set stored for an account
type Bundle struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	SellerID     string    `json:"seller_id"`
}

// Cipher seals and opens bundles with XChaCha20-Poly1305.
// The account id is bound as additional data so a bundle cannot be moved between rows.
type Cipher struct {
	key []byte
}

// NewCipher creates a cipher from a 32-byte key
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	k := make([]byte, KeySize)
	copy(k, key)
	return &Cipher{key: k}, nil
}

// Seal encrypts the bundle. The output is nonce || ciphertext.
func (c *Cipher) Seal(accountID string, b Bundle) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, fmt.Errorf("credential: init aead: %w", err)
	}

	plaintext, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("credential: marshal bundle: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("credential: generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, []byte(accountID)), nil
}

// Open decrypts a sealed bundle
func (c *Cipher) Open(accountID string, sealed []byte) (Bundle, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return Bundle{}, fmt.Errorf("credential: init aead: %w", err)
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return Bundle{}, ErrMalformedBundle
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(accountID))
	if err != nil {
		return Bundle{}, fmt.Errorf("%w: %v", ErrMalformedBundle, err)
	}

	var b Bundle
	if err := json.Unmarshal(plaintext, &b); err != nil {
		return Bundle{}, fmt.Errorf("%w: %v", ErrMalformedBundle, err)
	}
	return b, nil
}
