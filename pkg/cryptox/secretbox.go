package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

var (
	masterKeyOnce sync.Once
	masterKey     []byte
	masterKeyPath string
)

// ErrCiphertextInvalid reports a ciphertext that is truncated or fails
// authentication.
var ErrCiphertextInvalid = errors.New("cryptox: invalid ciphertext")

// SetMasterKeyPath configures where to load the master encryption key from.
// This must be called before any encryption/decryption operations.
// If not set, the key will be loaded from AUTH_MASTER_KEY environment variable.
func SetMasterKeyPath(path string) {
	masterKeyPath = path
}

// loadMasterKey loads and derives a 32-byte AES-256 key from either:
// 1. File specified by masterKeyPath (if set)
// 2. AUTH_MASTER_KEY environment variable
// 3. Generates an ephemeral key for development (NOT for production)
func loadMasterKey() ([]byte, error) {
	var keyMaterial []byte

	if masterKeyPath != "" {
		data, err := os.ReadFile(masterKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read master key file: %w", err)
		}
		keyMaterial = data
	} else if envKey := os.Getenv("AUTH_MASTER_KEY"); envKey != "" {
		keyMaterial = []byte(envKey)
	} else {
		// Ephemeral key: pending challenges will not survive a restart.
		keyMaterial = make([]byte, 32)
		if _, err := rand.Read(keyMaterial); err != nil {
			return nil, fmt.Errorf("failed to generate ephemeral master key: %w", err)
		}
	}

	// Derive a proper 32-byte key using SHA-256.
	hash := sha256.Sum256(keyMaterial)
	return hash[:], nil
}

func getMasterKey() ([]byte, error) {
	var err error
	masterKeyOnce.Do(func() {
		masterKey, err = loadMasterKey()
	})
	if err != nil {
		return nil, err
	}
	if masterKey == nil {
		return nil, errors.New("cryptox: master key unavailable")
	}
	return masterKey, nil
}

// Encrypt seals plaintext using AES-256-GCM with the master key.
// The output format is: [12-byte nonce][ciphertext][16-byte auth tag].
func Encrypt(plaintext []byte) ([]byte, error) {
	key, err := getMasterKey()
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a ciphertext produced by Encrypt. Tampered or truncated
// input fails with ErrCiphertextInvalid.
func Decrypt(ciphertext []byte) ([]byte, error) {
	key, err := getMasterKey()
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, ErrCiphertextInvalid
	}

	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrCiphertextInvalid
	}
	return plaintext, nil
}
