package imagecrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const keyLen = 32 // AES-256

var ErrNoMasterKey = errors.New("imagecrypt: no master key configured")

// Cipher derives per-kid AES-256 keys from a master secret via HKDF and
// performs AES-GCM sealing. Key material is never persisted; rotating to
// a new kid yields an independent key from the same master.
type Cipher struct {
	master []byte
}

func New(masterKey string) *Cipher {
	if masterKey == "" {
		return &Cipher{}
	}
	return &Cipher{master: []byte(masterKey)}
}

func (c *Cipher) Enabled() bool { return len(c.master) > 0 }

func (c *Cipher) deriveKey(kid int32) ([]byte, error) {
	if !c.Enabled() {
		return nil, ErrNoMasterKey
	}
	info := fmt.Sprintf("storage-labels/image-key/%d", kid)
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(hkdf.New(sha256.New, c.master, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("derive key for kid %d: %w", kid, err)
	}
	return key, nil
}

// Seal encrypts plain under the kid's derived key. The returned auth tag
// is stored separately from the ciphertext, matching the metadata schema.
func (c *Cipher) Seal(kid int32, plain []byte) (ciphertext, iv, authTag []byte, err error) {
	key, err := c.deriveKey(kid)
	if err != nil {
		return nil, nil, nil, err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, nil, err
	}

	iv = make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, nil, nil, fmt.Errorf("generate iv: %w", err)
	}

	sealed := gcm.Seal(nil, iv, plain, nil)
	tagStart := len(sealed) - gcm.Overhead()
	return sealed[:tagStart], iv, sealed[tagStart:], nil
}

// Open decrypts and authenticates a previously sealed blob.
func (c *Cipher) Open(kid int32, ciphertext, iv, authTag []byte) ([]byte, error) {
	key, err := c.deriveKey(kid)
	if err != nil {
		return nil, err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != gcm.NonceSize() {
		return nil, errors.New("imagecrypt: invalid iv size")
	}

	sealed := make([]byte, 0, len(ciphertext)+len(authTag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, authTag...)

	plain, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("open sealed image: %w", err)
	}
	return plain, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return gcm, nil
}

// HashUserID produces the url-safe hashed user id embedded in image
// serving URLs.
func HashUserID(userID string) string {
	sum := sha256.Sum256([]byte(userID))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
