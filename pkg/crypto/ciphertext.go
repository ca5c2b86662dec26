package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/xmtp/libxmtp-sub003/internal/wire"
)

const (
	HKDFSaltSize = 32
	GCMNonceSize = 12
)

// Ciphertext is the AES-256-GCM payload whose key is derived from a secret
// with HKDF-SHA256 and a per-message salt.
type Ciphertext struct {
	HKDFSalt []byte
	GCMNonce []byte
	Payload  []byte
}

// Encrypt seals plaintext under secret, binding aad. Salt and nonce are
// fresh for every call.
func Encrypt(plaintext, secret, aad []byte) (Ciphertext, error) {
	if len(secret) == 0 {
		return Ciphertext{}, ErrInvalidSecret
	}
	salt := make([]byte, HKDFSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return Ciphertext{}, err
	}
	nonce := make([]byte, GCMNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return Ciphertext{}, err
	}
	gcm, err := newGCM(secret, salt)
	if err != nil {
		return Ciphertext{}, err
	}
	return Ciphertext{
		HKDFSalt: salt,
		GCMNonce: nonce,
		Payload:  gcm.Seal(nil, nonce, plaintext, aad),
	}, nil
}

func Decrypt(ct Ciphertext, secret, aad []byte) ([]byte, error) {
	if len(secret) == 0 {
		return nil, ErrInvalidSecret
	}
	if len(ct.HKDFSalt) != HKDFSaltSize {
		return nil, fmt.Errorf("%w: salt is %d bytes, want %d", ErrInvalidCiphertext, len(ct.HKDFSalt), HKDFSaltSize)
	}
	if len(ct.GCMNonce) != GCMNonceSize {
		return nil, fmt.Errorf("%w: nonce is %d bytes, want %d", ErrInvalidCiphertext, len(ct.GCMNonce), GCMNonceSize)
	}
	gcm, err := newGCM(secret, ct.HKDFSalt)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, ct.GCMNonce, ct.Payload, aad)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func newGCM(secret, salt []byte) (cipher.AEAD, error) {
	key, err := HKDF(secret, salt, nil, KeySize)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (c Ciphertext) Marshal() []byte {
	inner := wire.NewEncoder()
	inner.Bytes(1, c.HKDFSalt)
	inner.Bytes(2, c.GCMNonce)
	inner.Bytes(3, c.Payload)
	e := wire.NewEncoder()
	e.Message(1, inner.Result())
	return e.Result()
}

func UnmarshalCiphertext(b []byte) (Ciphertext, error) {
	var (
		out   Ciphertext
		found bool
	)
	err := wire.Parse(b, func(f wire.Field) error {
		if f.Num != 1 {
			return nil
		}
		found = true
		body, err := f.Bytes()
		if err != nil {
			return err
		}
		return wire.Parse(body, func(f wire.Field) error {
			var err error
			switch f.Num {
			case 1:
				out.HKDFSalt, err = f.Bytes()
			case 2:
				out.GCMNonce, err = f.Bytes()
			case 3:
				out.Payload, err = f.Bytes()
			}
			return err
		})
	})
	if err != nil {
		return Ciphertext{}, fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	if !found {
		return Ciphertext{}, fmt.Errorf("%w: unknown algorithm", ErrInvalidCiphertext)
	}
	return out, nil
}
