package crypto

import (
	"context"
	"crypto/ecdsa"
)

// Signer is an external wallet. SignPersonalMessage may block on user
// interaction and must return promptly once ctx is done.
type Signer interface {
	Address() string
	SignPersonalMessage(ctx context.Context, text string) (Signature, error)
}

// KeySigner is a Signer backed by a local private key.
type KeySigner struct {
	key *ecdsa.PrivateKey
}

func NewKeySigner(key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{key: key}
}

func (s *KeySigner) Address() string {
	return Address(&s.key.PublicKey)
}

func (s *KeySigner) SignPersonalMessage(ctx context.Context, text string) (Signature, error) {
	if err := ctx.Err(); err != nil {
		return Signature{}, err
	}
	return SignPersonalMessage(s.key, text)
}
