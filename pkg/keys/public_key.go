package keys

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"

	"github.com/xmtp/libxmtp-sub003/internal/wire"
	"github.com/xmtp/libxmtp-sub003/pkg/crypto"
)

// PublicKey is the first-generation public key. Timestamp is in
// milliseconds.
type PublicKey struct {
	Timestamp             uint64
	Signature             *crypto.Signature
	Secp256k1Uncompressed []byte
}

// BytesToSign is the encoding of the key without its signature.
func (k PublicKey) BytesToSign() []byte {
	e := wire.NewEncoder()
	e.Uint64(1, k.Timestamp)
	e.Message(3, marshalKeyBytes(k.Secp256k1Uncompressed))
	return e.Result()
}

func (k PublicKey) ECDSA() (*ecdsa.PublicKey, error) {
	return crypto.PublicKeyFromBytes(k.Secp256k1Uncompressed)
}

func (k PublicKey) Address() (string, error) {
	pub, err := k.ECDSA()
	if err != nil {
		return "", err
	}
	return crypto.Address(pub), nil
}

func (k PublicKey) Matches(other PublicKey) bool {
	return len(k.Secp256k1Uncompressed) > 0 && bytes.Equal(k.Secp256k1Uncompressed, other.Secp256k1Uncompressed)
}

// VerifyKey reports whether other carries a signature made by k.
func (k PublicKey) VerifyKey(other PublicKey) error {
	if other.Signature == nil {
		return ErrMissingSignature
	}
	pub, err := k.ECDSA()
	if err != nil {
		return err
	}
	if err := crypto.VerifyDigest(*other.Signature, crypto.SHA256Digest(other.BytesToSign()), pub); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPreKeySignature, err)
	}
	return nil
}

// WalletSignatureAddress recovers the wallet that signed this identity key.
func (k PublicKey) WalletSignatureAddress() (string, error) {
	if k.Signature == nil {
		return "", ErrMissingSignature
	}
	return crypto.RecoverWalletAddress(*k.Signature, crypto.CreateIdentityText(k.BytesToSign()))
}

func (k PublicKey) Marshal() []byte {
	e := wire.NewEncoder()
	e.Uint64(1, k.Timestamp)
	if k.Signature != nil {
		e.Message(2, k.Signature.Marshal())
	}
	e.Message(3, marshalKeyBytes(k.Secp256k1Uncompressed))
	return e.Result()
}

func UnmarshalPublicKey(b []byte) (PublicKey, error) {
	var k PublicKey
	err := wire.Parse(b, func(f wire.Field) error {
		var err error
		switch f.Num {
		case 1:
			k.Timestamp, err = f.Uint64()
		case 2:
			var sig crypto.Signature
			sig, err = unmarshalSignatureField(f)
			k.Signature = &sig
		case 3:
			k.Secp256k1Uncompressed, err = unmarshalKeyBytes(f)
		}
		return err
	})
	if err != nil {
		return PublicKey{}, err
	}
	if _, err := k.ECDSA(); err != nil {
		return PublicKey{}, err
	}
	return k, nil
}
