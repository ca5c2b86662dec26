package keys

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"
	"time"

	"github.com/xmtp/libxmtp-sub003/internal/wire"
	"github.com/xmtp/libxmtp-sub003/pkg/crypto"
)

// Legacy keys carry millisecond timestamps in the createdNs field.
const legacyTimestampCeiling = 1_000_000_000_000_000

type UnsignedPublicKey struct {
	CreatedNs             uint64
	Secp256k1Uncompressed []byte
}

func (k UnsignedPublicKey) Marshal() []byte {
	e := wire.NewEncoder()
	e.Uint64(1, k.CreatedNs)
	e.Message(3, marshalKeyBytes(k.Secp256k1Uncompressed))
	return e.Result()
}

func UnmarshalUnsignedPublicKey(b []byte) (UnsignedPublicKey, error) {
	var k UnsignedPublicKey
	err := wire.Parse(b, func(f wire.Field) error {
		var err error
		switch f.Num {
		case 1:
			k.CreatedNs, err = f.Uint64()
		case 3:
			k.Secp256k1Uncompressed, err = unmarshalKeyBytes(f)
		}
		return err
	})
	if err != nil {
		return UnsignedPublicKey{}, err
	}
	if _, err := crypto.PublicKeyFromBytes(k.Secp256k1Uncompressed); err != nil {
		return UnsignedPublicKey{}, err
	}
	return k, nil
}

// SignedPublicKey keeps the exact signed bytes so that verification never
// depends on re-encoding.
type SignedPublicKey struct {
	KeyBytes  []byte
	Signature crypto.Signature
}

func (k SignedPublicKey) Unsigned() (UnsignedPublicKey, error) {
	return UnmarshalUnsignedPublicKey(k.KeyBytes)
}

func (k SignedPublicKey) ECDSA() (*ecdsa.PublicKey, error) {
	u, err := k.Unsigned()
	if err != nil {
		return nil, err
	}
	return crypto.PublicKeyFromBytes(u.Secp256k1Uncompressed)
}

func (k SignedPublicKey) Address() (string, error) {
	pub, err := k.ECDSA()
	if err != nil {
		return "", err
	}
	return crypto.Address(pub), nil
}

func (k SignedPublicKey) point() []byte {
	u, err := k.Unsigned()
	if err != nil {
		return nil
	}
	return u.Secp256k1Uncompressed
}

// Matches compares the embedded key points.
func (k SignedPublicKey) Matches(other SignedPublicKey) bool {
	p := k.point()
	return len(p) > 0 && bytes.Equal(p, other.point())
}

func (k SignedPublicKey) VerifyKey(other SignedPublicKey) error {
	if other.Signature.IsZero() {
		return ErrMissingSignature
	}
	pub, err := k.ECDSA()
	if err != nil {
		return err
	}
	if err := crypto.VerifyDigest(other.Signature, crypto.SHA256Digest(other.KeyBytes), pub); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPreKeySignature, err)
	}
	return nil
}

// WalletSignatureAddress recovers the wallet that vouched for this identity
// key. Only wallet-tagged signatures are accepted.
func (k SignedPublicKey) WalletSignatureAddress() (string, error) {
	if !k.Signature.IsWallet() {
		return "", ErrNotWalletSigned
	}
	return crypto.RecoverWalletAddress(k.Signature, crypto.CreateIdentityText(k.KeyBytes))
}

// SignedPublicKeyFromLegacy rewraps a legacy key without re-signing it.
func SignedPublicKeyFromLegacy(k PublicKey, signedByWallet bool) (SignedPublicKey, error) {
	if k.Signature == nil {
		return SignedPublicKey{}, ErrMissingSignature
	}
	sig := k.Signature.AsECDSA()
	if signedByWallet {
		sig = sig.AsWallet()
	}
	return SignedPublicKey{KeyBytes: k.BytesToSign(), Signature: sig}, nil
}

// ToLegacy reverses SignedPublicKeyFromLegacy.
func (k SignedPublicKey) ToLegacy() (PublicKey, error) {
	u, err := k.Unsigned()
	if err != nil {
		return PublicKey{}, err
	}
	if u.CreatedNs >= legacyTimestampCeiling {
		return PublicKey{}, ErrNotLegacyKey
	}
	sig := k.Signature.AsECDSA()
	return PublicKey{
		Timestamp:             u.CreatedNs,
		Signature:             &sig,
		Secp256k1Uncompressed: u.Secp256k1Uncompressed,
	}, nil
}

func (k SignedPublicKey) Marshal() []byte {
	e := wire.NewEncoder()
	e.Bytes(1, k.KeyBytes)
	if !k.Signature.IsZero() {
		e.Message(2, k.Signature.Marshal())
	}
	return e.Result()
}

func UnmarshalSignedPublicKey(b []byte) (SignedPublicKey, error) {
	var k SignedPublicKey
	err := wire.Parse(b, func(f wire.Field) error {
		var err error
		switch f.Num {
		case 1:
			k.KeyBytes, err = f.Bytes()
		case 2:
			k.Signature, err = unmarshalSignatureField(f)
		}
		return err
	})
	if err != nil {
		return SignedPublicKey{}, err
	}
	if _, err := k.Unsigned(); err != nil {
		return SignedPublicKey{}, err
	}
	return k, nil
}

type SignedPrivateKey struct {
	CreatedNs uint64
	Secp256k1 []byte
	PublicKey SignedPublicKey
}

func generateUnsigned() (UnsignedPublicKey, []byte, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return UnsignedPublicKey{}, nil, err
	}
	return UnsignedPublicKey{
		CreatedNs:             uint64(time.Now().UnixNano()),
		Secp256k1Uncompressed: crypto.PublicKeyBytes(&key.PublicKey),
	}, crypto.PrivateKeyBytes(key), nil
}

// GenerateSignedPrivateKey creates a key signed by signer, typically the
// identity key creating a prekey.
func GenerateSignedPrivateKey(signer SignedPrivateKey) (SignedPrivateKey, error) {
	unsigned, secret, err := generateUnsigned()
	if err != nil {
		return SignedPrivateKey{}, err
	}
	pub, err := signer.SignKey(unsigned)
	if err != nil {
		return SignedPrivateKey{}, err
	}
	return SignedPrivateKey{CreatedNs: unsigned.CreatedNs, Secp256k1: secret, PublicKey: pub}, nil
}

// GenerateWalletSignedPrivateKey creates an identity key vouched for by
// wallet with the Create Identity text.
func GenerateWalletSignedPrivateKey(ctx context.Context, wallet crypto.Signer) (SignedPrivateKey, error) {
	unsigned, secret, err := generateUnsigned()
	if err != nil {
		return SignedPrivateKey{}, err
	}
	keyBytes := unsigned.Marshal()
	text := crypto.CreateIdentityText(keyBytes)
	sig, err := wallet.SignPersonalMessage(ctx, text)
	if err != nil {
		return SignedPrivateKey{}, err
	}
	addr, err := crypto.RecoverWalletAddress(sig, text)
	if err != nil {
		return SignedPrivateKey{}, err
	}
	if !strings.EqualFold(addr, wallet.Address()) {
		return SignedPrivateKey{}, fmt.Errorf("%w: recovered %s, want %s", ErrWalletSignatureMismatch, addr, wallet.Address())
	}
	return SignedPrivateKey{
		CreatedNs: unsigned.CreatedNs,
		Secp256k1: secret,
		PublicKey: SignedPublicKey{KeyBytes: keyBytes, Signature: sig.AsWallet()},
	}, nil
}

func (k SignedPrivateKey) ECDSA() (*ecdsa.PrivateKey, error) {
	return crypto.PrivateKeyFromBytes(k.Secp256k1)
}

func (k SignedPrivateKey) SignKey(pub UnsignedPublicKey) (SignedPublicKey, error) {
	keyBytes := pub.Marshal()
	sig, err := k.Sign(crypto.SHA256Digest(keyBytes))
	if err != nil {
		return SignedPublicKey{}, err
	}
	return SignedPublicKey{KeyBytes: keyBytes, Signature: sig}, nil
}

func (k SignedPrivateKey) Sign(digest crypto.ContentDigest) (crypto.Signature, error) {
	priv, err := k.ECDSA()
	if err != nil {
		return crypto.Signature{}, err
	}
	return crypto.SignDigest(priv, digest)
}

// SignedPrivateKeyFromLegacy keeps the public key's signed bytes intact and
// only widens the private timestamp to nanoseconds.
func SignedPrivateKeyFromLegacy(k PrivateKey, signedByWallet bool) (SignedPrivateKey, error) {
	pub, err := SignedPublicKeyFromLegacy(k.PublicKey, signedByWallet)
	if err != nil {
		return SignedPrivateKey{}, err
	}
	return SignedPrivateKey{
		CreatedNs: k.Timestamp * uint64(time.Millisecond),
		Secp256k1: append([]byte(nil), k.Secp256k1...),
		PublicKey: pub,
	}, nil
}

func (k SignedPrivateKey) Marshal() []byte {
	e := wire.NewEncoder()
	e.Uint64(1, k.CreatedNs)
	e.Message(2, marshalKeyBytes(k.Secp256k1))
	e.Message(3, k.PublicKey.Marshal())
	return e.Result()
}

func UnmarshalSignedPrivateKey(b []byte) (SignedPrivateKey, error) {
	var k SignedPrivateKey
	err := wire.Parse(b, func(f wire.Field) error {
		var err error
		switch f.Num {
		case 1:
			k.CreatedNs, err = f.Uint64()
		case 2:
			k.Secp256k1, err = unmarshalKeyBytes(f)
		case 3:
			var body []byte
			if body, err = f.Bytes(); err == nil {
				k.PublicKey, err = UnmarshalSignedPublicKey(body)
			}
		}
		return err
	})
	if err != nil {
		return SignedPrivateKey{}, err
	}
	if _, err := k.ECDSA(); err != nil {
		return SignedPrivateKey{}, err
	}
	return k, nil
}
