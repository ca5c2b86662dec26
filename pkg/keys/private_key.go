package keys

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"
	"time"

	"github.com/xmtp/libxmtp-sub003/internal/wire"
	"github.com/xmtp/libxmtp-sub003/pkg/crypto"
)

// PrivateKey is the first-generation private key with its public half.
type PrivateKey struct {
	Timestamp uint64
	Secp256k1 []byte
	PublicKey PublicKey
}

func GeneratePrivateKey() (PrivateKey, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return PrivateKey{}, err
	}
	ts := uint64(time.Now().UnixMilli())
	return PrivateKey{
		Timestamp: ts,
		Secp256k1: crypto.PrivateKeyBytes(key),
		PublicKey: PublicKey{
			Timestamp:             ts,
			Secp256k1Uncompressed: crypto.PublicKeyBytes(&key.PublicKey),
		},
	}, nil
}

func (k PrivateKey) ECDSA() (*ecdsa.PrivateKey, error) {
	return crypto.PrivateKeyFromBytes(k.Secp256k1)
}

// SignKey signs the SHA-256 of pub's unsigned bytes.
func (k PrivateKey) SignKey(pub PublicKey) (PublicKey, error) {
	priv, err := k.ECDSA()
	if err != nil {
		return PublicKey{}, err
	}
	sig, err := crypto.SignDigest(priv, crypto.SHA256Digest(pub.BytesToSign()))
	if err != nil {
		return PublicKey{}, err
	}
	pub.Signature = &sig
	return pub, nil
}

func (k PrivateKey) Sign(digest crypto.ContentDigest) (crypto.Signature, error) {
	priv, err := k.ECDSA()
	if err != nil {
		return crypto.Signature{}, err
	}
	return crypto.SignDigest(priv, digest)
}

// SignWithWallet asks wallet to vouch for the public key. The legacy wire
// form stores the wallet signature untagged.
func (k *PrivateKey) SignWithWallet(ctx context.Context, wallet crypto.Signer) error {
	text := crypto.CreateIdentityText(k.PublicKey.BytesToSign())
	sig, err := wallet.SignPersonalMessage(ctx, text)
	if err != nil {
		return err
	}
	addr, err := crypto.RecoverWalletAddress(sig, text)
	if err != nil {
		return err
	}
	if !strings.EqualFold(addr, wallet.Address()) {
		return fmt.Errorf("%w: recovered %s, want %s", ErrWalletSignatureMismatch, addr, wallet.Address())
	}
	legacy := sig.AsECDSA()
	k.PublicKey.Signature = &legacy
	return nil
}

func (k PrivateKey) Marshal() []byte {
	e := wire.NewEncoder()
	e.Uint64(1, k.Timestamp)
	e.Message(2, marshalKeyBytes(k.Secp256k1))
	e.Message(3, k.PublicKey.Marshal())
	return e.Result()
}

func UnmarshalPrivateKey(b []byte) (PrivateKey, error) {
	var k PrivateKey
	err := wire.Parse(b, func(f wire.Field) error {
		var err error
		switch f.Num {
		case 1:
			k.Timestamp, err = f.Uint64()
		case 2:
			k.Secp256k1, err = unmarshalKeyBytes(f)
		case 3:
			var body []byte
			if body, err = f.Bytes(); err == nil {
				k.PublicKey, err = UnmarshalPublicKey(body)
			}
		}
		return err
	})
	if err != nil {
		return PrivateKey{}, err
	}
	if _, err := k.ECDSA(); err != nil {
		return PrivateKey{}, err
	}
	return k, nil
}
