package keys

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/xmtp/libxmtp-sub003/internal/wire"
	"github.com/xmtp/libxmtp-sub003/pkg/crypto"
)

const walletPreKeySize = 32

// PrivateKeyBundle is the versioned union stored in backups.
type PrivateKeyBundle struct {
	V1 *PrivateKeyBundleV1
	V2 *PrivateKeyBundleV2
}

func (b PrivateKeyBundle) Marshal() []byte {
	e := wire.NewEncoder()
	switch {
	case b.V1 != nil:
		e.Message(1, b.V1.Marshal())
	case b.V2 != nil:
		e.Message(2, b.V2.Marshal())
	}
	return e.Result()
}

func UnmarshalPrivateKeyBundle(data []byte) (PrivateKeyBundle, error) {
	var out PrivateKeyBundle
	err := wire.Parse(data, func(f wire.Field) error {
		if f.Num != 1 && f.Num != 2 {
			return nil
		}
		body, err := f.Bytes()
		if err != nil {
			return err
		}
		if f.Num == 1 {
			v1, err := UnmarshalPrivateKeyBundleV1(body)
			if err != nil {
				return err
			}
			out.V1 = &v1
			return nil
		}
		v2, err := UnmarshalPrivateKeyBundleV2(body)
		if err != nil {
			return err
		}
		out.V2 = &v2
		return nil
	})
	if err != nil {
		return PrivateKeyBundle{}, err
	}
	if out.V1 == nil && out.V2 == nil {
		return PrivateKeyBundle{}, ErrUnsupportedBundleVersion
	}
	return out, nil
}

// V2Bundle returns the bundle in second-generation form.
func (b PrivateKeyBundle) V2Bundle() (PrivateKeyBundleV2, error) {
	switch {
	case b.V2 != nil:
		return *b.V2, nil
	case b.V1 != nil:
		return PrivateKeyBundleV2FromLegacy(*b.V1)
	default:
		return PrivateKeyBundleV2{}, ErrUnsupportedBundleVersion
	}
}

type EncryptedPrivateKeyBundle struct {
	WalletPreKey []byte
	Ciphertext   crypto.Ciphertext
}

func (b EncryptedPrivateKeyBundle) Marshal() []byte {
	inner := wire.NewEncoder()
	inner.Bytes(1, b.WalletPreKey)
	inner.Message(2, b.Ciphertext.Marshal())
	e := wire.NewEncoder()
	e.Message(1, inner.Result())
	return e.Result()
}

func UnmarshalEncryptedPrivateKeyBundle(data []byte) (EncryptedPrivateKeyBundle, error) {
	var (
		out   EncryptedPrivateKeyBundle
		found bool
	)
	err := wire.Parse(data, func(f wire.Field) error {
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
				out.WalletPreKey, err = f.Bytes()
			case 2:
				var raw []byte
				if raw, err = f.Bytes(); err == nil {
					out.Ciphertext, err = crypto.UnmarshalCiphertext(raw)
				}
			}
			return err
		})
	})
	if err != nil {
		return EncryptedPrivateKeyBundle{}, err
	}
	if !found {
		return EncryptedPrivateKeyBundle{}, ErrUnsupportedBundleVersion
	}
	return out, nil
}

// EncryptPrivateKeyBundle encrypts bundle under a wallet signature of the
// Enable Identity text over a random wallet prekey.
func EncryptPrivateKeyBundle(ctx context.Context, wallet crypto.Signer, bundle PrivateKeyBundle) ([]byte, error) {
	walletPreKey := make([]byte, walletPreKeySize)
	if _, err := rand.Read(walletPreKey); err != nil {
		return nil, err
	}
	secret, err := storageSecret(ctx, wallet, walletPreKey)
	if err != nil {
		return nil, err
	}
	ct, err := crypto.Encrypt(bundle.Marshal(), secret, nil)
	if err != nil {
		return nil, err
	}
	return EncryptedPrivateKeyBundle{WalletPreKey: walletPreKey, Ciphertext: ct}.Marshal(), nil
}

func DecryptPrivateKeyBundle(ctx context.Context, wallet crypto.Signer, data []byte) (PrivateKeyBundle, error) {
	enc, err := UnmarshalEncryptedPrivateKeyBundle(data)
	if err != nil {
		return PrivateKeyBundle{}, err
	}
	secret, err := storageSecret(ctx, wallet, enc.WalletPreKey)
	if err != nil {
		return PrivateKeyBundle{}, err
	}
	plaintext, err := crypto.Decrypt(enc.Ciphertext, secret, nil)
	if err != nil {
		return PrivateKeyBundle{}, err
	}
	bundle, err := UnmarshalPrivateKeyBundle(plaintext)
	if err == nil {
		return bundle, nil
	}
	// Older backups hold a bare first-generation bundle.
	v1, legacyErr := UnmarshalPrivateKeyBundleV1(plaintext)
	if legacyErr != nil {
		return PrivateKeyBundle{}, err
	}
	return PrivateKeyBundle{V1: &v1}, nil
}

// storageSecret is the 65-byte Ethereum signature r||s||v with v in 27/28.
func storageSecret(ctx context.Context, wallet crypto.Signer, walletPreKey []byte) ([]byte, error) {
	text := crypto.EnableIdentityText(walletPreKey)
	sig, err := wallet.SignPersonalMessage(ctx, text)
	if err != nil {
		return nil, err
	}
	addr, err := crypto.RecoverWalletAddress(sig, text)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(addr, wallet.Address()) {
		return nil, fmt.Errorf("%w: recovered %s, want %s", ErrWalletSignatureMismatch, addr, wallet.Address())
	}
	raw, err := sig.Raw()
	if err != nil {
		return nil, err
	}
	raw[crypto.SignatureBodySize] += 27
	return raw, nil
}
