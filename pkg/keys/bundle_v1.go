package keys

import (
	"context"

	"github.com/xmtp/libxmtp-sub003/internal/wire"
	"github.com/xmtp/libxmtp-sub003/pkg/crypto"
)

type PublicKeyBundle struct {
	IdentityKey PublicKey
	PreKey      PublicKey
}

func (b PublicKeyBundle) Address() (string, error) {
	return b.IdentityKey.Address()
}

// WalletAddress is the wallet that signed the identity key.
func (b PublicKeyBundle) WalletAddress() (string, error) {
	return b.IdentityKey.WalletSignatureAddress()
}

func (b PublicKeyBundle) Validate() error {
	return b.IdentityKey.VerifyKey(b.PreKey)
}

func (b PublicKeyBundle) Equal(other PublicKeyBundle) bool {
	return b.IdentityKey.Matches(other.IdentityKey) && b.PreKey.Matches(other.PreKey)
}

func (b PublicKeyBundle) Marshal() []byte {
	e := wire.NewEncoder()
	e.Message(1, b.IdentityKey.Marshal())
	e.Message(2, b.PreKey.Marshal())
	return e.Result()
}

func UnmarshalPublicKeyBundle(data []byte) (PublicKeyBundle, error) {
	var (
		b                   PublicKeyBundle
		hasIdentity, hasPre bool
	)
	err := wire.Parse(data, func(f wire.Field) error {
		if f.Num != 1 && f.Num != 2 {
			return nil
		}
		body, err := f.Bytes()
		if err != nil {
			return err
		}
		key, err := UnmarshalPublicKey(body)
		if err != nil {
			return err
		}
		if f.Num == 1 {
			b.IdentityKey, hasIdentity = key, true
		} else {
			b.PreKey, hasPre = key, true
		}
		return nil
	})
	if err != nil {
		return PublicKeyBundle{}, err
	}
	if !hasIdentity || !hasPre {
		return PublicKeyBundle{}, ErrMissingKey
	}
	return b, nil
}

type PrivateKeyBundleV1 struct {
	IdentityKey PrivateKey
	PreKeys     []PrivateKey
}

// NewPrivateKeyBundleV1 creates an identity key vouched for by wallet and a
// single prekey signed by the identity key.
func NewPrivateKeyBundleV1(ctx context.Context, wallet crypto.Signer) (PrivateKeyBundleV1, error) {
	identity, err := GeneratePrivateKey()
	if err != nil {
		return PrivateKeyBundleV1{}, err
	}
	if err := identity.SignWithWallet(ctx, wallet); err != nil {
		return PrivateKeyBundleV1{}, err
	}
	preKey, err := GeneratePrivateKey()
	if err != nil {
		return PrivateKeyBundleV1{}, err
	}
	if preKey.PublicKey, err = identity.SignKey(preKey.PublicKey); err != nil {
		return PrivateKeyBundleV1{}, err
	}
	return PrivateKeyBundleV1{IdentityKey: identity, PreKeys: []PrivateKey{preKey}}, nil
}

func (b PrivateKeyBundleV1) CurrentPreKey() (PrivateKey, error) {
	if len(b.PreKeys) == 0 {
		return PrivateKey{}, ErrPreKeyNotFound
	}
	return b.PreKeys[0], nil
}

func (b PrivateKeyBundleV1) PublicKeyBundle() (PublicKeyBundle, error) {
	pre, err := b.CurrentPreKey()
	if err != nil {
		return PublicKeyBundle{}, err
	}
	return PublicKeyBundle{IdentityKey: b.IdentityKey.PublicKey, PreKey: pre.PublicKey}, nil
}

func (b PrivateKeyBundleV1) FindPreKey(pub PublicKey) (PrivateKey, error) {
	for _, pre := range b.PreKeys {
		if pre.PublicKey.Matches(pub) {
			return pre, nil
		}
	}
	return PrivateKey{}, ErrPreKeyNotFound
}

// SharedSecret runs the triple key agreement against peer using the local
// prekey matching myPreKey.
func (b PrivateKeyBundleV1) SharedSecret(peer PublicKeyBundle, myPreKey PublicKey, role Role) ([]byte, error) {
	if err := peer.Validate(); err != nil {
		return nil, err
	}
	pre, err := b.FindPreKey(myPreKey)
	if err != nil {
		return nil, err
	}
	identity, err := b.IdentityKey.ECDSA()
	if err != nil {
		return nil, err
	}
	preKey, err := pre.ECDSA()
	if err != nil {
		return nil, err
	}
	peerIdentity, err := peer.IdentityKey.ECDSA()
	if err != nil {
		return nil, err
	}
	peerPreKey, err := peer.PreKey.ECDSA()
	if err != nil {
		return nil, err
	}
	return tripleDH(role, identity, preKey, peerIdentity, peerPreKey)
}

func (b PrivateKeyBundleV1) Marshal() []byte {
	e := wire.NewEncoder()
	e.Message(1, b.IdentityKey.Marshal())
	for _, pre := range b.PreKeys {
		e.Message(2, pre.Marshal())
	}
	return e.Result()
}

func UnmarshalPrivateKeyBundleV1(data []byte) (PrivateKeyBundleV1, error) {
	var (
		b           PrivateKeyBundleV1
		hasIdentity bool
	)
	err := wire.Parse(data, func(f wire.Field) error {
		if f.Num != 1 && f.Num != 2 {
			return nil
		}
		body, err := f.Bytes()
		if err != nil {
			return err
		}
		key, err := UnmarshalPrivateKey(body)
		if err != nil {
			return err
		}
		if f.Num == 1 {
			b.IdentityKey, hasIdentity = key, true
		} else {
			b.PreKeys = append(b.PreKeys, key)
		}
		return nil
	})
	if err != nil {
		return PrivateKeyBundleV1{}, err
	}
	if !hasIdentity {
		return PrivateKeyBundleV1{}, ErrMissingKey
	}
	return b, nil
}
