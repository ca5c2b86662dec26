package keys

import (
	"context"

	"github.com/xmtp/libxmtp-sub003/internal/wire"
	"github.com/xmtp/libxmtp-sub003/pkg/crypto"
)

type SignedPublicKeyBundle struct {
	IdentityKey SignedPublicKey
	PreKey      SignedPublicKey
}

// WalletAddress is the checksummed wallet that vouched for the identity key.
func (b SignedPublicKeyBundle) WalletAddress() (string, error) {
	return b.IdentityKey.WalletSignatureAddress()
}

func (b SignedPublicKeyBundle) Validate() error {
	return b.IdentityKey.VerifyKey(b.PreKey)
}

func (b SignedPublicKeyBundle) Equal(other SignedPublicKeyBundle) bool {
	return b.IdentityKey.Matches(other.IdentityKey) && b.PreKey.Matches(other.PreKey)
}

func SignedPublicKeyBundleFromLegacy(b PublicKeyBundle) (SignedPublicKeyBundle, error) {
	identity, err := SignedPublicKeyFromLegacy(b.IdentityKey, true)
	if err != nil {
		return SignedPublicKeyBundle{}, err
	}
	pre, err := SignedPublicKeyFromLegacy(b.PreKey, false)
	if err != nil {
		return SignedPublicKeyBundle{}, err
	}
	return SignedPublicKeyBundle{IdentityKey: identity, PreKey: pre}, nil
}

func (b SignedPublicKeyBundle) ToLegacy() (PublicKeyBundle, error) {
	identity, err := b.IdentityKey.ToLegacy()
	if err != nil {
		return PublicKeyBundle{}, err
	}
	pre, err := b.PreKey.ToLegacy()
	if err != nil {
		return PublicKeyBundle{}, err
	}
	return PublicKeyBundle{IdentityKey: identity, PreKey: pre}, nil
}

func (b SignedPublicKeyBundle) Marshal() []byte {
	e := wire.NewEncoder()
	e.Message(1, b.IdentityKey.Marshal())
	e.Message(2, b.PreKey.Marshal())
	return e.Result()
}

func UnmarshalSignedPublicKeyBundle(data []byte) (SignedPublicKeyBundle, error) {
	var (
		b                   SignedPublicKeyBundle
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
		key, err := UnmarshalSignedPublicKey(body)
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
		return SignedPublicKeyBundle{}, err
	}
	if !hasIdentity || !hasPre {
		return SignedPublicKeyBundle{}, ErrMissingKey
	}
	return b, nil
}

type PrivateKeyBundleV2 struct {
	IdentityKey SignedPrivateKey
	PreKeys     []SignedPrivateKey
}

func NewPrivateKeyBundleV2(ctx context.Context, wallet crypto.Signer) (PrivateKeyBundleV2, error) {
	identity, err := GenerateWalletSignedPrivateKey(ctx, wallet)
	if err != nil {
		return PrivateKeyBundleV2{}, err
	}
	pre, err := GenerateSignedPrivateKey(identity)
	if err != nil {
		return PrivateKeyBundleV2{}, err
	}
	return PrivateKeyBundleV2{IdentityKey: identity, PreKeys: []SignedPrivateKey{pre}}, nil
}

// PrivateKeyBundleV2FromLegacy carries every timestamp and signature over;
// nothing is re-signed.
func PrivateKeyBundleV2FromLegacy(v1 PrivateKeyBundleV1) (PrivateKeyBundleV2, error) {
	identity, err := SignedPrivateKeyFromLegacy(v1.IdentityKey, true)
	if err != nil {
		return PrivateKeyBundleV2{}, err
	}
	out := PrivateKeyBundleV2{IdentityKey: identity}
	for _, pre := range v1.PreKeys {
		signed, err := SignedPrivateKeyFromLegacy(pre, false)
		if err != nil {
			return PrivateKeyBundleV2{}, err
		}
		out.PreKeys = append(out.PreKeys, signed)
	}
	return out, nil
}

func (b PrivateKeyBundleV2) CurrentPreKey() (SignedPrivateKey, error) {
	if len(b.PreKeys) == 0 {
		return SignedPrivateKey{}, ErrPreKeyNotFound
	}
	return b.PreKeys[0], nil
}

func (b PrivateKeyBundleV2) PublicKeyBundle() (SignedPublicKeyBundle, error) {
	pre, err := b.CurrentPreKey()
	if err != nil {
		return SignedPublicKeyBundle{}, err
	}
	return SignedPublicKeyBundle{IdentityKey: b.IdentityKey.PublicKey, PreKey: pre.PublicKey}, nil
}

func (b PrivateKeyBundleV2) FindPreKey(pub SignedPublicKey) (SignedPrivateKey, error) {
	for _, pre := range b.PreKeys {
		if pre.PublicKey.Matches(pub) {
			return pre, nil
		}
	}
	return SignedPrivateKey{}, ErrPreKeyNotFound
}

func (b PrivateKeyBundleV2) SharedSecret(peer SignedPublicKeyBundle, myPreKey SignedPublicKey, role Role) ([]byte, error) {
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

func (b PrivateKeyBundleV2) Marshal() []byte {
	e := wire.NewEncoder()
	e.Message(1, b.IdentityKey.Marshal())
	for _, pre := range b.PreKeys {
		e.Message(2, pre.Marshal())
	}
	return e.Result()
}

func UnmarshalPrivateKeyBundleV2(data []byte) (PrivateKeyBundleV2, error) {
	var (
		b           PrivateKeyBundleV2
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
		key, err := UnmarshalSignedPrivateKey(body)
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
		return PrivateKeyBundleV2{}, err
	}
	if !hasIdentity {
		return PrivateKeyBundleV2{}, ErrMissingKey
	}
	return b, nil
}
