package keys

import (
	"github.com/xmtp/libxmtp-sub003/internal/wire"
)

// ContactBundle is what a client publishes on its contact topic.
type ContactBundle struct {
	V1 *PublicKeyBundle
	V2 *SignedPublicKeyBundle
}

func (c ContactBundle) Marshal() []byte {
	e := wire.NewEncoder()
	switch {
	case c.V1 != nil:
		inner := wire.NewEncoder()
		inner.Message(1, c.V1.Marshal())
		e.Message(1, inner.Result())
	case c.V2 != nil:
		inner := wire.NewEncoder()
		inner.Message(1, c.V2.Marshal())
		e.Message(2, inner.Result())
	}
	return e.Result()
}

// UnmarshalContactBundle accepts the versioned union and, when that does
// not parse, a bare legacy public key bundle.
func UnmarshalContactBundle(data []byte) (ContactBundle, error) {
	c, err := unmarshalVersionedContact(data)
	if err == nil && (c.V1 != nil || c.V2 != nil) {
		return c, nil
	}
	legacy, legacyErr := UnmarshalPublicKeyBundle(data)
	if legacyErr != nil {
		if err != nil {
			return ContactBundle{}, err
		}
		return ContactBundle{}, legacyErr
	}
	return ContactBundle{V1: &legacy}, nil
}

func unmarshalVersionedContact(data []byte) (ContactBundle, error) {
	var c ContactBundle
	err := wire.Parse(data, func(f wire.Field) error {
		if f.Num != 1 && f.Num != 2 {
			return nil
		}
		body, err := f.Bytes()
		if err != nil {
			return err
		}
		return wire.Parse(body, func(inner wire.Field) error {
			if inner.Num != 1 {
				return nil
			}
			raw, err := inner.Bytes()
			if err != nil {
				return err
			}
			if f.Num == 1 {
				b, err := UnmarshalPublicKeyBundle(raw)
				if err != nil {
					return err
				}
				c.V1 = &b
				return nil
			}
			b, err := UnmarshalSignedPublicKeyBundle(raw)
			if err != nil {
				return err
			}
			c.V2 = &b
			return nil
		})
	})
	return c, err
}

// SignedBundle returns the bundle in second-generation form.
func (c ContactBundle) SignedBundle() (SignedPublicKeyBundle, error) {
	switch {
	case c.V2 != nil:
		return *c.V2, nil
	case c.V1 != nil:
		return SignedPublicKeyBundleFromLegacy(*c.V1)
	default:
		return SignedPublicKeyBundle{}, ErrMissingKey
	}
}

func (c ContactBundle) WalletAddress() (string, error) {
	switch {
	case c.V2 != nil:
		return c.V2.WalletAddress()
	case c.V1 != nil:
		return c.V1.WalletAddress()
	default:
		return "", ErrMissingKey
	}
}
