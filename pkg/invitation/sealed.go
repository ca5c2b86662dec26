package invitation

import (
	"fmt"
	"time"

	"github.com/xmtp/libxmtp-sub003/internal/wire"
	"github.com/xmtp/libxmtp-sub003/pkg/crypto"
	"github.com/xmtp/libxmtp-sub003/pkg/keys"
)

type SealedHeaderV1 struct {
	Sender    keys.SignedPublicKeyBundle
	Recipient keys.SignedPublicKeyBundle
	CreatedNs uint64
}

func (h SealedHeaderV1) Marshal() []byte {
	e := wire.NewEncoder()
	e.Message(1, h.Sender.Marshal())
	e.Message(2, h.Recipient.Marshal())
	e.Uint64(3, h.CreatedNs)
	return e.Result()
}

func UnmarshalSealedHeaderV1(b []byte) (SealedHeaderV1, error) {
	var (
		h                       SealedHeaderV1
		hasSender, hasRecipient bool
	)
	err := wire.Parse(b, func(f wire.Field) error {
		switch f.Num {
		case 1, 2:
			body, err := f.Bytes()
			if err != nil {
				return err
			}
			bundle, err := keys.UnmarshalSignedPublicKeyBundle(body)
			if err != nil {
				return err
			}
			if f.Num == 1 {
				h.Sender, hasSender = bundle, true
			} else {
				h.Recipient, hasRecipient = bundle, true
			}
		case 3:
			var err error
			h.CreatedNs, err = f.Uint64()
			return err
		}
		return nil
	})
	if err != nil {
		return SealedHeaderV1{}, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}
	if !hasSender || !hasRecipient {
		return SealedHeaderV1{}, fmt.Errorf("%w: missing participant", ErrInvalidHeader)
	}
	return h, nil
}

// SealedInvitationV1 is an InvitationV1 encrypted with the triple DH secret
// of the header bundles, the header bytes bound as associated data.
type SealedInvitationV1 struct {
	HeaderBytes []byte
	Ciphertext  crypto.Ciphertext
}

func Seal(sender keys.PrivateKeyBundleV2, recipient keys.SignedPublicKeyBundle, inv InvitationV1, createdAt time.Time) (SealedInvitationV1, error) {
	if err := inv.Validate(); err != nil {
		return SealedInvitationV1{}, err
	}
	senderPub, err := sender.PublicKeyBundle()
	if err != nil {
		return SealedInvitationV1{}, err
	}
	header := SealedHeaderV1{Sender: senderPub, Recipient: recipient, CreatedNs: uint64(createdAt.UnixNano())}
	headerBytes := header.Marshal()
	secret, err := sender.SharedSecret(recipient, senderPub.PreKey, keys.RoleSender)
	if err != nil {
		return SealedInvitationV1{}, err
	}
	ct, err := crypto.Encrypt(inv.Marshal(), secret, headerBytes)
	if err != nil {
		return SealedInvitationV1{}, err
	}
	return SealedInvitationV1{HeaderBytes: headerBytes, Ciphertext: ct}, nil
}

func (s SealedInvitationV1) Header() (SealedHeaderV1, error) {
	return UnmarshalSealedHeaderV1(s.HeaderBytes)
}

// Open decrypts the invitation for either participant. The viewer is the
// sender when its identity key is the header's sender identity.
func (s SealedInvitationV1) Open(viewer keys.PrivateKeyBundleV2) (InvitationV1, error) {
	header, err := s.Header()
	if err != nil {
		return InvitationV1{}, err
	}
	var secret []byte
	if viewer.IdentityKey.PublicKey.Matches(header.Sender.IdentityKey) {
		secret, err = viewer.SharedSecret(header.Recipient, header.Sender.PreKey, keys.RoleSender)
	} else {
		secret, err = viewer.SharedSecret(header.Sender, header.Recipient.PreKey, keys.RoleRecipient)
	}
	if err != nil {
		return InvitationV1{}, err
	}
	plaintext, err := crypto.Decrypt(s.Ciphertext, secret, s.HeaderBytes)
	if err != nil {
		return InvitationV1{}, fmt.Errorf("%w: %w", ErrDecryptionFailed, err)
	}
	return UnmarshalInvitationV1(plaintext)
}

func (s SealedInvitationV1) Marshal() []byte {
	inner := wire.NewEncoder()
	inner.Bytes(1, s.HeaderBytes)
	inner.Message(2, s.Ciphertext.Marshal())
	e := wire.NewEncoder()
	e.Message(1, inner.Result())
	return e.Result()
}

func UnmarshalSealedInvitation(b []byte) (SealedInvitationV1, error) {
	var (
		s     SealedInvitationV1
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
				s.HeaderBytes, err = f.Bytes()
			case 2:
				var raw []byte
				if raw, err = f.Bytes(); err == nil {
					s.Ciphertext, err = crypto.UnmarshalCiphertext(raw)
				}
			}
			return err
		})
	})
	if err != nil {
		return SealedInvitationV1{}, fmt.Errorf("%w: %v", ErrInvalidInvitation, err)
	}
	if !found {
		return SealedInvitationV1{}, fmt.Errorf("%w: unsupported version", ErrInvalidInvitation)
	}
	return s, nil
}
