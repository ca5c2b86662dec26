package message

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xmtp/libxmtp-sub003/internal/wire"
	"github.com/xmtp/libxmtp-sub003/pkg/crypto"
	"github.com/xmtp/libxmtp-sub003/pkg/keys"
)

type HeaderV1 struct {
	Sender    keys.PublicKeyBundle
	Recipient keys.PublicKeyBundle
	// Timestamp is in milliseconds.
	Timestamp uint64
}

func (h HeaderV1) Marshal() []byte {
	e := wire.NewEncoder()
	e.Message(1, h.Sender.Marshal())
	e.Message(2, h.Recipient.Marshal())
	e.Uint64(3, h.Timestamp)
	return e.Result()
}

func UnmarshalHeaderV1(b []byte) (HeaderV1, error) {
	var (
		h                      HeaderV1
		hasSender, hasReceiver bool
	)
	err := wire.Parse(b, func(f wire.Field) error {
		var err error
		switch f.Num {
		case 1, 2:
			var body []byte
			if body, err = f.Bytes(); err != nil {
				return err
			}
			var bundle keys.PublicKeyBundle
			if bundle, err = keys.UnmarshalPublicKeyBundle(body); err != nil {
				return err
			}
			if f.Num == 1 {
				h.Sender, hasSender = bundle, true
			} else {
				h.Recipient, hasReceiver = bundle, true
			}
		case 3:
			h.Timestamp, err = f.Uint64()
		}
		return err
	})
	if err != nil {
		return HeaderV1{}, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}
	if !hasSender || !hasReceiver {
		return HeaderV1{}, fmt.Errorf("%w: missing participant", ErrInvalidHeader)
	}
	return h, nil
}

// MessageV1 is encrypted directly with the triple DH secret of the two
// bundles in its header.
type MessageV1 struct {
	HeaderBytes []byte
	Ciphertext  crypto.Ciphertext
}

func EncodeV1(sender keys.PrivateKeyBundleV1, recipient keys.PublicKeyBundle, payload []byte, sentAt time.Time) (MessageV1, error) {
	senderPub, err := sender.PublicKeyBundle()
	if err != nil {
		return MessageV1{}, err
	}
	header := HeaderV1{Sender: senderPub, Recipient: recipient, Timestamp: uint64(sentAt.UnixMilli())}
	headerBytes := header.Marshal()
	secret, err := sender.SharedSecret(recipient, senderPub.PreKey, keys.RoleSender)
	if err != nil {
		return MessageV1{}, err
	}
	ct, err := crypto.Encrypt(payload, secret, headerBytes)
	if err != nil {
		return MessageV1{}, err
	}
	return MessageV1{HeaderBytes: headerBytes, Ciphertext: ct}, nil
}

func (m MessageV1) Header() (HeaderV1, error) {
	return UnmarshalHeaderV1(m.HeaderBytes)
}

func (m MessageV1) SentAt() time.Time {
	h, err := m.Header()
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(int64(h.Timestamp))
}

// Decrypt picks the viewer's role by comparing the viewer's wallet with the
// wallet that signed the sender identity key.
func (m MessageV1) Decrypt(viewer keys.PrivateKeyBundleV1) ([]byte, error) {
	header, err := m.Header()
	if err != nil {
		return nil, err
	}
	viewerAddr, err := viewer.IdentityKey.PublicKey.WalletSignatureAddress()
	if err != nil {
		return nil, err
	}
	senderAddr, err := header.Sender.WalletAddress()
	if err != nil {
		return nil, fmt.Errorf("%w: sender: %v", ErrInvalidHeader, err)
	}

	var secret []byte
	if strings.EqualFold(viewerAddr, senderAddr) {
		secret, err = viewer.SharedSecret(header.Recipient, header.Sender.PreKey, keys.RoleSender)
	} else {
		secret, err = viewer.SharedSecret(header.Sender, header.Recipient.PreKey, keys.RoleRecipient)
	}
	if err != nil {
		if errors.Is(err, keys.ErrPreKeyNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrNotParticipant, err)
		}
		return nil, err
	}
	plaintext, err := crypto.Decrypt(m.Ciphertext, secret, m.HeaderBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

func (m MessageV1) Marshal() []byte {
	e := wire.NewEncoder()
	e.Bytes(1, m.HeaderBytes)
	e.Message(2, m.Ciphertext.Marshal())
	return e.Result()
}

func unmarshalMessageV1(b []byte) (MessageV1, error) {
	var m MessageV1
	err := wire.Parse(b, func(f wire.Field) error {
		var err error
		switch f.Num {
		case 1:
			m.HeaderBytes, err = f.Bytes()
		case 2:
			var body []byte
			if body, err = f.Bytes(); err == nil {
				m.Ciphertext, err = crypto.UnmarshalCiphertext(body)
			}
		}
		return err
	})
	return m, err
}
