package message

import (
	"fmt"
	"time"

	"github.com/xmtp/libxmtp-sub003/internal/wire"
	"github.com/xmtp/libxmtp-sub003/pkg/crypto"
	"github.com/xmtp/libxmtp-sub003/pkg/keys"
)

type HeaderV2 struct {
	CreatedNs uint64
	Topic     string
}

func (h HeaderV2) Marshal() []byte {
	e := wire.NewEncoder()
	e.Uint64(1, h.CreatedNs)
	e.String(2, h.Topic)
	return e.Result()
}

func UnmarshalHeaderV2(b []byte) (HeaderV2, error) {
	var h HeaderV2
	err := wire.Parse(b, func(f wire.Field) error {
		var err error
		switch f.Num {
		case 1:
			h.CreatedNs, err = f.Uint64()
		case 2:
			h.Topic, err = f.String()
		}
		return err
	})
	if err != nil {
		return HeaderV2{}, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}
	if h.Topic == "" {
		return HeaderV2{}, fmt.Errorf("%w: missing topic", ErrInvalidHeader)
	}
	return h, nil
}

// SignedContent is the V2 plaintext. Signature covers
// SHA-256(headerBytes || payload) and is made with the sender's prekey.
type SignedContent struct {
	Payload   []byte
	Sender    keys.SignedPublicKeyBundle
	Signature crypto.Signature
}

func (s SignedContent) Marshal() []byte {
	e := wire.NewEncoder()
	e.Bytes(1, s.Payload)
	e.Message(2, s.Sender.Marshal())
	e.Message(3, s.Signature.Marshal())
	return e.Result()
}

func UnmarshalSignedContent(b []byte) (SignedContent, error) {
	var (
		s                    SignedContent
		hasSender, hasSigned bool
	)
	err := wire.Parse(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			var err error
			s.Payload, err = f.Bytes()
			return err
		case 2:
			body, err := f.Bytes()
			if err != nil {
				return err
			}
			s.Sender, err = keys.UnmarshalSignedPublicKeyBundle(body)
			hasSender = err == nil
			return err
		case 3:
			body, err := f.Bytes()
			if err != nil {
				return err
			}
			s.Signature, err = crypto.UnmarshalSignature(body)
			hasSigned = err == nil
			return err
		}
		return nil
	})
	if err != nil {
		return SignedContent{}, fmt.Errorf("%w: %v", ErrInvalidSignedContent, err)
	}
	if !hasSender || !hasSigned {
		return SignedContent{}, fmt.Errorf("%w: missing sender or signature", ErrInvalidSignedContent)
	}
	return s, nil
}

// MessageV2 is encrypted with key material agreed through an invitation.
type MessageV2 struct {
	HeaderBytes []byte
	Ciphertext  crypto.Ciphertext
	ShouldPush  bool
}

// DecodedV2 is a verified V2 message.
type DecodedV2 struct {
	Header  HeaderV2
	Payload []byte
	Sender  keys.SignedPublicKeyBundle
	// SenderAddress is the wallet that vouched for the sender identity.
	SenderAddress string
}

func (d DecodedV2) SentAt() time.Time {
	return time.Unix(0, int64(d.Header.CreatedNs))
}

func EncodeV2(sender keys.PrivateKeyBundleV2, topic string, keyMaterial, payload []byte, sentAt time.Time) (MessageV2, error) {
	header := HeaderV2{Topic: topic, CreatedNs: uint64(sentAt.UnixNano())}
	headerBytes := header.Marshal()

	preKey, err := sender.CurrentPreKey()
	if err != nil {
		return MessageV2{}, err
	}
	sig, err := preKey.Sign(crypto.SHA256Digest(headerBytes, payload))
	if err != nil {
		return MessageV2{}, err
	}
	senderPub, err := sender.PublicKeyBundle()
	if err != nil {
		return MessageV2{}, err
	}
	signed := SignedContent{Payload: payload, Sender: senderPub, Signature: sig}
	ct, err := crypto.Encrypt(signed.Marshal(), keyMaterial, headerBytes)
	if err != nil {
		return MessageV2{}, err
	}
	return MessageV2{HeaderBytes: headerBytes, Ciphertext: ct}, nil
}

func (m MessageV2) Header() (HeaderV2, error) {
	return UnmarshalHeaderV2(m.HeaderBytes)
}

// Decrypt opens m with keyMaterial. When topic is not empty the header
// must name it. The payload is only returned once the sender's prekey chain
// and the content signature both verify.
func (m MessageV2) Decrypt(topic string, keyMaterial []byte) (DecodedV2, error) {
	header, err := m.Header()
	if err != nil {
		return DecodedV2{}, decodeError(StageHeader, err)
	}
	if topic != "" && header.Topic != topic {
		return DecodedV2{}, decodeError(StageTopic, fmt.Errorf("%w: %s", ErrTopicMismatch, header.Topic))
	}
	plaintext, err := crypto.Decrypt(m.Ciphertext, keyMaterial, m.HeaderBytes)
	if err != nil {
		return DecodedV2{}, decodeError(StageDecrypt, fmt.Errorf("%w: %w", ErrDecryptionFailed, err))
	}
	signed, err := UnmarshalSignedContent(plaintext)
	if err != nil {
		return DecodedV2{}, decodeError(StageSignedContent, err)
	}
	if err := signed.Sender.Validate(); err != nil {
		return DecodedV2{}, decodeError(StageSenderPreKey, fmt.Errorf("%w: %w", ErrPreKeyNotSignedByIdentity, err))
	}
	preKey, err := signed.Sender.PreKey.ECDSA()
	if err != nil {
		return DecodedV2{}, decodeError(StageSenderPreKey, fmt.Errorf("%w: %w", ErrInvalidSignedContent, err))
	}
	digest := crypto.SHA256Digest(m.HeaderBytes, signed.Payload)
	if err := crypto.VerifyDigest(signed.Signature, digest, preKey); err != nil {
		return DecodedV2{}, decodeError(StageContentSignature, fmt.Errorf("%w: %w", ErrInvalidContentSignature, err))
	}
	senderAddr, err := signed.Sender.WalletAddress()
	if err != nil {
		return DecodedV2{}, decodeError(StageSenderWallet, fmt.Errorf("%w: %w", ErrSenderNotWalletSigned, err))
	}
	return DecodedV2{
		Header:        header,
		Payload:       signed.Payload,
		Sender:        signed.Sender,
		SenderAddress: senderAddr,
	}, nil
}

func (m MessageV2) Marshal() []byte {
	e := wire.NewEncoder()
	e.Bytes(1, m.HeaderBytes)
	e.Message(2, m.Ciphertext.Marshal())
	if m.ShouldPush {
		e.Uint64(4, 1)
	}
	return e.Result()
}

func unmarshalMessageV2(b []byte) (MessageV2, error) {
	var m MessageV2
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
		case 4:
			var v uint64
			v, err = f.Uint64()
			m.ShouldPush = v != 0
		}
		return err
	})
	return m, err
}
