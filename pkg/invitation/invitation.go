package invitation

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/xmtp/libxmtp-sub003/internal/wire"
	"github.com/xmtp/libxmtp-sub003/pkg/crypto"
	"github.com/xmtp/libxmtp-sub003/pkg/keys"
	"github.com/xmtp/libxmtp-sub003/pkg/topic"
)

var (
	ErrInvalidInvitation = errors.New("invalid invitation")
	ErrInvalidHeader     = errors.New("invalid sealed invitation header")
	ErrDecryptionFailed  = errors.New("invitation decryption failed")
)

const (
	keyMaterialSize = 32
	invitationSalt  = "__XMTP__INVITATION__SALT__XMTP__"
)

type ConsentProofVersion int32

const (
	ConsentProofVersionUnspecified ConsentProofVersion = iota
	ConsentProofVersion1
)

// ConsentProof is a signed statement that the recipient already accepted
// the sender. It is carried, never interpreted.
type ConsentProof struct {
	Signature      string
	Timestamp      uint64
	PayloadVersion ConsentProofVersion
}

type Context struct {
	ConversationID string
	Metadata       map[string]string
}

type InvitationV1 struct {
	Topic        string
	Context      *Context
	KeyMaterial  []byte
	ConsentProof *ConsentProof
}

func (inv InvitationV1) ConversationID() string {
	if inv.Context == nil {
		return ""
	}
	return inv.Context.ConversationID
}

// CreateDeterministic derives the conversation topic and key from the two
// bundles alone, so both participants compute the same invitation.
func CreateDeterministic(sender keys.PrivateKeyBundleV2, recipient keys.SignedPublicKeyBundle, convCtx *Context, proof *ConsentProof) (InvitationV1, error) {
	myAddr, err := sender.IdentityKey.PublicKey.WalletSignatureAddress()
	if err != nil {
		return InvitationV1{}, err
	}
	theirAddr, err := recipient.WalletAddress()
	if err != nil {
		return InvitationV1{}, err
	}
	preKey, err := sender.CurrentPreKey()
	if err != nil {
		return InvitationV1{}, err
	}
	secret, err := sender.SharedSecret(recipient, preKey.PublicKey, keys.RoleFor(myAddr < theirAddr))
	if err != nil {
		return InvitationV1{}, err
	}

	addrs := []string{myAddr, theirAddr}
	sort.Strings(addrs)
	conversationID := ""
	if convCtx != nil {
		conversationID = convCtx.ConversationID
	}
	topicID := hex.EncodeToString(crypto.HMACSHA256(secret, []byte(conversationID+strings.Join(addrs, ","))))
	info := "0|" + strings.Join(addrs, "|")
	keyMaterial, err := crypto.HKDF(secret, []byte(invitationSalt), []byte(info), keyMaterialSize)
	if err != nil {
		return InvitationV1{}, err
	}
	return InvitationV1{
		Topic:        topic.DirectMessageV2(topicID),
		Context:      convCtx,
		KeyMaterial:  keyMaterial,
		ConsentProof: proof,
	}, nil
}

// CreateRandom picks a random topic and key.
func CreateRandom(convCtx *Context, proof *ConsentProof) (InvitationV1, error) {
	id := make([]byte, 32)
	if _, err := rand.Read(id); err != nil {
		return InvitationV1{}, err
	}
	keyMaterial := make([]byte, keyMaterialSize)
	if _, err := rand.Read(keyMaterial); err != nil {
		return InvitationV1{}, err
	}
	return InvitationV1{
		Topic:        topic.DirectMessageV2(base64.RawURLEncoding.EncodeToString(id)),
		Context:      convCtx,
		KeyMaterial:  keyMaterial,
		ConsentProof: proof,
	}, nil
}

func (inv InvitationV1) Validate() error {
	if inv.Topic == "" {
		return fmt.Errorf("%w: missing topic", ErrInvalidInvitation)
	}
	if len(inv.KeyMaterial) != keyMaterialSize {
		return fmt.Errorf("%w: key material is %d bytes, want %d", ErrInvalidInvitation, len(inv.KeyMaterial), keyMaterialSize)
	}
	return nil
}

func (inv InvitationV1) Marshal() []byte {
	e := wire.NewEncoder()
	e.String(1, inv.Topic)
	if inv.Context != nil {
		c := wire.NewEncoder()
		c.String(1, inv.Context.ConversationID)
		c.StringMap(2, inv.Context.Metadata)
		e.Message(2, c.Result())
	}
	aead := wire.NewEncoder()
	aead.Bytes(1, inv.KeyMaterial)
	e.Message(3, aead.Result())
	if inv.ConsentProof != nil {
		p := wire.NewEncoder()
		p.String(1, inv.ConsentProof.Signature)
		p.Uint64(2, inv.ConsentProof.Timestamp)
		p.Uint64(3, uint64(inv.ConsentProof.PayloadVersion))
		e.Message(4, p.Result())
	}
	return e.Result()
}

func UnmarshalInvitationV1(b []byte) (InvitationV1, error) {
	var inv InvitationV1
	err := wire.Parse(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			var err error
			inv.Topic, err = f.String()
			return err
		case 2:
			body, err := f.Bytes()
			if err != nil {
				return err
			}
			c, err := unmarshalContext(body)
			if err != nil {
				return err
			}
			inv.Context = &c
		case 3:
			body, err := f.Bytes()
			if err != nil {
				return err
			}
			return wire.Parse(body, func(f wire.Field) error {
				if f.Num != 1 {
					return nil
				}
				var err error
				inv.KeyMaterial, err = f.Bytes()
				return err
			})
		case 4:
			body, err := f.Bytes()
			if err != nil {
				return err
			}
			p, err := unmarshalConsentProof(body)
			if err != nil {
				return err
			}
			inv.ConsentProof = &p
		}
		return nil
	})
	if err != nil {
		return InvitationV1{}, fmt.Errorf("%w: %v", ErrInvalidInvitation, err)
	}
	if err := inv.Validate(); err != nil {
		return InvitationV1{}, err
	}
	return inv, nil
}

func unmarshalContext(b []byte) (Context, error) {
	var c Context
	err := wire.Parse(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			var err error
			c.ConversationID, err = f.String()
			return err
		case 2:
			body, err := f.Bytes()
			if err != nil {
				return err
			}
			k, v, err := wire.ParseStringMapEntry(body)
			if err != nil {
				return err
			}
			if c.Metadata == nil {
				c.Metadata = map[string]string{}
			}
			c.Metadata[k] = v
		}
		return nil
	})
	return c, err
}

func unmarshalConsentProof(b []byte) (ConsentProof, error) {
	var p ConsentProof
	err := wire.Parse(b, func(f wire.Field) error {
		var err error
		switch f.Num {
		case 1:
			p.Signature, err = f.String()
		case 2:
			p.Timestamp, err = f.Uint64()
		case 3:
			var v uint64
			v, err = f.Uint64()
			p.PayloadVersion = ConsentProofVersion(v)
		}
		return err
	})
	return p, err
}
