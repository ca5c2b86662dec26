package keys

import (
	"crypto/ecdsa"

	"github.com/xmtp/libxmtp-sub003/pkg/crypto"
)

// Role selects the order of the first two agreements so that both parties
// end up with the same bytes.
type Role int

const (
	RoleSender Role = iota + 1
	RoleRecipient
)

func RoleFor(isRecipient bool) Role {
	if isRecipient {
		return RoleRecipient
	}
	return RoleSender
}

func (r Role) String() string {
	switch r {
	case RoleSender:
		return "sender"
	case RoleRecipient:
		return "recipient"
	default:
		return "invalid"
	}
}

// tripleDH returns DH1 || DH2 || DH(pre, peerPre), 195 bytes.
func tripleDH(role Role, identity, preKey *ecdsa.PrivateKey, peerIdentity, peerPreKey *ecdsa.PublicKey) ([]byte, error) {
	var first, second []byte
	var err error
	switch role {
	case RoleRecipient:
		if first, err = crypto.ECDH(preKey, peerIdentity); err != nil {
			return nil, err
		}
		if second, err = crypto.ECDH(identity, peerPreKey); err != nil {
			return nil, err
		}
	case RoleSender:
		if first, err = crypto.ECDH(identity, peerPreKey); err != nil {
			return nil, err
		}
		if second, err = crypto.ECDH(preKey, peerIdentity); err != nil {
			return nil, err
		}
	default:
		return nil, ErrInvalidRole
	}
	third, err := crypto.ECDH(preKey, peerPreKey)
	if err != nil {
		return nil, err
	}
	secret := make([]byte, 0, len(first)+len(second)+len(third))
	secret = append(secret, first...)
	secret = append(secret, second...)
	return append(secret, third...), nil
}
