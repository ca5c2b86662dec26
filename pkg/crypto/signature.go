package crypto

import (
	"fmt"

	"github.com/xmtp/libxmtp-sub003/internal/wire"
)

const (
	SignatureBodySize = 64
	SignatureSize     = SignatureBodySize + 1
)

// RecoverableSignature is a compact secp256k1 signature r||s plus recovery id.
type RecoverableSignature struct {
	Bytes    []byte
	Recovery uint32
}

// Signature is a closed union. Exactly one variant is set; WalletECDSACompact
// marks signatures known to come from a wallet personal_sign call.
type Signature struct {
	ECDSACompact       *RecoverableSignature
	WalletECDSACompact *RecoverableSignature
}

func newSignature(raw []byte, wallet bool) (Signature, error) {
	if len(raw) != SignatureSize {
		return Signature{}, fmt.Errorf("%w: got %d, want %d", ErrInvalidSignatureLength, len(raw), SignatureSize)
	}
	rs := &RecoverableSignature{
		Bytes:    append([]byte(nil), raw[:SignatureBodySize]...),
		Recovery: uint32(raw[SignatureBodySize]),
	}
	if wallet {
		return Signature{WalletECDSACompact: rs}, nil
	}
	return Signature{ECDSACompact: rs}, nil
}

// SignatureFromRaw builds a signature from 65 bytes r||s||v. v may be 0/1 or
// the Ethereum 27/28 form.
func SignatureFromRaw(raw []byte, wallet bool) (Signature, error) {
	if len(raw) == SignatureSize && raw[SignatureBodySize] >= 27 {
		fixed := append([]byte(nil), raw...)
		fixed[SignatureBodySize] -= 27
		raw = fixed
	}
	return newSignature(raw, wallet)
}

func (s Signature) compact() (*RecoverableSignature, error) {
	switch {
	case s.WalletECDSACompact != nil:
		return s.WalletECDSACompact, nil
	case s.ECDSACompact != nil:
		return s.ECDSACompact, nil
	default:
		return nil, ErrMissingSignature
	}
}

func (s Signature) IsWallet() bool {
	return s.WalletECDSACompact != nil
}

func (s Signature) IsZero() bool {
	return s.ECDSACompact == nil && s.WalletECDSACompact == nil
}

// Raw returns r||s||recovery.
func (s Signature) Raw() ([]byte, error) {
	rs, err := s.compact()
	if err != nil {
		return nil, err
	}
	return normalize(rs)
}

// AsWallet returns a copy tagged as a wallet signature. The bytes are not
// touched.
func (s Signature) AsWallet() Signature {
	rs, err := s.compact()
	if err != nil {
		return s
	}
	return Signature{WalletECDSACompact: rs.clone()}
}

// AsECDSA returns a copy tagged as a plain key signature.
func (s Signature) AsECDSA() Signature {
	rs, err := s.compact()
	if err != nil {
		return s
	}
	return Signature{ECDSACompact: rs.clone()}
}

func (rs *RecoverableSignature) clone() *RecoverableSignature {
	return &RecoverableSignature{Bytes: append([]byte(nil), rs.Bytes...), Recovery: rs.Recovery}
}

func (rs *RecoverableSignature) marshal() []byte {
	e := wire.NewEncoder()
	e.Bytes(1, rs.Bytes)
	e.Uint32(2, rs.Recovery)
	return e.Result()
}

func (s Signature) Marshal() []byte {
	e := wire.NewEncoder()
	if s.ECDSACompact != nil {
		e.Message(1, s.ECDSACompact.marshal())
	}
	if s.WalletECDSACompact != nil {
		e.Message(2, s.WalletECDSACompact.marshal())
	}
	return e.Result()
}

func UnmarshalSignature(b []byte) (Signature, error) {
	var out Signature
	err := wire.Parse(b, func(f wire.Field) error {
		if f.Num != 1 && f.Num != 2 {
			return nil
		}
		body, err := f.Bytes()
		if err != nil {
			return err
		}
		rs, err := unmarshalRecoverable(body)
		if err != nil {
			return err
		}
		if f.Num == 1 {
			out = Signature{ECDSACompact: rs}
		} else {
			out = Signature{WalletECDSACompact: rs}
		}
		return nil
	})
	if err != nil {
		return Signature{}, err
	}
	if out.IsZero() {
		return Signature{}, ErrMissingSignature
	}
	return out, nil
}

func unmarshalRecoverable(b []byte) (*RecoverableSignature, error) {
	rs := &RecoverableSignature{}
	err := wire.Parse(b, func(f wire.Field) error {
		var err error
		switch f.Num {
		case 1:
			rs.Bytes, err = f.Bytes()
		case 2:
			rs.Recovery, err = f.Uint32()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return rs, nil
}
