package identity

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

const hardenedOffset = uint32(0x80000000)

var masterHMACKey = []byte("Bitcoin seed")

type extendedKey struct {
	key       [32]byte
	chainCode [32]byte
}

func masterKey(seed []byte) (extendedKey, error) {
	mac := hmac.New(sha512.New, masterHMACKey)
	mac.Write(seed)
	sum := mac.Sum(nil)

	var k secp256k1.ModNScalar
	if overflow := k.SetByteSlice(sum[:32]); overflow || k.IsZero() {
		return extendedKey{}, fmt.Errorf("%w: unusable master key", ErrDerivation)
	}
	var out extendedKey
	copy(out.key[:], sum[:32])
	copy(out.chainCode[:], sum[32:])
	return out, nil
}

func (k extendedKey) child(index uint32) (extendedKey, error) {
	data := make([]byte, 0, 37)
	if index >= hardenedOffset {
		data = append(data, 0)
		data = append(data, k.key[:]...)
	} else {
		priv := secp256k1.PrivKeyFromBytes(k.key[:])
		data = append(data, priv.PubKey().SerializeCompressed()...)
	}
	data = binary.BigEndian.AppendUint32(data, index)

	mac := hmac.New(sha512.New, k.chainCode[:])
	mac.Write(data)
	sum := mac.Sum(nil)

	var tweak, parent secp256k1.ModNScalar
	if overflow := tweak.SetByteSlice(sum[:32]); overflow {
		return extendedKey{}, fmt.Errorf("%w: child %d out of range", ErrDerivation, index)
	}
	parent.SetBytes(&k.key)
	tweak.Add(&parent)
	if tweak.IsZero() {
		return extendedKey{}, fmt.Errorf("%w: child %d is zero", ErrDerivation, index)
	}

	var out extendedKey
	out.key = tweak.Bytes()
	copy(out.chainCode[:], sum[32:])
	return out, nil
}

func derivePath(seed []byte, path []uint32) ([]byte, error) {
	k, err := masterKey(seed)
	if err != nil {
		return nil, err
	}
	for _, index := range path {
		if k, err = k.child(index); err != nil {
			return nil, err
		}
	}
	return append([]byte(nil), k.key[:]...), nil
}
