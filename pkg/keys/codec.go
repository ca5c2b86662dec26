package keys

import (
	"github.com/xmtp/libxmtp-sub003/internal/wire"
	"github.com/xmtp/libxmtp-sub003/pkg/crypto"
)

// Key points and scalars travel wrapped as {bytes = 1}.
func marshalKeyBytes(b []byte) []byte {
	e := wire.NewEncoder()
	e.Bytes(1, b)
	return e.Result()
}

func unmarshalKeyBytes(f wire.Field) ([]byte, error) {
	body, err := f.Bytes()
	if err != nil {
		return nil, err
	}
	var out []byte
	err = wire.Parse(body, func(f wire.Field) error {
		if f.Num != 1 {
			return nil
		}
		var err error
		out, err = f.Bytes()
		return err
	})
	return out, err
}

func unmarshalSignatureField(f wire.Field) (crypto.Signature, error) {
	body, err := f.Bytes()
	if err != nil {
		return crypto.Signature{}, err
	}
	return crypto.UnmarshalSignature(body)
}
