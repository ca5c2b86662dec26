package content

import (
	"fmt"
	"strings"

	"github.com/xmtp/libxmtp-sub003/internal/wire"
)

// Compression values are offset by one from the wire enum so that the zero
// value means the field is absent.
type Compression int32

const (
	CompressionNone Compression = iota
	CompressionDeflate
	CompressionGzip
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionDeflate:
		return "deflate"
	case CompressionGzip:
		return "gzip"
	default:
		return fmt.Sprintf("compression(%d)", int32(c))
	}
}

func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "deflate":
		return CompressionDeflate, nil
	case "gzip":
		return CompressionGzip, nil
	default:
		return CompressionNone, fmt.Errorf("%w: %q", ErrUnsupportedCompression, s)
	}
}

type EncodedContent struct {
	Type        ContentTypeID
	Parameters  map[string]string
	Fallback    string
	Content     []byte
	Compression Compression
}

func (ec EncodedContent) Param(key string) (string, bool) {
	v, ok := ec.Parameters[key]
	return v, ok
}

func (ec EncodedContent) Marshal() []byte {
	e := wire.NewEncoder()
	e.Message(1, ec.Type.Marshal())
	e.StringMap(2, ec.Parameters)
	e.String(3, ec.Fallback)
	e.Bytes(4, ec.Content)
	if ec.Compression != CompressionNone {
		e.OptionalUint64(5, uint64(ec.Compression-1))
	}
	return e.Result()
}

func UnmarshalEncodedContent(b []byte) (EncodedContent, error) {
	var ec EncodedContent
	err := wire.Parse(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			body, err := f.Bytes()
			if err != nil {
				return err
			}
			ec.Type, err = UnmarshalContentTypeID(body)
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
			if ec.Parameters == nil {
				ec.Parameters = map[string]string{}
			}
			ec.Parameters[k] = v
		case 3:
			var err error
			ec.Fallback, err = f.String()
			return err
		case 4:
			var err error
			ec.Content, err = f.Bytes()
			return err
		case 5:
			v, err := f.Uint64()
			if err != nil {
				return err
			}
			if v > uint64(CompressionGzip-1) {
				return fmt.Errorf("%w: wire value %d", ErrUnsupportedCompression, v)
			}
			ec.Compression = Compression(v + 1)
		}
		return nil
	})
	if err != nil {
		return EncodedContent{}, fmt.Errorf("%w: %w", ErrMalformedContent, err)
	}
	return ec, nil
}
