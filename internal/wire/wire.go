package wire

import (
	"errors"
	"fmt"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
)

var ErrMalformed = errors.New("malformed protobuf payload")

// Encoder appends fields in the order they are written. Callers write fields
// in ascending field-number order so output is deterministic.
type Encoder struct {
	buf []byte
}

func NewEncoder() *Encoder {
	return &Encoder{}
}

func (e *Encoder) Bytes(num protowire.Number, v []byte) {
	if len(v) == 0 {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendBytes(e.buf, v)
}

func (e *Encoder) String(num protowire.Number, v string) {
	if v == "" {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendString(e.buf, v)
}

// Message writes an embedded message. Unlike Bytes, an empty body is still
// emitted so that presence survives a round trip.
func (e *Encoder) Message(num protowire.Number, body []byte) {
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendBytes(e.buf, body)
}

func (e *Encoder) Uint64(num protowire.Number, v uint64) {
	if v == 0 {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.VarintType)
	e.buf = protowire.AppendVarint(e.buf, v)
}

func (e *Encoder) Uint32(num protowire.Number, v uint32) {
	e.Uint64(num, uint64(v))
}

// OptionalUint64 writes v even when it is zero.
func (e *Encoder) OptionalUint64(num protowire.Number, v uint64) {
	e.buf = protowire.AppendTag(e.buf, num, protowire.VarintType)
	e.buf = protowire.AppendVarint(e.buf, v)
}

// StringMap writes a map<string,string> with keys in sorted order.
func (e *Encoder) StringMap(num protowire.Number, m map[string]string) {
	if len(m) == 0 {
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		entry := NewEncoder()
		entry.String(1, k)
		entry.String(2, m[k])
		e.Message(num, entry.Result())
	}
}

func (e *Encoder) Result() []byte {
	if e.buf == nil {
		return []byte{}
	}
	return e.buf
}

type Field struct {
	Num    protowire.Number
	Type   protowire.Type
	varint uint64
	bytes  []byte
}

func (f Field) Bytes() ([]byte, error) {
	if f.Type != protowire.BytesType {
		return nil, fmt.Errorf("%w: field %d has wire type %d, want bytes", ErrMalformed, f.Num, f.Type)
	}
	return append([]byte(nil), f.bytes...), nil
}

func (f Field) String() (string, error) {
	if f.Type != protowire.BytesType {
		return "", fmt.Errorf("%w: field %d has wire type %d, want bytes", ErrMalformed, f.Num, f.Type)
	}
	return string(f.bytes), nil
}

func (f Field) Uint64() (uint64, error) {
	if f.Type != protowire.VarintType {
		return 0, fmt.Errorf("%w: field %d has wire type %d, want varint", ErrMalformed, f.Num, f.Type)
	}
	return f.varint, nil
}

func (f Field) Uint32() (uint32, error) {
	v, err := f.Uint64()
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// Parse walks the top-level fields of b. Unknown fields are handed to fn as
// well; fn should ignore numbers it does not know.
func Parse(b []byte, fn func(Field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		f := Field{Num: num, Type: typ}
		switch typ {
		case protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(m))
			}
			f.varint = v
			n = m
		case protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(m))
			}
			f.bytes = v
			n = m
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(m))
			}
			n = m
		}
		b = b[n:]
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// ParseStringMapEntry decodes one entry of a map<string,string> field.
func ParseStringMapEntry(b []byte) (string, string, error) {
	var key, value string
	err := Parse(b, func(f Field) error {
		var err error
		switch f.Num {
		case 1:
			key, err = f.String()
		case 2:
			value, err = f.String()
		}
		return err
	})
	return key, value, err
}
