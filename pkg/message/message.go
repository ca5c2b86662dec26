package message

import (
	"fmt"

	"github.com/xmtp/libxmtp-sub003/internal/wire"
)

// Message is the envelope payload: exactly one of V1 or V2.
type Message struct {
	V1 *MessageV1
	V2 *MessageV2
}

func (m Message) Marshal() []byte {
	e := wire.NewEncoder()
	switch {
	case m.V1 != nil:
		e.Message(1, m.V1.Marshal())
	case m.V2 != nil:
		e.Message(2, m.V2.Marshal())
	}
	return e.Result()
}

func Unmarshal(b []byte) (Message, error) {
	var m Message
	err := wire.Parse(b, func(f wire.Field) error {
		if f.Num != 1 && f.Num != 2 {
			return nil
		}
		body, err := f.Bytes()
		if err != nil {
			return err
		}
		if f.Num == 1 {
			v1, err := unmarshalMessageV1(body)
			if err != nil {
				return err
			}
			m = Message{V1: &v1}
			return nil
		}
		v2, err := unmarshalMessageV2(body)
		if err != nil {
			return err
		}
		m = Message{V2: &v2}
		return nil
	})
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if m.V1 == nil && m.V2 == nil {
		return Message{}, fmt.Errorf("%w: no version set", ErrInvalidMessage)
	}
	return m, nil
}
