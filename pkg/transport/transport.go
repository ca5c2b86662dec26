package transport

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/xmtp/libxmtp-sub003/internal/wire"
)

var (
	ErrMissingTopic    = errors.New("content topic is required")
	ErrInvalidEnvelope = errors.New("invalid envelope")
	ErrInvalidCursor   = errors.New("invalid paging cursor")
)

const DefaultPageLimit = 100

type SortDirection int

const (
	SortUnspecified SortDirection = iota
	SortAscending
	SortDescending
)

// Envelope is the unit the network stores and relays. Message carries a
// serialized message.Message, invitation or key bundle depending on topic.
type Envelope struct {
	ContentTopic string
	TimestampNs  uint64
	Message      []byte
}

func (e Envelope) Marshal() []byte {
	enc := wire.NewEncoder()
	enc.String(1, e.ContentTopic)
	enc.Uint64(2, e.TimestampNs)
	enc.Bytes(3, e.Message)
	return enc.Result()
}

func (e Envelope) Digest() []byte {
	h := sha256.New()
	h.Write([]byte(e.ContentTopic))
	h.Write(e.Message)
	return h.Sum(nil)
}

func (e Envelope) Validate() error {
	if e.ContentTopic == "" {
		return ErrMissingTopic
	}
	return nil
}

func UnmarshalEnvelope(b []byte) (Envelope, error) {
	var env Envelope
	err := wire.Parse(b, func(f wire.Field) error {
		var err error
		switch f.Num {
		case 1:
			env.ContentTopic, err = f.String()
		case 2:
			env.TimestampNs, err = f.Uint64()
		case 3:
			env.Message, err = f.Bytes()
		}
		return err
	})
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	return env, nil
}

// Cursor points at the last envelope of a page.
type Cursor struct {
	Digest      []byte
	TimestampNs uint64
}

type PagingInfo struct {
	Limit     uint32
	Cursor    *Cursor
	Direction SortDirection
}

type Query struct {
	ContentTopics []string
	StartTimeNs   uint64
	EndTimeNs     uint64
	Paging        PagingInfo
}

type QueryResult struct {
	Envelopes []Envelope
	// Next is nil when the query is exhausted.
	Next *PagingInfo
}

type Handler func(Envelope)

type Transport interface {
	Publish(ctx context.Context, envs ...Envelope) error
	Query(ctx context.Context, q Query) (QueryResult, error)
	Subscribe(ctx context.Context, topics []string, handler Handler) (func(), error)
}

// QueryAll follows paging cursors until the transport reports no further
// pages or max envelopes were collected. max <= 0 means no cap.
func QueryAll(ctx context.Context, t Transport, q Query, max int) ([]Envelope, error) {
	var out []Envelope
	for {
		res, err := t.Query(ctx, q)
		if err != nil {
			return out, err
		}
		out = append(out, res.Envelopes...)
		if max > 0 && len(out) >= max {
			return out[:max], nil
		}
		if res.Next == nil || len(res.Envelopes) == 0 {
			return out, nil
		}
		q.Paging = *res.Next
	}
}
