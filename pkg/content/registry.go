package content

import (
	"fmt"
	"sync"
)

type Registry struct {
	mu     sync.RWMutex
	codecs map[string]Codec
}

// NewRegistry returns a registry holding only codecs.
func NewRegistry(codecs ...Codec) *Registry {
	r := &Registry{codecs: make(map[string]Codec)}
	for _, c := range codecs {
		r.Register(c)
	}
	return r
}

// DefaultRegistry holds every built-in codec.
func DefaultRegistry() *Registry {
	return NewRegistry(
		TextCodec{},
		ReactionCodec{},
		CompositeCodec{},
		AttachmentCodec{},
		RemoteAttachmentCodec{},
		ReplyCodec{},
		ReadReceiptCodec{},
	)
}

// Register adds or replaces the codec for its content type.
func (r *Registry) Register(c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[c.ContentType().ID()] = c
}

// Find returns the codec for id. Without an exact match, the codec with the
// highest minor version under the same authority, type and major serves it.
func (r *Registry) Find(id ContentTypeID) (Codec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.codecs[id.ID()]; ok {
		return c, nil
	}
	var best Codec
	for _, c := range r.codecs {
		ct := c.ContentType()
		if !ct.SameType(id) || ct.VersionMajor != id.VersionMajor {
			continue
		}
		if best == nil || ct.VersionMinor > best.ContentType().VersionMinor {
			best = c
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: %s", ErrCodecNotFound, id.ID())
	}
	return best, nil
}

func (r *Registry) ContentTypes() []ContentTypeID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ContentTypeID, 0, len(r.codecs))
	for _, c := range r.codecs {
		out = append(out, c.ContentType())
	}
	return out
}

type encodeOptions struct {
	compression Compression
}

type EncodeOption func(*encodeOptions)

func WithCompression(c Compression) EncodeOption {
	return func(o *encodeOptions) {
		o.compression = c
	}
}

// Encode runs the codec for typ over v, adds its fallback text and
// optionally compresses the content bytes.
func (r *Registry) Encode(v any, typ ContentTypeID, opts ...EncodeOption) (EncodedContent, error) {
	var o encodeOptions
	for _, opt := range opts {
		opt(&o)
	}
	codec, err := r.Find(typ)
	if err != nil {
		return EncodedContent{}, err
	}
	ec, err := codec.Encode(v, r)
	if err != nil {
		return EncodedContent{}, codecError(typ, err)
	}
	if fb := codec.Fallback(v); fb != "" {
		ec.Fallback = fb
	}
	if o.compression != CompressionNone {
		compressed, err := compress(ec.Content, o.compression)
		if err != nil {
			return EncodedContent{}, codecError(typ, err)
		}
		ec.Content = compressed
		ec.Compression = o.compression
	}
	return ec, nil
}

// Decode decompresses ec if needed and hands it to the registered codec.
func (r *Registry) Decode(ec EncodedContent) (any, error) {
	codec, err := r.Find(ec.Type)
	if err != nil {
		return nil, err
	}
	raw, err := decompress(ec.Content, ec.Compression)
	if err != nil {
		return nil, codecError(ec.Type, err)
	}
	ec.Content = raw
	ec.Compression = CompressionNone
	v, err := codec.Decode(ec, r)
	if err != nil {
		return nil, codecError(ec.Type, err)
	}
	return v, nil
}

// DecodeBytes parses a serialized EncodedContent and decodes it.
func (r *Registry) DecodeBytes(b []byte) (any, EncodedContent, error) {
	ec, err := UnmarshalEncodedContent(b)
	if err != nil {
		return nil, EncodedContent{}, &CodecError{Err: err}
	}
	v, err := r.Decode(ec)
	return v, ec, err
}

func (r *Registry) ShouldPush(v any, typ ContentTypeID) bool {
	codec, err := r.Find(typ)
	if err != nil {
		return false
	}
	return codec.ShouldPush(v)
}

// encodeLeaf encodes without compression for nesting inside other content.
func (r *Registry) encodeLeaf(v any, typ ContentTypeID) (EncodedContent, error) {
	if r == nil {
		return EncodedContent{}, fmt.Errorf("%w: %s needs a registry", ErrCodecNotFound, typ.ID())
	}
	return r.Encode(v, typ)
}

func unexpectedType(v any) error {
	return fmt.Errorf("%w: %T", ErrUnexpectedType, v)
}
