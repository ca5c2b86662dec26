package content

import (
	"fmt"

	"github.com/xmtp/libxmtp-sub003/internal/wire"
)

var ContentTypeComposite = ContentTypeID{AuthorityID: "xmtp.org", TypeID: "composite", VersionMajor: 1, VersionMinor: 0}

// maxCompositeDepth bounds nesting on decode, counting both nested parts and
// leaves that are themselves composites.
const maxCompositeDepth = 100

// Composite is an ordered list of parts, each a leaf value or a nested
// composite.
type Composite struct {
	Parts []CompositePart
}

type CompositePart struct {
	Type      ContentTypeID
	Value     any
	Composite *Composite
}

func Leaf(typ ContentTypeID, v any) CompositePart {
	return CompositePart{Type: typ, Value: v}
}

func Nested(c Composite) CompositePart {
	return CompositePart{Composite: &c}
}

type CompositeCodec struct{}

func (CompositeCodec) ContentType() ContentTypeID {
	return ContentTypeComposite
}

func (CompositeCodec) Encode(v any, r *Registry) (EncodedContent, error) {
	c, ok := asComposite(v)
	if !ok {
		return EncodedContent{}, unexpectedType(v)
	}
	body, err := marshalComposite(c, r)
	if err != nil {
		return EncodedContent{}, err
	}
	return EncodedContent{Type: ContentTypeComposite, Parameters: map[string]string{}, Content: body}, nil
}

func marshalComposite(c Composite, r *Registry) ([]byte, error) {
	e := wire.NewEncoder()
	for _, p := range c.Parts {
		part := wire.NewEncoder()
		if p.Composite != nil {
			nested, err := marshalComposite(*p.Composite, r)
			if err != nil {
				return nil, err
			}
			part.Message(2, nested)
		} else {
			ec, err := r.encodeLeaf(p.Value, p.Type)
			if err != nil {
				return nil, err
			}
			part.Message(1, ec.Marshal())
		}
		e.Message(1, part.Result())
	}
	return e.Result(), nil
}

// Decode returns the single leaf value directly when the composite holds
// exactly one leaf part, otherwise a Composite.
func (CompositeCodec) Decode(ec EncodedContent, r *Registry) (any, error) {
	c, err := unmarshalComposite(ec.Content, r, 1)
	if err != nil {
		return nil, err
	}
	return flatten(c), nil
}

func unmarshalComposite(b []byte, r *Registry, depth int) (Composite, error) {
	if r == nil {
		return Composite{}, fmt.Errorf("%w: composite needs a registry", ErrCodecNotFound)
	}
	if depth > maxCompositeDepth {
		return Composite{}, fmt.Errorf("%w: composite nested deeper than %d", ErrMalformedContent, maxCompositeDepth)
	}
	var c Composite
	err := wire.Parse(b, func(f wire.Field) error {
		if f.Num != 1 {
			return nil
		}
		body, err := f.Bytes()
		if err != nil {
			return err
		}
		part, err := unmarshalPart(body, r, depth)
		if err != nil {
			return err
		}
		c.Parts = append(c.Parts, part)
		return nil
	})
	if err != nil {
		return Composite{}, fmt.Errorf("%w: composite: %w", ErrMalformedContent, err)
	}
	return c, nil
}

func unmarshalPart(b []byte, r *Registry, depth int) (CompositePart, error) {
	var (
		part CompositePart
		set  bool
	)
	err := wire.Parse(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			body, err := f.Bytes()
			if err != nil {
				return err
			}
			ec, err := UnmarshalEncodedContent(body)
			if err != nil {
				return err
			}
			v, err := decodeLeaf(ec, r, depth)
			if err != nil {
				return err
			}
			part, set = CompositePart{Type: ec.Type, Value: v}, true
		case 2:
			body, err := f.Bytes()
			if err != nil {
				return err
			}
			nested, err := unmarshalComposite(body, r, depth+1)
			if err != nil {
				return err
			}
			part, set = CompositePart{Composite: &nested}, true
		}
		return nil
	})
	if err != nil {
		return CompositePart{}, err
	}
	if !set {
		return CompositePart{}, fmt.Errorf("empty composite part")
	}
	return part, nil
}

// decodeLeaf keeps composite leaves on the depth-counted path instead of
// re-entering the registry.
func decodeLeaf(ec EncodedContent, r *Registry, depth int) (any, error) {
	if !ec.Type.SameType(ContentTypeComposite) {
		return r.Decode(ec)
	}
	raw, err := decompress(ec.Content, ec.Compression)
	if err != nil {
		return nil, err
	}
	c, err := unmarshalComposite(raw, r, depth+1)
	if err != nil {
		return nil, err
	}
	return flatten(c), nil
}

func flatten(c Composite) any {
	if len(c.Parts) == 1 && c.Parts[0].Composite == nil {
		return c.Parts[0].Value
	}
	return c
}

func (CompositeCodec) Fallback(any) string {
	return ""
}

func (CompositeCodec) ShouldPush(any) bool {
	return true
}

func asComposite(v any) (Composite, bool) {
	switch c := v.(type) {
	case Composite:
		return c, true
	case *Composite:
		if c == nil {
			return Composite{}, false
		}
		return *c, true
	default:
		return Composite{}, false
	}
}
