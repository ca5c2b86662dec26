package content

import (
	"fmt"
)

var ContentTypeReply = ContentTypeID{AuthorityID: "xmtp.org", TypeID: "reply", VersionMajor: 1, VersionMinor: 0}

// Reply wraps content of any registered type together with the id of the
// message it answers.
type Reply struct {
	Reference        string
	ReferenceInboxID string
	ContentType      ContentTypeID
	Content          any
}

type ReplyCodec struct{}

func (ReplyCodec) ContentType() ContentTypeID {
	return ContentTypeReply
}

func (ReplyCodec) Encode(v any, r *Registry) (EncodedContent, error) {
	reply, ok := asReply(v)
	if !ok {
		return EncodedContent{}, unexpectedType(v)
	}
	if reply.Reference == "" {
		return EncodedContent{}, fmt.Errorf("%w: reference", ErrMissingParameter)
	}
	inner, err := r.encodeLeaf(reply.Content, reply.ContentType)
	if err != nil {
		return EncodedContent{}, err
	}
	params := map[string]string{
		"contentType": reply.ContentType.ID(),
		"reference":   reply.Reference,
	}
	if reply.ReferenceInboxID != "" {
		params["referenceInboxId"] = reply.ReferenceInboxID
	}
	return EncodedContent{Type: ContentTypeReply, Parameters: params, Content: inner.Marshal()}, nil
}

func (ReplyCodec) Decode(ec EncodedContent, r *Registry) (any, error) {
	reference, ok := ec.Param("reference")
	if !ok {
		return nil, fmt.Errorf("%w: reference", ErrMissingParameter)
	}
	if _, ok := ec.Param("contentType"); !ok {
		return nil, fmt.Errorf("%w: contentType", ErrMissingParameter)
	}
	inner, err := UnmarshalEncodedContent(ec.Content)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("%w: reply needs a registry", ErrCodecNotFound)
	}
	v, err := r.Decode(inner)
	if err != nil {
		return nil, err
	}
	return Reply{
		Reference:        reference,
		ReferenceInboxID: ec.Parameters["referenceInboxId"],
		ContentType:      inner.Type,
		Content:          v,
	}, nil
}

func (ReplyCodec) Fallback(v any) string {
	reply, ok := asReply(v)
	if !ok {
		return ""
	}
	if s, ok := reply.Content.(string); ok {
		return fmt.Sprintf("Replied with “%s” to an earlier message", s)
	}
	return "Replied to an earlier message"
}

func (ReplyCodec) ShouldPush(any) bool {
	return true
}

func asReply(v any) (Reply, bool) {
	switch r := v.(type) {
	case Reply:
		return r, true
	case *Reply:
		if r == nil {
			return Reply{}, false
		}
		return *r, true
	default:
		return Reply{}, false
	}
}
