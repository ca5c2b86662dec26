package content

import (
	"encoding/json"
	"fmt"
)

var ContentTypeReaction = ContentTypeID{AuthorityID: "xmtp.org", TypeID: "reaction", VersionMajor: 1, VersionMinor: 0}

type ReactionAction string

const (
	ReactionAdded   ReactionAction = "added"
	ReactionRemoved ReactionAction = "removed"
)

type ReactionSchema string

const (
	ReactionSchemaUnicode   ReactionSchema = "unicode"
	ReactionSchemaShortcode ReactionSchema = "shortcode"
	ReactionSchemaCustom    ReactionSchema = "custom"
)

type Reaction struct {
	// Reference is the id of the message reacted to.
	Reference        string         `json:"reference"`
	ReferenceInboxID string         `json:"referenceInboxId,omitempty"`
	Action           ReactionAction `json:"action"`
	Content          string         `json:"content"`
	Schema           ReactionSchema `json:"schema"`
}

func (r Reaction) validate() error {
	switch r.Action {
	case ReactionAdded, ReactionRemoved:
	default:
		return fmt.Errorf("%w: reaction action %q", ErrMalformedContent, r.Action)
	}
	switch r.Schema {
	case ReactionSchemaUnicode, ReactionSchemaShortcode, ReactionSchemaCustom:
	default:
		return fmt.Errorf("%w: reaction schema %q", ErrMalformedContent, r.Schema)
	}
	if r.Reference == "" {
		return fmt.Errorf("%w: reaction reference", ErrMissingParameter)
	}
	return nil
}

type ReactionCodec struct{}

func (ReactionCodec) ContentType() ContentTypeID {
	return ContentTypeReaction
}

func (ReactionCodec) Encode(v any, _ *Registry) (EncodedContent, error) {
	r, ok := asReaction(v)
	if !ok {
		return EncodedContent{}, unexpectedType(v)
	}
	if err := r.validate(); err != nil {
		return EncodedContent{}, err
	}
	body, err := json.Marshal(r)
	if err != nil {
		return EncodedContent{}, err
	}
	return EncodedContent{Type: ContentTypeReaction, Parameters: map[string]string{}, Content: body}, nil
}

// canonicalReaction uses pointers to tell absent fields from empty ones.
type canonicalReaction struct {
	Reference        *string         `json:"reference"`
	ReferenceInboxID string          `json:"referenceInboxId"`
	Action           *ReactionAction `json:"action"`
	Content          *string         `json:"content"`
	Schema           *ReactionSchema `json:"schema"`
}

// Decode reads the JSON form. Only when the content is not a JSON object
// carrying every field does it read the older parameter form, where the
// content bytes are the emoji itself.
func (ReactionCodec) Decode(ec EncodedContent, _ *Registry) (any, error) {
	var c canonicalReaction
	if err := json.Unmarshal(ec.Content, &c); err == nil &&
		c.Reference != nil && c.Action != nil && c.Content != nil && c.Schema != nil {
		r := Reaction{
			Reference:        *c.Reference,
			ReferenceInboxID: c.ReferenceInboxID,
			Action:           *c.Action,
			Content:          *c.Content,
			Schema:           *c.Schema,
		}
		if err := r.validate(); err != nil {
			return nil, err
		}
		return r, nil
	}
	return decodeLegacyReaction(ec)
}

func decodeLegacyReaction(ec EncodedContent) (Reaction, error) {
	for _, key := range []string{"reference", "action", "schema"} {
		if _, ok := ec.Param(key); !ok {
			return Reaction{}, fmt.Errorf("%w: %s", ErrMissingParameter, key)
		}
	}
	r := Reaction{
		Reference: ec.Parameters["reference"],
		Action:    ReactionAction(ec.Parameters["action"]),
		Schema:    ReactionSchema(ec.Parameters["schema"]),
		Content:   string(ec.Content),
	}
	if err := r.validate(); err != nil {
		return Reaction{}, err
	}
	return r, nil
}

func (ReactionCodec) Fallback(v any) string {
	r, ok := asReaction(v)
	if !ok {
		return ""
	}
	switch r.Action {
	case ReactionAdded:
		return fmt.Sprintf("Reacted “%s” to an earlier message", r.Content)
	case ReactionRemoved:
		return fmt.Sprintf("Removed “%s” from an earlier message", r.Content)
	default:
		return ""
	}
}

func (ReactionCodec) ShouldPush(v any) bool {
	r, ok := asReaction(v)
	return ok && r.Action == ReactionAdded
}

func asReaction(v any) (Reaction, bool) {
	switch r := v.(type) {
	case Reaction:
		return r, true
	case *Reaction:
		if r == nil {
			return Reaction{}, false
		}
		return *r, true
	default:
		return Reaction{}, false
	}
}
