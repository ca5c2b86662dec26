package content

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

var ContentTypeText = ContentTypeID{AuthorityID: "xmtp.org", TypeID: "text", VersionMajor: 1, VersionMinor: 0}

const encodingUTF8 = "UTF-8"

type TextCodec struct{}

func (TextCodec) ContentType() ContentTypeID {
	return ContentTypeText
}

func (TextCodec) Encode(v any, _ *Registry) (EncodedContent, error) {
	s, ok := v.(string)
	if !ok {
		return EncodedContent{}, unexpectedType(v)
	}
	return EncodedContent{
		Type:       ContentTypeText,
		Parameters: map[string]string{"encoding": encodingUTF8},
		Content:    []byte(s),
	}, nil
}

func (TextCodec) Decode(ec EncodedContent, _ *Registry) (any, error) {
	if enc, ok := ec.Param("encoding"); ok && !strings.EqualFold(enc, encodingUTF8) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, enc)
	}
	if !utf8.Valid(ec.Content) {
		return nil, fmt.Errorf("%w: text is not valid UTF-8", ErrMalformedContent)
	}
	return string(ec.Content), nil
}

func (TextCodec) Fallback(any) string {
	return ""
}

func (TextCodec) ShouldPush(any) bool {
	return true
}
