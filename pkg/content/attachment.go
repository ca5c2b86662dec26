package content

import (
	"fmt"
)

var ContentTypeAttachment = ContentTypeID{AuthorityID: "xmtp.org", TypeID: "attachment", VersionMajor: 1, VersionMinor: 0}

type Attachment struct {
	Filename string
	MimeType string
	Data     []byte
}

type AttachmentCodec struct{}

func (AttachmentCodec) ContentType() ContentTypeID {
	return ContentTypeAttachment
}

func (AttachmentCodec) Encode(v any, _ *Registry) (EncodedContent, error) {
	a, ok := asAttachment(v)
	if !ok {
		return EncodedContent{}, unexpectedType(v)
	}
	return EncodedContent{
		Type: ContentTypeAttachment,
		Parameters: map[string]string{
			"filename": a.Filename,
			"mimeType": a.MimeType,
		},
		Content: a.Data,
	}, nil
}

func (AttachmentCodec) Decode(ec EncodedContent, _ *Registry) (any, error) {
	mimeType, ok := ec.Param("mimeType")
	if !ok {
		return nil, fmt.Errorf("%w: mimeType", ErrMissingParameter)
	}
	filename, ok := ec.Param("filename")
	if !ok {
		return nil, fmt.Errorf("%w: filename", ErrMissingParameter)
	}
	return Attachment{Filename: filename, MimeType: mimeType, Data: ec.Content}, nil
}

func (AttachmentCodec) Fallback(v any) string {
	a, ok := asAttachment(v)
	if !ok {
		return ""
	}
	return attachmentFallback(a.Filename)
}

func (AttachmentCodec) ShouldPush(any) bool {
	return true
}

func attachmentFallback(filename string) string {
	return fmt.Sprintf("Can’t display %q. This app doesn’t support attachments.", filename)
}

func asAttachment(v any) (Attachment, bool) {
	switch a := v.(type) {
	case Attachment:
		return a, true
	case *Attachment:
		if a == nil {
			return Attachment{}, false
		}
		return *a, true
	default:
		return Attachment{}, false
	}
}
