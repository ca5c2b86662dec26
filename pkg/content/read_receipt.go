package content

var ContentTypeReadReceipt = ContentTypeID{AuthorityID: "xmtp.org", TypeID: "readReceipt", VersionMajor: 1, VersionMinor: 0}

type ReadReceipt struct{}

type ReadReceiptCodec struct{}

func (ReadReceiptCodec) ContentType() ContentTypeID {
	return ContentTypeReadReceipt
}

func (ReadReceiptCodec) Encode(v any, _ *Registry) (EncodedContent, error) {
	switch v.(type) {
	case ReadReceipt, *ReadReceipt:
	default:
		return EncodedContent{}, unexpectedType(v)
	}
	return EncodedContent{Type: ContentTypeReadReceipt, Parameters: map[string]string{}}, nil
}

func (ReadReceiptCodec) Decode(EncodedContent, *Registry) (any, error) {
	return ReadReceipt{}, nil
}

func (ReadReceiptCodec) Fallback(any) string {
	return ""
}

func (ReadReceiptCodec) ShouldPush(any) bool {
	return false
}
