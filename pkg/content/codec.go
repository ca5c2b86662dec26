package content

// Codec converts one content type between Go values and EncodedContent.
// The registry is passed in so codecs that nest content can reach other
// codecs.
type Codec interface {
	ContentType() ContentTypeID
	Encode(v any, r *Registry) (EncodedContent, error)
	Decode(ec EncodedContent, r *Registry) (any, error)
	// Fallback is shown by clients that lack the codec. Empty means none.
	Fallback(v any) string
	ShouldPush(v any) bool
}
