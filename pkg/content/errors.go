package content

import (
	"errors"
	"fmt"
)

var (
	ErrCodecNotFound          = errors.New("codec not found")
	ErrMissingParameter       = errors.New("missing required parameter")
	ErrUnsupportedEncoding    = errors.New("unsupported encoding")
	ErrMalformedContent       = errors.New("malformed content")
	ErrUnsupportedCompression = errors.New("unsupported compression")
	ErrUnexpectedType         = errors.New("unexpected value type for codec")
	ErrDigestMismatch         = errors.New("content digest mismatch")
	ErrContentTooLarge        = errors.New("decompressed content too large")
)

// CodecError wraps a failure raised while a codec handled content. It lets
// callers tell codec problems apart from cryptographic ones and render the
// fallback text instead.
type CodecError struct {
	ContentType string
	Err         error
}

func (e *CodecError) Error() string {
	if e.ContentType == "" {
		return fmt.Sprintf("content: %v", e.Err)
	}
	return fmt.Sprintf("codec %s: %v", e.ContentType, e.Err)
}

func (e *CodecError) Unwrap() error {
	return e.Err
}

func codecError(id ContentTypeID, err error) error {
	var ce *CodecError
	if errors.As(err, &ce) {
		return err
	}
	return &CodecError{ContentType: id.ID(), Err: err}
}

// IsCodecError reports whether err came from the content layer.
func IsCodecError(err error) bool {
	var ce *CodecError
	return errors.As(err, &ce) || errors.Is(err, ErrCodecNotFound)
}
