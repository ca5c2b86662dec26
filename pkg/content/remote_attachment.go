package content

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/xmtp/libxmtp-sub003/pkg/crypto"
)

var ContentTypeRemoteAttachment = ContentTypeID{AuthorityID: "xmtp.org", TypeID: "remoteStaticAttachment", VersionMajor: 1, VersionMinor: 0}

const httpsScheme = "https://"

// RemoteAttachment points at an encrypted attachment stored elsewhere.
// ContentDigest is the hex SHA-256 of the encrypted payload.
type RemoteAttachment struct {
	URL           string
	ContentDigest string
	Secret        []byte
	Salt          []byte
	Nonce         []byte
	Scheme        string
	ContentLength int
	Filename      string
}

// EncryptedAttachment is what gets uploaded, plus the parameters a
// RemoteAttachment needs to find and open it.
type EncryptedAttachment struct {
	Digest  string
	Secret  []byte
	Salt    []byte
	Nonce   []byte
	Payload []byte
}

// EncryptAttachment encodes a with the attachment codec and encrypts the
// result under a fresh secret.
func EncryptAttachment(a Attachment, r *Registry) (EncryptedAttachment, error) {
	ec, err := r.Encode(a, ContentTypeAttachment)
	if err != nil {
		return EncryptedAttachment{}, err
	}
	secret := make([]byte, crypto.KeySize)
	if _, err := rand.Read(secret); err != nil {
		return EncryptedAttachment{}, err
	}
	ct, err := crypto.Encrypt(ec.Marshal(), secret, nil)
	if err != nil {
		return EncryptedAttachment{}, err
	}
	sum := sha256.Sum256(ct.Payload)
	return EncryptedAttachment{
		Digest:  hex.EncodeToString(sum[:]),
		Secret:  secret,
		Salt:    ct.HKDFSalt,
		Nonce:   ct.GCMNonce,
		Payload: ct.Payload,
	}, nil
}

// DecryptAttachment checks payload against ra's digest before decrypting it.
func DecryptAttachment(payload []byte, ra RemoteAttachment, r *Registry) (Attachment, error) {
	sum := sha256.Sum256(payload)
	if !strings.EqualFold(hex.EncodeToString(sum[:]), ra.ContentDigest) {
		return Attachment{}, ErrDigestMismatch
	}
	plaintext, err := crypto.Decrypt(crypto.Ciphertext{HKDFSalt: ra.Salt, GCMNonce: ra.Nonce, Payload: payload}, ra.Secret, nil)
	if err != nil {
		return Attachment{}, err
	}
	ec, err := UnmarshalEncodedContent(plaintext)
	if err != nil {
		return Attachment{}, err
	}
	v, err := r.Decode(ec)
	if err != nil {
		return Attachment{}, err
	}
	a, ok := asAttachment(v)
	if !ok {
		return Attachment{}, unexpectedType(v)
	}
	return a, nil
}

// NewRemoteAttachment fills in everything except the upload location.
func NewRemoteAttachment(enc EncryptedAttachment, url, filename string) RemoteAttachment {
	return RemoteAttachment{
		URL:           url,
		ContentDigest: enc.Digest,
		Secret:        enc.Secret,
		Salt:          enc.Salt,
		Nonce:         enc.Nonce,
		Scheme:        httpsScheme,
		ContentLength: len(enc.Payload),
		Filename:      filename,
	}
}

type RemoteAttachmentCodec struct{}

func (RemoteAttachmentCodec) ContentType() ContentTypeID {
	return ContentTypeRemoteAttachment
}

func (RemoteAttachmentCodec) Encode(v any, _ *Registry) (EncodedContent, error) {
	ra, ok := asRemoteAttachment(v)
	if !ok {
		return EncodedContent{}, unexpectedType(v)
	}
	if !strings.HasPrefix(ra.URL, httpsScheme) {
		return EncodedContent{}, fmt.Errorf("%w: scheme must be https", ErrMalformedContent)
	}
	params := map[string]string{
		"contentDigest": ra.ContentDigest,
		"secret":        hex.EncodeToString(ra.Secret),
		"salt":          hex.EncodeToString(ra.Salt),
		"nonce":         hex.EncodeToString(ra.Nonce),
		"scheme":        httpsScheme,
	}
	if ra.ContentLength > 0 {
		params["contentLength"] = strconv.Itoa(ra.ContentLength)
	}
	if ra.Filename != "" {
		params["filename"] = ra.Filename
	}
	return EncodedContent{Type: ContentTypeRemoteAttachment, Parameters: params, Content: []byte(ra.URL)}, nil
}

func (RemoteAttachmentCodec) Decode(ec EncodedContent, _ *Registry) (any, error) {
	ra := RemoteAttachment{
		URL:      string(ec.Content),
		Scheme:   ec.Parameters["scheme"],
		Filename: ec.Parameters["filename"],
	}
	digest, ok := ec.Param("contentDigest")
	if !ok {
		return nil, fmt.Errorf("%w: contentDigest", ErrMissingParameter)
	}
	ra.ContentDigest = digest
	for _, f := range []struct {
		key string
		dst *[]byte
	}{
		{"secret", &ra.Secret},
		{"salt", &ra.Salt},
		{"nonce", &ra.Nonce},
	} {
		raw, ok := ec.Param(f.key)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingParameter, f.key)
		}
		b, err := hex.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s is not hex", ErrMalformedContent, f.key)
		}
		*f.dst = b
	}
	if raw, ok := ec.Param("contentLength"); ok && raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: contentLength %q", ErrMalformedContent, raw)
		}
		ra.ContentLength = n
	}
	return ra, nil
}

func (RemoteAttachmentCodec) Fallback(v any) string {
	ra, ok := asRemoteAttachment(v)
	if !ok {
		return ""
	}
	return attachmentFallback(ra.Filename)
}

func (RemoteAttachmentCodec) ShouldPush(any) bool {
	return true
}

func asRemoteAttachment(v any) (RemoteAttachment, bool) {
	switch ra := v.(type) {
	case RemoteAttachment:
		return ra, true
	case *RemoteAttachment:
		if ra == nil {
			return RemoteAttachment{}, false
		}
		return *ra, true
	default:
		return RemoteAttachment{}, false
	}
}
