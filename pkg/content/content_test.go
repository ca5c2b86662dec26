package content

import (
	"bytes"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/xmtp/libxmtp-sub003/internal/wire"
)

func roundTrip(t *testing.T, r *Registry, v any, typ ContentTypeID, opts ...EncodeOption) any {
	t.Helper()
	ec, err := r.Encode(v, typ, opts...)
	if err != nil {
		t.Fatalf("encode %s failed: %v", typ, err)
	}
	decoded, err := UnmarshalEncodedContent(ec.Marshal())
	if err != nil {
		t.Fatalf("unmarshal encoded content failed: %v", err)
	}
	out, err := r.Decode(decoded)
	if err != nil {
		t.Fatalf("decode %s failed: %v", typ, err)
	}
	return out
}

func TestTextRoundTripWithCompression(t *testing.T) {
	r := DefaultRegistry()
	text := strings.Repeat("hello xmtp ", 200)
	for _, c := range []Compression{CompressionNone, CompressionDeflate, CompressionGzip} {
		t.Run(c.String(), func(t *testing.T) {
			ec, err := r.Encode(text, ContentTypeText, WithCompression(c))
			if err != nil {
				t.Fatalf("encode failed: %v", err)
			}
			if ec.Compression != c {
				t.Fatalf("compression = %s, want %s", ec.Compression, c)
			}
			if c != CompressionNone && len(ec.Content) >= len(text) {
				t.Fatalf("compressed content not smaller: %d", len(ec.Content))
			}
			if got := roundTrip(t, r, text, ContentTypeText, WithCompression(c)); got != text {
				t.Fatalf("text changed in round trip")
			}
		})
	}
}

func TestCompressionAbsentOnWireWhenNone(t *testing.T) {
	ec := EncodedContent{Type: ContentTypeText, Content: []byte("x")}
	decoded, err := UnmarshalEncodedContent(ec.Marshal())
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.Compression != CompressionNone {
		t.Fatalf("compression = %s, want none", decoded.Compression)
	}
	ec.Compression = CompressionDeflate
	decoded, err = UnmarshalEncodedContent(ec.Marshal())
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.Compression != CompressionDeflate {
		t.Fatalf("compression = %s, want deflate", decoded.Compression)
	}
}

func TestUnknownCompressionFailsDecode(t *testing.T) {
	r := DefaultRegistry()
	ec := EncodedContent{Type: ContentTypeText, Content: []byte("x"), Compression: Compression(9)}
	_, err := r.Decode(ec)
	if !errors.Is(err, ErrUnsupportedCompression) {
		t.Fatalf("expected ErrUnsupportedCompression, got %v", err)
	}
	if !IsCodecError(err) {
		t.Fatal("unsupported compression must be a codec error")
	}
}

func TestOutOfRangeCompressionWireValueIsRejected(t *testing.T) {
	r := DefaultRegistry()
	base := EncodedContent{Type: ContentTypeText, Content: []byte("hi")}.Marshal()
	for _, v := range []uint64{2, math.MaxUint32, math.MaxUint64} {
		b := protowire.AppendTag(append([]byte(nil), base...), 5, protowire.VarintType)
		b = protowire.AppendVarint(b, v)
		if _, err := UnmarshalEncodedContent(b); !errors.Is(err, ErrUnsupportedCompression) {
			t.Fatalf("wire value %d: expected ErrUnsupportedCompression, got %v", v, err)
		}
		if _, _, err := r.DecodeBytes(b); !errors.Is(err, ErrUnsupportedCompression) {
			t.Fatalf("wire value %d: expected ErrUnsupportedCompression from registry, got %v", v, err)
		}
	}
	b := protowire.AppendTag(append([]byte(nil), base...), 5, protowire.VarintType)
	b = protowire.AppendVarint(b, 1)
	ec, err := UnmarshalEncodedContent(b)
	if err != nil {
		t.Fatalf("unmarshal gzip content failed: %v", err)
	}
	if ec.Compression != CompressionGzip {
		t.Fatalf("expected gzip, got %v", ec.Compression)
	}
}

func TestCodecNotFoundIsDistinctFromCodecFailure(t *testing.T) {
	r := NewRegistry(TextCodec{})
	unknown := ContentTypeID{AuthorityID: "example.com", TypeID: "poll", VersionMajor: 1}
	_, err := r.Decode(EncodedContent{Type: unknown})
	if !errors.Is(err, ErrCodecNotFound) {
		t.Fatalf("expected ErrCodecNotFound, got %v", err)
	}

	_, err = r.Decode(EncodedContent{
		Type:       ContentTypeText,
		Parameters: map[string]string{"encoding": "UTF-16"},
		Content:    []byte("x"),
	})
	if !errors.Is(err, ErrUnsupportedEncoding) {
		t.Fatalf("expected ErrUnsupportedEncoding, got %v", err)
	}
	if errors.Is(err, ErrCodecNotFound) {
		t.Fatal("codec failure must not look like a missing codec")
	}
	var ce *CodecError
	if !errors.As(err, &ce) || ce.ContentType != ContentTypeText.ID() {
		t.Fatalf("expected CodecError for text, got %v", err)
	}
}

func TestRegistryFindAcceptsOtherMinorVersion(t *testing.T) {
	r := DefaultRegistry()
	newer := ContentTypeText
	newer.VersionMinor = 3
	if _, err := r.Find(newer); err != nil {
		t.Fatalf("find newer minor failed: %v", err)
	}
	major := ContentTypeText
	major.VersionMajor = 2
	if _, err := r.Find(major); !errors.Is(err, ErrCodecNotFound) {
		t.Fatalf("expected ErrCodecNotFound for new major, got %v", err)
	}
}

type versionedCodec struct {
	TextCodec
	minor uint32
}

func (c versionedCodec) ContentType() ContentTypeID {
	id := ContentTypeText
	id.VersionMinor = c.minor
	return id
}

func TestRegistryFindPrefersHighestMinor(t *testing.T) {
	r := NewRegistry(versionedCodec{minor: 1}, versionedCodec{minor: 3}, versionedCodec{minor: 2})
	want := ContentTypeText
	want.VersionMinor = 9
	for i := 0; i < 20; i++ {
		c, err := r.Find(want)
		if err != nil {
			t.Fatalf("find failed: %v", err)
		}
		if got := c.ContentType().VersionMinor; got != 3 {
			t.Fatalf("expected minor 3, got %d", got)
		}
	}
	want.VersionMinor = 2
	c, err := r.Find(want)
	if err != nil {
		t.Fatalf("find exact failed: %v", err)
	}
	if got := c.ContentType().VersionMinor; got != 2 {
		t.Fatalf("expected exact minor 2, got %d", got)
	}
}

func TestContentTypeIDFormats(t *testing.T) {
	if ContentTypeText.ID() != "xmtp.org:text:1.0" || ContentTypeText.LegacyID() != "xmtp.org:text" {
		t.Fatalf("unexpected ids %q %q", ContentTypeText.ID(), ContentTypeText.LegacyID())
	}
	for _, s := range []string{"xmtp.org:text:1.0", "xmtp.org/text:1.0"} {
		got, err := ParseContentTypeID(s)
		if err != nil {
			t.Fatalf("parse %q failed: %v", s, err)
		}
		if got != ContentTypeText {
			t.Fatalf("parse %q = %+v", s, got)
		}
	}
	if _, err := ParseContentTypeID("xmtp.org:text:one"); !errors.Is(err, ErrMalformedContent) {
		t.Fatalf("expected ErrMalformedContent, got %v", err)
	}
}

func TestReactionCanonicalAndLegacy(t *testing.T) {
	r := DefaultRegistry()
	reaction := Reaction{Reference: "abc", Action: ReactionAdded, Content: "👍", Schema: ReactionSchemaUnicode}
	if got := roundTrip(t, r, reaction, ContentTypeReaction); !reflect.DeepEqual(got, reaction) {
		t.Fatalf("reaction changed: %+v", got)
	}

	ec, err := r.Encode(reaction, ContentTypeReaction)
	if err != nil {
		t.Fatalf("encode reaction failed: %v", err)
	}
	if ec.Fallback != "Reacted “👍” to an earlier message" {
		t.Fatalf("unexpected fallback %q", ec.Fallback)
	}

	legacy := EncodedContent{
		Type:       ContentTypeReaction,
		Parameters: map[string]string{"reference": "abc", "action": "removed", "schema": "unicode"},
		Content:    []byte("👍"),
	}
	got, err := r.Decode(legacy)
	if err != nil {
		t.Fatalf("legacy decode failed: %v", err)
	}
	want := Reaction{Reference: "abc", Action: ReactionRemoved, Content: "👍", Schema: ReactionSchemaUnicode}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("legacy reaction = %+v", got)
	}
}

func TestReactionInvalidCanonicalDoesNotFallBack(t *testing.T) {
	r := DefaultRegistry()
	ec := EncodedContent{
		Type:       ContentTypeReaction,
		Parameters: map[string]string{"reference": "abc", "action": "added", "schema": "unicode"},
		Content:    []byte(`{"reference":"abc","action":"liked","content":"x","schema":"unicode"}`),
	}
	if _, err := r.Decode(ec); !errors.Is(err, ErrMalformedContent) {
		t.Fatalf("expected ErrMalformedContent, got %v", err)
	}

	missing := EncodedContent{Type: ContentTypeReaction, Content: []byte("👍")}
	if _, err := r.Decode(missing); !errors.Is(err, ErrMissingParameter) {
		t.Fatalf("expected ErrMissingParameter, got %v", err)
	}
}

func TestCompositeRoundTripAndFlattening(t *testing.T) {
	r := DefaultRegistry()
	reaction := Reaction{Reference: "m1", Action: ReactionAdded, Content: ":+1:", Schema: ReactionSchemaShortcode}
	c := Composite{Parts: []CompositePart{
		Leaf(ContentTypeText, "one"),
		Leaf(ContentTypeReaction, reaction),
		Nested(Composite{Parts: []CompositePart{
			Leaf(ContentTypeText, "two"),
			Leaf(ContentTypeText, "three"),
		}}),
	}}
	got := roundTrip(t, r, c, ContentTypeComposite, WithCompression(CompressionGzip))
	decoded, ok := got.(Composite)
	if !ok {
		t.Fatalf("expected Composite, got %T", got)
	}
	if len(decoded.Parts) != 3 || decoded.Parts[0].Value != "one" {
		t.Fatalf("unexpected parts: %+v", decoded.Parts)
	}
	if !reflect.DeepEqual(decoded.Parts[1].Value, reaction) || decoded.Parts[1].Type != ContentTypeReaction {
		t.Fatalf("reaction part changed: %+v", decoded.Parts[1])
	}
	nested := decoded.Parts[2].Composite
	if nested == nil || len(nested.Parts) != 2 || nested.Parts[1].Value != "three" {
		t.Fatalf("nested composite changed: %+v", decoded.Parts[2])
	}

	direct := roundTrip(t, r, "solo", ContentTypeText)
	single := roundTrip(t, r, Composite{Parts: []CompositePart{Leaf(ContentTypeText, "solo")}}, ContentTypeComposite)
	if direct != single {
		t.Fatalf("singleton composite must decode to its leaf: %v vs %v", direct, single)
	}
}

func TestCompositeRejectsMalformedParts(t *testing.T) {
	r := DefaultRegistry()
	ec := EncodedContent{Type: ContentTypeComposite, Content: []byte{0x0a, 0x05, 0x01}}
	if _, err := r.Decode(ec); !errors.Is(err, ErrMalformedContent) {
		t.Fatalf("expected ErrMalformedContent, got %v", err)
	}
}

func nestComposite(t *testing.T, r *Registry, levels int, asLeaf bool) []byte {
	t.Helper()
	b, err := marshalComposite(Composite{Parts: []CompositePart{Leaf(ContentTypeText, "deep")}}, r)
	if err != nil {
		t.Fatalf("marshal composite failed: %v", err)
	}
	for i := 0; i < levels; i++ {
		part := wire.NewEncoder()
		if asLeaf {
			part.Message(1, EncodedContent{Type: ContentTypeComposite, Content: b}.Marshal())
		} else {
			part.Message(2, b)
		}
		outer := wire.NewEncoder()
		outer.Message(1, part.Result())
		b = outer.Result()
	}
	return b
}

func TestCompositeNestingDepthIsBounded(t *testing.T) {
	r := DefaultRegistry()
	for _, asLeaf := range []bool{false, true} {
		ok := nestComposite(t, r, maxCompositeDepth-1, asLeaf)
		if _, err := r.Decode(EncodedContent{Type: ContentTypeComposite, Content: ok}); err != nil {
			t.Fatalf("decode at depth limit failed (leaf=%v): %v", asLeaf, err)
		}
		deep := nestComposite(t, r, maxCompositeDepth, asLeaf)
		if _, err := r.Decode(EncodedContent{Type: ContentTypeComposite, Content: deep}); !errors.Is(err, ErrMalformedContent) {
			t.Fatalf("expected ErrMalformedContent past depth limit (leaf=%v), got %v", asLeaf, err)
		}
	}
	deep := nestComposite(t, r, 10*maxCompositeDepth, false)
	if _, err := r.Decode(EncodedContent{Type: ContentTypeComposite, Content: deep}); !errors.Is(err, ErrMalformedContent) {
		t.Fatalf("expected ErrMalformedContent for deep nesting, got %v", err)
	}
}

func TestAttachmentAndRemoteAttachment(t *testing.T) {
	r := DefaultRegistry()
	att := Attachment{Filename: "a.txt", MimeType: "text/plain", Data: []byte("file body")}
	if got := roundTrip(t, r, att, ContentTypeAttachment); !reflect.DeepEqual(got, att) {
		t.Fatalf("attachment changed: %+v", got)
	}

	enc, err := EncryptAttachment(att, r)
	if err != nil {
		t.Fatalf("encrypt attachment failed: %v", err)
	}
	ra := NewRemoteAttachment(enc, "https://example.com/a", "a.txt")
	decodedRA, ok := roundTrip(t, r, ra, ContentTypeRemoteAttachment).(RemoteAttachment)
	if !ok {
		t.Fatal("expected RemoteAttachment")
	}
	if !reflect.DeepEqual(decodedRA, ra) {
		t.Fatalf("remote attachment changed: %+v", decodedRA)
	}
	opened, err := DecryptAttachment(enc.Payload, decodedRA, r)
	if err != nil {
		t.Fatalf("decrypt attachment failed: %v", err)
	}
	if !bytes.Equal(opened.Data, att.Data) || opened.Filename != att.Filename {
		t.Fatalf("decrypted attachment differs: %+v", opened)
	}
	tampered := append([]byte(nil), enc.Payload...)
	tampered[0] ^= 1
	if _, err := DecryptAttachment(tampered, decodedRA, r); !errors.Is(err, ErrDigestMismatch) {
		t.Fatalf("expected ErrDigestMismatch, got %v", err)
	}

	insecure := ra
	insecure.URL = "http://example.com/a"
	if _, err := r.Encode(insecure, ContentTypeRemoteAttachment); !errors.Is(err, ErrMalformedContent) {
		t.Fatalf("expected ErrMalformedContent for http url, got %v", err)
	}
}

func TestReplyAndReadReceipt(t *testing.T) {
	r := DefaultRegistry()
	reply := Reply{Reference: "m1", ContentType: ContentTypeText, Content: "sure"}
	ec, err := r.Encode(reply, ContentTypeReply)
	if err != nil {
		t.Fatalf("encode reply failed: %v", err)
	}
	if ec.Fallback != "Replied with “sure” to an earlier message" {
		t.Fatalf("unexpected fallback %q", ec.Fallback)
	}
	if got := roundTrip(t, r, reply, ContentTypeReply); !reflect.DeepEqual(got, reply) {
		t.Fatalf("reply changed: %+v", got)
	}

	if got := roundTrip(t, r, ReadReceipt{}, ContentTypeReadReceipt); got != (ReadReceipt{}) {
		t.Fatalf("unexpected read receipt %v", got)
	}
	if r.ShouldPush(ReadReceipt{}, ContentTypeReadReceipt) {
		t.Fatal("read receipts must not push")
	}
	if !r.ShouldPush("hi", ContentTypeText) {
		t.Fatal("text must push")
	}
}

func TestEncodeRejectsWrongValueType(t *testing.T) {
	r := DefaultRegistry()
	_, err := r.Encode(42, ContentTypeText)
	if !errors.Is(err, ErrUnexpectedType) {
		t.Fatalf("expected ErrUnexpectedType, got %v", err)
	}
}
