package privacylog

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestSanitizeArgsFingerprintsAddressesAndTopics(t *testing.T) {
	args := SanitizeArgs(
		"address", "0x1f9090aaE28b8a3dCeaDf281B0F12828e676c326",
		"topic", "/xmtp/0/m-abc/proto",
		"kind", "v2",
	)
	if len(args) != 6 {
		t.Fatalf("unexpected args length: %d", len(args))
	}
	if got := args[0]; got != "address_fp" {
		t.Fatalf("unexpected key: %v", got)
	}
	if got := args[1].(string); !strings.HasPrefix(got, "fp_") {
		t.Fatalf("unexpected fingerprint value: %q", got)
	}
	if got := args[2]; got != "topic_fp" {
		t.Fatalf("unexpected key: %v", got)
	}
	if got := args[4]; got != "kind" {
		t.Fatalf("expected untouched key, got %v", got)
	}
}

func TestSanitizingHandlerRedactsKeyMaterial(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, slog.LevelInfo)
	logger.Info("test",
		"conversation_id", "xmtp.org/dm/1",
		"key_material", "00112233",
		"wallet_signature", "abcd",
		"status", "ok",
	)

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode log json: %v", err)
	}
	if _, ok := payload["conversation_id"]; ok {
		t.Fatal("conversation_id should not be present")
	}
	if _, ok := payload["conversation_id_fp"]; !ok {
		t.Fatal("conversation_id_fp should be present")
	}
	if got, _ := payload["key_material"].(string); got != redactedValue {
		t.Fatalf("expected redacted key material, got %q", got)
	}
	if got, _ := payload["wallet_signature"].(string); got != redactedValue {
		t.Fatalf("expected redacted signature, got %q", got)
	}
	if got, _ := payload["status"].(string); got != "ok" {
		t.Fatalf("expected untouched status, got %q", got)
	}
}

func TestSanitizingHandlerSanitizesWithAttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(WrapHandler(slog.NewJSONHandler(&buf, nil))).With("private_key", "deadbeef")
	logger.Info("test", slog.Group("peer_info", slog.String("recipient", "0xabc")))

	out := buf.String()
	if strings.Contains(out, "deadbeef") {
		t.Fatalf("private key leaked into log: %s", out)
	}
	if strings.Contains(out, "0xabc") || !strings.Contains(out, "recipient_fp") {
		t.Fatalf("expected grouped recipient to be fingerprinted, got %s", out)
	}
}

func TestSanitizingHandlerImplementsSlogHandlerContract(t *testing.T) {
	var buf bytes.Buffer
	h := WrapHandler(slog.NewJSONHandler(&buf, nil))
	if !h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("expected handler enabled for info")
	}
	rec := slog.NewRecord(time.Now().UTC(), slog.LevelInfo, "msg", 0)
	rec.AddAttrs(slog.String("installation_id", "inst1"))
	if err := h.Handle(context.Background(), rec); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if !strings.Contains(buf.String(), "installation_id_fp") {
		t.Fatalf("expected sanitized installation_id key, got %s", buf.String())
	}
}

func TestFingerprintIsStableWithinProcess(t *testing.T) {
	a := FingerprintID("0xabc")
	b := FingerprintID(" 0xabc ")
	if a != b {
		t.Fatalf("expected stable fingerprint, got %q and %q", a, b)
	}
	if FingerprintID("") != "" {
		t.Fatal("expected empty fingerprint for empty value")
	}
}
