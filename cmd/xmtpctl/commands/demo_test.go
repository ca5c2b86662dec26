package commands

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/xmtp/libxmtp-sub003/internal/config"
)

func TestRunDemo(t *testing.T) {
	cfg = config.DefaultConfig()
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	var out bytes.Buffer
	if err := runDemo(context.Background(), &out); err != nil {
		t.Fatalf("demo failed: %v", err)
	}
	got := out.String()
	for _, want := range []string{"[v1]", "hello over v1", "[v2]", "hello over v2", "xmtp.org:reply:1.0"} {
		if !strings.Contains(got, want) {
			t.Fatalf("demo output missing %q:\n%s", want, got)
		}
	}
}
