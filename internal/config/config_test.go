package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xmtp/libxmtp-sub003/internal/waku"
	"github.com/xmtp/libxmtp-sub003/pkg/content"
)

func boolPtr(v bool) *bool {
	return &v
}

func TestLoadFromPathMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`network:
  transport: go-waku
  enableStore: false
  minPeers: 4
  reconnectInterval: 2s
  bootstrapNodes:
    - /ip4/127.0.0.1/tcp/60000/p2p/16Uiu2HAm
client:
  env: production
  compression: gzip
  publishRps: 5
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config failed: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load config failed: %v", err)
	}
	if cfg.Network.Transport != waku.TransportGoWaku {
		t.Fatalf("expected go-waku transport, got %q", cfg.Network.Transport)
	}
	if cfg.Network.EnableStore {
		t.Fatal("expected enableStore=false from explicit config")
	}
	if !cfg.Network.EnableRelay {
		t.Fatal("unset bool fields must keep defaults")
	}
	if cfg.Network.MinPeers != 4 {
		t.Fatalf("expected minPeers=4, got %d", cfg.Network.MinPeers)
	}
	if cfg.Network.ReconnectInterval != 2*time.Second {
		t.Fatalf("expected reconnectInterval=2s, got %s", cfg.Network.ReconnectInterval)
	}
	if len(cfg.Network.BootstrapNodes) != 1 {
		t.Fatalf("expected one bootstrap node, got %d", len(cfg.Network.BootstrapNodes))
	}
	if cfg.Client.Env != EnvProduction {
		t.Fatalf("expected production env, got %q", cfg.Client.Env)
	}
	if cfg.Client.Compression != content.CompressionGzip {
		t.Fatalf("expected gzip compression, got %s", cfg.Client.Compression)
	}
	if cfg.Client.PublishRPS != 5 {
		t.Fatalf("expected publishRps=5, got %v", cfg.Client.PublishRPS)
	}
	if cfg.Client.PublishBurst != DefaultConfig().Client.PublishBurst {
		t.Fatalf("expected default publish burst, got %d", cfg.Client.PublishBurst)
	}
}

func TestLoadFromPathRejectsUnknownCompression(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("client:\n  compression: brotli\n"), 0o600); err != nil {
		t.Fatalf("write config failed: %v", err)
	}
	if _, err := LoadFromPath(path); err == nil {
		t.Fatal("expected error for unsupported compression")
	}
}

func TestLoadFromPathMissingExplicitFileFails(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestMergeAppliesExplicitBoolFalseAndTrue(t *testing.T) {
	dst := DefaultConfig()
	dst.Network.Failover = true
	dst.Network.EnableLightPush = false

	src := fileConfig{Network: networkConfig{
		Failover:        boolPtr(false),
		EnableLightPush: boolPtr(true),
	}}
	if err := merge(&dst, src); err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if dst.Network.Failover {
		t.Fatal("expected failover=false from explicit config")
	}
	if !dst.Network.EnableLightPush {
		t.Fatal("expected enableLightPush=true from explicit config")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("XMTP_NETWORK_TRANSPORT", "go-waku")
	t.Setenv("XMTP_ENV", "local")
	t.Setenv("XMTP_NETWORK_FAILOVER", "false")
	t.Setenv("XMTP_PUBLISH_RPS", "2.5")

	cfg := DefaultConfig()
	ApplyEnvOverrides(&cfg)

	if cfg.Network.Transport != waku.TransportGoWaku {
		t.Fatalf("expected transport override, got %q", cfg.Network.Transport)
	}
	if cfg.Client.Env != EnvLocal {
		t.Fatalf("expected env override, got %q", cfg.Client.Env)
	}
	if cfg.Network.Failover {
		t.Fatal("expected failover=false from env override")
	}
	if cfg.Client.PublishRPS != 2.5 {
		t.Fatalf("expected publishRps=2.5, got %v", cfg.Client.PublishRPS)
	}
}

func TestApplyEnvOverridesIgnoresInvalidValue(t *testing.T) {
	t.Setenv("XMTP_NETWORK_FAILOVER", "invalid")
	t.Setenv("XMTP_PUBLISH_RPS", "fast")
	cfg := DefaultConfig()
	ApplyEnvOverrides(&cfg)
	if !cfg.Network.Failover {
		t.Fatal("invalid env value must not change failover")
	}
	if cfg.Client.PublishRPS != DefaultConfig().Client.PublishRPS {
		t.Fatalf("invalid env value must not change publishRps, got %v", cfg.Client.PublishRPS)
	}
}

func TestNormalizeFallsBackToDevEnv(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Client.Env = "staging"
	cfg.Client.PublishBurst = 0
	cfg = normalize(cfg)
	if cfg.Client.Env != EnvDev {
		t.Fatalf("expected unknown env to normalize to dev, got %q", cfg.Client.Env)
	}
	if cfg.Client.PublishBurst != 1 {
		t.Fatalf("expected burst to clamp to 1, got %d", cfg.Client.PublishBurst)
	}
}
