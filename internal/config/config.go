package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xmtp/libxmtp-sub003/internal/waku"
	"github.com/xmtp/libxmtp-sub003/pkg/content"
)

const (
	EnvDev        = "dev"
	EnvProduction = "production"
	EnvLocal      = "local"
)

type Config struct {
	Network waku.Config
	Client  ClientConfig
}

type ClientConfig struct {
	Env          string
	Compression  content.Compression
	PublishRPS   float64
	PublishBurst int
}

type fileConfig struct {
	Network networkConfig `yaml:"network"`
	Client  clientConfig  `yaml:"client"`
}

type networkConfig struct {
	Transport           string        `yaml:"transport"`
	Port                int           `yaml:"port"`
	PubsubTopic         string        `yaml:"pubsubTopic"`
	EnableRelay         *bool         `yaml:"enableRelay"`
	EnableStore         *bool         `yaml:"enableStore"`
	EnableFilter        *bool         `yaml:"enableFilter"`
	EnableLightPush     *bool         `yaml:"enableLightPush"`
	BootstrapNodes      []string      `yaml:"bootstrapNodes"`
	Failover            *bool         `yaml:"failover"`
	MinPeers            int           `yaml:"minPeers"`
	StoreQueryFanout    int           `yaml:"storeQueryFanout"`
	StoreMaxEnvelopes   int           `yaml:"storeMaxEnvelopes"`
	ReconnectInterval   time.Duration `yaml:"reconnectInterval"`
	ReconnectBackoffMax time.Duration `yaml:"reconnectBackoffMax"`
}

type clientConfig struct {
	Env          string   `yaml:"env"`
	Compression  string   `yaml:"compression"`
	PublishRPS   *float64 `yaml:"publishRps"`
	PublishBurst int      `yaml:"publishBurst"`
}

func DefaultConfig() Config {
	return Config{
		Network: waku.DefaultConfig(),
		Client: ClientConfig{
			Env:          EnvDev,
			Compression:  content.CompressionNone,
			PublishRPS:   20,
			PublishBurst: 40,
		},
	}
}

// LoadFromPath reads the first readable candidate file and layers it over
// the defaults. A missing file is not an error; a malformed one is.
func LoadFromPath(configPath string) (Config, error) {
	cfg := DefaultConfig()

	candidates := make([]string, 0, 2)
	if configPath != "" {
		candidates = append(candidates, configPath)
	} else {
		candidates = append(candidates, "configs/config.yaml")
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) && configPath == "" {
				continue
			}
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		var parsed fileConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		if err := merge(&cfg, parsed); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
		break
	}

	ApplyEnvOverrides(&cfg)
	return normalize(cfg), nil
}

func merge(dst *Config, src fileConfig) error {
	mergeNetwork(&dst.Network, src.Network)

	if src.Client.Env != "" {
		dst.Client.Env = src.Client.Env
	}
	if src.Client.Compression != "" {
		c, err := content.ParseCompression(src.Client.Compression)
		if err != nil {
			return err
		}
		dst.Client.Compression = c
	}
	if src.Client.PublishRPS != nil {
		dst.Client.PublishRPS = *src.Client.PublishRPS
	}
	if src.Client.PublishBurst != 0 {
		dst.Client.PublishBurst = src.Client.PublishBurst
	}
	return nil
}

func mergeNetwork(dst *waku.Config, src networkConfig) {
	if src.Transport != "" {
		dst.Transport = src.Transport
	}
	if src.Port != 0 {
		dst.Port = src.Port
	}
	if src.PubsubTopic != "" {
		dst.PubsubTopic = src.PubsubTopic
	}
	if src.EnableRelay != nil {
		dst.EnableRelay = *src.EnableRelay
	}
	if src.EnableStore != nil {
		dst.EnableStore = *src.EnableStore
	}
	if src.EnableFilter != nil {
		dst.EnableFilter = *src.EnableFilter
	}
	if src.EnableLightPush != nil {
		dst.EnableLightPush = *src.EnableLightPush
	}
	if src.BootstrapNodes != nil {
		dst.BootstrapNodes = src.BootstrapNodes
	}
	if src.Failover != nil {
		dst.Failover = *src.Failover
	}
	if src.MinPeers != 0 {
		dst.MinPeers = src.MinPeers
	}
	if src.StoreQueryFanout != 0 {
		dst.StoreQueryFanout = src.StoreQueryFanout
	}
	if src.StoreMaxEnvelopes != 0 {
		dst.StoreMaxEnvelopes = src.StoreMaxEnvelopes
	}
	if src.ReconnectInterval != 0 {
		dst.ReconnectInterval = src.ReconnectInterval
	}
	if src.ReconnectBackoffMax != 0 {
		dst.ReconnectBackoffMax = src.ReconnectBackoffMax
	}
}

// ApplyEnvOverrides applies XMTP_* variables. Values that fail to parse are
// ignored.
func ApplyEnvOverrides(cfg *Config) {
	if transport := strings.TrimSpace(os.Getenv("XMTP_NETWORK_TRANSPORT")); transport != "" {
		cfg.Network.Transport = transport
	}
	if env := strings.TrimSpace(os.Getenv("XMTP_ENV")); env != "" {
		cfg.Client.Env = env
	}
	if raw := strings.TrimSpace(os.Getenv("XMTP_NETWORK_FAILOVER")); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			cfg.Network.Failover = v
		}
	}
	if raw := strings.TrimSpace(os.Getenv("XMTP_PUBLISH_RPS")); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v >= 0 {
			cfg.Client.PublishRPS = v
		}
	}
}

func normalize(cfg Config) Config {
	cfg.Network = waku.NormalizeConfig(cfg.Network)
	switch cfg.Client.Env {
	case EnvDev, EnvProduction, EnvLocal:
	default:
		cfg.Client.Env = EnvDev
	}
	if cfg.Client.PublishRPS < 0 {
		cfg.Client.PublishRPS = 0
	}
	if cfg.Client.PublishBurst <= 0 {
		cfg.Client.PublishBurst = 1
	}
	return cfg
}
