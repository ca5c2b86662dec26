package waku

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/xmtp/libxmtp-sub003/pkg/transport"
)

const (
	TransportMock   = "mock"
	TransportGoWaku = "go-waku"

	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateConnected    = "connected"
	StateDegraded     = "degraded"

	DefaultPubsubTopic = "/waku/2/default-waku/proto"
)

var (
	ErrNotConnected       = errors.New("waku not connected")
	ErrBackendUnavailable = errors.New("go-waku backend is not available in this build")
	ErrNoTopics           = errors.New("at least one content topic is required")
)

var runtimeStatusPollInterval = 1 * time.Second

type Config struct {
	Transport           string        `yaml:"transport"`
	Port                int           `yaml:"port"`
	PubsubTopic         string        `yaml:"pubsubTopic"`
	EnableRelay         bool          `yaml:"enableRelay"`
	EnableStore         bool          `yaml:"enableStore"`
	EnableFilter        bool          `yaml:"enableFilter"`
	EnableLightPush     bool          `yaml:"enableLightPush"`
	BootstrapNodes      []string      `yaml:"bootstrapNodes"`
	Failover            bool          `yaml:"failover"`
	MinPeers            int           `yaml:"minPeers"`
	StoreQueryFanout    int           `yaml:"storeQueryFanout"`
	StoreMaxEnvelopes   int           `yaml:"storeMaxEnvelopes"`
	ReconnectInterval   time.Duration `yaml:"reconnectInterval"`
	ReconnectBackoffMax time.Duration `yaml:"reconnectBackoffMax"`
}

type Status struct {
	State     string
	PeerCount int
	LastSync  time.Time
}

// Node is the transport.Transport used by the client. With the mock
// transport it relays over an in-process bus; with go-waku it runs a relay
// and store node.
type Node struct {
	mu     sync.RWMutex
	cfg    Config
	status Status
	logger *slog.Logger
	bus    *Bus
	gw     goWakuBackend

	monitorCancel    context.CancelFunc
	monitorWG        sync.WaitGroup
	stateTransitions int
}

var _ transport.Transport = (*Node)(nil)

type goWakuBackend interface {
	Start(ctx context.Context, cfg Config) error
	Stop()
	PeerCount() int
	NetworkMetrics() map[string]int
	ApplyConfig(cfg Config)
	ListenAddresses() []string
	Subscribe(topics []string, handler transport.Handler) (func(), error)
	Publish(ctx context.Context, env transport.Envelope) error
	Query(ctx context.Context, q transport.Query) (transport.QueryResult, error)
}

type Option func(*Node)

func WithLogger(logger *slog.Logger) Option {
	return func(n *Node) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithBus replaces the process-wide in-memory network used by the mock
// transport. Nodes that should see each other must share the same bus.
func WithBus(bus *Bus) Option {
	return func(n *Node) {
		if bus != nil {
			n.bus = bus
		}
	}
}

func DefaultConfig() Config {
	return Config{
		Transport:           TransportMock,
		Port:                60000,
		PubsubTopic:         DefaultPubsubTopic,
		EnableRelay:         true,
		EnableStore:         true,
		EnableFilter:        true,
		EnableLightPush:     true,
		BootstrapNodes:      nil,
		Failover:            true,
		MinPeers:            2,
		StoreQueryFanout:    3,
		StoreMaxEnvelopes:   1000,
		ReconnectInterval:   1 * time.Second,
		ReconnectBackoffMax: 30 * time.Second,
	}
}

func NewNode(cfg Config, opts ...Option) *Node {
	cfg = NormalizeConfig(cfg)
	n := &Node{
		cfg:    cfg,
		logger: slog.Default(),
		bus:    globalBus,
		status: Status{State: StateDisconnected},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func NormalizeConfig(cfg Config) Config {
	def := DefaultConfig()
	if cfg.Transport == "" {
		cfg.Transport = def.Transport
	}
	if cfg.PubsubTopic == "" {
		cfg.PubsubTopic = def.PubsubTopic
	}
	if cfg.StoreQueryFanout <= 0 {
		cfg.StoreQueryFanout = def.StoreQueryFanout
	}
	if cfg.StoreMaxEnvelopes <= 0 {
		cfg.StoreMaxEnvelopes = def.StoreMaxEnvelopes
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = def.ReconnectInterval
	}
	if cfg.ReconnectBackoffMax <= 0 {
		cfg.ReconnectBackoffMax = def.ReconnectBackoffMax
	}
	if cfg.ReconnectBackoffMax < cfg.ReconnectInterval {
		cfg.ReconnectBackoffMax = cfg.ReconnectInterval
	}
	if cfg.MinPeers < 0 {
		cfg.MinPeers = 0
	}
	return cfg
}

func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	n.transitionStateLocked(StateConnecting)
	n.status.LastSync = time.Now()
	n.mu.Unlock()

	if n.cfg.Transport == TransportGoWaku {
		backend := newGoWakuBackend(n.logger)
		if backend == nil {
			n.setDisconnected()
			return ErrBackendUnavailable
		}
		if err := backend.Start(ctx, n.cfg); err != nil {
			n.setDisconnected()
			return err
		}
		peerCount := backend.PeerCount()
		if n.cfg.Failover {
			var err error
			peerCount, err = waitForStartupPeerCount(ctx, backend, n.cfg)
			if err != nil {
				backend.Stop()
				n.setDisconnected()
				return err
			}
		}
		n.mu.Lock()
		n.gw = backend
		n.transitionStateLocked(startupStateFromPeerCount(peerCount, n.cfg))
		n.status.PeerCount = peerCount
		n.status.LastSync = time.Now()
		n.mu.Unlock()
		n.startRuntimeMonitor()
		n.logger.Info("waku node started", "transport", n.cfg.Transport, "peers", peerCount)
		return nil
	}

	if err := ctx.Err(); err != nil {
		n.setDisconnected()
		return err
	}

	n.mu.Lock()
	n.transitionStateLocked(StateConnected)
	n.status.PeerCount = estimatedPeers(n.cfg)
	n.status.LastSync = time.Now()
	n.mu.Unlock()
	n.logger.Info("waku node started", "transport", n.cfg.Transport)
	return nil
}

func (n *Node) Stop(_ context.Context) error {
	n.stopRuntimeMonitor()

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.gw != nil {
		n.gw.Stop()
		n.gw = nil
	}
	n.transitionStateLocked(StateDisconnected)
	n.status.PeerCount = 0
	n.status.LastSync = time.Now()
	return nil
}

func (n *Node) Status() Status {
	n.mu.RLock()
	defer n.mu.RUnlock()
	s := n.status
	if n.gw != nil {
		s.PeerCount = n.gw.PeerCount()
	}
	return s
}

func (n *Node) ApplyConfig(cfg Config) {
	cfg = NormalizeConfig(cfg)

	n.mu.Lock()
	n.cfg.BootstrapNodes = append([]string(nil), cfg.BootstrapNodes...)
	n.cfg.MinPeers = cfg.MinPeers
	n.cfg.Failover = cfg.Failover
	n.cfg.ReconnectInterval = cfg.ReconnectInterval
	n.cfg.ReconnectBackoffMax = cfg.ReconnectBackoffMax
	gw := n.gw
	nodeCfg := n.cfg
	n.mu.Unlock()

	if gw != nil {
		gw.ApplyConfig(nodeCfg)
	}
}

func (n *Node) connected() (goWakuBackend, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.status.State != StateConnected && n.status.State != StateDegraded {
		return nil, ErrNotConnected
	}
	return n.gw, nil
}

func (n *Node) Publish(ctx context.Context, envs ...transport.Envelope) error {
	gw, err := n.connected()
	if err != nil {
		return err
	}
	for _, env := range envs {
		if err := env.Validate(); err != nil {
			return err
		}
		if env.TimestampNs == 0 {
			env.TimestampNs = uint64(time.Now().UnixNano())
		}
		if gw != nil {
			if err := gw.Publish(ctx, env); err != nil {
				return err
			}
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		n.bus.publish(env)
	}
	return nil
}

func (n *Node) Query(ctx context.Context, q transport.Query) (transport.QueryResult, error) {
	gw, err := n.connected()
	if err != nil {
		return transport.QueryResult{}, err
	}
	if len(q.ContentTopics) == 0 {
		return transport.QueryResult{}, ErrNoTopics
	}
	if gw != nil {
		return gw.Query(ctx, q)
	}
	if err := ctx.Err(); err != nil {
		return transport.QueryResult{}, err
	}
	return n.bus.query(q)
}

// Subscribe delivers envelopes published on any of topics until the returned
// cancel func is called or ctx is done.
func (n *Node) Subscribe(ctx context.Context, topics []string, handler transport.Handler) (func(), error) {
	gw, err := n.connected()
	if err != nil {
		return nil, err
	}
	if len(topics) == 0 {
		return nil, ErrNoTopics
	}
	topics = append([]string(nil), topics...)

	var unsubscribe func()
	if gw != nil {
		unsubscribe, err = gw.Subscribe(topics, handler)
		if err != nil {
			return nil, err
		}
	} else {
		unsubscribe = n.bus.subscribe(topics, handler)
	}

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			unsubscribe()
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return cancel, nil
}

func (n *Node) ListenAddresses() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.gw == nil {
		return nil
	}
	return append([]string(nil), n.gw.ListenAddresses()...)
}

func (n *Node) setDisconnected() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.transitionStateLocked(StateDisconnected)
	n.status.PeerCount = 0
	n.status.LastSync = time.Now()
}

func (n *Node) startRuntimeMonitor() {
	n.mu.Lock()
	if n.monitorCancel != nil {
		n.monitorCancel()
		n.monitorCancel = nil
	}
	monitorCtx, cancel := context.WithCancel(context.Background())
	n.monitorCancel = cancel
	n.monitorWG.Add(1)
	n.mu.Unlock()

	go func() {
		defer n.monitorWG.Done()
		ticker := time.NewTicker(runtimeStatusPollInterval)
		defer ticker.Stop()

		n.refreshRuntimeStatus()

		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				n.refreshRuntimeStatus()
			}
		}
	}()
}

func (n *Node) stopRuntimeMonitor() {
	n.mu.Lock()
	cancel := n.monitorCancel
	n.monitorCancel = nil
	n.mu.Unlock()
	if cancel != nil {
		cancel()
		n.monitorWG.Wait()
	}
}

func (n *Node) refreshRuntimeStatus() {
	n.mu.RLock()
	gw := n.gw
	n.mu.RUnlock()
	if gw == nil {
		return
	}
	peerCount := gw.PeerCount()
	nextState := StateConnected
	if peerCount <= 0 {
		nextState = StateDegraded
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.status.State == StateDisconnected {
		return
	}
	if n.status.State != nextState || n.status.PeerCount != peerCount {
		if n.status.State != nextState {
			n.logger.Warn("waku node state changed", "from", n.status.State, "to", nextState, "peers", peerCount)
		}
		n.transitionStateLocked(nextState)
		n.status.PeerCount = peerCount
		n.status.LastSync = time.Now()
	}
}

func (n *Node) NetworkMetrics() map[string]int {
	n.mu.RLock()
	transitions := n.stateTransitions
	gw := n.gw
	n.mu.RUnlock()
	out := map[string]int{
		"network_state_transitions": transitions,
	}
	if gw != nil {
		for k, v := range gw.NetworkMetrics() {
			out[k] = v
		}
	}
	return out
}

func (n *Node) transitionStateLocked(next string) {
	if next == "" {
		return
	}
	if n.status.State != next {
		n.stateTransitions++
		n.status.State = next
	}
}

func estimatedPeers(cfg Config) int {
	if len(cfg.BootstrapNodes) == 0 {
		return 1
	}
	if len(cfg.BootstrapNodes) > 12 {
		return 12
	}
	return len(cfg.BootstrapNodes)
}

func waitForStartupPeerCount(ctx context.Context, backend goWakuBackend, cfg Config) (int, error) {
	target := startupPeerTarget(cfg)
	peerCount := backend.PeerCount()
	if peerCount >= target {
		return peerCount, nil
	}

	timer := time.NewTimer(startupHandshakeTimeout(cfg))
	defer timer.Stop()
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return backend.PeerCount(), ctx.Err()
		case <-timer.C:
			return backend.PeerCount(), nil
		case <-ticker.C:
			peerCount = backend.PeerCount()
			if peerCount >= target {
				return peerCount, nil
			}
		}
	}
}

func startupStateFromPeerCount(peerCount int, cfg Config) string {
	if peerCount >= startupPeerTarget(cfg) {
		return StateConnected
	}
	return StateDegraded
}

func startupPeerTarget(cfg Config) int {
	target := cfg.MinPeers
	if target <= 0 {
		target = 1
	}
	if len(cfg.BootstrapNodes) > 0 && target > len(cfg.BootstrapNodes) {
		target = len(cfg.BootstrapNodes)
	}
	return target
}

func startupHandshakeTimeout(cfg Config) time.Duration {
	base := cfg.ReconnectInterval
	if base <= 0 {
		base = time.Second
	}
	timeout := base * 5
	if timeout < 2*time.Second {
		timeout = 2 * time.Second
	}
	if cfg.ReconnectBackoffMax > 0 && timeout > cfg.ReconnectBackoffMax {
		timeout = cfg.ReconnectBackoffMax
	}
	return timeout
}
