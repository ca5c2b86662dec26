package waku

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xmtp/libxmtp-sub003/pkg/transport"
)

func TestNodeLifecycle(t *testing.T) {
	n := NewNode(DefaultConfig(), WithBus(NewBus()))
	if got := n.Status().State; got != StateDisconnected {
		t.Fatalf("expected disconnected initially, got %s", got)
	}
	if err := n.Publish(context.Background(), transport.Envelope{ContentTopic: "t"}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected before start, got %v", err)
	}

	if err := n.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	started := n.Status()
	if started.State != StateConnected {
		t.Fatalf("expected connected after start, got %s", started.State)
	}
	if started.PeerCount <= 0 {
		t.Fatalf("expected peer count > 0, got %d", started.PeerCount)
	}

	if err := n.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if got := n.Status().State; got != StateDisconnected {
		t.Fatalf("expected disconnected after stop, got %s", got)
	}
}

func TestGoWakuUnavailableWithoutBuildTag(t *testing.T) {
	if newGoWakuBackend(nil) != nil {
		t.Skip("go-waku backend is enabled in this build")
	}
	cfg := DefaultConfig()
	cfg.Transport = TransportGoWaku
	n := NewNode(cfg)
	if err := n.Start(context.Background()); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
	if got := n.Status().State; got != StateDisconnected {
		t.Fatalf("expected disconnected after failed start, got %s", got)
	}
}

func TestBusRelaysAndStoresByTopic(t *testing.T) {
	bus := NewBus()
	alice := startMockNode(t, bus)
	bob := startMockNode(t, bus)

	var mu sync.Mutex
	var received []string
	cancel, err := bob.Subscribe(context.Background(), []string{"/xmtp/0/dm-a-b/proto"}, func(env transport.Envelope) {
		mu.Lock()
		received = append(received, string(env.Message))
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	err = alice.Publish(context.Background(),
		transport.Envelope{ContentTopic: "/xmtp/0/dm-a-b/proto", TimestampNs: 1, Message: []byte("one")},
		transport.Envelope{ContentTopic: "/xmtp/0/other/proto", TimestampNs: 2, Message: []byte("skip")},
	)
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	cancel()
	if err := alice.Publish(context.Background(), transport.Envelope{ContentTopic: "/xmtp/0/dm-a-b/proto", TimestampNs: 3, Message: []byte("two")}); err != nil {
		t.Fatalf("publish after cancel failed: %v", err)
	}

	mu.Lock()
	got := append([]string(nil), received...)
	mu.Unlock()
	if len(got) != 1 || got[0] != "one" {
		t.Fatalf("expected only the first envelope to be relayed, got %v", got)
	}

	res, err := bob.Query(context.Background(), transport.Query{ContentTopics: []string{"/xmtp/0/dm-a-b/proto"}})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(res.Envelopes) != 2 {
		t.Fatalf("expected 2 stored envelopes, got %d", len(res.Envelopes))
	}
	if string(res.Envelopes[0].Message) != "one" || string(res.Envelopes[1].Message) != "two" {
		t.Fatalf("unexpected store order: %q, %q", res.Envelopes[0].Message, res.Envelopes[1].Message)
	}
}

func TestSubscribeStopsWhenContextDone(t *testing.T) {
	bus := NewBus()
	n := startMockNode(t, bus)

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := n.Subscribe(ctx, []string{"t"}, func(transport.Envelope) {}); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	cancel()

	deadline := time.Now().Add(time.Second)
	for {
		bus.mu.Lock()
		remaining := len(bus.subscribers)
		bus.mu.Unlock()
		if remaining == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("subscription was not removed after context cancellation")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestQueryAndSubscribeRequireTopics(t *testing.T) {
	n := startMockNode(t, NewBus())
	if _, err := n.Query(context.Background(), transport.Query{}); !errors.Is(err, ErrNoTopics) {
		t.Fatalf("expected ErrNoTopics from query, got %v", err)
	}
	if _, err := n.Subscribe(context.Background(), nil, func(transport.Envelope) {}); !errors.Is(err, ErrNoTopics) {
		t.Fatalf("expected ErrNoTopics from subscribe, got %v", err)
	}
	if err := n.Publish(context.Background(), transport.Envelope{}); !errors.Is(err, transport.ErrMissingTopic) {
		t.Fatalf("expected ErrMissingTopic from publish, got %v", err)
	}
}

func TestNodeRuntimeStateTransitionsByPeerCount(t *testing.T) {
	prevInterval := runtimeStatusPollInterval
	runtimeStatusPollInterval = 20 * time.Millisecond
	defer func() { runtimeStatusPollInterval = prevInterval }()

	backend := &fakeGoWakuBackend{peerCount: 1}
	n := NewNode(Config{Transport: TransportGoWaku})
	n.mu.Lock()
	n.gw = backend
	n.status.State = StateConnected
	n.status.PeerCount = 1
	n.status.LastSync = time.Now()
	n.mu.Unlock()
	n.startRuntimeMonitor()
	defer n.stopRuntimeMonitor()

	waitForState(t, n, StateConnected, 300*time.Millisecond)
	backend.setPeerCount(0)
	waitForState(t, n, StateDegraded, 500*time.Millisecond)
	backend.setPeerCount(2)
	waitForState(t, n, StateConnected, 500*time.Millisecond)
}

func TestNormalizeConfigAppliesSafeDefaults(t *testing.T) {
	cfg := NormalizeConfig(Config{
		MinPeers:            -1,
		ReconnectBackoffMax: 10 * time.Millisecond,
	})

	if cfg.Transport != TransportMock {
		t.Fatalf("transport must default to mock, got %q", cfg.Transport)
	}
	if cfg.PubsubTopic != DefaultPubsubTopic {
		t.Fatalf("pubsub topic must be defaulted, got %q", cfg.PubsubTopic)
	}
	if cfg.MinPeers != 0 {
		t.Fatalf("expected negative minPeers to clamp to 0, got %d", cfg.MinPeers)
	}
	if cfg.StoreQueryFanout <= 0 || cfg.StoreMaxEnvelopes <= 0 {
		t.Fatalf("store limits must be > 0, got fanout=%d max=%d", cfg.StoreQueryFanout, cfg.StoreMaxEnvelopes)
	}
	if cfg.ReconnectBackoffMax < cfg.ReconnectInterval {
		t.Fatalf("reconnectBackoffMax must be >= reconnectInterval, got max=%s interval=%s", cfg.ReconnectBackoffMax, cfg.ReconnectInterval)
	}
}

func TestStartupPeerTarget(t *testing.T) {
	if got := startupPeerTarget(Config{}); got != 1 {
		t.Fatalf("expected default startup target=1, got %d", got)
	}
	if got := startupPeerTarget(Config{MinPeers: 3, BootstrapNodes: []string{"a", "b"}}); got != 2 {
		t.Fatalf("expected target capped by bootstrap size to 2, got %d", got)
	}
	cfg := Config{MinPeers: 2}
	if got := startupStateFromPeerCount(2, cfg); got != StateConnected {
		t.Fatalf("expected connected, got %s", got)
	}
	if got := startupStateFromPeerCount(0, cfg); got != StateDegraded {
		t.Fatalf("expected degraded, got %s", got)
	}
}

func TestWaitForStartupPeerCountTimeoutReturnsDegradedCount(t *testing.T) {
	backend := &fakeGoWakuBackend{peerCount: 0}
	ctx, cancel := context.WithTimeout(context.Background(), 350*time.Millisecond)
	defer cancel()

	cfg := Config{
		MinPeers:            2,
		ReconnectInterval:   50 * time.Millisecond,
		ReconnectBackoffMax: 200 * time.Millisecond,
	}
	got, err := waitForStartupPeerCount(ctx, backend, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0 {
		t.Fatalf("expected peer count=0 after timeout, got %d", got)
	}
}

func startMockNode(t *testing.T, bus *Bus) *Node {
	t.Helper()
	n := NewNode(DefaultConfig(), WithBus(bus))
	if err := n.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	t.Cleanup(func() { _ = n.Stop(context.Background()) })
	return n
}

func waitForState(t *testing.T, n *Node, expected string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if n.Status().State == expected {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for state=%s, got=%s", expected, n.Status().State)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

type fakeGoWakuBackend struct {
	mu        sync.RWMutex
	peerCount int
}

func (f *fakeGoWakuBackend) Start(_ context.Context, _ Config) error { return nil }
func (f *fakeGoWakuBackend) Stop()                                   {}
func (f *fakeGoWakuBackend) NetworkMetrics() map[string]int          { return map[string]int{} }
func (f *fakeGoWakuBackend) ApplyConfig(_ Config)                    {}
func (f *fakeGoWakuBackend) ListenAddresses() []string               { return nil }
func (f *fakeGoWakuBackend) Subscribe(_ []string, _ transport.Handler) (func(), error) {
	return func() {}, nil
}
func (f *fakeGoWakuBackend) Publish(_ context.Context, _ transport.Envelope) error {
	return nil
}
func (f *fakeGoWakuBackend) Query(_ context.Context, _ transport.Query) (transport.QueryResult, error) {
	return transport.QueryResult{}, nil
}
func (f *fakeGoWakuBackend) PeerCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.peerCount
}
func (f *fakeGoWakuBackend) setPeerCount(v int) {
	f.mu.Lock()
	f.peerCount = v
	f.mu.Unlock()
}
