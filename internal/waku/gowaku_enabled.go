//go:build real_waku

package waku

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/waku-org/go-waku/waku/persistence"
	"github.com/waku-org/go-waku/waku/persistence/sqlite"
	wakuNode "github.com/waku-org/go-waku/waku/v2/node"
	"github.com/waku-org/go-waku/waku/v2/protocol"
	legacyStore "github.com/waku-org/go-waku/waku/v2/protocol/legacy_store"
	wpb "github.com/waku-org/go-waku/waku/v2/protocol/pb"
	"github.com/waku-org/go-waku/waku/v2/protocol/relay"
	"github.com/waku-org/go-waku/waku/v2/utils"

	"github.com/xmtp/libxmtp-sub003/pkg/transport"
)

var errNodeStopped = errors.New("go-waku node is not running")

type goWakuNode struct {
	mu             sync.RWMutex
	node           *wakuNode.WakuNode
	logger         *slog.Logger
	cfg            Config
	bootstrapNodes []string
	maintainCancel context.CancelFunc
	maintainWG     sync.WaitGroup
	metrics        goWakuMetrics
}

type goWakuMetrics struct {
	DialAttempts       int
	DialSuccess        int
	DialFailures       int
	StoreQueryFailover int
	StoreQueryFailures int
}

func newGoWakuBackend(logger *slog.Logger) goWakuBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &goWakuNode{logger: logger.With("component", "go-waku")}
}

func (g *goWakuNode) Start(ctx context.Context, cfg Config) error {
	opts := make([]wakuNode.WakuNodeOption, 0)
	hostAddr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort("0.0.0.0", strconv.Itoa(cfg.Port)))
	if err != nil {
		return err
	}
	opts = append(opts, wakuNode.WithHostAddress(hostAddr))
	if cfg.EnableRelay {
		opts = append(opts, wakuNode.WithWakuRelay())
	}
	if cfg.EnableStore {
		provider, err := newInMemoryMessageProvider()
		if err != nil {
			return err
		}
		opts = append(opts, wakuNode.WithMessageProvider(provider))
		opts = append(opts, wakuNode.WithWakuStore())
	}
	if cfg.EnableFilter {
		opts = append(opts, wakuNode.WithWakuFilterLightNode(), wakuNode.WithWakuFilterFullNode())
	}
	if cfg.EnableLightPush {
		opts = append(opts, wakuNode.WithLightPush())
	}

	node, err := wakuNode.New(opts...)
	if err != nil {
		return err
	}
	if err := node.Start(ctx); err != nil {
		return err
	}

	for _, addr := range cfg.BootstrapNodes {
		if err := node.DialPeer(ctx, addr); err != nil {
			g.logger.Warn("bootstrap dial failed", "peer_addr", addr, "reason", err.Error())
		}
	}

	g.mu.Lock()
	g.node = node
	g.cfg = cfg
	g.bootstrapNodes = append([]string(nil), cfg.BootstrapNodes...)
	g.mu.Unlock()
	if cfg.Failover {
		g.startPeerMaintenance()
	}
	return nil
}

func (g *goWakuNode) Stop() {
	g.stopPeerMaintenance()

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.node != nil {
		g.node.Stop()
		g.node = nil
	}
}

func (g *goWakuNode) PeerCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.node == nil {
		return 0
	}
	return g.node.PeerCount()
}

func (g *goWakuNode) NetworkMetrics() map[string]int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return map[string]int{
		"dial_attempts":        g.metrics.DialAttempts,
		"dial_success":         g.metrics.DialSuccess,
		"dial_failures":        g.metrics.DialFailures,
		"store_query_failover": g.metrics.StoreQueryFailover,
		"store_query_failures": g.metrics.StoreQueryFailures,
	}
}

func (g *goWakuNode) ApplyConfig(cfg Config) {
	g.mu.Lock()
	g.cfg.MinPeers = cfg.MinPeers
	g.cfg.ReconnectInterval = cfg.ReconnectInterval
	g.cfg.ReconnectBackoffMax = cfg.ReconnectBackoffMax
	g.cfg.Failover = cfg.Failover
	g.bootstrapNodes = append([]string(nil), cfg.BootstrapNodes...)
	g.mu.Unlock()

	if cfg.Failover {
		g.startPeerMaintenance()
		return
	}
	g.stopPeerMaintenance()
}

func (g *goWakuNode) ListenAddresses() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.node == nil {
		return nil
	}
	addrs := g.node.ListenAddresses()
	out := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, addr.String())
	}
	return out
}

func (g *goWakuNode) Subscribe(topics []string, handler transport.Handler) (func(), error) {
	g.mu.RLock()
	node := g.node
	pubsubTopic := g.cfg.PubsubTopic
	g.mu.RUnlock()
	if node == nil {
		return nil, errNodeStopped
	}

	filter := protocol.NewContentFilter(pubsubTopic, topics...)
	subs, err := node.Relay().Subscribe(context.Background(), filter)
	if err != nil {
		return nil, err
	}

	for _, sub := range subs {
		go func(subscription *relay.Subscription) {
			for env := range subscription.Ch {
				if env == nil || env.Message() == nil {
					continue
				}
				handler(envelopeFromWaku(env.Message()))
			}
		}(sub)
	}

	return func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}, nil
}

func (g *goWakuNode) Publish(ctx context.Context, env transport.Envelope) error {
	g.mu.RLock()
	node := g.node
	pubsubTopic := g.cfg.PubsubTopic
	g.mu.RUnlock()
	if node == nil {
		return errNodeStopped
	}

	ts := int64(env.TimestampNs)
	wm := &wpb.WakuMessage{
		Payload:      env.Message,
		ContentTopic: env.ContentTopic,
		Timestamp:    &ts,
	}
	_, err := node.Relay().Publish(ctx, wm, relay.WithPubSubTopic(pubsubTopic))
	return err
}

// Query pulls matching envelopes from store peers, trying bootstrap peers in
// turn before letting go-waku pick one, then pages them locally so cursors
// stay stable across store peers.
func (g *goWakuNode) Query(ctx context.Context, q transport.Query) (transport.QueryResult, error) {
	g.mu.RLock()
	node := g.node
	cfg := g.cfg
	bootstrapNodes := append([]string(nil), g.bootstrapNodes...)
	g.mu.RUnlock()
	if node == nil {
		return transport.QueryResult{}, errNodeStopped
	}

	criteria := legacyStore.Query{
		PubsubTopic:   cfg.PubsubTopic,
		ContentTopics: append([]string(nil), q.ContentTopics...),
	}
	if q.StartTimeNs > 0 {
		start := int64(q.StartTimeNs)
		criteria.StartTime = &start
	}
	end := time.Now().UnixNano()
	if q.EndTimeNs > 0 {
		end = int64(q.EndTimeNs)
	}
	criteria.EndTime = &end

	pageSize := uint64(transport.DefaultPageLimit)
	baseOpts := []legacyStore.HistoryRequestOption{legacyStore.WithPaging(true, pageSize)}
	fanout := cfg.StoreQueryFanout
	if fanout <= 0 {
		fanout = 1
	}

	type queryCandidate struct {
		opts     []legacyStore.HistoryRequestOption
		peerAddr string
	}
	candidates := make([]queryCandidate, 0, min(len(bootstrapNodes), fanout)+1)
	seen := make(map[string]struct{}, len(bootstrapNodes))
	for _, addr := range bootstrapNodes {
		if len(candidates) >= fanout {
			break
		}
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		peerAddr, err := ma.NewMultiaddr(addr)
		if err != nil {
			g.logger.Warn("skipping invalid store peer", "peer_addr", addr, "reason", err.Error())
			continue
		}
		opts := append([]legacyStore.HistoryRequestOption{}, baseOpts...)
		opts = append(opts, legacyStore.WithPeerAddr(peerAddr))
		candidates = append(candidates, queryCandidate{opts: opts, peerAddr: addr})
	}
	candidates = append(candidates, queryCandidate{
		opts:     append([]legacyStore.HistoryRequestOption{}, baseOpts...),
		peerAddr: "auto",
	})
	if !cfg.Failover {
		candidates = candidates[:1]
	}

	var (
		result  *legacyStore.Result
		err     error
		lastErr error
	)
	successAttempt := 0
	for i, candidate := range candidates {
		attempt := i + 1
		result, err = node.LegacyStore().Query(ctx, criteria, candidate.opts...)
		if err == nil {
			successAttempt = attempt
			break
		}
		g.recordStoreQueryFailure()
		g.logger.Warn("store query attempt failed", "peer_addr", candidate.peerAddr, "attempt", attempt, "reason", err.Error())
		lastErr = err
	}
	if err != nil {
		return transport.QueryResult{}, lastErr
	}
	if successAttempt > 1 {
		g.recordStoreQueryFailover()
		g.logger.Info("store query recovered via failover", "attempt", successAttempt)
	}

	envs := make([]transport.Envelope, 0, pageSize)
	seenDigest := map[string]struct{}{}
	consume := func() {
		for _, wm := range result.Messages {
			if wm == nil {
				continue
			}
			env := envelopeFromWaku(wm)
			key := string(env.Digest())
			if _, ok := seenDigest[key]; ok {
				continue
			}
			seenDigest[key] = struct{}{}
			envs = append(envs, env)
		}
	}
	consume()
	for !result.IsComplete() && len(envs) < cfg.StoreMaxEnvelopes {
		result, err = node.LegacyStore().Next(ctx, result)
		if err != nil {
			return transport.QueryResult{}, err
		}
		consume()
	}
	return transport.Page(envs, q)
}

func envelopeFromWaku(wm *wpb.WakuMessage) transport.Envelope {
	return transport.Envelope{
		ContentTopic: wm.ContentTopic,
		TimestampNs:  uint64(wm.GetTimestamp()),
		Message:      append([]byte(nil), wm.Payload...),
	}
}

func (g *goWakuNode) startPeerMaintenance() {
	g.mu.Lock()
	if g.maintainCancel != nil {
		g.maintainCancel()
		g.maintainCancel = nil
	}
	if len(g.bootstrapNodes) == 0 || g.node == nil {
		g.mu.Unlock()
		return
	}
	maintainCtx, cancel := context.WithCancel(context.Background())
	g.maintainCancel = cancel
	g.maintainWG.Add(1)
	cfg := g.cfg
	g.mu.Unlock()

	go func() {
		defer g.maintainWG.Done()
		ticker := time.NewTicker(cfg.ReconnectInterval)
		defer ticker.Stop()

		backoff := cfg.ReconnectInterval
		nextAttemptAt := time.Now()
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))

		for {
			select {
			case <-maintainCtx.Done():
				return
			case <-ticker.C:
				if time.Now().Before(nextAttemptAt) {
					continue
				}
				if !g.needMorePeers() {
					backoff = cfg.ReconnectInterval
					nextAttemptAt = time.Now()
					continue
				}

				ok := g.redialBootstrapPeers(maintainCtx, rnd)
				if ok || !g.needMorePeers() {
					backoff = cfg.ReconnectInterval
					nextAttemptAt = time.Now()
					continue
				}

				backoff *= 2
				if backoff > cfg.ReconnectBackoffMax {
					backoff = cfg.ReconnectBackoffMax
				}
				jitter := time.Duration(rnd.Int63n(int64(backoff/2) + 1))
				nextAttemptAt = time.Now().Add(backoff + jitter)
			}
		}
	}()
}

func (g *goWakuNode) stopPeerMaintenance() {
	g.mu.Lock()
	cancel := g.maintainCancel
	g.maintainCancel = nil
	g.mu.Unlock()
	if cancel != nil {
		cancel()
		g.maintainWG.Wait()
	}
}

func (g *goWakuNode) needMorePeers() bool {
	g.mu.RLock()
	node := g.node
	bootstrapCount := len(g.bootstrapNodes)
	target := g.cfg.MinPeers
	g.mu.RUnlock()
	if node == nil {
		return false
	}
	if target <= 0 {
		target = desiredPeerFloor(bootstrapCount)
	}
	if bootstrapCount > 0 && target > bootstrapCount {
		target = bootstrapCount
	}
	return node.PeerCount() < target
}

func desiredPeerFloor(bootstrapCount int) int {
	if bootstrapCount <= 0 {
		return 0
	}
	if bootstrapCount == 1 {
		return 1
	}
	return 2
}

func (g *goWakuNode) redialBootstrapPeers(ctx context.Context, rnd *rand.Rand) bool {
	g.mu.RLock()
	node := g.node
	bootstrapNodes := append([]string(nil), g.bootstrapNodes...)
	g.mu.RUnlock()
	if node == nil || len(bootstrapNodes) == 0 {
		return false
	}

	rnd.Shuffle(len(bootstrapNodes), func(i, j int) {
		bootstrapNodes[i], bootstrapNodes[j] = bootstrapNodes[j], bootstrapNodes[i]
	})

	success := false
	for i, addr := range bootstrapNodes {
		attempt := i + 1
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		g.record(func(m *goWakuMetrics) { m.DialAttempts++ })
		if err := node.DialPeer(ctx, addr); err != nil {
			g.record(func(m *goWakuMetrics) { m.DialFailures++ })
			g.logger.Warn("peer redial failed", "peer_addr", addr, "attempt", attempt, "reason", err.Error())
			continue
		}
		g.record(func(m *goWakuMetrics) { m.DialSuccess++ })
		success = true
		g.logger.Info("peer redial succeeded", "peer_addr", addr, "attempt", attempt)
	}
	return success
}

func (g *goWakuNode) record(fn func(*goWakuMetrics)) {
	g.mu.Lock()
	fn(&g.metrics)
	g.mu.Unlock()
}

func (g *goWakuNode) recordStoreQueryFailover() {
	g.record(func(m *goWakuMetrics) { m.StoreQueryFailover++ })
}

func (g *goWakuNode) recordStoreQueryFailure() {
	g.record(func(m *goWakuMetrics) { m.StoreQueryFailures++ })
}

func newInMemoryMessageProvider() (*persistence.DBStore, error) {
	db, err := sqlite.NewDB(":memory:", utils.Logger())
	if err != nil {
		return nil, err
	}
	return persistence.NewDBStore(
		prometheus.DefaultRegisterer,
		utils.Logger(),
		persistence.WithDB(db),
		persistence.WithMigrations(sqlite.Migrations),
	)
}
