package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/xmtp/libxmtp-sub003/internal/metrics"
	"github.com/xmtp/libxmtp-sub003/internal/platform/ratelimiter"
	"github.com/xmtp/libxmtp-sub003/pkg/content"
	"github.com/xmtp/libxmtp-sub003/pkg/crypto"
	"github.com/xmtp/libxmtp-sub003/pkg/keys"
	"github.com/xmtp/libxmtp-sub003/pkg/topic"
	"github.com/xmtp/libxmtp-sub003/pkg/transport"
)

var (
	ErrTransportRequired   = errors.New("transport is required")
	ErrContactNotFound     = errors.New("contact bundle not found")
	ErrUnknownConversation = errors.New("unknown conversation")
	ErrNoLegacyKeys        = errors.New("client has no first-generation key bundle")
	ErrUnsupportedTopic    = errors.New("topic does not carry messages")
	ErrSelfConversation    = errors.New("cannot start a conversation with yourself")
	ErrWalletMismatch      = errors.New("wallet does not own the key bundle")
)

// ConversationStore persists V2 conversations across client restarts.
type ConversationStore interface {
	SaveConversation(Conversation) error
	ListConversations() ([]Conversation, error)
}

type Options struct {
	Transport   transport.Transport
	Store       ConversationStore
	Registry    *content.Registry
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	Limiter     *ratelimiter.TopicLimiter
	Compression content.Compression
	Now         func() time.Time
}

// Client is one installation of a wallet's messaging identity. It is safe
// for concurrent use.
type Client struct {
	address string
	v1      *keys.PrivateKeyBundleV1
	v2      keys.PrivateKeyBundleV2

	transport   transport.Transport
	store       ConversationStore
	registry    *content.Registry
	logger      *slog.Logger
	metrics     *metrics.Metrics
	limiter     *ratelimiter.TopicLimiter
	compression content.Compression
	now         func() time.Time

	mu            sync.RWMutex
	conversations map[string]Conversation
	introduced    map[string]struct{}
}

// Create generates a fresh key bundle vouched for by wallet.
func Create(ctx context.Context, wallet crypto.Signer, opts Options) (*Client, error) {
	v1, err := keys.NewPrivateKeyBundleV1(ctx, wallet)
	if err != nil {
		return nil, err
	}
	return New(keys.PrivateKeyBundle{V1: &v1}, opts)
}

// Load restores the wallet's key bundle from its private store topic, or
// creates and backs up a new one when none is stored yet.
func Load(ctx context.Context, wallet crypto.Signer, opts Options) (*Client, error) {
	if opts.Transport == nil {
		return nil, ErrTransportRequired
	}
	bundle, err := fetchBackup(ctx, opts.Transport, wallet)
	switch {
	case err == nil:
		c, err := New(bundle, opts)
		if err != nil {
			return nil, err
		}
		if !c.isSelf(wallet.Address()) {
			return nil, ErrWalletMismatch
		}
		c.logger.Info("key bundle restored", "address", c.address)
		return c, nil
	case errors.Is(err, keys.ErrMissingKey):
	default:
		return nil, err
	}

	c, err := Create(ctx, wallet, opts)
	if err != nil {
		return nil, err
	}
	if err := c.BackupKeys(ctx, wallet); err != nil {
		return nil, err
	}
	return c, nil
}

func New(bundle keys.PrivateKeyBundle, opts Options) (*Client, error) {
	if opts.Transport == nil {
		return nil, ErrTransportRequired
	}
	v2, err := bundle.V2Bundle()
	if err != nil {
		return nil, err
	}
	pub, err := v2.PublicKeyBundle()
	if err != nil {
		return nil, err
	}
	addr, err := pub.WalletAddress()
	if err != nil {
		return nil, fmt.Errorf("identity key: %w", err)
	}

	c := &Client{
		address:       addr,
		v1:            bundle.V1,
		v2:            v2,
		transport:     opts.Transport,
		store:         opts.Store,
		registry:      opts.Registry,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		limiter:       opts.Limiter,
		compression:   opts.Compression,
		now:           opts.Now,
		conversations: make(map[string]Conversation),
		introduced:    make(map[string]struct{}),
	}
	if c.registry == nil {
		c.registry = content.DefaultRegistry()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.store != nil {
		stored, err := c.store.ListConversations()
		if err != nil {
			return nil, fmt.Errorf("load conversations: %w", err)
		}
		for _, conv := range stored {
			c.conversations[conv.Topic] = conv
		}
	}
	return c, nil
}

func (c *Client) Address() string {
	return c.address
}

func (c *Client) Registry() *content.Registry {
	return c.registry
}

// KeyBundle returns the private bundle in the form it is backed up.
func (c *Client) KeyBundle() keys.PrivateKeyBundle {
	if c.v1 != nil {
		v1 := *c.v1
		return keys.PrivateKeyBundle{V1: &v1}
	}
	v2 := c.v2
	return keys.PrivateKeyBundle{V2: &v2}
}

func (c *Client) PublicKeyBundle() (keys.SignedPublicKeyBundle, error) {
	return c.v2.PublicKeyBundle()
}

func (c *Client) publish(ctx context.Context, kind string, envs ...transport.Envelope) error {
	for _, env := range envs {
		delay, err := c.limiter.Wait(ctx, env.ContentTopic, c.now())
		if err != nil {
			return err
		}
		if delay > 0 {
			c.metrics.Throttled()
		}
	}
	if err := c.transport.Publish(ctx, envs...); err != nil {
		c.logger.Warn("publish failed", "kind", kind, "reason", err.Error())
		return err
	}
	for _, env := range envs {
		c.metrics.EnvelopeSent(kind)
		c.logger.Debug("envelope published", "kind", kind, "topic", env.ContentTopic)
	}
	return nil
}

func (c *Client) encodeContent(value any, typ content.ContentTypeID) (content.EncodedContent, error) {
	ec, err := c.registry.Encode(value, typ, content.WithCompression(c.compression))
	c.metrics.ObserveCodec(typ.String(), "encode", err)
	return ec, err
}

func (c *Client) envelope(contentTopic string, payload []byte) transport.Envelope {
	return transport.Envelope{
		ContentTopic: contentTopic,
		TimestampNs:  uint64(c.now().UnixNano()),
		Message:      payload,
	}
}

func (c *Client) isSelf(addr string) bool {
	return sameAddress(addr, c.address)
}

func sameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}

func normalizePeer(addr string) (string, error) {
	norm, ok := crypto.NormalizeAddress(addr)
	if !ok {
		return "", fmt.Errorf("invalid wallet address %q", addr)
	}
	return norm, nil
}

func fetchBackup(ctx context.Context, t transport.Transport, wallet crypto.Signer) (keys.PrivateKeyBundle, error) {
	res, err := t.Query(ctx, transport.Query{
		ContentTopics: []string{topic.UserPrivateStoreKeyBundle(wallet.Address())},
		Paging:        transport.PagingInfo{Limit: 1, Direction: transport.SortDescending},
	})
	if err != nil {
		return keys.PrivateKeyBundle{}, err
	}
	if len(res.Envelopes) == 0 {
		return keys.PrivateKeyBundle{}, keys.ErrMissingKey
	}
	return keys.DecryptPrivateKeyBundle(ctx, wallet, res.Envelopes[0].Message)
}
