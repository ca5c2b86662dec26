package client

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/xmtp/libxmtp-sub003/pkg/content"
	"github.com/xmtp/libxmtp-sub003/pkg/invitation"
	"github.com/xmtp/libxmtp-sub003/pkg/keys"
	"github.com/xmtp/libxmtp-sub003/pkg/message"
	"github.com/xmtp/libxmtp-sub003/pkg/topic"
	"github.com/xmtp/libxmtp-sub003/pkg/transport"
)

const (
	VersionV1 = "v1"
	VersionV2 = "v2"
)

// Conversation is a V2 conversation established by a sealed invitation.
type Conversation struct {
	Topic       string
	PeerAddress string
	Context     *invitation.Context
	KeyMaterial []byte
	CreatedAt   time.Time
}

func (c Conversation) ConversationID() string {
	if c.Context == nil {
		return ""
	}
	return c.Context.ConversationID
}

// StartConversation derives the invitation for peerAddr, seals it and posts
// it to both invite topics. Starting the same conversation twice yields the
// same topic.
func (c *Client) StartConversation(ctx context.Context, peerAddr string, convCtx *invitation.Context) (Conversation, error) {
	contact, err := c.GetContact(ctx, peerAddr)
	if err != nil {
		return Conversation{}, err
	}
	if c.isSelf(contact.Address) {
		return Conversation{}, ErrSelfConversation
	}

	started := time.Now()
	inv, err := invitation.CreateDeterministic(c.v2, contact.V2, convCtx, nil)
	if err != nil {
		c.metrics.ObserveCrypto("invitation_create", started, err)
		return Conversation{}, err
	}
	createdAt := c.now()
	sealed, err := invitation.Seal(c.v2, contact.V2, inv, createdAt)
	c.metrics.ObserveCrypto("invitation_seal", started, err)
	if err != nil {
		return Conversation{}, err
	}

	payload := sealed.Marshal()
	err = c.publish(ctx, "invite",
		c.envelope(topic.UserInvite(contact.Address), payload),
		c.envelope(topic.UserInvite(c.address), payload),
	)
	if err != nil {
		return Conversation{}, err
	}

	conv := Conversation{
		Topic:       inv.Topic,
		PeerAddress: contact.Address,
		Context:     inv.Context,
		KeyMaterial: inv.KeyMaterial,
		CreatedAt:   createdAt,
	}
	if err := c.remember(conv); err != nil {
		return Conversation{}, err
	}
	c.logger.Info("conversation started", "peer", contact.Address, "topic", inv.Topic)
	return conv, nil
}

// ListInvitations opens every invitation on the client's invite topic and
// returns the conversations they establish, oldest first. Invitations that
// fail to open are skipped.
func (c *Client) ListInvitations(ctx context.Context) ([]Conversation, error) {
	envs, err := transport.QueryAll(ctx, c.transport, transport.Query{
		ContentTopics: []string{topic.UserInvite(c.address)},
	}, 0)
	if err != nil {
		return nil, err
	}
	for _, env := range envs {
		conv, err := c.openInvitation(env.Message)
		c.metrics.EnvelopeReceived("invite", err)
		if err != nil {
			c.logger.Debug("skipping invitation", "reason", err.Error())
			continue
		}
		if err := c.remember(conv); err != nil {
			c.logger.Warn("failed to store conversation", "topic", conv.Topic, "reason", err.Error())
		}
	}
	return c.Conversations(), nil
}

func (c *Client) openInvitation(b []byte) (Conversation, error) {
	sealed, err := invitation.UnmarshalSealedInvitation(b)
	if err != nil {
		return Conversation{}, err
	}
	started := time.Now()
	inv, err := sealed.Open(c.v2)
	c.metrics.ObserveCrypto("invitation_open", started, err)
	if err != nil {
		return Conversation{}, err
	}
	header, err := sealed.Header()
	if err != nil {
		return Conversation{}, err
	}
	peer := header.Sender
	if header.Sender.IdentityKey.Matches(c.v2.IdentityKey.PublicKey) {
		peer = header.Recipient
	}
	peerAddr, err := peer.WalletAddress()
	if err != nil {
		return Conversation{}, err
	}
	return Conversation{
		Topic:       inv.Topic,
		PeerAddress: peerAddr,
		Context:     inv.Context,
		KeyMaterial: inv.KeyMaterial,
		CreatedAt:   time.Unix(0, int64(header.CreatedNs)),
	}, nil
}

// remember keeps the earliest record of a topic.
func (c *Client) remember(conv Conversation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.conversations[conv.Topic]; ok && !conv.CreatedAt.Before(prev.CreatedAt) {
		return nil
	}
	if c.store != nil {
		if err := c.store.SaveConversation(conv); err != nil {
			return err
		}
	}
	c.conversations[conv.Topic] = conv
	return nil
}

func (c *Client) Conversation(contentTopic string) (Conversation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	conv, ok := c.conversations[contentTopic]
	return conv, ok
}

func (c *Client) Conversations() []Conversation {
	c.mu.RLock()
	out := make([]Conversation, 0, len(c.conversations))
	for _, conv := range c.conversations {
		out = append(out, conv)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Topic < out[j].Topic
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// SendV2 encrypts value with the conversation's key material and signs it
// with the client's current prekey.
func (c *Client) SendV2(ctx context.Context, contentTopic string, value any, typ content.ContentTypeID) error {
	conv, ok := c.Conversation(contentTopic)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConversation, contentTopic)
	}
	ec, err := c.encodeContent(value, typ)
	if err != nil {
		return err
	}
	started := time.Now()
	msg, err := message.EncodeV2(c.v2, conv.Topic, conv.KeyMaterial, ec.Marshal(), c.now())
	c.metrics.ObserveCrypto("encode_v2", started, err)
	if err != nil {
		return err
	}
	msg.ShouldPush = c.registry.ShouldPush(value, typ)
	return c.publish(ctx, "direct_message_v2", c.envelope(conv.Topic, message.Message{V2: &msg}.Marshal()))
}

func peerOf(self string, bundles ...keys.PublicKeyBundle) string {
	for _, b := range bundles {
		addr, err := b.WalletAddress()
		if err == nil && !sameAddress(addr, self) {
			return addr
		}
	}
	return ""
}
