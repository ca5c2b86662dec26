package client

import (
	"context"
	"time"

	"github.com/xmtp/libxmtp-sub003/pkg/content"
	"github.com/xmtp/libxmtp-sub003/pkg/keys"
	"github.com/xmtp/libxmtp-sub003/pkg/message"
	"github.com/xmtp/libxmtp-sub003/pkg/topic"
	"github.com/xmtp/libxmtp-sub003/pkg/transport"
)

// SendV1 encrypts value straight to the peer's bundle and publishes it on
// the shared direct message topic. The first message between two wallets
// is also posted to both intro topics so either side can discover it.
func (c *Client) SendV1(ctx context.Context, peerAddr string, value any, typ content.ContentTypeID) error {
	if c.v1 == nil {
		return ErrNoLegacyKeys
	}
	contact, err := c.GetContact(ctx, peerAddr)
	if err != nil {
		return err
	}
	if c.isSelf(contact.Address) {
		return ErrSelfConversation
	}
	recipient, err := legacyBundle(contact)
	if err != nil {
		return err
	}

	ec, err := c.encodeContent(value, typ)
	if err != nil {
		return err
	}
	started := time.Now()
	msg, err := message.EncodeV1(*c.v1, recipient, ec.Marshal(), c.now())
	c.metrics.ObserveCrypto("encode_v1", started, err)
	if err != nil {
		return err
	}
	payload := message.Message{V1: &msg}.Marshal()

	dmTopic := topic.DirectMessageV1(c.address, contact.Address)
	envs := []transport.Envelope{c.envelope(dmTopic, payload)}
	first, err := c.firstContact(ctx, dmTopic)
	if err != nil {
		return err
	}
	if first {
		envs = append(envs,
			c.envelope(topic.UserIntro(c.address), payload),
			c.envelope(topic.UserIntro(contact.Address), payload),
		)
	}
	if err := c.publish(ctx, "direct_message_v1", envs...); err != nil {
		return err
	}
	c.mu.Lock()
	c.introduced[dmTopic] = struct{}{}
	c.mu.Unlock()
	return nil
}

func (c *Client) firstContact(ctx context.Context, dmTopic string) (bool, error) {
	c.mu.RLock()
	_, seen := c.introduced[dmTopic]
	c.mu.RUnlock()
	if seen {
		return false, nil
	}
	res, err := c.transport.Query(ctx, transport.Query{
		ContentTopics: []string{dmTopic},
		Paging:        transport.PagingInfo{Limit: 1},
	})
	if err != nil {
		return false, err
	}
	return len(res.Envelopes) == 0, nil
}

// IntroTopics lists the direct message topics announced on the client's
// intro topic, oldest first.
func (c *Client) IntroTopics(ctx context.Context) ([]string, error) {
	if c.v1 == nil {
		return nil, ErrNoLegacyKeys
	}
	envs, err := transport.QueryAll(ctx, c.transport, transport.Query{
		ContentTopics: []string{topic.UserIntro(c.address)},
	}, 0)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []string
	for _, env := range envs {
		msg, err := message.Unmarshal(env.Message)
		if err != nil || msg.V1 == nil {
			continue
		}
		header, err := msg.V1.Header()
		if err != nil {
			continue
		}
		sender, err := header.Sender.WalletAddress()
		if err != nil {
			continue
		}
		recipient, err := header.Recipient.WalletAddress()
		if err != nil {
			continue
		}
		dmTopic := topic.DirectMessageV1(sender, recipient)
		if _, ok := seen[dmTopic]; ok {
			continue
		}
		seen[dmTopic] = struct{}{}
		out = append(out, dmTopic)
	}
	return out, nil
}

func legacyBundle(contact Contact) (keys.PublicKeyBundle, error) {
	if contact.V1 != nil {
		return *contact.V1, nil
	}
	return contact.V2.ToLegacy()
}
