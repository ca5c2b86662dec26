package client

import (
	"context"
	"fmt"
	"time"

	"github.com/xmtp/libxmtp-sub003/pkg/content"
	"github.com/xmtp/libxmtp-sub003/pkg/message"
	"github.com/xmtp/libxmtp-sub003/pkg/topic"
	"github.com/xmtp/libxmtp-sub003/pkg/transport"
)

// DecodedMessage is a verified, decrypted message with its content decoded
// by the client's registry.
type DecodedMessage struct {
	Topic         string
	Version       string
	SenderAddress string
	PeerAddress   string
	SentAt        time.Time
	ShouldPush    bool
	Content       any
	Encoded       content.EncodedContent
}

// DecodeEnvelope decrypts env according to its topic. V2 topics must belong
// to a conversation the client already knows.
func (c *Client) DecodeEnvelope(env transport.Envelope) (DecodedMessage, error) {
	kind := topic.Classify(env.ContentTopic)
	var (
		out     DecodedMessage
		payload []byte
		err     error
	)
	switch kind {
	case topic.KindDirectMessageV1, topic.KindIntro:
		out, payload, err = c.decryptV1(env)
	case topic.KindDirectMessageV2:
		out, payload, err = c.decryptV2(env)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedTopic, env.ContentTopic)
	}
	if err != nil {
		c.metrics.EnvelopeReceived(kindLabel(kind), err)
		return DecodedMessage{}, err
	}

	value, ec, err := c.registry.DecodeBytes(payload)
	c.metrics.ObserveCodec(ec.Type.String(), "decode", err)
	c.metrics.EnvelopeReceived(kindLabel(kind), err)
	if err != nil {
		return DecodedMessage{}, err
	}
	out.Topic = env.ContentTopic
	out.Content = value
	out.Encoded = ec
	return out, nil
}

func (c *Client) decryptV1(env transport.Envelope) (DecodedMessage, []byte, error) {
	if c.v1 == nil {
		return DecodedMessage{}, nil, ErrNoLegacyKeys
	}
	msg, err := message.Unmarshal(env.Message)
	if err != nil {
		return DecodedMessage{}, nil, err
	}
	if msg.V1 == nil {
		return DecodedMessage{}, nil, fmt.Errorf("%w: expected a V1 message on %s", message.ErrInvalidMessage, env.ContentTopic)
	}
	header, err := msg.V1.Header()
	if err != nil {
		return DecodedMessage{}, nil, err
	}
	started := time.Now()
	payload, err := msg.V1.Decrypt(*c.v1)
	c.metrics.ObserveCrypto("decrypt_v1", started, err)
	if err != nil {
		return DecodedMessage{}, nil, err
	}
	sender, err := header.Sender.WalletAddress()
	if err != nil {
		return DecodedMessage{}, nil, err
	}
	return DecodedMessage{
		Version:       VersionV1,
		SenderAddress: sender,
		PeerAddress:   peerOf(c.address, header.Sender, header.Recipient),
		SentAt:        msg.V1.SentAt(),
	}, payload, nil
}

func (c *Client) decryptV2(env transport.Envelope) (DecodedMessage, []byte, error) {
	conv, ok := c.Conversation(env.ContentTopic)
	if !ok {
		return DecodedMessage{}, nil, fmt.Errorf("%w: %s", ErrUnknownConversation, env.ContentTopic)
	}
	msg, err := message.Unmarshal(env.Message)
	if err != nil {
		return DecodedMessage{}, nil, err
	}
	if msg.V2 == nil {
		return DecodedMessage{}, nil, fmt.Errorf("%w: expected a V2 message on %s", message.ErrInvalidMessage, env.ContentTopic)
	}
	started := time.Now()
	decoded, err := msg.V2.Decrypt(conv.Topic, conv.KeyMaterial)
	c.metrics.ObserveCrypto("decrypt_v2", started, err)
	if err != nil {
		return DecodedMessage{}, nil, err
	}
	return DecodedMessage{
		Version:       VersionV2,
		SenderAddress: decoded.SenderAddress,
		PeerAddress:   conv.PeerAddress,
		SentAt:        decoded.SentAt(),
		ShouldPush:    msg.V2.ShouldPush,
	}, decoded.Payload, nil
}

// Messages returns every message on contentTopic that decodes, oldest
// first. Envelopes that fail to decrypt or verify are logged and skipped.
func (c *Client) Messages(ctx context.Context, contentTopic string) ([]DecodedMessage, error) {
	envs, err := transport.QueryAll(ctx, c.transport, transport.Query{
		ContentTopics: []string{contentTopic},
	}, 0)
	if err != nil {
		return nil, err
	}
	out := make([]DecodedMessage, 0, len(envs))
	for _, env := range envs {
		msg, err := c.DecodeEnvelope(env)
		if err != nil {
			c.logger.Debug("skipping envelope", "topic", env.ContentTopic, "reason", err.Error())
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// Stream delivers decoded messages published on topics until ctx is done or
// the returned cancel func is called.
func (c *Client) Stream(ctx context.Context, topics []string, fn func(DecodedMessage)) (func(), error) {
	return c.transport.Subscribe(ctx, topics, func(env transport.Envelope) {
		msg, err := c.DecodeEnvelope(env)
		if err != nil {
			c.logger.Debug("dropping streamed envelope", "topic", env.ContentTopic, "reason", err.Error())
			return
		}
		fn(msg)
	})
}

func kindLabel(k topic.Kind) string {
	switch k {
	case topic.KindContact:
		return "contact"
	case topic.KindPrivateStore:
		return "private_store"
	case topic.KindIntro:
		return "intro"
	case topic.KindInvite:
		return "invite"
	case topic.KindDirectMessageV1:
		return "direct_message_v1"
	case topic.KindDirectMessageV2:
		return "direct_message_v2"
	default:
		return "unknown"
	}
}
