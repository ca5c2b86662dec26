package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/xmtp/libxmtp-sub003/pkg/crypto"
	"github.com/xmtp/libxmtp-sub003/pkg/keys"
	"github.com/xmtp/libxmtp-sub003/pkg/topic"
	"github.com/xmtp/libxmtp-sub003/pkg/transport"
)

const contactQueryLimit = 20

// Contact is the newest valid key material a wallet has advertised.
type Contact struct {
	Address string
	V1      *keys.PublicKeyBundle
	V2      keys.SignedPublicKeyBundle
}

// PublishContact advertises both bundle generations on the contact topic.
// A client restored without first-generation keys only publishes V2.
func (c *Client) PublishContact(ctx context.Context) error {
	signed, err := c.v2.PublicKeyBundle()
	if err != nil {
		return err
	}
	contactTopic := topic.Contact(c.address)
	envs := make([]transport.Envelope, 0, 2)
	if c.v1 != nil {
		legacy, err := c.v1.PublicKeyBundle()
		if err != nil {
			return err
		}
		envs = append(envs, c.envelope(contactTopic, keys.ContactBundle{V1: &legacy}.Marshal()))
	}
	envs = append(envs, c.envelope(contactTopic, keys.ContactBundle{V2: &signed}.Marshal()))
	return c.publish(ctx, "contact", envs...)
}

// GetContact returns the newest bundles that verify and are vouched for by
// addr. Malformed or foreign bundles on the topic are skipped.
func (c *Client) GetContact(ctx context.Context, addr string) (Contact, error) {
	peer, err := normalizePeer(addr)
	if err != nil {
		return Contact{}, err
	}
	res, err := c.transport.Query(ctx, transport.Query{
		ContentTopics: []string{topic.Contact(peer)},
		Paging:        transport.PagingInfo{Limit: contactQueryLimit, Direction: transport.SortDescending},
	})
	if err != nil {
		return Contact{}, err
	}

	out := Contact{Address: peer}
	var haveV2 bool
	for _, env := range res.Envelopes {
		bundle, err := contactFromEnvelope(env, peer)
		if err != nil {
			c.metrics.EnvelopeReceived("contact", err)
			c.logger.Debug("skipping contact bundle", "address", peer, "reason", err.Error())
			continue
		}
		c.metrics.EnvelopeReceived("contact", nil)
		if bundle.V1 != nil && out.V1 == nil {
			out.V1 = bundle.V1
		}
		if !haveV2 {
			signed, err := bundle.SignedBundle()
			if err != nil {
				continue
			}
			out.V2 = signed
			haveV2 = true
		}
		if haveV2 && out.V1 != nil {
			break
		}
	}
	if !haveV2 {
		return Contact{}, fmt.Errorf("%w: %s", ErrContactNotFound, peer)
	}
	return out, nil
}

// CanMessage reports whether addr has published a usable contact bundle.
func (c *Client) CanMessage(ctx context.Context, addr string) (bool, error) {
	_, err := c.GetContact(ctx, addr)
	switch {
	case err == nil:
		return true, nil
	case isNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

func contactFromEnvelope(env transport.Envelope, want string) (keys.ContactBundle, error) {
	bundle, err := keys.UnmarshalContactBundle(env.Message)
	if err != nil {
		return keys.ContactBundle{}, err
	}
	switch {
	case bundle.V1 != nil:
		if err := bundle.V1.Validate(); err != nil {
			return keys.ContactBundle{}, err
		}
	case bundle.V2 != nil:
		if err := bundle.V2.Validate(); err != nil {
			return keys.ContactBundle{}, err
		}
	}
	got, err := bundle.WalletAddress()
	if err != nil {
		return keys.ContactBundle{}, err
	}
	if norm, ok := crypto.NormalizeAddress(got); !ok || norm != want {
		return keys.ContactBundle{}, fmt.Errorf("%w: bundle belongs to %s", ErrWalletMismatch, got)
	}
	return bundle, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrContactNotFound)
}
