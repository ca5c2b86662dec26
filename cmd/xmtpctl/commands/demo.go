package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/xmtp/libxmtp-sub003/internal/metrics"
	"github.com/xmtp/libxmtp-sub003/internal/platform/ratelimiter"
	"github.com/xmtp/libxmtp-sub003/internal/storage"
	"github.com/xmtp/libxmtp-sub003/internal/waku"
	"github.com/xmtp/libxmtp-sub003/pkg/client"
	"github.com/xmtp/libxmtp-sub003/pkg/content"
	"github.com/xmtp/libxmtp-sub003/pkg/crypto"
	"github.com/xmtp/libxmtp-sub003/pkg/invitation"
	"github.com/xmtp/libxmtp-sub003/pkg/topic"
)

const limiterIdleTTL = 10 * time.Minute

// demo runs two wallets against one in-process bus: contact exchange, a V1
// direct message and a V2 conversation.
func demoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Exchange V1 and V2 messages between two throwaway wallets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			return runDemo(ctx, cmd.OutOrStdout())
		},
	}
}

func runDemo(ctx context.Context, out io.Writer) error {
	netCfg := cfg.Network
	netCfg.Transport = waku.TransportMock
	bus := waku.NewBus()
	m := metrics.New(prometheus.NewRegistry())
	limiter := ratelimiter.New(cfg.Client.PublishRPS, cfg.Client.PublishBurst, limiterIdleTTL)

	newClient := func() (*client.Client, error) {
		node := waku.NewNode(netCfg, waku.WithBus(bus), waku.WithLogger(logger))
		if err := node.Start(ctx); err != nil {
			return nil, err
		}
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		c, err := client.Load(ctx, crypto.NewKeySigner(key), client.Options{
			Transport:   node,
			Store:       storage.NewConversationStore(),
			Logger:      logger,
			Metrics:     m,
			Limiter:     limiter,
			Compression: cfg.Client.Compression,
		})
		if err != nil {
			return nil, err
		}
		return c, c.PublishContact(ctx)
	}

	alice, err := newClient()
	if err != nil {
		return err
	}
	bob, err := newClient()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "alice:", alice.Address())
	fmt.Fprintln(out, "bob:  ", bob.Address())

	if err := alice.SendV1(ctx, bob.Address(), "hello over v1", content.ContentTypeText); err != nil {
		return err
	}
	v1Msgs, err := bob.Messages(ctx, topic.DirectMessageV1(alice.Address(), bob.Address()))
	if err != nil {
		return err
	}
	printMessages(out, v1Msgs)

	conv, err := alice.StartConversation(ctx, bob.Address(), &invitation.Context{ConversationID: "xmtpctl/demo"})
	if err != nil {
		return err
	}
	if _, err := bob.ListInvitations(ctx); err != nil {
		return err
	}
	reply := content.Reply{Reference: "demo", ContentType: content.ContentTypeText, Content: "hello over v2"}
	if err := alice.SendV2(ctx, conv.Topic, reply, content.ContentTypeReply); err != nil {
		return err
	}
	v2Msgs, err := bob.Messages(ctx, conv.Topic)
	if err != nil {
		return err
	}
	printMessages(out, v2Msgs)
	return nil
}

func printMessages(out io.Writer, msgs []client.DecodedMessage) {
	for _, msg := range msgs {
		fmt.Fprintf(out, "[%s] %s %s -> %v\n", msg.Version, msg.SentAt.UTC().Format(time.RFC3339), msg.Encoded.Type.ID(), msg.Content)
	}
}
