package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xmtp/libxmtp-sub003/pkg/crypto"
	"github.com/xmtp/libxmtp-sub003/pkg/topic"
)

func topicsCmd() *cobra.Command {
	var peer string
	cmd := &cobra.Command{
		Use:   "topics [address]",
		Short: "Print the content topics of a wallet",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := topicsAddress(args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "contact:     ", topic.Contact(addr))
			fmt.Fprintln(out, "intro:       ", topic.UserIntro(addr))
			fmt.Fprintln(out, "invite:      ", topic.UserInvite(addr))
			fmt.Fprintln(out, "private store:", topic.UserPrivateStoreKeyBundle(addr))
			if peer != "" {
				other, ok := crypto.NormalizeAddress(peer)
				if !ok {
					return fmt.Errorf("invalid peer address %q", peer)
				}
				fmt.Fprintln(out, "direct (v1): ", topic.DirectMessageV1(addr, other))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&peer, "peer", "", "also print the V1 direct message topic with this wallet")
	return cmd
}

func topicsAddress(args []string) (string, error) {
	if len(args) == 1 {
		addr, ok := crypto.NormalizeAddress(args[0])
		if !ok {
			return "", fmt.Errorf("invalid address %q", args[0])
		}
		return addr, nil
	}
	if passphrase == "" {
		return "", errNoAddress
	}
	store, err := keyStore()
	if err != nil {
		return "", err
	}
	bundle, err := store.Load()
	if err != nil {
		return "", fmt.Errorf("%w: %v", errNoAddress, err)
	}
	v2, err := bundle.V2Bundle()
	if err != nil {
		return "", err
	}
	return v2.IdentityKey.PublicKey.WalletSignatureAddress()
}
