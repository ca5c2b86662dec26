package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xmtp/libxmtp-sub003/internal/identity"
	"github.com/xmtp/libxmtp-sub003/pkg/keys"
)

// keygen derives a wallet from a mnemonic and stores a fresh key bundle
// vouched for by it.
func keygenCmd() *cobra.Command {
	var (
		mnemonic string
		index    uint32
		force    bool
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create a key bundle signed by a mnemonic-derived wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := keyStore()
			if err != nil {
				return err
			}
			if !force {
				if _, err := store.Load(); err == nil {
					return fmt.Errorf("key store %s already exists, use --force to replace it", store.Path())
				}
			}
			out := cmd.OutOrStdout()
			if mnemonic == "" {
				mnemonic, err = identity.NewMnemonic()
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "mnemonic:", mnemonic)
			}
			wallet, err := identity.WalletFromMnemonic(mnemonic, "", index)
			if err != nil {
				return err
			}
			v1, err := keys.NewPrivateKeyBundleV1(cmd.Context(), wallet)
			if err != nil {
				return err
			}
			bundle := keys.PrivateKeyBundle{V1: &v1}
			if err := store.Save(bundle); err != nil {
				return err
			}
			logger.Info("key bundle created", "wallet_address", wallet.Address())
			return printIdentity(cmd, bundle)
		},
	}
	cmd.Flags().StringVar(&mnemonic, "mnemonic", "", "BIP39 mnemonic (a new one is generated when empty)")
	cmd.Flags().Uint32Var(&index, "index", 0, "account index under m/44'/60'/0'/0")
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing key store")
	return cmd
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the wallet and installation of the stored key bundle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := keyStore()
			if err != nil {
				return err
			}
			bundle, err := store.Load()
			if err != nil {
				return err
			}
			return printIdentity(cmd, bundle)
		},
	}
}

func printIdentity(cmd *cobra.Command, bundle keys.PrivateKeyBundle) error {
	v2, err := bundle.V2Bundle()
	if err != nil {
		return err
	}
	pub, err := v2.PublicKeyBundle()
	if err != nil {
		return err
	}
	addr, err := pub.WalletAddress()
	if err != nil {
		return err
	}
	version := "v2"
	if bundle.V1 != nil {
		version = "v1"
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "address:     ", addr)
	fmt.Fprintln(out, "installation:", identity.InstallationID(pub))
	fmt.Fprintln(out, "bundle:      ", version)
	return nil
}

var errNoAddress = errors.New("no address given and no key store found")
