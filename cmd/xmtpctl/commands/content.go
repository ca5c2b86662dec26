package commands

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xmtp/libxmtp-sub003/pkg/content"
)

func encodeCmd() *cobra.Command {
	var compression string
	cmd := &cobra.Command{
		Use:   "encode <text>",
		Short: "Encode text as EncodedContent and print it as hex",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg.Client.Compression
			if cmd.Flags().Changed("compression") {
				var err error
				if c, err = content.ParseCompression(compression); err != nil {
					return err
				}
			}
			ec, err := content.DefaultRegistry().Encode(args[0], content.ContentTypeText, content.WithCompression(c))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(ec.Marshal()))
			return nil
		},
	}
	cmd.Flags().StringVar(&compression, "compression", "", "none | deflate | gzip (default from config)")
	return cmd
}

func decodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <hex>",
		Short: "Decode hex EncodedContent with the default codecs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(args[0]), "0x"))
			if err != nil {
				return fmt.Errorf("invalid hex: %w", err)
			}
			value, ec, err := content.DefaultRegistry().DecodeBytes(raw)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "type:       ", ec.Type.ID())
			fmt.Fprintln(out, "compression:", ec.Compression)
			if ec.Fallback != "" {
				fmt.Fprintln(out, "fallback:   ", ec.Fallback)
			}
			fmt.Fprintf(out, "content:     %v\n", value)
			return nil
		},
	}
}
