package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/xmtp/libxmtp-sub003/internal/config"
	"github.com/xmtp/libxmtp-sub003/internal/platform/privacylog"
	"github.com/xmtp/libxmtp-sub003/internal/securestore"
)

const keyFileName = "keys.bin"

var (
	home       string
	passphrase string
	configPath string
	logLevel   string

	cfg    config.Config
	logger *slog.Logger

	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

func SetVersion(version, commit, date string) {
	buildVersion, buildCommit, buildDate = version, commit, date
}

func Execute() error {
	root := &cobra.Command{
		Use:           "xmtpctl",
		Short:         "Inspect and exercise the XMTP legacy security layer",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".xmtpctl")
			}
			var level slog.Level
			if err := level.UnmarshalText([]byte(logLevel)); err != nil {
				return fmt.Errorf("invalid --log-level: %w", err)
			}
			logger = privacylog.NewJSONLogger(os.Stderr, level)

			loaded, err := config.LoadFromPath(configPath)
			if err != nil {
				return err
			}
			config.ApplyEnvOverrides(&loaded)
			cfg = loaded
			return nil
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "data dir (default ~/.xmtpctl)")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting the local key store")
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (optional)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "debug | info | warn | error")

	root.AddCommand(
		versionCmd(),
		keygenCmd(),
		whoamiCmd(),
		topicsCmd(),
		encodeCmd(),
		decodeCmd(),
		demoCmd(),
	)
	return root.Execute()
}

func keyStore() (*securestore.KeyStore, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase required (-p)")
	}
	return securestore.NewKeyStore(filepath.Join(home, keyFileName), passphrase), nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "xmtpctl version=%s commit=%s build_date=%s\n", buildVersion, buildCommit, buildDate)
		},
	}
}
