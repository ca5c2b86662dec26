package main

import (
	"fmt"
	"os"

	"github.com/xmtp/libxmtp-sub003/cmd/xmtpctl/commands"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	commands.SetVersion(version, commit, buildDate)
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "xmtpctl:", err)
		os.Exit(1)
	}
}
