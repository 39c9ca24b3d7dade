package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"hivemind/cmd/hivemind/ui"
)

// Version metadata, stamped by the release build via -ldflags.
var (
	version = "0.3.0"
	commit  = "dev"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		styles := ui.DefaultStyles()
		banner := styles.Header.Render(" 🐝 hivemind ")
		meta := styles.Muted.Render(
			fmt.Sprintf("version %s (%s) %s/%s", version, commit, runtime.GOOS, runtime.GOARCH))
		fmt.Fprintln(cmd.OutOrStdout(), banner+" "+meta)
	},
}
