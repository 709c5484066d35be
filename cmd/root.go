package cmd

import (
	"github.com/spf13/cobra"
)

// configDir overrides the configuration directory. Empty means ~/.tapd.
var configDir string

var rootCmd = &cobra.Command{
	Use:   "tapd",
	Short: "tapd - local process audio tap daemon",
	Long: `tapd records the audio of individual processes on this machine.

It exposes a hardened HTTP API on the loopback interface for discovering
recordable processes and driving one exclusive recording session at a
time. Run 'tapd serve' to start the daemon; 'tapd processes' and
'tapd status' talk to a running one.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "",
		"configuration directory (default ~/.tapd)")
}
