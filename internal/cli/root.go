// Package cli implements the escrowd command line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/escrowd-network/escrowd/internal/daemon"
)

// Version is stamped at build time via -ldflags.
var Version = "0.1.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "escrowd",
	Short: "Pooled-funds expenditure accounting daemon",
	Long: `escrowd tracks pooled funds in domain and expenditure pots, runs the
expenditure lifecycle (active, cancelled, finalized), and settles payouts
with a network fee and reputation updates.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.escrowd/config.toml)")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the escrowd version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("escrowd %s\n", Version)
	},
}

// loadConfig reads the configuration for the current invocation.
func loadConfig() (daemon.Config, error) {
	return daemon.LoadConfig(configPath)
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
