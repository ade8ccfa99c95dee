package cli

import (
	"github.com/spf13/cobra"

	"github.com/escrowd-network/escrowd/internal/daemon"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the escrowd daemon",
	Long: `Start the escrowd daemon: restore state from the database, register
the configured skill tree, domains, and grants, and serve the HTTP API.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	d, err := daemon.New(cfg)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Run()
}
