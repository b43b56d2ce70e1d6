package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scribeworks/mediascribe/internal/observability"
	"github.com/scribeworks/mediascribe/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve run status over HTTP",
	Long: `Serve a read-only HTTP API over the run directories under an
output root: run listings, live status surfaces, and persisted run
state. Useful for dashboards watching a long run.

Example:
  mediascribe serve --output /photos/2024-described
  mediascribe serve --output /photos/2024-described --port 9090`,
	RunE: runServe,
}

var (
	serveHost   string
	servePort   int
	serveOutput string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (config default if empty)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (config default if zero)")
	serveCmd.Flags().StringVarP(&serveOutput, "output", "o", "", "Output root holding run directories (required)")

	_ = serveCmd.MarkFlagRequired("output")
}

func runServe(cmd *cobra.Command, _ []string) error {
	host := serveHost
	if host == "" {
		host = cfg.Server.Host
	}
	port := servePort
	if port == 0 {
		port = cfg.Server.Port
	}
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port %d", port)
	}

	srv := server.New(host, port, serveOutput, observability.CLILogger)
	return srv.Start(cmd.Context())
}
