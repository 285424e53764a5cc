package cmd

import (
	"context"
	"fmt"

	"toolhost/internal/app"

	"github.com/spf13/cobra"
)

var (
	serveDebug bool
	serveStdio bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the toolhost supervisor",
	Long: `Starts the supervisor and serves its administrative and tool-call
surface over MCP.

On start, every enabled server that was healthy when toolhost last stopped
is started again. Servers that crash after becoming ready are restarted once
after the configured restart delay. A health monitor checks every supervised
server periodically.

By default the MCP endpoint is streamable HTTP on server.host:server.port
from config.yaml. With --stdio, MCP is served on stdin/stdout instead so
toolhost can itself be launched by an MCP client.

Configuration is read from config.yaml in --config-path
(default ~/.config/toolhost).

Under a systemd unit with Type=notify, READY=1 is sent once startup has
finished and STOPPING=1 when shutdown begins.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := app.NewConfig(serveDebug, configPath)
	cfg.Stdio = serveStdio
	cfg.Version = GetVersion()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	application, err := app.NewApplication(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	serveCmd.Flags().BoolVar(&serveStdio, "stdio", false, "Serve MCP on stdin/stdout instead of HTTP")
}
