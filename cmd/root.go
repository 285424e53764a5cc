package cmd

import (
	"errors"
	"os"

	"toolhost/internal/cli"
	"toolhost/pkg/logging"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeUnavailable indicates toolhost could not be reached.
	ExitCodeUnavailable = 2
)

// configPath is the configuration directory shared by every command.
var configPath string

// rootCmd represents the base command for the toolhost application.
var rootCmd = &cobra.Command{
	Use:   "toolhost",
	Short: "Run and supervise MCP tool-provider servers",
	Long: `toolhost starts, stops and watches MCP tool-provider subprocesses,
restarts them when they crash, and routes tool calls from an AI layer to
them while keeping an audit log of every call.

Run 'toolhost serve' to start the supervisor. Every other command talks to
a running supervisor over its MCP endpoint.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Client commands only report warnings; serve reconfigures logging.
		logging.InitForCLI(logging.LevelWarn, os.Stderr)
	},
}

// SetVersion sets the version for the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "toolhost version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
func getExitCode(err error) int {
	var connErr *cli.ConnectionError
	if errors.As(err, &connErr) {
		return ExitCodeUnavailable
	}
	return ExitCodeError
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", "", "Configuration directory (default ~/.config/toolhost)")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}
