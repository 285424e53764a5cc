package cmd

import (
	"toolhost/internal/cli"

	"github.com/spf13/cobra"
)

var toolsFlags cli.CommandFlags

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List running servers and the tools they offer",
	Long: `List the servers that are running and healthy together with the tools
each one offers. Use --owner to see what a given owner's AI session sees.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTool(cmd, &toolsFlags, "tool_servers", nil)
	},
}

func init() {
	cli.RegisterCommonFlags(toolsCmd, &toolsFlags)
	rootCmd.AddCommand(toolsCmd)
}
