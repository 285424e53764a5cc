package cmd

import (
	"fmt"
	"time"

	"toolhost/internal/cli"

	"github.com/spf13/cobra"
)

var (
	callsFlags    cli.CommandFlags
	callsServerID string
	callsToolName string
	callsSince    string
	callsLimit    int
)

var callsCmd = &cobra.Command{
	Use:   "calls",
	Short: "Show the tool call audit log, newest first",
	Long: `Show recorded tool calls, newest first.

--since accepts an RFC 3339 time or a duration such as 1h, meaning that long
ago.

Examples:
  toolhost calls --server 3f2a... --since 1h
  toolhost calls --tool forecast --limit 10 -o json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		toolArgs := map[string]interface{}{}
		if callsServerID != "" {
			toolArgs["serverId"] = callsServerID
		}
		if callsToolName != "" {
			toolArgs["toolName"] = callsToolName
		}
		if callsLimit > 0 {
			toolArgs["limit"] = callsLimit
		}
		if callsSince != "" {
			since, err := parseSince(callsSince, time.Now())
			if err != nil {
				return err
			}
			toolArgs["since"] = since.Format(time.RFC3339)
		}
		return runTool(cmd, &callsFlags, "tool_calls", toolArgs)
	},
}

// parseSince accepts an RFC 3339 time or a positive duration before now.
func parseSince(value string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return time.Time{}, fmt.Errorf("invalid --since %q: want an RFC 3339 time or a duration such as 1h", value)
	}
	return now.Add(-d), nil
}

func init() {
	cli.RegisterCommonFlags(callsCmd, &callsFlags)
	callsCmd.Flags().StringVar(&callsServerID, "server", "", "Only calls to this server id")
	callsCmd.Flags().StringVar(&callsToolName, "tool", "", "Only calls of this tool")
	callsCmd.Flags().StringVar(&callsSince, "since", "", "Only calls at or after this time or duration ago")
	callsCmd.Flags().IntVar(&callsLimit, "limit", 0, "Maximum number of records (default 50)")
	rootCmd.AddCommand(callsCmd)
}
