package cmd

import (
	"fmt"
	"strings"

	"toolhost/internal/cli"

	"github.com/spf13/cobra"
)

// runTool connects to the running toolhost and prints the result of one
// tool call.
func runTool(cmd *cobra.Command, flags *cli.CommandFlags, toolName string, args map[string]interface{}) error {
	options, err := flags.ToExecutorOptions(configPath)
	if err != nil {
		return err
	}
	options.Output = cmd.OutOrStdout()

	executor, err := cli.NewToolExecutor(options)
	if err != nil {
		return err
	}
	defer executor.Close()

	ctx := cmd.Context()
	if err := executor.Connect(ctx); err != nil {
		return err
	}
	return executor.Execute(ctx, toolName, flags.WithOwner(args))
}

// parseKeyValues turns KEY=VALUE pairs into a map.
func parseKeyValues(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid KEY=VALUE pair %q", pair)
		}
		out[key] = value
	}
	return out, nil
}

// stringMapArg converts to the generic form sent as a tool argument.
func stringMapArg(m map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func stringSliceArg(s []string) []interface{} {
	out := make([]interface{}, 0, len(s))
	for _, v := range s {
		out = append(out, v)
	}
	return out
}
