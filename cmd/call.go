package cmd

import (
	"encoding/json"
	"fmt"

	"toolhost/internal/cli"

	"github.com/spf13/cobra"
)

var (
	callFlags      cli.CommandFlags
	callParams     []string
	callParamsJSON string
)

var callCmd = &cobra.Command{
	Use:   "call SERVER_ID TOOL",
	Short: "Call a tool on a running server",
	Long: `Call a tool on a running server through the gateway. The call is
recorded in the audit log whether it succeeds or not.

Parameters are given as --param KEY=VALUE (string values) or as one JSON
object with --params-json; --param values override keys of the JSON object.

Examples:
  toolhost call 3f2a... forecast --param city=Berlin
  toolhost call 3f2a... forecast --params-json '{"city": "Berlin", "days": 3}'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := buildCallParams(callParamsJSON, callParams)
		if err != nil {
			return err
		}
		return runTool(cmd, &callFlags, "tool_execute", map[string]interface{}{
			"serverId":   args[0],
			"toolName":   args[1],
			"parameters": params,
		})
	},
}

func buildCallParams(paramsJSON string, pairs []string) (map[string]interface{}, error) {
	params := map[string]interface{}{}
	if paramsJSON != "" {
		if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
			return nil, fmt.Errorf("invalid --params-json: %w", err)
		}
	}
	kv, err := parseKeyValues(pairs)
	if err != nil {
		return nil, err
	}
	for k, v := range kv {
		params[k] = v
	}
	return params, nil
}

func init() {
	cli.RegisterCommonFlags(callCmd, &callFlags)
	callCmd.Flags().StringArrayVar(&callParams, "param", nil, "Tool parameter KEY=VALUE (repeatable)")
	callCmd.Flags().StringVar(&callParamsJSON, "params-json", "", "Tool parameters as a JSON object")
	rootCmd.AddCommand(callCmd)
}
