package cli

import (
	"github.com/spf13/cobra"
)

// CommandFlags holds the flags shared by commands that talk to a running
// toolhost.
type CommandFlags struct {
	OutputFormat string
	NoHeaders    bool
	Quiet        bool
	Endpoint     string
	// Owner is passed as ownerId; empty acts for every owner.
	Owner string
}

// RegisterCommonFlags registers the shared flags on cmd:
//   - --output/-o: Output format (table, wide, json, yaml), default: "table"
//   - --no-headers: Suppress header row in table output
//   - --quiet/-q: Suppress non-essential output
//   - --endpoint: toolhost endpoint URL (env: TOOLHOST_ENDPOINT)
//   - --owner: act as this owner
func RegisterCommonFlags(cmd *cobra.Command, flags *CommandFlags) {
	cmd.PersistentFlags().StringVarP(&flags.OutputFormat, "output", "o", "table", "Output format (table, wide, json, yaml)")
	cmd.PersistentFlags().BoolVar(&flags.NoHeaders, "no-headers", false, "Suppress header row in table output")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "Suppress non-essential output")
	cmd.PersistentFlags().StringVar(&flags.Endpoint, "endpoint", GetDefaultEndpoint(), "toolhost endpoint URL (env: TOOLHOST_ENDPOINT)")
	cmd.PersistentFlags().StringVar(&flags.Owner, "owner", "", "Act as this owner (default: every owner)")
}

// ToExecutorOptions converts CommandFlags to ExecutorOptions.
func (f *CommandFlags) ToExecutorOptions(configPath string) (ExecutorOptions, error) {
	if err := ValidateOutputFormat(f.OutputFormat); err != nil {
		return ExecutorOptions{}, err
	}
	return ExecutorOptions{
		Format:     OutputFormat(f.OutputFormat),
		NoHeaders:  f.NoHeaders,
		Quiet:      f.Quiet,
		ConfigPath: configPath,
		Endpoint:   f.Endpoint,
	}, nil
}

// WithOwner adds the owner flag to tool arguments when it is set.
func (f *CommandFlags) WithOwner(args map[string]interface{}) map[string]interface{} {
	if args == nil {
		args = map[string]interface{}{}
	}
	if f.Owner != "" {
		args["ownerId"] = f.Owner
	}
	return args
}
