package cmd

import (
	"toolhost/internal/cli"

	"github.com/spf13/cobra"
)

var serverFlags cli.CommandFlags

// definitionFlags are the launch and descriptive fields accepted by create
// and update.
type definitionFlags struct {
	name        string
	description string
	command     string
	args        []string
	env         []string
	disabled    bool
	enabled     bool
}

func (f *definitionFlags) register(cmd *cobra.Command, withName bool) {
	if withName {
		cmd.Flags().StringVar(&f.name, "name", "", "Server name")
	}
	cmd.Flags().StringVar(&f.description, "description", "", "What the server provides")
	cmd.Flags().StringVar(&f.command, "command", "", "Executable name or path")
	cmd.Flags().StringArrayVar(&f.args, "arg", nil, "Argument (repeatable, may use templates such as {{ .ServerID }})")
	cmd.Flags().StringArrayVar(&f.env, "env", nil, "Environment variable KEY=VALUE (repeatable)")
}

// toolArgs builds the server_create/server_update arguments. Only flags set
// on the command line are sent for update.
func (f *definitionFlags) toolArgs(cmd *cobra.Command) (map[string]interface{}, error) {
	args := map[string]interface{}{}
	changed := cmd.Flags().Changed

	if changed("name") {
		args["name"] = f.name
	}
	if changed("description") {
		args["description"] = f.description
	}
	if changed("command") {
		args["command"] = f.command
	}
	if changed("arg") {
		args["args"] = stringSliceArg(f.args)
	}
	if changed("env") {
		env, err := parseKeyValues(f.env)
		if err != nil {
			return nil, err
		}
		args["env"] = stringMapArg(env)
	}
	if changed("disabled") {
		args["enabled"] = !f.disabled
	}
	if changed("enabled") {
		args["enabled"] = f.enabled
	}
	return args, nil
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Manage tool-provider server definitions and processes",
	Long: `Manage the tool-provider servers supervised by toolhost.

Examples:
  toolhost server list
  toolhost server create weather --command weather-mcp --arg --region --arg eu
  toolhost server start 3f2a...
  toolhost server logs 3f2a... --lines 50

Note: toolhost must be running (use 'toolhost serve') before using these commands.`,
}

func newServerListCmd() *cobra.Command {
	var enabledOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List servers with their health and runtime state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTool(cmd, &serverFlags, "server_list", map[string]interface{}{"enabledOnly": enabledOnly})
		},
	}
	cmd.Flags().BoolVar(&enabledOnly, "enabled", false, "Only list enabled servers")
	return cmd
}

func newServerCreateCmd() *cobra.Command {
	var flags definitionFlags
	cmd := &cobra.Command{
		Use:   "create NAME --command COMMAND",
		Short: "Register a new server",
		Long: `Register a new server. The command must resolve on the host running
toolhost. Arguments and environment values may use Go templates with sprig
functions; .ServerID, .Name and .Owner are available.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			toolArgs, err := flags.toolArgs(cmd)
			if err != nil {
				return err
			}
			toolArgs["name"] = args[0]
			return runTool(cmd, &serverFlags, "server_create", toolArgs)
		},
	}
	flags.register(cmd, false)
	cmd.Flags().BoolVar(&flags.disabled, "disabled", false, "Create the server disabled")
	_ = cmd.MarkFlagRequired("command")
	return cmd
}

func newServerUpdateCmd() *cobra.Command {
	var flags definitionFlags
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Change a server definition",
		Long: `Change the fields given on the command line. A running server is
restarted when its command, arguments or environment change.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			toolArgs, err := flags.toolArgs(cmd)
			if err != nil {
				return err
			}
			toolArgs["id"] = args[0]
			return runTool(cmd, &serverFlags, "server_update", toolArgs)
		},
	}
	flags.register(cmd, true)
	cmd.Flags().BoolVar(&flags.enabled, "enabled", true, "Enable or disable the server")
	return cmd
}

// newServerIDCmd builds the commands whose only argument is the server id.
func newServerIDCmd(use, short, toolName string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTool(cmd, &serverFlags, toolName, map[string]interface{}{"id": args[0]})
		},
	}
}

func newServerLogsCmd() *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "logs ID",
		Short: "Show recent stderr output of a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			toolArgs := map[string]interface{}{"id": args[0]}
			if lines > 0 {
				toolArgs["lines"] = lines
			}
			return runTool(cmd, &serverFlags, "server_logs", toolArgs)
		},
	}
	cmd.Flags().IntVar(&lines, "lines", 0, "Number of lines (default all retained)")
	return cmd
}

func init() {
	cli.RegisterCommonFlags(serverCmd, &serverFlags)

	serverCmd.AddCommand(
		newServerListCmd(),
		newServerIDCmd("get", "Show one server", "server_get"),
		newServerCreateCmd(),
		newServerUpdateCmd(),
		newServerIDCmd("enable", "Allow a server to be started", "server_enable"),
		newServerIDCmd("disable", "Stop a server and prevent it from starting", "server_disable"),
		newServerIDCmd("start", "Start a server and wait until it is ready", "server_start"),
		newServerIDCmd("stop", "Stop a running server", "server_stop"),
		newServerIDCmd("restart", "Stop and start a server", "server_restart"),
		newServerIDCmd("remove", "Stop a server and delete its definition", "server_remove"),
		newServerLogsCmd(),
		newServerIDCmd("stats", "Aggregate the tool calls of a server", "server_stats"),
	)
	rootCmd.AddCommand(serverCmd)
}
