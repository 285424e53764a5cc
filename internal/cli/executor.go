package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"gopkg.in/yaml.v3"

	"toolhost/internal/config"
	"toolhost/internal/server"
)

// OutputFormat represents the supported output formats for CLI commands.
type OutputFormat string

const (
	// OutputFormatTable formats output as a table
	OutputFormatTable OutputFormat = "table"
	// OutputFormatWide formats output as a table with additional columns
	OutputFormatWide OutputFormat = "wide"
	// OutputFormatJSON formats output as raw JSON data
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatYAML formats output as YAML data converted from JSON
	OutputFormatYAML OutputFormat = "yaml"
)

// ValidateOutputFormat validates that the given format string is a supported output format.
func ValidateOutputFormat(format string) error {
	switch OutputFormat(format) {
	case OutputFormatTable, OutputFormatWide, OutputFormatJSON, OutputFormatYAML:
		return nil
	default:
		return fmt.Errorf("unsupported output format: %q (valid: table, wide, json, yaml)", format)
	}
}

// EndpointEnvVar is the environment variable name for setting the default endpoint.
const EndpointEnvVar = "TOOLHOST_ENDPOINT"

// GetDefaultEndpoint returns the endpoint from environment variable if set.
func GetDefaultEndpoint() string {
	return os.Getenv(EndpointEnvVar)
}

// ExecutorOptions contains configuration options for tool execution.
type ExecutorOptions struct {
	// Format specifies the desired output format (table, wide, json, yaml)
	Format OutputFormat
	// NoHeaders suppresses the header row in table output
	NoHeaders bool
	// Quiet suppresses progress indicators and non-essential output
	Quiet bool
	// ConfigPath is the configuration directory used to find the endpoint
	ConfigPath string
	// Endpoint overrides the endpoint URL
	Endpoint string
	// Output receives formatted results; nil means stdout.
	Output io.Writer
}

// ToolExecutor runs toolhost tools over MCP and formats their results.
type ToolExecutor struct {
	client    *client.Client
	options   ExecutorOptions
	formatter *TableFormatter
	endpoint  string
	out       io.Writer
}

// ResolveEndpoint applies the endpoint precedence: explicit value, then
// TOOLHOST_ENDPOINT, then config.yaml in configPath.
func ResolveEndpoint(endpoint, configPath string) (string, error) {
	if endpoint != "" {
		return endpoint, nil
	}
	if env := GetDefaultEndpoint(); env != "" {
		return env, nil
	}
	if configPath == "" {
		dir, err := config.GetUserConfigDir()
		if err != nil {
			return "", err
		}
		configPath = dir
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return "", err
	}
	return server.Endpoint(cfg.Server), nil
}

// NewToolExecutor creates a tool executor. No connection is made until
// Connect.
func NewToolExecutor(options ExecutorOptions) (*ToolExecutor, error) {
	if options.Format == "" {
		options.Format = OutputFormatTable
	}
	if err := ValidateOutputFormat(string(options.Format)); err != nil {
		return nil, err
	}

	endpoint, err := ResolveEndpoint(options.Endpoint, options.ConfigPath)
	if err != nil {
		return nil, err
	}

	c, err := client.NewStreamableHttpClient(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create streamable-http client: %w", err)
	}

	out := options.Output
	if out == nil {
		out = os.Stdout
	}
	return &ToolExecutor{
		client:    c,
		options:   options,
		formatter: NewTableFormatter(out, options),
		endpoint:  endpoint,
		out:       out,
	}, nil
}

// Endpoint returns the resolved endpoint URL.
func (e *ToolExecutor) Endpoint() string {
	return e.endpoint
}

// Connect starts the transport and performs the MCP handshake, showing a
// spinner unless quiet.
func (e *ToolExecutor) Connect(ctx context.Context) error {
	var s *spinner.Spinner
	if !e.options.Quiet {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
		s.Suffix = " Connecting to toolhost..."
		s.Start()
		defer s.Stop()
	}

	if err := e.connect(ctx); err != nil {
		if s != nil {
			s.FinalMSG = text.FgRed.Sprint("Failed to connect to toolhost") + "\n"
		}
		return ClassifyConnectionError(err, e.endpoint)
	}
	return nil
}

func (e *ToolExecutor) connect(ctx context.Context) error {
	if err := e.client.Start(ctx); err != nil {
		return fmt.Errorf("failed to start streamable-http client: %w", err)
	}
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: "toolhost-cli", Version: "1.0.0"}
	if _, err := e.client.Initialize(ctx, req); err != nil {
		return fmt.Errorf("failed to initialize MCP protocol: %w", err)
	}
	return nil
}

// Close closes the connection.
func (e *ToolExecutor) Close() error {
	return e.client.Close()
}

// call invokes a tool and returns the text of its result. A result flagged
// isError becomes an error carrying that text.
func (e *ToolExecutor) call(ctx context.Context, toolName string, args map[string]interface{}) (string, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = toolName
	req.Params.Arguments = args

	result, err := e.client.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to execute tool %s: %w", toolName, err)
	}

	var parts []string
	for _, content := range result.Content {
		if tc, ok := mcp.AsTextContent(content); ok {
			parts = append(parts, tc.Text)
		}
	}
	joined := strings.Join(parts, "\n")
	if result.IsError {
		return "", fmt.Errorf("%s", joined)
	}
	return joined, nil
}

// Execute runs a tool and prints its result in the configured format.
func (e *ToolExecutor) Execute(ctx context.Context, toolName string, args map[string]interface{}) error {
	var s *spinner.Spinner
	if !e.options.Quiet {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
		s.Suffix = " Executing command..."
		s.Start()
	}

	output, err := e.call(ctx, toolName, args)

	if s != nil {
		s.Stop()
	}
	if err != nil {
		return err
	}
	return e.formatOutput(output)
}

// ExecuteJSON runs a tool and decodes its JSON result into v.
func (e *ToolExecutor) ExecuteJSON(ctx context.Context, toolName string, args map[string]interface{}, v interface{}) error {
	output, err := e.call(ctx, toolName, args)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(output), v); err != nil {
		return fmt.Errorf("failed to parse result of %s: %w", toolName, err)
	}
	return nil
}

// ListTools returns the tools served by toolhost itself.
func (e *ToolExecutor) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	result, err := e.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, err
	}
	return result.Tools, nil
}

func (e *ToolExecutor) formatOutput(output string) error {
	switch e.options.Format {
	case OutputFormatJSON:
		fmt.Fprintln(e.out, output)
		return nil
	case OutputFormatYAML:
		return e.outputYAML(output)
	default:
		return e.outputTable(output)
	}
}

func (e *ToolExecutor) outputYAML(output string) error {
	var data interface{}
	if err := json.Unmarshal([]byte(output), &data); err != nil {
		// Plain text results print as they are.
		fmt.Fprintln(e.out, output)
		return nil
	}
	yamlData, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to convert to YAML: %w", err)
	}
	fmt.Fprint(e.out, string(yamlData))
	return nil
}

func (e *ToolExecutor) outputTable(output string) error {
	var data interface{}
	if err := json.Unmarshal([]byte(output), &data); err != nil {
		fmt.Fprintln(e.out, output)
		return nil
	}
	return e.formatter.FormatData(data)
}
