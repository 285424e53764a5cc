package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	pkgstrings "toolhost/pkg/strings"
)

// maxCellWidth truncates free-text cells such as errors and descriptions.
const maxCellWidth = 60

// resourceType is inferred from the keys of the first element of a result
// array.
type resourceType int

const (
	resourceUnknown resourceType = iota
	resourceServer
	resourceToolCall
	resourceAvailableServer
)

// column renders one cell of a row.
type column struct {
	header string
	wide   bool
	value  func(row map[string]interface{}) string
}

// TableFormatter renders decoded JSON tool results as tables.
type TableFormatter struct {
	out     io.Writer
	options ExecutorOptions
}

// NewTableFormatter creates a formatter writing to out.
func NewTableFormatter(out io.Writer, options ExecutorOptions) *TableFormatter {
	return &TableFormatter{out: out, options: options}
}

// FormatData renders data: arrays of objects as one row per element,
// arrays of strings line by line, objects as key/value pairs.
func (f *TableFormatter) FormatData(data interface{}) error {
	switch d := data.(type) {
	case []interface{}:
		return f.formatArray(d)
	case map[string]interface{}:
		return f.formatObject(d)
	case string:
		fmt.Fprintln(f.out, d)
	default:
		fmt.Fprintf(f.out, "%v\n", d)
	}
	return nil
}

func (f *TableFormatter) createTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(f.out)
	t.SetStyle(table.StyleLight)
	return t
}

func (f *TableFormatter) isWideMode() bool {
	return f.options.Format == OutputFormatWide
}

func (f *TableFormatter) formatArray(data []interface{}) error {
	if len(data) == 0 {
		if !f.options.Quiet {
			fmt.Fprintln(f.out, text.FgYellow.Sprint("No results"))
		}
		return nil
	}

	first, ok := data[0].(map[string]interface{})
	if !ok {
		for _, item := range data {
			fmt.Fprintf(f.out, "%v\n", item)
		}
		return nil
	}

	columns := f.columnsFor(detectResourceType(first), first)
	t := f.createTable()
	if !f.options.NoHeaders {
		header := make(table.Row, 0, len(columns))
		for _, c := range columns {
			header = append(header, c.header)
		}
		t.AppendHeader(header)
	}
	for _, item := range data {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		row := make(table.Row, 0, len(columns))
		for _, c := range columns {
			row = append(row, c.value(obj))
		}
		t.AppendRow(row)
	}
	t.Render()
	return nil
}

func (f *TableFormatter) formatObject(data map[string]interface{}) error {
	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	t := f.createTable()
	if !f.options.NoHeaders {
		t.AppendHeader(table.Row{"FIELD", "VALUE"})
	}
	for _, key := range keys {
		t.AppendRow(table.Row{key, formatValue(key, data[key])})
	}
	t.Render()
	return nil
}

func detectResourceType(sample map[string]interface{}) resourceType {
	switch {
	case hasKeys(sample, "command", "healthStatus"):
		return resourceServer
	case hasKeys(sample, "toolName", "success"):
		return resourceToolCall
	case hasKeys(sample, "tools"):
		return resourceAvailableServer
	default:
		return resourceUnknown
	}
}

func hasKeys(m map[string]interface{}, keys ...string) bool {
	for _, k := range keys {
		if _, ok := m[k]; !ok {
			return false
		}
	}
	return true
}

func (f *TableFormatter) columnsFor(kind resourceType, sample map[string]interface{}) []column {
	var all []column
	switch kind {
	case resourceServer:
		all = []column{
			{header: "ID", value: field("id")},
			{header: "NAME", value: field("name")},
			{header: "STATUS", value: statusCell},
			{header: "ENABLED", value: field("enabled")},
			{header: "RUNNING", value: field("running")},
			{header: "OWNER", value: field("ownerId")},
			{header: "CALLS", value: field("totalCalls")},
			{header: "LAST USED", value: timeField("lastUsedAt")},
			{header: "COMMAND", wide: true, value: commandCell},
			{header: "PID", wide: true, value: runtimeField("pid")},
			{header: "UPTIME", wide: true, value: runtimeDuration("uptime")},
		}
	case resourceToolCall:
		all = []column{
			{header: "TIME", value: timeField("timestamp")},
			{header: "SERVER", value: field("serverId")},
			{header: "TOOL", value: field("toolName")},
			{header: "RESULT", value: resultCell},
			{header: "DURATION", value: durationField("executionTime")},
			{header: "ERROR", value: truncated("error")},
			{header: "ID", wide: true, value: field("id")},
		}
	case resourceAvailableServer:
		all = []column{
			{header: "ID", value: field("id")},
			{header: "NAME", value: field("name")},
			{header: "TOOLS", value: toolsCell},
			{header: "DESCRIPTION", wide: true, value: truncated("description")},
		}
	default:
		keys := make([]string, 0, len(sample))
		for key := range sample {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			all = append(all, column{header: strings.ToUpper(key), value: field(key)})
		}
	}

	if f.isWideMode() {
		return all
	}
	out := all[:0:0]
	for _, c := range all {
		if !c.wide {
			out = append(out, c)
		}
	}
	return out
}

func field(key string) func(map[string]interface{}) string {
	return func(row map[string]interface{}) string {
		return formatValue(key, row[key])
	}
}

func truncated(key string) func(map[string]interface{}) string {
	return func(row map[string]interface{}) string {
		return pkgstrings.Truncate(formatValue(key, row[key]), maxCellWidth)
	}
}

func timeField(key string) func(map[string]interface{}) string {
	return func(row map[string]interface{}) string {
		s, _ := row[key].(string)
		return formatTimestamp(s)
	}
}

func durationField(key string) func(map[string]interface{}) string {
	return func(row map[string]interface{}) string {
		return formatDuration(row[key])
	}
}

func runtimeField(key string) func(map[string]interface{}) string {
	return func(row map[string]interface{}) string {
		rt, ok := row["runtime"].(map[string]interface{})
		if !ok {
			return "-"
		}
		return formatValue(key, rt[key])
	}
}

func runtimeDuration(key string) func(map[string]interface{}) string {
	return func(row map[string]interface{}) string {
		rt, ok := row["runtime"].(map[string]interface{})
		if !ok {
			return "-"
		}
		return formatDuration(rt[key])
	}
}

func statusCell(row map[string]interface{}) string {
	status, _ := row["healthStatus"].(string)
	switch status {
	case "healthy":
		return text.FgGreen.Sprint(status)
	case "error":
		return text.FgRed.Sprint(status)
	case "starting":
		return text.FgYellow.Sprint(status)
	case "":
		return "-"
	default:
		return status
	}
}

func resultCell(row map[string]interface{}) string {
	if ok, _ := row["success"].(bool); ok {
		return text.FgGreen.Sprint("ok")
	}
	return text.FgRed.Sprint("failed")
}

func commandCell(row map[string]interface{}) string {
	parts := []string{formatValue("command", row["command"])}
	if args, ok := row["args"].([]interface{}); ok {
		for _, a := range args {
			parts = append(parts, fmt.Sprint(a))
		}
	}
	return pkgstrings.Truncate(strings.Join(parts, " "), maxCellWidth)
}

func toolsCell(row map[string]interface{}) string {
	tools, _ := row["tools"].([]interface{})
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		if m, ok := t.(map[string]interface{}); ok {
			if name, ok := m["name"].(string); ok {
				names = append(names, name)
			}
		}
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ", ")
}

// formatValue renders one JSON value. Durations arrive as nanosecond
// numbers and are recognised by key.
func formatValue(key string, value interface{}) string {
	switch v := value.(type) {
	case nil:
		return "-"
	case string:
		if v == "" {
			return "-"
		}
		if strings.HasSuffix(key, "At") || key == "timestamp" {
			return formatTimestamp(v)
		}
		return v
	case bool:
		if v {
			return "yes"
		}
		return "no"
	case float64:
		if strings.Contains(strings.ToLower(key), "time") || key == "uptime" {
			return formatDuration(v)
		}
		return fmt.Sprintf("%.0f", v)
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ", ")
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, v[k]))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(v)
	}
}

func formatTimestamp(s string) string {
	if s == "" {
		return "-"
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return s
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatDuration(value interface{}) string {
	n, ok := value.(float64)
	if !ok {
		return "-"
	}
	d := time.Duration(n)
	switch {
	case d < time.Millisecond:
		return d.String()
	case d < time.Minute:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}
