package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(t *testing.T, options ExecutorOptions, doc string) string {
	t.Helper()
	text.DisableColors()
	t.Cleanup(text.EnableColors)

	var data interface{}
	require.NoError(t, json.Unmarshal([]byte(doc), &data))
	var buf bytes.Buffer
	require.NoError(t, NewTableFormatter(&buf, options).FormatData(data))
	return buf.String()
}

const serverViews = `[{
	"id": "a1", "name": "weather", "command": "weather-mcp", "args": ["--region", "eu"],
	"enabled": true, "ownerId": "u1", "healthStatus": "healthy", "totalCalls": 3,
	"running": true, "runtime": {"serverId": "a1", "pid": 4242, "uptime": 90000000000, "ready": true}
}]`

func TestFormatData_Servers(t *testing.T) {
	out := render(t, ExecutorOptions{Format: OutputFormatTable}, serverViews)

	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "weather")
	assert.Contains(t, out, "healthy")
	assert.Contains(t, out, "yes")
	assert.NotContains(t, out, "4242")
	assert.NotContains(t, out, "COMMAND")
}

func TestFormatData_ServersWide(t *testing.T) {
	out := render(t, ExecutorOptions{Format: OutputFormatWide}, serverViews)

	assert.Contains(t, out, "4242")
	assert.Contains(t, out, "weather-mcp --region eu")
	assert.Contains(t, out, "1m30s")
}

func TestFormatData_ToolCalls(t *testing.T) {
	out := render(t, ExecutorOptions{Format: OutputFormatTable}, `[
		{"id": "c2", "serverId": "a1", "toolName": "forecast", "success": false, "error": "no response within 1m0s", "executionTime": 60000000000, "timestamp": "2026-01-02T10:00:00Z"},
		{"id": "c1", "serverId": "a1", "toolName": "forecast", "success": true, "executionTime": 1500000, "timestamp": "2026-01-02T09:00:00Z"}
	]`)

	assert.Contains(t, out, "RESULT")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "no response within 1m0s")
	assert.Contains(t, out, "2ms")
	assert.Contains(t, out, "1m0s")
}

func TestFormatData_AvailableServers(t *testing.T) {
	out := render(t, ExecutorOptions{Format: OutputFormatTable}, `[
		{"id": "a1", "name": "weather", "tools": [{"name": "forecast"}, {"name": "alerts"}]}
	]`)
	assert.Contains(t, out, "forecast, alerts")
}

func TestFormatData_NoHeaders(t *testing.T) {
	out := render(t, ExecutorOptions{Format: OutputFormatTable, NoHeaders: true}, serverViews)
	assert.NotContains(t, out, "STATUS")
	assert.Contains(t, out, "weather")
}

func TestFormatData_Object(t *testing.T) {
	out := render(t, ExecutorOptions{Format: OutputFormatTable}, `{"serverId": "a1", "totalCalls": 2, "averageExecutionTime": 2000000}`)

	assert.Contains(t, out, "FIELD")
	assert.Contains(t, out, "averageExecutionTime")
	assert.Contains(t, out, "2ms")
	assert.Less(t, strings.Index(out, "averageExecutionTime"), strings.Index(out, "serverId"))
}

func TestFormatData_EmptyAndLines(t *testing.T) {
	assert.Contains(t, render(t, ExecutorOptions{}, `[]`), "No results")
	assert.Empty(t, render(t, ExecutorOptions{Quiet: true}, `[]`))
	assert.Equal(t, "one\ntwo\n", render(t, ExecutorOptions{}, `["one", "two"]`))
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		key   string
		value interface{}
		want  string
	}{
		{"name", nil, "-"},
		{"name", "", "-"},
		{"enabled", false, "no"},
		{"totalCalls", float64(12), "12"},
		{"executionTime", float64(250000), "250µs"},
		{"env", map[string]interface{}{"B": "2", "A": "1"}, "A=1, B=2"},
		{"args", []interface{}{"-v", "x"}, "-v, x"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatValue(tt.key, tt.value), tt.key)
	}
}
