package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{name: "short string unchanged", input: "weather-mcp", maxLen: 20, want: "weather-mcp"},
		{name: "exact length unchanged", input: "abcdef", maxLen: 6, want: "abcdef"},
		{name: "cut with ellipsis", input: "a long description of a server", maxLen: 10, want: "a long ..."},
		{name: "newlines flattened", input: "line one\nline two\r\n\tline three", maxLen: 60, want: "line one line two line three"},
		{name: "runes not bytes", input: "日本語のテキストです", maxLen: 6, want: "日本語..."},
		{name: "tiny width clamped", input: "abcdefgh", maxLen: 1, want: "a..."},
		{name: "empty", input: "", maxLen: 10, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Truncate(tt.input, tt.maxLen))
		})
	}
}

func TestLastLines(t *testing.T) {
	lines := []string{"one", "two", "three"}
	assert.Equal(t, []string{"two", "three"}, LastLines(lines, 2))
	assert.Equal(t, lines, LastLines(lines, 0))
	assert.Equal(t, lines, LastLines(lines, 5))
	assert.Empty(t, LastLines(nil, 3))
}
