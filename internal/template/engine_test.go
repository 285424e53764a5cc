package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_Render(t *testing.T) {
	e := New()
	data := Context{ServerID: "abc", Name: "Demo", OwnerID: "u1"}

	tests := []struct {
		name    string
		value   string
		want    string
		wantErr bool
	}{
		{"plain", "--verbose", "--verbose", false},
		{"field", "{{ .ServerID }}-cache", "abc-cache", false},
		{"sprig pipeline", "{{ .Name | lower }}", "demo", false},
		{"sprig default", `{{ "" | default "fallback" }}`, "fallback", false},
		{"unknown field", "{{ .Missing }}", "", true},
		{"syntax error", "{{ .ServerID", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Render(tt.value, data)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEngine_RenderLaunch(t *testing.T) {
	t.Setenv("TOOLHOST_TEMPLATE_TEST", "from-env")
	e := New()

	args := []string{"serve", "--id={{ .ServerID }}"}
	env := map[string]string{"OWNER": "{{ .OwnerID }}", "FROM": `{{ env "TOOLHOST_TEMPLATE_TEST" }}`}

	outArgs, outEnv, err := e.RenderLaunch(args, env, Context{ServerID: "abc", OwnerID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"serve", "--id=abc"}, outArgs)
	assert.Equal(t, map[string]string{"OWNER": "u1", "FROM": "from-env"}, outEnv)
	assert.Equal(t, "--id={{ .ServerID }}", args[1], "input must not be modified")
}

func TestEngine_RenderLaunch_NilInputs(t *testing.T) {
	outArgs, outEnv, err := New().RenderLaunch(nil, nil, Context{})
	require.NoError(t, err)
	assert.Nil(t, outArgs)
	assert.Nil(t, outEnv)
}

func TestEngine_Validate(t *testing.T) {
	e := New()

	assert.NoError(t, e.Validate([]string{"{{ .ServerID }}", "plain"}, map[string]string{"A": "{{ upper .Name }}"}))

	err := e.Validate([]string{"ok", "{{ .ServerID"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "argument 1")

	err = e.Validate(nil, map[string]string{"BAD": "{{ nosuchfunc }}"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "env 'BAD'")
}
