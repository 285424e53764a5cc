// Package template renders server launch arguments and environment values.
//
// Values are Go text/template strings with the sprig function library, e.g.
//
//	args: ["--cache", "{{ .ServerID }}-cache", "--home", "{{ env \"HOME\" }}"]
//	env:  {DATA_DIR: "/var/lib/toolhost/{{ .Name | lower }}"}
//
// Values without "{{" are passed through unchanged.
package template

import (
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// Context is the data available to launch templates.
type Context struct {
	ServerID string
	Name     string
	OwnerID  string
}

// Engine renders launch templates.
type Engine struct {
	funcs template.FuncMap
}

// New creates a new template engine.
func New() *Engine {
	return &Engine{funcs: sprig.TxtFuncMap()}
}

func (e *Engine) parse(name, value string) (*template.Template, error) {
	return template.New(name).Funcs(e.funcs).Option("missingkey=error").Parse(value)
}

// Render renders a single value.
func (e *Engine) Render(value string, data Context) (string, error) {
	if !strings.Contains(value, "{{") {
		return value, nil
	}

	tmpl, err := e.parse("value", value)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// RenderLaunch renders every argument and environment value. The inputs are
// left untouched.
func (e *Engine) RenderLaunch(args []string, env map[string]string, data Context) ([]string, map[string]string, error) {
	var outArgs []string
	if args != nil {
		outArgs = make([]string, len(args))
	}
	for i, arg := range args {
		rendered, err := e.Render(arg, data)
		if err != nil {
			return nil, nil, fmt.Errorf("error in argument %d: %w", i, err)
		}
		outArgs[i] = rendered
	}

	var outEnv map[string]string
	if env != nil {
		outEnv = make(map[string]string, len(env))
	}
	for _, key := range sortedKeys(env) {
		rendered, err := e.Render(env[key], data)
		if err != nil {
			return nil, nil, fmt.Errorf("error in env '%s': %w", key, err)
		}
		outEnv[key] = rendered
	}

	return outArgs, outEnv, nil
}

// Validate parses every templated value without executing it, so syntax
// errors surface when a definition is saved rather than when it starts.
func (e *Engine) Validate(args []string, env map[string]string) error {
	for i, arg := range args {
		if !strings.Contains(arg, "{{") {
			continue
		}
		if _, err := e.parse("arg", arg); err != nil {
			return fmt.Errorf("error in argument %d: %w", i, err)
		}
	}
	for _, key := range sortedKeys(env) {
		if !strings.Contains(env[key], "{{") {
			continue
		}
		if _, err := e.parse(key, env[key]); err != nil {
			return fmt.Errorf("error in env '%s': %w", key, err)
		}
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
