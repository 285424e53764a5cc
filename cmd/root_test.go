package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"toolhost/internal/cli"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetVersion(t *testing.T) {
	original := rootCmd.Version
	defer func() { rootCmd.Version = original }()

	SetVersion("1.2.3-test")
	assert.Equal(t, "1.2.3-test", GetVersion())
}

func TestRootCommand(t *testing.T) {
	assert.Equal(t, "toolhost", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.True(t, rootCmd.SilenceUsage)
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config-path"))
}

func TestSubcommands(t *testing.T) {
	found := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		found[c.Name()] = true
	}
	for _, name := range []string{"version", "self-update", "serve", "server", "calls", "call", "tools", "db"} {
		assert.True(t, found[name], "missing command %s", name)
	}

	serverSubs := map[string]bool{}
	for _, c := range serverCmd.Commands() {
		serverSubs[c.Name()] = true
	}
	for _, name := range []string{"list", "get", "create", "update", "enable", "disable", "start", "stop", "restart", "remove", "logs", "stats"} {
		assert.True(t, serverSubs[name], "missing server subcommand %s", name)
	}
}

func TestGetExitCode(t *testing.T) {
	connErr := cli.ClassifyConnectionError(errors.New("connection refused"), "http://localhost:8095/mcp")
	assert.Equal(t, ExitCodeUnavailable, getExitCode(fmt.Errorf("wrapped: %w", connErr)))
	assert.Equal(t, ExitCodeError, getExitCode(errors.New("server a1: not found")))
}

func TestVersionCommand(t *testing.T) {
	original := rootCmd.Version
	defer func() { rootCmd.Version = original }()
	rootCmd.Version = "1.2.3-test"

	versionCmd := newVersionCmd()
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)
	assert.Equal(t, "toolhost version 1.2.3-test\n", buf.String())
}

func TestRunSelfUpdate_DevVersion(t *testing.T) {
	original := rootCmd.Version
	defer func() { rootCmd.Version = original }()

	for _, v := range []string{"dev", ""} {
		rootCmd.Version = v
		err := runSelfUpdate(nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot self-update a development version")
	}
}

type emptySource struct {
	repos []string
}

func (s *emptySource) ListReleases(ctx context.Context, repo selfupdate.Repository) ([]selfupdate.SourceRelease, error) {
	owner, name, err := repo.GetSlug()
	if err != nil {
		return nil, err
	}
	s.repos = append(s.repos, owner+"/"+name)
	return nil, nil
}

func (s *emptySource) DownloadReleaseAsset(ctx context.Context, rel *selfupdate.Release, assetID int64) (io.ReadCloser, error) {
	return nil, errors.New("no assets")
}

func TestRunSelfUpdate_Repository(t *testing.T) {
	originalVersion, originalRepo, originalSource := rootCmd.Version, releaseRepo, updateSource
	t.Cleanup(func() {
		rootCmd.Version, releaseRepo, updateSource = originalVersion, originalRepo, originalSource
	})
	rootCmd.Version = "1.0.0"
	src := &emptySource{}
	updateSource = func() selfupdate.Source { return src }

	t.Run("unset", func(t *testing.T) {
		releaseRepo = ""
		err := runSelfUpdate(newSelfUpdateCmd(), nil)
		assert.ErrorIs(t, err, errNoReleaseRepo)
	})

	t.Run("malformed", func(t *testing.T) {
		releaseRepo = "no-slash"
		err := runSelfUpdate(newSelfUpdateCmd(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid release repository")
	})

	t.Run("build-time value", func(t *testing.T) {
		releaseRepo = "acme/toolhost"
		c := newSelfUpdateCmd()
		var buf bytes.Buffer
		c.SetOut(&buf)
		err := runSelfUpdate(c, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no release of acme/toolhost found")
		assert.Contains(t, buf.String(), "checking acme/toolhost")
	})

	t.Run("flag overrides", func(t *testing.T) {
		releaseRepo = "acme/toolhost"
		c := newSelfUpdateCmd()
		c.SetOut(io.Discard)
		require.NoError(t, c.Flags().Set("repo", "other/fork"))
		err := runSelfUpdate(c, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "other/fork")
	})

	assert.Equal(t, []string{"acme/toolhost", "other/fork"}, src.repos)
}
