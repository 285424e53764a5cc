package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"
)

// releaseRepo is the owner/repo slug releases are published under. Set it
// at build time with -ldflags "-X toolhost/cmd.releaseRepo=owner/repo".
var releaseRepo = ""

// updateSource returns where releases are listed from; nil selects GitHub.
var updateSource = func() selfupdate.Source { return nil }

var errNoReleaseRepo = errors.New("no release repository configured; pass --repo or build with -X toolhost/cmd.releaseRepo")

func newSelfUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "self-update",
		Short: "Replace this binary with the latest published release",
		Long: `Looks up the newest release in the configured repository and, when it
is newer than the running build, downloads the asset for this platform and
swaps it in place of the current executable.`,
		RunE: runSelfUpdate,
	}
	cmd.Flags().String("repo", "", "Release repository as owner/repo (defaults to the build-time value)")
	return cmd
}

func runSelfUpdate(cmd *cobra.Command, args []string) error {
	current := rootCmd.Version
	if current == "" || current == "dev" {
		return fmt.Errorf("cannot self-update a development version")
	}

	ctx := context.Background()
	var out io.Writer = os.Stdout
	repo := releaseRepo
	if cmd != nil {
		if cmd.Context() != nil {
			ctx = cmd.Context()
		}
		out = cmd.OutOrStdout()
		if flag, _ := cmd.Flags().GetString("repo"); flag != "" {
			repo = flag
		}
	}
	if repo == "" {
		return errNoReleaseRepo
	}
	slug := selfupdate.ParseSlug(repo)
	if _, _, err := slug.GetSlug(); err != nil {
		return fmt.Errorf("invalid release repository %q: %w", repo, err)
	}

	updater, err := selfupdate.NewUpdater(selfupdate.Config{Source: updateSource()})
	if err != nil {
		return fmt.Errorf("failed to create updater: %w", err)
	}

	fmt.Fprintf(out, "toolhost %s, checking %s\n", current, repo)
	latest, found, err := updater.DetectLatest(ctx, slug)
	if err != nil {
		return fmt.Errorf("error detecting latest version: %w", err)
	}
	if !found {
		return fmt.Errorf("no release of %s found for this platform", repo)
	}
	if !latest.GreaterThan(current) {
		fmt.Fprintln(out, "Already up to date.")
		return nil
	}

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return fmt.Errorf("could not locate executable path: %w", err)
	}
	fmt.Fprintf(out, "Updating %s to %s\n", exe, latest.Version())
	if err := updater.UpdateTo(ctx, latest, exe); err != nil {
		return fmt.Errorf("update failed: %w", err)
	}
	fmt.Fprintf(out, "Updated to %s\n", latest.Version())
	return nil
}
