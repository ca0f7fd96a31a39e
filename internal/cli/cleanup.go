package cli

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/bolasblack/gowfp/internal/session"
)

var (
	cleanupAll bool
	cleanupYes bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove filters left behind by gowfp processes that were killed",
	Long: `Remove the filters recorded by sessions whose process is gone.

With --all, remove every filter installed under the configured provider,
including those of sessions that are still running.`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupAll, "all", false, "Remove every filter owned by the configured provider")
	cleanupCmd.Flags().BoolVarP(&cleanupYes, "yes", "y", false, "Do not ask for confirmation")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	env := newEnv().WithOutput(cmd.ErrOrStderr())
	cfg, err := loadConfigOptional(cmd, env)
	if err != nil {
		return err
	}
	senv, err := newSessionEnv(cmd, env, cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	var report session.Report
	if cleanupAll {
		if !cleanupYes {
			ok, err := confirmPurge(senv.Options.Provider)
			if err != nil {
				return err
			}
			if !ok {
				progress(env.Out, "Cancelled.\n")
				return nil
			}
		}
		progressStep(env.Out, "Removing all filters owned by %s\n", senv.Options.Provider)
		report, err = session.Purge(ctx, senv)
	} else {
		progressStep(env.Out, "Removing filters of stale sessions\n")
		report, err = session.Recover(ctx, senv)
	}

	for _, f := range report.Failures {
		progressWarn(env.Out, "%s\n", f)
	}
	progressDone(env.Out, "Removed %d filters from %d sessions\n", report.Removed, report.Sessions)

	if err == nil && len(report.Failures) > 0 {
		err = fmt.Errorf("%d filters could not be removed", len(report.Failures))
	}
	return err
}

var errNotInteractive = errors.New("refusing to remove live filters without confirmation: pass --yes")

func confirmPurge(provider string) (bool, error) {
	if !isInteractive() {
		return false, errNotInteractive
	}

	var ok bool
	err := huh.NewConfirm().
		Title(fmt.Sprintf("Remove every filter owned by %q?", provider)).
		Description("Filters of gowfp sessions that are still running are removed too.").
		Affirmative("Remove").
		Negative("Cancel").
		Value(&ok).
		Run()
	if err != nil {
		return false, fmt.Errorf("confirmation cancelled: %w", err)
	}
	return ok, nil
}
