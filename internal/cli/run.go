package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/bolasblack/gowfp/internal/config"
	"github.com/bolasblack/gowfp/internal/engine"
	"github.com/bolasblack/gowfp/internal/metrics"
	"github.com/bolasblack/gowfp/internal/registry"
	"github.com/bolasblack/gowfp/internal/session"
	"github.com/bolasblack/gowfp/internal/util"
)

var (
	runFilters []string
	runListen  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Install filters and hold them until interrupted",
	Long: `Install the filters from the configuration file and --filter flags, then
wait. Every filter is removed when gowfp exits, including on Ctrl+C.

Filters left behind by a gowfp process that was killed are removed first.`,
	Example: `  gowfp run --filter "outbound and tcp and tcp.dstport == 443 and action == block@no-https@2000"
  gowfp run --listen 127.0.0.1:9180`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringArrayVarP(&runFilters, "filter", "f", nil, "Filter to install as EXPR[@NAME[@WEIGHT]] (repeatable)")
	runCmd.Flags().StringVar(&runListen, "listen", "", "Serve /metrics and /filters on this address while running")
}

func runRun(cmd *cobra.Command, args []string) error {
	env := newEnv().WithOutput(cmd.ErrOrStderr())

	cfg, err := loadConfigOptional(cmd, env)
	if err != nil {
		return err
	}

	filters := append([]config.Filter(nil), cfg.Filters...)
	for _, raw := range runFilters {
		f, err := parseFilterFlag(raw)
		if err != nil {
			return err
		}
		filters = append(filters, f)
	}
	if len(filters) == 0 {
		return fmt.Errorf("no filters to install: add [[filters]] to %s or pass --filter", flagConfig)
	}

	senv, err := newSessionEnv(cmd, env, cfg)
	if err != nil {
		return err
	}

	return runSession(cmd.Context(), env, senv, filters, runListen)
}

// runSession recovers stale sessions, then installs filters inside a
// session scope and blocks until the scope is cancelled.
func runSession(ctx context.Context, env *util.Env, senv *session.Env, filters []config.Filter, listen string) error {
	report, err := session.Recover(ctx, senv)
	if err != nil {
		progressWarn(env.Out, "Recovering stale sessions: %v\n", err)
	}
	if report.Removed > 0 {
		progressDone(env.Out, "Removed %d filters left by %d stale sessions\n", report.Removed, report.Sessions)
	}

	return session.Run(ctx, senv, func(ctx context.Context, s *session.Session) error {
		exprs := make(map[engine.FilterID]string, len(filters))
		for _, f := range filters {
			progressStep(env.Out, "Installing %s\n", displayName(f))
			id, err := s.AddFilter(ctx, f.Expr, filterOptions(f)...)
			if err != nil {
				return err
			}
			exprs[id] = f.Expr
		}
		progressDone(env.Out, "Installed %d filters\n", len(exprs))

		installed, err := installedFilters(ctx, s, exprs)
		if err != nil {
			return err
		}
		renderBanner(env.Out, s.ID(), installed, listen)

		if listen == "" {
			waitForExit(ctx)
			return nil
		}
		srv := metrics.NewServer(senv.Metrics, &lockedLister{lister: s}, senv.Logger)
		return srv.ListenAndServe(ctx, listen)
	})
}

// installedFilters reads back this session's filters in install order.
func installedFilters(ctx context.Context, s *session.Session, exprs map[engine.FilterID]string) ([]bannerFilter, error) {
	all, err := s.ListFilters(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[engine.FilterID]bannerFilter, len(all))
	for _, d := range all {
		byID[d.ID] = bannerFilter{Name: d.Name, Weight: d.Weight, Expr: exprs[d.ID]}
	}

	out := make([]bannerFilter, 0, len(exprs))
	for _, id := range s.Installed() {
		if f, ok := byID[id]; ok {
			out = append(out, f)
		}
	}
	return out, nil
}

func displayName(f config.Filter) string {
	if f.Name != "" {
		return f.Name
	}
	return f.Expr
}

// lockedLister serializes status requests onto the session, which is not
// safe for concurrent use.
type lockedLister struct {
	mu     sync.Mutex
	lister metrics.FilterLister
}

func (l *lockedLister) ListFilters(ctx context.Context) ([]registry.Descriptor, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lister.ListFilters(ctx)
}
