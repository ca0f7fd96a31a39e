package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/bolasblack/gowfp/internal/compiler"
	"github.com/bolasblack/gowfp/internal/config"
	"github.com/bolasblack/gowfp/internal/engine"
	"github.com/bolasblack/gowfp/internal/journal"
	"github.com/bolasblack/gowfp/internal/logging"
	"github.com/bolasblack/gowfp/internal/metrics"
	"github.com/bolasblack/gowfp/internal/session"
	"github.com/bolasblack/gowfp/internal/util"
)

// Seams replaced by tests.
var (
	newEnv = func() *util.Env {
		return util.NewEnv(afero.NewOsFs())
	}

	newReadonlyEnv = util.NewReadonlyOsEnv

	newEngine = func(simulate bool) (engine.Engine, error) {
		if simulate {
			return engine.NewMemory(), nil
		}
		eng, err := engine.NewWFP()
		if err != nil {
			return nil, err
		}
		if !util.IsElevated() {
			return nil, fmt.Errorf("%w: process is not elevated", engine.ErrAccessDenied)
		}
		return eng, nil
	}

	waitForExit = session.Wait

	isInteractive = func() bool {
		return isTerminal(os.Stdin)
	}
)

// loadConfigOptional loads the configuration, falling back to defaults when
// the default file is absent. A missing file named explicitly with --config
// is an error.
func loadConfigOptional(cmd *cobra.Command, env *util.Env) (config.Config, error) {
	cfg, err := config.LoadConfig(env.Fs, flagConfig)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("config") {
			return config.DefaultConfig(), nil
		}
		return config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config %s: %w", flagConfig, err)
	}
	return cfg, nil
}

// newLogger builds the logger from config, with flags taking precedence.
func newLogger(cmd *cobra.Command, cfg config.Config) (*logging.Logger, error) {
	levelName := cfg.Log.Level
	if cmd.Flags().Changed("log-level") {
		levelName = flagLogLevel
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}

	logger := logging.New(logging.Config{
		Level:  level,
		Output: cmd.ErrOrStderr(),
		JSON:   cfg.Log.JSON || flagLogJSON,
	})
	logging.SetDefault(logger)
	return logger, nil
}

// newSessionEnv wires the session collaborators from config.
func newSessionEnv(cmd *cobra.Command, env *util.Env, cfg config.Config) (*session.Env, error) {
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}

	eng, err := newEngine(flagSimulate)
	if err != nil {
		return nil, err
	}

	dir := cfg.Journal.Dir
	if dir == "" {
		dir = journal.DefaultDir()
	}

	return &session.Env{
		Engine: eng,
		Options: engine.OpenOptions{
			Provider:    cfg.Engine.Provider,
			Description: cfg.Engine.Description,
			Dynamic:     cfg.Engine.IsDynamic(),
		},
		Compiler: compiler.New(compiler.WithDefaultWeight(cfg.Defaults.Weight)),
		Journal:  journal.New(env.Fs, dir),
		Logger:   logger,
		Metrics:  metrics.New(),
	}, nil
}

// parseFilterFlag parses EXPR[@NAME[@WEIGHT]].
func parseFilterFlag(s string) (config.Filter, error) {
	parts := strings.Split(s, "@")
	if len(parts) > 3 {
		return config.Filter{}, fmt.Errorf("invalid --filter %q: want EXPR[@NAME[@WEIGHT]]", s)
	}

	f := config.Filter{Expr: strings.TrimSpace(parts[0])}
	if f.Expr == "" {
		return config.Filter{}, fmt.Errorf("invalid --filter %q: empty expression", s)
	}
	if len(parts) > 1 {
		f.Name = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 {
		w, err := strconv.ParseUint(strings.TrimSpace(parts[2]), 10, 64)
		if err != nil {
			return config.Filter{}, fmt.Errorf("invalid --filter %q: weight: %w", s, err)
		}
		f.Weight = &w
	}
	return f, nil
}

// filterOptions converts a configured filter's overrides.
func filterOptions(f config.Filter) []session.FilterOption {
	var opts []session.FilterOption
	if f.Name != "" {
		opts = append(opts, session.WithName(f.Name))
	}
	if f.Weight != nil {
		opts = append(opts, session.WithWeight(*f.Weight))
	}
	return opts
}

// progress writes a progress message if not in quiet mode.
// Delegates to util.Progress for shared implementation.
var progress = util.Progress

// progressStep writes a progress message with → prefix (step in progress).
var progressStep = util.ProgressStep

// progressDone writes a progress message with ✓ prefix (step completed).
var progressDone = util.ProgressDone

// progressWarn writes a progress message with ! prefix.
var progressWarn = util.ProgressWarn

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
