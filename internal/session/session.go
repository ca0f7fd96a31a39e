// Package session owns connections to the native filtering engine and the
// filters installed through them. Every filter a Session installs is
// removed when the Session closes; Run ties that to a scope so it also
// happens on error, panic and Ctrl+C.
package session

import (
	"context"
	"errors"

	"github.com/bolasblack/gowfp/internal/compiler"
	"github.com/bolasblack/gowfp/internal/dsl"
	"github.com/bolasblack/gowfp/internal/engine"
	"github.com/bolasblack/gowfp/internal/journal"
	"github.com/bolasblack/gowfp/internal/logging"
	"github.com/bolasblack/gowfp/internal/metrics"
	"github.com/bolasblack/gowfp/internal/registry"
)

// Env contains the collaborators of a Session. Only Engine is required.
type Env struct {
	Engine   engine.Engine
	Options  engine.OpenOptions
	Compiler *compiler.Compiler
	// Journal, when set, records installed filters so Recover can remove
	// them after a crash.
	Journal *journal.Journal
	Logger  *logging.Logger
	Metrics *metrics.Metrics
}

func (e *Env) compiler() *compiler.Compiler {
	if e.Compiler == nil {
		e.Compiler = compiler.New()
	}
	return e.Compiler
}

func (e *Env) logger() *logging.Logger {
	if e.Logger == nil {
		return logging.Discard()
	}
	return e.Logger
}

// State is the lifecycle state of a Session.
type State int

const (
	StateClosed State = iota
	StateOpen
)

func (s State) String() string {
	if s == StateOpen {
		return "open"
	}
	return "closed"
}

type installedFilter struct {
	id   engine.FilterID
	name string
}

// Session is one engine connection plus the filters installed through it.
// It is not safe for concurrent use.
type Session struct {
	env    *Env
	logger *logging.Logger

	state     State
	conn      engine.Conn
	registry  *registry.Registry
	record    *journal.Record
	installed []installedFilter
}

// New returns a closed Session.
func New(env *Env) *Session {
	return &Session{env: env, logger: env.logger().WithComponent("session")}
}

// ID returns the identifier of the current (or last) open period, or ""
// before the first Open.
func (s *Session) ID() string {
	if s.record == nil {
		return ""
	}
	return s.record.SessionID
}

// State returns the current state.
func (s *Session) State() State {
	return s.state
}

// Installed returns the IDs of the filters this session installed, in
// install order.
func (s *Session) Installed() []engine.FilterID {
	ids := make([]engine.FilterID, 0, len(s.installed))
	for _, f := range s.installed {
		ids = append(ids, f.id)
	}
	return ids
}

// Open connects to the engine. Engine errors such as
// engine.ErrAccessDenied are returned unchanged.
func (s *Session) Open(ctx context.Context) error {
	if s.state == StateOpen {
		return engine.ErrAlreadyOpen
	}

	conn, err := s.env.Engine.Open(ctx, s.env.Options)
	if err != nil {
		return err
	}

	record := journal.NewRecord(s.env.Options.Provider)
	if s.env.Journal != nil {
		if err := s.env.Journal.Save(record); err != nil {
			_ = conn.Close()
			return err
		}
	}

	s.conn = conn
	s.registry = registry.New(conn)
	s.record = record
	s.installed = nil
	s.state = StateOpen
	s.logger = s.env.logger().WithComponent("session").With("session", record.SessionID)
	s.env.Metrics.SessionOpened()
	s.logger.Debug("session opened", "provider", s.env.Options.Provider, "dynamic", s.env.Options.Dynamic)
	return nil
}

// FilterOption overrides a per-filter default.
type FilterOption func(*compiler.Options)

// WithName names the filter instead of generating a name.
func WithName(name string) FilterOption {
	return func(o *compiler.Options) {
		o.Name = name
	}
}

// WithWeight sets the filter weight instead of the default.
func WithWeight(w uint64) FilterOption {
	return func(o *compiler.Options) {
		o.Weight = compiler.Weight(w)
	}
}

// AddFilter parses, compiles and installs text. On success the filter is
// tracked for removal on Close. Failures are *FilterError; errors.Is still
// matches the parse or engine error underneath.
func (s *Session) AddFilter(ctx context.Context, text string, opts ...FilterOption) (engine.FilterID, error) {
	if s.state != StateOpen {
		return "", engine.ErrSessionNotOpen
	}

	var copts compiler.Options
	for _, opt := range opts {
		opt(&copts)
	}

	expr, err := dsl.Parse(text)
	if err != nil {
		s.env.Metrics.AddFailed(string(StageParse))
		return "", &FilterError{Text: text, Name: copts.Name, Stage: StageParse, Err: err}
	}
	f := s.env.compiler().Compile(expr, copts)

	id, err := s.conn.AddFilter(ctx, &f)
	if err != nil {
		s.env.Metrics.AddFailed(string(StageInstall))
		return "", &FilterError{Text: text, Name: f.Name, Stage: StageInstall, Err: err}
	}

	s.installed = append(s.installed, installedFilter{id: id, name: f.Name})
	s.env.Metrics.Installed()
	s.logger.Info("filter installed", "id", id, "name", f.Name, "weight", f.Weight, "layer", f.Layer.String())

	if s.env.Journal != nil {
		s.record.Add(id, f.Name)
		if err := s.env.Journal.Save(s.record); err != nil {
			s.logger.Warn("failed to update journal", "error", err)
		}
	}
	return id, nil
}

// ListFilters returns every filter installed in the engine.
func (s *Session) ListFilters(ctx context.Context) ([]registry.Descriptor, error) {
	if s.state != StateOpen {
		return nil, engine.ErrSessionNotOpen
	}
	return s.registry.ListAll(ctx)
}

// GetFilter returns the first filter named name. ok is false when there is
// none.
func (s *Session) GetFilter(ctx context.Context, name string) (d registry.Descriptor, ok bool, err error) {
	if s.state != StateOpen {
		return registry.Descriptor{}, false, engine.ErrSessionNotOpen
	}
	return s.registry.FindByName(ctx, name)
}

// Close removes every installed filter in install order, then releases the
// engine connection. A failed removal does not stop the others; failures
// come back as *CleanupError. Closing a closed Session does nothing.
//
// Pass a context that is not already cancelled, or every removal fails.
func (s *Session) Close(ctx context.Context) error {
	if s.state != StateOpen {
		return nil
	}

	var failures []RemovalFailure
	for _, f := range s.installed {
		err := s.conn.DeleteFilter(ctx, f.id)
		if err == nil || errors.Is(err, engine.ErrFilterNotFound) {
			s.env.Metrics.Removed()
			s.logger.Debug("filter removed", "id", f.id, "name", f.name)
			continue
		}
		s.env.Metrics.RemovalFailed()
		s.logger.Warn("failed to remove filter", "id", f.id, "name", f.name, "error", err)
		failures = append(failures, RemovalFailure{ID: f.id, Name: f.name, Err: err})
	}

	releaseErr := s.conn.Close()
	if releaseErr != nil {
		s.logger.Warn("failed to release engine connection", "error", releaseErr)
	}

	s.conn = nil
	s.registry = nil
	s.installed = nil
	s.state = StateClosed
	s.env.Metrics.SessionClosed()

	s.settleJournal(failures)

	if len(failures) == 0 && releaseErr == nil {
		s.logger.Debug("session closed")
		return nil
	}
	return &CleanupError{SessionID: s.record.SessionID, Failures: failures, ReleaseErr: releaseErr}
}

// settleJournal drops the journal after a clean close, or narrows it to
// the filters still installed so a later Recover can retry them.
func (s *Session) settleJournal(failures []RemovalFailure) {
	if s.env.Journal == nil {
		return
	}
	if len(failures) == 0 {
		if err := s.env.Journal.Remove(s.record.SessionID); err != nil {
			s.logger.Warn("failed to delete journal", "error", err)
		}
		return
	}

	remaining := make([]engine.FilterID, 0, len(failures))
	for _, f := range failures {
		remaining = append(remaining, f.ID)
	}
	s.record.Keep(remaining)
	if err := s.env.Journal.Save(s.record); err != nil {
		s.logger.Warn("failed to update journal", "error", err)
	}
}
