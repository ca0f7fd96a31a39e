package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/bolasblack/gowfp/internal/engine"
	"github.com/bolasblack/gowfp/internal/journal"
	"github.com/bolasblack/gowfp/internal/registry"
)

// Report summarizes a Recover or Purge pass.
type Report struct {
	// Sessions is the number of stale journals processed.
	Sessions int
	Removed  int
	Failures []RemovalFailure
}

// Recover removes the filters recorded by journals whose owning process is
// gone, then deletes those journals. Journals with filters that could not
// be removed are kept, narrowed to those filters.
func Recover(ctx context.Context, env *Env) (Report, error) {
	var report Report
	if env.Journal == nil {
		return report, nil
	}

	stale, listErr := env.Journal.Stale()
	if len(stale) == 0 {
		return report, listErr
	}

	conn, err := env.Engine.Open(ctx, env.Options)
	if err != nil {
		return report, errors.Join(listErr, err)
	}

	logger := env.logger().WithComponent("recover")
	for _, rec := range stale {
		report.Sessions++
		failed := removeAll(ctx, env, conn, rec.Filters, &report)
		for _, f := range failed {
			logger.Warn("failed to remove orphaned filter", "session", rec.SessionID, "id", f.ID, "name", f.Name, "error", f.Err)
		}

		if len(failed) == 0 {
			if err := env.Journal.Remove(rec.SessionID); err != nil {
				logger.Warn("failed to delete journal", "session", rec.SessionID, "error", err)
			}
			logger.Info("recovered stale session", "session", rec.SessionID, "pid", rec.PID, "filters", len(rec.Filters))
			continue
		}

		ids := make([]engine.FilterID, 0, len(failed))
		for _, f := range failed {
			ids = append(ids, f.ID)
		}
		rec.Keep(ids)
		if err := env.Journal.Save(rec); err != nil {
			logger.Warn("failed to update journal", "session", rec.SessionID, "error", err)
		}
	}

	if err := conn.Close(); err != nil {
		return report, errors.Join(listErr, fmt.Errorf("failed to release engine connection: %w", err))
	}
	return report, listErr
}

// Purge removes every filter installed under env.Options.Provider by any
// session, live or not, and clears stale journals. It backs
// "gowfp cleanup --all".
func Purge(ctx context.Context, env *Env) (Report, error) {
	var report Report

	conn, err := env.Engine.Open(ctx, env.Options)
	if err != nil {
		return report, err
	}

	owned, err := registry.New(conn).ListOwned(ctx, env.Options.Provider)
	if err != nil {
		_ = conn.Close()
		return report, err
	}

	entries := make([]journal.Entry, 0, len(owned))
	for _, d := range owned {
		entries = append(entries, journal.Entry{ID: d.ID, Name: d.Name})
	}
	removeAll(ctx, env, conn, entries, &report)

	var errs []error
	if env.Journal != nil {
		stale, listErr := env.Journal.Stale()
		errs = append(errs, listErr)
		for _, rec := range stale {
			report.Sessions++
			errs = append(errs, env.Journal.Remove(rec.SessionID))
		}
	}

	if err := conn.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to release engine connection: %w", err))
	}
	return report, errors.Join(errs...)
}

// removeAll deletes entries best effort, counting into report. Not-found
// counts as removed. It returns this call's failures, which are also
// appended to report.Failures.
func removeAll(ctx context.Context, env *Env, conn engine.Conn, entries []journal.Entry, report *Report) []RemovalFailure {
	var failed []RemovalFailure
	for _, e := range entries {
		err := conn.DeleteFilter(ctx, e.ID)
		if err == nil || errors.Is(err, engine.ErrFilterNotFound) {
			report.Removed++
			env.Metrics.Removed()
			continue
		}
		env.Metrics.RemovalFailed()
		failed = append(failed, RemovalFailure{ID: e.ID, Name: e.Name, Err: err})
	}
	report.Failures = append(report.Failures, failed...)
	return failed
}
