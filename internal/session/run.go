package session

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
)

// Run opens a Session, calls fn with it and closes it exactly once when fn
// returns, fails, panics, or the process receives SIGINT/SIGTERM (which
// cancels the ctx passed to fn). The result joins fn's error with any
// cleanup error.
//
// SIGKILL and similar cannot be handled; filters left by such an exit are
// removed by Recover when a journal is configured.
func Run(ctx context.Context, env *Env, fn func(ctx context.Context, s *Session) error) (err error) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := New(env)
	if err := s.Open(ctx); err != nil {
		return err
	}
	defer func() {
		// Removal must proceed even when ctx was cancelled by a signal.
		cleanupErr := s.Close(context.WithoutCancel(ctx))
		err = errors.Join(err, cleanupErr)
	}()

	return fn(ctx, s)
}

// Wait blocks until ctx is cancelled, typically by Ctrl+C inside Run.
func Wait(ctx context.Context) {
	<-ctx.Done()
}
