package util

import (
	"io"
	"os"

	"github.com/spf13/afero"
)

// Env contains environment dependencies that can be mocked for testing.
type Env struct {
	// Fs is the filesystem used for config and journal files.
	Fs afero.Fs
	// Out receives progress output. Nil means quiet.
	Out io.Writer
}

// NewEnv creates an Env with the given filesystem writing progress to stderr.
func NewEnv(fs afero.Fs) *Env {
	return &Env{Fs: fs, Out: os.Stderr}
}

// NewReadonlyOsEnv creates an Env with a read-only OS filesystem.
// Use this for commands that only read files (like list, get, check).
// Write operations will fail with an error.
func NewReadonlyOsEnv() *Env {
	return &Env{Fs: afero.NewReadOnlyFs(afero.NewOsFs()), Out: os.Stderr}
}

// NewTestEnv creates an Env with an in-memory filesystem and no output.
func NewTestEnv() *Env {
	return &Env{Fs: afero.NewMemMapFs()}
}

// WithOutput returns a copy writing progress to w.
func (e *Env) WithOutput(w io.Writer) *Env {
	return &Env{Fs: e.Fs, Out: w}
}
