// Package journal records which filters a session installed, so that a
// later run can remove them if the owning process died without cleaning up.
// Each session writes <dir>/<session-id>.json.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/bolasblack/gowfp/internal/engine"
	"github.com/bolasblack/gowfp/internal/util"
)

const (
	// DirName is the directory under the user config dir holding journals.
	DirName = "gowfp/sessions"
	// CurrentVersion is the journal file format version.
	CurrentVersion = "1"

	fileExt = ".json"
)

// Entry is one filter installed by a session.
type Entry struct {
	ID   engine.FilterID `json:"id"`
	Name string          `json:"name"`
}

// Record is the persisted state of one session. It is stale once the
// process PID is gone.
type Record struct {
	Version   string    `json:"version"`
	SessionID string    `json:"session_id"`
	PID       int       `json:"pid"`
	Provider  string    `json:"provider"`
	CreatedAt time.Time `json:"created_at"`
	Filters   []Entry   `json:"filters"`
}

// NewRecord starts a record for a new session owned by this process.
func NewRecord(provider string) *Record {
	return &Record{
		Version:   CurrentVersion,
		SessionID: uuid.New().String(),
		PID:       os.Getpid(),
		Provider:  provider,
		CreatedAt: time.Now(),
	}
}

// Add appends an installed filter.
func (r *Record) Add(id engine.FilterID, name string) {
	r.Filters = append(r.Filters, Entry{ID: id, Name: name})
}

// Keep drops every entry whose ID is not in ids.
func (r *Record) Keep(ids []engine.FilterID) {
	r.Filters = slices.DeleteFunc(r.Filters, func(e Entry) bool {
		return !slices.Contains(ids, e.ID)
	})
}

// Journal stores records in a directory.
type Journal struct {
	fs    afero.Fs
	dir   string
	alive func(pid int) bool
}

// Option configures a Journal.
type Option func(*Journal)

// WithAliveFunc replaces the process liveness check used by Stale.
func WithAliveFunc(fn func(pid int) bool) Option {
	return func(j *Journal) {
		j.alive = fn
	}
}

// New returns a Journal rooted at dir on fs.
func New(fs afero.Fs, dir string, opts ...Option) *Journal {
	j := &Journal{fs: fs, dir: dir, alive: util.ProcessAlive}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// DefaultDir returns <user config dir>/gowfp/sessions, falling back to the
// temp dir when there is no config dir.
func DefaultDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, filepath.FromSlash(DirName))
}

// Dir returns the journal directory.
func (j *Journal) Dir() string {
	return j.dir
}

// Path returns the file path for sessionID.
func (j *Journal) Path(sessionID string) string {
	return filepath.Join(j.dir, sessionID+fileExt)
}

// Save writes r, creating the directory if needed.
func (j *Journal) Save(r *Record) error {
	if err := j.fs.MkdirAll(j.dir, 0755); err != nil {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal journal: %w", err)
	}

	if err := afero.WriteFile(j.fs, j.Path(r.SessionID), data, 0644); err != nil {
		return fmt.Errorf("failed to write journal: %w", err)
	}
	return nil
}

// Load reads the record for sessionID.
// Returns nil and no error if it does not exist.
func (j *Journal) Load(sessionID string) (*Record, error) {
	return j.load(j.Path(sessionID))
}

func (j *Journal) load(path string) (*Record, error) {
	data, err := afero.ReadFile(j.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}

	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse journal %s: %w", path, err)
	}
	return &r, nil
}

// Remove deletes the record for sessionID. A missing record is not an error.
func (j *Journal) Remove(sessionID string) error {
	err := j.fs.Remove(j.Path(sessionID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete journal: %w", err)
	}
	return nil
}

// List returns every readable record, oldest first. Unparseable files are
// skipped and reported in the returned error alongside the valid records.
func (j *Journal) List() ([]*Record, error) {
	infos, err := afero.ReadDir(j.fs, j.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read journal directory: %w", err)
	}

	var (
		out []*Record
		bad []string
	)
	for _, info := range infos {
		if info.IsDir() || !strings.HasSuffix(info.Name(), fileExt) {
			continue
		}
		r, err := j.load(filepath.Join(j.dir, info.Name()))
		if err != nil || r == nil {
			bad = append(bad, info.Name())
			continue
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(a, b int) bool {
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})

	if len(bad) > 0 {
		return out, fmt.Errorf("skipped unreadable journals: %s", strings.Join(bad, ", "))
	}
	return out, nil
}

// Stale returns the records whose owning process is gone.
func (j *Journal) Stale() ([]*Record, error) {
	all, err := j.List()
	stale := slices.DeleteFunc(all, func(r *Record) bool {
		return r.PID > 0 && j.alive(r.PID)
	})
	return stale, err
}
