package journal

import (
	"go/format"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bolasblack/gowfp/internal/engine"
)

const testDir = "/var/gowfp/sessions"

func TestSaveLoadRemove(t *testing.T) {
	fs := afero.NewMemMapFs()
	j := New(fs, testDir)

	rec := NewRecord("gowfp")
	rec.Add("id-1", "first")
	rec.Add("id-2", "second")
	require.NoError(t, j.Save(rec))

	exists, err := afero.Exists(fs, filepath.Join(testDir, rec.SessionID+".json"))
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := j.Load(rec.SessionID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.SessionID, got.SessionID)
	assert.Equal(t, os.Getpid(), got.PID)
	assert.Equal(t, CurrentVersion, got.Version)
	assert.Equal(t, []Entry{{ID: "id-1", Name: "first"}, {ID: "id-2", Name: "second"}}, got.Filters)

	require.NoError(t, j.Remove(rec.SessionID))
	got, err = j.Load(rec.SessionID)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Removing twice is fine.
	assert.NoError(t, j.Remove(rec.SessionID))
}

func TestLoad_Corrupt(t *testing.T) {
	fs := afero.NewMemMapFs()
	j := New(fs, testDir)
	require.NoError(t, afero.WriteFile(fs, j.Path("broken"), []byte("{not json"), 0644))

	_, err := j.Load("broken")
	assert.ErrorContains(t, err, "failed to parse journal")
}

func TestRecord_Keep(t *testing.T) {
	rec := NewRecord("p")
	rec.Add("a", "A")
	rec.Add("b", "B")
	rec.Add("c", "C")

	rec.Keep([]engine.FilterID{"c", "a"})
	assert.Equal(t, []Entry{{ID: "a", Name: "A"}, {ID: "c", Name: "C"}}, rec.Filters)

	rec.Keep(nil)
	assert.Empty(t, rec.Filters)
}

func TestList(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		j := New(afero.NewMemMapFs(), testDir)
		recs, err := j.List()
		require.NoError(t, err)
		assert.Empty(t, recs)
	})

	t.Run("oldest first and skips junk", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		j := New(fs, testDir)

		newer := NewRecord("p")
		older := NewRecord("p")
		older.CreatedAt = newer.CreatedAt.Add(-time.Hour)
		require.NoError(t, j.Save(newer))
		require.NoError(t, j.Save(older))
		require.NoError(t, afero.WriteFile(fs, filepath.Join(testDir, "notes.txt"), []byte("x"), 0644))
		require.NoError(t, afero.WriteFile(fs, filepath.Join(testDir, "bad.json"), []byte("["), 0644))

		recs, err := j.List()
		assert.ErrorContains(t, err, "bad.json")
		require.Len(t, recs, 2)
		assert.Equal(t, older.SessionID, recs[0].SessionID)
		assert.Equal(t, newer.SessionID, recs[1].SessionID)
	})
}

func TestStale(t *testing.T) {
	fs := afero.NewMemMapFs()
	alive := map[int]bool{100: true}
	j := New(fs, testDir, WithAliveFunc(func(pid int) bool { return alive[pid] }))

	live := NewRecord("p")
	live.PID = 100
	dead := NewRecord("p")
	dead.PID = 200
	require.NoError(t, j.Save(live))
	require.NoError(t, j.Save(dead))

	stale, err := j.Stale()
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, dead.SessionID, stale[0].SessionID)
}

func TestDefaultDir(t *testing.T) {
	dir := DefaultDir()
	assert.NotEmpty(t, dir)
	assert.Equal(t, "sessions", filepath.Base(dir))
}

func TestSourcesAreFormatted(t *testing.T) {
	files, err := filepath.Glob("*.go")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, name := range files {
		src, err := os.ReadFile(name)
		require.NoError(t, err)
		formatted, err := format.Source(src)
		require.NoError(t, err, name)
		assert.Equal(t, string(formatted), string(src), "%s is not gofmt-formatted", name)
	}
}
