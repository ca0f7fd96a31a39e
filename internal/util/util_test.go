package util

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	ProgressStep(&buf, "Installing %s\n", "a")
	ProgressDone(&buf, "Installed %d\n", 2)
	ProgressWarn(&buf, "skipped\n")
	assert.Equal(t, "→ Installing a\n✓ Installed 2\n! skipped\n", buf.String())

	// nil writer means quiet.
	assert.NotPanics(t, func() { ProgressStep(nil, "x") })
}

func TestProcessAlive(t *testing.T) {
	assert.True(t, ProcessAlive(os.Getpid()))
	assert.False(t, ProcessAlive(0))
	assert.False(t, ProcessAlive(-1))
}
