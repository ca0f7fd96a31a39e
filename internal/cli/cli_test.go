package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bolasblack/gowfp/internal/compiler"
	"github.com/bolasblack/gowfp/internal/config"
	"github.com/bolasblack/gowfp/internal/engine"
	"github.com/bolasblack/gowfp/internal/journal"
	"github.com/bolasblack/gowfp/internal/metrics"
	"github.com/bolasblack/gowfp/internal/registry"
	"github.com/bolasblack/gowfp/internal/session"
	"github.com/bolasblack/gowfp/internal/util"
)

type testHarness struct {
	mem *engine.Memory
	env *util.Env
	// during holds the engine records seen while the run command waited.
	during []engine.Record
}

// setupCLI points every seam at in-memory fakes and resets flag state.
func setupCLI(t *testing.T) *testHarness {
	t.Helper()
	h := &testHarness{mem: engine.NewMemory(), env: util.NewTestEnv()}

	origEnv, origReadonly, origEngine, origWait, origInteractive := newEnv, newReadonlyEnv, newEngine, waitForExit, isInteractive
	t.Cleanup(func() {
		newEnv, newReadonlyEnv, newEngine, waitForExit, isInteractive = origEnv, origReadonly, origEngine, origWait, origInteractive
	})

	newEnv = func() *util.Env { return h.env }
	newReadonlyEnv = func() *util.Env { return h.env }
	newEngine = func(bool) (engine.Engine, error) { return h.mem, nil }
	waitForExit = func(context.Context) { h.during = h.mem.Records() }
	isInteractive = func() bool { return false }

	flagConfig = config.DefaultFilename
	flagLogLevel = "error"
	runFilters, runListen = nil, ""
	listOwned, getJSON = false, false
	checkName, checkWeight = "", 0
	cleanupAll, cleanupYes = false, false
	initTemplate = ""
	return h
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func (h *testHarness) install(t *testing.T, provider, name, expr string) engine.FilterID {
	t.Helper()
	ctx := context.Background()
	conn, err := h.mem.Open(ctx, engine.OpenOptions{Provider: provider})
	require.NoError(t, err)
	f, err := compiler.New().CompileString(expr, compiler.Options{Name: name})
	require.NoError(t, err)
	id, err := conn.AddFilter(ctx, &f)
	require.NoError(t, err)
	return id
}

func TestRootCommandHasSubcommands(t *testing.T) {
	expected := []string{"init", "run", "list", "get", "check", "cleanup"}

	actual := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		actual[cmd.Name()] = true
	}
	for _, name := range expected {
		assert.True(t, actual[name], "missing subcommand %q", name)
	}
	assert.Equal(t, "gowfp", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestFriendlyError(t *testing.T) {
	denied := friendlyError(errors.Join(errors.New("open"), engine.ErrAccessDenied))
	assert.Contains(t, denied, "elevated (Administrator)")

	unsupported := friendlyError(engine.ErrUnsupported)
	assert.Contains(t, unsupported, "--simulate")

	assert.Equal(t, "Error: boom", friendlyError(errors.New("boom")))
}

func TestParseFilterFlag(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    config.Filter
		wantErr string
	}{
		{
			name: "expression only",
			in:   "outbound and tcp and action == block",
			want: config.Filter{Expr: "outbound and tcp and action == block"},
		},
		{
			name: "with name",
			in:   "inbound and udp and action == block@no-udp",
			want: config.Filter{Expr: "inbound and udp and action == block", Name: "no-udp"},
		},
		{
			name: "with name and weight",
			in:   "outbound and action == allow@ok@2000",
			want: config.Filter{Expr: "outbound and action == allow", Name: "ok", Weight: compiler.Weight(2000)},
		},
		{
			name: "weight without name",
			in:   "outbound and action == allow@@5",
			want: config.Filter{Expr: "outbound and action == allow", Weight: compiler.Weight(5)},
		},
		{name: "empty expression", in: "@name", wantErr: "empty expression"},
		{name: "bad weight", in: "outbound@n@heavy", wantErr: "weight"},
		{name: "too many parts", in: "a@b@1@d", wantErr: "EXPR[@NAME[@WEIGHT]]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFilterFlag(tt.in)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRun_InstallsAndRemoves(t *testing.T) {
	h := setupCLI(t)

	out, err := execute(t, "run",
		"--filter", "outbound and tcp and remoteaddr == 192.168.1.3-192.168.1.4 and tcp.dstport == 8123 and action == allow@Allow Filter@2000",
		"--filter", "outbound and tcp and action == block@Block Filter",
	)
	require.NoError(t, err)

	require.Len(t, h.during, 2)
	assert.Equal(t, "Allow Filter", h.during[0].Name)
	assert.Equal(t, uint64(2000), h.during[0].Weight)
	assert.Equal(t, config.DefaultProvider, h.during[0].Provider)
	assert.Equal(t, compiler.DefaultWeight, h.during[1].Weight)
	assert.Empty(t, h.mem.Records(), "filters must be removed on exit")
	assert.Equal(t, 0, h.mem.OpenConns())

	assert.Contains(t, out, "Installed 2 filters")
	assert.Contains(t, out, "active with 2 filters")
	assert.Contains(t, out, "Press Ctrl+C")

	journals, err := journal.New(h.env.Fs, journal.DefaultDir()).List()
	require.NoError(t, err)
	assert.Empty(t, journals)
}

func TestRun_ConfigFilters(t *testing.T) {
	h := setupCLI(t)
	content, err := config.GenerateConfig(config.TemplateInbound)
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(h.env.Fs, config.DefaultFilename, []byte(content), 0644))

	_, err = execute(t, "run")
	require.NoError(t, err)
	assert.NotEmpty(t, h.during)
	assert.Empty(t, h.mem.Records())
}

func TestRun_BadFilterRollsBack(t *testing.T) {
	h := setupCLI(t)

	_, err := execute(t, "run",
		"--filter", "outbound and tcp and action == block",
		"--filter", "outbound and tcp and remoteaddr == nope and action == block",
	)
	require.Error(t, err)
	assert.Nil(t, h.during, "never reached the wait")
	assert.Empty(t, h.mem.Records())
}

func TestRun_NoFilters(t *testing.T) {
	setupCLI(t)
	_, err := execute(t, "run")
	assert.ErrorContains(t, err, "no filters to install")
}

func TestRun_AccessDenied(t *testing.T) {
	h := setupCLI(t)
	h.mem.DenyOpen()

	_, err := execute(t, "run", "--filter", "outbound and action == block")
	assert.ErrorIs(t, err, engine.ErrAccessDenied)
}

func TestListAndGet(t *testing.T) {
	h := setupCLI(t)
	h.install(t, config.DefaultProvider, "ours", "outbound and tcp and tcp.dstport == 443 and action == block")
	h.install(t, "other", "theirs", "inbound and udp and action == allow")

	out, err := execute(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "ours")
	assert.Contains(t, out, "theirs")
	assert.Contains(t, out, "remoteport == 443")

	out, err = execute(t, "list", "--owned")
	require.NoError(t, err)
	assert.Contains(t, out, "ours")
	assert.NotContains(t, out, "theirs")

	out, err = execute(t, "get", "theirs")
	require.NoError(t, err)
	assert.Contains(t, out, "inbound-transport-v4")
	assert.Contains(t, out, "allow")

	out, err = execute(t, "get", "--json", "ours")
	require.NoError(t, err)
	assert.Contains(t, out, `"action": "block"`)

	_, err = execute(t, "get", "missing")
	assert.ErrorIs(t, err, errNotFound)
}

func TestReadOnlyCommandsRegisterNothing(t *testing.T) {
	h := setupCLI(t)

	_, err := execute(t, "list")
	require.NoError(t, err)
	_, err = execute(t, "get", "anything")
	assert.ErrorIs(t, err, errNotFound)

	assert.Empty(t, h.mem.Providers())
	assert.Equal(t, 0, h.mem.OpenConns())
}

func TestList_Empty(t *testing.T) {
	setupCLI(t)
	out, err := execute(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No filters found.")
}

func TestCheck(t *testing.T) {
	setupCLI(t)

	out, err := execute(t, "check", "--name", "dns", "--weight", "7", "inbound and udp and udp.dstport == 53 and action == block")
	require.NoError(t, err)
	assert.Contains(t, out, "dns [inbound-transport-v4 proto=udp weight=7] block: localport == 53")

	_, err = execute(t, "check", "inbound and tcp and udp.dstport == 53")
	assert.Error(t, err)
}

func TestCheck_NothingToCheck(t *testing.T) {
	setupCLI(t)
	_, err := execute(t, "check")
	assert.ErrorContains(t, err, "nothing to check")
}

func TestCleanup_All(t *testing.T) {
	h := setupCLI(t)
	h.install(t, config.DefaultProvider, "ours", "outbound and tcp and action == block")
	h.install(t, "other", "theirs", "inbound and udp and action == allow")

	_, err := execute(t, "cleanup", "--all")
	assert.ErrorIs(t, err, errNotInteractive)
	assert.Len(t, h.mem.Records(), 2)

	out, err := execute(t, "cleanup", "--all", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 1 filters")

	recs := h.mem.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, "theirs", recs[0].Name)
}

func TestCleanup_Stale(t *testing.T) {
	setupCLI(t)
	out, err := execute(t, "cleanup")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 0 filters from 0 sessions")
}

func TestInit(t *testing.T) {
	h := setupCLI(t)

	_, err := execute(t, "init", "--template", "inbound")
	require.NoError(t, err)

	cfg, err := config.LoadConfig(h.env.Fs, config.DefaultFilename)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.NotEmpty(t, cfg.Filters)

	_, err = execute(t, "init", "--template", "inbound")
	assert.ErrorContains(t, err, "already exists")
}

func TestChooseTemplate(t *testing.T) {
	setupCLI(t)

	got, err := chooseTemplate("")
	require.NoError(t, err)
	assert.Equal(t, config.TemplateExample, got)

	_, err = chooseTemplate("bogus")
	assert.ErrorContains(t, err, "unknown template")
}

func TestRenderBanner(t *testing.T) {
	filters := make([]bannerFilter, 7)
	for i := range filters {
		filters[i] = bannerFilter{Name: "f", Weight: 1, Expr: "outbound and action == block"}
	}

	var buf bytes.Buffer
	renderBanner(&buf, "0123456789abcdef", filters, "127.0.0.1:9180")
	out := buf.String()

	assert.Contains(t, out, "Session 01234567 active with 7 filters")
	assert.Contains(t, out, "...and 2 more")
	assert.Contains(t, out, "http://127.0.0.1:9180/filters")
	assert.NotContains(t, out, "\x1b[", "no ANSI codes when not a terminal")
}

type overlapLister struct {
	inflight atomic.Int32
	overlap  atomic.Bool
}

func (o *overlapLister) ListFilters(context.Context) ([]registry.Descriptor, error) {
	if o.inflight.Add(1) > 1 {
		o.overlap.Store(true)
	}
	time.Sleep(time.Millisecond)
	o.inflight.Add(-1)
	return nil, nil
}

func TestLockedLister_Serializes(t *testing.T) {
	inner := &overlapLister{}
	l := &lockedLister{lister: inner}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = l.ListFilters(context.Background())
		}()
	}
	wg.Wait()
	assert.False(t, inner.overlap.Load(), "session must never be listed concurrently")
}

func TestRun_ListenServesFilters(t *testing.T) {
	h := setupCLI(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	senv := &session.Env{
		Engine:  h.mem,
		Options: engine.OpenOptions{Provider: config.DefaultProvider},
		Metrics: metrics.New(),
	}
	go func() {
		done <- runSession(ctx, h.env, senv, []config.Filter{{Name: "web", Expr: "outbound and tcp.dstport == 443 and action == block"}}, addr)
	}()

	var body []byte
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/filters/web")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, err = io.ReadAll(resp.Body)
		return err == nil && resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)
	assert.Contains(t, string(body), `"name":"web"`)

	cancel()
	require.NoError(t, <-done)
	assert.Empty(t, h.mem.Records())
}
