package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smorand/slides-mirror/internal/cache"
	"github.com/smorand/slides-mirror/internal/config"
	"github.com/smorand/slides-mirror/internal/host"
	"github.com/smorand/slides-mirror/internal/session"
)

type fakeShow struct {
	mu      sync.Mutex
	calls   []string
	began   chan struct{}
	gotoErr error
}

func (f *fakeShow) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return nil
}

func (f *fakeShow) Begin() error {
	f.record("begin")
	if f.began != nil {
		close(f.began)
	}
	return nil
}

func (f *fakeShow) End() error   { return f.record("end") }
func (f *fakeShow) Next() error  { return f.record("next") }
func (f *fakeShow) Prev() error  { return f.record("prev") }
func (f *fakeShow) First() error { return f.record("first") }
func (f *fakeShow) Last() error  { return f.record("last") }

func (f *fakeShow) Goto(n int) error {
	f.record("goto")
	return f.gotoErr
}

type fakeSession struct {
	snapshot host.Snapshot
	err      error
}

func (f *fakeSession) Recache() (cache.PassResult, error) {
	return cache.PassResult{}, f.err
}

func (f *fakeSession) Snapshot(ctx context.Context) (host.Snapshot, error) {
	return f.snapshot, f.err
}

type fakeCache struct {
	cleared bool
	stats   bool
}

func (f *fakeCache) Clear() error {
	f.cleared = true
	return nil
}

func (f *fakeCache) LogStats() { f.stats = true }

type fakeServer []string

func (f fakeServer) ListeningAddresses() []string { return f }

func runConsole(t *testing.T, input string, show *fakeShow, sess *fakeSession, c *fakeCache) string {
	t.Helper()
	var out bytes.Buffer
	con := newConsole(consoleConfig{
		In:      strings.NewReader(input),
		Out:     &out,
		Show:    show,
		Session: sess,
		Cache:   c,
		Server:  fakeServer{"http://192.168.1.10:8080/"},
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, con.Run(context.Background()))

	con.outMu.Lock()
	defer con.outMu.Unlock()
	return out.String()
}

func TestConsoleNavigation(t *testing.T) {
	show := &fakeShow{}

	runConsole(t, "next\nprev\n\nFIRST\nlast\ngoto 3\nend\nquit\nnext\n", show, &fakeSession{}, &fakeCache{})

	assert.Equal(t, []string{"next", "prev", "first", "last", "goto", "end"}, show.calls)
}

func TestConsoleBeginRunsInBackground(t *testing.T) {
	show := &fakeShow{began: make(chan struct{})}

	runConsole(t, "begin\n", show, &fakeSession{}, &fakeCache{})

	select {
	case <-show.began:
	case <-time.After(time.Second):
		t.Fatal("begin was not called")
	}
}

func TestConsoleGotoErrors(t *testing.T) {
	show := &fakeShow{gotoErr: errors.New("slide out of range")}

	out := runConsole(t, "goto\ngoto two\ngoto 9\n", show, &fakeSession{}, &fakeCache{})

	assert.Contains(t, out, "Usage: goto <n>")
	assert.Contains(t, out, "Invalid slide number: two")
	assert.Contains(t, out, "Error: slide out of range")
	assert.Equal(t, []string{"goto"}, show.calls)
}

func TestConsoleUnknownCommand(t *testing.T) {
	out := runConsole(t, "jump\n", &fakeShow{}, &fakeSession{}, &fakeCache{})

	assert.Contains(t, out, "Unknown command: jump")
}

func TestConsoleStatus(t *testing.T) {
	c := &fakeCache{}
	sess := &fakeSession{snapshot: host.Snapshot{NumberOfSlides: 5, CurrentSlideNumber: 2}}

	out := runConsole(t, "status\n", &fakeShow{}, sess, c)

	assert.Contains(t, out, "Serving on http://192.168.1.10:8080/")
	assert.Contains(t, out, "Current slide: 2 of 5")
	assert.True(t, c.stats)
}

func TestConsoleStatusWithoutShow(t *testing.T) {
	out := runConsole(t, "status\n", &fakeShow{}, &fakeSession{err: session.ErrNoActiveSlideShow}, &fakeCache{})

	assert.Contains(t, out, "No active slide show")
}

func TestConsoleClearAndHelp(t *testing.T) {
	c := &fakeCache{}

	out := runConsole(t, "clear\nhelp\n", &fakeShow{}, &fakeSession{}, c)

	assert.True(t, c.cleared)
	assert.Contains(t, out, "goto <n>")
}

func TestConsoleStopsOnContext(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	con := newConsole(consoleConfig{In: r, Out: io.Discard, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error)
	go func() { done <- con.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("console did not stop")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	newLogger("warn", "json", &buf).Info("hidden")
	assert.Empty(t, buf.String())

	newLogger("debug", "json", &buf).Debug("shown")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	newLogger("info", "text", &buf).Info("plain")
	assert.Contains(t, buf.String(), "msg=plain")
}

func TestClearCacheCommand(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "abc"), 0o755))
	cfg := config.Default()

	root := newRootCommand(&cfg)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"clear-cache", "--cache-dir", dir})

	require.NoError(t, root.Execute())

	assert.NoDirExists(t, dir)
	assert.Contains(t, out.String(), "Cleared "+dir)
}

func TestServeRequiresPresentation(t *testing.T) {
	cfg := config.Default()
	root := newRootCommand(&cfg)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"serve", "--cache-dir", t.TempDir()})

	assert.ErrorIs(t, root.Execute(), errNoPresentation)
}

func TestRootRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	root := newRootCommand(&cfg)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"serve", "--port", "0", "-p", "abc"})

	assert.ErrorIs(t, root.Execute(), config.ErrInvalidPort)
}
