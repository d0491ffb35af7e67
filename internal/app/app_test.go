package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/gridfleet/internal/config"
	"github.com/vk/gridfleet/internal/fleet"
	"github.com/vk/gridfleet/internal/fleet/fleettest"
	"github.com/vk/gridfleet/internal/hcl_adapter"
	"github.com/vk/gridfleet/internal/parallel"
	"github.com/vk/gridfleet/internal/testutil"
)

const fleetHCL = `
project = "shop"

service "db" {
  image = "postgres:16"
}

service "web" {
  image      = "nginx"
  depends_on = ["db"]
}
`

func writeFleet(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gridfleet.hcl")
	require.NoError(t, os.WriteFile(path, []byte(fleetHCL), 0o600))
	return path
}

func loader() config.Loader {
	return config.NewDispatcher(map[string]config.Loader{
		".hcl": hcl_adapter.NewLoader(hcl_adapter.WithEnv(map[string]string{})),
	})
}

func containers(running, paused bool) []*fleet.Container {
	return []*fleet.Container{
		{ID: "1", Name: "shop_db_1", Service: "db", Running: running, Paused: paused},
		{ID: "2", Name: "shop_web_1", Service: "web", Running: running, Paused: paused},
	}
}

func newTestApp(t *testing.T, cfg Config, backend fleet.Backend, opts ...Option) (*App, *bytes.Buffer, *testutil.SafeBuffer) {
	t.Helper()
	if len(cfg.Files) == 0 {
		cfg.Files = []string{writeFleet(t)}
	}
	if cfg.Progress == "" {
		cfg.Progress = ProgressAlways
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "debug"
	}
	valid, err := NewConfig(cfg)
	require.NoError(t, err)

	out := &bytes.Buffer{}
	logs := &testutil.SafeBuffer{}
	t.Cleanup(func() {
		if os.Getenv("GRIDFLEET_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logs.String())
		}
	})
	return NewApp(out, logs, valid, loader(), backend, opts...), out, logs
}

func TestApp_RunStart(t *testing.T) {
	backend := fleettest.NewFakeBackend(containers(false, false)...)
	a, out, _ := newTestApp(t, Config{Command: "up"}, backend)

	require.NoError(t, a.Run(context.Background()))

	calls := backend.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "shop_db_1", calls[0].Container)
	assert.Equal(t, "start", calls[0].Op)
	assert.Contains(t, out.String(), "Starting shop_web_1 ... done\r")
}

func TestApp_RunReportsFailures(t *testing.T) {
	backend := fleettest.NewFakeBackend(containers(true, false)...)
	backend.FailOn("shop_web_1", &parallel.OperationError{Msg: "cannot stop container"})
	a, out, _ := newTestApp(t, Config{Command: "stop", Progress: ProgressNever}, backend)

	err := a.Run(context.Background())
	assert.ErrorIs(t, err, ErrFailed)
	assert.Equal(t, "\nERROR: for shop_web_1  cannot stop container\n", out.String())
}

func TestApp_RunUnexpectedFailure(t *testing.T) {
	backend := fleettest.NewFakeBackend(containers(false, false)...)
	boom := errors.New("connection reset by peer")
	backend.FailOn("shop_db_1", boom)
	a, _, logs := newTestApp(t, Config{Command: "restart"}, backend)

	err := a.Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "restart failed")
	assert.Contains(t, logs.String(), "Unexpected failure.")
}

func TestApp_RunSelectedServices(t *testing.T) {
	backend := fleettest.NewFakeBackend(containers(true, false)...)
	a, _, _ := newTestApp(t, Config{Command: "kill", Services: []string{"web"}, Signal: "SIGTERM"}, backend)

	require.NoError(t, a.Run(context.Background()))
	calls := backend.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "shop_web_1", calls[0].Container)
	assert.Equal(t, "SIGTERM", calls[0].Arg)
}

func TestApp_RunLoadFailure(t *testing.T) {
	backend := fleettest.NewFakeBackend()
	a, _, _ := newTestApp(t, Config{Command: "start", Files: []string{filepath.Join(t.TempDir(), "missing.hcl")}}, backend)

	err := a.Run(context.Background())
	assert.ErrorContains(t, err, "failed to load fleet")
	assert.Empty(t, backend.Calls())
}

type fakeRemote struct {
	mu     sync.Mutex
	calls  []string
	closed bool
}

func (r *fakeRemote) Register(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "register "+name)
	return nil
}

func (r *fakeRemote) Update(name, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "update "+name+" "+status)
	return nil
}

func (r *fakeRemote) Close() error {
	r.closed = true
	return nil
}

func TestApp_RunBroadcastsProgress(t *testing.T) {
	remote := &fakeRemote{}
	var gotURL, gotMessage string
	dial := func(ctx context.Context, url, message string) (RemoteReporter, error) {
		gotURL, gotMessage = url, message
		return remote, nil
	}
	backend := fleettest.NewFakeBackend(containers(true, false)...)
	a, _, _ := newTestApp(t, Config{Command: "pause", NotifyURL: "http://dashboard:3000"}, backend, WithDialer(dial))

	require.NoError(t, a.Run(context.Background()))
	assert.Equal(t, "http://dashboard:3000", gotURL)
	assert.Equal(t, "Pausing", gotMessage)
	assert.Equal(t, []string{
		"register shop_db_1", "register shop_web_1",
		"update shop_web_1 done", "update shop_db_1 done",
	}, remote.calls)
	assert.True(t, remote.closed)
}

func TestApp_RunBroadcastUnavailable(t *testing.T) {
	dial := func(ctx context.Context, url, message string) (RemoteReporter, error) {
		return nil, errors.New("connection refused")
	}
	backend := fleettest.NewFakeBackend(containers(true, true)...)
	a, _, logs := newTestApp(t, Config{Command: "unpause", NotifyURL: "http://dashboard:3000"}, backend, WithDialer(dial))

	require.NoError(t, a.Run(context.Background()))
	assert.Len(t, backend.Calls(), 2)
	assert.Contains(t, logs.String(), "Progress broadcast disabled.")
}

func TestNewConfig(t *testing.T) {
	base := Config{Files: []string{"gridfleet.hcl"}, Command: "start"}

	cfg, err := NewConfig(base)
	require.NoError(t, err)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, ProgressAuto, cfg.Progress)
	assert.Equal(t, fleet.Start, cfg.Operation())

	cfg, err = NewConfig(Config{Files: base.Files, Command: "rm"})
	require.NoError(t, err)
	assert.Equal(t, fleet.Remove, cfg.Operation())

	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"no files", func(c *Config) { c.Files = nil }, "at least one fleet file"},
		{"no command", func(c *Config) { c.Command = "" }, "a command is required"},
		{"unknown command", func(c *Config) { c.Command = "scale" }, `unknown operation "scale"`},
		{"log format", func(c *Config) { c.LogFormat = "xml" }, "invalid log format"},
		{"log level", func(c *Config) { c.LogLevel = "trace" }, "invalid log level"},
		{"timeout", func(c *Config) { c.Timeout = -1 }, "timeout must not be negative"},
		{"signal", func(c *Config) { c.Signal = "SIGBOGUS" }, "unsupported signal"},
		{"progress", func(c *Config) { c.Progress = "sometimes" }, "invalid progress mode"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := base
			tc.mutate(&c)
			_, err := NewConfig(c)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}
