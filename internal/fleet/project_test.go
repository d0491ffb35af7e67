package fleet_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/gridfleet/internal/config"
	"github.com/vk/gridfleet/internal/fleet"
	"github.com/vk/gridfleet/internal/fleet/fleettest"
	"github.com/vk/gridfleet/internal/parallel"
	"github.com/vk/gridfleet/internal/testutil"
)

const delay = 20 * time.Millisecond

// shopModel has web and worker depending on db.
func shopModel() *config.Model {
	return &config.Model{
		Project: "shop",
		Services: []*config.Service{
			{Name: "db", Image: "postgres:16", StopTimeout: 30},
			{Name: "web", Image: "nginx", DependsOn: []string{"db"}, StopSignal: "SIGQUIT"},
			{Name: "worker", Image: "app", DependsOn: []string{"db"}},
		},
	}
}

func shopContainers(running bool) []*fleet.Container {
	return []*fleet.Container{
		{ID: "1", Name: "shop_db_1", Service: "db", Running: running},
		{ID: "2", Name: "shop_web_1", Service: "web", Running: running},
		{ID: "3", Name: "shop_worker_1", Service: "worker", Running: running},
	}
}

func newProject(t *testing.T, backend *fleettest.FakeBackend) (*fleet.Project, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	return fleet.NewProject(shopModel(), backend, fleet.Display{Output: out, PollInterval: 5 * time.Millisecond}), out
}

func mustCall(t *testing.T, b *fleettest.FakeBackend, name string) fleettest.Call {
	t.Helper()
	call, ok := b.Call(name)
	require.True(t, ok, "expected a call for %s", name)
	return call
}

func TestProject_StartRunsDependenciesFirst(t *testing.T) {
	ctx, _ := testutil.Context(t)
	backend := fleettest.NewFakeBackend(shopContainers(false)...)
	backend.Delay = delay
	p, out := newProject(t, backend)

	res, err := p.Start(ctx)
	require.NoError(t, err)
	assert.False(t, res.Failed())
	assert.Len(t, res.Containers, 3)

	db := mustCall(t, backend, "shop_db_1")
	web := mustCall(t, backend, "shop_web_1")
	worker := mustCall(t, backend, "shop_worker_1")
	assert.False(t, web.Start.Before(db.End), "web started before db finished")
	assert.False(t, worker.Start.Before(db.End), "worker started before db finished")

	// Siblings run concurrently.
	assert.True(t, web.Start.Before(worker.End) && worker.Start.Before(web.End), "web and worker did not overlap")

	assert.Contains(t, out.String(), "Starting shop_db_1 ... \r\n")
	assert.Contains(t, out.String(), "Starting shop_web_1 ... done\r")
	for _, c := range res.Containers {
		assert.True(t, c.Running)
	}
}

func TestProject_StopRunsDependentsFirst(t *testing.T) {
	ctx, _ := testutil.Context(t)
	backend := fleettest.NewFakeBackend(shopContainers(true)...)
	backend.Delay = delay
	p, out := newProject(t, backend)

	res, err := p.Stop(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, res.Containers, 3)

	db := mustCall(t, backend, "shop_db_1")
	web := mustCall(t, backend, "shop_web_1")
	worker := mustCall(t, backend, "shop_worker_1")
	assert.False(t, db.Start.Before(web.End), "db stopped before web")
	assert.False(t, db.Start.Before(worker.End), "db stopped before worker")

	// Per-service timeouts, with the default for services that set none.
	assert.Equal(t, "30", db.Arg)
	assert.Equal(t, "10", web.Arg)
	assert.Contains(t, out.String(), "Stopping shop_db_1 ... done\r")
}

func TestProject_StopTimeoutOverride(t *testing.T) {
	ctx, _ := testutil.Context(t)
	backend := fleettest.NewFakeBackend(shopContainers(true)...)
	p, _ := newProject(t, backend)

	_, err := p.Stop(ctx, 3, "db")
	require.NoError(t, err)
	calls := backend.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, fleettest.Call{Op: "stop", Container: "shop_db_1", Arg: "3"}, stripTimes(calls[0]))
}

func TestProject_SelectionTreatsOutsideDependenciesAsSatisfied(t *testing.T) {
	ctx, _ := testutil.Context(t)
	backend := fleettest.NewFakeBackend(shopContainers(false)...)
	p, _ := newProject(t, backend)

	res, err := p.Start(ctx, "web")
	require.NoError(t, err)
	require.Len(t, res.Containers, 1)
	assert.Equal(t, "shop_web_1", res.Containers[0].Name)
	assert.Len(t, backend.Calls(), 1)
}

func TestProject_UnknownService(t *testing.T) {
	ctx, _ := testutil.Context(t)
	p, _ := newProject(t, fleettest.NewFakeBackend(shopContainers(false)...))

	_, err := p.Start(ctx, "cache")
	assert.EqualError(t, err, "no such service: cache")
}

func TestProject_ListingFailure(t *testing.T) {
	ctx, _ := testutil.Context(t)
	backend := fleettest.NewFakeBackend()
	backend.FailList(errors.New("daemon unreachable"))
	p, _ := newProject(t, backend)

	_, err := p.Restart(ctx, 0)
	assert.ErrorContains(t, err, "listing containers: daemon unreachable")
}

func TestProject_FailureSkipsDependents(t *testing.T) {
	ctx, _ := testutil.Context(t)
	backend := fleettest.NewFakeBackend(shopContainers(false)...)
	backend.FailOn("shop_db_1", &parallel.OperationError{Msg: "port is already allocated"})
	p, out := newProject(t, backend)

	res, err := p.Start(ctx)
	require.NoError(t, err)
	assert.True(t, res.Failed())
	assert.Empty(t, res.Containers)
	assert.Equal(t, map[string]string{"shop_db_1": "port is already allocated"}, res.Errors)

	calls := backend.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "shop_db_1", calls[0].Container)

	assert.Contains(t, out.String(), "Starting shop_web_1 ... error\r")
	assert.Contains(t, out.String(), "\nERROR: for shop_db_1  port is already allocated\n")
}

func TestProject_RemoveOnlyStoppedContainers(t *testing.T) {
	ctx, _ := testutil.Context(t)
	containers := shopContainers(false)
	containers[1].Running = true
	backend := fleettest.NewFakeBackend(containers...)
	p, out := newProject(t, backend)

	res, err := p.Remove(ctx, fleet.Options{RemoveVolumes: true})
	require.NoError(t, err)
	assert.Len(t, res.Containers, 2)

	_, webTouched := backend.Call("shop_web_1")
	assert.False(t, webTouched)
	assert.Equal(t, "force=false volumes=true", mustCall(t, backend, "shop_db_1").Arg)
	assert.NotContains(t, out.String(), "shop_web_1")
}

func TestProject_KillUsesDefaultSignal(t *testing.T) {
	ctx, _ := testutil.Context(t)
	backend := fleettest.NewFakeBackend(shopContainers(true)...)
	p, _ := newProject(t, backend)

	_, err := p.Kill(ctx, "", "db")
	require.NoError(t, err)
	assert.Equal(t, fleet.DefaultKillSignal, mustCall(t, backend, "shop_db_1").Arg)

	_, err = p.Kill(ctx, "SIGTERM", "web")
	require.NoError(t, err)
	assert.Equal(t, "SIGTERM", mustCall(t, backend, "shop_web_1").Arg)
}

func TestProject_PauseAndUnpause(t *testing.T) {
	ctx, _ := testutil.Context(t)
	containers := shopContainers(true)
	backend := fleettest.NewFakeBackend(containers...)
	p, _ := newProject(t, backend)

	_, err := p.Pause(ctx)
	require.NoError(t, err)
	for _, c := range containers {
		assert.True(t, c.Paused, c.Name)
	}

	_, err = p.Unpause(ctx)
	require.NoError(t, err)
	for _, c := range containers {
		assert.False(t, c.Paused, c.Name)
	}
}

func TestProject_CycleIsRejected(t *testing.T) {
	ctx, _ := testutil.Context(t)
	model := &config.Model{
		Project: "loop",
		Services: []*config.Service{
			{Name: "a", DependsOn: []string{"b"}},
			{Name: "b", DependsOn: []string{"a"}},
		},
	}
	backend := fleettest.NewFakeBackend(
		&fleet.Container{Name: "loop_a_1", Service: "a"},
		&fleet.Container{Name: "loop_b_1", Service: "b"},
	)
	out := &bytes.Buffer{}
	p := fleet.NewProject(model, backend, fleet.Display{Output: out})

	_, err := p.Start(ctx)
	var ce *parallel.CycleError
	require.ErrorAs(t, err, &ce)
	assert.ElementsMatch(t, []string{"loop_a_1", "loop_b_1"}, ce.Names)
	assert.Empty(t, backend.Calls())
	assert.Empty(t, out.String())
}

func TestProject_QuietWritesOnlySummary(t *testing.T) {
	ctx, _ := testutil.Context(t)
	backend := fleettest.NewFakeBackend(shopContainers(false)...)
	backend.FailOn("shop_worker_1", &parallel.OperationError{Msg: "exited"})
	out := &bytes.Buffer{}
	p := fleet.NewProject(shopModel(), backend, fleet.Display{Output: out, Quiet: true, PollInterval: 5 * time.Millisecond})

	_, err := p.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, "\nERROR: for shop_worker_1  exited\n", out.String())
}

func stripTimes(c fleettest.Call) fleettest.Call {
	c.Start, c.End = time.Time{}, time.Time{}
	return c
}

func TestProject_WarnsAboutUnselectedDependents(t *testing.T) {
	ctx, logs := testutil.Context(t)
	backend := fleettest.NewFakeBackend(shopContainers(true)...)
	p, _ := newProject(t, backend)

	_, err := p.Stop(ctx, 0, "db")
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "Dependent service is not selected.")
	assert.Contains(t, logs.String(), "dependent=web")
	assert.Contains(t, logs.String(), "dependent=worker")
}

func TestProject_StopTwiceIsANoOp(t *testing.T) {
	ctx, logs := testutil.Context(t)
	backend := fleettest.NewFakeBackend(shopContainers(true)...)
	p, out := newProject(t, backend)

	res, err := p.Stop(ctx, 0)
	require.NoError(t, err)
	require.False(t, res.Failed())
	require.Len(t, backend.Calls(), 3)

	out.Reset()
	res, err = p.Stop(ctx, 0)
	require.NoError(t, err)
	assert.False(t, res.Failed())
	assert.Empty(t, res.Containers)
	assert.Len(t, backend.Calls(), 3, "already stopped containers must not be stopped again")
	assert.Empty(t, out.String())
	assert.Contains(t, logs.String(), "Skipping containers already in the target state.")
}

func TestProject_StartSkipsRunningContainers(t *testing.T) {
	ctx, _ := testutil.Context(t)
	containers := shopContainers(false)
	containers[0].Running = true
	backend := fleettest.NewFakeBackend(containers...)
	p, out := newProject(t, backend)

	res, err := p.Start(ctx)
	require.NoError(t, err)
	assert.False(t, res.Failed())
	assert.Len(t, res.Containers, 2)

	_, dbTouched := backend.Call("shop_db_1")
	assert.False(t, dbTouched)
	assert.NotContains(t, out.String(), "shop_db_1")
	assert.Contains(t, out.String(), "Starting shop_web_1 ... done\r")
}
