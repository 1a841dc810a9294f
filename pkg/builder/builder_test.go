package builder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhinst/zhinst-go/pkg/connection"
	"github.com/zhinst/zhinst-go/pkg/model"
	"github.com/zhinst/zhinst-go/pkg/nodetree"
	"github.com/zhinst/zhinst-go/pkg/snapshot"
)

func newSimulator(t *testing.T) *connection.Simulator {
	t.Helper()
	fx, err := connection.LoadFixture("../../testdata/sim.yaml")
	require.NoError(t, err)
	return connection.NewSimulator(fx, connection.SimulatorConfig{})
}

func buildDevice(t *testing.T, sim *connection.Simulator, serial string, cfg Config) (*model.Container, Stats) {
	t.Helper()
	nodes, err := sim.ListNodes(context.Background(), "/"+serial+"/*")
	require.NoError(t, err)

	cfg.Prefix = serial
	cfg.Conn = sim
	root := model.NewContainer(serial, "", cfg.Batch)
	stats, err := BuildNodes(root, nodes, cfg)
	require.NoError(t, err)
	return root, stats
}

func TestBuildEnumeratedBranchesBecomeLists(t *testing.T) {
	sim := newSimulator(t)
	root, stats := buildDevice(t, sim, "dev8000", Config{})

	sigouts, err := root.List("sigouts")
	require.NoError(t, err)
	assert.True(t, sigouts.Sealed())
	if sigouts.Len() != 2 {
		t.Fatalf("sigouts.Len() = %d, want 2", sigouts.Len())
	}
	for i, item := range sigouts.Items() {
		want := []string{"sigouts0", "sigouts1"}[i]
		if item.Name() != want {
			t.Errorf("item %d name = %q, want %q", i, item.Name(), want)
		}
		_, err := item.Parameter("on")
		assert.NoError(t, err)
	}

	waveform, err := model.Find(root, "awgs", "0", "waveform")
	require.NoError(t, err)
	c := waveform.(*model.Container)
	_, err = c.Parameter("waves0")
	assert.NoError(t, err, "enumerated leaves should be flat parameters")

	// Every node becomes exactly one parameter.
	if stats.Parameters != 9 {
		t.Errorf("stats.Parameters = %d, want 9", stats.Parameters)
	}
	assert.Len(t, model.Parameters(root), 9)
	assert.Zero(t, stats.Failures)
}

func TestBuildSetsThroughConnection(t *testing.T) {
	ctx := context.Background()
	sim := newSimulator(t)
	root, _ := buildDevice(t, sim, "dev8000", Config{})

	p, err := model.FindParameter(root, "sigouts", "0", "on")
	require.NoError(t, err)
	require.NoError(t, p.Set(ctx, 1))

	calls := sim.SetCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, connection.SetCall{Path: "/DEV8000/SIGOUTS/0/ON", Value: 1}, calls[0])

	v, err := p.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestBuildAccessGating(t *testing.T) {
	ctx := context.Background()
	sim := newSimulator(t)
	root, _ := buildDevice(t, sim, "dev8000", Config{})

	tests := []struct {
		segs     []string
		readable bool
		writable bool
	}{
		{[]string{"awgs", "0", "single"}, false, true},
		{[]string{"awgs", "0", "ready"}, true, false},
		{[]string{"oscs", "1", "freq"}, true, true},
		{[]string{"system", "fwrevision"}, true, false},
	}
	for _, tt := range tests {
		p, err := model.FindParameter(root, tt.segs...)
		require.NoError(t, err, tt.segs)
		if p.Readable() != tt.readable {
			t.Errorf("%v Readable() = %v, want %v", tt.segs, p.Readable(), tt.readable)
		}
		if p.Writable() != tt.writable {
			t.Errorf("%v Writable() = %v, want %v", tt.segs, p.Writable(), tt.writable)
		}
	}

	single, _ := model.FindParameter(root, "awgs", "0", "single")
	_, err := single.Get(ctx)
	assert.ErrorIs(t, err, model.ErrNotReadable)

	ready, _ := model.FindParameter(root, "awgs", "0", "ready")
	assert.ErrorIs(t, ready.Set(ctx, 0), model.ErrNotWritable)
	assert.Zero(t, sim.Counts().Set)
}

func TestBuildMetadata(t *testing.T) {
	sim := newSimulator(t)
	root, _ := buildDevice(t, sim, "dev1234", Config{})

	tests := []struct {
		segs     []string
		unit     string
		domain   model.Domain
		snapshot bool
	}{
		{[]string{"demods", "0", "sample"}, "", model.DomainComplex, false},
		{[]string{"demods", "0", "rate"}, "1/s", model.DomainAny, true},
		{[]string{"system", "fwlog"}, "", model.DomainAny, false},
		{[]string{"system", "fwrevision"}, "", model.DomainAny, true},
		{[]string{"scopes", "0", "wave"}, "", model.DomainAny, false},
		{[]string{"triggers", "in", "0", "level"}, "V", model.DomainAny, true},
		{[]string{"sigouts", "0", "enables", "1"}, "", model.DomainAny, true},
	}
	for _, tt := range tests {
		p, err := model.FindParameter(root, tt.segs...)
		require.NoError(t, err, tt.segs)
		meta := p.Metadata()
		if meta.Unit != tt.unit {
			t.Errorf("%v unit = %q, want %q", tt.segs, meta.Unit, tt.unit)
		}
		if meta.Domain != tt.domain {
			t.Errorf("%v domain = %v, want %v", tt.segs, meta.Domain, tt.domain)
		}
		if meta.SnapshotGet != tt.snapshot || meta.SnapshotValue != tt.snapshot {
			t.Errorf("%v snapshot = %v/%v, want %v", tt.segs, meta.SnapshotGet, meta.SnapshotValue, tt.snapshot)
		}
	}

	on, _ := model.FindParameter(root, "sigouts", "0", "on")
	meta := on.Metadata()
	assert.Equal(t, "Enables the signal output.", meta.Label)
	assert.Equal(t, "/DEV1234/SIGOUTS/0/ON", meta.Path)
	assert.Contains(t, meta.Doc, "Enables the signal output.")
}

func TestBuildBlacklistAndKeys(t *testing.T) {
	sim := newSimulator(t)

	root, stats := buildDevice(t, sim, "dev8000", Config{Blacklist: []string{"/awgs", "oscs/1"}})
	assert.False(t, root.Has("awgs"))
	oscs, err := root.List("oscs")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, oscs.Indices())
	if stats.Skipped != 4 {
		t.Errorf("stats.Skipped = %d, want 4", stats.Skipped)
	}

	root, _ = buildDevice(t, sim, "dev8000", Config{Keys: []string{"SIGOUTS", "system"}})
	assert.Equal(t, []string{"sigouts", "system"}, root.Names())
}

func TestInitSubmoduleUnknownKey(t *testing.T) {
	sim := newSimulator(t)
	nodes, err := sim.ListNodes(context.Background(), "/dev1234/*")
	require.NoError(t, err)
	tree, errs := nodetree.Dictify(nodes, "dev1234")
	require.Empty(t, errs)

	root := model.NewContainer("dev1234", "", nil)
	_, err = InitSubmodule(root, tree, "nope", Config{Prefix: "dev1234", Conn: sim})
	assert.ErrorIs(t, err, ErrUnknownKey)
	assert.Empty(t, root.Names())

	stats, err := InitSubmodule(root, tree, "demods", Config{Prefix: "dev1234", Conn: sim})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Parameters)
	assert.Equal(t, []string{"demods"}, root.Names())
}

func TestBuildIrregularTrees(t *testing.T) {
	nodes := map[string]nodetree.Descriptor{
		"/dev1/ch/0":    {Properties: nodetree.PropertyRead},
		"/dev1/ch/1":    {Properties: nodetree.PropertyRead},
		"/dev1/ch0":     {Properties: nodetree.PropertyRead},
		"/dev1/mix/0/a": {Properties: nodetree.PropertyRead},
		"/dev1/mix/b/c": {Properties: nodetree.PropertyRead},
		"/dev1/x/0":     {Properties: nodetree.PropertyRead | nodetree.PropertyWrite},
		"/dev1/x/1/y":   {Properties: nodetree.PropertyRead},
	}
	root := model.NewContainer("dev1", "", nil)
	stats, err := BuildNodes(root, nodes, Config{Prefix: "dev1"})
	require.NoError(t, err)
	assert.Equal(t, 7, stats.Parameters)

	assert.Equal(t, []string{"ch0", "ch1", "ch0_", "mix", "x"}, root.Names())
	renamed, err := Resolve(root, "dev1", "/dev1/ch0")
	require.NoError(t, err)
	if renamed.Name() != "ch0_" {
		t.Errorf("Resolve(/dev1/ch0).Name() = %q, want %q", renamed.Name(), "ch0_")
	}

	mix, err := root.Submodule("mix")
	require.NoError(t, err)
	assert.Equal(t, []string{"_0", "b"}, mix.Names())
	_, err = model.FindParameter(root, "mix", "0", "a")
	assert.NoError(t, err)

	x, err := root.List("x")
	require.NoError(t, err)
	item, err := x.At(0)
	require.NoError(t, err)
	value, err := item.Parameter("value")
	require.NoError(t, err)
	assert.Equal(t, "/dev1/x/0", value.NodePath())
	assert.False(t, value.Readable(), "no connection means no getter")
}

func TestForceListAndFlat(t *testing.T) {
	sim := newSimulator(t)

	root, _ := buildDevice(t, sim, "dev1234", Config{ForceList: []string{"sigouts/*/enables"}})
	enables, err := model.Find(root, "sigouts", "0", "enables")
	require.NoError(t, err)
	list, ok := enables.(*model.IndexedList)
	require.True(t, ok, "enables should be a list")
	assert.Equal(t, 2, list.Len())
	_, err = model.FindParameter(root, "sigouts", "0", "enables", "1", "value")
	assert.NoError(t, err)

	root, _ = buildDevice(t, sim, "dev1234", Config{ForceFlat: []string{"sigouts"}})
	// Not all children are terminal, so the list rule still applies.
	_, err = root.List("sigouts")
	assert.NoError(t, err)
}

func TestResolve(t *testing.T) {
	sim := newSimulator(t)
	root, _ := buildDevice(t, sim, "dev1234", Config{})

	tests := []struct {
		path string
		want string
	}{
		{"/DEV1234/SIGOUTS/0/ON", "on"},
		{"/dev1234/sigouts/0/enables/1", "enables1"},
		{"/dev1234/triggers/in/0/level", "level"},
		{"dev1234/system/fwrevision", "fwrevision"},
	}
	for _, tt := range tests {
		p, err := Resolve(root, "dev1234", tt.path)
		if err != nil {
			t.Errorf("Resolve(%q) error = %v", tt.path, err)
			continue
		}
		if p.Name() != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.path, p.Name(), tt.want)
		}
	}

	_, err := Resolve(root, "dev1234", "/dev1234/sigouts/5/on")
	assert.ErrorIs(t, err, model.ErrNodeNotFound)
}

func TestBuildSnapshotUsesOneBulkRead(t *testing.T) {
	ctx := context.Background()
	sim := newSimulator(t)
	cache := snapshot.New(sim, snapshot.Config{Prefix: "dev1234"})
	root, _ := buildDevice(t, sim, "dev1234", Config{Batch: cache})

	snap, err := root.Snapshot(ctx, true)
	require.NoError(t, err)

	counts := sim.Counts()
	assert.Equal(t, 1, counts.GetBulk)
	assert.Zero(t, counts.Get, "every snapshot read should be served from the bulk result")

	system := snap.Submodules["system"]
	require.NotNil(t, system)
	assert.Equal(t, int64(67225), system.Parameters["fwrevision"].Value)
	assert.Nil(t, system.Parameters["fwlog"].Value)

	rate, err := model.FindParameter(root, "demods", "0", "rate")
	require.NoError(t, err)
	v, ts, ok := rate.Cached()
	require.True(t, ok)
	assert.Equal(t, 1674.1, v)
	assert.False(t, ts.IsZero())
}

type buildRecorder struct {
	prefix string
	stats  Stats
	calls  int
}

func (r *buildRecorder) ObserveBuild(prefix string, stats Stats, d time.Duration) {
	r.prefix = prefix
	r.stats = stats
	r.calls++
}

func TestBuildRecorder(t *testing.T) {
	sim := newSimulator(t)
	rec := &buildRecorder{}
	_, stats := buildDevice(t, sim, "dev1234", Config{Recorder: rec})
	assert.Equal(t, 1, rec.calls)
	assert.Equal(t, "dev1234", rec.prefix)
	assert.Equal(t, stats.Parameters, rec.stats.Parameters)
}

func TestBuildRecorderCountsRejectedNodes(t *testing.T) {
	nodes := map[string]nodetree.Descriptor{
		"/dev1/a":   {Properties: nodetree.PropertyRead},
		"/dev1/a/b": {Properties: nodetree.PropertyRead},
		"/dev1/c":   {Properties: nodetree.PropertyRead},
	}
	rec := &buildRecorder{}
	stats, err := BuildNodes(model.NewContainer("dev1", "", nil), nodes, Config{Prefix: "dev1", Recorder: rec})
	require.NoError(t, err)
	if stats.Failures != 1 {
		t.Errorf("Failures = %d, want 1", stats.Failures)
	}
	if rec.stats.Failures != stats.Failures {
		t.Errorf("recorded Failures = %d, want %d", rec.stats.Failures, stats.Failures)
	}
}

func TestBuildNilRoot(t *testing.T) {
	_, err := Build(nil, nodetree.New(), Config{})
	if !errors.Is(err, ErrNoRoot) {
		t.Errorf("Build(nil) error = %v, want ErrNoRoot", err)
	}
}
