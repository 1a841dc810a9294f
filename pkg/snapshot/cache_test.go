package snapshot

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zhinst/zhinst-go/pkg/connection"
	"github.com/zhinst/zhinst-go/pkg/connection/mocks"
	"github.com/zhinst/zhinst-go/pkg/model"
)

func newParam(conn connection.DeviceConnection, cache *Cache, name, path string) *model.Parameter {
	return model.NewParameter(model.ParameterConfig{
		Metadata: model.ParameterMetadata{Name: name, Path: path, SnapshotGet: true, SnapshotValue: true},
		Get:      func(ctx context.Context) (any, error) { return conn.Get(ctx, path) },
		Batch:    cache,
	})
}

// buildTree returns dev1234 {sigouts[0,1]{on}, system{fwrevision}}.
func buildTree(t *testing.T, conn connection.DeviceConnection, cache *Cache) *model.Container {
	t.Helper()
	root := model.NewContainer("dev1234", "", cache)
	list := model.NewIndexedList("sigouts", "sigouts", cache)
	for i, path := range []string{"/DEV1234/SIGOUTS/0/ON", "/DEV1234/SIGOUTS/1/ON"} {
		item := model.NewContainer("sigouts"+string(rune('0'+i)), "sigouts/"+string(rune('0'+i)), cache)
		require.NoError(t, item.AddParameter(newParam(conn, cache, "on", path)))
		require.NoError(t, list.Append(i, item))
	}
	list.Seal()
	require.NoError(t, root.AddSubmodule("sigouts", list))

	system := model.NewContainer("system", "system", cache)
	require.NoError(t, system.AddParameter(newParam(conn, cache, "fwrevision", "/DEV1234/SYSTEM/FWREVISION")))
	require.NoError(t, root.AddSubmodule("system", system))
	return root
}

func bulkEntry(v any) map[string]any {
	return map[string]any{"timestamp": uint64(1234), "value": []any{v}}
}

func TestPattern(t *testing.T) {
	tests := []struct {
		prefix, name, want string
	}{
		{"dev1234", "", "/dev1234/*"},
		{"DEV1234", "sigouts/0", "/dev1234/sigouts/0/*"},
		{"daq", "grid", "/daq/grid/*"},
		{"", "", "/*"},
		{"", "zi", "/zi/*"},
	}
	for _, tt := range tests {
		c := New(nil, Config{Prefix: tt.prefix})
		if got := c.Pattern(tt.name); got != tt.want {
			t.Errorf("Pattern(%q) with prefix %q = %q, want %q", tt.name, tt.prefix, got, tt.want)
		}
	}

	if got := New(nil, Config{Module: true}).Options(); got != (connection.GetOptions{Flat: true}) {
		t.Errorf("module Options() = %+v, want flat only", got)
	}
	if got := New(nil, Config{}).Options(); got != connection.DeviceGetOptions() {
		t.Errorf("device Options() = %+v, want %+v", got, connection.DeviceGetOptions())
	}
}

func TestSnapshotSingleBulkRead(t *testing.T) {
	conn := mocks.NewMockDeviceConnection(t)
	cache := New(conn, Config{Prefix: "dev1234"})
	root := buildTree(t, conn, cache)

	conn.EXPECT().GetBulk(mock.Anything, "/dev1234/*", connection.DeviceGetOptions()).Return(map[string]any{
		"/dev1234/sigouts/0/on":      bulkEntry(int64(1)),
		"/dev1234/sigouts/1/on":      bulkEntry(int64(0)),
		"/dev1234/system/fwrevision": bulkEntry(int32(67225)),
	}, nil).Once()

	snap, err := root.Snapshot(context.Background(), true)
	require.NoError(t, err)
	assert.False(t, cache.Running())

	assert.Equal(t, int64(1), snap.Submodules["sigouts"].Channels[0].Parameters["on"].Value)
	assert.Equal(t, int64(0), snap.Submodules["sigouts"].Channels[1].Parameters["on"].Value)
	assert.Equal(t, int64(67225), snap.Submodules["system"].Parameters["fwrevision"].Value)
}

func TestSubtreeSnapshotUsesSubPattern(t *testing.T) {
	conn := mocks.NewMockDeviceConnection(t)
	cache := New(conn, Config{Prefix: "dev1234"})
	root := buildTree(t, conn, cache)
	list, err := root.List("sigouts")
	require.NoError(t, err)
	item, err := list.At(1)
	require.NoError(t, err)

	conn.EXPECT().GetBulk(mock.Anything, "/dev1234/sigouts/1/*", mock.Anything).Return(map[string]any{
		"/dev1234/sigouts/1/on": []any{int64(1)},
	}, nil).Once()

	snap, err := item.Snapshot(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Parameters["on"].Value)
}

func TestIndividualGetsOutsideScope(t *testing.T) {
	conn := mocks.NewMockDeviceConnection(t)
	cache := New(conn, Config{Prefix: "dev1234"})
	root := buildTree(t, conn, cache)

	conn.EXPECT().Get(mock.Anything, mock.Anything).Return(int64(0), nil).Times(3)

	ctx := context.Background()
	for _, p := range model.Parameters(root) {
		_, err := p.Get(ctx)
		require.NoError(t, err)
	}
}

func TestMissingEntriesFallBack(t *testing.T) {
	conn := mocks.NewMockDeviceConnection(t)
	cache := New(conn, Config{Prefix: "dev1234"})
	root := buildTree(t, conn, cache)

	conn.EXPECT().GetBulk(mock.Anything, mock.Anything, mock.Anything).Return(map[string]any{
		"/dev1234/sigouts/0/on": bulkEntry(int64(1)),
		"/dev1234/sigouts/1/on": bulkEntry(int64(1)),
	}, nil).Once()
	conn.EXPECT().Get(mock.Anything, "/DEV1234/SYSTEM/FWREVISION").Return(int64(70000), nil).Once()

	snap, err := root.Snapshot(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, int64(70000), snap.Submodules["system"].Parameters["fwrevision"].Value)
}

func TestBulkFailureTearsDown(t *testing.T) {
	conn := mocks.NewMockDeviceConnection(t)
	cache := New(conn, Config{Prefix: "dev1234"})
	root := buildTree(t, conn, cache)

	boom := errors.New("connection reset")
	conn.EXPECT().GetBulk(mock.Anything, mock.Anything, mock.Anything).Return(nil, boom).Once()

	_, err := root.Snapshot(context.Background(), true)
	assert.Equal(t, boom, err, "connection error is returned unchanged")
	assert.False(t, cache.Running())

	conn.EXPECT().GetBulk(mock.Anything, mock.Anything, mock.Anything).Return(map[string]any{
		"/dev1234/sigouts/0/on":      bulkEntry(int64(1)),
		"/dev1234/sigouts/1/on":      bulkEntry(int64(1)),
		"/dev1234/system/fwrevision": bulkEntry(int64(1)),
	}, nil).Once()
	_, err = root.Snapshot(context.Background(), true)
	assert.NoError(t, err)
}

func TestCacheIsolation(t *testing.T) {
	fx, err := connection.LoadFixture("../../testdata/sim.yaml")
	require.NoError(t, err)
	sim := connection.NewSimulator(fx, connection.SimulatorConfig{})
	cache := New(sim, Config{Prefix: "dev8000"})
	root := model.NewContainer("dev8000", "", cache)
	p := newParam(sim, cache, "ready", "/DEV8000/AWGS/0/READY")
	require.NoError(t, root.AddParameter(p))

	ctx := context.Background()
	snap, err := root.Snapshot(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Parameters["ready"].Value)

	sim.SetValue("/dev8000/awgs/0/ready", 0)
	v, err := p.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, v, "get after the scope reads the device, not the batch")

	counts := sim.Counts()
	assert.Equal(t, 1, counts.GetBulk)
	assert.Equal(t, 1, counts.Get)
}

func TestComplexSample(t *testing.T) {
	for name, entry := range map[string]any{
		"timestamped": bulkEntry(complex(1, 2)),
		"bare":        []any{complex64(complex(1, 2))},
	} {
		t.Run(name, func(t *testing.T) {
			conn := mocks.NewMockDeviceConnection(t)
			cache := New(conn, Config{Prefix: "dev1234"})
			root := model.NewContainer("dev1234", "", cache)
			demod := model.NewContainer("demods0", "demods/0", cache)
			require.NoError(t, demod.AddParameter(newParam(conn, cache, "sample", "/DEV1234/DEMODS/0/SAMPLE")))
			require.NoError(t, root.AddSubmodule("demods0", demod))

			conn.EXPECT().GetBulk(mock.Anything, mock.Anything, mock.Anything).Return(map[string]any{
				"/dev1234/demods/0/sample": entry,
			}, nil).Once()

			snap, err := root.Snapshot(context.Background(), true)
			require.NoError(t, err)
			assert.Equal(t, "(1+2j)", snap.Submodules["demods0"].Parameters["sample"].Value)
		})
	}
}

func TestBatchTimestamp(t *testing.T) {
	conn := mocks.NewMockDeviceConnection(t)
	cache := New(conn, Config{Prefix: "dev1234"})
	root := buildTree(t, conn, cache)

	conn.EXPECT().GetBulk(mock.Anything, mock.Anything, mock.Anything).Return(map[string]any{
		"/dev1234/sigouts/0/on":      bulkEntry(int64(1)),
		"/dev1234/sigouts/1/on":      bulkEntry(int64(1)),
		"/dev1234/system/fwrevision": bulkEntry(int64(1)),
	}, nil).Once()

	before := time.Now()
	_, err := root.Snapshot(context.Background(), true)
	require.NoError(t, err)

	var stamps []time.Time
	for _, p := range model.Parameters(root) {
		_, ts, ok := p.Cached()
		require.True(t, ok)
		stamps = append(stamps, ts)
	}
	for _, ts := range stamps[1:] {
		assert.Equal(t, stamps[0], ts, "all values share the batch timestamp")
	}
	assert.False(t, stamps[0].Before(before))
}

func TestScopedReentrant(t *testing.T) {
	conn := mocks.NewMockDeviceConnection(t)
	cache := New(conn, Config{Prefix: "dev1234"})
	conn.EXPECT().GetBulk(mock.Anything, "/dev1234/*", mock.Anything).Return(map[string]any{}, nil).Once()

	ctx := context.Background()
	err := cache.Scoped(ctx, "", func(ctx context.Context) error {
		assert.True(t, cache.Running())
		return cache.Scoped(ctx, "sigouts", func(ctx context.Context) error {
			owner, err := cache.Begin(ctx, "system")
			assert.False(t, owner)
			cache.End(owner)
			assert.True(t, cache.Running(), "non-owner End keeps the scope open")
			return err
		})
	})
	require.NoError(t, err)
	assert.False(t, cache.Running())
}

func TestUnwrap(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want any
		ok   bool
	}{
		{"timestamped", map[string]any{"timestamp": 1, "value": []any{3.5, 9}}, 3.5, true},
		{"any-keyed", map[any]any{"value": []any{"on"}}, "on", true},
		{"bare", []any{int64(7)}, int64(7), true},
		{"typed", map[string]any{"value": []float64{1.5}}, 1.5, true},
		{"empty", []any{}, nil, false},
		{"no value key", map[string]any{"x": 1}, nil, false},
		{"scalar", 5, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Unwrap(tt.raw)
			if ok != tt.ok || got != tt.want {
				t.Errorf("Unwrap() = %v, %v, want %v, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

type fakeRecorder struct {
	snapshots int
	hits      int
	misses    int
}

func (r *fakeRecorder) ObserveSnapshot(prefix string, d time.Duration, nodes int, err error) {
	r.snapshots++
}

func (r *fakeRecorder) ObserveSnapshotRead(prefix string, hit bool) {
	if hit {
		r.hits++
	} else {
		r.misses++
	}
}

func TestRecorder(t *testing.T) {
	conn := mocks.NewMockDeviceConnection(t)
	rec := &fakeRecorder{}
	cache := New(conn, Config{Prefix: "dev1234", Recorder: rec})
	root := buildTree(t, conn, cache)

	conn.EXPECT().GetBulk(mock.Anything, mock.Anything, mock.Anything).Return(map[string]any{
		"/dev1234/sigouts/0/on": bulkEntry(int64(1)),
	}, nil).Once()
	conn.EXPECT().Get(mock.Anything, mock.Anything).Return(int64(0), nil).Twice()

	_, err := root.Snapshot(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.snapshots)
	assert.Equal(t, 1, rec.hits)
	assert.Equal(t, 2, rec.misses)
}

func TestPrintReadable(t *testing.T) {
	root := model.NewContainer("dev1", "", nil)
	add := func(c *model.Container, name, unit string, value any, snapValue bool) {
		p := model.NewParameter(model.ParameterConfig{
			Metadata: model.ParameterMetadata{Name: name, Unit: unit, SnapshotValue: snapValue},
		})
		if value != nil {
			p.UpdateCache(value, time.Now())
		}
		require.NoError(t, c.AddParameter(p))
	}
	add(root, "rate", "1/s", 1674.1, true)
	add(root, "on", "", int64(1), true)
	add(root, "label", "", "x", false)

	list := model.NewIndexedList("sigouts", "sigouts", nil)
	item := model.NewContainer("sigouts0", "sigouts/0", nil)
	add(item, "on", "", int64(0), true)
	require.NoError(t, list.Append(0, item))
	list.Seal()
	require.NoError(t, root.AddSubmodule("sigouts", list))

	system := model.NewContainer("system", "system", nil)
	add(system, "fwrevision", "", int64(67225), true)
	require.NoError(t, system.AddSubmodule("empty", model.NewContainer("empty", "system/empty", nil)))
	require.NoError(t, root.AddSubmodule("system", system))

	var buf bytes.Buffer
	require.NoError(t, PrintReadable(context.Background(), &buf, root, false, 80))

	dashes := "\t" + strings.Repeat("-", 72)
	want := strings.Join([]string{
		"dev1:",
		"\tparameter: value",
		dashes,
		"\tlabel :\tNot available ",
		"\ton    :\t1 ",
		"\trate  :\t1674.1 (1/s)",
		"dev1_sigouts0:",
		"\tparameter: value",
		dashes,
		"\ton :\t0 ",
		"dev1_system:",
		"\tparameter  : value",
		dashes,
		"\tfwrevision :\t67225 ",
		"dev1_system_empty:",
		"\tparameter " + strings.Repeat(" ", 80-len("\tparameter ")) + "value",
		strings.Repeat("-", 80),
		"no parameters",
	}, "\n") + "\n"
	assert.Equal(t, want, buf.String())

	buf.Reset()
	require.NoError(t, PrintReadable(context.Background(), &buf, root, false, 20))
	assert.Contains(t, buf.String(), "\trate  :\t1674.1 (...\n")

	buf.Reset()
	require.NoError(t, PrintReadable(context.Background(), &buf, root, false, -1))
	assert.Contains(t, buf.String(), "\trate  :\t1674.1 (1/s)\n")
}
