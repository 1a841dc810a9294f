package archive

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhinst/zhinst-go/pkg/model"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sub", "archive.db"), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testSnapshot(freq float64) *model.Snapshot {
	return &model.Snapshot{
		Name: "dev8000",
		Submodules: map[string]*model.Snapshot{
			"oscs": {
				Name: "oscs",
				Path: "oscs",
				Channels: []*model.Snapshot{{
					Name: "0",
					Path: "oscs/0",
					Parameters: map[string]*model.ParameterSnapshot{
						"freq": {Name: "freq", Path: "/dev8000/oscs/0/freq", Value: freq, Unit: "Hz"},
					},
				}},
			},
		},
		Parameters: map[string]*model.ParameterSnapshot{
			"fwrevision": {Name: "fwrevision", Value: int64(68431)},
			"devtype":    {Name: "devtype", Value: "HDAWG8"},
		},
	}
}

func TestSaveLatest(t *testing.T) {
	s := openStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := s.Save(&Record{Serial: "DEV8000", Time: base, Snapshot: testSnapshot(1e6)})
	require.NoError(t, err)
	at, err := s.Save(&Record{Serial: "dev8000", Type: "HDAWG8", Time: base.Add(time.Minute), Snapshot: testSnapshot(2e6), Labels: map[string]string{"run": "7"}})
	require.NoError(t, err)
	assert.Equal(t, base.Add(time.Minute), at)

	rec, err := s.Latest("dev8000")
	require.NoError(t, err)
	assert.Equal(t, "dev8000", rec.Serial)
	assert.Equal(t, "HDAWG8", rec.Type)
	assert.Equal(t, base.Add(time.Minute), rec.Time)
	assert.Equal(t, map[string]string{"run": "7"}, rec.Labels)
	assert.Equal(t, 2e6, rec.Snapshot.Submodules["oscs"].Channels[0].Parameters["freq"].Value)
	assert.Equal(t, int64(68431), rec.Snapshot.Parameters["fwrevision"].Value)
	assert.Equal(t, "HDAWG8", rec.Snapshot.Parameters["devtype"].Value)
	assert.Equal(t, 3, rec.Snapshot.Count())
}

func TestSaveErrors(t *testing.T) {
	s := openStore(t)
	_, err := s.Save(&Record{Serial: "dev1", Snapshot: nil})
	assert.ErrorIs(t, err, ErrNilSnapshot)
	_, err = s.Save(&Record{Snapshot: &model.Snapshot{}})
	assert.ErrorIs(t, err, ErrEmptySerial)

	_, err = s.Latest("dev1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSameInstant(t *testing.T) {
	s := openStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 500, time.UTC)

	t1, err := s.Save(&Record{Serial: "dev1", Time: now, Snapshot: &model.Snapshot{Name: "a"}})
	require.NoError(t, err)
	t2, err := s.Save(&Record{Serial: "dev1", Time: now, Snapshot: &model.Snapshot{Name: "b"}})
	require.NoError(t, err)
	assert.Equal(t, now, t1)
	assert.Equal(t, now.Add(time.Nanosecond), t2)

	entries, err := s.List("dev1")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestAtAndRange(t *testing.T) {
	s := openStore(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := s.Save(&Record{Serial: "dev1", Time: base.Add(time.Duration(i) * time.Hour), Snapshot: &model.Snapshot{Name: string(rune('a' + i))}})
		require.NoError(t, err)
	}

	tests := []struct {
		at   time.Time
		want string
		err  error
	}{
		{base, "a", nil},
		{base.Add(90 * time.Minute), "b", nil},
		{base.Add(4 * time.Hour), "e", nil},
		{base.Add(48 * time.Hour), "e", nil},
		{base.Add(-time.Second), "", ErrNotFound},
	}
	for _, tt := range tests {
		rec, err := s.At("dev1", tt.at)
		if tt.err != nil {
			if !errors.Is(err, tt.err) {
				t.Errorf("At(%v) error = %v, want %v", tt.at, err, tt.err)
			}
			continue
		}
		require.NoError(t, err)
		if rec.Snapshot.Name != tt.want {
			t.Errorf("At(%v) = %q, want %q", tt.at, rec.Snapshot.Name, tt.want)
		}
	}

	var names []string
	err := s.Range("dev1", base.Add(time.Hour), base.Add(3*time.Hour), func(r *Record) error {
		names = append(names, r.Snapshot.Name)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, names)

	names = nil
	require.NoError(t, s.Range("dev1", base.Add(3*time.Hour), time.Time{}, func(r *Record) error {
		names = append(names, r.Snapshot.Name)
		return nil
	}))
	assert.Equal(t, []string{"d", "e"}, names)

	stop := errors.New("stop")
	count := 0
	err = s.Range("dev1", time.Time{}, time.Time{}, func(*Record) error {
		count++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, count)
}

func TestTimeBounds(t *testing.T) {
	s := openStore(t)
	_, err := s.Save(&Record{Serial: "dev1", Time: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), Snapshot: &model.Snapshot{Name: "a"}})
	require.NoError(t, err)

	count := 0
	require.NoError(t, s.Range("dev1", time.Time{}, time.Time{}, func(*Record) error {
		count++
		return nil
	}))
	if count != 1 {
		t.Errorf("Range(zero, zero) visited %d records, want 1", count)
	}

	_, err = s.At("dev1", time.Time{})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Save(&Record{Serial: "dev1", Time: time.Date(1969, 12, 31, 0, 0, 0, 0, time.UTC), Snapshot: &model.Snapshot{}})
	assert.ErrorIs(t, err, ErrTimeRange)

	entries, err := s.List("dev1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPruneAndDelete(t *testing.T) {
	s := openStore(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		_, err := s.Save(&Record{Serial: "dev1", Time: base.Add(time.Duration(i) * time.Second), Snapshot: &model.Snapshot{}})
		require.NoError(t, err)
	}
	_, err := s.Save(&Record{Serial: "dev2", Time: base, Snapshot: &model.Snapshot{}})
	require.NoError(t, err)

	devices, err := s.Devices()
	require.NoError(t, err)
	assert.Equal(t, []string{"dev1", "dev2"}, devices)

	n, err := s.Prune("dev1", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	entries, err := s.List("dev1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, base.Add(3*time.Second), entries[0].Time)

	n, err = s.Prune("nosuch", 1)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, s.Delete("dev1"))
	require.NoError(t, s.Delete("dev1"))
	devices, err = s.Devices()
	require.NoError(t, err)
	assert.Equal(t, []string{"dev2"}, devices)
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	s, err := Open(path, Options{})
	require.NoError(t, err)
	_, err = s.SaveSnapshot("dev1234", &model.Snapshot{Name: "dev1234"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	ro, err := Open(path, Options{ReadOnly: true})
	require.NoError(t, err)
	defer ro.Close()
	rec, err := ro.Latest("DEV1234")
	require.NoError(t, err)
	assert.Equal(t, "dev1234", rec.Snapshot.Name)
}
