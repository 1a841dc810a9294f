package archive

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/zhinst/zhinst-go/pkg/model"
	"github.com/zhinst/zhinst-go/pkg/wire"
)

// RecordVersion is the current version of the record format.
const RecordVersion = 1

// BucketPrefix prefixes every device bucket.
const BucketPrefix = "snapshots_"

// Archive errors.
var (
	ErrNotFound      = errors.New("no snapshot found")
	ErrEmptySerial   = errors.New("serial is empty")
	ErrNilSnapshot   = errors.New("snapshot is nil")
	ErrRecordVersion = errors.New("unsupported record version")
	ErrTimeRange     = errors.New("time outside the archive range")
)

// Records can be stored between the Unix epoch and the end of UnixNano.
var (
	minTime = time.Unix(0, 0).UTC()
	maxTime = time.Unix(0, math.MaxInt64).UTC()
)

// Record is one archived snapshot.
type Record struct {
	// Version is the record format version.
	Version int `cbor:"version"`

	// Serial is the device the snapshot was taken from.
	Serial string `cbor:"serial"`

	// Type is the device type, if known.
	Type string `cbor:"type,omitempty"`

	// Time is when the snapshot was taken.
	Time time.Time `cbor:"time"`

	// Labels are free-form annotations such as the user or the run.
	Labels map[string]string `cbor:"labels,omitempty"`

	Snapshot *model.Snapshot `cbor:"snapshot"`
}

// Entry is the index entry of a record, without the snapshot payload.
type Entry struct {
	Serial string
	Time   time.Time
	Size   int
}

// Options configures Open.
type Options struct {
	// Timeout bounds waiting for the file lock. Default 1s.
	Timeout time.Duration

	// ReadOnly opens the database with a shared lock.
	ReadOnly bool

	// Logger is optional.
	Logger *slog.Logger
}

// Store is a snapshot archive.
type Store struct {
	db     *bbolt.DB
	logger *slog.Logger
}

// Open opens or creates the archive at path.
func Open(path string, opts Options) (*Store, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = time.Second
	}
	if !opts.ReadOnly {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: opts.Timeout, ReadOnly: opts.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	return &Store{db: db, logger: opts.Logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file.
func (s *Store) Path() string {
	return s.db.Path()
}

func (s *Store) debugLog(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

// BucketName returns the bucket of a device.
func BucketName(serial string) []byte {
	return []byte(BucketPrefix + strings.ToLower(serial))
}

// timeKey clamps t to the archive range so that keys sort by time.
func timeKey(t time.Time) []byte {
	var n int64
	switch {
	case t.Before(minTime):
		n = 0
	case t.After(maxTime):
		n = math.MaxInt64
	default:
		n = t.UnixNano()
	}
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(n))
	return k
}

func keyTime(k []byte) time.Time {
	return time.Unix(0, int64(binary.BigEndian.Uint64(k))).UTC()
}

// Save stores rec. A zero Time is set to now. When another record exists
// at the same nanosecond the time is moved forward until the key is free.
// It returns the time the record was stored under.
func (s *Store) Save(rec *Record) (time.Time, error) {
	if rec.Snapshot == nil {
		return time.Time{}, ErrNilSnapshot
	}
	serial := strings.ToLower(rec.Serial)
	if serial == "" {
		return time.Time{}, ErrEmptySerial
	}
	rec.Serial = serial
	rec.Version = RecordVersion
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}
	rec.Time = rec.Time.UTC()
	if rec.Time.Before(minTime) || rec.Time.After(maxTime) {
		return time.Time{}, fmt.Errorf("%w: %s", ErrTimeRange, rec.Time)
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(BucketName(serial))
		if err != nil {
			return err
		}
		key := timeKey(rec.Time)
		for b.Get(key) != nil {
			rec.Time = rec.Time.Add(time.Nanosecond)
			key = timeKey(rec.Time)
		}
		data, err := wire.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		return b.Put(key, data)
	})
	if err != nil {
		return time.Time{}, err
	}
	s.debugLog("archive: saved snapshot", "serial", serial, "time", rec.Time, "parameters", rec.Snapshot.Count())
	return rec.Time, nil
}

// SaveSnapshot stores snap for serial at the current time.
func (s *Store) SaveSnapshot(serial string, snap *model.Snapshot) (time.Time, error) {
	return s.Save(&Record{Serial: serial, Snapshot: snap})
}

// decodeRecord restores the record time from its key; the encoded time only
// has second resolution.
func decodeRecord(k, data []byte) (*Record, error) {
	rec := &Record{}
	if err := wire.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if rec.Version != RecordVersion {
		return nil, fmt.Errorf("%w: %d", ErrRecordVersion, rec.Version)
	}
	rec.Time = keyTime(k)
	return rec, nil
}

// Latest returns the newest record of a device.
func (s *Store) Latest(serial string) (*Record, error) {
	var rec *Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(BucketName(serial))
		if b == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, serial)
		}
		k, v := b.Cursor().Last()
		if k == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, serial)
		}
		var err error
		rec, err = decodeRecord(k, v)
		return err
	})
	return rec, err
}

// At returns the newest record taken at or before t.
func (s *Store) At(serial string, t time.Time) (*Record, error) {
	var rec *Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(BucketName(serial))
		if b == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, serial)
		}
		target := timeKey(t)
		c := b.Cursor()
		if first, _ := c.First(); first == nil || bytes.Compare(first, target) > 0 {
			return fmt.Errorf("%w: %s at %s", ErrNotFound, serial, t.Format(time.RFC3339))
		}
		k, v := c.Seek(target)
		switch {
		case k == nil:
			k, v = c.Last()
		case !bytes.Equal(k, target):
			k, v = c.Prev()
		}
		var err error
		rec, err = decodeRecord(k, v)
		return err
	})
	return rec, err
}

// Range calls fn for every record of a device with from <= time < to, in
// time order. A zero to means no upper bound. Returning an error from fn
// stops the iteration.
func (s *Store) Range(serial string, from, to time.Time, fn func(*Record) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(BucketName(serial))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		var end []byte
		if !to.IsZero() {
			end = timeKey(to)
		}
		for k, v := c.Seek(timeKey(from)); k != nil; k, v = c.Next() {
			if end != nil && bytes.Compare(k, end) >= 0 {
				break
			}
			rec, err := decodeRecord(k, v)
			if err != nil {
				return err
			}
			if err := fn(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// List returns the index of a device's records, oldest first.
func (s *Store) List(serial string) ([]Entry, error) {
	var out []Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(BucketName(serial))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			out = append(out, Entry{Serial: strings.ToLower(serial), Time: keyTime(k), Size: len(v)})
			return nil
		})
	})
	return out, err
}

// Devices returns the serials with at least one bucket, sorted.
func (s *Store) Devices() ([]string, error) {
	var out []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bbolt.Bucket) error {
			if serial, ok := strings.CutPrefix(string(name), BucketPrefix); ok {
				out = append(out, serial)
			}
			return nil
		})
	})
	sort.Strings(out)
	return out, err
}

// Prune deletes the oldest records of a device so that at most keep remain.
// It returns the number of deleted records.
func (s *Store) Prune(serial string, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	deleted := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(BucketName(serial))
		if b == nil {
			return nil
		}
		excess := b.Stats().KeyN - keep
		c := b.Cursor()
		for k, _ := c.First(); k != nil && deleted < excess; k, _ = c.First() {
			if err := c.Delete(); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if deleted > 0 {
		s.debugLog("archive: pruned", "serial", serial, "deleted", deleted)
	}
	return deleted, err
}

// Delete removes every record of a device.
func (s *Store) Delete(serial string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		err := tx.DeleteBucket(BucketName(serial))
		if errors.Is(err, bbolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
}
