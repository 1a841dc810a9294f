package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

// StateVersion is the current version of the state file format.
const StateVersion = 1

// FileName is the state file name inside the state directory.
const FileName = "zictl-state.json"

// ClientState is the persisted zictl state.
type ClientState struct {
	// Version is the state file format version.
	Version int `json:"version"`

	// SavedAt is when the state was last saved.
	SavedAt time.Time `json:"saved_at"`

	// Servers are the known data servers, most recently used first.
	Servers []ServerRecord `json:"servers,omitempty"`
}

// ServerRecord describes one known data server.
type ServerRecord struct {
	// Address is host:port.
	Address string `json:"address"`

	// Version is the LabOne version reported by the server.
	Version string `json:"version,omitempty"`

	// Serials are the devices last seen behind the server, lower-case.
	Serials []string `json:"serials,omitempty"`

	// Discovered is set when the record came from mDNS.
	Discovered bool `json:"discovered,omitempty"`

	// LastUsedAt is when a command last connected to the server.
	LastUsedAt time.Time `json:"last_used_at,omitempty"`

	// LastSeenAt is when the server was last connected to or discovered.
	LastSeenAt time.Time `json:"last_seen_at"`
}

// Server returns the record for address, or nil.
func (s *ClientState) Server(address string) *ServerRecord {
	for i := range s.Servers {
		if s.Servers[i].Address == address {
			return &s.Servers[i]
		}
	}
	return nil
}

// LastUsed returns the most recently used server, or nil when no command
// has connected yet.
func (s *ClientState) LastUsed() *ServerRecord {
	var last *ServerRecord
	for i := range s.Servers {
		rec := &s.Servers[i]
		if rec.LastUsedAt.IsZero() {
			continue
		}
		if last == nil || rec.LastUsedAt.After(last.LastUsedAt) {
			last = rec
		}
	}
	return last
}

// ServerFor returns the most recently seen server reaching serial, or nil.
func (s *ClientState) ServerFor(serial string) *ServerRecord {
	serial = strings.ToLower(serial)
	var best *ServerRecord
	for i := range s.Servers {
		rec := &s.Servers[i]
		if !slices.Contains(rec.Serials, serial) {
			continue
		}
		if best == nil || rec.LastSeenAt.After(best.LastSeenAt) {
			best = rec
		}
	}
	return best
}

// Upsert merges rec into the state. Zero fields of rec keep the stored
// values. A Discovered flag, once cleared by a direct connection, stays
// cleared.
func (s *ClientState) Upsert(rec ServerRecord) {
	if rec.Serials != nil {
		serials := make([]string, len(rec.Serials))
		for i, serial := range rec.Serials {
			serials[i] = strings.ToLower(serial)
		}
		sort.Strings(serials)
		rec.Serials = serials
	}

	cur := s.Server(rec.Address)
	if cur == nil {
		s.Servers = append(s.Servers, rec)
		s.sort()
		return
	}
	if rec.Version != "" {
		cur.Version = rec.Version
	}
	if rec.Serials != nil {
		cur.Serials = rec.Serials
	}
	if !rec.Discovered {
		cur.Discovered = false
	}
	if rec.LastUsedAt.After(cur.LastUsedAt) {
		cur.LastUsedAt = rec.LastUsedAt
	}
	if rec.LastSeenAt.After(cur.LastSeenAt) {
		cur.LastSeenAt = rec.LastSeenAt
	}
	s.sort()
}

// Forget removes the record for address and reports whether one existed.
func (s *ClientState) Forget(address string) bool {
	n := len(s.Servers)
	s.Servers = slices.DeleteFunc(s.Servers, func(r ServerRecord) bool {
		return r.Address == address
	})
	return len(s.Servers) != n
}

func (s *ClientState) sort() {
	sort.SliceStable(s.Servers, func(i, j int) bool {
		return s.Servers[i].LastUsedAt.After(s.Servers[j].LastUsedAt)
	})
}

// StateStore manages persistence of client state to a JSON file.
type StateStore struct {
	mu   sync.Mutex
	path string
}

// NewStateStore creates a store for the state file at path.
func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

// NewDirStore creates a store for FileName inside dir.
func NewDirStore(dir string) *StateStore {
	return NewStateStore(filepath.Join(dir, FileName))
}

// Path returns the state file path.
func (s *StateStore) Path() string { return s.path }

// Save persists the state to disk.
func (s *StateStore) Save(state *ClientState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(state)
}

func (s *StateStore) save(state *ClientState) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	state.Version = StateVersion
	state.SavedAt = time.Now()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	// Write through a temp file so a crash never leaves half a state file.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load reads the state from disk.
// Returns nil, nil if the file doesn't exist (empty state).
func (s *StateStore) Load() (*ClientState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *StateStore) load() (*ClientState, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	state := &ClientState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, err
	}
	return state, nil
}

// Update loads the state, applies fn and saves the result under one lock.
func (s *StateStore) Update(fn func(state *ClientState)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return err
	}
	if state == nil {
		state = &ClientState{}
	}
	fn(state)
	return s.save(state)
}

// Clear removes the state file.
func (s *StateStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
