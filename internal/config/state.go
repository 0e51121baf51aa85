package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"dayai/pkg/fsutil"
	"dayai/pkg/logging"
	"dayai/pkg/oauth"
)

// ServerState is what dayai remembers about one server between runs.
type ServerState struct {
	ServerID     string                    `json:"server_id"`
	EndpointURL  string                    `json:"endpoint_url"`
	Registration *oauth.ClientRegistration `json:"registration,omitempty"`
	Tokens       *oauth.TokenSet           `json:"tokens,omitempty"`
	Connected    bool                      `json:"connected"`
	UpdatedAt    time.Time                 `json:"updated_at,omitzero"`
}

// State is the content of state.json.
type State struct {
	Servers map[string]*ServerState `json:"servers"`
}

// ServerIDs returns the known server IDs in sorted order.
func (s *State) ServerIDs() []string {
	ids := make([]string, 0, len(s.Servers))
	for id := range s.Servers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StateStore persists registrations and tokens in a single JSON file that is
// only readable by the current user. Every mutation rewrites the file through
// a temp file and rename so readers never see a partial write.
type StateStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewStateStore creates a store backed by path. The file is created on the
// first write.
func NewStateStore(path string) *StateStore {
	return &StateStore{path: path, now: time.Now}
}

// Path returns the state file location.
func (s *StateStore) Path() string {
	return s.path
}

// Load reads the state file. A missing file yields empty state.
func (s *StateStore) Load() (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Save replaces the whole state file.
func (s *StateStore) Save(state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(state)
}

// Server returns the stored state for id.
func (s *StateStore) Server(id string) (*ServerState, bool, error) {
	state, err := s.Load()
	if err != nil {
		return nil, false, err
	}
	ss, ok := state.Servers[id]
	return ss, ok, nil
}

// PutServer stores ss, replacing any previous entry with the same ID.
func (s *StateStore) PutServer(ss *ServerState) error {
	if ss == nil || ss.ServerID == "" {
		return errors.New("server state requires a server ID")
	}
	return s.update(func(state *State) error {
		ss.UpdatedAt = s.now()
		state.Servers[ss.ServerID] = ss
		return nil
	})
}

// SetRegistration records the client registration for id, creating the
// entry if needed.
func (s *StateStore) SetRegistration(id, endpointURL string, reg *oauth.ClientRegistration) error {
	return s.update(func(state *State) error {
		ss := state.entry(id)
		ss.EndpointURL = endpointURL
		ss.Registration = reg
		ss.UpdatedAt = s.now()
		return nil
	})
}

// UpdateTokens replaces the tokens of an existing entry.
func (s *StateStore) UpdateTokens(id string, tokens *oauth.TokenSet) error {
	return s.update(func(state *State) error {
		ss, ok := state.Servers[id]
		if !ok {
			return fmt.Errorf("no stored state for server %q", id)
		}
		ss.Tokens = tokens.Clone()
		ss.UpdatedAt = s.now()
		return nil
	})
}

// PersistTokens adapts UpdateTokens to the refresh persist callback.
func (s *StateStore) PersistTokens(_ context.Context, serverID string, tokens *oauth.TokenSet) error {
	if err := s.UpdateTokens(serverID, tokens); err != nil {
		return err
	}
	logging.Debug("StateStore", "Persisted refreshed tokens for %s", serverID)
	return nil
}

// SetConnected flips the connected flag of an existing entry.
func (s *StateStore) SetConnected(id string, connected bool) error {
	return s.update(func(state *State) error {
		ss, ok := state.Servers[id]
		if !ok {
			return fmt.Errorf("no stored state for server %q", id)
		}
		ss.Connected = connected
		ss.UpdatedAt = s.now()
		return nil
	})
}

// ClearTokens drops the tokens of id and marks it disconnected. The client
// registration is kept.
func (s *StateStore) ClearTokens(id string) error {
	return s.update(func(state *State) error {
		ss, ok := state.Servers[id]
		if !ok {
			return nil
		}
		ss.Tokens = nil
		ss.Connected = false
		ss.UpdatedAt = s.now()
		return nil
	})
}

// Remove deletes the entry for id. Removing an unknown ID is not an error.
func (s *StateStore) Remove(id string) error {
	return s.update(func(state *State) error {
		delete(state.Servers, id)
		return nil
	})
}

func (st *State) entry(id string) *ServerState {
	ss, ok := st.Servers[id]
	if !ok {
		ss = &ServerState{ServerID: id}
		st.Servers[id] = ss
	}
	return ss
}

func (s *StateStore) update(fn func(*State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(state); err != nil {
		return err
	}
	return s.save(state)
}

func (s *StateStore) load() (*State, error) {
	state := &State{Servers: make(map[string]*ServerState)}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return state, nil
	}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("failed to parse state file %s: %w", s.path, err)
	}
	if state.Servers == nil {
		state.Servers = make(map[string]*ServerState)
	}
	for id, ss := range state.Servers {
		if ss == nil {
			delete(state.Servers, id)
			continue
		}
		ss.ServerID = id
	}
	return state, nil
}

func (s *StateStore) save(state *State) error {
	if state.Servers == nil {
		state.Servers = make(map[string]*ServerState)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	return fsutil.WriteFileAtomic(s.path, data, 0o600, 0o700)
}
