// Package file persists pipeline state as a flat JSON file next to the
// pipeline's output artifacts.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"phoenix-pipeline/internal/domain"
)

// StateStore reads and writes pipeline state at a fixed path. It implements
// storage.StateStore.
type StateStore struct {
	path   string
	logger *log.Logger
	now    func() time.Time
}

// Option configures StateStore.
type Option func(*StateStore)

// WithLogger sets the store logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *StateStore) { s.logger = logger }
}

// WithClock overrides the clock used for lastUpdated stamps.
func WithClock(now func() time.Time) Option {
	return func(s *StateStore) { s.now = now }
}

// NewStateStore creates a state store backed by the JSON file at path.
func NewStateStore(path string, opts ...Option) *StateStore {
	s := &StateStore{
		path:   path,
		logger: log.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns the persisted state. A missing or corrupt file degrades to
// the zero state rather than failing: first run and recovery from a bad
// write are the same path.
func (s *StateStore) Load(_ context.Context) (domain.PipelineState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Printf("State file %s unreadable, starting from zero state: %v", s.path, err)
		}
		return domain.PipelineState{}, nil
	}

	var state domain.PipelineState
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Printf("State file %s corrupt, starting from zero state: %v", s.path, err)
		return domain.PipelineState{}, nil
	}
	return state, nil
}

// Advance merges lastBlock and extra into the persisted state. The write is
// atomic (temp file + rename) so a crash mid-write leaves the previous state
// intact.
func (s *StateStore) Advance(ctx context.Context, lastBlock int64, extra map[string]interface{}) error {
	state, err := s.Load(ctx)
	if err != nil {
		return err
	}

	state.LastProcessedBlock = lastBlock
	state.LastUpdated = s.now().UTC().Format(time.RFC3339)

	for k, v := range extra {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal extra field %q: %w", k, err)
		}
		if state.Extra == nil {
			state.Extra = make(map[string]json.RawMessage)
		}
		state.Extra[k] = raw
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	if err := writeAtomic(s.path, data); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}

	s.logger.Printf("State updated: lastProcessedBlock=%d", lastBlock)
	return nil
}

// writeAtomic writes data to path via a temp file in the same directory.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
