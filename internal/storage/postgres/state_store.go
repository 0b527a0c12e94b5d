package postgres

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"phoenix-pipeline/internal/domain"
)

// StateStore is a PostgreSQL implementation of storage.StateStore. Progress
// lives in a single pipeline_state row: last block and timestamp as columns,
// everything else as a JSONB document that survives read-modify-write.
type StateStore struct {
	pool   *Pool
	logger *log.Logger
}

// NewStateStore creates a new PostgreSQL state store.
func NewStateStore(pool *Pool, logger *log.Logger) *StateStore {
	if logger == nil {
		logger = log.Default()
	}
	return &StateStore{pool: pool, logger: logger}
}

// Load returns the persisted state. A missing row degrades to the zero state.
func (s *StateStore) Load(ctx context.Context) (domain.PipelineState, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT last_processed_block, last_updated, extra
		FROM pipeline_state
		WHERE id = 1
	`)

	var (
		lastBlock   int64
		lastUpdated time.Time
		extraRaw    []byte
	)
	if err := row.Scan(&lastBlock, &lastUpdated, &extraRaw); err != nil {
		if isNotFoundError(err) {
			return domain.PipelineState{}, nil
		}
		return domain.PipelineState{}, err
	}

	state := domain.PipelineState{
		LastProcessedBlock: lastBlock,
		LastUpdated:        lastUpdated.UTC().Format(time.RFC3339),
	}
	if len(extraRaw) > 0 {
		var extra map[string]json.RawMessage
		if err := json.Unmarshal(extraRaw, &extra); err != nil {
			s.logger.Printf("Discarding unreadable state extras: %v", err)
		} else if len(extra) > 0 {
			state.Extra = extra
		}
	}
	return state, nil
}

// Advance merges lastBlock and extra into the persisted state. The JSONB
// merge keeps fields written by other tools; named extras overwrite.
func (s *StateStore) Advance(ctx context.Context, lastBlock int64, extra map[string]interface{}) error {
	extraJSON, err := json.Marshal(extra)
	if err != nil {
		return err
	}
	if extra == nil {
		extraJSON = []byte("{}")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO pipeline_state (id, last_processed_block, last_updated, extra)
		VALUES (1, $1, NOW(), $2::jsonb)
		ON CONFLICT (id) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block,
		    last_updated = NOW(),
		    extra = pipeline_state.extra || EXCLUDED.extra
	`, lastBlock, extraJSON)
	if err != nil {
		return err
	}

	s.logger.Printf("State updated: lastProcessedBlock=%d", lastBlock)
	return nil
}
