package domain

import "encoding/json"

// PipelineState tracks ingestion progress across runs. Fields not known to
// this version of the pipeline survive a read-modify-write cycle untouched.
type PipelineState struct {
	// LastProcessedBlock is monotonically non-decreasing across successful runs.
	LastProcessedBlock int64
	// LastUpdated is an ISO-8601 timestamp of the last state commit.
	LastUpdated string
	// Extra holds fields written by other tools or future versions.
	Extra map[string]json.RawMessage
}

const (
	stateKeyLastProcessedBlock = "lastProcessedBlock"
	stateKeyLastUpdated        = "lastUpdated"
)

// MarshalJSON renders the state as a flat JSON object, merging Extra back in.
func (s PipelineState) MarshalJSON() ([]byte, error) {
	obj := make(map[string]json.RawMessage, len(s.Extra)+2)
	for k, v := range s.Extra {
		obj[k] = v
	}

	block, err := json.Marshal(s.LastProcessedBlock)
	if err != nil {
		return nil, err
	}
	obj[stateKeyLastProcessedBlock] = block

	if s.LastUpdated != "" {
		updated, err := json.Marshal(s.LastUpdated)
		if err != nil {
			return nil, err
		}
		obj[stateKeyLastUpdated] = updated
	}

	return json.Marshal(obj)
}

// UnmarshalJSON parses a flat JSON object, keeping unrecognized fields in Extra.
func (s *PipelineState) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}

	if raw, ok := obj[stateKeyLastProcessedBlock]; ok {
		if err := json.Unmarshal(raw, &s.LastProcessedBlock); err != nil {
			return err
		}
		delete(obj, stateKeyLastProcessedBlock)
	}
	if raw, ok := obj[stateKeyLastUpdated]; ok {
		if err := json.Unmarshal(raw, &s.LastUpdated); err != nil {
			return err
		}
		delete(obj, stateKeyLastUpdated)
	}

	if len(obj) > 0 {
		s.Extra = obj
	} else {
		s.Extra = nil
	}
	return nil
}
