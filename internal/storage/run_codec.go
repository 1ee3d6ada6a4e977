package storage

import (
	"encoding/json"
	"fmt"

	"breakout-lab/internal/domain"
)

// EncodeRun serializes a validation run for document columns
// (Postgres JSONB, SQLite TEXT).
func EncodeRun(run *domain.ValidationRun) ([]byte, error) {
	data, err := json.Marshal(run)
	if err != nil {
		return nil, fmt.Errorf("encode run %s: %w", run.RunID, err)
	}
	return data, nil
}

// DecodeRun restores a run written by EncodeRun.
func DecodeRun(data []byte) (*domain.ValidationRun, error) {
	var run domain.ValidationRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("decode run: %w", err)
	}
	return &run, nil
}
