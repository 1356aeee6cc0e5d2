package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/m-mizutani/goerr/v2"
)

// Record keys used by the application
const (
	HistoryKey = "analysisHistory"
	LabelsKey  = "appConfig"
)

// ErrRecordNotFound is returned by GetRecord when nothing is stored under the key
var ErrRecordNotFound = goerr.New("record not found")

// ErrRecordCorrupt is returned by LoadJSON when the stored bytes are not valid JSON for v
var ErrRecordCorrupt = goerr.New("record is corrupt")

// Repository is a key-value store of named records. Each write replaces the whole record.
type Repository interface {
	// GetRecord returns the stored bytes or ErrRecordNotFound
	GetRecord(ctx context.Context, key string) ([]byte, error)

	// PutRecord creates or replaces a record
	PutRecord(ctx context.Context, key string, data []byte) error

	// DeleteRecord removes a record; deleting a missing record is not an error
	DeleteRecord(ctx context.Context, key string) error
}

// LoadJSON decodes the record into v. It returns false without error when the record does
// not exist.
func LoadJSON(ctx context.Context, repo Repository, key string, v any) (bool, error) {
	data, err := repo.GetRecord(ctx, key)
	if errors.Is(err, ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, goerr.Wrap(err, "failed to get record", goerr.V("key", key))
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, goerr.Wrap(errors.Join(ErrRecordCorrupt, err), "failed to decode record", goerr.V("key", key))
	}
	return true, nil
}

// SaveJSON encodes v and stores it under key
func SaveJSON(ctx context.Context, repo Repository, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return goerr.Wrap(err, "failed to encode record", goerr.V("key", key))
	}
	if err := repo.PutRecord(ctx, key, data); err != nil {
		return goerr.Wrap(err, "failed to put record", goerr.V("key", key))
	}
	return nil
}
