package repository

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
)

// Memory keeps records in process memory
type Memory struct {
	mu      sync.RWMutex
	records map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{
		records: make(map[string][]byte),
	}
}

func (m *Memory) GetRecord(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.records[key]
	if !ok {
		return nil, goerr.Wrap(ErrRecordNotFound, "no record in memory", goerr.V("key", key))
	}
	return append([]byte(nil), data...), nil
}

func (m *Memory) PutRecord(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[key] = append([]byte(nil), data...)
	return nil
}

func (m *Memory) DeleteRecord(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, key)
	return nil
}
