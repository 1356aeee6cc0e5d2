package repository

import (
	"context"
	"errors"
	"io"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/skyalgo/pkg/adapter"
)

// Bucket stores records as JSON objects through the Storage adapter
type Bucket struct {
	storage adapter.Storage
}

func NewBucket(storage adapter.Storage) *Bucket {
	return &Bucket{storage: storage}
}

func objectKey(key string) string {
	return "records/" + key + ".json"
}

func (b *Bucket) GetRecord(ctx context.Context, key string) ([]byte, error) {
	reader, err := b.storage.Get(ctx, objectKey(key))
	if errors.Is(err, adapter.ErrObjectNotFound) {
		return nil, goerr.Wrap(ErrRecordNotFound, "no record object", goerr.V("key", key))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open record object", goerr.V("key", key))
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read record object", goerr.V("key", key))
	}
	return data, nil
}

func (b *Bucket) PutRecord(ctx context.Context, key string, data []byte) error {
	writer, err := b.storage.Put(ctx, objectKey(key))
	if err != nil {
		return goerr.Wrap(err, "failed to create storage writer", goerr.V("key", key))
	}

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return goerr.Wrap(err, "failed to write record object", goerr.V("key", key))
	}

	if err := writer.Close(); err != nil {
		return goerr.Wrap(err, "failed to close storage writer", goerr.V("key", key))
	}
	return nil
}

func (b *Bucket) DeleteRecord(ctx context.Context, key string) error {
	err := b.storage.Delete(ctx, objectKey(key))
	if err != nil && !errors.Is(err, adapter.ErrObjectNotFound) {
		return goerr.Wrap(err, "failed to delete record object", goerr.V("key", key))
	}
	return nil
}
