package adapter

import (
	"context"
	"errors"
	"io"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
)

// ErrObjectNotFound is returned by Get and Delete when the object does not exist
var ErrObjectNotFound = goerr.New("object not found")

// Storage is the interface for object storage holding persisted records
type Storage interface {
	// Put returns a writer; the object is committed on Close
	Put(ctx context.Context, key string) (io.WriteCloser, error)
	// Get opens an object for reading
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes an object
	Delete(ctx context.Context, key string) error
}

// storageClient implements Storage interface using Cloud Storage
type storageClient struct {
	bucketName string
	prefix     string
	client     *storage.Client
}

// StorageOption is a functional option for the Cloud Storage client
type StorageOption func(*storageClient)

// WithObjectPrefix places every object under prefix (e.g. "skyalgo/")
func WithObjectPrefix(prefix string) StorageOption {
	return func(s *storageClient) {
		s.prefix = prefix
	}
}

// NewStorage creates a new Cloud Storage client
func NewStorage(ctx context.Context, bucketName string, opts ...StorageOption) (Storage, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}

	s := &storageClient{
		bucketName: bucketName,
		client:     client,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *storageClient) object(key string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucketName).Object(s.prefix + key)
}

func (s *storageClient) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	writer := s.object(key).NewWriter(ctx)
	writer.ContentType = "application/json"
	return writer, nil
}

func (s *storageClient) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	reader, err := s.object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, goerr.Wrap(ErrObjectNotFound, "object does not exist", goerr.V("key", key))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read from storage", goerr.V("key", key))
	}

	return reader, nil
}

func (s *storageClient) Delete(ctx context.Context, key string) error {
	err := s.object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return goerr.Wrap(ErrObjectNotFound, "object does not exist", goerr.V("key", key))
	}
	if err != nil {
		return goerr.Wrap(err, "failed to delete from storage", goerr.V("key", key))
	}
	return nil
}
