package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultCollection = "skyalgo_records"

// Firestore stores each record as one document of a collection
type Firestore struct {
	client     *firestore.Client
	collection string
}

type record struct {
	Data      string    `firestore:"data"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

// FirestoreOption is a functional option for Firestore
type FirestoreOption func(*Firestore)

// WithCollection overrides the collection holding records
func WithCollection(name string) FirestoreOption {
	return func(f *Firestore) {
		if name != "" {
			f.collection = name
		}
	}
}

// NewFirestore creates a new Firestore repository
func NewFirestore(ctx context.Context, projectID, databaseID string, opts ...FirestoreOption) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project", projectID),
			goerr.V("database", databaseID))
	}

	f := &Firestore{
		client:     client,
		collection: defaultCollection,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *Firestore) GetRecord(ctx context.Context, key string) ([]byte, error) {
	snap, err := f.client.Collection(f.collection).Doc(key).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, goerr.Wrap(ErrRecordNotFound, "no record document", goerr.V("key", key))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get record document", goerr.V("key", key))
	}

	var rec record
	if err := snap.DataTo(&rec); err != nil {
		return nil, goerr.Wrap(err, "failed to decode record document", goerr.V("key", key))
	}
	return []byte(rec.Data), nil
}

func (f *Firestore) PutRecord(ctx context.Context, key string, data []byte) error {
	rec := record{
		Data:      string(data),
		UpdatedAt: time.Now(),
	}
	if _, err := f.client.Collection(f.collection).Doc(key).Set(ctx, rec); err != nil {
		return goerr.Wrap(err, "failed to set record document", goerr.V("key", key))
	}
	return nil
}

func (f *Firestore) DeleteRecord(ctx context.Context, key string) error {
	if _, err := f.client.Collection(f.collection).Doc(key).Delete(ctx); err != nil {
		return goerr.Wrap(err, "failed to delete record document", goerr.V("key", key))
	}
	return nil
}

// Close releases the underlying client
func (f *Firestore) Close() error {
	if err := f.client.Close(); err != nil {
		return goerr.Wrap(err, "failed to close firestore client")
	}
	return nil
}
