// internal/repository/firestore/document_store.go
package firestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	xerrors "crm-service/internal/pkg/errors"
	"crm-service/internal/store"

	"cloud.google.com/go/firestore"
	"github.com/oklog/ulid/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// MaxBatchWrites is Firestore's per-commit write limit.
const MaxBatchWrites = 500

// DocumentStore implements store.Client on Cloud Firestore.
type DocumentStore struct {
	client *firestore.Client
}

// NewDocumentStore returns a DocumentStore for the given project id.
func NewDocumentStore(ctx context.Context, projectID string) (*DocumentStore, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return NewDocumentStoreWithClient(client), nil
}

func NewDocumentStoreWithClient(client *firestore.Client) *DocumentStore {
	return &DocumentStore{client: client}
}

var _ store.Client = (*DocumentStore)(nil)

func (s *DocumentStore) Close() error {
	return s.client.Close()
}

func (s *DocumentStore) Get(ctx context.Context, collection, id string) (*store.Snapshot, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, xerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
	}
	return toSnapshot(snap)
}

func (s *DocumentStore) Query(ctx context.Context, collection string, q store.Query) ([]store.Snapshot, error) {
	query := s.client.Collection(collection).OrderBy(firestore.DocumentID, firestore.Asc)

	for _, f := range q.Filters {
		value, err := store.EncodeValue(f.Value)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", f.Field, err)
		}
		query = query.Where(f.Field, string(f.Op), value)
	}
	if q.After != "" {
		query = query.StartAfter(q.After)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var out []store.Snapshot
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query %s: %w", collection, err)
		}
		snap, err := toSnapshot(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, *snap)
	}
	return out, nil
}

func (s *DocumentStore) Add(ctx context.Context, collection string, data interface{}) (string, error) {
	id := s.NewID()
	if err := s.Set(ctx, collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (s *DocumentStore) Set(ctx context.Context, collection, id string, data interface{}) error {
	doc, err := store.EncodeDocument(id, data)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	if _, err := s.client.Collection(collection).Doc(id).Set(ctx, doc); err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *DocumentStore) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	encoded, err := store.EncodeFields(fields)
	if err != nil {
		return err
	}
	if _, err := s.client.Collection(collection).Doc(id).Update(ctx, toUpdates(encoded)); err != nil {
		if status.Code(err) == codes.NotFound {
			return xerrors.ErrNotFound
		}
		return fmt.Errorf("failed to update %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *DocumentStore) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.client.Collection(collection).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *DocumentStore) Batch() store.Batch {
	return &batch{client: s.client}
}

func (s *DocumentStore) NewID() string {
	return ulid.Make().String()
}

func (s *DocumentStore) Now() time.Time {
	return time.Now().UTC()
}

// batch commits through a single WriteBatch, so it is bounded by MaxBatchWrites.
type batch struct {
	store.BatchBuffer
	client *firestore.Client
}

func (b *batch) Commit(ctx context.Context) error {
	mutations, err := b.Mutations()
	if err != nil {
		return err
	}
	if len(mutations) == 0 {
		return nil
	}
	if len(mutations) > MaxBatchWrites {
		return fmt.Errorf("%w: %d writes, limit %d", xerrors.ErrBatchTooLarge, len(mutations), MaxBatchWrites)
	}

	wb := b.client.Batch()
	for _, m := range mutations {
		ref := b.client.Collection(m.Collection).Doc(m.ID)
		switch m.Kind {
		case store.MutationSet:
			wb.Set(ref, m.Data)
		case store.MutationUpdate:
			wb.Update(ref, toUpdates(m.Fields))
		case store.MutationDelete:
			wb.Delete(ref)
		}
	}

	if _, err := wb.Commit(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("failed to commit batch: %w", xerrors.ErrNotFound)
		}
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

func toUpdates(fields map[string]interface{}) []firestore.Update {
	updates := make([]firestore.Update, 0, len(fields))
	for path, v := range fields {
		updates = append(updates, firestore.Update{Path: path, Value: v})
	}
	return updates
}

func toSnapshot(doc *firestore.DocumentSnapshot) (*store.Snapshot, error) {
	raw, err := json.Marshal(doc.Data())
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", doc.Ref.Path, err)
	}
	return &store.Snapshot{ID: doc.Ref.ID, Data: raw}, nil
}
