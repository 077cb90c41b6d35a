// Package memory is an in-process store.Client used by tests and by the
// "memory" store backend for local development.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	xerrors "crm-service/internal/pkg/errors"
	"crm-service/internal/store"

	"github.com/oklog/ulid/v2"
)

// CommitHook inspects a batch before it is applied; a non-nil error aborts
// the whole batch.
type CommitHook func(mutations []store.Mutation) error

type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]interface{}
	clock       func() time.Time
	commitHook  CommitHook
	maxBatchOps int
}

type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// WithMaxBatchOps rejects batches larger than n, mirroring hosted stores.
func WithMaxBatchOps(n int) Option {
	return func(s *Store) { s.maxBatchOps = n }
}

func New(opts ...Option) *Store {
	s := &Store{
		collections: make(map[string]map[string]map[string]interface{}),
		clock:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetCommitHook installs (or clears, with nil) a hook run before every batch commit.
func (s *Store) SetCommitHook(hook CommitHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitHook = hook
}

// Count returns the number of documents in a collection.
func (s *Store) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

func (s *Store) Get(ctx context.Context, collection, id string) (*store.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return snapshot(id, doc)
}

func (s *Store) Query(ctx context.Context, collection string, q store.Query) ([]store.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := s.collections[collection]
	ids := make([]string, 0, len(docs))
	for id := range docs {
		if q.After != "" && id <= q.After {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []store.Snapshot
	for _, id := range ids {
		ok, err := store.Matches(docs[id], q.Filters)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		snap, err := snapshot(id, docs[id])
		if err != nil {
			return nil, err
		}
		out = append(out, *snap)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) Add(ctx context.Context, collection string, data interface{}) (string, error) {
	id := s.NewID()
	if err := s.Set(ctx, collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, data interface{}) error {
	doc, err := store.EncodeDocument(id, data)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(collection, id, doc)
	return nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	encoded, err := store.EncodeFields(fields)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return xerrors.ErrNotFound
	}
	store.ApplyUpdate(doc, encoded)
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections[collection], id)
	return nil
}

func (s *Store) Batch() store.Batch {
	return &batch{store: s}
}

func (s *Store) NewID() string {
	return ulid.Make().String()
}

func (s *Store) Now() time.Time {
	return s.clock()
}

func (s *Store) put(collection, id string, doc map[string]interface{}) {
	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]map[string]interface{})
	}
	s.collections[collection][id] = doc
}

// commit applies mutations to a copy of the affected collections and swaps
// them in only when every mutation succeeded.
func (s *Store) commit(mutations []store.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxBatchOps > 0 && len(mutations) > s.maxBatchOps {
		return fmt.Errorf("%w: %d writes, limit %d", xerrors.ErrBatchTooLarge, len(mutations), s.maxBatchOps)
	}
	if s.commitHook != nil {
		if err := s.commitHook(mutations); err != nil {
			return err
		}
	}

	staged := make(map[string]map[string]map[string]interface{})
	stage := func(collection string) map[string]map[string]interface{} {
		if c, ok := staged[collection]; ok {
			return c
		}
		c := make(map[string]map[string]interface{}, len(s.collections[collection]))
		for id, doc := range s.collections[collection] {
			c[id] = doc
		}
		staged[collection] = c
		return c
	}

	for _, m := range mutations {
		c := stage(m.Collection)
		switch m.Kind {
		case store.MutationSet:
			c[m.ID] = m.Data
		case store.MutationUpdate:
			doc, ok := c[m.ID]
			if !ok {
				return fmt.Errorf("update %s/%s: %w", m.Collection, m.ID, xerrors.ErrNotFound)
			}
			updated, err := deepCopy(doc)
			if err != nil {
				return err
			}
			store.ApplyUpdate(updated, m.Fields)
			c[m.ID] = updated
		case store.MutationDelete:
			delete(c, m.ID)
		}
	}

	for collection, docs := range staged {
		s.collections[collection] = docs
	}
	return nil
}

type batch struct {
	store.BatchBuffer
	store *Store
}

func (b *batch) Commit(ctx context.Context) error {
	mutations, err := b.Mutations()
	if err != nil {
		return err
	}
	if len(mutations) == 0 {
		return nil
	}
	return b.store.commit(mutations)
}

func snapshot(id string, doc map[string]interface{}) (*store.Snapshot, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document %s: %w", id, err)
	}
	return &store.Snapshot{ID: id, Data: raw}, nil
}

func deepCopy(doc map[string]interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	out := map[string]interface{}{}
	return out, json.Unmarshal(raw, &out)
}
