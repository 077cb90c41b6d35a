// Package store defines the document-store port used by every engine in the
// service. Backends live in internal/repository/{postgres,firestore} and
// internal/store/memory.
package store

import (
	"context"
	"encoding/json"
	"time"
)

// Logical collections.
const (
	CollectionCustomers     = "customers"
	CollectionCompanies     = "companies"
	CollectionConversations = "conversations"
	CollectionMessages      = "messages"
	CollectionCases         = "cases"
	CollectionActivities    = "activities"
)

// IDField is written into every stored document alongside its payload.
const IDField = "id"

type Op string

const (
	OpEqual Op = "=="
	OpIn    Op = "in"
)

// Filter restricts a query on a (possibly dotted) field path.
type Filter struct {
	Field string
	Op    Op
	Value interface{}
}

// Where builds an equality filter.
func Where(field string, value interface{}) Filter {
	return Filter{Field: field, Op: OpEqual, Value: value}
}

// WhereIn builds a membership filter; values must be a slice.
func WhereIn(field string, values interface{}) Filter {
	return Filter{Field: field, Op: OpIn, Value: values}
}

// Query describes a collection read. Results are always ordered by document ID
// ascending; After is an exclusive ID cursor and Limit <= 0 means no limit.
type Query struct {
	Filters []Filter
	After   string
	Limit   int
}

// Snapshot is one document as read from the store.
type Snapshot struct {
	ID   string
	Data json.RawMessage
}

// DataTo decodes the document into dst.
func (s Snapshot) DataTo(dst interface{}) error {
	return json.Unmarshal(s.Data, dst)
}

// Client is the document-store contract: single-document CRUD, filtered
// queries and an atomic multi-document batch.
type Client interface {
	Get(ctx context.Context, collection, id string) (*Snapshot, error)
	Query(ctx context.Context, collection string, q Query) ([]Snapshot, error)
	Add(ctx context.Context, collection string, data interface{}) (string, error)
	Set(ctx context.Context, collection, id string, data interface{}) error
	Update(ctx context.Context, collection, id string, fields map[string]interface{}) error
	Delete(ctx context.Context, collection, id string) error

	// Batch returns a write batch; Commit applies all of its mutations or none.
	Batch() Batch

	// NewID returns a fresh document ID.
	NewID() string

	// Now is the store's timestamp source.
	Now() time.Time
}

// Batch accumulates writes that commit atomically.
type Batch interface {
	Set(collection, id string, data interface{})
	Update(collection, id string, fields map[string]interface{})
	Delete(collection, id string)
	Len() int
	Commit(ctx context.Context) error
}

// MaxInValues bounds the value list of a single OpIn filter.
const MaxInValues = 30

// Chunk splits ids into slices of at most n elements.
func Chunk(ids []string, n int) [][]string {
	var out [][]string
	for len(ids) > n {
		out = append(out, ids[:n])
		ids = ids[n:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
