// internal/repository/postgres/document_store.go
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	xerrors "crm-service/internal/pkg/errors"
	"crm-service/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
	"github.com/oklog/ulid/v2"
)

// DocumentStore keeps every collection in one JSONB table.
type DocumentStore struct {
	db *DB
}

func NewDocumentStore(db *DB) *DocumentStore {
	return &DocumentStore{db: db}
}

var _ store.Client = (*DocumentStore)(nil)

func (s *DocumentStore) Get(ctx context.Context, collection, id string) (*store.Snapshot, error) {
	return getDocument(ctx, s.db.pool, collection, id, false)
}

func (s *DocumentStore) Query(ctx context.Context, collection string, q store.Query) ([]store.Snapshot, error) {
	where := []string{"collection = $1"}
	args := []any{collection}

	if q.After != "" {
		args = append(args, q.After)
		where = append(where, fmt.Sprintf("id > $%d", len(args)))
	}

	for _, f := range q.Filters {
		value, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", f.Field, err)
		}
		args = append(args, pq.Array(strings.Split(f.Field, ".")), string(value))
		pathArg, valueArg := len(args)-1, len(args)

		switch f.Op {
		case store.OpEqual:
			where = append(where, fmt.Sprintf("data #> $%d::text[] = $%d::jsonb", pathArg, valueArg))
		case store.OpIn:
			where = append(where, fmt.Sprintf(
				"data #> $%d::text[] IN (SELECT jsonb_array_elements($%d::jsonb))", pathArg, valueArg))
		default:
			return nil, fmt.Errorf("unsupported operator %q", f.Op)
		}
	}

	query := "SELECT id, data FROM documents WHERE " + strings.Join(where, " AND ") + " ORDER BY id"
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := s.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}
	defer rows.Close()

	var out []store.Snapshot
	for rows.Next() {
		var snap store.Snapshot
		var data []byte
		if err := rows.Scan(&snap.ID, &data); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", collection, err)
		}
		snap.Data = data
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", collection, err)
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
	return putDocument(ctx, s.db.pool, collection, id, doc)
}

// Update merges dotted-path fields into the stored document under a row lock.
func (s *DocumentStore) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	encoded, err := store.EncodeFields(fields)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := updateDocument(ctx, tx, collection, id, encoded); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *DocumentStore) Delete(ctx context.Context, collection, id string) error {
	return deleteDocument(ctx, s.db.pool, collection, id)
}

func (s *DocumentStore) Batch() store.Batch {
	return &batch{db: s.db}
}

func (s *DocumentStore) NewID() string {
	return ulid.Make().String()
}

func (s *DocumentStore) Now() time.Time {
	return time.Now().UTC()
}

// batch replays buffered writes inside one transaction.
type batch struct {
	store.BatchBuffer
	db *DB
}

func (b *batch) Commit(ctx context.Context) error {
	mutations, err := b.Mutations()
	if err != nil {
		return err
	}
	if len(mutations) == 0 {
		return nil
	}

	tx, err := b.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, m := range mutations {
		switch m.Kind {
		case store.MutationSet:
			err = putDocument(ctx, tx, m.Collection, m.ID, m.Data)
		case store.MutationUpdate:
			err = updateDocument(ctx, tx, m.Collection, m.ID, m.Fields)
		case store.MutationDelete:
			err = deleteDocument(ctx, tx, m.Collection, m.ID)
		}
		if err != nil {
			return fmt.Errorf("batch %s %s/%s: %w", m.Kind, m.Collection, m.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

func getDocument(ctx context.Context, q querier, collection, id string, forUpdate bool) (*store.Snapshot, error) {
	query := `SELECT data FROM documents WHERE collection = $1 AND id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var data []byte
	err := q.QueryRow(ctx, query, collection, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
	}
	return &store.Snapshot{ID: id, Data: data}, nil
}

func putDocument(ctx context.Context, q querier, collection, id string, doc map[string]interface{}) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	query := `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id)
		DO UPDATE SET data = EXCLUDED.data, updated_at = now()
	`
	if _, err := q.Exec(ctx, query, collection, id, string(data)); err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", collection, id, err)
	}
	return nil
}

func updateDocument(ctx context.Context, q querier, collection, id string, fields map[string]interface{}) error {
	snap, err := getDocument(ctx, q, collection, id, true)
	if err != nil {
		return err
	}

	doc := map[string]interface{}{}
	if err := json.Unmarshal(snap.Data, &doc); err != nil {
		return fmt.Errorf("failed to decode %s/%s: %w", collection, id, err)
	}
	store.ApplyUpdate(doc, fields)
	return putDocument(ctx, q, collection, id, doc)
}

func deleteDocument(ctx context.Context, q querier, collection, id string) error {
	if _, err := q.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", collection, id, err)
	}
	return nil
}
