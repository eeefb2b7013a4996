// Copyright (c) 2026 Ecodam. All rights reserved.

package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ecodam/ecodam-api/internal/platform/dberr"
)

// # Postgres Backend
//
// Documents live in a single JSONB-addressed table:
//
//	documents(path PK, collection, collection_group, doc_id, data, created_at, updated_at)
//
// The path is the primary key, so Insert doubles as the idempotency
// primitive (unique violation -> Conflict). Group queries hit the
// collection_group column; content filters use JSONB containment against
// the GIN index.

// querier is the subset of pgx satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresBackend is the production [Backend] over a pgx connection pool.
type PostgresBackend struct {
	pool *pgxpool.Pool
	db   querier

	// inTx marks transaction-scoped instances; their reads take row locks
	// so concurrent accruals against the same user serialize.
	inTx bool
}

// NewPostgresBackend constructs the backend over an existing pool.
func NewPostgresBackend(pool *pgxpool.Pool) *PostgresBackend {
	return &PostgresBackend{pool: pool, db: pool}
}

// Get implements [Backend].
func (b *PostgresBackend) Get(ctx context.Context, path string) (*Document, error) {
	query := `SELECT data, created_at, updated_at FROM documents WHERE path = $1`
	if b.inTx {
		query += ` FOR UPDATE`
	}

	var raw []byte
	doc := &Document{}
	err := b.db.QueryRow(ctx, query, path).Scan(&raw, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dberr.Wrap(err)
	}

	if err := json.Unmarshal(raw, &doc.Data); err != nil {
		return nil, fmt.Errorf("docstore: corrupt document content at %s: %w", path, err)
	}
	return newDocument(path, doc.Data, doc.CreatedAt, doc.UpdatedAt), nil
}

// Insert implements [Backend].
func (b *PostgresBackend) Insert(ctx context.Context, doc *Document) error {
	raw, err := json.Marshal(doc.Data)
	if err != nil {
		return fmt.Errorf("docstore: encode document content: %w", err)
	}

	_, err = b.db.Exec(ctx, `
		INSERT INTO documents (path, collection, collection_group, doc_id, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		doc.Path, doc.Collection, doc.Group, doc.ID, raw, doc.CreatedAt, doc.UpdatedAt,
	)
	return dberr.Wrap(err)
}

// Replace implements [Backend].
func (b *PostgresBackend) Replace(ctx context.Context, doc *Document) error {
	raw, err := json.Marshal(doc.Data)
	if err != nil {
		return fmt.Errorf("docstore: encode document content: %w", err)
	}

	tag, err := b.db.Exec(ctx, `
		UPDATE documents SET data = $2, updated_at = $3 WHERE path = $1`,
		doc.Path, raw, doc.UpdatedAt,
	)
	if err != nil {
		return dberr.Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return dberr.ErrNotFound
	}
	return nil
}

// Delete implements [Backend]. Deleting a missing path is a no-op.
func (b *PostgresBackend) Delete(ctx context.Context, path string) error {
	_, err := b.db.Exec(ctx, `DELETE FROM documents WHERE path = $1`, path)
	return dberr.Wrap(err)
}

// List implements [Backend].
func (b *PostgresBackend) List(ctx context.Context, collection string, filters map[string]any) ([]*Document, error) {
	return b.listWhere(ctx, `collection = $1`, collection, filters)
}

// ListGroup implements [Backend].
func (b *PostgresBackend) ListGroup(ctx context.Context, group string, filters map[string]any) ([]*Document, error) {
	return b.listWhere(ctx, `collection_group = $1`, group, filters)
}

// listWhere runs the shared list query with an optional JSONB containment filter.
func (b *PostgresBackend) listWhere(ctx context.Context, where, key string, filters map[string]any) ([]*Document, error) {
	query := `SELECT path, data, created_at, updated_at FROM documents WHERE ` + where
	args := []any{key}

	if len(filters) > 0 {
		raw, err := json.Marshal(filters)
		if err != nil {
			return nil, fmt.Errorf("docstore: encode filters: %w", err)
		}
		query += ` AND data @> $2::jsonb`
		args = append(args, raw)
	}
	query += ` ORDER BY path`

	rows, err := b.db.Query(ctx, query, args...)
	if err != nil {
		return nil, dberr.Wrap(err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		var path string
		var raw []byte
		doc := &Document{}
		if err := rows.Scan(&path, &raw, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, dberr.Wrap(err)
		}
		if err := json.Unmarshal(raw, &doc.Data); err != nil {
			return nil, fmt.Errorf("docstore: corrupt document content at %s: %w", path, err)
		}
		docs = append(docs, newDocument(path, doc.Data, doc.CreatedAt, doc.UpdatedAt))
	}
	return docs, dberr.Wrap(rows.Err())
}

// InTx implements [Backend]. The transaction-scoped backend reads with
// FOR UPDATE so multi-document flows serialize per document.
func (b *PostgresBackend) InTx(ctx context.Context, fn func(Backend) error) error {
	// Nested transactions run in the enclosing one.
	if b.inTx {
		return fn(b)
	}

	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return dberr.Wrap(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	txBackend := &PostgresBackend{pool: b.pool, db: tx, inTx: true}
	if err := fn(txBackend); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return dberr.Wrap(err)
	}
	return nil
}
