// Copyright (c) 2026 Ecodam. All rights reserved.

/*
Package docstore implements the hierarchical, path-addressed document store
and the rule-gated engine in front of it.

Architecture:

  - Backend: raw, unguarded persistence (Postgres JSONB in production, an
    in-memory map for tests). Backends never make authorization decisions.
  - Store: the ONLY entry point for domain code. Every operation is checked
    against the access-control rule table before any state is touched.
  - InTx: runs a function against a transaction-scoped Store so multi-
    document writes (e.g. point accrual) commit or roll back atomically.

Security:

Domain services must hold a *Store, never a Backend. The principal passed
to each call decides what the evaluator permits; trusted in-process flows
use the system principal explicitly rather than bypassing the gate.
*/
package docstore

import (
	"context"
	"time"

	"github.com/ecodam/ecodam-api/internal/platform/apperr"
	"github.com/ecodam/ecodam-api/internal/rules"
)

// # Backend Contract

// Backend is the raw persistence layer beneath the rule gate.
//
// Get returns (nil, nil) for a missing document so the engine can
// distinguish absence from failure. Insert returns Conflict for an existing
// path; Replace returns NotFound for a missing one.
type Backend interface {
	Get(ctx context.Context, path string) (*Document, error)
	Insert(ctx context.Context, doc *Document) error
	Replace(ctx context.Context, doc *Document) error
	Delete(ctx context.Context, path string) error

	// List returns the documents of one parent collection whose content
	// matches every filter by equality.
	List(ctx context.Context, collection string, filters map[string]any) ([]*Document, error)

	// ListGroup returns matching documents across ALL parents sharing the
	// collection name (e.g. every user's "rank_accounts").
	ListGroup(ctx context.Context, group string, filters map[string]any) ([]*Document, error)

	// InTx runs fn against a transaction-scoped Backend. Reads inside the
	// transaction lock the rows they touch.
	InTx(ctx context.Context, fn func(Backend) error) error
}

// Clock supplies timestamps; swapped out in tests.
type Clock func() time.Time

// # Engine

// Store is the rule-gated document engine.
type Store struct {
	backend   Backend
	evaluator *rules.Evaluator
	now       Clock
}

// New constructs a Store over the given backend.
func New(backend Backend, evaluator *rules.Evaluator) *Store {
	return &Store{backend: backend, evaluator: evaluator, now: time.Now}
}

// WithClock returns a copy of the store using the given clock. Test helper.
func (s *Store) WithClock(now Clock) *Store {
	copied := *s
	copied.now = now
	return &copied
}

/*
Get reads a single document.

The rule check runs BEFORE the existence check: a denied reader receives
PermissionDenied whether or not the document exists, so denial never leaks
existence.
*/
func (s *Store) Get(ctx context.Context, p rules.Principal, path string) (*Document, error) {
	if err := ValidateDocPath(path); err != nil {
		return nil, err
	}
	if err := s.evaluator.Evaluate(p, rules.OpRead, path, nil, nil); err != nil {
		return nil, err
	}

	doc, err := s.backend.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, apperr.NotFound("Document")
	}
	return doc.clone(), nil
}

/*
Create writes a new document; it fails with Conflict if the path already
exists. The insert is atomic, which makes Create the idempotency primitive
for event-keyed writes.
*/
func (s *Store) Create(ctx context.Context, p rules.Principal, path string, data map[string]any) (*Document, error) {
	if err := ValidateDocPath(path); err != nil {
		return nil, err
	}
	if err := s.evaluator.Evaluate(p, rules.OpCreate, path, nil, data); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	doc := newDocument(path, cloneData(data), now, now)
	if err := s.backend.Insert(ctx, doc); err != nil {
		return nil, err
	}
	return doc.clone(), nil
}

/*
Set writes a document unconditionally, creating it when absent and fully
replacing its content when present. The operation is classified as Create
or Update accordingly, so the matching rule cell applies.
*/
func (s *Store) Set(ctx context.Context, p rules.Principal, path string, data map[string]any) (*Document, error) {
	if err := ValidateDocPath(path); err != nil {
		return nil, err
	}

	existing, err := s.backend.Get(ctx, path)
	if err != nil {
		return nil, err
	}

	op := rules.OpCreate
	var resource map[string]any
	if existing != nil {
		op = rules.OpUpdate
		resource = existing.Data
	}
	if err := s.evaluator.Evaluate(p, op, path, resource, data); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if existing == nil {
		doc := newDocument(path, cloneData(data), now, now)
		if err := s.backend.Insert(ctx, doc); err != nil {
			return nil, err
		}
		return doc.clone(), nil
	}

	doc := newDocument(path, cloneData(data), existing.CreatedAt, now)
	if err := s.backend.Replace(ctx, doc); err != nil {
		return nil, err
	}
	return doc.clone(), nil
}

/*
Update merges the given fields into an existing document.

The rule predicate sees the MERGED content as the proposed resource, so
field-level checks (e.g. "role unchanged") hold regardless of whether the
caller sent the field explicitly.
*/
func (s *Store) Update(ctx context.Context, p rules.Principal, path string, fields map[string]any) (*Document, error) {
	if err := ValidateDocPath(path); err != nil {
		return nil, err
	}

	existing, err := s.backend.Get(ctx, path)
	if err != nil {
		return nil, err
	}

	var resource, merged map[string]any
	if existing != nil {
		resource = existing.Data
		merged = cloneData(existing.Data)
	} else {
		merged = make(map[string]any, len(fields))
	}
	for key, value := range fields {
		merged[key] = value
	}

	if err := s.evaluator.Evaluate(p, rules.OpUpdate, path, resource, merged); err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, apperr.NotFound("Document")
	}

	doc := newDocument(path, merged, existing.CreatedAt, s.now().UTC())
	if err := s.backend.Replace(ctx, doc); err != nil {
		return nil, err
	}
	return doc.clone(), nil
}

// Delete removes a document. Deleting a missing document is a no-op once
// the principal passes the rule check.
func (s *Store) Delete(ctx context.Context, p rules.Principal, path string) error {
	if err := ValidateDocPath(path); err != nil {
		return err
	}
	if err := s.evaluator.Evaluate(p, rules.OpDelete, path, nil, nil); err != nil {
		return err
	}
	return s.backend.Delete(ctx, path)
}

/*
Query lists the documents of one parent collection matching the equality
filters. Each returned document is individually checked against the read
rule; documents the principal may not read are silently dropped rather
than failing the whole query.
*/
func (s *Store) Query(ctx context.Context, p rules.Principal, collection string, filters map[string]any) ([]*Document, error) {
	if err := ValidateCollectionPath(collection); err != nil {
		return nil, err
	}

	docs, err := s.backend.List(ctx, collection, filters)
	if err != nil {
		return nil, err
	}
	return s.readable(p, docs), nil
}

// QueryGroup lists matching documents across all parents sharing the
// collection name, with the same per-document read gate as Query.
func (s *Store) QueryGroup(ctx context.Context, p rules.Principal, group string, filters map[string]any) ([]*Document, error) {
	docs, err := s.backend.ListGroup(ctx, group, filters)
	if err != nil {
		return nil, err
	}
	return s.readable(p, docs), nil
}

// readable filters a result set down to the documents the principal may read.
func (s *Store) readable(p rules.Principal, docs []*Document) []*Document {
	visible := make([]*Document, 0, len(docs))
	for _, doc := range docs {
		if err := s.evaluator.Evaluate(p, rules.OpRead, doc.Path, doc.Data, nil); err != nil {
			continue
		}
		visible = append(visible, doc.clone())
	}
	return visible
}

/*
InTx runs fn against a transaction-scoped Store.

Every read inside the transaction locks the rows it touches, and every
write commits or rolls back as a unit. This is the atomicity boundary for
multi-document flows such as point accrual.
*/
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	return s.backend.InTx(ctx, func(txBackend Backend) error {
		return fn(&Store{backend: txBackend, evaluator: s.evaluator, now: s.now})
	})
}
