// Copyright (c) 2026 Ecodam. All rights reserved.

package docstore

import (
	"context"
	"sort"
	"sync"

	"github.com/ecodam/ecodam-api/internal/platform/apperr"
)

// # In-Memory Backend

// MemoryBackend is a map-backed [Backend] for tests and local development.
//
// Transactions are serialized under a single mutex, which gives the same
// observable guarantees as the row-locked Postgres backend at trivial scale.
type MemoryBackend struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

// NewMemoryBackend constructs an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: make(map[string]*Document)}
}

// Get implements [Backend].
func (m *MemoryBackend) Get(_ context.Context, path string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.get(path), nil
}

// Insert implements [Backend].
func (m *MemoryBackend) Insert(_ context.Context, doc *Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insert(doc)
}

// Replace implements [Backend].
func (m *MemoryBackend) Replace(_ context.Context, doc *Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replace(doc)
}

// Delete implements [Backend].
func (m *MemoryBackend) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, path)
	return nil
}

// List implements [Backend].
func (m *MemoryBackend) List(_ context.Context, collection string, filters map[string]any) ([]*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.list(func(doc *Document) bool { return doc.Collection == collection }, filters), nil
}

// ListGroup implements [Backend].
func (m *MemoryBackend) ListGroup(_ context.Context, group string, filters map[string]any) ([]*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.list(func(doc *Document) bool { return doc.Group == group }, filters), nil
}

// InTx implements [Backend]. The whole transaction runs under the write
// lock, so concurrent transactions are strictly serialized.
func (m *MemoryBackend) InTx(_ context.Context, fn func(Backend) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{
		backend: m,
		staged:  make(map[string]*Document),
		deleted: make(map[string]bool),
	}
	if err := fn(tx); err != nil {
		return err
	}

	for path := range tx.deleted {
		delete(m.docs, path)
	}
	for path, doc := range tx.staged {
		m.docs[path] = doc
	}
	return nil
}

// # Unsynchronized Internals

func (m *MemoryBackend) get(path string) *Document {
	doc, ok := m.docs[path]
	if !ok {
		return nil
	}
	return doc.clone()
}

func (m *MemoryBackend) insert(doc *Document) error {
	if _, ok := m.docs[doc.Path]; ok {
		return apperr.Conflict("Document already exists")
	}
	m.docs[doc.Path] = doc.clone()
	return nil
}

func (m *MemoryBackend) replace(doc *Document) error {
	if _, ok := m.docs[doc.Path]; !ok {
		return apperr.NotFound("Document")
	}
	m.docs[doc.Path] = doc.clone()
	return nil
}

func (m *MemoryBackend) list(matchDoc func(*Document) bool, filters map[string]any) []*Document {
	var out []*Document
	for _, doc := range m.docs {
		if !matchDoc(doc) || !matchesFilters(doc, filters) {
			continue
		}
		out = append(out, doc.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// matchesFilters applies top-level equality filters, honoring the float64
// shape JSON decoding gives numbers.
func matchesFilters(doc *Document, filters map[string]any) bool {
	for key, want := range filters {
		got, ok := doc.Data[key]
		if !ok {
			return false
		}
		if normalizeNumber(got) != normalizeNumber(want) {
			return false
		}
	}
	return true
}

func normalizeNumber(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	default:
		return v
	}
}

// # Transaction View

// memoryTx overlays staged writes on the parent backend. The parent's write
// lock is held for the whole transaction, so no additional locking is needed.
type memoryTx struct {
	backend *MemoryBackend
	staged  map[string]*Document
	deleted map[string]bool
}

func (t *memoryTx) Get(_ context.Context, path string) (*Document, error) {
	if t.deleted[path] {
		return nil, nil
	}
	if doc, ok := t.staged[path]; ok {
		return doc.clone(), nil
	}
	return t.backend.get(path), nil
}

func (t *memoryTx) Insert(_ context.Context, doc *Document) error {
	existing, _ := t.Get(context.Background(), doc.Path)
	if existing != nil {
		return apperr.Conflict("Document already exists")
	}
	delete(t.deleted, doc.Path)
	t.staged[doc.Path] = doc.clone()
	return nil
}

func (t *memoryTx) Replace(_ context.Context, doc *Document) error {
	existing, _ := t.Get(context.Background(), doc.Path)
	if existing == nil {
		return apperr.NotFound("Document")
	}
	t.staged[doc.Path] = doc.clone()
	return nil
}

func (t *memoryTx) Delete(_ context.Context, path string) error {
	delete(t.staged, path)
	t.deleted[path] = true
	return nil
}

func (t *memoryTx) List(ctx context.Context, collection string, filters map[string]any) ([]*Document, error) {
	return t.list(func(doc *Document) bool { return doc.Collection == collection }, filters), nil
}

func (t *memoryTx) ListGroup(ctx context.Context, group string, filters map[string]any) ([]*Document, error) {
	return t.list(func(doc *Document) bool { return doc.Group == group }, filters), nil
}

func (t *memoryTx) list(matchDoc func(*Document) bool, filters map[string]any) []*Document {
	merged := make(map[string]*Document)
	for _, doc := range t.backend.list(matchDoc, filters) {
		merged[doc.Path] = doc
	}
	for path := range t.deleted {
		delete(merged, path)
	}
	for path, doc := range t.staged {
		if matchDoc(doc) && matchesFilters(doc, filters) {
			merged[path] = doc.clone()
		}
	}

	out := make([]*Document, 0, len(merged))
	for _, doc := range merged {
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Nested transactions just run in the enclosing one.
func (t *memoryTx) InTx(_ context.Context, fn func(Backend) error) error {
	return fn(t)
}
