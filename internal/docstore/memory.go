package docstore

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Memory is an in-process Store. It backs VPSINV_STORE=memory and the
// repository tests; nothing survives a restart.
type Memory struct {
	mu     sync.RWMutex
	schema Schema
	docs   map[string]map[string]Document // collection -> id -> document
	now    func() time.Time
}

// NewMemory creates an empty in-memory store for schema.
func NewMemory(schema Schema) *Memory {
	return &Memory{
		schema: schema,
		docs:   make(map[string]map[string]Document),
		now:    Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) collection(name string) (map[string]Document, error) {
	if _, err := m.schema.Indexed(name); err != nil {
		return nil, err
	}
	c, ok := m.docs[name]
	if !ok {
		c = make(map[string]Document)
		m.docs[name] = c
	}
	return c, nil
}

func cloneDocument(d Document) Document {
	d.Attributes = CopyAttributes(d.Attributes)
	return d
}

// List returns the documents of collection matching every filter.
func (m *Memory) List(_ context.Context, collection string, filters ...Filter) ([]Document, error) {
	if err := m.schema.CheckFilters(collection, filters); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	docs := make([]Document, 0, len(m.docs[collection]))
	for _, d := range m.docs[collection] {
		if MatchesAll(d, filters) {
			docs = append(docs, cloneDocument(d))
		}
	}
	SortDocuments(docs)
	return docs, nil
}

// Get returns one document.
func (m *Memory) Get(_ context.Context, collection, id string) (Document, error) {
	if _, err := m.schema.Indexed(collection); err != nil {
		return Document{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.docs[collection][id]
	if !ok {
		return Document{}, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	return cloneDocument(d), nil
}

// Create stores a new document.
func (m *Memory) Create(_ context.Context, collection, id string, attrs map[string]string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.collection(collection)
	if err != nil {
		return Document{}, err
	}
	if id == "" {
		id = NewID()
	}
	if _, exists := c[id]; exists {
		return Document{}, fmt.Errorf("%w: %s/%s", ErrExists, collection, id)
	}

	now := m.now().UTC()
	d := Document{
		ID:         id,
		Attributes: CopyAttributes(attrs),
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    1,
	}
	c[id] = d
	return cloneDocument(d), nil
}

// Update replaces the attributes of an existing document.
func (m *Memory) Update(_ context.Context, collection, id string, attrs map[string]string, ifVersion int64) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.collection(collection)
	if err != nil {
		return Document{}, err
	}
	d, ok := c[id]
	if !ok {
		return Document{}, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	if ifVersion > 0 && d.Version != ifVersion {
		return Document{}, fmt.Errorf("%w: %s/%s has version %d, expected %d",
			ErrVersionMismatch, collection, id, d.Version, ifVersion)
	}

	d.Attributes = CopyAttributes(attrs)
	d.UpdatedAt = NextUpdate(d.UpdatedAt, m.now().UTC())
	d.Version++
	c[id] = d
	return cloneDocument(d), nil
}

// Delete removes a document.
func (m *Memory) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.collection(collection)
	if err != nil {
		return err
	}
	if _, ok := c[id]; !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	delete(c, id)
	return nil
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *Memory) Close() error { return nil }
