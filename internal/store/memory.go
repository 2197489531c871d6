package store

import (
	"context"
	"slices"
	"sync"

	"tapntrack/internal/model"
)

type memCollection struct {
	order []string
	docs  map[string]model.Document
}

// Memory is an in-process RecordStore. Iteration follows insertion order.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]*memCollection)}
}

func (m *Memory) coll(name string) *memCollection {
	c, ok := m.collections[name]
	if !ok {
		c = &memCollection{docs: make(map[string]model.Document)}
		m.collections[name] = c
	}
	return c
}

func (m *Memory) Get(ctx context.Context, collection, id string) (model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[collection]
	if !ok {
		return nil, ErrNotFound
	}
	doc, ok := c.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return doc.Clone(), nil
}

func (m *Memory) GetAll(ctx context.Context, collection string) ([]model.Document, error) {
	return m.QueryByField(ctx, collection, "", nil)
}

// QueryByField with an empty field matches every document.
func (m *Memory) QueryByField(ctx context.Context, collection, field string, value any) ([]model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[collection]
	if !ok {
		return []model.Document{}, nil
	}
	out := make([]model.Document, 0, len(c.order))
	for _, id := range c.order {
		doc := c.docs[id]
		if field != "" && !model.EqualScalar(doc[field], value) {
			continue
		}
		out = append(out, doc.Clone())
	}
	return out, nil
}

func (m *Memory) Set(ctx context.Context, collection, id string, doc model.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.coll(collection)
	if _, ok := c.docs[id]; !ok {
		c.order = append(c.order, id)
	}
	c.docs[id] = merge(nil, doc)
	return nil
}

func (m *Memory) UpdateFields(ctx context.Context, collection, id string, fields model.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[collection]
	if !ok {
		return ErrNotFound
	}
	doc, ok := c.docs[id]
	if !ok {
		return ErrNotFound
	}
	c.docs[id] = merge(doc, fields)
	return nil
}

func (m *Memory) Remove(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[collection]
	if !ok {
		return nil
	}
	if _, ok := c.docs[id]; !ok {
		return nil
	}
	delete(c.docs, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) Take(ctx context.Context, collection, id string) (model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[collection]
	if !ok {
		return nil, ErrNotFound
	}
	doc, ok := c.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(c.docs, id)
	c.order = slices.DeleteFunc(c.order, func(v string) bool { return v == id })
	return doc, nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
