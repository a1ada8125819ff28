package repository

import (
	"context"
	"sync"

	"graph-persistence/internal/metadata"
	"graph-persistence/internal/query"
)

// MemoryHandle keeps entities in process memory. It stores and hands out
// copies, so callers never share an instance with the store or each other.
type MemoryHandle struct {
	desc *metadata.Descriptor

	mu    sync.RWMutex
	rows  map[string]any
	order []string
	seq   int64
}

func NewMemoryHandle(desc *metadata.Descriptor) *MemoryHandle {
	return &MemoryHandle{desc: desc, rows: make(map[string]any)}
}

func (h *MemoryHandle) EntityType() string { return h.desc.EntityType }

func (h *MemoryHandle) FindByID(_ context.Context, id any) (any, bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.rows[idKey(id)]
	if !ok {
		return nil, false, nil
	}
	c, err := h.desc.Clone(e)
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

func (h *MemoryHandle) Save(_ context.Context, entity any) (any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.desc.ID(entity)
	if emptyID(id) {
		generated, ok := newID(h.desc.IDStrategy)
		if !ok {
			h.seq++
			generated = h.seq
		}
		if err := h.desc.SetID(entity, generated); err != nil {
			return nil, err
		}
		id = generated
	}
	stored, err := h.desc.Clone(entity)
	if err != nil {
		return nil, err
	}
	key := idKey(id)
	if _, exists := h.rows[key]; !exists {
		h.order = append(h.order, key)
	}
	h.rows[key] = stored
	return entity, nil
}

func (h *MemoryHandle) DeleteByID(_ context.Context, id any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := idKey(id)
	if _, ok := h.rows[key]; !ok {
		return nil
	}
	delete(h.rows, key)
	for i, k := range h.order {
		if k == key {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	return nil
}

func (h *MemoryHandle) FindMatching(_ context.Context, pred query.Expr, orders []query.OrderSpec, page *query.PageRequest) (*Page, error) {
	h.mu.RLock()
	items := make([]any, 0, len(h.order))
	for _, k := range h.order {
		items = append(items, h.rows[k])
	}
	h.mu.RUnlock()

	// stored rows are replaced on save, never mutated, so matching outside
	// the lock is safe
	content, total, err := query.Match(items, pred, orders, page)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(content))
	for i, e := range content {
		if out[i], err = h.desc.Clone(e); err != nil {
			return nil, err
		}
	}
	return &Page{Content: out, TotalElements: total}, nil
}
