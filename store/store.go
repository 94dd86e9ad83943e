// Package store is the persistence seam of the storefront services. Services depend on
// Repository; Memory backs local runs and tests.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
)

// ErrNotFound is returned when no entity has the requested id.
var ErrNotFound = errors.New("entity not found")

// Repository persists entities of type T keyed by a numeric id.
type Repository[T any] interface {
	Find(ctx context.Context, id int64) (T, error)
	FindAll(ctx context.Context) ([]T, error)
	FindBy(ctx context.Context, match func(T) bool) ([]T, error)
	// Save stores v under id, assigning the next free id when id is 0.
	Save(ctx context.Context, id int64, v T) (T, error)
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int, error)
}

// Memory is a Repository held in process memory.
type Memory[T any] struct {
	mu     sync.RWMutex
	items  map[int64]T
	nextID int64
	setID  func(*T, int64)
}

var _ Repository[struct{}] = (*Memory[struct{}])(nil)

// NewMemory returns an empty repository. setID writes the assigned id into an entity.
func NewMemory[T any](setID func(*T, int64)) *Memory[T] {
	return &Memory[T]{items: make(map[int64]T), setID: setID}
}

func (m *Memory[T]) Find(ctx context.Context, id int64) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[id]
	if !ok {
		return zero, errors.Wrapf(ErrNotFound, "id %d", id)
	}
	return v, nil
}

// FindAll returns every entity ordered by id.
func (m *Memory[T]) FindAll(ctx context.Context) ([]T, error) {
	return m.FindBy(ctx, nil)
}

// FindBy returns the entities match accepts, ordered by id. A nil match accepts all.
func (m *Memory[T]) FindBy(ctx context.Context, match func(T) bool) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]int64, 0, len(m.items))
	for id := range m.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]T, 0, len(ids))
	for _, id := range ids {
		if v := m.items[id]; match == nil || match(v) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *Memory[T]) Save(ctx context.Context, id int64, v T) (T, error) {
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if id == 0 {
		m.nextID++
		id = m.nextID
	} else if id > m.nextID {
		m.nextID = id
	}
	if m.setID != nil {
		m.setID(&v, id)
	}
	m.items[id] = v
	return v, nil
}

func (m *Memory[T]) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return errors.Wrapf(ErrNotFound, "id %d", id)
	}
	delete(m.items, id)
	return nil
}

func (m *Memory[T]) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items), nil
}
