package main

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Repository persists list items. Absence of an item is reported through the
// boolean result, never through the error.
type Repository interface {
	// GetAll returns every stored item.
	GetAll(ctx context.Context) ([]ListItem, error)
	// Get looks up a single item.
	Get(ctx context.Context, id uuid.UUID) (ListItem, bool, error)
	// Add stores a new item. It fails with ErrDuplicateKey when the id is taken.
	Add(ctx context.Context, item ListItem) (ListItem, error)
	// Delete removes an item and returns it.
	Delete(ctx context.Context, id uuid.UUID) (ListItem, bool, error)
	// Replace overwrites the item sharing item.ID.
	Replace(ctx context.Context, item ListItem) (ListItem, bool, error)
	// Keys returns the ids of all stored items.
	Keys(ctx context.Context) ([]uuid.UUID, error)
	// ReplaceAll clears the store and fills it with items.
	ReplaceAll(ctx context.Context, items []ListItem) error
	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}

// MemoryStore keeps items in a map guarded by a mutex.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[uuid.UUID]ListItem
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[uuid.UUID]ListItem)}
}

// GetAll returns all items ordered by creation time, then id.
func (s *MemoryStore) GetAll(ctx context.Context) ([]ListItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	items := make([]ListItem, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, item)
	}
	s.mu.RUnlock()
	sortItems(items)
	return items, nil
}

// Get retrieves an item by ID.
func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (ListItem, bool, error) {
	if err := ctx.Err(); err != nil {
		return ListItem{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	return item, ok, nil
}

// Add stores a new item; an id already present yields ErrDuplicateKey.
func (s *MemoryStore) Add(ctx context.Context, item ListItem) (ListItem, error) {
	if err := ctx.Err(); err != nil {
		return ListItem{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item.ID]; ok {
		return ListItem{}, ErrDuplicateKey
	}
	s.items[item.ID] = item
	return item, nil
}

// Delete removes an item by ID and returns it.
func (s *MemoryStore) Delete(ctx context.Context, id uuid.UUID) (ListItem, bool, error) {
	if err := ctx.Err(); err != nil {
		return ListItem{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if ok {
		delete(s.items, id)
	}
	return item, ok, nil
}

// Replace overwrites an existing item; unknown ids are left alone.
func (s *MemoryStore) Replace(ctx context.Context, item ListItem) (ListItem, bool, error) {
	if err := ctx.Err(); err != nil {
		return ListItem{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item.ID]; !ok {
		return ListItem{}, false, nil
	}
	s.items[item.ID] = item
	return item, true, nil
}

// Keys returns the ids of all stored items in no particular order.
func (s *MemoryStore) Keys(ctx context.Context) ([]uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]uuid.UUID, 0, len(s.items))
	for id := range s.items {
		keys = append(keys, id)
	}
	return keys, nil
}

// ReplaceAll swaps the whole collection for items.
func (s *MemoryStore) ReplaceAll(ctx context.Context, items []ListItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	next := make(map[uuid.UUID]ListItem, len(items))
	for _, item := range items {
		if _, ok := next[item.ID]; ok {
			return ErrDuplicateKey
		}
		next[item.ID] = item
	}
	s.mu.Lock()
	s.items = next
	s.mu.Unlock()
	return nil
}

// Ping reports only context cancellation; memory is always reachable.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// sortItems orders items by creation time, breaking ties by id, so that
// listings are stable for stores without a natural order.
func sortItems(items []ListItem) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].Created.Equal(items[j].Created) {
			return items[i].Created.Before(items[j].Created)
		}
		return items[i].ID.String() < items[j].ID.String()
	})
}
