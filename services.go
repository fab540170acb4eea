package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IDGenerator produces identifiers for new items.
type IDGenerator interface {
	NewID() uuid.UUID
}

// Clock supplies the timestamps written into items.
type Clock interface {
	Now() time.Time
}

// UUIDGenerator generates random (version 4) UUIDs.
type UUIDGenerator struct{}

// NewID returns a new random identifier.
func (UUIDGenerator) NewID() uuid.UUID { return uuid.New() }

// UTCClock reads the wall clock in UTC.
type UTCClock struct{}

// Now returns the current time in UTC.
func (UTCClock) Now() time.Time { return time.Now().UTC() }

// InsertService creates new items.
type InsertService struct {
	repo  Repository
	ids   IDGenerator
	clock Clock
}

// NewInsertService creates an InsertService with dependencies.
func NewInsertService(repo Repository, ids IDGenerator, clock Clock) *InsertService {
	return &InsertService{repo: repo, ids: ids, clock: clock}
}

// Insert stores a new item holding text under a freshly generated id. A
// colliding id is retried once before giving up.
func (s *InsertService) Insert(ctx context.Context, text string) (ListItem, error) {
	item, err := s.InsertAt(ctx, s.ids.NewID(), text)
	if errors.Is(err, ErrDuplicateKey) {
		item, err = s.InsertAt(ctx, s.ids.NewID(), text)
	}
	return item, err
}

// InsertAt stores a new item under a caller-chosen id. It fails with
// ErrDuplicateKey if the id is taken.
func (s *InsertService) InsertAt(ctx context.Context, id uuid.UUID, text string) (ListItem, error) {
	now := s.clock.Now()
	item := ListItem{
		ID:           id,
		Text:         text,
		Created:      now,
		LastModified: now,
	}
	stored, err := s.repo.Add(ctx, item)
	if err != nil {
		return ListItem{}, fmt.Errorf("insert item %s: %w", id, err)
	}
	return stored, nil
}

// UpdateService replaces existing items.
type UpdateService struct {
	repo  Repository
	clock Clock
}

// NewUpdateService creates an UpdateService with dependencies.
func NewUpdateService(repo Repository, clock Clock) *UpdateService {
	return &UpdateService{repo: repo, clock: clock}
}

// CheckExists looks up the item with the given id.
func (s *UpdateService) CheckExists(ctx context.Context, id uuid.UUID) (OperationResult, error) {
	item, ok, err := s.repo.Get(ctx, id)
	if err != nil {
		return notFound, fmt.Errorf("get item %s: %w", id, err)
	}
	if !ok {
		return notFound, nil
	}
	return found(item), nil
}

// Update replaces existing with a copy carrying text. Id and creation time
// are kept; lastModified is moved to now, and always past its previous value.
// The result is not found when the item disappeared after it was checked.
func (s *UpdateService) Update(ctx context.Context, existing ListItem, text string) (OperationResult, error) {
	now := s.clock.Now()
	if !now.After(existing.LastModified) {
		now = existing.LastModified.Add(time.Nanosecond)
	}
	replacement := ListItem{
		ID:           existing.ID,
		Text:         text,
		Created:      existing.Created,
		LastModified: now,
	}
	item, ok, err := s.repo.Replace(ctx, replacement)
	if err != nil {
		return notFound, fmt.Errorf("replace item %s: %w", existing.ID, err)
	}
	if !ok {
		return notFound, nil
	}
	return found(item), nil
}

// ReplaceAll swaps the whole collection. Missing timestamps are stamped with
// the current time.
func (s *UpdateService) ReplaceAll(ctx context.Context, items []ListItem) ([]ListItem, error) {
	now := s.clock.Now()
	out := make([]ListItem, len(items))
	for i, item := range items {
		if item.Created.IsZero() {
			item.Created = now
		}
		if item.LastModified.IsZero() || item.LastModified.Before(item.Created) {
			item.LastModified = item.Created
		}
		out[i] = item
	}
	if err := s.repo.ReplaceAll(ctx, out); err != nil {
		return nil, fmt.Errorf("replace all items: %w", err)
	}
	return out, nil
}

// DeleteService removes items.
type DeleteService struct {
	repo Repository
}

// NewDeleteService creates a DeleteService.
func NewDeleteService(repo Repository) *DeleteService {
	return &DeleteService{repo: repo}
}

// Delete removes the item with the given id, reporting whether it existed.
func (s *DeleteService) Delete(ctx context.Context, id uuid.UUID) (OperationResult, error) {
	item, ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return notFound, fmt.Errorf("delete item %s: %w", id, err)
	}
	if !ok {
		return notFound, nil
	}
	return found(item), nil
}

// DeleteAll removes every item named in ids. When any id is unknown nothing
// is removed and the result reports Found false.
func (s *DeleteService) DeleteAll(ctx context.Context, ids []uuid.UUID) (BulkResult, error) {
	keys, err := s.repo.Keys(ctx)
	if err != nil {
		return BulkResult{}, fmt.Errorf("list keys: %w", err)
	}
	known := make(map[uuid.UUID]struct{}, len(keys))
	for _, id := range keys {
		known[id] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			return BulkResult{}, nil
		}
	}

	removed := make([]ListItem, 0, len(ids))
	for _, id := range ids {
		item, ok, err := s.repo.Delete(ctx, id)
		if err != nil {
			return BulkResult{}, fmt.Errorf("delete item %s: %w", id, err)
		}
		// a concurrent DELETE may have won; it is already gone either way
		if ok {
			removed = append(removed, item)
		}
	}
	return BulkResult{Found: true, Items: removed}, nil
}
