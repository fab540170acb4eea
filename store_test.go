package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

var (
	idA = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	idB = uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	idC = uuid.MustParse("00000000-0000-0000-0000-00000000000c")
)

func testItem(id uuid.UUID, text string, created time.Time) ListItem {
	return ListItem{ID: id, Text: text, Created: created, LastModified: created}
}

// testRepositoryContract exercises a Repository that starts out empty.
func testRepositoryContract(t *testing.T, repo Repository) {
	ctx := context.Background()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	all, err := repo.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll on empty store: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected empty store, got %d items", len(all))
	}

	a := testItem(idA, "first", t0)
	b := testItem(idB, "second", t0.Add(time.Minute))
	for _, item := range []ListItem{b, a} {
		if _, err := repo.Add(ctx, item); err != nil {
			t.Fatalf("Add(%s): %v", item.ID, err)
		}
	}
	if _, err := repo.Add(ctx, testItem(idA, "dup", t0)); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("Add duplicate: want ErrDuplicateKey, got %v", err)
	}

	got, ok, err := repo.Get(ctx, idA)
	if err != nil || !ok {
		t.Fatalf("Get(a): ok=%v err=%v", ok, err)
	}
	if got.Text != "first" || !got.Created.Equal(t0) {
		t.Errorf("Get(a) = %+v", got)
	}
	if _, ok, err := repo.Get(ctx, idC); err != nil || ok {
		t.Fatalf("Get(missing): ok=%v err=%v", ok, err)
	}

	all, err = repo.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(all) != 2 || all[0].ID != idA || all[1].ID != idB {
		t.Fatalf("GetAll order = %+v", all)
	}

	keys, err := repo.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("Keys = %v", keys)
	}

	a.Text = "first, edited"
	a.LastModified = t0.Add(time.Hour)
	replaced, ok, err := repo.Replace(ctx, a)
	if err != nil || !ok {
		t.Fatalf("Replace(a): ok=%v err=%v", ok, err)
	}
	if replaced.Text != "first, edited" {
		t.Errorf("Replace returned %+v", replaced)
	}
	if _, ok, err := repo.Replace(ctx, testItem(idC, "ghost", t0)); err != nil || ok {
		t.Fatalf("Replace(missing): ok=%v err=%v", ok, err)
	}
	if _, ok, _ := repo.Get(ctx, idC); ok {
		t.Fatalf("Replace(missing) must not create the item")
	}

	removed, ok, err := repo.Delete(ctx, idA)
	if err != nil || !ok {
		t.Fatalf("Delete(a): ok=%v err=%v", ok, err)
	}
	if removed.Text != "first, edited" {
		t.Errorf("Delete returned %+v", removed)
	}
	if _, ok, err := repo.Delete(ctx, idA); err != nil || ok {
		t.Fatalf("second Delete(a): ok=%v err=%v", ok, err)
	}

	if err := repo.ReplaceAll(ctx, []ListItem{testItem(idC, "third", t0)}); err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}
	all, err = repo.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll after ReplaceAll: %v", err)
	}
	if len(all) != 1 || all[0].ID != idC {
		t.Fatalf("GetAll after ReplaceAll = %+v", all)
	}

	if err := repo.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestMemoryStoreContract(t *testing.T) {
	testRepositoryContract(t, NewMemoryStore())
}

func TestMemoryStoreReplaceAllRejectsDuplicates(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if _, err := s.Add(ctx, testItem(idA, "keep", time.Now())); err != nil {
		t.Fatal(err)
	}
	err := s.ReplaceAll(ctx, []ListItem{testItem(idB, "x", time.Now()), testItem(idB, "y", time.Now())})
	if !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("want ErrDuplicateKey, got %v", err)
	}
	if _, ok, _ := s.Get(ctx, idA); !ok {
		t.Fatalf("failed ReplaceAll must leave the store untouched")
	}
}

func TestMemoryStoreHonorsCancelledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Add(ctx, testItem(idA, "x", time.Now())); !errors.Is(err, context.Canceled) {
		t.Fatalf("Add: want context.Canceled, got %v", err)
	}
	if _, ok, _ := s.Get(context.Background(), idA); ok {
		t.Fatalf("cancelled Add must not store the item")
	}
}

func TestMemoryStoreConcurrentAdds(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Add(ctx, testItem(idA, "race", time.Now())); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one successful Add, got %d", wins)
	}
}
