package main

import (
	"context"
	"os"
	"testing"
)

// newTestPostgresStore opens LISTAPP_TEST_DATABASE_URL and empties the items
// table. The database must be dedicated to tests.
func newTestPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("LISTAPP_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("LISTAPP_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := ConnectPostgres(ctx, PostgresConfig{URL: url, MaxConns: 2})
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	t.Cleanup(pool.Close)
	if _, err := pool.Exec(ctx, `delete from list_items`); err != nil {
		t.Fatalf("reset list_items: %v", err)
	}
	return NewPostgresStore(pool)
}

func TestPostgresStoreContract(t *testing.T) {
	testRepositoryContract(t, newTestPostgresStore(t))
}
