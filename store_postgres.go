package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

// PostgresStore keeps each item as a JSONB document keyed by its id.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore on top of an open pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// ConnectPostgres opens a pool and makes sure the items table exists.
func ConnectPostgres(ctx context.Context, cfg PostgresConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := EnsureItemsTable(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// EnsureItemsTable creates the list_items table if missing.
func EnsureItemsTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		create table if not exists list_items (
			id  text primary key,
			doc jsonb not null
		)
	`)
	if err != nil {
		return fmt.Errorf("create list_items table: %w", err)
	}
	return nil
}

// GetAll returns all items ordered by creation time, then id.
func (s *PostgresStore) GetAll(ctx context.Context) ([]ListItem, error) {
	rows, err := s.pool.Query(ctx, `select doc from list_items`)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := make([]ListItem, 0)
	for rows.Next() {
		var item ListItem
		if err := rows.Scan(&item); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	sortItems(items)
	return items, nil
}

// Get retrieves an item by ID.
func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (ListItem, bool, error) {
	return s.queryOne(ctx, `select doc from list_items where id = $1`, id.String())
}

// Add inserts a new item. The primary key turns a taken id into ErrDuplicateKey.
func (s *PostgresStore) Add(ctx context.Context, item ListItem) (ListItem, error) {
	_, err := s.pool.Exec(ctx, `
		insert into list_items (id, doc)
		values ($1, $2)
	`, item.ID.String(), item)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ListItem{}, ErrDuplicateKey
		}
		return ListItem{}, fmt.Errorf("insert item: %w", err)
	}
	return item, nil
}

// Delete removes an item by ID and returns the removed document.
func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) (ListItem, bool, error) {
	return s.queryOne(ctx, `delete from list_items where id = $1 returning doc`, id.String())
}

// Replace overwrites the document of an existing item.
func (s *PostgresStore) Replace(ctx context.Context, item ListItem) (ListItem, bool, error) {
	return s.queryOne(ctx, `
		update list_items
		set doc = $2
		where id = $1
		returning doc
	`, item.ID.String(), item)
}

// Keys returns the ids of all stored items.
func (s *PostgresStore) Keys(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `select id from list_items`)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt key %q: %w", raw, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keys: %w", err)
	}
	return ids, nil
}

// ReplaceAll clears the table and inserts items in one transaction.
func (s *PostgresStore) ReplaceAll(ctx context.Context, items []ListItem) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `delete from list_items`); err != nil {
		return fmt.Errorf("clear items: %w", err)
	}
	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(`insert into list_items (id, doc) values ($1, $2)`, item.ID.String(), item)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert items: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Ping checks the connection pool.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) queryOne(ctx context.Context, sql string, args ...any) (ListItem, bool, error) {
	var item ListItem
	err := s.pool.QueryRow(ctx, sql, args...).Scan(&item)
	if errors.Is(err, pgx.ErrNoRows) {
		return ListItem{}, false, nil
	}
	if err != nil {
		return ListItem{}, false, fmt.Errorf("query item: %w", err)
	}
	return item, true, nil
}
