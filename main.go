package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
)

func main() {
	logger := log.New(os.Stdout, "listapp ", log.LstdFlags|log.Lmicroseconds)
	ctx := context.Background()

	configPath := flag.String("config", os.Getenv("LISTAPP_CONFIG"), "path to a TOML config file")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("could not load config: %v", err)
	}

	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		logger.Fatalf("could not open %s storage: %v", cfg.Storage, err)
	}
	defer closeRepo.Close()

	routes := NewRouteHelper(cfg.BasePath)
	handler := NewHandler(repo, UUIDGenerator{}, UTCClock{}, routes, logger)
	if n, err := seedItems(ctx, repo, handler.insert, cfg.Seed); err != nil {
		logger.Fatalf("could not seed items: %v", err)
	} else if n > 0 {
		logger.Printf("seeded %d items", n)
	}

	router := NewRouter(handler, logger, RouterOptions{
		BasePath:       cfg.BasePath,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		RequestTimeout: time.Duration(cfg.RequestTimeout),
	})

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: time.Duration(cfg.RequestTimeout) + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Printf("server is listening on %s (storage: %s)", server.Addr, cfg.Storage)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("could not listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Println("server is shutting down")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout))
	defer cancel()
	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Fatalf("server forced to shutdown: %v", err)
	}

	logger.Println("server stopped")
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// openRepository builds the Repository selected by cfg.Storage.
func openRepository(ctx context.Context, cfg Config) (Repository, io.Closer, error) {
	switch cfg.Storage {
	case "memory":
		return NewMemoryStore(), closerFunc(func() error { return nil }), nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("could not connect to redis (%s): %w", cfg.Redis.Addr, err)
		}
		return NewRedisStore(client, cfg.Redis.KeyPrefix), client, nil
	case "postgres":
		pool, err := ConnectPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		return NewPostgresStore(pool), closerFunc(func() error { pool.Close(); return nil }), nil
	default:
		return nil, nil, fmt.Errorf("unknown storage %q", cfg.Storage)
	}
}

// seedItems inserts texts when repo holds no items yet.
func seedItems(ctx context.Context, repo Repository, insert *InsertService, texts []string) (int, error) {
	if len(texts) == 0 {
		return 0, nil
	}
	keys, err := repo.Keys(ctx)
	if err != nil {
		return 0, err
	}
	if len(keys) > 0 {
		return 0, nil
	}
	for i, text := range texts {
		if _, err := insert.Insert(ctx, text); err != nil {
			return i, err
		}
	}
	return len(texts), nil
}
