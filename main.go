package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/xiaot623/gogo/chatbot/internal/adapter/embedding"
	"github.com/xiaot623/gogo/chatbot/internal/adapter/llm"
	"github.com/xiaot623/gogo/chatbot/internal/adapter/vectorindex"
	"github.com/xiaot623/gogo/chatbot/internal/config"
	"github.com/xiaot623/gogo/chatbot/internal/lock"
	"github.com/xiaot623/gogo/chatbot/internal/metrics"
	"github.com/xiaot623/gogo/chatbot/internal/repository"
	"github.com/xiaot623/gogo/chatbot/internal/retrieval"
	"github.com/xiaot623/gogo/chatbot/internal/service"
	"github.com/xiaot623/gogo/chatbot/internal/session"
	handler "github.com/xiaot623/gogo/chatbot/internal/transport/http"
	"github.com/xiaot623/gogo/chatbot/internal/transport/ws"
	"github.com/xiaot623/gogo/chatbot/policy"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("chatbot: %v", err)
	}
	log.Println("Chat service stopped")
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log.Printf("Starting chat service...")
	log.Printf("HTTP address: %s", cfg.Addr())
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("Generation backend: %s (%s)", cfg.GenerationProvider, cfg.LLMServerURL)
	log.Printf("Vector index: %s", cfg.VectorIndex)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer db.Close()

	// Redis backs the session lock and the embedding cache when configured.
	var rdb redis.UniversalClient
	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		rdb = client
		locker = lock.NewRedisLocker(client, "", cfg.SessionLockTTL)
		log.Printf("Redis enabled: distributed session lock and embedding cache")
	}

	index, err := newIndex(ctx, cfg)
	if err != nil {
		return err
	}
	defer index.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	retriever := retrieval.NewEngine(embedding.NewClient(cfg, rdb), index, retrieval.Options{
		DefaultTopK:        cfg.DefaultTopK,
		MinSimilarityScore: cfg.MinSimilarityScore,
	}, m)
	sessions := session.NewManager(db, cfg.MaxContextMessages)

	// Initialize policy engine
	policyEngine, err := policy.NewEngineFromFile(ctx, cfg.PolicyFile)
	if err != nil {
		return fmt.Errorf("failed to initialize policy engine: %w", err)
	}

	// Initialize service
	svc := service.New(db, sessions, llm.NewClient(cfg), retriever, locker, cfg, policyEngine, m)

	// The memory index starts empty; rebuild it from the stored chunks.
	if cfg.VectorIndex == "memory" || cfg.VectorIndex == "" {
		n, err := svc.ReindexDocuments(ctx)
		if err != nil {
			log.Printf("WARN: failed to rebuild vector index, retrieval may miss documents: %v", err)
		} else if n > 0 {
			log.Printf("Rebuilt vector index: %d chunks", n)
		}
	}

	server := handler.NewServer(svc, cfg, m, reg)
	hub := ws.NewHub()
	server.GET("/ws/chat", ws.NewServer(svc, hub, ws.Options{}).HandleWebSocket)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return svc.RunSessionExpiry(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down chat service...")

		// Graceful shutdown
		hub.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Failed to shutdown server gracefully: %v", err)
		}
		return nil
	})

	return g.Wait()
}

func newIndex(ctx context.Context, cfg *config.Config) (vectorindex.Index, error) {
	switch cfg.VectorIndex {
	case "weaviate":
		idx, err := vectorindex.NewWeaviateIndex(ctx, cfg.WeaviateURL, cfg.WeaviateClass, retrieval.MetadataKeys)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize weaviate index: %w", err)
		}
		return idx, nil
	case "memory", "":
		return vectorindex.NewMemoryIndex(), nil
	}
	return nil, fmt.Errorf("unknown vector index %q", cfg.VectorIndex)
}
