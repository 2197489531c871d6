package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"tapntrack/internal/attendance"
	"tapntrack/internal/config"
	"tapntrack/internal/queue"
	"tapntrack/internal/stats"
	"tapntrack/internal/store"
)

// Worker consumes stats refresh messages and rewrites cached attendance
// rates on user records.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	if cfg.QueueBackend == "memory" {
		log.Fatalf("worker needs a shared queue; QUEUE_BACKEND=memory runs stats in the api process")
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Client.Close()
	if !redisClient.Healthy(ctx) {
		log.Printf("WARNING: redis at %s not reachable yet, will keep retrying", cfg.RedisAddr)
	}

	records, err := store.Open(ctx, store.Options{
		Backend:     cfg.StoreBackend,
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
		Redis:       redisClient,
	})
	if err != nil {
		log.Fatalf("record store open failed: %v", err)
	}
	defer records.Close()

	repo := attendance.NewRepository(records)
	engine := stats.NewEngine(repo, repo, cfg.StoreCallTimeout)
	q := queue.NewRedisQueue(redisClient.Client, "")

	log.Println("worker started, waiting for messages...")
	if err := engine.Work(ctx, q); err != nil {
		log.Printf("queue consume failed: %v", err)
	}
	log.Println("worker stopped")
}
