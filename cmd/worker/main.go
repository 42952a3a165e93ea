package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"attendanceguard/internal/attendance"
	"attendanceguard/internal/config"
	"attendanceguard/internal/engagement"
	"attendanceguard/internal/queue"
	"attendanceguard/internal/store"
)

// Worker consumes finalize jobs for ended online sessions and converts
// participant telemetry into attendance records.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "attendanceguard:finalize")
	}

	repo := attendance.NewRepository(db.Client)
	online := engagement.NewService(engagement.NewRepository(db.Client), repo, repo)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for finalize jobs...")
	for msg := range messages {
		if msg.Type != queue.TypeFinalize {
			continue
		}

		id := string(msg.Body)
		log.Printf("finalizing online session %s", id)

		if err := online.Finalize(ctx, id); err != nil {
			log.Printf("finalize %s failed: %v", id, err)
			continue
		}
		log.Printf("online session %s finalized", id)
	}

	log.Println("worker stopped")
}
