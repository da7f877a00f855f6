package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"gatelog/internal/config"
	"gatelog/internal/notify"
	"gatelog/internal/queue"
	"gatelog/internal/scan"
	"gatelog/internal/store"
)

// Worker consumes scan events, keeps the per-day check-in tally in
// Redis current, and forwards scans that carried violation alerts to
// the security-desk webhook.
func main() {
	_ = godotenv.Load()
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

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "gatelog:scans")
	}

	notifier := notify.New(cfg.AlertWebhookURL, cfg.AlertSkip)
	if !cfg.AlertSkip {
		if err := notifier.Health(ctx); err != nil {
			log.Printf("WARNING: alert webhook not available: %v", err)
			log.Println("Worker will keep trying as alerts arrive")
		} else {
			log.Println("Alert webhook connected")
		}
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for scan events...")
	for msg := range messages {
		if msg.Type != "scan" {
			continue
		}

		var evt scan.Event
		if err := json.Unmarshal(msg.Body, &evt); err != nil {
			log.Printf("malformed scan event: %v", err)
			continue
		}

		if evt.Event == scan.ActionCheckin {
			if err := redisClient.IncrDailyTally(ctx, evt.SubjectType, evt.Date); err != nil {
				log.Printf("tally update failed for %s: %v", evt.LogID, err)
			}
		}

		if evt.AlertCount > 0 {
			if err := notifier.Send(ctx, notify.Alert{
				LogID:       evt.LogID,
				SubjectID:   evt.SubjectID,
				SubjectType: evt.SubjectType,
				Event:       evt.Event,
				Date:        evt.Date,
				AlertCount:  evt.AlertCount,
			}); err != nil {
				log.Printf("alert notify failed for %s: %v", evt.LogID, err)
				continue
			}
			log.Printf("alert forwarded for log %s (%d violations)", evt.LogID, evt.AlertCount)
		}
	}

	log.Println("worker stopped")
}
