package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"cirvee_lms/internal/money"
	"cirvee_lms/internal/services"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		log.Fatal("REDIS_URL not set")
	}
	client, err := services.InitRedis(redisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	queue := services.NewRedisQueue(client)
	emails := services.NewEmailService()

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Println("Shutting down worker...")
		cancel()
	}()

	log.Println("Worker started. Waiting for notification jobs...")

	for {
		job, err := queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Printf("Dequeue failed: %v", err)
			time.Sleep(time.Second)
			continue
		}

		if err := handleJob(emails, job); err != nil {
			log.Printf("Job %s failed (attempt %d): %v", job.Type, job.Attempts+1, err)
			requeued, retryErr := queue.Retry(ctx, *job)
			if retryErr != nil {
				log.Printf("Retry handling failed: %v", retryErr)
			} else if !requeued {
				log.Printf("Job %s moved to dead-letter after %d attempts", job.Type, services.MaxJobAttempts)
			}
			continue
		}
		log.Printf("Job %s delivered", job.Type)
	}
}

func handleJob(emails *services.EmailService, job *services.NotificationJob) error {
	switch job.Type {
	case services.JobPaymentReminder:
		return sendReminder(emails, job.Payload)
	default:
		// Unknown job types are dropped, not retried.
		log.Printf("Unknown job type %q, dropping", job.Type)
		return nil
	}
}

func sendReminder(emails *services.EmailService, payload map[string]interface{}) error {
	to, _ := payload["email"].(string)
	firstName, _ := payload["first_name"].(string)
	courseTitle, _ := payload["course_title"].(string)
	balance, _ := payload["balance_kobo"].(float64)

	var dueDate *time.Time
	if raw, ok := payload["due_date"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			dueDate = &parsed
		}
	}

	return emails.SendPaymentReminder(to, firstName, courseTitle, money.Kobo(balance), dueDate)
}
