package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"cirvee_lms/internal/repository"
	"cirvee_lms/internal/services"
)

func main() {
	runOnce := flag.Bool("once", false, "run a single reminder scan and exit")
	flag.Parse()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	db, err := services.InitDB(databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		log.Fatal("REDIS_URL not set")
	}
	client, err := services.InitRedis(redisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	repo := repository.NewGormRepository(db)
	queue := services.NewRedisQueue(client)
	scheduler := services.NewReminderScheduler(repo, queue)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Println("Shutting down scheduler...")
		cancel()
	}()

	if *runOnce {
		sent, err := scheduler.RunOnce(ctx)
		if err != nil {
			log.Fatalf("Reminder scan failed: %v", err)
		}
		log.Printf("Reminder scan done: %d reminders queued", sent)
		return
	}

	log.Println("Scheduler started")
	if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Scheduler stopped: %v", err)
	}
}
