package queue_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dmitrymomot/jobqueue/pkg/queue"
)

// Example_oneTimeJob demonstrates enqueueing and processing a one-time job
func Example_oneTimeJob() {
	// Create memory storage
	storage := queue.NewMemoryStorage()
	defer storage.Close()

	// Create enqueuer
	enqueuer, err := queue.NewEnqueuer(storage)
	if err != nil {
		panic(err)
	}

	// Define job payload
	type EmailPayload struct {
		To      string `json:"to"`
		Subject string `json:"subject"`
	}

	payload := EmailPayload{
		To:      "user@example.com",
		Subject: "Welcome!",
	}

	// Enqueue job
	if _, err := enqueuer.Enqueue(context.Background(), payload); err != nil {
		panic(err)
	}

	fmt.Println("Job enqueued")

	done := make(chan struct{})

	// Create worker with no logger to avoid output noise
	worker, err := queue.NewWorker(storage,
		queue.WithMaxConcurrentJobs(1),
		queue.WithPollInterval(10*time.Millisecond),
		queue.WithWorkerLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		panic(err)
	}

	// Register handler - handler name is derived from the payload type
	worker.RegisterHandlers(queue.NewJobHandler(func(ctx context.Context, email EmailPayload) error {
		fmt.Printf("Sending email to %s: %s\n", email.To, email.Subject)
		close(done)
		return nil
	}))

	// Start worker and wait for the job to be processed
	if err := worker.Start(context.Background()); err != nil {
		panic(err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		panic("job was not processed")
	}

	if err := worker.Stop(); err != nil {
		panic(err)
	}

	// Output:
	// Job enqueued
	// Sending email to user@example.com: Welcome!
}
