// Package notification delivers booking confirmations off the request path.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/example/room-timetable/internal/application"
)

// ErrQueueFull is returned by Notify when no queue slot is free. The booking
// that triggered the notification is unaffected.
var ErrQueueFull = errors.New("notification: queue full")

// ErrStopped is returned by Notify after the pool has shut down.
var ErrStopped = errors.New("notification: pool stopped")

// Message is what a Sender delivers to one recipient.
type Message struct {
	Recipient string
	Subject   string
	Body      string
	Summary   application.BookingSummary
}

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to the structured log. It stands in for a real
// delivery channel.
type LogSender struct {
	Logger *slog.Logger
}

// Send logs the message.
func (s LogSender) Send(ctx context.Context, msg Message) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "booking notification",
		"recipient", msg.Recipient,
		"subject", msg.Subject,
		"booking_id", msg.Summary.BookingID,
	)
	return nil
}

type job struct {
	recipients []string
	summary    application.BookingSummary
}

// WorkerPool fans notifications out to a fixed number of workers.
type WorkerPool struct {
	size   int
	jobs   chan job
	sender Sender
	logger *slog.Logger

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewWorkerPool creates a pool of size workers with a queue of queueSize jobs.
func NewWorkerPool(size, queueSize int, sender Sender, logger *slog.Logger) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	if queueSize <= 0 {
		queueSize = size
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerPool{
		size:   size,
		jobs:   make(chan job, queueSize),
		sender: sender,
		logger: logger.With("component", "notification"),
	}
}

// Start launches the worker goroutines. They exit when ctx is cancelled.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

// Wait blocks until every worker has exited.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()
	wp.logger.DebugContext(ctx, "worker started", "worker", id)
	for {
		select {
		case j := <-wp.jobs:
			wp.deliver(ctx, j)
		case <-ctx.Done():
			wp.mu.Lock()
			wp.stopped = true
			wp.mu.Unlock()
			wp.logger.DebugContext(ctx, "worker shutting down", "worker", id, "pending", len(wp.jobs))
			return
		}
	}
}

// Notify queues the summary for delivery without waiting.
func (wp *WorkerPool) Notify(ctx context.Context, recipients []string, summary application.BookingSummary) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.stopped {
		return ErrStopped
	}

	select {
	case wp.jobs <- job{recipients: append([]string(nil), recipients...), summary: summary}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (wp *WorkerPool) deliver(ctx context.Context, j job) {
	subject := fmt.Sprintf("Booking %s: %s", j.summary.Status, j.summary.Title)
	body := fmt.Sprintf("%s is booked in %s from %s to %s.",
		j.summary.Title,
		roomLabel(j.summary),
		j.summary.Start.Format("2006-01-02 15:04"),
		j.summary.End.Format("15:04"),
	)
	for _, recipient := range j.recipients {
		msg := Message{Recipient: recipient, Subject: subject, Body: body, Summary: j.summary}
		if err := wp.sender.Send(ctx, msg); err != nil {
			wp.logger.WarnContext(ctx, "notification delivery failed",
				"recipient", recipient,
				"booking_id", j.summary.BookingID,
				"error", err,
			)
		}
	}
}

func roomLabel(summary application.BookingSummary) string {
	if summary.RoomName != "" {
		return summary.RoomName
	}
	return summary.RoomID
}

var _ application.Notifier = (*WorkerPool)(nil)
