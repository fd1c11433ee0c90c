// Package worker analyzes batches submitted over the event bus (Pro tier).
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Analyzer is the batch entry point the worker drives.
type Analyzer interface {
	Analyze(ctx context.Context, records []domain.TransactionRecord) (*domain.BatchResult, error)
}

// Worker consumes TopicBatchSubmitted and publishes TopicBatchCompleted.
type Worker struct {
	bus      domain.EventBus
	analyzer Analyzer

	mu            sync.Mutex
	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// BatchMessage is the payload of TopicBatchSubmitted.
type BatchMessage struct {
	// RequestID is echoed in the completion event.
	RequestID    string                     `json:"requestId"`
	Transactions []domain.TransactionRecord `json:"transactions"`
}

// CompletedMessage is the payload of TopicBatchCompleted. Result is set
// whenever the batch produced scorecards, even if Error is also set.
type CompletedMessage struct {
	RequestID string              `json:"requestId"`
	Result    *domain.BatchResult `json:"result,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// NewWorker creates a worker.
func NewWorker(b domain.EventBus, analyzer Analyzer) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      b,
		analyzer: analyzer,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to TopicBatchSubmitted.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicBatchSubmitted, w.handleMessage)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", domain.TopicBatchSubmitted, err)
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("batch worker started", "topic", domain.TopicBatchSubmitted)
	return nil
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	w.wg.Add(1)
	defer w.wg.Done()

	start := time.Now()

	var batch BatchMessage
	if err := json.Unmarshal(msg.Payload, &batch); err != nil {
		slog.Error("failed to parse batch message",
			"message_id", msg.ID,
			"error", err,
		)
		return w.complete(ctx, msg, &CompletedMessage{RequestID: msg.ID, Error: "malformed batch message: " + err.Error()})
	}
	if batch.RequestID == "" {
		batch.RequestID = msg.ID
	}

	slog.Debug("processing batch",
		"request_id", batch.RequestID,
		"size", len(batch.Transactions),
	)

	done := &CompletedMessage{RequestID: batch.RequestID}
	result, err := w.analyzer.Analyze(ctx, batch.Transactions)
	done.Result = result
	if err != nil {
		done.Error = err.Error()

		var perr *domain.PersistenceError
		if !errors.As(err, &perr) {
			slog.Error("batch analysis failed",
				"request_id", batch.RequestID,
				"error", err,
			)
		}
	}

	if err := w.complete(ctx, msg, done); err != nil {
		return err
	}

	if result != nil {
		slog.Info("batch processed",
			"request_id", batch.RequestID,
			"batch_id", result.BatchID,
			"processed", result.ProcessedCount,
			"high_risk", result.HighRiskCount,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return nil
}

// complete publishes the completion event and answers the submitter if it
// used request-reply.
func (w *Worker) complete(ctx context.Context, msg *domain.Message, done *CompletedMessage) error {
	payload, err := json.Marshal(done)
	if err != nil {
		return fmt.Errorf("marshal completion: %w", err)
	}

	if err := w.bus.Publish(ctx, domain.TopicBatchCompleted, payload); err != nil {
		slog.Error("failed to publish batch completion",
			"request_id", done.RequestID,
			"error", err,
		)
	}
	if msg.Reply != "" {
		if err := bus.Respond(ctx, w.bus, msg, payload); err != nil {
			return fmt.Errorf("reply to %s: %w", msg.Reply, err)
		}
	}
	return nil
}

// Stop unsubscribes and waits for in-flight batches.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil
	w.mu.Unlock()

	w.wg.Wait()

	slog.Info("batch worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
