package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/pipeline"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
)

func newAnalyzer(t *testing.T) *pipeline.Orchestrator {
	t.Helper()
	cfg := domain.DefaultEngineConfig()
	catalog, err := rules.NewCatalog(rules.Builtins(cfg.Rules, nil))
	if err != nil {
		t.Fatalf("failed to build catalog: %v", err)
	}
	o, err := pipeline.New(pipeline.Options{
		Engine:     cfg,
		Catalog:    catalog,
		Repository: repository.NewMemory(),
	})
	if err != nil {
		t.Fatalf("failed to create orchestrator: %v", err)
	}
	return o
}

func batchPayload(t *testing.T, requestID string) []byte {
	t.Helper()
	payload, err := json.Marshal(BatchMessage{
		RequestID: requestID,
		Transactions: []domain.TransactionRecord{
			{ID: "tx-001", Type: "transfer", FromParty: "alice", ToParty: "bob", Amount: "9500", Currency: "AUD", Timestamp: "2025-03-14T10:00:00Z"},
			{ID: "tx-002", Type: "transfer", FromParty: "alice", ToParty: "bob", Amount: "oops", Currency: "AUD", Timestamp: "2025-03-14T10:05:00Z"},
		},
	})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return payload
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	t.Run("StartAndStop", func(t *testing.T) {
		w := NewWorker(eventBus, newAnalyzer(t))
		if err := w.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 1 || stats.Topics[0] != domain.TopicBatchSubmitted {
			t.Errorf("unexpected stats: %+v", stats)
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
		if w.GetStats().SubscriptionCount != 0 {
			t.Error("expected 0 subscriptions after stop")
		}
	})

	t.Run("PublishesCompletion", func(t *testing.T) {
		w := NewWorker(eventBus, newAnalyzer(t))
		if err := w.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		completed := make(chan []byte, 1)
		sub, err := eventBus.Subscribe(context.Background(), domain.TopicBatchCompleted, func(ctx context.Context, msg *domain.Message) error {
			completed <- msg.Payload
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}
		defer sub.Unsubscribe()

		if err := eventBus.Publish(context.Background(), domain.TopicBatchSubmitted, batchPayload(t, "req-1")); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		var payload []byte
		select {
		case payload = <-completed:
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for batch completion")
		}

		var done CompletedMessage
		if err := json.Unmarshal(payload, &done); err != nil {
			t.Fatalf("failed to parse completion: %v", err)
		}
		if done.RequestID != "req-1" || done.Error != "" {
			t.Fatalf("unexpected completion: %+v", done)
		}
		if done.Result.ProcessedCount != 1 || done.Result.SkippedCount != 1 {
			t.Errorf("expected 1 processed and 1 skipped, got %d and %d", done.Result.ProcessedCount, done.Result.SkippedCount)
		}
		if done.Result.Scorecards[0].Tier != domain.TierSMR {
			t.Errorf("expected SMR tier, got %s", done.Result.Scorecards[0].Tier)
		}
	})

	t.Run("RequestReply", func(t *testing.T) {
		w := NewWorker(eventBus, newAnalyzer(t))
		if err := w.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		reply, err := eventBus.Request(ctx, domain.TopicBatchSubmitted, batchPayload(t, "req-2"))
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}

		var done CompletedMessage
		if err := json.Unmarshal(reply, &done); err != nil {
			t.Fatalf("failed to parse reply: %v", err)
		}
		if done.RequestID != "req-2" || done.Result == nil {
			t.Errorf("unexpected reply: %+v", done)
		}
	})
}

type stubAnalyzer struct {
	result *domain.BatchResult
	err    error
}

func (s stubAnalyzer) Analyze(context.Context, []domain.TransactionRecord) (*domain.BatchResult, error) {
	return s.result, s.err
}

func TestWorkerReportsErrors(t *testing.T) {
	tests := []struct {
		name       string
		payload    []byte
		analyzer   stubAnalyzer
		wantResult bool
	}{
		{"malformed payload", []byte("{not json"), stubAnalyzer{}, false},
		{"batch too large", []byte(`{"transactions":[]}`), stubAnalyzer{err: domain.ErrBatchTooLarge}, false},
		{"unpersisted result", []byte(`{"transactions":[]}`), stubAnalyzer{
			result: &domain.BatchResult{BatchID: "b-1"},
			err:    &domain.PersistenceError{Op: "graph", Err: errors.New("timeout")},
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eventBus := bus.NewChannelBus(10)
			defer eventBus.Close()

			w := NewWorker(eventBus, tt.analyzer)
			if err := w.Start(); err != nil {
				t.Fatalf("Start failed: %v", err)
			}
			defer w.Stop()

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			reply, err := eventBus.Request(ctx, domain.TopicBatchSubmitted, tt.payload)
			if err != nil {
				t.Fatalf("Request failed: %v", err)
			}

			var done CompletedMessage
			if err := json.Unmarshal(reply, &done); err != nil {
				t.Fatalf("failed to parse reply: %v", err)
			}
			if done.Error == "" {
				t.Error("expected error in completion")
			}
			if (done.Result != nil) != tt.wantResult {
				t.Errorf("result presence = %v, want %v", done.Result != nil, tt.wantResult)
			}
		})
	}
}
