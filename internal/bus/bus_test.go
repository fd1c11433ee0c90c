package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func waitFor(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("timeout waiting for messages")
	}
}

func TestChannelBus(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()

	ctx := context.Background()

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		var got atomic.Value
		_, err := bus.Subscribe(ctx, domain.TopicScorecard, func(ctx context.Context, msg *domain.Message) error {
			got.Store(msg)
			wg.Done()
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		if err := bus.Publish(ctx, domain.TopicScorecard, []byte("hello")); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
		waitFor(t, &wg, time.Second)

		msg := got.Load().(*domain.Message)
		if string(msg.Payload) != "hello" {
			t.Errorf("expected payload 'hello', got '%s'", string(msg.Payload))
		}
		if msg.Topic != domain.TopicScorecard || msg.ID == "" {
			t.Errorf("unexpected envelope: %+v", msg)
		}
		if msg.Reply != "" {
			t.Errorf("plain publish must not carry a reply topic, got %q", msg.Reply)
		}
	})

	t.Run("TopicIsolation", func(t *testing.T) {
		var smr, other atomic.Int32
		var wg sync.WaitGroup
		wg.Add(1)

		bus.Subscribe(ctx, domain.TopicSMR, func(ctx context.Context, msg *domain.Message) error {
			smr.Add(1)
			wg.Done()
			return nil
		})
		bus.Subscribe(ctx, "kestrel.other", func(ctx context.Context, msg *domain.Message) error {
			other.Add(1)
			return nil
		})

		bus.Publish(ctx, domain.TopicSMR, []byte("smr"))
		waitFor(t, &wg, time.Second)
		time.Sleep(20 * time.Millisecond)

		if smr.Load() != 1 || other.Load() != 0 {
			t.Errorf("expected 1/0 deliveries, got %d/%d", smr.Load(), other.Load())
		}
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		var count atomic.Int32

		sub, _ := bus.Subscribe(ctx, "unsub.topic", func(ctx context.Context, msg *domain.Message) error {
			count.Add(1)
			return nil
		})

		bus.Publish(ctx, "unsub.topic", []byte("msg1"))
		time.Sleep(50 * time.Millisecond)
		if count.Load() != 1 {
			t.Errorf("expected 1 message before unsubscribe, got %d", count.Load())
		}

		if err := sub.Unsubscribe(); err != nil {
			t.Fatalf("unsubscribe failed: %v", err)
		}

		bus.Publish(ctx, "unsub.topic", []byte("msg2"))
		time.Sleep(50 * time.Millisecond)
		if count.Load() != 1 {
			t.Errorf("expected 1 message after unsubscribe, got %d", count.Load())
		}
	})

	t.Run("MultipleSubscribers", func(t *testing.T) {
		var count1, count2 atomic.Int32
		var wg sync.WaitGroup
		wg.Add(2)

		bus.Subscribe(ctx, "multi.topic", func(ctx context.Context, msg *domain.Message) error {
			count1.Add(1)
			wg.Done()
			return nil
		})
		bus.Subscribe(ctx, "multi.topic", func(ctx context.Context, msg *domain.Message) error {
			count2.Add(1)
			wg.Done()
			return nil
		})

		bus.Publish(ctx, "multi.topic", []byte("broadcast"))
		waitFor(t, &wg, time.Second)

		if count1.Load() != 1 || count2.Load() != 1 {
			t.Errorf("expected both subscribers to receive, got %d and %d", count1.Load(), count2.Load())
		}
	})

	t.Run("HandlerErrorKeepsSubscription", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(2)

		bus.Subscribe(ctx, "failing.topic", func(ctx context.Context, msg *domain.Message) error {
			wg.Done()
			return errors.New("handler failed")
		})

		bus.Publish(ctx, "failing.topic", []byte("a"))
		bus.Publish(ctx, "failing.topic", []byte("b"))
		waitFor(t, &wg, time.Second)
	})

	t.Run("Ping", func(t *testing.T) {
		if err := bus.Ping(ctx); err != nil {
			t.Errorf("ping failed: %v", err)
		}
	})

	t.Run("SubscriptionTopic", func(t *testing.T) {
		sub, _ := bus.Subscribe(ctx, "my.topic", func(ctx context.Context, msg *domain.Message) error {
			return nil
		})
		if sub.Topic() != "my.topic" {
			t.Errorf("expected topic 'my.topic', got '%s'", sub.Topic())
		}
	})
}

func TestChannelBusRequestReply(t *testing.T) {
	bus := NewChannelBus(10)
	defer bus.Close()

	ctx := context.Background()

	_, err := bus.Subscribe(ctx, domain.TopicAdvisoryScore, func(ctx context.Context, msg *domain.Message) error {
		return Respond(ctx, bus, msg, append([]byte("re:"), msg.Payload...))
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	reply, err := bus.Request(reqCtx, domain.TopicAdvisoryScore, []byte("tx-1"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if string(reply) != "re:tx-1" {
		t.Errorf("expected 're:tx-1', got %q", string(reply))
	}

	t.Run("NoResponder", func(t *testing.T) {
		shortCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()

		_, err := bus.Request(shortCtx, "nobody.listens", []byte("x"))
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	})

	t.Run("RespondWithoutReply", func(t *testing.T) {
		err := Respond(ctx, bus, &domain.Message{ID: "m-1"}, []byte("x"))
		if err == nil {
			t.Error("expected error responding to a message without reply topic")
		}
	})
}

func TestChannelBusClose(t *testing.T) {
	bus := NewChannelBus(100)
	ctx := context.Background()

	bus.Subscribe(ctx, "close.topic", func(ctx context.Context, msg *domain.Message) error {
		return nil
	})

	if err := bus.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}

	if err := bus.Publish(ctx, "close.topic", []byte("data")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after close, got %v", err)
	}
	if _, err := bus.Subscribe(ctx, "close.topic", func(ctx context.Context, msg *domain.Message) error { return nil }); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed on subscribe, got %v", err)
	}
	if err := bus.Ping(ctx); err == nil {
		t.Error("expected ping error after close")
	}
}

func TestNewBus(t *testing.T) {
	t.Run("ChannelType", func(t *testing.T) {
		bus, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 50})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer bus.Close()

		if _, ok := bus.(*ChannelBus); !ok {
			t.Error("expected ChannelBus for channel type")
		}
	})

	t.Run("DefaultType", func(t *testing.T) {
		bus, err := New(domain.EventBusConfig{})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer bus.Close()

		if _, ok := bus.(*ChannelBus); !ok {
			t.Error("expected ChannelBus by default")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}

func TestChannelBusHighLoad(t *testing.T) {
	bus := NewChannelBus(1000)
	defer bus.Close()

	ctx := context.Background()

	var received atomic.Int32
	const messageCount = 100

	var wg sync.WaitGroup
	wg.Add(messageCount)

	bus.Subscribe(ctx, "load.topic", func(ctx context.Context, msg *domain.Message) error {
		received.Add(1)
		wg.Done()
		return nil
	})

	for i := 0; i < messageCount; i++ {
		bus.Publish(ctx, "load.topic", []byte("msg"))
	}

	waitFor(t, &wg, 5*time.Second)
	if received.Load() != messageCount {
		t.Errorf("expected %d messages, got %d", messageCount, received.Load())
	}
}
