package advisory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
)

func sampleTx() *domain.Transaction {
	return &domain.Transaction{
		ID:        "tx-1",
		FromParty: "alice",
		ToParty:   "bob",
		Amount:    decimal.RequireFromString("2500"),
		Currency:  "AUD",
		Timestamp: time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC),
	}
}

func respondWith(t *testing.T, b *bus.ChannelBus, reply string) {
	t.Helper()
	_, err := b.Subscribe(context.Background(), domain.TopicAdvisoryScore, func(ctx context.Context, msg *domain.Message) error {
		var req Request
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return err
		}
		return bus.Respond(ctx, b, msg, []byte(reply))
	})
	require.NoError(t, err)
}

func TestNoneScorer(t *testing.T) {
	score, err := None{}.Score(context.Background(), sampleTx(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestBusScorer(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  float64
	}{
		{"in range", `{"score":0.42}`, 0.42},
		{"above one", `{"score":3.5}`, 1},
		{"negative", `{"score":-0.2}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := bus.NewChannelBus(10)
			defer b.Close()
			respondWith(t, b, tt.reply)

			score, err := NewBusScorer(b, time.Second).Score(context.Background(), sampleTx(), nil, nil)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, score, 1e-9)
		})
	}
}

func TestBusScorerDegrades(t *testing.T) {
	t.Run("no responder", func(t *testing.T) {
		b := bus.NewChannelBus(10)
		defer b.Close()

		score, err := NewBusScorer(b, 50*time.Millisecond).Score(context.Background(), sampleTx(), nil, nil)
		assert.Error(t, err)
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
		assert.Equal(t, 0.0, score)
	})

	t.Run("malformed reply", func(t *testing.T) {
		b := bus.NewChannelBus(10)
		defer b.Close()
		respondWith(t, b, "not json")

		score, err := NewBusScorer(b, time.Second).Score(context.Background(), sampleTx(), nil, nil)
		assert.Error(t, err)
		assert.Equal(t, 0.0, score)
	})
}

func TestNew(t *testing.T) {
	s, err := New(domain.AdvisoryConfig{Type: "none"}, nil)
	require.NoError(t, err)
	assert.IsType(t, None{}, s)

	_, err = New(domain.AdvisoryConfig{Type: "bus"}, nil)
	var cfgErr *domain.ConfigError
	assert.True(t, errors.As(err, &cfgErr))

	_, err = New(domain.AdvisoryConfig{Type: "oracle"}, nil)
	assert.Error(t, err)
}
