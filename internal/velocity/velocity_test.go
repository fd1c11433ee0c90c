package velocity

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
)

var base = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func tx(id, from string, at time.Time) *domain.Transaction {
	return &domain.Transaction{
		ID:        id,
		FromParty: from,
		ToParty:   "merchant",
		Amount:    decimal.NewFromInt(100),
		Currency:  "AUD",
		Timestamp: at,
	}
}

func TestFrequencyMapCount(t *testing.T) {
	var txs []*domain.Transaction
	for i := 0; i < 6; i++ {
		txs = append(txs, tx(fmt.Sprintf("a-%d", i), "alice", base.Add(time.Duration(i)*time.Hour)))
	}
	txs = append(txs, tx("a-old", "alice", base.Add(-30*time.Hour)))
	txs = append(txs, tx("b-0", "bob", base))

	m := NewFrequencyMap(txs, 24*time.Hour)

	tests := []struct {
		name   string
		sender string
		at     time.Time
		want   int
	}{
		{"first of burst", "alice", base, 1},
		{"last of burst", "alice", base.Add(5 * time.Hour), 6},
		{"old one alone", "alice", base.Add(-30 * time.Hour), 1},
		{"window boundary excluded", "alice", base.Add(24 * time.Hour), 5},
		{"other sender", "bob", base.Add(time.Hour), 1},
		{"unknown sender", "carol", base, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.Count(tt.sender, tt.at); got != tt.want {
				t.Errorf("Count(%s) = %d, want %d", tt.sender, got, tt.want)
			}
		})
	}

	if !m.Contains("a-3") || m.Contains("zzz") {
		t.Error("Contains returned wrong membership")
	}
}

func TestHistoricalCountSkipsBatchMembers(t *testing.T) {
	m := NewFrequencyMap([]*domain.Transaction{tx("in-batch", "alice", base)}, 24*time.Hour)

	history := []*domain.Transaction{
		tx("in-batch", "alice", base),
		tx("h1", "alice", base.Add(-time.Hour)),
		tx("h2", "alice", base.Add(-23*time.Hour)),
		tx("h3", "alice", base.Add(-25*time.Hour)),
		{ID: "h4", FromParty: "bob", ToParty: "alice", Timestamp: base.Add(-time.Hour)},
	}
	if got := m.HistoricalCount(history, "alice", base); got != 2 {
		t.Errorf("expected 2 historical transactions, got %d", got)
	}
}

type failingRepo struct {
	domain.Repository
}

func (failingRepo) QueryRecentByParty(context.Context, string, time.Time, time.Time) ([]*domain.Transaction, error) {
	return nil, errors.New("connection refused")
}

func (failingRepo) GetProfile(context.Context, string) (*domain.PartyProfile, error) {
	return nil, errors.New("connection refused")
}

func TestServiceLookupErrors(t *testing.T) {
	svc := NewService(failingRepo{}, nil, time.Minute)
	ctx := context.Background()

	_, err := svc.RecentHistory(ctx, "alice", base, 24*time.Hour)
	var lookupErr *domain.LookupError
	if !errors.As(err, &lookupErr) {
		t.Fatalf("expected LookupError, got %v", err)
	}
	if lookupErr.PartyID != "alice" || lookupErr.Op != "history" {
		t.Errorf("unexpected lookup error: %+v", lookupErr)
	}

	if _, err := svc.Profile(ctx, "alice"); !errors.As(err, &lookupErr) {
		t.Fatalf("expected LookupError for profile, got %v", err)
	}
}

func TestServiceWithRepository(t *testing.T) {
	repo := repository.NewMemory()
	lru := cache.NewLRUCache(100)
	svc := NewService(repo, lru, time.Minute)
	ctx := context.Background()

	t.Run("History", func(t *testing.T) {
		if err := repo.UpsertTransactions(ctx, []*domain.Transaction{
			tx("h1", "alice", base.Add(-2*time.Hour)),
			tx("h2", "alice", base.Add(-48*time.Hour)),
		}); err != nil {
			t.Fatalf("failed to seed: %v", err)
		}

		history, err := svc.RecentHistory(ctx, "alice", base, 24*time.Hour)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(history) != 1 || history[0].ID != "h1" {
			t.Errorf("expected only h1, got %d transactions", len(history))
		}
	})

	t.Run("MissingProfile", func(t *testing.T) {
		p, err := svc.Profile(ctx, "nobody")
		if err != nil || p != nil {
			t.Errorf("expected nil profile, got %v, %v", p, err)
		}
	})

	t.Run("CachedProfile", func(t *testing.T) {
		if err := svc.SaveProfile(ctx, &domain.PartyProfile{PartyID: "alice", IncomeBracket: domain.IncomeLow}); err != nil {
			t.Fatalf("save failed: %v", err)
		}

		p, err := svc.Profile(ctx, "alice")
		if err != nil || p == nil || p.IncomeBracket != domain.IncomeLow {
			t.Fatalf("unexpected profile %v, %v", p, err)
		}
		if val, _ := lru.Get(ctx, "profile:alice"); val == nil {
			t.Error("expected profile to be cached")
		}

		if err := svc.SaveProfile(ctx, &domain.PartyProfile{PartyID: "alice", IncomeBracket: domain.IncomeHigh}); err != nil {
			t.Fatalf("save failed: %v", err)
		}
		p, _ = svc.Profile(ctx, "alice")
		if p.IncomeBracket != domain.IncomeHigh {
			t.Errorf("expected updated bracket, got %s", p.IncomeBracket)
		}
	})
}
