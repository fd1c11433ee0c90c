package velocity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Service looks up recent history and party profiles.
type Service struct {
	repo       domain.Repository
	cache      domain.Cache
	profileTTL time.Duration
}

// NewService creates a lookup service. cache may be nil.
func NewService(repo domain.Repository, c domain.Cache, profileTTL time.Duration) *Service {
	if profileTTL <= 0 {
		profileTTL = 5 * time.Minute
	}
	return &Service{
		repo:       repo,
		cache:      c,
		profileTTL: profileTTL,
	}
}

// RecentHistory returns stored transactions of partyID within the window ending at until.
// Errors are returned as *domain.LookupError; callers degrade to an empty history.
func (s *Service) RecentHistory(ctx context.Context, partyID string, until time.Time, window time.Duration) ([]*domain.Transaction, error) {
	if s.repo == nil {
		return nil, nil
	}
	txs, err := s.repo.QueryRecentByParty(ctx, partyID, until.Add(-window), until)
	if err != nil {
		return nil, &domain.LookupError{Op: "history", PartyID: partyID, Err: err}
	}
	return txs, nil
}

// Profile returns the declared profile of partyID, or nil when none exists.
func (s *Service) Profile(ctx context.Context, partyID string) (*domain.PartyProfile, error) {
	key := profileKey(partyID)

	if s.cache != nil {
		var p domain.PartyProfile
		hit, err := cache.GetJSON(ctx, s.cache, key, &p)
		if err != nil {
			slog.Warn("profile cache read failed", "party_id", partyID, "error", err)
		} else if hit {
			return &p, nil
		}
	}

	if s.repo == nil {
		return nil, nil
	}
	p, err := s.repo.GetProfile(ctx, partyID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.LookupError{Op: "profile", PartyID: partyID, Err: err}
	}

	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, key, p, s.profileTTL); err != nil {
			slog.Warn("profile cache write failed", "party_id", partyID, "error", err)
		}
	}
	return p, nil
}

// SaveProfile stores a profile and drops any cached copy.
func (s *Service) SaveProfile(ctx context.Context, p *domain.PartyProfile) error {
	if err := s.repo.SaveProfile(ctx, p); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, profileKey(p.PartyID)); err != nil {
			slog.Warn("profile cache invalidation failed", "party_id", p.PartyID, "error", err)
		}
	}
	return nil
}

func profileKey(partyID string) string {
	return "profile:" + partyID
}
