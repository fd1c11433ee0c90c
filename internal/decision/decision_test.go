package decision

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func scoring() domain.ScoringConfig {
	return domain.DefaultEngineConfig().Scoring
}

func TestCombineBlended(t *testing.T) {
	c := NewCombiner(scoring())

	tests := []struct {
		name      string
		policy    int
		advisory  float64
		mandatory bool
		want      int
	}{
		{"nothing", 0, 0, false, 0},
		{"policy only", 40, 0, false, 28},
		{"policy and advisory", 40, 0.5, false, 43},
		{"advisory only", 0, 1, false, 30},
		{"capped", 200, 1, false, 100},
		{"mandatory floor", 25, 0, true, 90},
		{"mandatory above floor", 95, 0, true, 95},
		{"mandatory capped", 150, 0, true, 100},
		{"advisory out of range", 10, 7, false, 37},
		{"advisory NaN", 10, math.NaN(), false, 7},
		{"negative advisory", 10, -3, false, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Combine(tt.policy, tt.advisory, tt.mandatory))
		})
	}
}

func TestCombineCappedSum(t *testing.T) {
	cfg := scoring()
	cfg.Strategy = domain.StrategyCappedSum
	c := NewCombiner(cfg)

	assert.Equal(t, 35, c.Combine(35, 1, true))
	assert.Equal(t, 100, c.Combine(140, 0, false))
	assert.Equal(t, 0, c.Combine(0, 1, false))
}

func TestCombineBounds(t *testing.T) {
	for _, strategy := range []domain.CombineStrategy{domain.StrategyBlended, domain.StrategyCappedSum} {
		cfg := scoring()
		cfg.Strategy = strategy
		c := NewCombiner(cfg)
		for policy := 0; policy <= 300; policy += 7 {
			for _, adv := range []float64{-1, 0, 0.33, 1, 2} {
				for _, mandatory := range []bool{false, true} {
					got := c.Combine(policy, adv, mandatory)
					require.GreaterOrEqual(t, got, 0)
					require.LessOrEqual(t, got, 100)
				}
			}
		}
	}
}

func TestAddBusinessDays(t *testing.T) {
	tests := []struct {
		name string
		from time.Time
		days int
		want time.Time
	}{
		{"friday skips weekend", time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC), 3, time.Date(2025, 3, 19, 10, 0, 0, 0, time.UTC)},
		{"monday", time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC), 3, time.Date(2025, 3, 13, 10, 0, 0, 0, time.UTC)},
		{"saturday", time.Date(2025, 3, 15, 8, 0, 0, 0, time.UTC), 3, time.Date(2025, 3, 19, 8, 0, 0, 0, time.UTC)},
		{"sunday", time.Date(2025, 3, 16, 23, 59, 0, 0, time.UTC), 1, time.Date(2025, 3, 17, 23, 59, 0, 0, time.UTC)},
		{"zero days", time.Date(2025, 3, 15, 8, 0, 0, 0, time.UTC), 0, time.Date(2025, 3, 15, 8, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AddBusinessDays(tt.from, tt.days, time.UTC)
			assert.True(t, got.Equal(tt.want), "got %s, want %s", got, tt.want)
		})
	}
}

func TestAddBusinessDaysUsesReportingZone(t *testing.T) {
	loc := time.FixedZone("AEST", 10*3600)
	// Friday 20:00 UTC is Saturday 06:00 in AEST, so Saturday and Sunday are both skipped.
	from := time.Date(2025, 3, 14, 20, 0, 0, 0, time.UTC)
	got := AddBusinessDays(from, 1, loc)
	assert.Equal(t, time.Monday, got.Weekday())
	assert.True(t, got.Equal(time.Date(2025, 3, 16, 20, 0, 0, 0, time.UTC)))
}

func TestClassifierTier(t *testing.T) {
	c, err := NewClassifier(scoring())
	require.NoError(t, err)

	assert.Equal(t, domain.TierNormal, c.Tier(29, nil))
	assert.Equal(t, domain.TierEDD, c.Tier(30, nil))
	assert.Equal(t, domain.TierEDD, c.Tier(59, nil))
	assert.Equal(t, domain.TierSMR, c.Tier(60, nil))
	assert.Equal(t, domain.TierSMR, c.Tier(0, []string{domain.FlagHighRiskJurisdiction}))
}

func TestClassifierConfigErrors(t *testing.T) {
	cfg := scoring()
	cfg.EDDThreshold = 70

	_, err := NewClassifier(cfg)
	var cfgErr *domain.ConfigError
	assert.True(t, errors.As(err, &cfgErr))

	cfg = scoring()
	cfg.ReportingTimezone = "Mars/Olympus_Mons"
	_, err = NewClassifier(cfg)
	assert.True(t, errors.As(err, &cfgErr))
}

func TestProcessorDeadlines(t *testing.T) {
	p, err := NewProcessor(scoring())
	require.NoError(t, err)
	friday := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	p.Now = func() time.Time { return friday }

	t.Run("structuring gets three business days", func(t *testing.T) {
		card := p.Process(&Input{
			TransactionID: "tx-1",
			TriggeredRules: []domain.TriggeredRule{
				{RuleID: "STRUCTURING", Indicator: domain.FlagStructuringSuspected, Weight: 25, Mandatory: true},
				{RuleID: "ROUND_AMOUNT", Indicator: "ROUND_AMOUNT", Weight: 10},
			},
		})
		assert.Equal(t, 35, card.PolicyScore)
		assert.Equal(t, 90, card.FinalScore)
		assert.Equal(t, domain.TierSMR, card.Tier)
		assert.Equal(t, []string{domain.FlagStructuringSuspected}, card.MandatoryFlags)
		require.NotNil(t, card.DueBy)
		assert.True(t, card.DueBy.Equal(time.Date(2025, 3, 19, 10, 0, 0, 0, time.UTC)))
		assert.Contains(t, card.Rationale, "STRUCTURING(+25)")
	})

	t.Run("sanctions get 24 hours", func(t *testing.T) {
		card := p.Process(&Input{
			TransactionID: "tx-2",
			TriggeredRules: []domain.TriggeredRule{
				{RuleID: "SANCTIONS_HIT", Indicator: domain.FlagSanctionsHit, Weight: 35, Mandatory: true, TimeCritical: true},
			},
		})
		require.NotNil(t, card.DueBy)
		assert.True(t, card.DueBy.Equal(friday.Add(24*time.Hour)))
	})

	t.Run("configured time-critical flag", func(t *testing.T) {
		card := p.Process(&Input{
			TransactionID: "tx-3",
			TriggeredRules: []domain.TriggeredRule{
				{RuleID: "CUSTOM", Indicator: domain.FlagSanctionsHit, Weight: 1, Mandatory: true},
			},
		})
		require.NotNil(t, card.DueBy)
		assert.True(t, card.DueBy.Equal(friday.Add(24*time.Hour)))
	})

	t.Run("normal has no deadline", func(t *testing.T) {
		card := p.Process(&Input{TransactionID: "tx-4", AdvisoryScore: 0.2})
		assert.Equal(t, 6, card.FinalScore)
		assert.Equal(t, domain.TierNormal, card.Tier)
		assert.Nil(t, card.DueBy)
		assert.Empty(t, card.MandatoryFlags)
		assert.Contains(t, card.Rationale, "no rules triggered")
	})

	t.Run("edd has no deadline", func(t *testing.T) {
		card := p.Process(&Input{
			TransactionID:  "tx-5",
			TriggeredRules: []domain.TriggeredRule{{RuleID: "CASH_CHANNEL", Weight: 15}, {RuleID: "VELOCITY", Weight: 20}, {RuleID: "PROFILE_INCONSISTENCY", Weight: 15}},
		})
		assert.Equal(t, 35, card.FinalScore)
		assert.Equal(t, domain.TierEDD, card.Tier)
		assert.Nil(t, card.DueBy)
	})
}

func TestProcessorRejectsUnknownStrategy(t *testing.T) {
	cfg := scoring()
	cfg.Strategy = "max"
	_, err := NewProcessor(cfg)
	var cfgErr *domain.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestMandatoryFlagsDeduplicated(t *testing.T) {
	flags := MandatoryFlags([]domain.TriggeredRule{
		{Indicator: "B", Mandatory: true},
		{Indicator: "A", Mandatory: true},
		{Indicator: "B", Mandatory: true},
		{Indicator: "C"},
	})
	assert.Equal(t, []string{"A", "B"}, flags)
}
