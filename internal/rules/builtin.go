package rules

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Built-in rule ids.
const (
	RuleLargeTransaction     = "LARGE_TRANSACTION"
	RuleStructuring          = "STRUCTURING"
	RuleRoundAmount          = "ROUND_AMOUNT"
	RuleHighRiskJurisdiction = "HIGH_RISK_JURISDICTION"
	RuleCashChannel          = "CASH_CHANNEL"
	RuleSanctionsHit         = "SANCTIONS_HIT"
	RuleVelocity             = "VELOCITY"
	RuleProfileInconsistency = "PROFILE_INCONSISTENCY"
)

var (
	thousand    = decimal.NewFromInt(1000)
	fiveHundred = decimal.NewFromInt(500)
)

// Builtins returns the built-in rules in evaluation order.
func Builtins(cfg domain.RulesConfig, screener *Screener) []*Rule {
	if screener == nil {
		screener = NewScreener(cfg.SanctionsRoster, cfg.SanctionsKeywords, cfg.SanctionsSimilarity)
	}

	threshold := decimal.NewFromFloat(cfg.LargeAmountThreshold)
	step := decimal.NewFromFloat(cfg.LargeAmountStep)
	critical := decimal.NewFromFloat(cfg.CriticalAmount)
	structuringFloor := decimal.NewFromFloat(cfg.StructuringFloor)

	highRisk := upperSet(cfg.HighRiskCountries)
	cashTypes := lowerSet(cfg.CashTypes)
	profiles := newProfileCeilings(cfg)

	all := []*Rule{
		{
			ID:        RuleLargeTransaction,
			Name:      "Large transaction",
			Weight:    0,
			Severity:  domain.SeverityHigh,
			Indicator: RuleLargeTransaction,
			Source:    SourceBuiltin,
			Predicate: func(in *Input) (bool, string) {
				if in.Tx.Amount.LessThan(threshold) {
					return false, ""
				}
				return true, fmt.Sprintf("amount %s is at or above %s", in.Tx.Amount, threshold)
			},
			Weigher: func(in *Input) (int, domain.Severity) {
				weight := 0
				if step.IsPositive() {
					weight = int(in.Tx.Amount.Sub(threshold).Div(step).Floor().IntPart())
				}
				weight = min(weight, cfg.LargeAmountMaxWeight)
				severity := domain.SeverityHigh
				if in.Tx.Amount.GreaterThanOrEqual(critical) {
					severity = domain.SeverityCritical
				}
				return weight, severity
			},
		},
		{
			ID:        RuleStructuring,
			Name:      "Structuring below reporting threshold",
			Weight:    cfg.StructuringWeight,
			Severity:  domain.SeverityHigh,
			Mandatory: true,
			Indicator: domain.FlagStructuringSuspected,
			Source:    SourceBuiltin,
			Predicate: func(in *Input) (bool, string) {
				a := in.Tx.Amount
				if a.GreaterThanOrEqual(structuringFloor) && a.LessThan(threshold) {
					return true, fmt.Sprintf("amount %s is just under the %s reporting threshold", a, threshold)
				}
				return false, ""
			},
		},
		{
			ID:        RuleRoundAmount,
			Name:      "Round amount",
			Weight:    cfg.RoundAmountWeight,
			Severity:  domain.SeverityLow,
			Indicator: RuleRoundAmount,
			Source:    SourceBuiltin,
			Predicate: func(in *Input) (bool, string) {
				a := in.Tx.Amount
				switch {
				case a.Mod(thousand).IsZero():
					return true, fmt.Sprintf("amount %s is a multiple of 1000", a)
				case a.Mod(fiveHundred).IsZero():
					return true, fmt.Sprintf("amount %s is a multiple of 500", a)
				}
				return false, ""
			},
		},
		{
			ID:        RuleHighRiskJurisdiction,
			Name:      "High-risk destination jurisdiction",
			Weight:    cfg.HighRiskWeight,
			Severity:  domain.SeverityHigh,
			Mandatory: true,
			Indicator: domain.FlagHighRiskJurisdiction,
			Source:    SourceBuiltin,
			Predicate: func(in *Input) (bool, string) {
				dest := in.Tx.DestCountry
				if _, ok := highRisk[dest]; ok && dest != "" {
					return true, "destination country " + dest + " is high risk"
				}
				return false, ""
			},
		},
		{
			ID:        RuleCashChannel,
			Name:      "Cash channel",
			Weight:    cfg.CashWeight,
			Severity:  domain.SeverityMedium,
			Indicator: RuleCashChannel,
			Source:    SourceBuiltin,
			Predicate: func(in *Input) (bool, string) {
				t, ch := in.Tx.Type, in.Tx.Channel
				if _, ok := cashTypes[t]; ok && t != "" {
					return true, "transaction type " + t + " is cash"
				}
				if strings.Contains(t, "cash") {
					return true, "transaction type " + t + " is cash"
				}
				if _, ok := cashTypes[ch]; ok && ch != "" {
					return true, "channel " + ch + " is cash"
				}
				return false, ""
			},
		},
		{
			ID:           RuleSanctionsHit,
			Name:         "Sanctions or PEP indicator",
			Weight:       cfg.SanctionsWeight,
			Severity:     domain.SeverityCritical,
			Mandatory:    true,
			TimeCritical: true,
			Indicator:    domain.FlagSanctionsHit,
			Source:       SourceBuiltin,
			Predicate: func(in *Input) (bool, string) {
				for _, party := range []string{in.Tx.FromParty, in.Tx.ToParty} {
					m, ok := screener.Screen(party)
					if !ok {
						continue
					}
					if m.Keyword {
						return true, fmt.Sprintf("party %s contains keyword %q", party, m.Entry)
					}
					return true, fmt.Sprintf("party %s matches roster entry %q (similarity %.2f)", party, m.Entry, m.Similarity)
				}
				return false, ""
			},
		},
		{
			ID:        RuleVelocity,
			Name:      "High sender velocity",
			Weight:    0,
			Severity:  domain.SeverityMedium,
			Indicator: RuleVelocity,
			Source:    SourceBuiltin,
			Predicate: func(in *Input) (bool, string) {
				if in.VelocityCount > cfg.VelocityThreshold {
					return true, fmt.Sprintf("%d transactions from %s within %s", in.VelocityCount, in.Tx.FromParty, cfg.VelocityWindow)
				}
				return false, ""
			},
			Weigher: func(in *Input) (int, domain.Severity) {
				return min(cfg.VelocityMaxWeight, in.VelocityCount*cfg.VelocityMultiplier), domain.SeverityMedium
			},
		},
		{
			ID:        RuleProfileInconsistency,
			Name:      "Amount inconsistent with declared profile",
			Weight:    cfg.ProfileModerateWeight,
			Severity:  domain.SeverityMedium,
			Indicator: RuleProfileInconsistency,
			Source:    SourceBuiltin,
			Predicate: func(in *Input) (bool, string) {
				ratio, ceiling, ok := profiles.ratio(in)
				if !ok || ratio <= cfg.ProfileModerateRatio {
					return false, ""
				}
				return true, fmt.Sprintf("amount %s is %.1fx the %s ceiling for the declared profile", in.Tx.Amount, ratio, ceiling)
			},
			Weigher: func(in *Input) (int, domain.Severity) {
				ratio, _, _ := profiles.ratio(in)
				if ratio > cfg.ProfileSevereRatio {
					return cfg.ProfileSevereWeight, domain.SeverityHigh
				}
				return cfg.ProfileModerateWeight, domain.SeverityMedium
			},
		},
	}

	if len(cfg.Disabled) == 0 {
		return all
	}
	out := all[:0]
	for _, r := range all {
		if !slices.Contains(cfg.Disabled, r.ID) {
			out = append(out, r)
		}
	}
	return out
}

type profileCeilings struct {
	byBracket      map[domain.IncomeBracket]decimal.Decimal
	lowOccupations map[string]struct{}
}

func newProfileCeilings(cfg domain.RulesConfig) *profileCeilings {
	byBracket := make(map[domain.IncomeBracket]decimal.Decimal, 3)
	for bracket, ceiling := range map[domain.IncomeBracket]float64{
		domain.IncomeLow:    cfg.ProfileLowCeiling,
		domain.IncomeMedium: cfg.ProfileMediumCeiling,
		domain.IncomeHigh:   cfg.ProfileHighCeiling,
	} {
		if ceiling > 0 {
			byBracket[bracket] = decimal.NewFromFloat(ceiling)
		}
	}
	return &profileCeilings{
		byBracket:      byBracket,
		lowOccupations: lowerSet(cfg.LowIncomeOccupations),
	}
}

// ratio returns amount divided by the sender's bracket ceiling.
func (c *profileCeilings) ratio(in *Input) (float64, decimal.Decimal, bool) {
	p := in.Profile
	if p == nil {
		return 0, decimal.Zero, false
	}
	bracket := p.IncomeBracket
	if bracket == "" {
		if _, low := c.lowOccupations[strings.ToLower(strings.TrimSpace(p.Occupation))]; low {
			bracket = domain.IncomeLow
		}
	}
	ceiling, ok := c.byBracket[bracket]
	if !ok {
		return 0, decimal.Zero, false
	}
	ratio, _ := in.Tx.Amount.Div(ceiling).Float64()
	return ratio, ceiling, true
}

func upperSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[strings.ToUpper(strings.TrimSpace(v))] = struct{}{}
	}
	return set
}

func lowerSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[strings.ToLower(strings.TrimSpace(v))] = struct{}{}
	}
	return set
}
