package decision

import (
	"fmt"
	"slices"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Classifier maps a final score and mandatory flags to a compliance tier
// and computes the reporting deadline.
type Classifier struct {
	smrThreshold       int
	eddThreshold       int
	businessDays       int
	timeCriticalWindow time.Duration
	timeCriticalFlags  []string
	loc                *time.Location
}

// NewClassifier validates the thresholds and loads the reporting timezone.
func NewClassifier(cfg domain.ScoringConfig) (*Classifier, error) {
	if cfg.EDDThreshold < 0 || cfg.SMRThreshold > maxScore {
		return nil, &domain.ConfigError{Reason: fmt.Sprintf("thresholds out of range: edd=%d smr=%d", cfg.EDDThreshold, cfg.SMRThreshold)}
	}
	if cfg.EDDThreshold > cfg.SMRThreshold {
		return nil, &domain.ConfigError{Reason: fmt.Sprintf("edd threshold %d above smr threshold %d", cfg.EDDThreshold, cfg.SMRThreshold)}
	}
	if cfg.BusinessDays < 0 {
		return nil, &domain.ConfigError{Reason: "business days must not be negative"}
	}

	tz := cfg.ReportingTimezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, &domain.ConfigError{Reason: "load reporting timezone " + tz, Err: err}
	}

	return &Classifier{
		smrThreshold:       cfg.SMRThreshold,
		eddThreshold:       cfg.EDDThreshold,
		businessDays:       cfg.BusinessDays,
		timeCriticalWindow: cfg.TimeCriticalWindow,
		timeCriticalFlags:  cfg.TimeCriticalFlags,
		loc:                loc,
	}, nil
}

// Tier returns SMR when any mandatory flag is present or the score reaches
// the SMR threshold, EDD at the EDD threshold, NORMAL otherwise.
func (c *Classifier) Tier(finalScore int, mandatoryFlags []string) domain.Tier {
	switch {
	case len(mandatoryFlags) > 0, finalScore >= c.smrThreshold:
		return domain.TierSMR
	case finalScore >= c.eddThreshold:
		return domain.TierEDD
	}
	return domain.TierNormal
}

// TimeCritical reports whether any triggered rule demands the short deadline.
func (c *Classifier) TimeCritical(triggered []domain.TriggeredRule) bool {
	for _, t := range triggered {
		if t.TimeCritical || (t.Mandatory && slices.Contains(c.timeCriticalFlags, t.Indicator)) {
			return true
		}
	}
	return false
}

// DueBy returns the reporting deadline, or nil unless tier is SMR.
func (c *Classifier) DueBy(tier domain.Tier, timeCritical bool, now time.Time) *time.Time {
	if tier != domain.TierSMR {
		return nil
	}
	var due time.Time
	if timeCritical {
		due = now.Add(c.timeCriticalWindow).UTC()
	} else {
		due = AddBusinessDays(now, c.businessDays, c.loc).UTC()
	}
	return &due
}
