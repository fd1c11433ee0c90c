package rules

import (
	"errors"
	"sync"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func always(in *Input) (bool, string) { return true, "always" }

func TestNewCatalogValidation(t *testing.T) {
	tests := []struct {
		name  string
		rules []*Rule
	}{
		{"empty", nil},
		{"missing id", []*Rule{{Severity: domain.SeverityLow, Predicate: always}}},
		{"duplicate id", []*Rule{
			{ID: "A", Severity: domain.SeverityLow, Predicate: always},
			{ID: "A", Severity: domain.SeverityLow, Predicate: always},
		}},
		{"no predicate", []*Rule{{ID: "A", Severity: domain.SeverityLow}}},
		{"negative weight", []*Rule{{ID: "A", Weight: -1, Severity: domain.SeverityLow, Predicate: always}}},
		{"bad severity", []*Rule{{ID: "A", Severity: "extreme", Predicate: always}}},
		{"mandatory without indicator", []*Rule{{ID: "A", Severity: domain.SeverityLow, Mandatory: true, Predicate: always}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalog(tt.rules)
			var cfgErr *domain.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
		})
	}
}

func TestCatalogReplaceKeepsSnapshot(t *testing.T) {
	catalog, err := NewCatalog([]*Rule{{ID: "A", Severity: domain.SeverityLow, Predicate: always}})
	if err != nil {
		t.Fatalf("failed to build catalog: %v", err)
	}

	before := catalog.Snapshot()
	if err := catalog.Replace([]*Rule{
		{ID: "B", Severity: domain.SeverityLow, Predicate: always},
		{ID: "C", Severity: domain.SeverityLow, Predicate: always},
	}); err != nil {
		t.Fatalf("replace failed: %v", err)
	}

	if len(before) != 1 || before[0].ID != "A" {
		t.Errorf("old snapshot changed: %v", before)
	}
	if catalog.Len() != 2 {
		t.Errorf("expected 2 rules, got %d", catalog.Len())
	}
	if _, ok := catalog.Get("A"); ok {
		t.Error("rule A should be gone")
	}

	if err := catalog.Replace(nil); err == nil {
		t.Error("expected error replacing with empty set")
	}
	if catalog.Len() != 2 {
		t.Error("failed replace must keep the current rules")
	}
}

func TestEvaluatorOrderAndPanics(t *testing.T) {
	catalog, err := NewCatalog([]*Rule{
		{ID: "FIRST", Weight: 1, Severity: domain.SeverityLow, Predicate: always},
		{ID: "BOOM", Weight: 50, Severity: domain.SeverityLow, Predicate: func(in *Input) (bool, string) {
			panic("broken rule")
		}},
		{ID: "NEVER", Weight: 50, Severity: domain.SeverityLow, Predicate: func(in *Input) (bool, string) { return false, "" }},
		{ID: "LAST", Weight: 2, Severity: domain.SeverityLow, Predicate: always},
	})
	if err != nil {
		t.Fatalf("failed to build catalog: %v", err)
	}

	hits := NewEvaluator(catalog).Evaluate(&Input{Tx: newTx("100")})
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].RuleID != "FIRST" || hits[1].RuleID != "LAST" {
		t.Errorf("unexpected order: %s, %s", hits[0].RuleID, hits[1].RuleID)
	}
	if got := PolicyScore(hits); got != 3 {
		t.Errorf("expected policy score 3, got %d", got)
	}
}

func TestEvaluatorConcurrentUse(t *testing.T) {
	catalog, err := NewCatalog(Builtins(domain.DefaultEngineConfig().Rules, nil))
	if err != nil {
		t.Fatalf("failed to build catalog: %v", err)
	}
	eval := NewEvaluator(catalog)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hits := eval.Evaluate(&Input{Tx: newTx("9500")})
			if PolicyScore(hits) != 35 {
				t.Errorf("expected policy score 35, got %d", PolicyScore(hits))
			}
		}()
	}
	wg.Wait()
}
