package rules

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestExpressionRule(t *testing.T) {
	compiler, err := NewExpressionCompiler()
	if err != nil {
		t.Fatalf("failed to create compiler: %v", err)
	}

	rule, err := compiler.Compile(&domain.RuleDefinition{
		ID:         "US_OUTBOUND",
		Expression: `amount > 1000.0 && dest_country == "US" && velocity_count >= 2`,
		Weight:     12,
		Severity:   domain.SeverityMedium,
		Enabled:    true,
	})
	if err != nil {
		t.Fatalf("failed to compile: %v", err)
	}
	if rule.Indicator != "US_OUTBOUND" || rule.Source != SourceExpression {
		t.Errorf("unexpected rule metadata: %+v", rule)
	}

	tx := newTx("1500")
	tx.DestCountry = "US"
	if fired, _ := rule.Predicate(&Input{Tx: tx, VelocityCount: 2}); !fired {
		t.Error("expected rule to fire")
	}
	if fired, _ := rule.Predicate(&Input{Tx: tx, VelocityCount: 1}); fired {
		t.Error("expected rule not to fire with low velocity")
	}
}

func TestExpressionProfileVariables(t *testing.T) {
	compiler, _ := NewExpressionCompiler()
	rule, err := compiler.Compile(&domain.RuleDefinition{
		ID:         "PEP_LARGE",
		Expression: `profile_pep && amount >= 5000.0`,
		Weight:     20,
	})
	if err != nil {
		t.Fatalf("failed to compile: %v", err)
	}

	if fired, _ := rule.Predicate(&Input{Tx: newTx("6000")}); fired {
		t.Error("expected no hit without a profile")
	}
	if fired, _ := rule.Predicate(&Input{Tx: newTx("6000"), Profile: &domain.PartyProfile{PEP: true}}); !fired {
		t.Error("expected hit for PEP profile")
	}
}

func TestExpressionCompileErrors(t *testing.T) {
	compiler, _ := NewExpressionCompiler()

	tests := []struct {
		name string
		def  *domain.RuleDefinition
	}{
		{"invalid syntax", &domain.RuleDefinition{ID: "BAD", Expression: "this is not valid CEL !!!"}},
		{"non-bool", &domain.RuleDefinition{ID: "NUM", Expression: "amount * 2.0"}},
		{"unknown variable", &domain.RuleDefinition{ID: "VAR", Expression: "balance > 0.0"}},
		{"missing id", &domain.RuleDefinition{Expression: "amount > 0.0"}},
		{"bad severity", &domain.RuleDefinition{ID: "SEV", Expression: "amount > 0.0", Severity: "extreme"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := compiler.Validate(tt.def); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `rules:
  - id: NIGHT_CASH
    name: Night cash
    expression: 'tx_type == "cash" && hour < 5'
    weight: 10
    severity: medium
  - id: OFF
    expression: 'amount > 0.0'
    weight: 1
    enabled: false
  - id: PEP
    expression: 'profile_pep'
    weight: 20
    severity: high
    mandatory: true
    time_critical: true
    indicator: PEP_INVOLVED
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write rules file: %v", err)
	}

	defs, err := (&FileSource{Path: path}).LoadEnabledRules(context.Background())
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("expected 2 enabled definitions, got %d", len(defs))
	}
	if defs[1].ID != "PEP" || !defs[1].Mandatory || !defs[1].TimeCritical || defs[1].Indicator != "PEP_INVOLVED" {
		t.Errorf("unexpected definition: %+v", defs[1])
	}
}

func TestLoader(t *testing.T) {
	compiler, _ := NewExpressionCompiler()
	cfg := domain.DefaultEngineConfig().Rules

	loader := NewLoader(cfg, compiler, StaticSource{
		{ID: "EXTRA", Expression: "amount > 50000.0", Weight: 5, Enabled: true},
		{ID: "SKIPPED", Expression: "amount > 0.0", Weight: 5, Enabled: false},
	})
	rules, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(rules) != 9 {
		t.Fatalf("expected 8 built-ins plus 1 expression rule, got %d", len(rules))
	}
	if rules[len(rules)-1].ID != "EXTRA" {
		t.Errorf("expression rules must follow built-ins, got %s last", rules[len(rules)-1].ID)
	}

	catalog, err := NewCatalog(rules)
	if err != nil {
		t.Fatalf("failed to build catalog: %v", err)
	}

	bad := NewLoader(cfg, compiler, StaticSource{{ID: "BROKEN", Expression: "amount +", Enabled: true}})
	err = bad.Reload(context.Background(), catalog)
	var cfgErr *domain.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if catalog.Len() != 9 {
		t.Error("failed reload must keep the current catalog")
	}

	dup := NewLoader(cfg, compiler, StaticSource{{ID: RuleStructuring, Expression: "amount > 0.0", Enabled: true}})
	if err := dup.Reload(context.Background(), catalog); err == nil {
		t.Error("expected duplicate id to be rejected")
	}
}
