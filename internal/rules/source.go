package rules

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Source supplies dynamic rule definitions.
type Source interface {
	LoadEnabledRules(ctx context.Context) ([]*domain.RuleDefinition, error)
}

// FileSource reads rule definitions from a YAML file:
//
//	rules:
//	  - id: NIGHT_CASH
//	    expression: 'tx_type == "cash" && hour < 5'
//	    weight: 10
type FileSource struct {
	Path string
}

type fileRule struct {
	ID           string          `yaml:"id"`
	Name         string          `yaml:"name"`
	Description  string          `yaml:"description"`
	Expression   string          `yaml:"expression"`
	Weight       int             `yaml:"weight"`
	Severity     domain.Severity `yaml:"severity"`
	Mandatory    bool            `yaml:"mandatory"`
	TimeCritical bool            `yaml:"time_critical"`
	Indicator    string          `yaml:"indicator"`

	// Enabled defaults to true when omitted.
	Enabled *bool `yaml:"enabled"`
}

type fileCatalog struct {
	Rules []fileRule `yaml:"rules"`
}

// LoadEnabledRules parses the file and returns the enabled definitions.
func (s *FileSource) LoadEnabledRules(_ context.Context) ([]*domain.RuleDefinition, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file %s: %w", s.Path, err)
	}

	var doc fileCatalog
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse rule file %s: %w", s.Path, err)
	}

	defs := make([]*domain.RuleDefinition, 0, len(doc.Rules))
	for _, fr := range doc.Rules {
		if fr.Enabled != nil && !*fr.Enabled {
			continue
		}
		defs = append(defs, &domain.RuleDefinition{
			ID:           fr.ID,
			Name:         fr.Name,
			Description:  fr.Description,
			Expression:   fr.Expression,
			Weight:       fr.Weight,
			Severity:     fr.Severity,
			Mandatory:    fr.Mandatory,
			TimeCritical: fr.TimeCritical,
			Indicator:    fr.Indicator,
			Enabled:      true,
		})
	}
	return defs, nil
}

// RepositorySource reads enabled definitions from the rule_definitions table.
type RepositorySource struct {
	Repo domain.Repository
}

// LoadEnabledRules lists stored definitions and drops disabled ones.
func (s *RepositorySource) LoadEnabledRules(ctx context.Context) ([]*domain.RuleDefinition, error) {
	all, err := s.Repo.ListRuleDefinitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rule definitions: %w", err)
	}
	enabled := make([]*domain.RuleDefinition, 0, len(all))
	for _, def := range all {
		if def.Enabled {
			enabled = append(enabled, def)
		}
	}
	return enabled, nil
}

// StaticSource serves a fixed list of definitions.
type StaticSource []*domain.RuleDefinition

// LoadEnabledRules returns the enabled entries.
func (s StaticSource) LoadEnabledRules(_ context.Context) ([]*domain.RuleDefinition, error) {
	out := make([]*domain.RuleDefinition, 0, len(s))
	for _, def := range s {
		if def.Enabled {
			out = append(out, def)
		}
	}
	return out, nil
}

// Loader assembles the full rule set: built-ins followed by compiled
// definitions from every source, in source order.
type Loader struct {
	cfg      domain.RulesConfig
	screener *Screener
	compiler *ExpressionCompiler
	sources  []Source
}

// NewLoader creates a loader.
func NewLoader(cfg domain.RulesConfig, compiler *ExpressionCompiler, sources ...Source) *Loader {
	return &Loader{
		cfg:      cfg,
		screener: NewScreener(cfg.SanctionsRoster, cfg.SanctionsKeywords, cfg.SanctionsSimilarity),
		compiler: compiler,
		sources:  sources,
	}
}

// Load builds the rule set. Any bad definition fails the whole load with a
// *domain.ConfigError so a half-valid catalog is never installed.
func (l *Loader) Load(ctx context.Context) ([]*Rule, error) {
	rules := Builtins(l.cfg, l.screener)

	for _, src := range l.sources {
		defs, err := src.LoadEnabledRules(ctx)
		if err != nil {
			return nil, &domain.ConfigError{Reason: "load rule definitions", Err: err}
		}
		for _, def := range defs {
			if l.compiler == nil {
				return nil, &domain.ConfigError{Reason: "expression rules configured without a compiler"}
			}
			r, err := l.compiler.Compile(def)
			if err != nil {
				return nil, &domain.ConfigError{Reason: "compile rule " + def.ID, Err: err}
			}
			rules = append(rules, r)
		}
	}

	slog.Debug("rule set loaded", "rules_count", len(rules))
	return rules, nil
}

// Reload loads a fresh rule set and installs it into catalog.
func (l *Loader) Reload(ctx context.Context, catalog *Catalog) error {
	rules, err := l.Load(ctx)
	if err != nil {
		return err
	}
	return catalog.Replace(rules)
}
