package rules

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ExpressionCompiler turns CEL rule definitions into catalog rules.
type ExpressionCompiler struct {
	env *cel.Env
}

// NewExpressionCompiler creates a compiler with the transaction variables declared.
func NewExpressionCompiler() (*ExpressionCompiler, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("currency", cel.StringType),
		cel.Variable("tx_type", cel.StringType),
		cel.Variable("channel", cel.StringType),
		cel.Variable("from_party", cel.StringType),
		cel.Variable("to_party", cel.StringType),
		cel.Variable("origin_country", cel.StringType),
		cel.Variable("dest_country", cel.StringType),
		cel.Variable("velocity_count", cel.IntType),
		cel.Variable("history_count", cel.IntType),
		cel.Variable("hour", cel.IntType),
		cel.Variable("weekday", cel.IntType),
		cel.Variable("profile_occupation", cel.StringType),
		cel.Variable("profile_income_bracket", cel.StringType),
		cel.Variable("profile_pep", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &ExpressionCompiler{env: env}, nil
}

// Validate checks that a definition is well formed and its expression compiles.
func (c *ExpressionCompiler) Validate(def *domain.RuleDefinition) error {
	_, err := c.Compile(def)
	return err
}

// Compile builds a catalog rule from a definition.
func (c *ExpressionCompiler) Compile(def *domain.RuleDefinition) (*Rule, error) {
	if def == nil {
		return nil, fmt.Errorf("rule definition is required: %w", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(def.ID) == "" {
		return nil, fmt.Errorf("rule id is required: %w", domain.ErrInvalidInput)
	}
	if def.Weight < 0 {
		return nil, fmt.Errorf("rule %s: weight must not be negative: %w", def.ID, domain.ErrInvalidInput)
	}
	severity := def.Severity
	if severity == "" {
		severity = domain.SeverityMedium
	}
	if !severity.Valid() {
		return nil, fmt.Errorf("rule %s: unknown severity %q: %w", def.ID, def.Severity, domain.ErrInvalidInput)
	}
	indicator := def.Indicator
	if indicator == "" {
		indicator = def.ID
	}

	ast, issues := c.env.Compile(def.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", def.ID, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", def.ID, ast.OutputType())
	}

	program, err := c.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", def.ID, err)
	}

	name := def.Name
	if name == "" {
		name = def.ID
	}
	ruleID := def.ID
	expression := def.Expression

	return &Rule{
		ID:           def.ID,
		Name:         name,
		Weight:       def.Weight,
		Severity:     severity,
		Mandatory:    def.Mandatory,
		TimeCritical: def.TimeCritical,
		Indicator:    indicator,
		Source:       SourceExpression,
		Predicate: func(in *Input) (bool, string) {
			out, _, err := program.Eval(activation(in))
			if err != nil {
				slog.Warn("rule expression failed",
					"rule_id", ruleID,
					"tx_id", in.Tx.ID,
					"error", err,
				)
				return false, ""
			}
			if b, ok := out.(types.Bool); ok && bool(b) {
				return true, "expression matched: " + expression
			}
			return false, ""
		},
	}, nil
}

func activation(in *Input) map[string]any {
	tx := in.Tx
	amount, _ := tx.Amount.Float64()

	vars := map[string]any{
		"amount":                 amount,
		"currency":               tx.Currency,
		"tx_type":                tx.Type,
		"channel":                tx.Channel,
		"from_party":             tx.FromParty,
		"to_party":               tx.ToParty,
		"origin_country":         tx.OriginCountry,
		"dest_country":           tx.DestCountry,
		"velocity_count":         int64(in.VelocityCount),
		"history_count":          int64(len(in.History)),
		"hour":                   int64(tx.Timestamp.Hour()),
		"weekday":                int64(tx.Timestamp.Weekday()),
		"profile_occupation":     "",
		"profile_income_bracket": "",
		"profile_pep":            false,
	}
	if p := in.Profile; p != nil {
		vars["profile_occupation"] = strings.ToLower(p.Occupation)
		vars["profile_income_bracket"] = string(p.IncomeBracket)
		vars["profile_pep"] = p.PEP
	}
	return vars
}
