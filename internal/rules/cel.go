package rules

import (
	"fmt"
	"log/slog"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// BonusEngine evaluates operator-defined CEL expressions against prepared
// rows. Each rule contributes its configured points scaled by the
// expression value (bool -> 0/1, numeric passed through).
type BonusEngine struct {
	programs []compiledBonus
}

type compiledBonus struct {
	rule    domain.BonusRule
	program cel.Program
}

// NewBonusEngine compiles the configured bonus rules.
func NewBonusEngine(bonusRules []domain.BonusRule) (*BonusEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("amount_abs", cel.DoubleType),
		cel.Variable("hour", cel.IntType),
		cel.Variable("is_night", cel.BoolType),
		cel.Variable("category", cel.IntType),
		cel.Variable("tx_type", cel.IntType),
		cel.Variable("flow", cel.StringType),
		cel.Variable("cust_tx_cnt", cel.IntType),
		cel.Variable("cust_amount_mean", cel.DoubleType),
		cel.Variable("cust_amount_std", cel.DoubleType),
		cel.Variable("cust_category_cnt", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	engine := &BonusEngine{}
	for _, rule := range bonusRules {
		ast, issues := env.Compile(rule.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("failed to compile bonus rule %s: %w", rule.ID, issues.Err())
		}

		outputType := ast.OutputType()
		if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
			return nil, fmt.Errorf("bonus rule %s: expression must return bool, int, or double, got %s", rule.ID, outputType)
		}

		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("failed to create program for bonus rule %s: %w", rule.ID, err)
		}

		engine.programs = append(engine.programs, compiledBonus{rule: rule, program: program})
	}

	return engine, nil
}

// Points evaluates all bonus rules against one row and sums their
// contributions. Evaluation errors contribute zero and are logged.
func (e *BonusEngine) Points(row domain.PreparedTransaction) float64 {
	activation := map[string]any{
		"amount":            row.Amount,
		"amount_abs":        row.AmountAbs,
		"hour":              int64(row.Hour),
		"is_night":          row.IsNight,
		"category":          row.CategoryCode,
		"tx_type":           row.TypeCode,
		"flow":              row.Flow,
		"cust_tx_cnt":       row.Aggregate.TxCount,
		"cust_amount_mean":  row.Aggregate.AmountMean,
		"cust_amount_std":   row.Aggregate.AmountStd,
		"cust_category_cnt": row.Aggregate.CategoryCount,
	}

	total := 0.0
	for _, cb := range e.programs {
		out, _, err := cb.program.Eval(activation)
		if err != nil {
			slog.Warn("bonus rule evaluation failed",
				"rule_id", cb.rule.ID,
				"error", err,
			)
			continue
		}
		total += cb.rule.Points * toScale(out)
	}
	return total
}

// Len returns the number of compiled bonus rules.
func (e *BonusEngine) Len() int {
	return len(e.programs)
}

// toScale converts a CEL value to a contribution scale factor.
func toScale(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}
