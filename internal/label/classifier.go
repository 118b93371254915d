// Package label implements risk classification and the end-to-end
// labeling pass: blend rule and anomaly scores into a risk score,
// threshold it into a level, tag verification complexity and replace
// the labeled table.
package label

import (
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Classifier turns scored features into risk labels.
type Classifier struct {
	cfg            domain.LabelingConfig
	riskCategories map[int64]bool
}

// NewClassifier creates a classifier from the labeling config.
func NewClassifier(cfg domain.LabelingConfig) *Classifier {
	return &Classifier{
		cfg:            cfg,
		riskCategories: cfg.RiskCategorySet(),
	}
}

// Blend combines rule and anomaly scores into a clipped risk score.
func (c *Classifier) Blend(ruleScore, anomalyScore float64) float64 {
	score := c.cfg.RuleWeight*ruleScore + c.cfg.AnomalyWeight*anomalyScore
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Level thresholds a risk score into low, medium or high. Both cutoffs
// are inclusive on the upper side.
func (c *Classifier) Level(riskScore float64) string {
	switch {
	case riskScore >= c.cfg.HighCutoff:
		return domain.RiskHigh
	case riskScore >= c.cfg.MediumCutoff:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// Complexity applies the verification-complexity decision table, in
// priority order:
//
//	simple: a large amount or risky category explains a non-low risk
//	medium: a non-low risk driven by customer frequency
//	hard:   anomaly-only suspicion with no explaining rule
//	medium: everything else
//
// The fallback intentionally overlaps the frequency branch; rows that
// match neither explicit branch default to a medium review effort.
func (c *Classifier) Complexity(row domain.PreparedTransaction, ruleScore, anomalyScore float64, riskLevel string) string {
	bigAmount := row.AmountAbs > c.cfg.MediumAmount
	riskCategory := c.riskCategories[row.CategoryCode]
	highFrequency := row.Aggregate.TxCount > c.cfg.FrequencyThreshold
	anomalyOnly := ruleScore < 15 && anomalyScore > 60

	switch {
	case (bigAmount || riskCategory) && riskLevel != domain.RiskLow:
		return domain.ComplexitySimple
	case highFrequency && riskLevel != domain.RiskLow:
		return domain.ComplexityMedium
	case anomalyOnly:
		return domain.ComplexityHard
	default:
		return domain.ComplexityMedium
	}
}

// Classify labels one prepared row given its scores.
func (c *Classifier) Classify(row domain.PreparedTransaction, ruleScore, anomalyScore float64) domain.ScoredTransaction {
	riskScore := c.Blend(ruleScore, anomalyScore)
	level := c.Level(riskScore)
	return domain.ScoredTransaction{
		PreparedTransaction: row,
		RuleScore:           ruleScore,
		AnomalyScore:        anomalyScore,
		RiskScore:           riskScore,
		RiskLevel:           level,
		Complexity:          c.Complexity(row, ruleScore, anomalyScore, level),
	}
}

// ClassifyAll labels a batch. The score slices must be parallel to rows.
func (c *Classifier) ClassifyAll(rows []domain.PreparedTransaction, ruleScores, anomalyScores []float64) []domain.ScoredTransaction {
	out := make([]domain.ScoredTransaction, len(rows))
	for i := range rows {
		out[i] = c.Classify(rows[i], ruleScores[i], anomalyScores[i])
	}
	return out
}
