// Package rules computes the bounded heuristic suspicion score from
// configured thresholds, with optional CEL bonus rules on top.
package rules

import (
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Contribution points for the built-in threshold rules. The thresholds
// themselves come from configuration; the point values are the scoring
// contract (a very large amount contributes up to 25+35=60).
const (
	pointsMediumAmount = 25
	pointsHighAmount   = 35
	pointsFrequency    = 20
	pointsRiskCategory = 25
	pointsNightLarge   = 15
)

// Scorer maps prepared rows to a rule score in [0,100].
type Scorer struct {
	cfg            domain.LabelingConfig
	riskCategories map[int64]bool
	bonus          *BonusEngine
}

// NewScorer creates a rule scorer, compiling any configured bonus rules.
func NewScorer(cfg domain.LabelingConfig) (*Scorer, error) {
	var bonus *BonusEngine
	if len(cfg.BonusRules) > 0 {
		var err error
		bonus, err = NewBonusEngine(cfg.BonusRules)
		if err != nil {
			return nil, fmt.Errorf("failed to compile bonus rules: %w", err)
		}
	}

	return &Scorer{
		cfg:            cfg,
		riskCategories: cfg.RiskCategorySet(),
		bonus:          bonus,
	}, nil
}

// Score computes the additive rule score for one prepared row, clipped
// to [0,100]. Contributions are additive: amount thresholds stack.
func (s *Scorer) Score(row domain.PreparedTransaction) float64 {
	score := 0.0

	if row.AmountAbs > s.cfg.MediumAmount {
		score += pointsMediumAmount
	}
	if row.AmountAbs > s.cfg.HighAmount {
		score += pointsHighAmount
	}
	if row.Aggregate.TxCount > s.cfg.FrequencyThreshold {
		score += pointsFrequency
	}
	if s.riskCategories[row.CategoryCode] {
		score += pointsRiskCategory
	}
	if row.IsNight && row.AmountAbs > s.cfg.MediumAmount {
		score += pointsNightLarge
	}

	if s.bonus != nil {
		score += s.bonus.Points(row)
	}

	return clip(score, 0, 100)
}

// ScoreAll scores a whole batch.
func (s *Scorer) ScoreAll(rows []domain.PreparedTransaction) []float64 {
	scores := make([]float64, len(rows))
	for i, row := range rows {
		scores[i] = s.Score(row)
	}
	return scores
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
