package drift

import (
	"github.com/opensource-finance/kestrel/internal/domain"
)

// featureValue extracts a named numeric feature from a labeled row.
// Unknown feature names yield no value.
func featureValue(row domain.ScoredTransaction, name string) (float64, bool) {
	switch name {
	case "amount":
		return row.Amount, true
	case "amount_abs":
		return row.AmountAbs, true
	case "hour":
		return float64(row.Hour), true
	case "rule_score":
		return row.RuleScore, true
	case "anomaly_score":
		return row.AnomalyScore, true
	case "risk_score":
		return row.RiskScore, true
	case "cust_tx_cnt":
		return float64(row.Aggregate.TxCount), true
	case "cust_amount_mean":
		return row.Aggregate.AmountMean, true
	case "cust_amount_std":
		return row.Aggregate.AmountStd, true
	default:
		return 0, false
	}
}

// Monitor computes drift reports over a configured feature list.
type Monitor struct {
	cfg domain.DriftConfig
}

// NewMonitor creates a drift monitor.
func NewMonitor(cfg domain.DriftConfig) *Monitor {
	return &Monitor{cfg: cfg}
}

// Compare computes per-feature PSI between a reference slice and newly
// arrived rows, plus the aggregate mean and max. The report is advisory:
// the Exceeded flag is surfaced alongside the volume trigger, it does
// not block or force retraining.
func (m *Monitor) Compare(reference, current []domain.ScoredTransaction) *domain.DriftReport {
	report := &domain.DriftReport{
		PerFeature: make(map[string]float64, len(m.cfg.Features)),
		Threshold:  m.cfg.Threshold,
	}

	for _, name := range m.cfg.Features {
		ref := extract(reference, name)
		cur := extract(current, name)
		report.PerFeature[name] = PSI(ref, cur, m.cfg.Bins)
	}

	if len(report.PerFeature) > 0 {
		total := 0.0
		max := 0.0
		first := true
		for _, v := range report.PerFeature {
			total += v
			if first || v > max {
				max = v
				first = false
			}
		}
		report.Mean = total / float64(len(report.PerFeature))
		report.Max = max
	}

	report.Exceeded = report.Max >= m.cfg.Threshold && m.cfg.Threshold > 0
	return report
}

func extract(rows []domain.ScoredTransaction, feature string) []float64 {
	out := make([]float64, 0, len(rows))
	for _, row := range rows {
		if v, ok := featureValue(row, feature); ok {
			out = append(out, v)
		}
	}
	return out
}
