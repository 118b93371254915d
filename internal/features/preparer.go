// Package features normalizes raw transaction rows into prepared rows
// carrying derived per-row and per-customer features.
package features

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// datetime layouts tried when the fast composite-string path fails.
var fallbackLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02.01.2006 15:04:05",
	"15:04:05",
}

// Preparer derives features over one batch. Pure transformation, no I/O.
type Preparer struct{}

// NewPreparer creates a feature preparer.
func NewPreparer() *Preparer {
	return &Preparer{}
}

// Prepare augments raw rows with hour, flow, is_night and batch-local
// customer aggregates. Aggregates are computed over this batch only,
// not lifetime history.
func (p *Preparer) Prepare(rows []domain.Transaction) []domain.PreparedTransaction {
	prepared := make([]domain.PreparedTransaction, len(rows))
	for i, row := range rows {
		amount := Coerce(row.Amount, 0)
		row.Amount = amount

		hour := ParseHour(row.OccurredAt)

		prepared[i] = domain.PreparedTransaction{
			Transaction: row,
			Hour:        hour,
			AmountAbs:   math.Abs(amount),
			Flow:        flowOf(amount),
			IsNight:     hour >= 0 && hour <= 5,
		}
	}

	aggregates := Aggregate(prepared)
	for i := range prepared {
		prepared[i].Aggregate = aggregates[prepared[i].CustomerID]
	}

	return prepared
}

// ParseHour extracts an hour from a composite datetime-like string.
// Fast path: the substring after the first space, before the first colon.
// Falls back to date-time parsing, then to the missing-hour sentinel.
func ParseHour(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return domain.MissingHour
	}

	timePart := s
	if idx := strings.Index(s, " "); idx >= 0 {
		timePart = s[idx+1:]
	}
	if idx := strings.Index(timePart, ":"); idx >= 0 {
		timePart = timePart[:idx]
	}

	if hour, err := strconv.Atoi(strings.TrimSpace(timePart)); err == nil && hour >= 0 && hour <= 23 {
		return hour
	}

	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Hour()
		}
	}

	return domain.MissingHour
}

// Coerce replaces NaN and infinite values with a caller-specified default.
func Coerce(v, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}

// Aggregate computes batch-local per-customer aggregates: transaction
// count, mean/std of absolute amount, total absolute amount and distinct
// category count.
func Aggregate(rows []domain.PreparedTransaction) map[string]domain.CustomerAggregate {
	type accum struct {
		count      int64
		sum        float64
		sumSquares float64
		categories map[int64]struct{}
	}

	accums := make(map[string]*accum)
	for _, row := range rows {
		a, ok := accums[row.CustomerID]
		if !ok {
			a = &accum{categories: make(map[int64]struct{})}
			accums[row.CustomerID] = a
		}
		a.count++
		a.sum += row.AmountAbs
		a.sumSquares += row.AmountAbs * row.AmountAbs
		a.categories[row.CategoryCode] = struct{}{}
	}

	out := make(map[string]domain.CustomerAggregate, len(accums))
	for id, a := range accums {
		mean := a.sum / float64(a.count)

		// Sample standard deviation; zero for a single transaction.
		std := 0.0
		if a.count > 1 {
			variance := (a.sumSquares - float64(a.count)*mean*mean) / float64(a.count-1)
			if variance > 0 {
				std = math.Sqrt(variance)
			}
		}

		out[id] = domain.CustomerAggregate{
			TxCount:       a.count,
			AmountMean:    mean,
			AmountStd:     std,
			AmountSum:     a.sum,
			CategoryCount: int64(len(a.categories)),
		}
	}

	return out
}

func flowOf(amount float64) string {
	switch {
	case amount < 0:
		return domain.FlowSpend
	case amount > 0:
		return domain.FlowIncome
	default:
		return domain.FlowZero
	}
}
