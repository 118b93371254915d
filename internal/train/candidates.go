package train

import (
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/ml"
)

// CandidateResult is one candidate's held-out evaluation.
type CandidateResult struct {
	ModelName string
	Metrics   domain.ModelMetrics
}

// selection holds the winning pipeline plus every candidate's metrics.
type selection struct {
	winner  *ml.Pipeline
	metrics domain.ModelMetrics
	all     []CandidateResult
}

// trainAndSelect fits each roster candidate on the training split,
// evaluates it on the held-out split and picks the highest macro F1.
// Ties keep the earlier candidate, so roster order is the tie-break.
func trainAndSelect(target string, candidates []string, seed int64,
	trainSamples []ml.Sample, trainLabels []string,
	testSamples []ml.Sample, testLabels []string) (*selection, error) {

	sel := &selection{}
	bestF1 := -1.0

	for _, name := range candidates {
		pipe, err := ml.NewPipeline(target, name, seed)
		if err != nil {
			return nil, err
		}
		if err := pipe.Fit(trainSamples, trainLabels); err != nil {
			return nil, fmt.Errorf("fit %s for %s: %w", name, target, err)
		}

		truth := pipe.LabelIndices(testLabels)
		predicted := pipe.PredictAll(testSamples)
		classes := len(pipe.Classes)

		m := domain.ModelMetrics{
			Accuracy:    ml.Accuracy(truth, predicted),
			RecallMacro: ml.MacroRecall(truth, predicted, classes),
			F1Macro:     ml.MacroF1(truth, predicted, classes),
		}
		sel.all = append(sel.all, CandidateResult{ModelName: name, Metrics: m})

		if m.F1Macro > bestF1 {
			bestF1 = m.F1Macro
			sel.winner = pipe
			sel.metrics = m
		}
	}

	if sel.winner == nil {
		return nil, fmt.Errorf("%w: empty candidate roster", domain.ErrInvalidInput)
	}
	return sel, nil
}
