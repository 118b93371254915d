package train

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/drift"
	"github.com/opensource-finance/kestrel/internal/ml"
)

var tracer = otel.Tracer("kestrel-training")

// Orchestrator drives one retraining run: watermark check, drift
// evaluation, candidate training for both targets, versioning and
// state update. A failure anywhere aborts the run without touching the
// watermark, so the next run retries the same window.
type Orchestrator struct {
	repo    domain.Repository
	store   domain.ModelStore
	bus     domain.EventBus
	monitor *drift.Monitor
	state   *StateStore
	log     *TrainingLog
	cfg     domain.TrainingConfig
	logger  *slog.Logger

	// now is swappable so tests get stable version tags.
	now func() time.Time
}

// NewOrchestrator wires a retraining orchestrator.
func NewOrchestrator(repo domain.Repository, store domain.ModelStore, bus domain.EventBus,
	monitor *drift.Monitor, state *StateStore, log *TrainingLog,
	cfg domain.TrainingConfig, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		repo:    repo,
		store:   store,
		bus:     bus,
		monitor: monitor,
		state:   state,
		log:     log,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Result summarizes one orchestrator run.
type Result struct {
	Skipped     bool                            `json:"skipped"`
	NewRows     int64                           `json:"newRows"`
	TrainedRows int                             `json:"trainedRows"`
	Version     string                          `json:"version,omitempty"`
	Drift       *domain.DriftReport             `json:"drift,omitempty"`
	Models      map[string]*domain.ModelVersion `json:"models,omitempty"`
	Candidates  map[string][]CandidateResult    `json:"-"`
}

// Run executes one retraining pass.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	ctx, span := tracer.Start(ctx, "training.run")
	defer span.End()

	state, err := o.state.Load()
	if err != nil {
		return nil, err
	}

	newRows, err := o.repo.CountLabeledAfter(ctx, state.LastRowID)
	if err != nil {
		return nil, fmt.Errorf("count new rows: %w", err)
	}

	result := &Result{NewRows: newRows}
	if newRows < o.cfg.MinNewRows {
		result.Skipped = true
		o.logger.Info("retraining skipped, not enough new rows",
			"new_rows", newRows,
			"min_new_rows", o.cfg.MinNewRows,
			"last_rowid", state.LastRowID,
		)
		return result, nil
	}

	result.Drift, err = o.evaluateDrift(ctx, state.LastRowID)
	if err != nil {
		return nil, err
	}

	window, err := o.repo.RecentLabeled(ctx, o.cfg.MaxTrainRows)
	if err != nil {
		return nil, fmt.Errorf("load training window: %w", err)
	}
	if len(window) == 0 {
		return nil, fmt.Errorf("%w: labeled table is empty", domain.ErrInvalidInput)
	}
	result.TrainedRows = len(window)

	samples := make([]ml.Sample, len(window))
	riskLabels := make([]string, len(window))
	cxLabels := make([]string, len(window))
	for i := range window {
		samples[i] = ml.SampleFromScored(window[i])
		riskLabels[i] = window[i].RiskLevel
		cxLabels[i] = window[i].Complexity
	}

	// One split, stratified on the risk target, shared by both targets.
	trainIdx, testIdx := ml.StratifiedSplit(labelCodes(riskLabels), o.cfg.TestFraction, o.cfg.Seed)
	trainSamples, testSamples := gatherSamples(samples, trainIdx), gatherSamples(samples, testIdx)

	version := "v_" + o.now().UTC().Format("20060102_150405")
	trainedAt := o.now().UTC()

	result.Models = make(map[string]*domain.ModelVersion, 2)
	result.Candidates = make(map[string][]CandidateResult, 2)

	targets := []struct {
		name   string
		labels []string
	}{
		{domain.TargetRiskLevel, riskLabels},
		{domain.TargetComplexity, cxLabels},
	}

	for _, target := range targets {
		sel, err := trainAndSelect(target.name, o.cfg.Candidates, o.cfg.Seed,
			trainSamples, gatherLabels(target.labels, trainIdx),
			testSamples, gatherLabels(target.labels, testIdx))
		if err != nil {
			return nil, err
		}
		result.Candidates[target.name] = sel.all

		mv := &domain.ModelVersion{
			Version:   version,
			Target:    target.name,
			ModelName: sel.winner.ModelName,
			Metrics:   sel.metrics,
			TrainedAt: trainedAt,
		}

		artifact, err := json.Marshal(sel.winner)
		if err != nil {
			return nil, fmt.Errorf("serialize %s pipeline: %w", target.name, err)
		}
		mv.ArtifactPath, err = o.store.Save(ctx, mv, artifact)
		if err != nil {
			return nil, fmt.Errorf("persist %s model: %w", target.name, err)
		}
		result.Models[target.name] = mv

		o.logger.Info("candidate selected",
			"target", target.name,
			"model", mv.ModelName,
			"f1_macro", mv.Metrics.F1Macro,
			"accuracy", mv.Metrics.Accuracy,
			"version", version,
		)
	}

	if err := o.log.Append(LogEntry{
		Timestamp:   trainedAt.Format("20060102_150405"),
		Version:     version,
		TrainedRows: result.TrainedRows,
		NewRows:     newRows,
		Drift:       result.Drift,
		Risk:        result.Models[domain.TargetRiskLevel],
		Complexity:  result.Models[domain.TargetComplexity],
	}); err != nil {
		return nil, err
	}

	// The watermark moves only after everything else is durable.
	maxRowID, err := o.repo.MaxLabeledRowID(ctx)
	if err != nil {
		return nil, fmt.Errorf("read max rowid: %w", err)
	}
	state.LastRowID = maxRowID
	state.LastTrainTime = trainedAt.Format("20060102_150405")
	if err := o.state.Save(state); err != nil {
		return nil, err
	}

	result.Version = version
	o.publishVersioned(ctx, result)
	o.logger.Info("retraining run completed",
		"version", version,
		"trained_rows", result.TrainedRows,
		"new_rows", newRows,
		"last_rowid", state.LastRowID,
	)
	return result, nil
}

// evaluateDrift compares the reference slice below the watermark
// against everything above it. The report is advisory: it is logged
// and published but never blocks training.
func (o *Orchestrator) evaluateDrift(ctx context.Context, lastRowID int64) (*domain.DriftReport, error) {
	reference, err := o.repo.LabeledUpTo(ctx, lastRowID, o.cfg.ReferenceRows)
	if err != nil {
		return nil, fmt.Errorf("load reference slice: %w", err)
	}
	current, err := o.repo.LabeledAfter(ctx, lastRowID, 0)
	if err != nil {
		return nil, fmt.Errorf("load new slice: %w", err)
	}

	report := o.monitor.Compare(reference, current)
	if report.Exceeded {
		o.logger.Warn("data drift above threshold",
			"psi_max", report.Max,
			"psi_mean", report.Mean,
			"threshold", report.Threshold,
		)
		if o.bus != nil {
			if payload, err := json.Marshal(report); err == nil {
				if err := o.bus.Publish(ctx, domain.TopicDriftDetected, payload); err != nil {
					o.logger.Warn("publish drift event", "error", err)
				}
			}
		}
	} else {
		o.logger.Info("drift check", "psi_max", report.Max, "psi_mean", report.Mean)
	}
	return report, nil
}

func (o *Orchestrator) publishVersioned(ctx context.Context, result *Result) {
	if o.bus == nil {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		o.logger.Error("marshal training event", "error", err)
		return
	}
	if err := o.bus.Publish(ctx, domain.TopicModelVersioned, payload); err != nil {
		o.logger.Warn("publish training event", "error", err)
	}
}

func labelCodes(labels []string) []int {
	index := make(map[string]int)
	out := make([]int, len(labels))
	for i, l := range labels {
		code, ok := index[l]
		if !ok {
			code = len(index)
			index[l] = code
		}
		out[i] = code
	}
	return out
}

func gatherSamples(samples []ml.Sample, indices []int) []ml.Sample {
	out := make([]ml.Sample, len(indices))
	for i, idx := range indices {
		out[i] = samples[idx]
	}
	return out
}

func gatherLabels(labels []string, indices []int) []string {
	out := make([]string, len(indices))
	for i, idx := range indices {
		out[i] = labels[idx]
	}
	return out
}
