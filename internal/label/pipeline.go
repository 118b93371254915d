package label

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/opensource-finance/kestrel/internal/anomaly"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/features"
	"github.com/opensource-finance/kestrel/internal/rules"
)

var tracer = otel.Tracer("kestrel-labeling")

// Pipeline runs one full labeling pass: fetch, prepare, score, classify
// and replace the labeled table.
type Pipeline struct {
	repo       domain.Repository
	bus        domain.EventBus
	preparer   *features.Preparer
	rules      *rules.Scorer
	anomaly    *anomaly.Scorer
	classifier *Classifier
	maxRows    int64
	logger     *slog.Logger
}

// NewPipeline wires a labeling pipeline from its stages.
func NewPipeline(repo domain.Repository, bus domain.EventBus, cfg domain.LabelingConfig, anomalyCfg domain.AnomalyConfig, logger *slog.Logger) (*Pipeline, error) {
	ruleScorer, err := rules.NewScorer(cfg)
	if err != nil {
		return nil, fmt.Errorf("build rule scorer: %w", err)
	}
	return &Pipeline{
		repo:       repo,
		bus:        bus,
		preparer:   features.NewPreparer(),
		rules:      ruleScorer,
		anomaly:    anomaly.NewScorer(anomalyCfg),
		classifier: NewClassifier(cfg),
		maxRows:    cfg.MaxRows,
		logger:     logger,
	}, nil
}

// Result summarizes one labeling run.
type Result struct {
	RunID      string         `json:"runId"`
	Rows       int            `json:"rows"`
	ByLevel    map[string]int `json:"byLevel"`
	MaxRowID   int64          `json:"maxRowId"`
	DurationMs int64          `json:"durationMs"`
}

// Run executes one labeling pass. The labeled table is replaced
// wholesale; nothing is written when the source batch is empty.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	ctx, span := tracer.Start(ctx, "labeling.run")
	defer span.End()

	start := time.Now()
	result := &Result{
		RunID:   uuid.New().String(),
		ByLevel: make(map[string]int),
	}

	raw, err := p.repo.FetchTransactions(ctx, p.maxRows)
	if err != nil {
		return nil, fmt.Errorf("fetch transactions: %w", err)
	}
	if len(raw) == 0 {
		p.logger.Info("labeling skipped, source table is empty", "run_id", result.RunID)
		return result, nil
	}

	prepared := p.preparer.Prepare(raw)
	ruleScores := p.rules.ScoreAll(prepared)
	anomalyScores := p.anomaly.ScoreAll(prepared)
	labeled := p.classifier.ClassifyAll(prepared, ruleScores, anomalyScores)

	for i := range labeled {
		result.ByLevel[labeled[i].RiskLevel]++
		if labeled[i].RowID > result.MaxRowID {
			result.MaxRowID = labeled[i].RowID
		}
	}
	result.Rows = len(labeled)

	if err := p.repo.ReplaceLabeled(ctx, labeled); err != nil {
		return nil, fmt.Errorf("replace labeled table: %w", err)
	}

	result.DurationMs = time.Since(start).Milliseconds()
	p.logger.Info("labeling run completed",
		"run_id", result.RunID,
		"rows", result.Rows,
		"high", result.ByLevel[domain.RiskHigh],
		"medium", result.ByLevel[domain.RiskMedium],
		"low", result.ByLevel[domain.RiskLow],
		"duration_ms", result.DurationMs,
	)

	p.publishCompleted(ctx, result)
	return result, nil
}

// publishCompleted emits the completion event. Publish failures are
// logged, not fatal: the labeled table is already committed.
func (p *Pipeline) publishCompleted(ctx context.Context, result *Result) {
	if p.bus == nil {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		p.logger.Error("marshal labeling event", "error", err)
		return
	}
	if err := p.bus.Publish(ctx, domain.TopicLabelingCompleted, payload); err != nil {
		p.logger.Warn("publish labeling event", "error", err)
	}
}
