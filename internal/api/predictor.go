package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/features"
	"github.com/opensource-finance/kestrel/internal/label"
	"github.com/opensource-finance/kestrel/internal/ml"
	"github.com/opensource-finance/kestrel/internal/profile"
	"github.com/opensource-finance/kestrel/internal/rules"
)

// PredictRequest is one transaction to classify. Only amount is
// strictly required; everything else defaults the way the batch
// pipeline would fill it.
type PredictRequest struct {
	CustomerID   string   `json:"customer_id,omitempty"`
	OccurredAt   string   `json:"tr_datetime,omitempty"`
	CategoryCode int64    `json:"mcc_code"`
	TypeCode     int64    `json:"tr_type"`
	Amount       *float64 `json:"amount"`
	Hour         *int     `json:"hour,omitempty"`
	Flow         string   `json:"flow,omitempty"`

	// Precomputed scores override the serving-time recomputation.
	RuleScore    *float64 `json:"rule_score,omitempty"`
	AnomalyScore *float64 `json:"anomaly_score,omitempty"`
	RiskScore    *float64 `json:"risk_score,omitempty"`
}

// Prediction is the classification result for one transaction.
type Prediction struct {
	RiskLevel  string             `json:"risk_level"`
	Complexity string             `json:"verification_complexity"`
	RiskProba  map[string]float64 `json:"risk_proba,omitempty"`
}

type loadedModel struct {
	version  *domain.ModelVersion
	pipeline *ml.Pipeline
}

// Predictor serves classifications from the latest persisted model
// artifacts. Reload swaps both targets together under a write lock.
type Predictor struct {
	store      domain.ModelStore
	profiles   *profile.Service
	preparer   *features.Preparer
	scorer     *rules.Scorer
	classifier *label.Classifier

	mu   sync.RWMutex
	risk *loadedModel
	cx   *loadedModel
}

// NewPredictor creates a predictor. Call Reload to load artifacts
// before serving.
func NewPredictor(store domain.ModelStore, profiles *profile.Service, cfg domain.LabelingConfig) (*Predictor, error) {
	scorer, err := rules.NewScorer(cfg)
	if err != nil {
		return nil, err
	}

	return &Predictor{
		store:      store,
		profiles:   profiles,
		preparer:   features.NewPreparer(),
		scorer:     scorer,
		classifier: label.NewClassifier(cfg),
	}, nil
}

// Reload loads the latest artifact for both targets from the store.
func (p *Predictor) Reload(ctx context.Context) error {
	risk, err := p.loadLatest(ctx, domain.TargetRiskLevel)
	if err != nil {
		return fmt.Errorf("failed to load %s model: %w", domain.TargetRiskLevel, err)
	}

	cx, err := p.loadLatest(ctx, domain.TargetComplexity)
	if err != nil {
		return fmt.Errorf("failed to load %s model: %w", domain.TargetComplexity, err)
	}

	p.mu.Lock()
	p.risk = risk
	p.cx = cx
	p.mu.Unlock()

	slog.Info("models loaded",
		"risk_version", risk.version.Version,
		"risk_model", risk.version.ModelName,
		"complexity_version", cx.version.Version,
		"complexity_model", cx.version.ModelName,
	)
	return nil
}

func (p *Predictor) loadLatest(ctx context.Context, target string) (*loadedModel, error) {
	version, err := p.store.Latest(ctx, target)
	if err != nil {
		return nil, err
	}

	artifact, err := p.store.Load(ctx, version.ArtifactPath)
	if err != nil {
		return nil, err
	}

	pipeline := &ml.Pipeline{}
	if err := json.Unmarshal(artifact, pipeline); err != nil {
		return nil, fmt.Errorf("failed to decode artifact %s: %w", version.ArtifactPath, err)
	}

	return &loadedModel{version: version, pipeline: pipeline}, nil
}

// Ready reports whether both target models are loaded.
func (p *Predictor) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.risk != nil && p.cx != nil
}

// Versions returns the currently served model versions, risk first.
func (p *Predictor) Versions() []*domain.ModelVersion {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []*domain.ModelVersion
	if p.risk != nil {
		out = append(out, p.risk.version)
	}
	if p.cx != nil {
		out = append(out, p.cx.version)
	}
	return out
}

// Predict classifies a single transaction.
func (p *Predictor) Predict(ctx context.Context, req *PredictRequest) (*Prediction, error) {
	p.mu.RLock()
	risk, cx := p.risk, p.cx
	p.mu.RUnlock()

	if risk == nil || cx == nil {
		return nil, fmt.Errorf("models are not loaded")
	}

	prepared, err := p.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	ruleScore := p.scorer.Score(prepared)
	if req.RuleScore != nil {
		ruleScore = *req.RuleScore
	}
	anomalyScore := 0.0
	if req.AnomalyScore != nil {
		anomalyScore = *req.AnomalyScore
	}
	riskScore := p.classifier.Blend(ruleScore, anomalyScore)
	if req.RiskScore != nil {
		riskScore = *req.RiskScore
	}

	sample := ml.SampleFromPrepared(prepared)
	ml.SetScores(&sample, ruleScore, anomalyScore, riskScore)

	riskLevel, proba := risk.pipeline.Predict(sample)
	complexity, _ := cx.pipeline.Predict(sample)

	return &Prediction{
		RiskLevel:  riskLevel,
		Complexity: complexity,
		RiskProba:  proba,
	}, nil
}

// PredictBatch classifies transactions in request order.
func (p *Predictor) PredictBatch(ctx context.Context, reqs []*PredictRequest) ([]*Prediction, error) {
	out := make([]*Prediction, len(reqs))
	for i, req := range reqs {
		pred, err := p.Predict(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = pred
	}
	return out, nil
}

// prepare builds the single-row feature view, substituting the cached
// lifetime customer profile for the batch-local aggregate.
func (p *Predictor) prepare(ctx context.Context, req *PredictRequest) (domain.PreparedTransaction, error) {
	if req.Amount == nil {
		return domain.PreparedTransaction{}, fmt.Errorf("%w: amount is required", domain.ErrInvalidInput)
	}

	tx := domain.Transaction{
		CustomerID:   req.CustomerID,
		OccurredAt:   req.OccurredAt,
		CategoryCode: req.CategoryCode,
		TypeCode:     req.TypeCode,
		Amount:       *req.Amount,
	}

	prepared := p.preparer.Prepare([]domain.Transaction{tx})[0]

	if req.Hour != nil && *req.Hour >= 0 && *req.Hour <= 23 {
		prepared.Hour = *req.Hour
		prepared.IsNight = prepared.Hour <= 5
	}
	if prepared.Hour == domain.MissingHour {
		prepared.Hour = 0
		prepared.IsNight = true
	}
	if req.Flow != "" {
		prepared.Flow = req.Flow
	}

	if p.profiles != nil && req.CustomerID != "" {
		agg, err := p.profiles.Get(ctx, req.CustomerID)
		if err != nil {
			return domain.PreparedTransaction{}, err
		}
		prepared.Aggregate = *agg
	}

	return prepared, nil
}
