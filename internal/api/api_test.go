package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/ml"
	"github.com/opensource-finance/kestrel/internal/modelstore"
)

const testAPIKey = "test-secret"

// trainingRows builds a separable labeled set: tiny scores map to
// low/medium, huge scores to high/simple.
func trainingRows(n int) []domain.ScoredTransaction {
	rows := make([]domain.ScoredTransaction, 0, n)
	for i := 0; i < n; i++ {
		var tx domain.ScoredTransaction
		tx.RowID = int64(i + 1)
		tx.CustomerID = fmt.Sprintf("cust-%03d", i%10)
		tx.TypeCode = 1000
		if i%2 == 0 {
			tx.CategoryCode = 5411
			tx.Amount = -50
			tx.AmountAbs = 50
			tx.Hour = 12
			tx.Flow = domain.FlowSpend
			tx.RuleScore = 5
			tx.AnomalyScore = 5
			tx.RiskScore = 5
			tx.RiskLevel = domain.RiskLow
			tx.Complexity = domain.ComplexityMedium
		} else {
			tx.CategoryCode = 6011
			tx.Amount = -200000
			tx.AmountAbs = 200000
			tx.Hour = 2
			tx.IsNight = true
			tx.Flow = domain.FlowSpend
			tx.RuleScore = 95
			tx.AnomalyScore = 90
			tx.RiskScore = 93
			tx.RiskLevel = domain.RiskHigh
			tx.Complexity = domain.ComplexitySimple
		}
		tx.Aggregate = domain.CustomerAggregate{TxCount: 4, AmountMean: 100, AmountSum: 400, CategoryCount: 2}
		rows = append(rows, tx)
	}
	return rows
}

// seedModels trains and persists a logreg pipeline per target.
func seedModels(t *testing.T, store domain.ModelStore) {
	t.Helper()
	ctx := context.Background()
	rows := trainingRows(60)

	samples := make([]ml.Sample, len(rows))
	for i, tx := range rows {
		samples[i] = ml.SampleFromScored(tx)
	}

	for _, target := range []string{domain.TargetRiskLevel, domain.TargetComplexity} {
		labels := make([]string, len(rows))
		for i, tx := range rows {
			labels[i] = ml.TargetLabel(tx, target)
		}

		pipe, err := ml.NewPipeline(target, ml.ModelLogreg, 42)
		if err != nil {
			t.Fatalf("NewPipeline: %v", err)
		}
		if err := pipe.Fit(samples, labels); err != nil {
			t.Fatalf("Fit: %v", err)
		}

		artifact, err := json.Marshal(pipe)
		if err != nil {
			t.Fatalf("marshal pipeline: %v", err)
		}

		mv := &domain.ModelVersion{
			Version:   "v_20260829_120000",
			Target:    target,
			ModelName: ml.ModelLogreg,
			TrainedAt: time.Now().UTC(),
		}
		if mv.ArtifactPath, err = store.Save(ctx, mv, artifact); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
}

func testServer(t *testing.T) *Server {
	t.Helper()

	store, err := modelstore.New(context.Background(), domain.ModelStoreConfig{
		Backend: "local",
		Root:    t.TempDir(),
	})
	if err != nil {
		t.Fatalf("modelstore.New: %v", err)
	}
	seedModels(t, store)

	predictor, err := NewPredictor(store, nil, domain.DefaultConfig().Labeling)
	if err != nil {
		t.Fatalf("NewPredictor: %v", err)
	}

	cfg := domain.ServerConfig{Host: "127.0.0.1", Port: 0, APIKey: testAPIKey}
	return NewServer(cfg, nil, nil, store, predictor, "test")
}

func doRequest(t *testing.T, srv *Server, method, path, key string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if key != "" {
		req.Header.Set(APIKeyHeader, key)
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestAuthRequired(t *testing.T) {
	srv := testServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/predict", "", map[string]interface{}{"amount": -100})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no key: status = %d, want 401", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/predict", "wrong-key", map[string]interface{}{"amount": -100})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: status = %d, want 401", rec.Code)
	}

	// Health endpoints skip auth.
	rec = doRequest(t, srv, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("/health status = %d, want 200", rec.Code)
	}
}

func TestReadyGatesOnModels(t *testing.T) {
	srv := testServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/ready", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("/ready before load: status = %d, want 503", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/models/reload", testAPIKey, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("/models/reload status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodGet, "/ready", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("/ready after load: status = %d, want 200", rec.Code)
	}
}

func TestPredict(t *testing.T) {
	srv := testServer(t)
	if rec := doRequest(t, srv, http.MethodPost, "/models/reload", testAPIKey, nil); rec.Code != http.StatusOK {
		t.Fatalf("/models/reload status = %d", rec.Code)
	}

	t.Run("HighRisk", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/predict", testAPIKey, map[string]interface{}{
			"amount":        -200000,
			"mcc_code":      6011,
			"tr_type":       1000,
			"hour":          2,
			"rule_score":    95,
			"anomaly_score": 90,
			"risk_score":    93,
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
		}

		var pred Prediction
		decodeBody(t, rec, &pred)
		if pred.RiskLevel != domain.RiskHigh {
			t.Errorf("risk_level = %q, want %q", pred.RiskLevel, domain.RiskHigh)
		}
		if pred.Complexity != domain.ComplexitySimple {
			t.Errorf("verification_complexity = %q, want %q", pred.Complexity, domain.ComplexitySimple)
		}
		if pred.RiskProba[domain.RiskHigh] <= pred.RiskProba[domain.RiskLow] {
			t.Errorf("risk_proba = %v, want high > low", pred.RiskProba)
		}
	})

	t.Run("LowRiskWithRecomputedScores", func(t *testing.T) {
		// No scores in the payload: rule score is recomputed and the
		// anomaly score defaults to zero.
		rec := doRequest(t, srv, http.MethodPost, "/predict", testAPIKey, map[string]interface{}{
			"amount":      -50,
			"mcc_code":    5411,
			"tr_type":     1000,
			"tr_datetime": "0 12:30:00",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
		}

		var pred Prediction
		decodeBody(t, rec, &pred)
		if pred.RiskLevel != domain.RiskLow {
			t.Errorf("risk_level = %q, want %q", pred.RiskLevel, domain.RiskLow)
		}
	})

	t.Run("MissingAmount", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/predict", testAPIKey, map[string]interface{}{
			"mcc_code": 5411,
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("MalformedJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader([]byte("{not json")))
		req.Header.Set(APIKeyHeader, testAPIKey)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestPredictBatch(t *testing.T) {
	srv := testServer(t)
	if rec := doRequest(t, srv, http.MethodPost, "/models/reload", testAPIKey, nil); rec.Code != http.StatusOK {
		t.Fatalf("/models/reload status = %d", rec.Code)
	}

	rec := doRequest(t, srv, http.MethodPost, "/predict/batch", testAPIKey, map[string]interface{}{
		"rows": []map[string]interface{}{
			{"amount": -50, "mcc_code": 5411, "tr_type": 1000, "hour": 12},
			{"amount": -200000, "mcc_code": 6011, "tr_type": 1000, "hour": 2, "rule_score": 95, "anomaly_score": 90, "risk_score": 93},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Count  int          `json:"count"`
		Result []Prediction `json:"result"`
	}
	decodeBody(t, rec, &resp)
	if resp.Count != 2 || len(resp.Result) != 2 {
		t.Fatalf("count = %d, results = %d, want 2", resp.Count, len(resp.Result))
	}
	if resp.Result[1].RiskLevel != domain.RiskHigh {
		t.Errorf("second row risk_level = %q, want %q", resp.Result[1].RiskLevel, domain.RiskHigh)
	}

	rec = doRequest(t, srv, http.MethodPost, "/predict/batch", testAPIKey, map[string]interface{}{
		"rows": []map[string]interface{}{},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty rows: status = %d, want 400", rec.Code)
	}
}

func TestListVersions(t *testing.T) {
	srv := testServer(t)
	if rec := doRequest(t, srv, http.MethodPost, "/models/reload", testAPIKey, nil); rec.Code != http.StatusOK {
		t.Fatalf("/models/reload status = %d", rec.Code)
	}

	rec := doRequest(t, srv, http.MethodGet, "/versions", testAPIKey, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Serving []domain.ModelVersion            `json:"serving"`
		History map[string][]domain.ModelVersion `json:"history"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Serving) != 2 {
		t.Fatalf("serving = %d versions, want 2", len(resp.Serving))
	}
	if len(resp.History[domain.TargetRiskLevel]) != 1 {
		t.Errorf("history[%s] = %d versions, want 1", domain.TargetRiskLevel, len(resp.History[domain.TargetRiskLevel]))
	}
}

func TestReloadWithEmptyStore(t *testing.T) {
	store, err := modelstore.New(context.Background(), domain.ModelStoreConfig{
		Backend: "local",
		Root:    t.TempDir(),
	})
	if err != nil {
		t.Fatalf("modelstore.New: %v", err)
	}

	predictor, err := NewPredictor(store, nil, domain.DefaultConfig().Labeling)
	if err != nil {
		t.Fatalf("NewPredictor: %v", err)
	}
	srv := NewServer(domain.ServerConfig{APIKey: testAPIKey}, nil, nil, store, predictor, "test")

	rec := doRequest(t, srv, http.MethodPost, "/models/reload", testAPIKey, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}
