package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	store     domain.ModelStore
	predictor *Predictor
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, store domain.ModelStore, predictor *Predictor, version string) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		store:     store,
		predictor: predictor,
		version:   version,
	}
}

// Predict handles POST /predict requests.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	pred, err := h.predictor.Predict(ctx, &req)
	if err != nil {
		h.writePredictError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pred)
}

// PredictBatchRequest is the request body for POST /predict/batch.
type PredictBatchRequest struct {
	Rows []*PredictRequest `json:"rows"`
}

// PredictBatch handles POST /predict/batch requests. Results are
// returned in request order.
func (h *Handler) PredictBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req PredictBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.Rows) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rows must be a non-empty array",
		})
		return
	}

	preds, err := h.predictor.PredictBatch(ctx, req.Rows)
	if err != nil {
		h.writePredictError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(preds),
		"result": preds,
	})
}

func (h *Handler) writePredictError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrInvalidInput) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	slog.Error("prediction failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": err.Error(),
	})
}

// ListVersions handles GET /versions: the versions currently being
// served plus the store history per target.
func (h *Handler) ListVersions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	history := make(map[string][]*domain.ModelVersion)
	for _, target := range []string{domain.TargetRiskLevel, domain.TargetComplexity} {
		versions, err := h.store.List(ctx, target)
		if err != nil {
			slog.Error("failed to list model versions", "target", target, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to list model versions",
			})
			return
		}
		history[target] = versions
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"serving": h.predictor.Versions(),
		"history": history,
	})
}

// ReloadModels handles POST /models/reload: re-reads the latest
// artifact for both targets from the store.
func (h *Handler) ReloadModels(w http.ResponseWriter, r *http.Request) {
	if err := h.predictor.Reload(r.Context()); err != nil {
		slog.Error("model reload failed", "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrNotFound) {
			status = http.StatusConflict
		}
		writeJSON(w, status, map[string]string{
			"error": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "models reloaded",
		"serving": h.predictor.Versions(),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        status,
		"models_loaded": h.predictor.Ready(),
		"version":       h.version,
		"ts":            time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready returns whether the server can classify traffic. Models must
// be loaded before the server is routable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.predictor.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"ready": "false",
			"error": "models are not loaded",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
