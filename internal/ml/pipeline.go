package ml

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Candidate model names, in roster order.
const (
	ModelLogreg  = "logreg"
	ModelForest  = "forest"
	ModelBoosted = "boosted"
)

// Classifier is a trainable multiclass model over encoded features.
type Classifier interface {
	Fit(x [][]float64, y []int, classes int)
	PredictProba(row []float64) []float64
	Predict(row []float64) int
}

// Pipeline bundles an encoder, a classifier and the label vocabulary
// into one trainable, JSON-serializable unit. The serialized form is
// the model artifact the store persists and the API serves from.
type Pipeline struct {
	Target    string
	ModelName string
	Classes   []string
	Encoder   *Encoder

	model Classifier
}

// NewPipeline builds an untrained pipeline for a candidate model name.
// Linear models get one-hot encoding with scaling; tree models get
// ordinal codes.
func NewPipeline(target, modelName string, seed int64) (*Pipeline, error) {
	p := &Pipeline{Target: target, ModelName: modelName}
	switch modelName {
	case ModelLogreg:
		p.Encoder = &Encoder{Kind: EncodingOneHot}
		p.model = NewLogisticRegression()
	case ModelForest:
		p.Encoder = &Encoder{Kind: EncodingOrdinal}
		p.model = NewRandomForest(seed)
	case ModelBoosted:
		p.Encoder = &Encoder{Kind: EncodingOrdinal}
		p.model = NewGradientBoosting()
	default:
		return nil, fmt.Errorf("%w: unknown model %q", domain.ErrInvalidInput, modelName)
	}
	return p, nil
}

// Model exposes the underlying classifier, mainly so tests can shrink
// ensemble sizes.
func (p *Pipeline) Model() Classifier { return p.model }

// Fit learns the label vocabulary, fits the encoder and trains the
// classifier.
func (p *Pipeline) Fit(samples []Sample, labels []string) error {
	if len(samples) == 0 || len(samples) != len(labels) {
		return fmt.Errorf("%w: need matching samples and labels", domain.ErrInvalidInput)
	}

	seen := make(map[string]bool)
	for _, l := range labels {
		seen[l] = true
	}
	p.Classes = p.Classes[:0]
	for l := range seen {
		p.Classes = append(p.Classes, l)
	}
	sort.Strings(p.Classes)

	classIndex := make(map[string]int, len(p.Classes))
	for i, c := range p.Classes {
		classIndex[c] = i
	}
	y := make([]int, len(labels))
	for i, l := range labels {
		y[i] = classIndex[l]
	}

	p.Encoder.Fit(samples)
	p.model.Fit(p.Encoder.Transform(samples), y, len(p.Classes))
	return nil
}

// LabelIndices maps string labels through the learned vocabulary.
func (p *Pipeline) LabelIndices(labels []string) []int {
	classIndex := make(map[string]int, len(p.Classes))
	for i, c := range p.Classes {
		classIndex[c] = i
	}
	y := make([]int, len(labels))
	for i, l := range labels {
		y[i] = classIndex[l]
	}
	return y
}

// PredictIndex returns the predicted class index for one sample.
func (p *Pipeline) PredictIndex(s Sample) int {
	return p.model.Predict(p.Encoder.TransformOne(s))
}

// Predict returns the predicted label and per-class probabilities for
// one sample.
func (p *Pipeline) Predict(s Sample) (string, map[string]float64) {
	probs := p.model.PredictProba(p.Encoder.TransformOne(s))
	dist := make(map[string]float64, len(p.Classes))
	for i, c := range p.Classes {
		if i < len(probs) {
			dist[c] = probs[i]
		}
	}
	label := ""
	if len(p.Classes) > 0 {
		label = p.Classes[argmax(probs)]
	}
	return label, dist
}

// PredictAll returns predicted class indices for a batch.
func (p *Pipeline) PredictAll(samples []Sample) []int {
	out := make([]int, len(samples))
	for i := range samples {
		out[i] = p.PredictIndex(samples[i])
	}
	return out
}

type pipelineJSON struct {
	Target    string          `json:"target"`
	ModelName string          `json:"modelName"`
	Classes   []string        `json:"classes"`
	Encoder   *Encoder        `json:"encoder"`
	Model     json.RawMessage `json:"model"`
}

// MarshalJSON serializes the pipeline including the concrete model.
func (p *Pipeline) MarshalJSON() ([]byte, error) {
	model, err := json.Marshal(p.model)
	if err != nil {
		return nil, fmt.Errorf("marshal model: %w", err)
	}
	return json.Marshal(pipelineJSON{
		Target:    p.Target,
		ModelName: p.ModelName,
		Classes:   p.Classes,
		Encoder:   p.Encoder,
		Model:     model,
	})
}

// UnmarshalJSON restores a pipeline, reconstructing the concrete model
// type from the model name.
func (p *Pipeline) UnmarshalJSON(data []byte) error {
	var raw pipelineJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal pipeline: %w", err)
	}

	p.Target = raw.Target
	p.ModelName = raw.ModelName
	p.Classes = raw.Classes
	p.Encoder = raw.Encoder
	if p.Encoder != nil {
		// Restore the level lookup here so decoded pipelines are
		// read-only under concurrent Predict calls.
		p.Encoder.rebuildIndex()
	}

	switch raw.ModelName {
	case ModelLogreg:
		p.model = &LogisticRegression{}
	case ModelForest:
		p.model = &RandomForest{}
	case ModelBoosted:
		p.model = &GradientBoosting{}
	default:
		return fmt.Errorf("%w: unknown model %q", domain.ErrInvalidInput, raw.ModelName)
	}
	if err := json.Unmarshal(raw.Model, p.model); err != nil {
		return fmt.Errorf("unmarshal model: %w", err)
	}
	return nil
}
