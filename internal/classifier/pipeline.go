package classifier

import (
	"fmt"
	"math"

	"github.com/Brownie44l1/leafcheck/internal/model"
	"github.com/go-logr/logr"
)

// Model is the part of a loaded classifier the pipeline needs.
type Model interface {
	Metadata() model.Metadata
	Predict(input []float32) ([]float32, error)
}

// Pipeline classifies image files. It is either Ready or Degraded, decided
// once at construction. A Degraded pipeline answers every call with the
// model-unavailable prediction.
type Pipeline struct {
	model    Model
	metadata model.Metadata
	labels   LabelTable
	loadErr  error
	log      logr.Logger
}

// Load opens the model described by opts. It never fails: a model that
// cannot be loaded yields a Degraded pipeline.
func Load(opts model.Options, log logr.Logger) *Pipeline {
	log.Info("loading model", "path", opts.Path, "metadata", opts.MetadataPath)
	m, err := model.Open(opts)
	if err != nil {
		log.Error(err, "model not loaded, classification disabled", "path", opts.Path)
		return &Pipeline{loadErr: err, log: log}
	}
	p := New(m, nil, log)
	if !p.Ready() {
		m.Close()
	}
	return p
}

// New builds a pipeline around an already loaded model. A nil labels table
// is taken from the model metadata. A nil model, or a table that does not
// line up with the model output, gives a Degraded pipeline.
func New(m Model, labels LabelTable, log logr.Logger) *Pipeline {
	if m == nil {
		return &Pipeline{loadErr: fmt.Errorf("no model"), log: log}
	}
	metadata := m.Metadata()
	if labels == nil {
		labels = LabelsFromMetadata(metadata)
	}
	if err := labels.Check(metadata.OutputSize()); err != nil {
		log.Error(err, "label table does not match model, classification disabled")
		return &Pipeline{loadErr: err, log: log}
	}
	log.Info("model loaded", "input", metadata.InputShape, "layout", metadata.Layout,
		"channels", metadata.ChannelOrder, "classes", len(labels))
	return &Pipeline{model: m, metadata: metadata, labels: labels, log: log}
}

func (p *Pipeline) Ready() bool {
	return p.model != nil
}

// Err is the reason the pipeline is Degraded, nil when Ready.
func (p *Pipeline) Err() error {
	return p.loadErr
}

func (p *Pipeline) Labels() LabelTable {
	return p.labels
}

// Close releases the model if it owns native resources.
func (p *Pipeline) Close() {
	if closer, ok := p.model.(interface{ Close() }); ok {
		closer.Close()
	}
}

// Classify labels the image at path. Failures never escape as errors; they
// come back as a Prediction with a non-ok Status.
func (p *Pipeline) Classify(path string) (pred Prediction) {
	if p.model == nil {
		return ModelUnavailable()
	}

	img, format, err := DecodeFile(path)
	if err != nil {
		p.log.Error(err, "invalid image", "path", path)
		return InvalidImage()
	}
	p.log.V(1).Info("image decoded", "path", path, "format", format,
		"width", img.Bounds().Dx(), "height", img.Bounds().Dy())

	defer func() {
		if r := recover(); r != nil {
			p.log.Error(fmt.Errorf("%v", r), "inference panicked", "path", path)
			pred = InferenceFailure()
		}
	}()

	inputData, err := Preprocess(img, p.metadata)
	if err != nil {
		p.log.Error(err, "preprocessing failed", "path", path)
		return InferenceFailure()
	}

	scores, err := p.model.Predict(inputData)
	if err != nil {
		p.log.Error(err, "prediction failed", "path", path)
		return InferenceFailure()
	}
	if len(scores) != len(p.labels) {
		p.log.Error(fmt.Errorf("got %d scores for %d labels", len(scores), len(p.labels)), "unexpected model output", "path", path)
		return InferenceFailure()
	}
	for i, v := range scores {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			p.log.Error(fmt.Errorf("score %d is %v", i, v), "non-finite model output", "path", path)
			return InferenceFailure()
		}
	}

	idx := Argmax(scores)
	entry := p.labels[idx]
	return Prediction{
		Status:     StatusOK,
		Class:      entry.Class,
		Label:      entry.Label,
		Color:      entry.Color,
		Confidence: scores[idx],
	}
}
