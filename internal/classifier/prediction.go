package classifier

type Status string

const (
	StatusOK               Status = "ok"
	StatusModelUnavailable Status = "model_unavailable"
	StatusInvalidImage     Status = "invalid_image"
	StatusInferenceFailure Status = "inference_failure"
)

// NeutralColor is reported with every failed prediction.
const NeutralColor = "black"

const (
	LabelModelUnavailable = "Model not loaded."
	LabelInvalidImage     = "Invalid image file."
	LabelInferenceFailure = "Prediction failed."
)

// Prediction is the outcome of one Classify call. Failed calls carry a
// non-ok Status, a diagnostic label, NeutralColor and zero confidence.
type Prediction struct {
	Status     Status  `json:"status"`
	Class      string  `json:"class,omitempty"`
	Label      string  `json:"label"`
	Color      string  `json:"color"`
	Confidence float32 `json:"confidence"`
}

// OK separates a real prediction, however unsure, from a failure.
func (p Prediction) OK() bool {
	return p.Status == StatusOK
}

func ModelUnavailable() Prediction {
	return failed(StatusModelUnavailable, LabelModelUnavailable)
}

func InvalidImage() Prediction {
	return failed(StatusInvalidImage, LabelInvalidImage)
}

func InferenceFailure() Prediction {
	return failed(StatusInferenceFailure, LabelInferenceFailure)
}

func failed(status Status, label string) Prediction {
	return Prediction{Status: status, Label: label, Color: NeutralColor}
}
