// Package classifier is the boundary around the image authenticity model.
//
// The model itself runs out of process. Everything in here turns a
// preprocessed tensor into a Prediction whose probabilities cover the fixed
// label set, and decides what to return when the model cannot answer.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Label is a model output class.
type Label string

const (
	LabelAuthentic   Label = "authentic"
	LabelAIGenerated Label = "ai_generated"
	LabelManipulated Label = "manipulated"

	// LabelError marks a prediction the model could not make.
	LabelError Label = "error"
)

// Labels is the model's output order. Changing it requires a new
// ModelVersion.
var Labels = []Label{LabelAuthentic, LabelAIGenerated, LabelManipulated}

// probabilityTolerance bounds how far a probability vector may drift from 1.
const probabilityTolerance = 1e-6

var (
	ErrUnavailable         = errors.New("classifier unavailable")
	ErrInvalidOutput       = errors.New("invalid classifier output")
	ErrInvalidTensor       = errors.New("invalid input tensor")
	errProbabilityMismatch = errors.New("probabilities do not match label set")
)

// Tensor is a CHW float32 image tensor.
type Tensor struct {
	Shape []int
	Data  []float32
}

// Validate checks that Data holds exactly the number of elements Shape describes.
func (t Tensor) Validate() error {
	if len(t.Shape) == 0 {
		return fmt.Errorf("%w: empty shape", ErrInvalidTensor)
	}
	n := 1
	for _, d := range t.Shape {
		if d <= 0 {
			return fmt.Errorf("%w: non-positive dimension in %v", ErrInvalidTensor, t.Shape)
		}
		n *= d
	}
	if n != len(t.Data) {
		return fmt.Errorf("%w: shape %v wants %d values, got %d", ErrInvalidTensor, t.Shape, n, len(t.Data))
	}
	return nil
}

// Prediction is one classification outcome.
type Prediction struct {
	Label         Label             `json:"prediction"`
	Confidence    float64           `json:"confidence"`
	Probabilities map[Label]float64 `json:"probabilities"`
	// Mock is set when the prediction came from the random fallback and not
	// from the model.
	Mock bool `json:"is_mock"`
}

// Failed reports whether the prediction is the error fallback.
func (p Prediction) Failed() bool {
	return p.Label == LabelError
}

// Validate checks the probability invariants: every label present, values
// in [0,1] summing to 1, and Confidence equal to the chosen label's mass.
func (p Prediction) Validate() error {
	if p.Failed() {
		return nil
	}
	if len(p.Probabilities) != len(Labels) {
		return errProbabilityMismatch
	}
	sum := 0.0
	for _, l := range Labels {
		v, ok := p.Probabilities[l]
		if !ok || v < 0 || v > 1 || math.IsNaN(v) {
			return errProbabilityMismatch
		}
		sum += v
	}
	if math.Abs(sum-1) > probabilityTolerance {
		return fmt.Errorf("probabilities sum to %f", sum)
	}
	if p.Confidence != p.Probabilities[p.Label] {
		return fmt.Errorf("confidence %f differs from probability of %s", p.Confidence, p.Label)
	}
	return nil
}

// ErrorPrediction is returned when no prediction could be made.
func ErrorPrediction() Prediction {
	return Prediction{Label: LabelError, Confidence: 0, Probabilities: map[Label]float64{}}
}

// FromProbabilities builds a Prediction from a probability vector in Labels
// order. The vector is renormalised, and the label is its argmax (first
// index wins ties).
func FromProbabilities(probs []float64) (Prediction, error) {
	if len(probs) != len(Labels) {
		return Prediction{}, fmt.Errorf("%w: got %d values for %d labels", ErrInvalidOutput, len(probs), len(Labels))
	}
	sum := 0.0
	for _, v := range probs {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return Prediction{}, fmt.Errorf("%w: probability %v", ErrInvalidOutput, v)
		}
		sum += v
	}
	if sum == 0 {
		return Prediction{}, fmt.Errorf("%w: all probabilities are zero", ErrInvalidOutput)
	}

	p := Prediction{Probabilities: make(map[Label]float64, len(Labels))}
	best := -1.0
	for i, l := range Labels {
		v := probs[i] / sum
		p.Probabilities[l] = v
		if v > best {
			best = v
			p.Label = l
		}
	}
	p.Confidence = p.Probabilities[p.Label]
	return p, nil
}

// FromLogits applies a softmax to raw model scores in Labels order.
func FromLogits(logits []float64) (Prediction, error) {
	return FromProbabilities(Softmax(logits))
}

// Softmax returns the numerically stable softmax of xs.
func Softmax(xs []float64) []float64 {
	if len(xs) == 0 {
		return nil
	}
	maxV := xs[0]
	for _, v := range xs[1:] {
		if v > maxV {
			maxV = v
		}
	}
	out := make([]float64, len(xs))
	sum := 0.0
	for i, v := range xs {
		out[i] = math.Exp(v - maxV)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// Classifier maps a preprocessed image tensor to a Prediction.
// Implementations must be safe for concurrent use.
type Classifier interface {
	Predict(ctx context.Context, t Tensor) (Prediction, error)
	// Name is a short label for logs and health output.
	Name() string
}

// ReadinessChecker is implemented by classifiers that can report whether
// their backend is reachable.
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}
