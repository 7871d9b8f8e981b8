// Package prediction holds the result types shared by the inference service
// and its HTTP callers, and the fixed mapping from a model logit to a verdict.
package prediction

import "math"

type Label string

const (
	Benign    Label = "Benign"
	Malignant Label = "Malignant"
)

type Confidence string

const (
	High   Confidence = "high"
	Medium Confidence = "medium"
)

// Decision thresholds. All comparisons are strict.
const (
	MalignantAbove = 0.5
	HighAbove      = 0.7
	HighBelow      = 0.3
)

// Prediction is the verdict for one image/metadata pair.
type Prediction struct {
	Label       Label      `json:"prediction"`
	Probability float64    `json:"probability"`
	Confidence  Confidence `json:"confidence_level"`
}

// Interpret maps a raw logit to a Prediction.
func Interpret(logit float32) Prediction {
	return FromProbability(Sigmoid(float64(logit)))
}

// FromProbability applies the label and confidence thresholds to p and rounds
// the reported probability to four decimals. Thresholds see the unrounded value.
func FromProbability(p float64) Prediction {
	label := Benign
	if p > MalignantAbove {
		label = Malignant
	}

	confidence := Medium
	if p > HighAbove || p < HighBelow {
		confidence = High
	}

	return Prediction{
		Label:       label,
		Probability: math.Round(p*1e4) / 1e4,
		Confidence:  confidence,
	}
}

func Sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// Response is the body of POST /predict. Callers must check Success; the
// prediction fields are only present on success.
type Response struct {
	Success bool `json:"success"`
	*Prediction
	Error string `json:"error,omitempty"`
}

func Success(p Prediction) Response {
	return Response{Success: true, Prediction: &p}
}

func Failure(err error) Response {
	return Response{Success: false, Error: err.Error()}
}
