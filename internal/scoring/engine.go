package scoring

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"trustbridge/backend/internal/features"
	"trustbridge/backend/internal/model"
)

// DefaultConfidence is the documented placeholder used when the artifact
// carries no calibrated figure.
const DefaultConfidence = 94.2

// Loan determination labels.
const (
	LabelApproved = "Approved"
	LabelFlagged  = "Flagged for Review"
)

// Result is the outcome of one scoring request.
type Result struct {
	Kind        features.Kind
	RawOutput   float64
	DisplayText string
	Confidence  float64
	Factors     []Factor
}

// FaultError reports model output or behavior outside the scoring contract.
type FaultError struct {
	Kind   features.Kind
	Reason string
	Err    error
}

func (e *FaultError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("scoring %s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("scoring %s: %s", e.Kind, e.Reason)
}

func (e *FaultError) Unwrap() error { return e.Err }

// Engine scores feature vectors against cached model artifacts.
type Engine struct {
	cache *model.Cache
}

// NewEngine constructs an engine backed by the artifact cache.
func NewEngine(cache *model.Cache) *Engine {
	return &Engine{cache: cache}
}

// Score resolves the predictor for the vector's kind and evaluates it.
// Returns model.ErrNotAvailable when the artifact cannot be loaded.
func (e *Engine) Score(vector features.Vector) (Result, error) {
	predictor, err := e.cache.Load(vector.Kind)
	if err != nil {
		return Result{}, err
	}
	return ScoreWith(predictor, vector)
}

// ScoreWith evaluates a predictor directly against a vector.
func ScoreWith(predictor model.Predictor, vector features.Vector) (Result, error) {
	raw, err := predictor.Predict(vector.Values)
	if err != nil {
		return Result{}, &FaultError{Kind: vector.Kind, Reason: "predict", Err: err}
	}

	display, err := displayText(vector.Kind, raw)
	if err != nil {
		return Result{}, err
	}

	confidence := DefaultConfidence
	if calibrated, ok := predictor.CalibratedConfidence(); ok {
		confidence = calibrated
	}

	return Result{
		Kind:        vector.Kind,
		RawOutput:   raw,
		DisplayText: display,
		Confidence:  confidence,
		Factors:     Factors(vector.Kind),
	}, nil
}

func displayText(kind features.Kind, raw float64) (string, error) {
	switch kind {
	case features.KindHouse:
		return FormatCurrency(raw), nil
	case features.KindLoan:
		switch raw {
		case 1:
			return LabelApproved, nil
		case 0:
			return LabelFlagged, nil
		}
		return "", &FaultError{Kind: kind, Reason: fmt.Sprintf("unexpected class value %v", raw)}
	}
	return "", &FaultError{Kind: kind, Reason: "unknown kind"}
}

// FormatCurrency renders a dollar amount with thousands separators and two
// decimal places.
func FormatCurrency(value float64) string {
	return "$" + humanize.FormatFloat("#,###.##", value)
}
