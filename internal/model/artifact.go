package model

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// Artifact model types. The artifact format is a versioned contract owned by
// the training side; this package only consumes it.
const (
	TypeLinearRegression   = "linear_regression"
	TypeLogisticRegression = "logistic_regression"
)

// SchemaVersion is the artifact document version this build understands.
const SchemaVersion = 1

// Artifact is the serialized scoring model document.
type Artifact struct {
	Schema       int       `json:"schema"`
	Kind         string    `json:"kind"`
	Type         string    `json:"type"`
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
	// CalibratedConfidence, when positive, overrides the engine's default
	// confidence figure.
	CalibratedConfidence float64 `json:"calibrated_confidence,omitempty"`
}

// Validate checks the artifact document against the scoring contract.
func (a Artifact) Validate() error {
	if a.Schema != SchemaVersion {
		return fmt.Errorf("unsupported artifact schema %d", a.Schema)
	}
	if a.Type != TypeLinearRegression && a.Type != TypeLogisticRegression {
		return fmt.Errorf("unsupported artifact type %q", a.Type)
	}
	if len(a.Coefficients) == 0 {
		return fmt.Errorf("artifact has no coefficients")
	}
	return nil
}

// Predictor is the capability the scoring engine depends on. Implementations
// are read-only after construction and safe for concurrent use.
type Predictor interface {
	// Predict evaluates the model against a feature vector whose length must
	// equal InputSize.
	Predict(features []float64) (float64, error)
	// InputSize is the expected feature vector length.
	InputSize() int
	// CalibratedConfidence reports the artifact-supplied confidence figure,
	// when one is present.
	CalibratedConfidence() (float64, bool)
}

// LoadArtifact reads and validates a serialized model artifact, returning a
// predictor for it.
func LoadArtifact(path string) (Predictor, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	var artifact Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("unmarshal artifact: %w", err)
	}
	if err := artifact.Validate(); err != nil {
		return nil, fmt.Errorf("invalid artifact: %w", err)
	}
	switch artifact.Type {
	case TypeLinearRegression:
		return linearModel{artifact: artifact}, nil
	case TypeLogisticRegression:
		return logisticModel{artifact: artifact}, nil
	}
	return nil, fmt.Errorf("unsupported artifact type %q", artifact.Type)
}

type linearModel struct {
	artifact Artifact
}

func (m linearModel) Predict(features []float64) (float64, error) {
	sum, err := dot(m.artifact, features)
	if err != nil {
		return 0, err
	}
	return sum, nil
}

func (m linearModel) InputSize() int { return len(m.artifact.Coefficients) }

func (m linearModel) CalibratedConfidence() (float64, bool) {
	return calibrated(m.artifact)
}

// logisticModel maps the linear response through a sigmoid and thresholds at
// 0.5, yielding the binary class as 0 or 1.
type logisticModel struct {
	artifact Artifact
}

func (m logisticModel) Predict(features []float64) (float64, error) {
	sum, err := dot(m.artifact, features)
	if err != nil {
		return 0, err
	}
	probability := 1 / (1 + math.Exp(-sum))
	if probability >= 0.5 {
		return 1, nil
	}
	return 0, nil
}

func (m logisticModel) InputSize() int { return len(m.artifact.Coefficients) }

func (m logisticModel) CalibratedConfidence() (float64, bool) {
	return calibrated(m.artifact)
}

func dot(artifact Artifact, features []float64) (float64, error) {
	if len(features) != len(artifact.Coefficients) {
		return 0, fmt.Errorf("feature vector length %d, model expects %d", len(features), len(artifact.Coefficients))
	}
	sum := artifact.Intercept
	for i, coefficient := range artifact.Coefficients {
		sum += coefficient * features[i]
	}
	return sum, nil
}

func calibrated(artifact Artifact) (float64, bool) {
	if artifact.CalibratedConfidence > 0 {
		return artifact.CalibratedConfidence, true
	}
	return 0, false
}
