// Command mkartifact packages externally trained model coefficients into the
// artifact format the scoring backend consumes. Training itself happens on
// the producer side; this tool only owns the serialization contract.
package main

import (
	"encoding/json"
	"flag"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"trustbridge/backend/internal/model"
)

func main() {
	kind := flag.String("kind", "", "prediction kind the artifact serves (house or loan)")
	modelType := flag.String("type", "", "model type: linear_regression or logistic_regression")
	coefficients := flag.String("coefficients", "", "comma-separated model coefficients")
	intercept := flag.Float64("intercept", 0, "model intercept term")
	confidence := flag.Float64("confidence", 0, "optional calibrated confidence percentage")
	out := flag.String("out", "", "output artifact path")
	flag.Parse()

	if *out == "" {
		logrus.Fatal("-out is required")
	}

	values, err := parseCoefficients(*coefficients)
	if err != nil {
		logrus.Fatalf("parse coefficients: %v", err)
	}

	artifact := model.Artifact{
		Schema:               model.SchemaVersion,
		Kind:                 strings.TrimSpace(*kind),
		Type:                 strings.TrimSpace(*modelType),
		Coefficients:         values,
		Intercept:            *intercept,
		CalibratedConfidence: *confidence,
	}
	if err := artifact.Validate(); err != nil {
		logrus.Fatalf("invalid artifact: %v", err)
	}

	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		logrus.Fatalf("encode artifact: %v", err)
	}
	if err := os.WriteFile(*out, append(data, '\n'), 0o644); err != nil {
		logrus.Fatalf("write artifact: %v", err)
	}

	logrus.WithFields(logrus.Fields{
		"path":         *out,
		"kind":         artifact.Kind,
		"type":         artifact.Type,
		"coefficients": len(artifact.Coefficients),
	}).Info("artifact written")
}

func parseCoefficients(raw string) ([]float64, error) {
	var values []float64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		value, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, nil
}
