package features

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind selects the prediction category and therefore the feature schema.
type Kind string

const (
	KindHouse Kind = "house"
	KindLoan  Kind = "loan"
)

// ParseKind validates a raw kind value.
func ParseKind(value string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case KindHouse:
		return KindHouse, true
	case KindLoan:
		return KindLoan, true
	}
	return "", false
}

// Vector is the fixed-order numeric encoding of one scoring request. Order
// and length match the model artifact's expected input shape.
type Vector struct {
	Kind   Kind
	Values []float64
}

// ValidationError reports a required field that is missing or not parseable.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("field %q is missing or not a number", e.Field)
}

var houseFields = []string{
	"bedrooms",
	"bathrooms",
	"flat_area",
	"lot_area",
	"condition",
	"grade",
	"zipcode",
}

var loanNumericFields = []string{
	"applicant_income",
	"coapplicant_income",
	"loan_amount",
	"loan_term",
	"credit_history",
}

var loanCategoricalFields = []string{
	"property_area",
	"married",
	"education",
}

// Unrecognized property areas deliberately fall back to the Urban code.
var propertyAreaCodes = map[string]float64{
	"Urban":     0,
	"Semiurban": 1,
	"Rural":     2,
}

// FieldOrder returns the canonical input field names for a kind. The order
// doubles as the render order for stored snapshots.
func FieldOrder(kind Kind) []string {
	switch kind {
	case KindHouse:
		return append([]string{}, houseFields...)
	case KindLoan:
		fields := append([]string{}, loanNumericFields...)
		return append(fields, loanCategoricalFields...)
	}
	return nil
}

// Build encodes raw request fields into the fixed-order feature vector for
// the kind. The build is all-or-nothing: any unparseable required numeric
// field aborts with a ValidationError naming it.
func Build(kind Kind, fields map[string]string) (Vector, error) {
	switch kind {
	case KindHouse:
		return buildNumeric(kind, houseFields, fields)
	case KindLoan:
		return buildLoan(fields)
	}
	return Vector{}, fmt.Errorf("unknown prediction kind %q", kind)
}

func buildNumeric(kind Kind, names []string, fields map[string]string) (Vector, error) {
	values := make([]float64, 0, len(names))
	for _, name := range names {
		value, err := parseNumber(fields[name])
		if err != nil {
			return Vector{}, &ValidationError{Field: name}
		}
		values = append(values, value)
	}
	return Vector{Kind: kind, Values: values}, nil
}

func buildLoan(fields map[string]string) (Vector, error) {
	vector, err := buildNumeric(KindLoan, loanNumericFields, fields)
	if err != nil {
		return Vector{}, err
	}

	area := propertyAreaCodes[strings.TrimSpace(fields["property_area"])]
	vector.Values = append(vector.Values, area)
	vector.Values = append(vector.Values, boolFlag(fields["married"], "Yes"))
	vector.Values = append(vector.Values, boolFlag(fields["education"], "Graduate"))
	return vector, nil
}

func boolFlag(value, truthy string) float64 {
	if strings.TrimSpace(value) == truthy {
		return 1
	}
	return 0
}

func parseNumber(value string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(value), 64)
}
