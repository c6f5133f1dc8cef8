package scoring

import "trustbridge/backend/internal/features"

// Factor describes one heuristic contributing factor attached to a result.
type Factor struct {
	Factor      string `json:"factor"`
	Impact      string `json:"impact"`
	Description string `json:"description"`
}

// Disclosure is surfaced alongside factors so consumers know these are
// fixed narratives per kind, not attributions derived from model internals.
const Disclosure = "Contributing factors are fixed per analysis kind and are not derived from model internals."

var houseFactors = []Factor{
	{
		Factor:      "Location (Zipcode)",
		Impact:      "High",
		Description: "Zipcode is a primary driver of market value in our current model.",
	},
	{
		Factor:      "Space (Sqft)",
		Impact:      "Medium",
		Description: "Flat area directly correlates with the predicted appraisal.",
	},
	{
		Factor:      "State (Condition)",
		Impact:      "Moderate",
		Description: "Overall property maintenance level affected the final number.",
	},
}

var loanFactors = []Factor{
	{
		Factor:      "Credit History",
		Impact:      "Critical",
		Description: "Historical repayment behavior is the strongest predictor for this outcome.",
	},
	{
		Factor:      "Income-to-Debt",
		Impact:      "High",
		Description: "The ratio between your total income and requested loan amount was analyzed.",
	},
	{
		Factor:      "Education Level",
		Impact:      "Minor",
		Description: "Academic background contributes slightly to financial stability scoring.",
	},
}

// Factors returns the fixed contributing-factor narrative for a kind. The
// content depends only on the kind, never on the scored values.
func Factors(kind features.Kind) []Factor {
	switch kind {
	case features.KindHouse:
		return append([]Factor{}, houseFactors...)
	case features.KindLoan:
		return append([]Factor{}, loanFactors...)
	}
	return nil
}
