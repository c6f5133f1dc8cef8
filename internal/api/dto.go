package api

import (
	"time"

	"trustbridge/backend/internal/scoring"
	"trustbridge/backend/internal/store"
)

// RegisterRequest creates a new user account.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

// LoginRequest authenticates an existing account.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse carries the issued session token.
type AuthResponse struct {
	Token    string `json:"token"`
	FullName string `json:"full_name"`
}

// PredictResponse reports a completed scoring request along with the audit
// record id needed for later report retrieval.
type PredictResponse struct {
	AuditID           uint             `json:"audit_id"`
	ReportID          string           `json:"report_id"`
	Kind              string           `json:"kind"`
	ResultText        string           `json:"result_text"`
	Confidence        float64          `json:"confidence"`
	Factors           []scoring.Factor `json:"factors"`
	FactorsDisclosure string           `json:"factors_disclosure"`
	ProcessingTimeMs  int64            `json:"processing_time_ms"`
}

// AuditDTO is the API representation of a persisted audit record.
type AuditDTO struct {
	ID         uint              `json:"id"`
	ReportID   string            `json:"report_id"`
	Kind       string            `json:"kind"`
	Inputs     map[string]string `json:"inputs"`
	ResultText string            `json:"result_text"`
	Confidence float64           `json:"confidence"`
	CreatedAt  time.Time         `json:"created_at"`
}

// HistoryResponse lists the caller's audit records, most recent first.
type HistoryResponse struct {
	Items []AuditDTO `json:"items"`
}

// CalculatorRequest carries the affordability calculator inputs.
type CalculatorRequest struct {
	Income      float64 `json:"income"`
	Expenses    float64 `json:"expenses"`
	Rate        float64 `json:"rate"`
	TenureYears int     `json:"tenure"`
}

// CalculatorResponse reports the affordability outcome as currency text.
type CalculatorResponse struct {
	MaxEMI        string `json:"max_emi"`
	SuggestedLoan string `json:"suggested_loan"`
}

// AuditFromModel converts a store.AuditRecord into the DTO representation.
// A snapshot that fails to decode leaves Inputs empty; history listing is
// best-effort, only report rendering treats that as a fault.
func AuditFromModel(record store.AuditRecord, reportID string) AuditDTO {
	inputs, err := record.Inputs()
	if err != nil {
		inputs = nil
	}
	return AuditDTO{
		ID:         record.ID,
		ReportID:   reportID,
		Kind:       record.Kind,
		Inputs:     inputs,
		ResultText: record.ResultText,
		Confidence: record.Confidence,
		CreatedAt:  record.CreatedAt,
	}
}
