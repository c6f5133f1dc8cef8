package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// User is a registered client of the scoring service.
type User struct {
	ID           uint   `gorm:"primaryKey"`
	Username     string `gorm:"size:80;uniqueIndex"`
	Email        string `gorm:"size:120;uniqueIndex"`
	PasswordHash string `gorm:"size:128"`
	FullName     string `gorm:"size:100"`
	CreatedAt    time.Time
}

// AuditRecord is the immutable, durable log entry for one completed scoring
// request. Records are write-once: nothing in this package updates or
// deletes them after creation.
type AuditRecord struct {
	ID               uint   `gorm:"primaryKey"`
	Kind             string `gorm:"size:20;index"`
	InputJSON        string `gorm:"type:text"`
	ResultText       string `gorm:"size:100"`
	Confidence       float64
	ProcessingTimeMs int64
	CreatedAt        time.Time `gorm:"index"`
	UserID           uint      `gorm:"index"`
}

// SetInputs stores the raw request fields as the point-in-time snapshot.
func (r *AuditRecord) SetInputs(fields map[string]string) {
	if fields == nil {
		fields = map[string]string{}
	}
	payload, _ := json.Marshal(fields)
	r.InputJSON = string(payload)
}

// Inputs decodes the stored snapshot. A malformed snapshot is an error so
// report rendering can surface it rather than silently degrade.
func (r *AuditRecord) Inputs() (map[string]string, error) {
	if strings.TrimSpace(r.InputJSON) == "" {
		return nil, fmt.Errorf("audit record %d has an empty input snapshot", r.ID)
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(r.InputJSON), &out); err != nil {
		return nil, fmt.Errorf("decode input snapshot for record %d: %w", r.ID, err)
	}
	return out, nil
}
