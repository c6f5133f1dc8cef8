// Package report renders persisted audit records as fixed-layout PDF
// documents. Rendering is a pure function of the record and the owner's
// display name: the same record always yields the same bytes.
package report

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/go-pdf/fpdf"

	"trustbridge/backend/internal/features"
	"trustbridge/backend/internal/store"
)

const (
	brandName      = "TrustBridge Bank"
	reportSubtitle = "Official Financial Analysis Report"
	reportIDPrefix = "TB"

	disclaimerLine = "DISCLAIMER: This report is for advisory purposes only. Not a formal financial commitment."
	copyrightLine  = "TrustBridge Bank (c) 2026. All Rights Reserved."
)

// RenderError reports a report generation failure. The underlying audit
// record remains intact; only the document could not be produced.
type RenderError struct {
	RecordID uint
	Err      error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render report for record %d: %v", e.RecordID, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Renderer produces the fixed-layout report document.
type Renderer struct{}

// NewRenderer constructs a report renderer.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// ReportID formats the public report identifier for an audit record.
func ReportID(recordID uint) string {
	return fmt.Sprintf("%s-%04d", reportIDPrefix, recordID)
}

// Render produces the single-page PDF for an audit record. The document's
// only timestamp is the record's own creation time, which also pins the PDF
// metadata so repeated renders are byte-identical.
func (r *Renderer) Render(record store.AuditRecord, ownerName string) ([]byte, error) {
	inputs, err := record.Inputs()
	if err != nil {
		return nil, &RenderError{RecordID: record.ID, Err: err}
	}

	pdf := fpdf.New("P", "pt", "Letter", "")
	pdf.SetCreationDate(record.CreatedAt)
	pdf.SetModificationDate(record.CreatedAt)
	pdf.AddPage()

	// Branding block.
	pdf.SetFont("Helvetica", "B", 24)
	pdf.Text(100, 42, brandName)
	pdf.SetFont("Helvetica", "", 12)
	pdf.Text(100, 57, reportSubtitle)
	pdf.Line(100, 62, 500, 62)

	// Metadata.
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Text(100, 92, fmt.Sprintf("Report ID: %s", ReportID(record.ID)))
	pdf.Text(100, 107, fmt.Sprintf("Date: %s", record.CreatedAt.Format("2006-01-02 15:04:05")))
	pdf.Text(100, 122, fmt.Sprintf("Client Name: %s", ownerName))

	pdf.SetFont("Helvetica", "B", 14)
	pdf.Text(100, 162, fmt.Sprintf("Analysis Type: %s Prediction", titleCase(record.Kind)))

	pdf.SetFont("Helvetica", "", 12)
	y := 192.0
	pdf.Text(100, y, "Input Parameters:")
	y += 20
	for _, key := range snapshotOrder(features.Kind(record.Kind), inputs) {
		pdf.Text(120, y, fmt.Sprintf("- %s: %s", titleCase(key), inputs[key]))
		y += 15
	}

	y += 25
	pdf.SetFont("Helvetica", "B", 16)
	pdf.SetTextColor(15, 23, 41)
	pdf.Text(100, y, fmt.Sprintf("FINAL DETERMINATION: %s", record.ResultText))

	y += 30
	pdf.SetFont("Helvetica", "I", 12)
	pdf.SetTextColor(0, 0, 0)
	pdf.Text(100, y, fmt.Sprintf("Analytical Confidence: %g%%", record.Confidence))

	pdf.SetFont("Helvetica", "", 8)
	pdf.Text(100, 742, disclaimerLine)
	pdf.Text(100, 752, copyrightLine)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, &RenderError{RecordID: record.ID, Err: err}
	}
	return buf.Bytes(), nil
}

// snapshotOrder lists the snapshot keys in the kind's canonical schema
// order, then any remaining keys sorted, so output stays deterministic.
func snapshotOrder(kind features.Kind, inputs map[string]string) []string {
	ordered := make([]string, 0, len(inputs))
	seen := make(map[string]struct{}, len(inputs))
	for _, key := range features.FieldOrder(kind) {
		if _, ok := inputs[key]; ok {
			ordered = append(ordered, key)
			seen[key] = struct{}{}
		}
	}
	var rest []string
	for key := range inputs {
		if _, ok := seen[key]; !ok {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	return append(ordered, rest...)
}

func titleCase(value string) string {
	words := strings.Fields(strings.ReplaceAll(value, "_", " "))
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
