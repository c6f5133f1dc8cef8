package report

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"trustbridge/backend/internal/store"
)

func sampleRecord(t *testing.T) store.AuditRecord {
	t.Helper()
	record := store.AuditRecord{
		ID:         42,
		Kind:       "house",
		ResultText: "$512,300.00",
		Confidence: 94.2,
		CreatedAt:  time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
	}
	record.SetInputs(map[string]string{
		"bedrooms":  "3",
		"bathrooms": "2",
		"flat_area": "1800",
		"lot_area":  "5000",
		"condition": "4",
		"grade":     "7",
		"zipcode":   "98001",
	})
	return record
}

func TestRenderDeterministic(t *testing.T) {
	renderer := NewRenderer()
	record := sampleRecord(t)

	first, err := renderer.Render(record, "Morgan Walker")
	if err != nil {
		t.Fatalf("first render: %v", err)
	}
	second, err := renderer.Render(record, "Morgan Walker")
	if err != nil {
		t.Fatalf("second render: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("expected byte-identical output for the same record")
	}
	if len(first) == 0 {
		t.Fatal("expected non-empty document")
	}
	if !bytes.HasPrefix(first, []byte("%PDF")) {
		t.Fatal("expected a PDF document")
	}
}

func TestRenderMalformedSnapshot(t *testing.T) {
	renderer := NewRenderer()
	record := sampleRecord(t)
	record.InputJSON = "{broken"

	_, err := renderer.Render(record, "Morgan Walker")
	var renderErr *RenderError
	if !errors.As(err, &renderErr) {
		t.Fatalf("expected RenderError got %v", err)
	}
	if renderErr.RecordID != record.ID {
		t.Fatalf("expected record id %d got %d", record.ID, renderErr.RecordID)
	}
}

func TestReportID(t *testing.T) {
	tests := []struct {
		id       uint
		expected string
	}{
		{1, "TB-0001"},
		{42, "TB-0042"},
		{12345, "TB-12345"},
	}
	for _, tc := range tests {
		if got := ReportID(tc.id); got != tc.expected {
			t.Fatalf("id %d: expected %q got %q", tc.id, tc.expected, got)
		}
	}
}

func TestSnapshotOrderCanonical(t *testing.T) {
	inputs := map[string]string{
		"zipcode":  "98001",
		"bedrooms": "3",
		"custom":   "x",
		"lot_area": "5000",
	}
	order := snapshotOrder("house", inputs)
	expected := []string{"bedrooms", "lot_area", "zipcode", "custom"}
	if len(order) != len(expected) {
		t.Fatalf("expected %d keys got %d", len(expected), len(order))
	}
	for i, key := range expected {
		if order[i] != key {
			t.Fatalf("position %d: expected %q got %q", i, key, order[i])
		}
	}
}
