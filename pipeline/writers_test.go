package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aluiziolira/go-fare-expander/models"
)

func testDeal() *models.ScoredDeal {
	return &models.ScoredDeal{
		DealID:         "atl-sju-20260210",
		Origin:         "ATL",
		Destination:    "SJU",
		Region:         "caribbean",
		OutboundDate:   models.MustParseDate("2026-02-10"),
		ReturnDate:     models.MustParseDate("2026-02-17"),
		ReferencePrice: 195,
		Status:         models.StatusCompleted,
		DealMetrics: models.DealMetrics{
			DiscountAmount:      60,
			EstimatedUsualPrice: 255,
			DiscountPct:         60.0 / 255.0,
			FlexCount:           12,
		},
		Score:         0.435,
		IsValid:       true,
		FirstFlexDate: models.MustParseDate("2026-02-01"),
		LastFlexDate:  models.MustParseDate("2026-02-19"),
		SimilarDates: []models.SimilarDate{
			{Outbound: models.MustParseDate("2026-02-01"), Return: models.MustParseDate("2026-02-08"), Price: 180},
		},
		Tolerance:  0.15,
		ExpandedAt: time.Date(2026, 1, 15, 13, 9, 13, 0, time.UTC),
	}
}

func TestCSVWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deals.csv")

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}

	if err := writer.Write([]*models.ScoredDeal{testDeal()}); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records=%d, want 2", len(records))
	}
	if records[0][0] != "deal_id" || records[0][1] != "origin" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	if len(records[1]) != len(records[0]) {
		t.Fatalf("row has %d fields, header %d", len(records[1]), len(records[0]))
	}
	if records[1][0] != "atl-sju-20260210" || records[1][4] != "2026-02-10" || records[1][11] != "12" {
		t.Fatalf("unexpected row: %v", records[1])
	}
	if records[1][17] != "2026-02-01/2026-02-08:180" {
		t.Fatalf("similar dates = %q", records[1][17])
	}
}

func TestCSVWriterAppendsAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "deals.csv")

	for run := 0; run < 2; run++ {
		writer, err := NewCSVWriter(path)
		if err != nil {
			t.Fatalf("run %d: create csv writer: %v", run, err)
		}
		if err := writer.Write([]*models.ScoredDeal{testDeal()}); err != nil {
			t.Fatalf("run %d: write: %v", run, err)
		}
		if err := writer.Close(); err != nil {
			t.Fatalf("run %d: close: %v", run, err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 || records[2][0] != "atl-sju-20260210" {
		t.Fatalf("expected one header and two rows, got %d records", len(records))
	}
}

func TestWriterValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deals.jsonl")
	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	defer writer.Close()

	if err := writer.Validate(); err != nil {
		t.Fatalf("a run without deals should validate, got %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := writer.Validate(); err == nil {
		t.Fatalf("expected error once the output file is gone")
	}
}

func TestJSONWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deals.jsonl")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}

	if err := writer.Write([]*models.ScoredDeal{testDeal(), testDeal()}); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	count := 0
	for scanner.Scan() {
		var decoded map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid json line: %v", err)
		}
		if decoded["outbound_date"] != "2026-02-10" || decoded["flex_count"] != float64(12) {
			t.Fatalf("unexpected record %v", decoded)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan json: %v", err)
	}
	if count != 2 {
		t.Fatalf("json lines=%d, want 2", count)
	}
}

func TestDualWriterWrite(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "deals.csv")
	jsonPath := filepath.Join(dir, "deals.jsonl")

	writer, err := NewDualWriter(csvPath, jsonPath)
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}

	if err := writer.Write([]*models.ScoredDeal{testDeal()}); err != nil {
		t.Fatalf("write dual: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate dual: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close dual: %v", err)
	}

	if info, err := os.Stat(csvPath); err != nil || info.Size() == 0 {
		t.Fatalf("csv file missing or empty")
	}
	if info, err := os.Stat(jsonPath); err != nil || info.Size() == 0 {
		t.Fatalf("json file missing or empty")
	}
}

type failingWriter struct{ mockWriter }

func (fw *failingWriter) Write([]*models.ScoredDeal) error { return errors.New("disk full") }

func TestMultiWriterStopsAtFirstFailure(t *testing.T) {
	first := &mockWriter{}
	last := &mockWriter{}
	mw := NewMultiWriter(first, nil, &failingWriter{}, last)

	if err := mw.Write([]*models.ScoredDeal{testDeal()}); err == nil {
		t.Fatalf("expected write error")
	}
	if first.totalWritten() != 1 || last.totalWritten() != 0 {
		t.Fatalf("first=%d last=%d, want 1 and 0", first.totalWritten(), last.totalWritten())
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !first.closed || !last.closed {
		t.Fatalf("all writers should be closed")
	}
}
