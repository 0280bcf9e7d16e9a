package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aluiziolira/go-fare-expander/models"
)

var csvHeader = []string{
	"deal_id", "origin", "destination", "region", "outbound_date", "return_date",
	"reference_price", "status", "discount_amount", "estimated_usual_price", "discount_pct",
	"flex_count", "score", "is_valid", "is_featured", "first_flex_date", "last_flex_date",
	"similar_dates", "search_url", "expanded_at",
}

// outputFile is an append-only deal file shared by the CSV and JSONL writers. Repeated runs
// against the same path accumulate deals.
type outputFile struct {
	path string
	kind string
	file *os.File
	rows int
}

func openOutputFile(path, kind string) (*outputFile, bool, error) {
	if err := ensureDir(path); err != nil {
		return nil, false, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, false, fmt.Errorf("open %s file: %w", kind, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, false, fmt.Errorf("stat %s file: %w", kind, err)
	}
	return &outputFile{path: path, kind: kind, file: f}, info.Size() == 0, nil
}

// validate checks the handle still points at the file on disk and that written rows landed.
func (o *outputFile) validate() error {
	onDisk, err := os.Stat(o.path)
	if err != nil {
		return fmt.Errorf("%s output %s: %w", o.kind, o.path, err)
	}
	open, err := o.file.Stat()
	if err != nil {
		return fmt.Errorf("stat %s file: %w", o.kind, err)
	}
	if !os.SameFile(onDisk, open) {
		return fmt.Errorf("%s output %s was replaced while writing", o.kind, o.path)
	}
	if o.rows > 0 && open.Size() == 0 {
		return fmt.Errorf("%s file is empty after %d rows", o.kind, o.rows)
	}
	return nil
}

// CSVWriter writes one row per deal.
type CSVWriter struct {
	out    *outputFile
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter opens filename for appending, writing the header row when the file is new.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	out, fresh, err := openOutputFile(filename, "csv")
	if err != nil {
		return nil, err
	}

	writer := csv.NewWriter(out.file)
	if fresh {
		if err := writer.Write(csvHeader); err != nil {
			out.file.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			out.file.Close()
			return nil, fmt.Errorf("flush csv header: %w", err)
		}
	}

	return &CSVWriter{out: out, writer: writer}, nil
}

// Write appends deals to the CSV output.
func (cw *CSVWriter) Write(deals []*models.ScoredDeal) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, deal := range deals {
		if err := cw.writer.Write(dealRecord(deal)); err != nil {
			return fmt.Errorf("write csv record %s: %w", deal.DealID, err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	cw.out.rows += len(deals)
	return nil
}

func dealRecord(d *models.ScoredDeal) []string {
	searchURL := ""
	if len(d.SimilarDates) > 0 {
		searchURL = d.SimilarDates[0].URL
	}
	return []string{
		d.DealID,
		d.Origin,
		d.Destination,
		d.Region,
		d.OutboundDate.String(),
		d.ReturnDate.String(),
		strconv.Itoa(d.ReferencePrice),
		string(d.Status),
		strconv.Itoa(d.DiscountAmount),
		strconv.Itoa(d.EstimatedUsualPrice),
		strconv.FormatFloat(d.DiscountPct, 'f', 4, 64),
		strconv.Itoa(d.FlexCount),
		strconv.FormatFloat(d.Score, 'f', 4, 64),
		strconv.FormatBool(d.IsValid),
		strconv.FormatBool(d.IsFeatured),
		d.FirstFlexDate.String(),
		d.LastFlexDate.String(),
		formatSimilarDates(d.SimilarDates),
		searchURL,
		d.ExpandedAt.Format(time.RFC3339),
	}
}

// formatSimilarDates renders "out/ret:price" pairs separated by semicolons.
func formatSimilarDates(dates []models.SimilarDate) string {
	parts := make([]string, len(dates))
	for i, s := range dates {
		parts[i] = s.Outbound.String() + "/" + s.Return.String() + ":" + strconv.Itoa(s.Price)
	}
	return strings.Join(parts, ";")
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.out.file.Close()
}

// Validate checks the CSV file is still in place.
func (cw *CSVWriter) Validate() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.out.validate()
}

// JSONWriter writes one ScoredDeal per line.
type JSONWriter struct {
	out     *outputFile
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter opens filename for appending.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	out, _, err := openOutputFile(filename, "json")
	if err != nil {
		return nil, err
	}

	buffer := bufio.NewWriter(out.file)
	return &JSONWriter{
		out:     out,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

// Write appends deals in JSONL format.
func (jw *JSONWriter) Write(deals []*models.ScoredDeal) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, deal := range deals {
		if err := jw.encoder.Encode(deal); err != nil {
			return fmt.Errorf("encode deal %s: %w", deal.DealID, err)
		}
	}
	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	jw.out.rows += len(deals)
	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.out.file.Close()
}

// Validate checks the JSONL file is still in place.
func (jw *JSONWriter) Validate() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	return jw.out.validate()
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
