package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aluiziolira/go-fare-expander/models"
)

type namedWriter struct {
	name string
	w    OutputWriter
}

// MultiWriter fans every batch out to several writers, stopping at the first failure.
type MultiWriter struct {
	mu      sync.Mutex
	writers []namedWriter
}

// NewMultiWriter combines writers; nil entries are ignored.
func NewMultiWriter(writers ...OutputWriter) *MultiWriter {
	mw := &MultiWriter{}
	for i, w := range writers {
		mw.add(fmt.Sprintf("writer %d", i), w)
	}
	return mw
}

func (mw *MultiWriter) add(name string, w OutputWriter) {
	if w != nil {
		mw.writers = append(mw.writers, namedWriter{name: name, w: w})
	}
}

// Write forwards deals to every writer in order.
func (mw *MultiWriter) Write(deals []*models.ScoredDeal) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	for _, nw := range mw.writers {
		if err := nw.w.Write(deals); err != nil {
			return fmt.Errorf("%s: %w", nw.name, err)
		}
	}
	return nil
}

// Close closes every writer and joins their errors.
func (mw *MultiWriter) Close() error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	var errs []error
	for _, nw := range mw.writers {
		if err := nw.w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s close failed: %w", nw.name, err))
		}
	}
	return errors.Join(errs...)
}

// Validate validates every writer and joins their errors.
func (mw *MultiWriter) Validate() error {
	var errs []error
	for _, nw := range mw.writers {
		if err := nw.w.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s validation failed: %w", nw.name, err))
		}
	}
	return errors.Join(errs...)
}

// DualWriter outputs to both CSV and JSONL.
type DualWriter struct {
	MultiWriter
}

// NewDualWriter opens a CSV and a JSONL writer side by side.
func NewDualWriter(csvFilename, jsonFilename string) (*DualWriter, error) {
	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV writer: %w", err)
	}

	jsonWriter, err := NewJSONWriter(jsonFilename)
	if err != nil {
		csvWriter.Close()
		return nil, fmt.Errorf("failed to create JSON writer: %w", err)
	}

	dw := &DualWriter{}
	dw.add("csv", csvWriter)
	dw.add("json", jsonWriter)
	return dw, nil
}
