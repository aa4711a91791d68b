package pipeline

import (
	"fmt"
	"sync"

	"github.com/naramarket/go-naramarket/models"
)

// DualSink fans rows out to a CSV file and an NDJSON file.
type DualSink struct {
	csv    *CSVSink
	ndjson *NDJSONSink
	mu     sync.Mutex
}

// NewDualSink creates both underlying sinks; the CSV sink's options
// apply unchanged.
func NewDualSink(csvPath, ndjsonPath string, opts CSVOptions) (*DualSink, error) {
	csvSink, err := NewCSVSink(csvPath, opts)
	if err != nil {
		return nil, fmt.Errorf("create csv sink: %w", err)
	}
	ndjsonSink, err := NewNDJSONSink(ndjsonPath)
	if err != nil {
		csvSink.Close()
		return nil, fmt.Errorf("create ndjson sink: %w", err)
	}
	return &DualSink{csv: csvSink, ndjson: ndjsonSink}, nil
}

// Write writes rows to both outputs.
func (d *DualSink) Write(rows []models.Row) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.csv.Write(rows); err != nil {
		return fmt.Errorf("csv write failed: %w", err)
	}
	if err := d.ndjson.Write(rows); err != nil {
		return fmt.Errorf("ndjson write failed: %w", err)
	}
	return nil
}

// Close closes both sinks, reporting every failure.
func (d *DualSink) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	if err := d.csv.Close(); err != nil {
		errs = append(errs, fmt.Errorf("csv close failed: %w", err))
	}
	if err := d.ndjson.Close(); err != nil {
		errs = append(errs, fmt.Errorf("ndjson close failed: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("multiple errors: %v", errs)
	}
	return nil
}

// Validate validates both output files.
func (d *DualSink) Validate() error {
	var errs []error
	if err := d.csv.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("csv validation failed: %w", err))
	}
	if err := d.ndjson.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("ndjson validation failed: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("validation errors: %v", errs)
	}
	return nil
}
