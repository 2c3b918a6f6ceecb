package export

import (
	"encoding/csv"
	"fmt"
	"io"
)

const csvFlushEvery = 200

// CSVWriter streams records as CSV, flushing periodically so large exports
// reach the client without being held in memory.
type CSVWriter struct {
	writer  *csv.Writer
	headers int
	pending int
}

// NewCSVWriter builds a CSV writer over w.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{writer: csv.NewWriter(w)}
}

// WriteHeader writes the header record.
func (e *CSVWriter) WriteHeader(headers []string) error {
	if len(headers) == 0 {
		return fmt.Errorf("csv requires at least one header")
	}
	e.headers = len(headers)
	if err := e.writer.Write(headers); err != nil {
		return fmt.Errorf("write csv headers: %w", err)
	}
	return nil
}

// WriteRow writes a single record. Cells that would be read as formulas are
// prefixed with a quote.
func (e *CSVWriter) WriteRow(record []string) error {
	if e.headers == 0 {
		return fmt.Errorf("csv header not written")
	}
	safe := make([]string, len(record))
	for i, value := range record {
		safe[i] = neutralizeFormula(value)
	}
	if err := e.writer.Write(safe); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	e.pending++
	if e.pending >= csvFlushEvery {
		e.pending = 0
		e.writer.Flush()
		return e.writer.Error()
	}
	return nil
}

// Close flushes remaining records.
func (e *CSVWriter) Close() error {
	e.writer.Flush()
	if err := e.writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// Abort stops the export. Rows already flushed stay with the destination.
func (e *CSVWriter) Abort() error {
	return nil
}
