package export

import (
	"fmt"
	"io"
	"strings"
)

// Format identifies an export encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// ParseFormat maps user input onto a supported format. Empty input means CSV.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX, "excel":
		return FormatXLSX, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", raw)
	}
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/csv; charset=utf-8"
	}
}

// Extension returns the file extension without the dot.
func (f Format) Extension() string {
	if f == "" {
		return string(FormatCSV)
	}
	return string(f)
}

// RowWriter receives a header followed by any number of rows. Close must be
// called to flush buffered output to the destination; Abort releases resources
// without emitting anything further when an export fails part way.
type RowWriter interface {
	WriteHeader(headers []string) error
	WriteRow(record []string) error
	Close() error
	Abort() error
}

// NewRowWriter returns a writer for format that emits into w.
func NewRowWriter(format Format, w io.Writer, title string) (RowWriter, error) {
	switch format {
	case FormatCSV, "":
		return NewCSVWriter(w), nil
	case FormatXLSX:
		return NewXLSXWriter(w, title)
	case FormatPDF:
		return NewPDFWriter(w, title), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// neutralizeFormula prefixes cells that spreadsheet applications would
// evaluate as formulas so they open as plain text.
func neutralizeFormula(value string) string {
	if value == "" {
		return value
	}
	switch value[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + value
	}
	return value
}
