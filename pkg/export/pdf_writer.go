package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfPageWidth = 277.0 // A4 landscape minus margins
	pdfRowHeight = 6.0
)

// PDFWriter renders rows into a landscape table. gofpdf assembles the
// document in memory, so it is meant for moderately sized exports.
type PDFWriter struct {
	dst       io.Writer
	pdf       *gofpdf.Fpdf
	translate func(string) string
	title     string
	widths    []float64
	headers   []string
}

// NewPDFWriter constructs a PDF writer with an optional title.
func NewPDFWriter(w io.Writer, title string) *PDFWriter {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(true, 12)
	return &PDFWriter{
		dst:       w,
		pdf:       pdf,
		translate: pdf.UnicodeTranslatorFromDescriptor(""),
		title:     title,
	}
}

// WriteHeader starts the first page and draws the header row.
func (e *PDFWriter) WriteHeader(headers []string) error {
	if len(headers) == 0 {
		return fmt.Errorf("pdf requires at least one header")
	}
	e.headers = headers
	e.widths = make([]float64, len(headers))
	for i := range headers {
		e.widths[i] = pdfPageWidth / float64(len(headers))
	}
	e.pdf.SetHeaderFunc(e.drawHeader)
	e.pdf.AddPage()
	return e.pdf.Error()
}

func (e *PDFWriter) drawHeader() {
	if e.title != "" && e.pdf.PageNo() == 1 {
		e.pdf.SetFont("Arial", "B", 13)
		e.pdf.CellFormat(0, 9, e.translate(strings.ToUpper(e.title)), "", 1, "C", false, 0, "")
		e.pdf.Ln(2)
	}
	e.pdf.SetFont("Arial", "B", 8)
	for i, header := range e.headers {
		e.pdf.CellFormat(e.widths[i], 7, e.fit(header, e.widths[i]), "1", 0, "C", false, 0, "")
	}
	e.pdf.Ln(-1)
	e.pdf.SetFont("Arial", "", 7)
}

// WriteRow draws one table row, truncating cells that overflow their column.
func (e *PDFWriter) WriteRow(record []string) error {
	if len(e.headers) == 0 {
		return fmt.Errorf("pdf header not written")
	}
	for i := range e.headers {
		value := ""
		if i < len(record) {
			value = record[i]
		}
		e.pdf.CellFormat(e.widths[i], pdfRowHeight, e.fit(value, e.widths[i]), "1", 0, "", false, 0, "")
	}
	e.pdf.Ln(-1)
	return e.pdf.Error()
}

// Close renders the document into the destination.
func (e *PDFWriter) Close() error {
	if e.pdf.PageNo() == 0 {
		e.pdf.AddPage()
	}
	if err := e.pdf.Output(e.dst); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return nil
}

// Abort drops the in-memory document.
func (e *PDFWriter) Abort() error {
	e.pdf = nil
	return nil
}

func (e *PDFWriter) fit(value string, width float64) string {
	value = strings.Join(strings.Fields(value), " ")
	limit := width - 2
	if e.pdf.GetStringWidth(e.translate(value)) <= limit {
		return e.translate(value)
	}
	runes := []rune(value)
	for len(runes) > 0 && e.pdf.GetStringWidth(e.translate(string(runes)+"...")) > limit {
		runes = runes[:len(runes)-1]
	}
	return e.translate(string(runes) + "...")
}
