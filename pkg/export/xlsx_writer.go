package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const xlsxSheet = "Sheet1"

// XLSXWriter renders rows through excelize's stream writer, which spills to
// temporary files instead of building the whole sheet in memory.
type XLSXWriter struct {
	dst     io.Writer
	file    *excelize.File
	stream  *excelize.StreamWriter
	style   int
	nextRow int
}

// NewXLSXWriter prepares a workbook whose single sheet is named after title.
func NewXLSXWriter(w io.Writer, title string) (*XLSXWriter, error) {
	f := excelize.NewFile()
	sheet := xlsxSheet
	if name := sheetName(title); name != "" && name != xlsxSheet {
		if err := f.SetSheetName(xlsxSheet, name); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("rename sheet: %w", err)
		}
		sheet = name
	}
	stream, err := f.NewStreamWriter(sheet)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open xlsx stream: %w", err)
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}
	return &XLSXWriter{dst: w, file: f, stream: stream, style: style, nextRow: 1}, nil
}

// WriteHeader writes a bold header row and sizes the columns.
func (e *XLSXWriter) WriteHeader(headers []string) error {
	if len(headers) == 0 {
		return fmt.Errorf("xlsx requires at least one header")
	}
	if err := e.stream.SetColWidth(1, len(headers), 22); err != nil {
		return fmt.Errorf("set xlsx column width: %w", err)
	}
	return e.writeCells(toCells(headers), excelize.RowOpts{StyleID: e.style})
}

// WriteRow appends a data row. Values are stored as inline strings, so excel
// never evaluates them as formulas.
func (e *XLSXWriter) WriteRow(record []string) error {
	return e.writeCells(toCells(record))
}

func (e *XLSXWriter) writeCells(cells []interface{}, opts ...excelize.RowOpts) error {
	cell, err := excelize.CoordinatesToCellName(1, e.nextRow)
	if err != nil {
		return err
	}
	if err := e.stream.SetRow(cell, cells, opts...); err != nil {
		return fmt.Errorf("write xlsx row %d: %w", e.nextRow, err)
	}
	e.nextRow++
	return nil
}

// Close finalises the workbook and writes it to the destination.
func (e *XLSXWriter) Close() error {
	defer e.file.Close() //nolint:errcheck
	if err := e.stream.Flush(); err != nil {
		return fmt.Errorf("flush xlsx stream: %w", err)
	}
	if err := e.file.Write(e.dst); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

// Abort discards the workbook and removes its temporary stream files.
func (e *XLSXWriter) Abort() error {
	return e.file.Close()
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

// sheetName trims title to excel's 31 character limit and drops forbidden runes.
func sheetName(title string) string {
	out := make([]rune, 0, len(title))
	for _, r := range title {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			continue
		}
		out = append(out, r)
		if len(out) == 31 {
			break
		}
	}
	return string(out)
}
