package core

// source.go reads tabular sources into untyped rows.
//
// Two formats are supported, chosen by file extension:
//
//   - .xlsx / .xlsm: the first worksheet, read with excelize
//   - anything else: comma-separated text decoded as ISO-8859-1
//
// Both readers yield the header first and then one []Cell per data row.
// Empty cells and the usual missing-value markers (N/A, NaN, null, ...)
// become Null. CSV cells are otherwise Text; XLSX cells stored as numbers
// become Number with their unformatted value. Numeric columns are
// normalized by the loader.

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// errEmptySource is returned when a source has no header row.
var errEmptySource = errors.New("empty file: no header row")

// rowSource iterates over the rows of a tabular file.
type rowSource interface {
	// Header returns the column names from the first row.
	Header() []string
	// Next returns the next data row, or io.EOF after the last one.
	Next() ([]Cell, error)
	Close() error
}

// SourceFormat identifies how a file is decoded.
type SourceFormat string

const (
	FormatCSV  SourceFormat = "csv"
	FormatXLSX SourceFormat = "xlsx"
)

// DetectFormat selects the format from the file extension.
func DetectFormat(path string) SourceFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX
	default:
		return FormatCSV
	}
}

// openSource opens path with the reader for its format. limit bounds the
// file size in bytes; 0 disables the check.
func openSource(path string, limit int64) (rowSource, error) {
	switch DetectFormat(path) {
	case FormatXLSX:
		return openXLSX(path, limit)
	default:
		return openCSV(path, limit)
	}
}

// ----------------------------------------------------------------------------
// CSV
// ----------------------------------------------------------------------------

type csvSource struct {
	file   *os.File
	reader *csv.Reader
	header []string
}

func openCSV(path string, limit int64) (*csvSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(WrapForStreaming(f, limit))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		f.Close()
		if errors.Is(err, io.EOF) {
			return nil, errEmptySource
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	return &csvSource{
		file:   f,
		reader: r,
		header: append([]string(nil), header...),
	}, nil
}

func (s *csvSource) Header() []string { return s.header }

func (s *csvSource) Next() ([]Cell, error) {
	record, err := s.reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	return textCells(record), nil
}

func (s *csvSource) Close() error { return s.file.Close() }

// ----------------------------------------------------------------------------
// XLSX
// ----------------------------------------------------------------------------

type xlsxSource struct {
	file   *excelize.File
	sheet  string
	rows   *excelize.Rows
	row    int // 1-based worksheet row of the last Next
	header []string
}

func openXLSX(path string, limit int64) (*xlsxSource, error) {
	if limit > 0 {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if info.Size() > limit {
			return nil, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, info.Size())
		}
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, errEmptySource
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	s := &xlsxSource{file: f, sheet: sheets[0], rows: rows, row: 1}
	if !rows.Next() {
		err := rows.Error()
		s.Close()
		if err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		return nil, errEmptySource
	}

	header, err := rows.Columns()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) == 0 {
		s.Close()
		return nil, errEmptySource
	}
	s.header = header

	return s, nil
}

func (s *xlsxSource) Header() []string { return s.header }

// Next skips blank worksheet rows, as the CSV reader skips blank lines.
func (s *xlsxSource) Next() ([]Cell, error) {
	for {
		if !s.rows.Next() {
			if err := s.rows.Error(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		s.row++

		// Raw values bypass number formats such as 0.00E+00, 0% or #,##0
		cols, err := s.rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, err
		}
		if len(cols) == 0 {
			continue
		}

		cells := make([]Cell, len(cols))
		for i, v := range cols {
			if cells[i], err = s.cell(i, v); err != nil {
				return nil, err
			}
		}
		return cells, nil
	}
}

// cell types the raw value v at column index col of the current row. Cells
// without a type attribute or with t="n" hold numbers.
func (s *xlsxSource) cell(col int, v string) (Cell, error) {
	if v == "" {
		return Null(), nil
	}
	name, err := excelize.CoordinatesToCellName(col+1, s.row)
	if err != nil {
		return Cell{}, err
	}
	typ, err := s.file.GetCellType(s.sheet, name)
	if err != nil {
		return Cell{}, fmt.Errorf("cell %s: %w", name, err)
	}
	if typ == excelize.CellTypeNumber || typ == excelize.CellTypeUnset {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return NumberCell(f), nil
		}
	}
	return textCell(v), nil
}

func (s *xlsxSource) Close() error {
	rerr := s.rows.Close()
	ferr := s.file.Close()
	return errors.Join(rerr, ferr)
}

// missingMarkers are the cell values read as missing rather than as text.
// The set matches what spreadsheet exports and pandas write for empty values.
var missingMarkers = map[string]struct{}{
	"":         {},
	"#N/A":     {},
	"#N/A N/A": {},
	"#NA":      {},
	"-1.#IND":  {},
	"-1.#QNAN": {},
	"-NaN":     {},
	"-nan":     {},
	"1.#IND":   {},
	"1.#QNAN":  {},
	"<NA>":     {},
	"N/A":      {},
	"NA":       {},
	"NULL":     {},
	"NaN":      {},
	"None":     {},
	"n/a":      {},
	"nan":      {},
	"null":     {},
}

// textCell maps missing markers to Null and everything else to Text.
// Markers match exactly; " N/A" is text.
func textCell(v string) Cell {
	if _, ok := missingMarkers[v]; ok {
		return Null()
	}
	return TextCell(v)
}

// textCells converts a CSV record to cells. The record slice may be reused
// by the reader, so the strings are copied into cells.
func textCells(record []string) []Cell {
	cells := make([]Cell, len(record))
	for i, v := range record {
		cells[i] = textCell(v)
	}
	return cells
}
