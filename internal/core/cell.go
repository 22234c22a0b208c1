package core

// cell.go defines the untyped value read from a tabular source.
//
// Sources mix text, numbers and missing cells. A Cell keeps that distinction
// so the validator only inspects text and the normalizer can treat a missing
// value differently from an unparseable one.

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// CellKind is the kind of value held by a Cell.
type CellKind uint8

const (
	CellNull CellKind = iota
	CellText
	CellNumber
)

// Cell is one raw table value.
type Cell struct {
	kind CellKind
	text string
	num  float64
}

// Null returns the missing-value cell.
func Null() Cell { return Cell{} }

// TextCell returns a text cell.
func TextCell(s string) Cell { return Cell{kind: CellText, text: s} }

// NumberCell returns a numeric cell.
func NumberCell(f float64) Cell { return Cell{kind: CellNumber, num: f} }

// Kind returns the cell's kind.
func (c Cell) Kind() CellKind { return c.kind }

// IsNull reports whether the cell is missing.
func (c Cell) IsNull() bool { return c.kind == CellNull }

// AsText returns the text and true for text cells.
func (c Cell) AsText() (string, bool) {
	if c.kind != CellText {
		return "", false
	}
	return c.text, true
}

// AsNumber returns the number and true for numeric cells.
func (c Cell) AsNumber() (float64, bool) {
	if c.kind != CellNumber {
		return 0, false
	}
	return c.num, true
}

// String renders the cell for display. Null renders as "".
func (c Cell) String() string {
	switch c.kind {
	case CellText:
		return c.text
	case CellNumber:
		return strconv.FormatFloat(c.num, 'f', -1, 64)
	default:
		return ""
	}
}

// MarshalJSON encodes Null as null, text as a string and numbers as numbers.
func (c Cell) MarshalJSON() ([]byte, error) {
	switch c.kind {
	case CellText:
		return json.Marshal(c.text)
	case CellNumber:
		return json.Marshal(finite(c.num))
	default:
		return []byte("null"), nil
	}
}

// RecordField is one named value of a full record.
type RecordField struct {
	Name  string
	Value Cell
}

// Record is a full dataset row with every source column in source order.
type Record struct {
	Fields []RecordField
}

// Get returns the value of a column, or Null when absent.
func (r Record) Get(name string) Cell {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value
		}
	}
	return Null()
}

// MarshalJSON encodes the record as an object whose keys follow column order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.Fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := f.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
