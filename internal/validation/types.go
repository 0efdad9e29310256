package validation

import (
	"encoding/json"
	"strconv"
)

// ColumnType is the inferred semantic category for a column. It drives
// which validation and coercion rule applies to every cell in that column.
type ColumnType string

const (
	TypeString  ColumnType = "string"
	TypeNumber  ColumnType = "number"
	TypeDate    ColumnType = "date"
	TypeBoolean ColumnType = "boolean"
	TypeEmail   ColumnType = "email"
)

// Value is a coerced cell value tagged with its column type. Exactly one
// representation applies: Text (string, email, and ISO date columns),
// Number, Bool, or null. Invalid cells always coerce to a typed null.
type Value struct {
	Type   ColumnType
	Null   bool
	Text   string
	Number float64
	Bool   bool
}

// NullValue returns the typed null for t.
func NullValue(t ColumnType) Value {
	return Value{Type: t, Null: true}
}

// TextValue returns a text-backed value. Used for string, email, and
// date (ISO timestamp string) columns.
func TextValue(t ColumnType, s string) Value {
	return Value{Type: t, Text: s}
}

// NumberValue returns a numeric value.
func NumberValue(f float64) Value {
	return Value{Type: TypeNumber, Number: f}
}

// BoolValue returns a boolean value.
func BoolValue(b bool) Value {
	return Value{Type: TypeBoolean, Bool: b}
}

// MarshalJSON emits the plain scalar (string, number, bool, or null);
// consumers see coerced values, not the tagged representation.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Null {
		return []byte("null"), nil
	}
	switch v.Type {
	case TypeNumber:
		return json.Marshal(v.Number)
	case TypeBoolean:
		return json.Marshal(v.Bool)
	default:
		return json.Marshal(v.Text)
	}
}

// canonical returns a deterministic scalar encoding used when
// fingerprinting coerced rows for duplicate detection.
func (v Value) canonical() string {
	if v.Null {
		return "null"
	}
	switch v.Type {
	case TypeNumber:
		return strconv.FormatFloat(v.Number, 'g', -1, 64)
	case TypeBoolean:
		return strconv.FormatBool(v.Bool)
	default:
		return strconv.Quote(v.Text)
	}
}

// CellResult is the outcome of validating a single cell. Produced fresh
// for every cell; no shared state.
type CellResult struct {
	Valid  bool
	Errors []string
	Value  Value
	Type   ColumnType
}

// RowResult is the outcome of validating one data row. RowNumber is
// 1-based over the blank-line-filtered file (the header is row 0).
// Valid is true only when every cell validated AND the row is not a
// duplicate; a duplicate row keeps its cell errors either way.
type RowResult struct {
	RowNumber int              `json:"row_number"`
	Data      map[string]Value `json:"data"`
	Errors    []string         `json:"errors,omitempty"`
	Duplicate bool             `json:"is_duplicate"`
	Valid     bool             `json:"is_valid"`
}

// Summary is the dataset-level report consumed by persistence, UI, and
// assistant collaborators. ValidRows + DuplicateRows + ErrorRows always
// equals TotalRows: a duplicate row is never also counted as an error
// row, even when its cells failed validation.
type Summary struct {
	TotalRows     int                   `json:"total_rows"`
	ValidRows     int                   `json:"valid_rows"`
	DuplicateRows int                   `json:"duplicate_rows"`
	ErrorRows     int                   `json:"error_rows"`
	ColumnTypes   map[string]ColumnType `json:"column_types"`
	Errors        []string              `json:"validation_errors,omitempty"`
}

// FileResult bundles everything one file's validation run produced.
type FileResult struct {
	Header  []string    `json:"header"`
	Results []RowResult `json:"results"`
	Summary Summary     `json:"summary"`
}
