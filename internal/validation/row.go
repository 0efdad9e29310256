package validation

// row.go provides row-level validation and in-file duplicate detection.
//
// A RowValidator is constructed once per file from the header row. It owns
// the inferred column-type mapping (fixed after construction) and the
// seen-row set used for duplicate detection. Duplicates are matched on
// coerced data, not raw text: " 1 " and "1" in a number column fingerprint
// identically.

import (
	"sort"
	"strings"
)

// RowValidator validates data rows against the column types inferred from
// one file's header. Not safe for concurrent use; one instance serves
// exactly one file's run and is discarded afterwards.
type RowValidator struct {
	columns []string
	types   map[string]ColumnType
	seen    map[string]struct{}
}

// NewRowValidator infers a type for every header column and starts an
// empty seen-row set.
func NewRowValidator(header []string) *RowValidator {
	return &RowValidator{
		columns: header,
		types:   InferColumnTypes(header),
		seen:    make(map[string]struct{}),
	}
}

// Columns returns the column list in header order.
func (v *RowValidator) Columns() []string {
	return v.columns
}

// ColumnTypes returns the inferred column-type mapping.
func (v *RowValidator) ColumnTypes() map[string]ColumnType {
	return v.types
}

// ValidateRow validates one raw row. Every column in the header is
// processed in order; a missing key reads as the empty string. Cell
// errors collect as "<column>: <comma-joined messages>". The coerced data
// (nulls included) is fingerprinted against rows seen earlier in this run;
// a repeat is flagged Duplicate and NOT re-added to the seen set.
func (v *RowValidator) ValidateRow(raw map[string]string, rowNumber int) RowResult {
	result := RowResult{
		RowNumber: rowNumber,
		Data:      make(map[string]Value, len(v.columns)),
	}

	for _, col := range v.columns {
		cell := ValidateCell(raw[col], v.types[col])
		result.Data[col] = cell.Value
		if !cell.Valid {
			result.Errors = append(result.Errors, col+": "+strings.Join(cell.Errors, ", "))
		}
	}

	fp := fingerprint(result.Data)
	if _, dup := v.seen[fp]; dup {
		result.Duplicate = true
	} else {
		v.seen[fp] = struct{}{}
	}

	result.Valid = len(result.Errors) == 0 && !result.Duplicate
	return result
}

// fingerprint builds the canonical serialization of a coerced row:
// column names sorted, each value in its canonical scalar encoding.
func fingerprint(data map[string]Value) string {
	cols := make([]string, 0, len(data))
	for col := range data {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	var b strings.Builder
	for i, col := range cols {
		if i > 0 {
			b.WriteByte(0x1f)
		}
		b.WriteString(col)
		b.WriteByte('=')
		b.WriteString(data[col].canonical())
	}
	return b.String()
}
