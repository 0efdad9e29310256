package store

import (
	"fmt"
	"strings"
	"time"
)

// WhereBuilder assembles a SQL WHERE clause with positional arguments.
// Conditions for empty values are skipped, so callers can pass optional
// filters straight through without checking each one.
type WhereBuilder struct {
	conditions []string
	args       []interface{}
	argIndex   int
}

// NewWhereBuilder creates an empty builder. Argument numbering starts at $1.
func NewWhereBuilder() *WhereBuilder {
	return &WhereBuilder{argIndex: 1}
}

// Add appends an equality condition. Empty values are skipped.
func (wb *WhereBuilder) Add(column, value string) {
	if value == "" {
		return
	}
	wb.conditions = append(wb.conditions, fmt.Sprintf("%s = $%d", column, wb.argIndex))
	wb.args = append(wb.args, value)
	wb.argIndex++
}

// AddInt appends an equality condition on an integer column. Zero values
// are skipped.
func (wb *WhereBuilder) AddInt(column string, value int) {
	if value == 0 {
		return
	}
	wb.conditions = append(wb.conditions, fmt.Sprintf("%s = $%d", column, wb.argIndex))
	wb.args = append(wb.args, value)
	wb.argIndex++
}

// AddContains appends a case-insensitive substring condition. Empty values
// are skipped.
func (wb *WhereBuilder) AddContains(column, value string) {
	if value == "" {
		return
	}
	wb.conditions = append(wb.conditions, fmt.Sprintf("%s ILIKE $%d", column, wb.argIndex))
	wb.args = append(wb.args, "%"+value+"%")
	wb.argIndex++
}

// AddTimestampRange appends inclusive lower and upper bounds on a
// timestamp column.
func (wb *WhereBuilder) AddTimestampRange(column string, start, end time.Time) {
	wb.conditions = append(wb.conditions, fmt.Sprintf("%s >= $%d", column, wb.argIndex))
	wb.args = append(wb.args, start)
	wb.argIndex++
	wb.conditions = append(wb.conditions, fmt.Sprintf("%s <= $%d", column, wb.argIndex))
	wb.args = append(wb.args, end)
	wb.argIndex++
}

// NextArgIndex returns the positional index the next argument would take.
// Callers use it to append LIMIT/OFFSET placeholders after Build.
func (wb *WhereBuilder) NextArgIndex() int {
	return wb.argIndex
}

// Build returns the assembled clause with a leading " WHERE ", plus its
// arguments, or ("", nil) when no conditions were added.
func (wb *WhereBuilder) Build() (string, []interface{}) {
	if len(wb.conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(wb.conditions, " AND "), wb.args
}
