package validation

// file.go splits raw CSV text into header and data rows and drives
// per-row validation into a single FileResult.
//
// The parser deliberately splits lines on bare commas: a quoted field
// containing a literal comma is split incorrectly. Surrounding quotes are
// stripped per field, but no RFC 4180 escaping is honored. This matches
// the splitting convention the rest of the system documents and relies on.

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrEmptyFile reports input with no content left after blank-line
// filtering. It aborts the run before any row results exist.
var ErrEmptyFile = errors.New("empty file: no rows to validate")

// ValidateFile parses raw CSV text, validates every data row against the
// types inferred from the header, and aggregates the dataset summary.
// Per-cell and per-row problems are recorded in the results, never
// returned as errors; only empty input fails.
func ValidateFile(contents string) (*FileResult, error) {
	lines := splitLines(sanitize(contents))
	if len(lines) == 0 {
		return nil, ErrEmptyFile
	}

	header := parseLine(lines[0])
	validator := NewRowValidator(header)

	results := make([]RowResult, 0, len(lines)-1)
	for i, line := range lines[1:] {
		fields := parseLine(line)

		// Zip fields with header names: short rows leave trailing
		// columns empty, extra values are ignored.
		raw := make(map[string]string, len(header))
		for j, col := range header {
			if j < len(fields) {
				raw[col] = fields[j]
			} else {
				raw[col] = ""
			}
		}

		results = append(results, validator.ValidateRow(raw, i+1))
	}

	return &FileResult{
		Header:  header,
		Results: results,
		Summary: buildSummary(validator, results),
	}, nil
}

// sanitize strips a UTF-8 BOM and replaces invalid UTF-8 sequences so
// downstream string handling never sees broken runes.
func sanitize(s string) string {
	s = strings.TrimPrefix(s, "\uFEFF")
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, string(utf8.RuneError))
	}
	return s
}

// splitLines splits on "\n" and drops lines that are empty after
// trimming. Row numbers index this filtered list, so blank lines never
// consume a row number. The CR of CRLF input falls to the per-field trim.
func splitLines(contents string) []string {
	var lines []string
	for _, line := range strings.Split(contents, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// parseLine splits one line on commas and cleans each field.
func parseLine(line string) []string {
	fields := strings.Split(line, ",")
	for i, f := range fields {
		fields[i] = cleanField(f)
	}
	return fields
}

// cleanField trims whitespace and strips one pair of surrounding double
// quotes.
func cleanField(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return s
}

// buildSummary folds row results into the dataset report. Duplicate takes
// precedence over error in the count partition, so the three buckets
// always sum to TotalRows.
func buildSummary(v *RowValidator, results []RowResult) Summary {
	s := Summary{
		TotalRows:   len(results),
		ColumnTypes: v.ColumnTypes(),
	}

	for _, r := range results {
		switch {
		case r.Valid:
			s.ValidRows++
		case r.Duplicate:
			s.DuplicateRows++
		default:
			s.ErrorRows++
		}

		if len(r.Errors) > 0 {
			s.Errors = append(s.Errors, fmt.Sprintf("Row %d: %s", r.RowNumber, strings.Join(r.Errors, ", ")))
		}
	}

	return s
}
