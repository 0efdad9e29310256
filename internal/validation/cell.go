package validation

// cell.go provides per-cell validation and coercion.
//
// Cells arrive as raw strings from the parser and leave as typed values:
//   - number:  float64 via strconv.ParseFloat
//   - email:   the trimmed string, shape-checked by regex
//   - date:    an RFC 3339 UTC timestamp string, parsed from many layouts
//   - boolean: true/false from the accepted word sets
//   - string:  the trimmed string, length-capped
//
// An empty cell is always invalid ("Missing value") regardless of type,
// and every invalid cell coerces to a typed null.

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxStringLength is the longest accepted string cell, in characters.
const MaxStringLength = 1000

// emailRegex accepts name@host.tld shapes: no whitespace, exactly one "@",
// and at least one dot in the domain part.
var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// TwoDigitYearPivot defines how 2-digit years are interpreted. Years that
// would land more than this many years in the future are assumed to be in
// the previous century.
var TwoDigitYearPivot = 20

// Date layouts split by year format for proper 2-digit year handling.
var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"2006-01-02", "2006/01/02", "2006.01.02",
		"Jan 2, 2006", "2 Jan 2006",
		"20060102",
	}
)

// ValidateCell validates and coerces a single raw value against the
// expected column type. Pure function of its two inputs.
func ValidateCell(raw string, expected ColumnType) CellResult {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return invalidCell(expected, "Missing value")
	}

	switch expected {
	case TypeNumber:
		n, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return invalidCell(expected, "Invalid number format")
		}
		return validCell(NumberValue(n))

	case TypeEmail:
		if !emailRegex.MatchString(trimmed) {
			return invalidCell(expected, "Invalid email format")
		}
		return validCell(TextValue(TypeEmail, trimmed))

	case TypeDate:
		t, ok := parseDate(trimmed)
		if !ok {
			return invalidCell(expected, "Invalid date format")
		}
		return validCell(TextValue(TypeDate, t.UTC().Format(time.RFC3339)))

	case TypeBoolean:
		b, ok := parseBool(trimmed)
		if !ok {
			return invalidCell(expected, "Invalid boolean value")
		}
		return validCell(BoolValue(b))

	default:
		if utf8.RuneCountInString(trimmed) > MaxStringLength {
			return invalidCell(expected, "String too long (max 1000 characters)")
		}
		return validCell(TextValue(TypeString, trimmed))
	}
}

// parseDate tries 4-digit-year layouts first (unambiguous), then 2-digit
// layouts with the pivot adjustment.
func parseDate(s string) (time.Time, bool) {
	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}

	return time.Time{}, false
}

// parseBool maps the accepted case-insensitive word sets to a bool.
func parseBool(s string) (value, ok bool) {
	switch strings.ToLower(s) {
	case "true", "1", "yes", "on":
		return true, true
	case "false", "0", "no", "off":
		return false, true
	default:
		return false, false
	}
}

func validCell(v Value) CellResult {
	return CellResult{Valid: true, Value: v, Type: v.Type}
}

func invalidCell(t ColumnType, msg string) CellResult {
	return CellResult{Errors: []string{msg}, Value: NullValue(t), Type: t}
}
