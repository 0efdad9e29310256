package validation

import "strings"

// typeKeywords drives name-based type inference. Groups are evaluated in
// order and the first matching group wins, so a column named "email_date"
// infers as email, not date.
var typeKeywords = []struct {
	colType  ColumnType
	keywords []string
}{
	{TypeEmail, []string{"email"}},
	{TypeDate, []string{"date", "time"}},
	{TypeNumber, []string{"price", "amount", "cost"}},
	{TypeBoolean, []string{"active", "enabled"}},
}

// InferColumnType maps a column name to its semantic type using
// case-insensitive substring matching. Names matching no keyword group
// default to string. Pure and deterministic.
func InferColumnType(name string) ColumnType {
	lower := strings.ToLower(name)
	for _, group := range typeKeywords {
		for _, kw := range group.keywords {
			if strings.Contains(lower, kw) {
				return group.colType
			}
		}
	}
	return TypeString
}

// InferColumnTypes infers a type for every header column. Called once at
// validator construction; the resulting mapping is immutable thereafter.
func InferColumnTypes(header []string) map[string]ColumnType {
	types := make(map[string]ColumnType, len(header))
	for _, col := range header {
		types[col] = InferColumnType(col)
	}
	return types
}
