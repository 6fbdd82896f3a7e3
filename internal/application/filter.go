package application

import (
	"strconv"
	"strings"

	"github.com/uk030621/MultiAdaptDB/internal/domain"
)

// FilterRecords is the schema-driven free-text filter: a record matches when
// any of its attributes named by a currently defined field, coerced to
// string and case-folded, contains the case-folded term as a substring.
// An empty term matches every record. Pure function over loaded data.
func FilterRecords(fields []domain.FieldDefinition, records []domain.Record, term string) []domain.Record {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return records
	}
	out := make([]domain.Record, 0, len(records))
	for _, rec := range records {
		if recordMatches(fields, rec, term) {
			out = append(out, rec)
		}
	}
	return out
}

func recordMatches(fields []domain.FieldDefinition, rec domain.Record, term string) bool {
	for _, field := range fields {
		value, ok := rec.Attrs[field.Name]
		if !ok || value == nil {
			continue
		}
		if strings.Contains(strings.ToLower(stringify(value)), term) {
			return true
		}
	}
	return false
}

// stringify mirrors how loosely-typed attribute values read on screen.
func stringify(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case int:
		return strconv.Itoa(value)
	case int64:
		return strconv.FormatInt(value, 10)
	case bool:
		return strconv.FormatBool(value)
	case []any:
		parts := make([]string, 0, len(value))
		for _, item := range value {
			parts = append(parts, stringify(item))
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(value, ",")
	default:
		return ""
	}
}
