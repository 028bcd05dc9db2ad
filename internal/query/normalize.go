package query

import (
	"database/sql"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"
)

const (
	timestampLayout = "2006-01-02 15:04:05"
	dateLayout      = "2006-01-02"
)

// Date is a calendar date read from a DATE column. Drivers hand dates back
// as time.Time, so callers wrap them with AsDate to render them without a
// clock part.
type Date time.Time

// AsDate marks a scanned time value as a calendar date. Anything else is
// returned unchanged.
func AsDate(value any) any {
	switch typed := value.(type) {
	case time.Time:
		return Date(typed)
	case *time.Time:
		if typed == nil {
			return nil
		}
		return Date(*typed)
	}
	return value
}

// IsDateType reports whether a driver database type name is a plain DATE.
func IsDateType(databaseTypeName string) bool {
	return strings.EqualFold(strings.TrimSpace(databaseTypeName), "DATE")
}

// DateColumns flags the DATE columns of a database/sql result set.
func DateColumns(types []*sql.ColumnType) []bool {
	dates := make([]bool, len(types))
	for i, columnType := range types {
		dates[i] = IsDateType(columnType.DatabaseTypeName())
	}
	return dates
}

// NormalizeValue converts a driver value into a JSON-safe scalar or list.
// Missing and non-finite values become nil, temporal values become strings,
// integers become int64 and floats become float64.
func NormalizeValue(value any) any {
	switch typed := value.(type) {
	case nil:
		return nil
	case string:
		return typed
	case bool:
		return typed
	case []byte:
		return string(typed)
	case int:
		return int64(typed)
	case int8:
		return int64(typed)
	case int16:
		return int64(typed)
	case int32:
		return int64(typed)
	case int64:
		return typed
	case uint:
		return normalizeUnsigned(uint64(typed))
	case uint8:
		return int64(typed)
	case uint16:
		return int64(typed)
	case uint32:
		return int64(typed)
	case uint64:
		return normalizeUnsigned(typed)
	case float32:
		return normalizeFloat(float64(typed))
	case float64:
		return normalizeFloat(typed)
	case Date:
		return time.Time(typed).Format(dateLayout)
	case time.Time:
		return FormatTime(typed)
	case *time.Time:
		if typed == nil {
			return nil
		}
		return FormatTime(*typed)
	case time.Duration:
		return typed.String()
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = NormalizeValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[key] = NormalizeValue(item)
		}
		return out
	case interface{ Float64() float64 }:
		return normalizeFloat(typed.Float64())
	case fmt.Stringer:
		return typed.String()
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return NormalizeValue(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = NormalizeValue(rv.Index(i).Interface())
		}
		return out
	}
	return fmt.Sprint(value)
}

// FormatTime renders a timestamp. The clock part is kept even at midnight;
// date-only output is reserved for Date.
func FormatTime(value time.Time) string {
	return value.Format(timestampLayout)
}

func normalizeFloat(value float64) any {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil
	}
	return value
}

func normalizeUnsigned(value uint64) any {
	if value > math.MaxInt64 {
		return float64(value)
	}
	return int64(value)
}
