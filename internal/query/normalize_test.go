package query

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"
)

type decimalLike struct{ v float64 }

func (d decimalLike) Float64() float64 { return d.v }

func TestNormalizeValue(t *testing.T) {
	midnight := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	afternoon := time.Date(2024, 3, 1, 14, 5, 6, 0, time.UTC)
	tests := []struct {
		name  string
		input any
		want  any
	}{
		{name: "nil", input: nil, want: nil},
		{name: "nan", input: math.NaN(), want: nil},
		{name: "inf", input: math.Inf(1), want: nil},
		{name: "neg inf float32", input: float32(math.Inf(-1)), want: nil},
		{name: "int32", input: int32(7), want: int64(7)},
		{name: "uint16", input: uint16(9), want: int64(9)},
		{name: "float32", input: float32(1.5), want: float64(1.5)},
		{name: "bytes", input: []byte("abc"), want: "abc"},
		{name: "bool", input: true, want: true},
		{name: "date", input: Date(midnight), want: "2024-03-01"},
		{name: "date from afternoon", input: AsDate(afternoon), want: "2024-03-01"},
		{name: "midnight timestamp", input: midnight, want: "2024-03-01 00:00:00"},
		{name: "midnight timestamp pointer", input: &midnight, want: "2024-03-01 00:00:00"},
		{name: "timestamp", input: afternoon, want: "2024-03-01 14:05:06"},
		{name: "decimal", input: decimalLike{v: 2.25}, want: 2.25},
		{name: "list", input: []any{int16(1), math.NaN(), "x"}, want: []any{int64(1), nil, "x"}},
		{name: "typed slice", input: []int32{1, 2}, want: []any{int64(1), int64(2)}},
		{name: "nil pointer", input: (*int)(nil), want: nil},
		{name: "struct fallback", input: struct{ A int }{A: 1}, want: "{1}"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizeValue(tc.input)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("NormalizeValue(%#v) = %#v, want %#v", tc.input, got, tc.want)
			}
		})
	}
}

func TestIsReadOnlySQL(t *testing.T) {
	tests := []struct {
		sql  string
		want bool
	}{
		{sql: `SELECT * FROM "data"`, want: true},
		{sql: "select 1;", want: true},
		{sql: "WITH t AS (SELECT 1) SELECT * FROM t", want: true},
		{sql: "-- comment\nSELECT 1", want: true},
		{sql: "/* c */ (SELECT 1)", want: true},
		{sql: `DROP TABLE "data"`, want: false},
		{sql: `DELETE FROM "data"`, want: false},
		{sql: "SELECT 1; DROP TABLE data", want: false},
		{sql: "", want: false},
		{sql: "-- only comment", want: false},
	}
	for _, tc := range tests {
		if got := IsReadOnlySQL(tc.sql); got != tc.want {
			t.Fatalf("IsReadOnlySQL(%q) = %v, want %v", tc.sql, got, tc.want)
		}
	}
}

func TestCollectorCapsRowsAndHidesColumnsWhenEmpty(t *testing.T) {
	empty := NewCollector([]string{"a"}, 0).Result(time.Now())
	if len(empty.Columns) != 0 || empty.Rows == nil || len(empty.Rows) != 0 {
		t.Fatalf("empty result = %#v", empty)
	}

	collector := NewCollector([]string{"a", "b"}, 2)
	for i := 0; i < 3; i++ {
		collector.Add([]any{int32(i), nil})
	}
	result := collector.Result(time.Now())
	if len(result.Rows) != 2 || !result.Truncated {
		t.Fatalf("result = %#v", result)
	}
	if !reflect.DeepEqual(result.Columns, []string{"a", "b"}) {
		t.Fatalf("Columns = %#v", result.Columns)
	}
	if result.Rows[1]["a"] != int64(1) {
		t.Fatalf("row = %#v", result.Rows[1])
	}
}

func TestCollectorKeysDuplicateColumnsOnce(t *testing.T) {
	collector := NewCollector([]string{"id", "name", "id"}, 0)
	collector.Add([]any{int64(1), "alice", int64(2)})
	result := collector.Result(time.Now())

	if !reflect.DeepEqual(result.Columns, []string{"id", "name"}) {
		t.Fatalf("Columns = %#v", result.Columns)
	}
	want := map[string]any{"id": int64(2), "name": "alice"}
	if !reflect.DeepEqual(result.Rows[0], want) {
		t.Fatalf("row = %#v, want %#v", result.Rows[0], want)
	}
	if len(result.Columns) != len(result.Rows[0]) {
		t.Fatalf("columns %v disagree with row keys %v", result.Columns, result.Rows[0])
	}
}

func TestCollectorRendersMarkedDateColumns(t *testing.T) {
	midnight := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	collector := NewCollector([]string{"day", "at"}, 0)
	collector.MarkDateColumns([]bool{true, false})
	collector.Add([]any{midnight, midnight})
	collector.Add([]any{nil, nil})
	result := collector.Result(time.Now())

	if result.Rows[0]["day"] != "2024-01-02" {
		t.Fatalf("day = %#v", result.Rows[0]["day"])
	}
	if result.Rows[0]["at"] != "2024-01-02 00:00:00" {
		t.Fatalf("at = %#v", result.Rows[0]["at"])
	}
	if result.Rows[1]["day"] != nil || result.Rows[1]["at"] != nil {
		t.Fatalf("null row = %#v", result.Rows[1])
	}
}

func TestIsDateType(t *testing.T) {
	for name, want := range map[string]bool{"DATE": true, "date": true, " Date ": true, "TIMESTAMP": false, "TIMESTAMPTZ": false, "": false} {
		if got := IsDateType(name); got != want {
			t.Fatalf("IsDateType(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestExecutionErrorKeepsDriverMessage(t *testing.T) {
	err := Failed(errorString(`relation "nope" does not exist`))
	if err.Error() != `relation "nope" does not exist` {
		t.Fatalf("Error() = %q", err.Error())
	}
	if !errors.Is(err, ErrExecution) {
		t.Fatal("expected ErrExecution")
	}
}

type errorString string

func (e errorString) Error() string { return string(e) }
