package ingest

import (
	"strconv"
	"strings"

	"github.com/askdata/askdata/internal/store"
)

// inferRelation picks a column type from the non-missing cells of each
// column and converts every cell to it. Integer wins over float, float over
// boolean; anything else, and any all-missing column, is text.
func inferRelation(name string, raw rawTable) store.Relation {
	relation := store.Relation{
		Name:    name,
		Columns: make([]store.Column, len(raw.Columns)),
		Rows:    make([][]any, len(raw.Rows)),
	}
	for i := range raw.Rows {
		relation.Rows[i] = make([]any, len(raw.Columns))
	}

	for col, columnName := range raw.Columns {
		columnType := inferColumnType(raw.Rows, col)
		relation.Columns[col] = store.Column{Name: columnName, Type: columnType}
		for r, row := range raw.Rows {
			relation.Rows[r][col] = convertCell(cellAt(row, col), columnType)
		}
	}
	return relation
}

func inferColumnType(rows [][]any, col int) string {
	seen := false
	allInt, allFloat, allBool := true, true, true
	for _, row := range rows {
		value, ok := cellAt(row, col).(string)
		if !ok {
			continue
		}
		seen = true
		trimmed := strings.TrimSpace(value)
		if allInt {
			if _, err := strconv.ParseInt(trimmed, 10, 64); err != nil {
				allInt = false
			}
		}
		if allFloat {
			if _, err := strconv.ParseFloat(trimmed, 64); err != nil {
				allFloat = false
			}
		}
		if allBool {
			if _, ok := parseBool(trimmed); !ok {
				allBool = false
			}
		}
		if !allInt && !allFloat && !allBool {
			break
		}
	}

	switch {
	case !seen:
		return store.TypeText
	case allInt:
		return store.TypeBigInt
	case allFloat:
		return store.TypeDouble
	case allBool:
		return store.TypeBoolean
	default:
		return store.TypeText
	}
}

func convertCell(value any, columnType string) any {
	text, ok := value.(string)
	if !ok {
		return value
	}
	trimmed := strings.TrimSpace(text)
	switch columnType {
	case store.TypeBigInt:
		v, _ := strconv.ParseInt(trimmed, 10, 64)
		return v
	case store.TypeDouble:
		v, _ := strconv.ParseFloat(trimmed, 64)
		return v
	case store.TypeBoolean:
		v, _ := parseBool(trimmed)
		return v
	default:
		return text
	}
}

func parseBool(value string) (bool, bool) {
	switch strings.ToLower(value) {
	case "true":
		return true, true
	case "false":
		return false, true
	default:
		return false, false
	}
}

func cellAt(row []any, col int) any {
	if col >= len(row) {
		return nil
	}
	return row[col]
}
