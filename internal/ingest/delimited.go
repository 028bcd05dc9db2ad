package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// rawTable is a parsed upload before type inference. Cells are either a
// string or nil for a missing value.
type rawTable struct {
	Columns []string
	Rows    [][]any
}

// parseDelimited reads comma-separated text. Payloads that are not valid
// UTF-8 are decoded as Windows-1252.
func parseDelimited(r io.Reader) (rawTable, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return rawTable{}, fmt.Errorf("read delimited upload: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return rawTable{}, fmt.Errorf("decode windows-1252 upload: %w", err)
		}
		data = decoded
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return rawTable{}, ErrEmptyUpload
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return rawTable{}, fmt.Errorf("read header: %w", err)
	}
	table := rawTable{Columns: normalizeHeader(header), Rows: make([][]any, 0)}

	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rawTable{}, fmt.Errorf("read line %d: %w", line, err)
		}
		if len(record) > len(table.Columns) {
			return rawTable{}, fmt.Errorf("line %d has %d fields, header has %d", line, len(record), len(table.Columns))
		}
		table.Rows = append(table.Rows, cellsFromStrings(record, len(table.Columns)))
	}
	return table, nil
}

// cellsFromStrings widens a record to width and maps missing-value markers
// to nil.
func cellsFromStrings(record []string, width int) []any {
	row := make([]any, width)
	for i := 0; i < width; i++ {
		if i >= len(record) || isMissing(record[i]) {
			row[i] = nil
			continue
		}
		row[i] = record[i]
	}
	return row
}

var missingMarkers = map[string]struct{}{
	"": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {},
	"-NaN": {}, "-nan": {}, "1.#IND": {}, "1.#QNAN": {}, "<NA>": {}, "N/A": {},
	"NA": {}, "NULL": {}, "NaN": {}, "None": {}, "n/a": {}, "nan": {}, "null": {},
}

func isMissing(value string) bool {
	_, ok := missingMarkers[value]
	return ok
}

// normalizeHeader names blank columns "Unnamed: <i>" and suffixes repeated
// names with ".<n>".
func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	used := make(map[string]struct{}, len(header))
	counts := make(map[string]int, len(header))
	for i, name := range header {
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		candidate := name
		for {
			if _, taken := used[candidate]; !taken {
				break
			}
			counts[name]++
			candidate = fmt.Sprintf("%s.%d", name, counts[name])
		}
		used[candidate] = struct{}{}
		out[i] = candidate
	}
	return out
}
