package ingest

import (
	"fmt"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// parseXLSX reads the first sheet of an Office Open XML workbook. The first
// row is the header.
func parseXLSX(path string) (rawTable, error) {
	book, err := excelize.OpenFile(path)
	if err != nil {
		return rawTable{}, fmt.Errorf("open xlsx: %w", err)
	}
	defer func() { _ = book.Close() }()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return rawTable{}, ErrEmptyUpload
	}
	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return rawTable{}, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return tableFromGrid(rows)
}

// parseXLS reads the first sheet of a legacy BIFF workbook.
func parseXLS(path string) (rawTable, error) {
	book, err := xls.Open(path, "utf-8")
	if err != nil {
		return rawTable{}, fmt.Errorf("open xls: %w", err)
	}
	sheet := book.GetSheet(0)
	if sheet == nil {
		return rawTable{}, ErrEmptyUpload
	}

	grid := make([][]string, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			grid = append(grid, nil)
			continue
		}
		cells := make([]string, 0, row.LastCol())
		for c := 0; c < row.LastCol(); c++ {
			cells = append(cells, row.Col(c))
		}
		grid = append(grid, cells)
	}
	return tableFromGrid(grid)
}

// tableFromGrid treats the first non-blank row as the header. Data rows are
// widened to the header and wider rows widen the header with unnamed
// columns.
func tableFromGrid(grid [][]string) (rawTable, error) {
	start := 0
	for start < len(grid) && blankRow(grid[start]) {
		start++
	}
	if start == len(grid) {
		return rawTable{}, ErrEmptyUpload
	}

	width := 0
	for _, row := range grid[start:] {
		if len(row) > width {
			width = len(row)
		}
	}
	header := make([]string, width)
	copy(header, grid[start])

	table := rawTable{Columns: normalizeHeader(header), Rows: make([][]any, 0, len(grid)-start-1)}
	for _, record := range grid[start+1:] {
		if blankRow(record) {
			continue
		}
		table.Rows = append(table.Rows, cellsFromStrings(record, width))
	}
	return table, nil
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if cell != "" {
			return false
		}
	}
	return true
}
