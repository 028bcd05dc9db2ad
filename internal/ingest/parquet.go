package ingest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/askdata/askdata/internal/store"
)

const parquetReadBatch = 256

// parseParquet reads a flat parquet file into a typed relation. Leaf column
// paths are joined with "." to form column names.
func parseParquet(path, name string) (store.Relation, error) {
	file, err := os.Open(path)
	if err != nil {
		return store.Relation{}, fmt.Errorf("open parquet: %w", err)
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return store.Relation{}, fmt.Errorf("stat parquet: %w", err)
	}
	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return store.Relation{}, fmt.Errorf("read parquet footer: %w", err)
	}

	schema := pf.Schema()
	paths := schema.Columns()
	if len(paths) == 0 {
		return store.Relation{}, ErrEmptyUpload
	}
	relation := store.Relation{
		Name:    name,
		Columns: make([]store.Column, len(paths)),
		Rows:    make([][]any, 0, pf.NumRows()),
	}
	kinds := make([]parquet.Kind, len(paths))
	for i, columnPath := range paths {
		leaf, ok := schema.Lookup(columnPath...)
		if !ok {
			return store.Relation{}, fmt.Errorf("parquet column %q not found", strings.Join(columnPath, "."))
		}
		if leaf.MaxRepetitionLevel > 0 {
			return store.Relation{}, fmt.Errorf("parquet column %q is repeated; only flat schemas are supported", strings.Join(columnPath, "."))
		}
		kinds[i] = leaf.Node.Type().Kind()
		relation.Columns[i] = store.Column{Name: strings.Join(columnPath, "."), Type: parquetColumnType(kinds[i])}
	}

	buffer := make([]parquet.Row, parquetReadBatch)
	for _, group := range pf.RowGroups() {
		rows := group.Rows()
		for {
			n, err := rows.ReadRows(buffer)
			for _, row := range buffer[:n] {
				relation.Rows = append(relation.Rows, parquetRowValues(row, kinds))
			}
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				_ = rows.Close()
				return store.Relation{}, fmt.Errorf("read parquet rows: %w", err)
			}
			if n == 0 {
				break
			}
		}
		if err := rows.Close(); err != nil {
			return store.Relation{}, fmt.Errorf("close parquet rows: %w", err)
		}
	}
	return relation, nil
}

func parquetColumnType(kind parquet.Kind) string {
	switch kind {
	case parquet.Boolean:
		return store.TypeBoolean
	case parquet.Int32, parquet.Int64:
		return store.TypeBigInt
	case parquet.Float, parquet.Double:
		return store.TypeDouble
	default:
		return store.TypeText
	}
}

func parquetRowValues(row parquet.Row, kinds []parquet.Kind) []any {
	out := make([]any, len(kinds))
	for _, value := range row {
		col := value.Column()
		if col < 0 || col >= len(kinds) || value.IsNull() {
			continue
		}
		switch kinds[col] {
		case parquet.Boolean:
			out[col] = value.Boolean()
		case parquet.Int32:
			out[col] = int64(value.Int32())
		case parquet.Int64:
			out[col] = value.Int64()
		case parquet.Float:
			out[col] = float64(value.Float())
		case parquet.Double:
			out[col] = value.Double()
		case parquet.ByteArray, parquet.FixedLenByteArray:
			out[col] = string(value.ByteArray())
		default:
			out[col] = value.String()
		}
	}
	return out
}
