// Package ingest turns uploaded files into relations in the store.
//
// Delimited, spreadsheet and parquet uploads become a single relation
// (named "data" by default) that replaces any previous one. SQL scripts are
// executed statement by statement and the resulting tables are discovered
// from the store.
package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

var (
	ErrUnsupportedFormat = errors.New("Unsupported file format. Supported: .csv, .xls, .xlsx, .sql, .parquet")
	ErrEmptyUpload       = errors.New("uploaded file is empty")
	ErrMalformedUpload   = errors.New("malformed upload")
)

// MalformedUploadError is an upload whose content does not parse as its
// declared format. It matches ErrMalformedUpload under errors.Is.
type MalformedUploadError struct {
	Format Format
	Cause  error
}

func (e *MalformedUploadError) Error() string {
	return fmt.Sprintf("Could not parse .%s upload: %v", e.Format, e.Cause)
}

func (e *MalformedUploadError) Unwrap() []error {
	return []error{ErrMalformedUpload, e.Cause}
}

// malformed attributes a parse failure to the uploaded content. Empty and
// unsupported uploads keep their own sentinels, and filesystem errors on the
// spool stay internal.
func malformed(format Format, err error) error {
	var pathErr *fs.PathError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrEmptyUpload), errors.Is(err, ErrUnsupportedFormat), errors.As(err, &pathErr):
		return err
	}
	return &MalformedUploadError{Format: format, Cause: err}
}

type Format string

const (
	FormatCSV     Format = "csv"
	FormatXLS     Format = "xls"
	FormatXLSX    Format = "xlsx"
	FormatSQL     Format = "sql"
	FormatParquet Format = "parquet"
)

// DetectFormat derives the declared format from the file extension,
// case-insensitively.
func DetectFormat(filename string) (Format, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(strings.TrimSpace(filename)), "."))
	switch Format(ext) {
	case FormatCSV, FormatXLS, FormatXLSX, FormatSQL, FormatParquet:
		return Format(ext), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filename)
	}
}

// SingleRelation reports whether the format materializes exactly one table.
func (f Format) SingleRelation() bool {
	return f != FormatSQL
}
