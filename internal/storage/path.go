package storage

import (
	"fmt"
	"path"
	"regexp"
	"time"

	"github.com/google/uuid"
)

var extensionPattern = regexp.MustCompile(`^[a-z0-9]{1,16}$`)

// BuildUploadPath returns uploads/<yyyy>/<mm>/<dd>/<id>.<ext>, dated in UTC.
func BuildUploadPath(receivedAt time.Time, id uuid.UUID, ext string) (string, error) {
	if id == uuid.Nil {
		return "", fmt.Errorf("upload id is required")
	}
	if !extensionPattern.MatchString(ext) {
		return "", fmt.Errorf("invalid upload extension: %q", ext)
	}
	ts := receivedAt.UTC()
	return path.Join(
		"uploads",
		fmt.Sprintf("%04d", ts.Year()),
		fmt.Sprintf("%02d", ts.Month()),
		fmt.Sprintf("%02d", ts.Day()),
		id.String()+"."+ext,
	), nil
}

var contentTypes = map[string]string{
	"csv":     "text/csv",
	"sql":     "application/sql",
	"xls":     "application/vnd.ms-excel",
	"xlsx":    "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"parquet": "application/vnd.apache.parquet",
}

func ContentType(ext string) string {
	if contentType, ok := contentTypes[ext]; ok {
		return contentType
	}
	return "application/octet-stream"
}
