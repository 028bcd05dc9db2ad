package ingest

import (
	"fmt"
	"io"
	"os"
)

// spool copies an upload into a temp file so parsers that need random
// access can read it. The caller must call cleanup, which removes the file.
func spool(r io.Reader, format Format) (path string, size int64, cleanup func(), err error) {
	file, err := os.CreateTemp("", "askdata-upload-*."+string(format))
	if err != nil {
		return "", 0, nil, fmt.Errorf("create upload spool: %w", err)
	}
	path = file.Name()
	cleanup = func() { _ = os.Remove(path) }

	size, err = io.Copy(file, r)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		cleanup()
		return "", 0, nil, fmt.Errorf("write upload spool: %w", err)
	}
	return path, size, cleanup, nil
}
