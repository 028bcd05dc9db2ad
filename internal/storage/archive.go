package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// Archiver writes each upload under a fresh dated key.
type Archiver struct {
	store ObjectStore
	now   func() time.Time
	newID func() uuid.UUID
}

func NewArchiver(store ObjectStore) *Archiver {
	return &Archiver{store: store, now: time.Now, newID: uuid.New}
}

func (a *Archiver) Archive(ctx context.Context, format string, body io.Reader, size int64) (string, error) {
	key, err := BuildUploadPath(a.now(), a.newID(), format)
	if err != nil {
		return "", err
	}
	info, err := a.store.Put(ctx, key, body, size, PutOptions{ContentType: ContentType(format)})
	if err != nil {
		return "", fmt.Errorf("archive upload: %w", err)
	}
	if info.Key != "" {
		return info.Key, nil
	}
	return key, nil
}
