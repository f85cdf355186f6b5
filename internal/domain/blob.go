package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver ships old settlement history to blob storage.
type Archiver interface {
	// ArchiveSettlements archives all settlements completed before the
	// cutoff and returns the number of records archived.
	ArchiveSettlements(ctx context.Context, before time.Time) (int, error)
}
