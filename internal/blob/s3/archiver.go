package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

// SettlementArchiveStore provides read access to settlement history for
// archival purposes. The Postgres settlement store satisfies this through
// its time-ranged ListBefore query.
type SettlementArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.SettlementRecord, error)
}

// ArchiveImpl implements domain.Archiver by querying the settlement store
// for old records, serializing them to JSONL, and uploading the result to S3.
//
// Deletion of the archived records from the primary store is intentionally
// NOT performed here; that is a separate, explicit step to be executed after
// the archive has been verified.
type ArchiveImpl struct {
	writer      domain.BlobWriter
	settlements SettlementArchiveStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, settlements SettlementArchiveStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer:      writer,
		settlements: settlements,
	}
}

// ArchiveSettlements queries all settlements completed before the cutoff,
// serializes them to JSONL, and uploads one file per settlement month at
// archive/settlements/YYYY-MM.jsonl. The count of archived records is
// returned.
//
// Records are partitioned by the month they settled in, not the month of the
// cutoff, so each record lands in the same object on every run: re-running
// the archive overwrites the monthly objects in place instead of copying the
// full history into the current month's file.
func (a *ArchiveImpl) ArchiveSettlements(ctx context.Context, before time.Time) (int, error) {
	records, err := a.settlements.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settlements query: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	byMonth := make(map[string][]domain.SettlementRecord)
	for _, rec := range records {
		month := rec.SettledAt.UTC().Format("2006-01")
		byMonth[month] = append(byMonth[month], rec)
	}
	months := make([]string, 0, len(byMonth))
	for month := range byMonth {
		months = append(months, month)
	}
	sort.Strings(months)

	for _, month := range months {
		buf, err := marshalJSONL(byMonth[month])
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive settlements marshal %s: %w", month, err)
		}
		path := archivePath("settlements", month)
		if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
			return 0, fmt.Errorf("s3blob: archive settlements upload %s: %w", month, err)
		}
	}

	return len(records), nil
}

// archivePath builds the S3 key for an archive file, partitioned by
// year-month.
//
//	archive/settlements/2025-01.jsonl
func archivePath(kind, month string) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, month)
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
