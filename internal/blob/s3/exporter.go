package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/troveledger/internal/domain"
)

var _ domain.TimelineArchive = (*Exporter)(nil)

// Exporter copies reconstructed timelines to object storage as one JSON
// document per position per day:
//
//	timelines/2025-01-31/<position>.json
//	timelines/2025-01-31/manifest-<run>.jsonl
//
// Objects are never overwritten; a position rebuilt twice in one day keeps
// its first export.
type Exporter struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	audit  domain.AuditStore
}

// NewExporter creates an Exporter. audit may be nil.
func NewExporter(writer domain.BlobWriter, reader domain.BlobReader, audit domain.AuditStore) *Exporter {
	return &Exporter{writer: writer, reader: reader, audit: audit}
}

// Export uploads tl unless an export for its day already exists, and
// returns the object path either way.
func (e *Exporter) Export(ctx context.Context, tl domain.Timeline) (string, error) {
	path, _, err := e.export(ctx, tl)
	return path, err
}

// ManifestEntry is one line of a run manifest.
type ManifestEntry struct {
	RunID      string    `json:"run_id"`
	PositionID string    `json:"position_id"`
	Path       string    `json:"path"`
	Events     int       `json:"events"`
	Skipped    bool      `json:"skipped"`
	BuiltAt    time.Time `json:"built_at"`
}

// ExportAll exports each timeline and writes a JSONL manifest of the run
// under the day of asOf. It returns the manifest entries. A failure stops
// the run; entries already uploaded stay in place.
func (e *Exporter) ExportAll(ctx context.Context, timelines []domain.Timeline, asOf time.Time) ([]ManifestEntry, error) {
	if len(timelines) == 0 {
		return nil, nil
	}

	runID := uuid.NewString()
	entries := make([]ManifestEntry, 0, len(timelines))
	for _, tl := range timelines {
		path, skipped, err := e.export(ctx, tl)
		if err != nil {
			return entries, err
		}
		entries = append(entries, ManifestEntry{
			RunID:      runID,
			PositionID: tl.PositionID,
			Path:       path,
			Events:     len(tl.Events),
			Skipped:    skipped,
			BuiltAt:    tl.BuiltAt,
		})
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return entries, fmt.Errorf("s3blob: marshal manifest: %w", err)
	}
	manifest := fmt.Sprintf("timelines/%s/manifest-%s.jsonl", asOf.UTC().Format(time.DateOnly), runID)
	if err := e.writer.Put(ctx, manifest, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return entries, fmt.Errorf("s3blob: upload manifest: %w", err)
	}

	if e.audit != nil {
		if err := e.audit.Log(ctx, "export.timelines", map[string]any{
			"run_id":   runID,
			"manifest": manifest,
			"count":    len(entries),
		}); err != nil {
			return entries, fmt.Errorf("s3blob: export audit log: %w", err)
		}
	}
	return entries, nil
}

func (e *Exporter) export(ctx context.Context, tl domain.Timeline) (string, bool, error) {
	path := timelinePath(tl)

	exists, err := e.reader.Exists(ctx, path)
	if err != nil {
		return "", false, fmt.Errorf("s3blob: export %s: %w", tl.PositionID, err)
	}
	if exists {
		return path, true, nil
	}

	data, err := json.Marshal(tl)
	if err != nil {
		return "", false, fmt.Errorf("s3blob: marshal timeline %s: %w", tl.PositionID, err)
	}
	if err := e.writer.Put(ctx, path, bytes.NewReader(data), "application/json"); err != nil {
		return "", false, fmt.Errorf("s3blob: export %s: %w", tl.PositionID, err)
	}
	return path, false, nil
}

func timelinePath(tl domain.Timeline) string {
	return fmt.Sprintf("timelines/%s/%s.json", tl.BuiltAt.UTC().Format(time.DateOnly), tl.PositionID)
}

// marshalJSONL encodes records as newline-delimited JSON.
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
