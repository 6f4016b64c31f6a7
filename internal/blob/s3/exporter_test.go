package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/troveledger/internal/domain"
)

// memBlob is an in-memory bucket.
type memBlob struct {
	objects map[string][]byte
	putErr  error
}

func newMemBlob() *memBlob { return &memBlob{objects: map[string][]byte{}} }

func (m *memBlob) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if m.putErr != nil {
		return m.putErr
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = b
	return nil
}

func (m *memBlob) Get(_ context.Context, path string) (io.ReadCloser, error) {
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlob) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for p, b := range m.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, domain.BlobInfo{Path: p, Size: int64(len(b))})
		}
	}
	return out, nil
}

func (m *memBlob) Exists(_ context.Context, path string) (bool, error) {
	_, ok := m.objects[path]
	return ok, nil
}

type memAudit struct{ events []string }

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(context.Context, string, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

var builtAt = time.Date(2025, 1, 31, 15, 4, 5, 0, time.UTC)

func timeline(id string, n int) domain.Timeline {
	return domain.Timeline{PositionID: id, Events: make([]domain.EnrichedEvent, n), BuiltAt: builtAt}
}

func TestExportWritesDailyObject(t *testing.T) {
	require := require.New(t)

	blob := newMemBlob()
	exp := NewExporter(blob, blob, nil)

	path, err := exp.Export(context.Background(), timeline("trove-1", 2))
	require.NoError(err)
	require.Equal("timelines/2025-01-31/trove-1.json", path)

	var got domain.Timeline
	require.NoError(json.Unmarshal(blob.objects[path], &got))
	require.Equal("trove-1", got.PositionID)
	require.Len(got.Events, 2)
}

func TestExportKeepsFirstObjectOfTheDay(t *testing.T) {
	require := require.New(t)

	blob := newMemBlob()
	exp := NewExporter(blob, blob, nil)
	ctx := context.Background()

	_, err := exp.Export(ctx, timeline("trove-1", 1))
	require.NoError(err)
	first := append([]byte(nil), blob.objects["timelines/2025-01-31/trove-1.json"]...)

	_, err = exp.Export(ctx, timeline("trove-1", 5))
	require.NoError(err)
	require.Equal(first, blob.objects["timelines/2025-01-31/trove-1.json"])
}

func TestExportAllWritesManifest(t *testing.T) {
	require := require.New(t)

	blob := newMemBlob()
	audit := &memAudit{}
	exp := NewExporter(blob, blob, audit)
	ctx := context.Background()

	_, err := exp.Export(ctx, timeline("trove-1", 1))
	require.NoError(err)

	entries, err := exp.ExportAll(ctx, []domain.Timeline{timeline("trove-1", 1), timeline("trove-2", 3)}, builtAt)
	require.NoError(err)
	require.Len(entries, 2)
	require.True(entries[0].Skipped)
	require.False(entries[1].Skipped)
	require.Equal(entries[0].RunID, entries[1].RunID)
	require.Equal([]string{"export.timelines"}, audit.events)

	manifests, err := blob.List(ctx, "timelines/2025-01-31/manifest-")
	require.NoError(err)
	require.Len(manifests, 1)

	sc := bufio.NewScanner(bytes.NewReader(blob.objects[manifests[0].Path]))
	var lines int
	for sc.Scan() {
		var e ManifestEntry
		require.NoError(json.Unmarshal(sc.Bytes(), &e))
		lines++
	}
	require.Equal(2, lines)
}

func TestExportAllEmpty(t *testing.T) {
	blob := newMemBlob()
	entries, err := NewExporter(blob, blob, nil).ExportAll(context.Background(), nil, builtAt)
	require.NoError(t, err)
	require.Empty(t, entries)
	require.Empty(t, blob.objects)
}

func TestExportPropagatesUploadError(t *testing.T) {
	blob := newMemBlob()
	blob.putErr = errors.New("bucket gone")

	_, err := NewExporter(blob, blob, nil).Export(context.Background(), timeline("trove-1", 1))
	require.ErrorContains(t, err, "bucket gone")
}

func TestNormaliseEndpoint(t *testing.T) {
	require := require.New(t)
	require.Equal("https://s3.local:9000", normaliseEndpoint("s3.local:9000", true))
	require.Equal("http://s3.local:9000", normaliseEndpoint("s3.local:9000", false))
	require.Equal("http://minio:9000", normaliseEndpoint("http://minio:9000", true))
}

func TestArchivedReadsBack(t *testing.T) {
	require := require.New(t)

	blob := newMemBlob()
	exp := NewExporter(blob, blob, nil)
	ctx := context.Background()

	_, err := exp.Export(ctx, timeline("trove-1", 4))
	require.NoError(err)

	tl, err := exp.Archived(ctx, "trove-1", builtAt)
	require.NoError(err)
	require.Equal("trove-1", tl.PositionID)
	require.Len(tl.Events, 4)

	_, err = exp.Archived(ctx, "trove-1", builtAt.AddDate(0, 0, 1))
	require.ErrorIs(err, domain.ErrNotFound)
}

func TestManifestMergesRuns(t *testing.T) {
	require := require.New(t)

	blob := newMemBlob()
	exp := NewExporter(blob, blob, nil)
	ctx := context.Background()

	_, err := exp.ExportAll(ctx, []domain.Timeline{timeline("trove-2", 1), timeline("trove-1", 1)}, builtAt)
	require.NoError(err)
	_, err = exp.ExportAll(ctx, []domain.Timeline{timeline("trove-3", 1)}, builtAt)
	require.NoError(err)

	entries, err := exp.Manifest(ctx, builtAt)
	require.NoError(err)
	require.Len(entries, 3)

	runs := map[string][]string{}
	for _, e := range entries {
		runs[e.RunID] = append(runs[e.RunID], e.PositionID)
	}
	require.Len(runs, 2)
	for _, ids := range runs {
		require.IsIncreasing(ids)
	}

	none, err := exp.Manifest(ctx, builtAt.AddDate(0, 0, -1))
	require.NoError(err)
	require.Empty(none)
}
