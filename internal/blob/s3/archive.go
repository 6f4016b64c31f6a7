package s3blob

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/alanyoungcy/troveledger/internal/domain"
)

// Archived returns the timeline exported for positionID on day. A missing
// export yields domain.ErrNotFound.
func (e *Exporter) Archived(ctx context.Context, positionID string, day time.Time) (domain.Timeline, error) {
	path := fmt.Sprintf("timelines/%s/%s.json", day.UTC().Format(time.DateOnly), positionID)
	body, err := e.reader.Get(ctx, path)
	if err != nil {
		return domain.Timeline{}, err
	}
	defer body.Close()

	var tl domain.Timeline
	if err := json.NewDecoder(body).Decode(&tl); err != nil {
		return domain.Timeline{}, fmt.Errorf("s3blob: decode %s: %w", path, err)
	}
	return tl, nil
}

// Manifest returns every manifest entry written on day, ordered by run
// then position.
func (e *Exporter) Manifest(ctx context.Context, day time.Time) ([]ManifestEntry, error) {
	prefix := fmt.Sprintf("timelines/%s/manifest-", day.UTC().Format(time.DateOnly))
	infos, err := e.reader.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	var entries []ManifestEntry
	for _, info := range infos {
		if !strings.HasSuffix(info.Path, ".jsonl") {
			continue
		}
		got, err := e.readManifest(ctx, info.Path)
		if err != nil {
			return nil, err
		}
		entries = append(entries, got...)
	}
	slices.SortFunc(entries, func(a, b ManifestEntry) int {
		if c := strings.Compare(a.RunID, b.RunID); c != 0 {
			return c
		}
		return strings.Compare(a.PositionID, b.PositionID)
	})
	return entries, nil
}

func (e *Exporter) readManifest(ctx context.Context, path string) ([]ManifestEntry, error) {
	body, err := e.reader.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var entries []ManifestEntry
	sc := bufio.NewScanner(body)
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var entry ManifestEntry
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			return nil, fmt.Errorf("s3blob: %s line %d: %w", path, line, err)
		}
		entries = append(entries, entry)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("s3blob: read %s: %w", path, err)
	}
	return entries, nil
}
