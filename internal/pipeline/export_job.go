package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	s3blob "github.com/alanyoungcy/troveledger/internal/blob/s3"
	"github.com/alanyoungcy/troveledger/internal/domain"
)

const exportPageSize = 500

// TimelineArchive writes a set of timelines and their manifest to cold
// storage.
type TimelineArchive interface {
	ExportAll(ctx context.Context, timelines []domain.Timeline, asOf time.Time) ([]s3blob.ManifestEntry, error)
}

// ExportJob copies every stored timeline to cold storage on a cron
// schedule.
type ExportJob struct {
	events    domain.EventStore
	timelines domain.TimelineStore
	archive   TimelineArchive
	logger    *slog.Logger
	now       func() time.Time
}

// NewExportJob creates an ExportJob.
func NewExportJob(events domain.EventStore, timelines domain.TimelineStore, archive TimelineArchive, logger *slog.Logger) *ExportJob {
	return &ExportJob{
		events:    events,
		timelines: timelines,
		archive:   archive,
		logger:    logger.With(slog.String("component", "export_job")),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run exports the stored timeline of every known position. Positions
// that were never rebuilt are skipped.
func (j *ExportJob) Run(ctx context.Context) (int, error) {
	var batch []domain.Timeline
	for offset := 0; ; offset += exportPageSize {
		ids, err := j.events.ListPositions(ctx, domain.ListOpts{Limit: exportPageSize, Offset: offset})
		if err != nil {
			return 0, fmt.Errorf("export_job: list positions: %w", err)
		}
		for _, id := range ids {
			tl, err := j.timelines.Get(ctx, id)
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			if err != nil {
				return 0, fmt.Errorf("export_job: load %s: %w", id, err)
			}
			batch = append(batch, tl)
		}
		if len(ids) < exportPageSize {
			break
		}
	}

	entries, err := j.archive.ExportAll(ctx, batch, j.now())
	if err != nil {
		return 0, fmt.Errorf("export_job: %w", err)
	}
	j.logger.InfoContext(ctx, "timelines exported", slog.Int("count", len(entries)))
	return len(entries), nil
}

// RunCron runs the job at every time matching schedule until ctx is
// cancelled. A run still in progress when the next activation arrives
// causes that activation to be skipped. Cancellation waits for a running
// export to finish.
func (j *ExportJob) RunCron(ctx context.Context, schedule *Schedule) error {
	next, ok := schedule.Next(j.now())
	if !ok {
		return fmt.Errorf("export_job: cron %q never fires", schedule)
	}

	logger := cronLogger{j.logger}
	runner := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	runner.Schedule(schedule.sched, cron.FuncJob(func() {
		if _, err := j.Run(ctx); err != nil {
			j.logger.Error("export run failed", slog.String("error", err.Error()))
		}
	}))

	runner.Start()
	j.logger.Info("export cron started",
		slog.String("schedule", schedule.String()),
		slog.Time("next_run", next),
	)

	<-ctx.Done()
	<-runner.Stop().Done()
	j.logger.Info("export cron stopped")
	return ctx.Err()
}

// cronLogger routes the scheduler's own logging to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
