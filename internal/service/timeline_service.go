package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/troveledger/internal/domain"
	"github.com/alanyoungcy/troveledger/internal/notify"
	"github.com/alanyoungcy/troveledger/internal/trove"
)

// ChannelTimelines carries a JSON TimelineRebuilt for every saved
// reconstruction.
const ChannelTimelines = "timelines"

// Alerter is the notification surface the services raise alerts on.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// TimelineRebuilt is published on ChannelTimelines.
type TimelineRebuilt struct {
	Event      string                  `json:"event"`
	PositionID string                  `json:"position_id"`
	Events     int                     `json:"events"`
	Status     domain.PositionStatus   `json:"status"`
	Last       domain.PositionSnapshot `json:"last"`
	BuiltAt    time.Time               `json:"built_at"`
}

// TimelineDeps are the collaborators of a TimelineService. Cache, Bus,
// Audit and Alerts are optional.
type TimelineDeps struct {
	Events    domain.EventStore
	Timelines domain.TimelineStore
	Delegates domain.DelegateStore
	Locks     domain.LockManager
	Prices    *PriceService
	Cache     domain.TimelineCache
	Bus       domain.SignalBus
	Audit     domain.AuditStore
	Alerts    Alerter
}

// TimelineService rebuilds, stores and serves position timelines.
type TimelineService struct {
	deps    TimelineDeps
	params  trove.Params
	lockTTL time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewTimelineService creates a TimelineService running the engine with
// params.
func NewTimelineService(deps TimelineDeps, params trove.Params, lockTTL time.Duration, logger *slog.Logger) *TimelineService {
	if lockTTL <= 0 {
		lockTTL = time.Minute
	}
	return &TimelineService{
		deps:    deps,
		params:  params,
		lockTTL: lockTTL,
		logger:  logger.With(slog.String("component", "timeline_service")),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Rebuild reconstructs a position from its stored events and replaces the
// stored timeline. It fails with domain.ErrLockHeld while another rebuild
// of the same position runs, domain.ErrNotFound when the position has no
// events, and a *domain.DataIntegrityError when the history is
// inconsistent, in which case the previous timeline is left in place.
func (s *TimelineService) Rebuild(ctx context.Context, positionID string) (domain.Timeline, error) {
	unlock, err := s.deps.Locks.Acquire(ctx, "rebuild:"+positionID, s.lockTTL)
	if err != nil {
		return domain.Timeline{}, fmt.Errorf("timeline_service: lock %s: %w", positionID, err)
	}
	defer unlock()

	events, err := s.deps.Events.ListByPosition(ctx, positionID)
	if err != nil {
		return domain.Timeline{}, fmt.Errorf("timeline_service: load events %s: %w", positionID, err)
	}
	if len(events) == 0 {
		return domain.Timeline{}, fmt.Errorf("timeline_service: position %s: %w", positionID, domain.ErrNotFound)
	}

	names, err := s.delegateNames(ctx)
	if err != nil {
		return domain.Timeline{}, err
	}
	now := s.now()
	prices, err := s.deps.Prices.Series(ctx, events[0].Timestamp, now)
	if err != nil {
		return domain.Timeline{}, fmt.Errorf("timeline_service: prices for %s: %w", positionID, err)
	}

	enriched, err := trove.NewReconstructor(s.params, names).Reconstruct(positionID, events, prices)
	if err != nil {
		s.reportFailure(ctx, positionID, err)
		return domain.Timeline{}, fmt.Errorf("timeline_service: reconstruct %s: %w", positionID, err)
	}

	previous, err := s.deps.Timelines.Get(ctx, positionID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.Timeline{}, fmt.Errorf("timeline_service: load previous %s: %w", positionID, err)
	}

	tl := domain.Timeline{PositionID: positionID, Events: enriched, BuiltAt: now}
	if err := s.deps.Timelines.Save(ctx, tl); err != nil {
		return domain.Timeline{}, fmt.Errorf("timeline_service: save %s: %w", positionID, err)
	}

	if s.deps.Cache != nil {
		if err := s.deps.Cache.Set(ctx, tl); err != nil {
			s.logger.WarnContext(ctx, "cache timeline failed",
				slog.String("position_id", positionID),
				slog.String("error", err.Error()),
			)
			// A stale entry must not outlive the store write.
			_ = s.deps.Cache.Invalidate(ctx, positionID)
		}
	}
	s.publish(ctx, tl)
	s.alertChanges(ctx, previous, tl)

	s.logger.DebugContext(ctx, "timeline rebuilt",
		slog.String("position_id", positionID),
		slog.Int("events", len(enriched)),
		slog.String("status", string(tl.Last().Status)),
	)
	return tl, nil
}

// Timeline returns the latest timeline from the cache, then the store,
// rebuilding it when neither has one.
func (s *TimelineService) Timeline(ctx context.Context, positionID string) (domain.Timeline, error) {
	if s.deps.Cache != nil {
		tl, err := s.deps.Cache.Get(ctx, positionID)
		if err == nil {
			return tl, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "timeline cache read failed",
				slog.String("position_id", positionID),
				slog.String("error", err.Error()),
			)
		}
	}

	tl, err := s.deps.Timelines.Get(ctx, positionID)
	switch {
	case err == nil:
		if s.deps.Cache != nil {
			_ = s.deps.Cache.Set(ctx, tl)
		}
		return tl, nil
	case errors.Is(err, domain.ErrNotFound):
		return s.Rebuild(ctx, positionID)
	default:
		return domain.Timeline{}, fmt.Errorf("timeline_service: get %s: %w", positionID, err)
	}
}

// Live returns the position's state as of asOf: the last recorded
// snapshot with interest accrued to asOf and valued at the current price.
// The result depends only on stored data and asOf.
func (s *TimelineService) Live(ctx context.Context, positionID string, asOf time.Time) (domain.PositionSnapshot, error) {
	tl, err := s.Timeline(ctx, positionID)
	if err != nil {
		return domain.PositionSnapshot{}, err
	}

	price := decimal.NullDecimal{}
	p, err := s.deps.Prices.Current(ctx)
	switch {
	case err == nil:
		price = decimal.NewNullDecimal(p.Price)
	case errors.Is(err, domain.ErrNotFound):
	default:
		return domain.PositionSnapshot{}, fmt.Errorf("timeline_service: current price: %w", err)
	}

	snap, err := trove.LiveState(positionID, tl.Last(), asOf, price)
	if err != nil {
		return domain.PositionSnapshot{}, fmt.Errorf("timeline_service: live %s: %w", positionID, err)
	}
	return snap, nil
}

func (s *TimelineService) delegateNames(ctx context.Context) (trove.DelegateNames, error) {
	if s.deps.Delegates == nil {
		return nil, nil
	}
	list, err := s.deps.Delegates.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("timeline_service: load delegates: %w", err)
	}
	names := make(trove.DelegateNames, len(list))
	for _, d := range list {
		names[d.Manager] = d.Name
	}
	return names, nil
}

func (s *TimelineService) reportFailure(ctx context.Context, positionID string, err error) {
	var die *domain.DataIntegrityError
	if !errors.As(err, &die) {
		return
	}
	s.logger.ErrorContext(ctx, "timeline integrity error",
		slog.String("position_id", positionID),
		slog.String("event_id", die.EventID),
		slog.String("reason", die.Reason),
	)
	if s.deps.Audit != nil {
		if auditErr := s.deps.Audit.Log(ctx, "timeline.integrity_error", map[string]any{
			"position_id": positionID,
			"event_id":    die.EventID,
			"reason":      die.Reason,
		}); auditErr != nil {
			s.logger.WarnContext(ctx, "audit integrity error failed", slog.String("error", auditErr.Error()))
		}
	}
	title, msg := notify.IntegrityAlert(positionID, err)
	s.alert(ctx, notify.EventIntegrityError, title, msg)
}

// alertChanges raises alerts for liquidations that are new since the
// previous build and for a position that has just become a zombie. A
// first build raises nothing so backfills stay quiet.
func (s *TimelineService) alertChanges(ctx context.Context, previous, current domain.Timeline) {
	if s.deps.Alerts == nil || previous.PositionID == "" {
		return
	}
	for _, ee := range current.Events[min(len(previous.Events), len(current.Events)):] {
		if ee.Transition == domain.TransitionFullyLiquidated || ee.Transition == domain.TransitionPartiallyLiquidated {
			title, msg := notify.LiquidationAlert(current.PositionID, ee)
			s.alert(ctx, notify.EventLiquidation, title, msg)
		}
	}

	last := current.Last()
	if last.Zombie && !previous.Last().Zombie {
		title, msg := notify.ZombieAlert(current.PositionID, last.Debt, last.ZombieStatus())
		s.alert(ctx, notify.EventZombie, title, msg)
	}
}

func (s *TimelineService) alert(ctx context.Context, event, title, message string) {
	if s.deps.Alerts == nil {
		return
	}
	if err := s.deps.Alerts.Notify(ctx, event, title, message); err != nil {
		s.logger.WarnContext(ctx, "alert failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *TimelineService) publish(ctx context.Context, tl domain.Timeline) {
	if s.deps.Bus == nil {
		return
	}
	last := tl.Last()
	payload, _ := json.Marshal(TimelineRebuilt{
		Event:      "timeline_rebuilt",
		PositionID: tl.PositionID,
		Events:     len(tl.Events),
		Status:     last.Status,
		Last:       last,
		BuiltAt:    tl.BuiltAt,
	})
	if err := s.deps.Bus.Publish(ctx, ChannelTimelines, payload); err != nil {
		s.logger.WarnContext(ctx, "publish timeline failed",
			slog.String("position_id", tl.PositionID),
			slog.String("error", err.Error()),
		)
	}
}
