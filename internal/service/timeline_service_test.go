package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/troveledger/internal/domain"
	"github.com/alanyoungcy/troveledger/internal/trove"
)

const trv = "0xabc-1"

var (
	t0      = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	year    = 365 * 24 * time.Hour
	owner   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	manager = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ev(kind domain.OperationKind, block uint64, ts time.Time) domain.PositionEvent {
	return domain.PositionEvent{
		ID:         fmt.Sprintf("%s-%d", trv, block),
		PositionID: trv,
		Kind:       kind,
		Timestamp:  ts,
		Order:      domain.EventOrder{Block: block},
	}
}

func open() domain.PositionEvent {
	e := ev(domain.OpOpen, 100, t0)
	e.Owner = owner
	e.DebtChange = d("10000")
	e.CollChange = d("5")
	e.InterestRate = decimal.NewNullDecimal(d("5"))
	e.Price = decimal.NewNullDecimal(d("2000"))
	return e
}

type harness struct {
	events     *fakeEvents
	timelines  *fakeTimelines
	cache      *fakeCache
	locks      *fakeLocks
	prices     *fakePrices
	priceCache *fakePriceCache
	delegates  *fakeDelegates
	bus        *fakeBus
	audit      *fakeAudit
	alerts     *fakeAlerts
	svc        *TimelineService
}

func newHarness(events ...domain.PositionEvent) *harness {
	h := &harness{
		events:     &fakeEvents{byPosition: map[string][]domain.PositionEvent{}},
		timelines:  newFakeTimelines(),
		cache:      newFakeCache(),
		locks:      &fakeLocks{held: map[string]bool{}},
		prices:     &fakePrices{points: []domain.PricePoint{{Collateral: "ETH", Price: d("2000"), Timestamp: t0}}},
		priceCache: &fakePriceCache{},
		delegates:  &fakeDelegates{byManager: map[common.Address]domain.Delegate{}},
		bus:        newFakeBus(),
		audit:      &fakeAudit{},
		alerts:     &fakeAlerts{},
	}
	if len(events) > 0 {
		h.events.byPosition[trv] = events
	}
	prices := NewPriceService("ETH", nil, h.prices, h.priceCache, nil, quietLogger())
	h.svc = NewTimelineService(TimelineDeps{
		Events:    h.events,
		Timelines: h.timelines,
		Delegates: h.delegates,
		Locks:     h.locks,
		Prices:    prices,
		Cache:     h.cache,
		Bus:       h.bus,
		Audit:     h.audit,
		Alerts:    h.alerts,
	}, trove.DefaultParams(), time.Minute, quietLogger())
	h.svc.now = func() time.Time { return t0.Add(2 * year) }
	return h
}

func TestRebuildSavesCachesAndPublishes(t *testing.T) {
	require := require.New(t)

	h := newHarness(open(), ev(domain.OpAdjust, 101, t0.Add(year)))
	tl, err := h.svc.Rebuild(context.Background(), trv)
	require.NoError(err)

	require.Len(tl.Events, 2)
	require.True(tl.Last().Debt.Equal(d("10500")), "debt %s", tl.Last().Debt)
	require.True(tl.Events[1].Accrual.AccruedInterest.Equal(d("500")))
	require.Equal(t0.Add(2*year), tl.BuiltAt)

	stored, err := h.timelines.Get(context.Background(), trv)
	require.NoError(err)
	require.Len(stored.Events, 2)
	cached, err := h.cache.Get(context.Background(), trv)
	require.NoError(err)
	require.Equal(tl.BuiltAt, cached.BuiltAt)

	require.Len(h.bus.published[ChannelTimelines], 1)
	var msg TimelineRebuilt
	require.NoError(json.Unmarshal(h.bus.published[ChannelTimelines][0], &msg))
	require.Equal(trv, msg.PositionID)
	require.Equal(2, msg.Events)
	require.Equal(domain.PositionStatusActive, msg.Status)

	require.Empty(h.locks.held)
	require.Empty(h.alerts.events)
}

func TestRebuildDropsStaleCacheEntryWhenCachingFails(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	h := newHarness(open())
	h.cache.saved[trv] = domain.Timeline{PositionID: trv, BuiltAt: t0}
	h.cache.setErr = errors.New("redis down")

	_, err := h.svc.Rebuild(ctx, trv)
	require.NoError(err)

	_, err = h.cache.Get(ctx, trv)
	require.ErrorIs(err, domain.ErrNotFound)
	_, err = h.timelines.Get(ctx, trv)
	require.NoError(err)
}

func TestRebuildResolvesDelegateNames(t *testing.T) {
	require := require.New(t)

	e := open()
	e.BatchManager = manager
	e.ManagementFee = decimal.NewNullDecimal(d("0.25"))
	h := newHarness(e)
	h.delegates.byManager[manager] = domain.Delegate{Manager: manager, Name: "Alpha"}

	tl, err := h.svc.Rebuild(context.Background(), trv)
	require.NoError(err)
	require.Equal("Alpha", tl.Events[0].DelegateName)
	require.True(tl.Last().InBatch)
}

func TestRebuildIntegrityErrorIsAuditedAndAlerted(t *testing.T) {
	require := require.New(t)

	h := newHarness(ev(domain.OpAdjust, 100, t0))
	_, err := h.svc.Rebuild(context.Background(), trv)

	var die *domain.DataIntegrityError
	require.True(errors.As(err, &die))
	require.Equal(trv, die.PositionID)
	require.True(errors.Is(err, domain.ErrDataIntegrity))

	require.Zero(h.timelines.saves)
	require.Len(h.audit.entries, 1)
	require.Equal("timeline.integrity_error", h.audit.entries[0].Event)
	require.Equal([]string{"integrity_error"}, h.alerts.events)
	require.Empty(h.locks.held)
}

func TestRebuildLockHeld(t *testing.T) {
	h := newHarness(open())
	h.locks.held["rebuild:"+trv] = true

	_, err := h.svc.Rebuild(context.Background(), trv)
	require.True(t, errors.Is(err, domain.ErrLockHeld))
}

func TestRebuildUnknownPosition(t *testing.T) {
	h := newHarness()
	_, err := h.svc.Rebuild(context.Background(), trv)
	require.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestRebuildAlertsOnNewLiquidation(t *testing.T) {
	require := require.New(t)

	liq := ev(domain.OpLiquidate, 101, t0)
	liq.DebtChange = d("-10000")
	liq.CollChange = d("-5")
	liq.Price = decimal.NewNullDecimal(d("2000"))
	liq.Liquidation = &domain.SystemLiquidation{DebtOffsetByPool: d("10000"), DebtRedistributed: decimal.Zero}

	h := newHarness(open(), liq)
	h.timelines.saved[trv] = domain.Timeline{PositionID: trv, Events: make([]domain.EnrichedEvent, 1)}

	tl, err := h.svc.Rebuild(context.Background(), trv)
	require.NoError(err)
	require.Equal(domain.PositionStatusLiquidated, tl.Last().Status)
	require.Equal([]string{"liquidation"}, h.alerts.events)
}

func TestFirstBuildRaisesNoAlerts(t *testing.T) {
	liq := ev(domain.OpLiquidate, 101, t0)
	liq.DebtChange = d("-10000")
	liq.CollChange = d("-5")
	liq.Price = decimal.NewNullDecimal(d("2000"))
	liq.Liquidation = &domain.SystemLiquidation{DebtOffsetByPool: d("10000"), DebtRedistributed: decimal.Zero}

	h := newHarness(open(), liq)
	_, err := h.svc.Rebuild(context.Background(), trv)
	require.NoError(t, err)
	require.Empty(t, h.alerts.events)
}

func TestRebuildAlertsOnNewZombie(t *testing.T) {
	require := require.New(t)

	red := ev(domain.OpRedeem, 101, t0)
	red.DebtChange = d("-8500")
	red.CollChange = d("-4.25")
	red.Price = decimal.NewNullDecimal(d("2000"))

	h := newHarness(open(), red)
	h.timelines.saved[trv] = domain.Timeline{PositionID: trv}

	tl, err := h.svc.Rebuild(context.Background(), trv)
	require.NoError(err)
	require.True(tl.Last().Zombie)
	require.Equal(domain.ZombieBelowMinimum, tl.Last().ZombieReason)
	require.True(tl.Last().Debt.Equal(d("1500")))
	require.Equal([]string{"zombie"}, h.alerts.events)
}

func TestTimelineReadPath(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	h := newHarness()
	cached := domain.Timeline{PositionID: trv, BuiltAt: t0}
	require.NoError(h.cache.Set(ctx, cached))
	got, err := h.svc.Timeline(ctx, trv)
	require.NoError(err)
	require.Equal(t0, got.BuiltAt)

	h = newHarness()
	h.timelines.saved[trv] = domain.Timeline{PositionID: trv, BuiltAt: t0.Add(time.Hour)}
	got, err = h.svc.Timeline(ctx, trv)
	require.NoError(err)
	require.Equal(t0.Add(time.Hour), got.BuiltAt)
	_, err = h.cache.Get(ctx, trv)
	require.NoError(err)

	h = newHarness(open())
	got, err = h.svc.Timeline(ctx, trv)
	require.NoError(err)
	require.Len(got.Events, 1)
	require.Equal(1, h.timelines.saves)
}

func TestLiveAccruesToAsOf(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	h := newHarness(open())
	h.priceCache.set, h.priceCache.price = true, d("2500")

	asOf := t0.Add(year)
	live, err := h.svc.Live(ctx, trv, asOf)
	require.NoError(err)
	require.True(live.Debt.Equal(d("10000")))
	require.True(live.AccruedInterest.Equal(d("500")))
	require.True(live.EntireDebt().Equal(d("10500")))
	require.True(live.CollUSD.Equal(d("12500")))
	require.Equal(t0, live.LastUpdate)

	again, err := h.svc.Live(ctx, trv, asOf)
	require.NoError(err)
	require.True(live.Equal(again))

	_, err = h.svc.Live(ctx, trv, t0.Add(-time.Second))
	require.True(errors.Is(err, domain.ErrInputConstraint))
}

func TestLiveWithoutCurrentPriceKeepsLastPrice(t *testing.T) {
	require := require.New(t)

	h := newHarness(open())
	h.prices.points = nil

	live, err := h.svc.Live(context.Background(), trv, t0)
	require.NoError(err)
	require.True(live.Price.Equal(d("2000")))
}
