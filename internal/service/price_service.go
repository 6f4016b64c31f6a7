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
	"github.com/alanyoungcy/troveledger/internal/trove"
)

// ChannelPrices carries a JSON domain.PricePoint for every polled price.
const ChannelPrices = "prices"

// PriceFeed reads the current collateral price from its source.
type PriceFeed interface {
	LatestPrice(ctx context.Context) (domain.PricePoint, error)
}

// PriceService keeps the collateral price history and current price.
type PriceService struct {
	collateral string
	feed       PriceFeed
	store      domain.PriceStore
	cache      domain.PriceCache
	bus        domain.SignalBus
	logger     *slog.Logger
}

// NewPriceService creates a PriceService for one collateral. feed, cache
// and bus may be nil.
func NewPriceService(
	collateral string,
	feed PriceFeed,
	store domain.PriceStore,
	cache domain.PriceCache,
	bus domain.SignalBus,
	logger *slog.Logger,
) *PriceService {
	return &PriceService{
		collateral: collateral,
		feed:       feed,
		store:      store,
		cache:      cache,
		bus:        bus,
		logger:     logger.With(slog.String("component", "price_service")),
	}
}

// Poll reads the feed once and records the observation in the history,
// the cache and the prices channel.
func (s *PriceService) Poll(ctx context.Context) (domain.PricePoint, error) {
	if s.feed == nil {
		return domain.PricePoint{}, fmt.Errorf("price_service: no feed configured: %w", domain.ErrNoPrice)
	}
	p, err := s.feed.LatestPrice(ctx)
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("price_service: poll: %w", err)
	}
	if err := s.Record(ctx, p); err != nil {
		return domain.PricePoint{}, err
	}
	return p, nil
}

// Record stores an observation from any source.
func (s *PriceService) Record(ctx context.Context, p domain.PricePoint) error {
	if !p.Price.IsPositive() {
		return &domain.InputConstraintError{Field: "price", Reason: "must be positive"}
	}
	if err := s.store.Insert(ctx, p); err != nil {
		return fmt.Errorf("price_service: record: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.SetPrice(ctx, p.Collateral, p.Price, p.Timestamp); err != nil {
			s.logger.WarnContext(ctx, "cache price failed", slog.String("error", err.Error()))
		}
	}
	if s.bus != nil {
		payload, _ := json.Marshal(p)
		if err := s.bus.Publish(ctx, ChannelPrices, payload); err != nil {
			s.logger.WarnContext(ctx, "publish price failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// Current returns the latest known price, from the cache when it has one.
// It returns domain.ErrNotFound when no price was ever recorded.
func (s *PriceService) Current(ctx context.Context) (domain.PricePoint, error) {
	if s.cache != nil {
		price, ts, err := s.cache.GetPrice(ctx, s.collateral)
		if err == nil {
			return domain.PricePoint{Collateral: s.collateral, Price: price, Timestamp: ts, Source: "cache"}, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "price cache read failed", slog.String("error", err.Error()))
		}
	}
	p, err := s.store.Latest(ctx, s.collateral)
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("price_service: current: %w", err)
	}
	return p, nil
}

// Series builds the price context for a reconstruction covering from..to.
func (s *PriceService) Series(ctx context.Context, from, to time.Time) (*trove.PriceSeries, error) {
	points, err := s.store.ListRange(ctx, s.collateral, from, to)
	if err != nil {
		return nil, fmt.Errorf("price_service: history: %w", err)
	}
	current := decimal.NullDecimal{}
	p, err := s.Current(ctx)
	switch {
	case err == nil:
		current = decimal.NewNullDecimal(p.Price)
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}
	return trove.NewPriceSeries(points, current), nil
}
