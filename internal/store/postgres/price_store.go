package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/troveledger/internal/domain"
)

var _ domain.PriceStore = (*PriceStore)(nil)

// PriceStore implements domain.PriceStore using PostgreSQL.
type PriceStore struct {
	pool *pgxpool.Pool
}

// NewPriceStore creates a new PriceStore backed by the given connection pool.
func NewPriceStore(pool *pgxpool.Pool) *PriceStore {
	return &PriceStore{pool: pool}
}

// Insert records a price observation. A second observation for the same
// collateral and timestamp replaces the first.
func (s *PriceStore) Insert(ctx context.Context, p domain.PricePoint) error {
	const query = `
		INSERT INTO collateral_prices (collateral, ts, price, source)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (collateral, ts) DO UPDATE SET price = EXCLUDED.price, source = EXCLUDED.source`

	if _, err := s.pool.Exec(ctx, query, p.Collateral, p.Timestamp, p.Price, p.Source); err != nil {
		return fmt.Errorf("postgres: insert price %s@%s: %w", p.Collateral, p.Timestamp.Format(time.RFC3339), err)
	}
	return nil
}

// ListRange returns observations with from <= ts <= to, oldest first. The
// latest observation at or before from is included so the series covers
// the whole range.
func (s *PriceStore) ListRange(ctx context.Context, collateral string, from, to time.Time) ([]domain.PricePoint, error) {
	const query = `
		(SELECT collateral, ts, price, source FROM collateral_prices
			WHERE collateral = $1 AND ts < $2 ORDER BY ts DESC LIMIT 1)
		UNION ALL
		(SELECT collateral, ts, price, source FROM collateral_prices
			WHERE collateral = $1 AND ts >= $2 AND ts <= $3)
		ORDER BY ts`

	rows, err := s.pool.Query(ctx, query, collateral, from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres: list prices %s: %w", collateral, err)
	}
	defer rows.Close()

	var points []domain.PricePoint
	for rows.Next() {
		var p domain.PricePoint
		if err := rows.Scan(&p.Collateral, &p.Timestamp, &p.Price, &p.Source); err != nil {
			return nil, fmt.Errorf("postgres: scan price: %w", err)
		}
		p.Timestamp = p.Timestamp.UTC()
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list prices rows: %w", err)
	}
	return points, nil
}

// Latest returns the newest observation, or domain.ErrNotFound.
func (s *PriceStore) Latest(ctx context.Context, collateral string) (domain.PricePoint, error) {
	const query = `
		SELECT collateral, ts, price, source FROM collateral_prices
		WHERE collateral = $1 ORDER BY ts DESC LIMIT 1`

	var p domain.PricePoint
	err := s.pool.QueryRow(ctx, query, collateral).Scan(&p.Collateral, &p.Timestamp, &p.Price, &p.Source)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PricePoint{}, domain.ErrNotFound
		}
		return domain.PricePoint{}, fmt.Errorf("postgres: latest price %s: %w", collateral, err)
	}
	p.Timestamp = p.Timestamp.UTC()
	return p, nil
}
