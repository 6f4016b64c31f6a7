package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/troveledger/internal/domain"
)

var _ domain.DelegateStore = (*DelegateStore)(nil)

// DelegateStore implements domain.DelegateStore using PostgreSQL.
type DelegateStore struct {
	pool *pgxpool.Pool
}

// NewDelegateStore creates a new DelegateStore backed by the given connection pool.
func NewDelegateStore(pool *pgxpool.Pool) *DelegateStore {
	return &DelegateStore{pool: pool}
}

// Upsert creates or renames a delegate.
func (s *DelegateStore) Upsert(ctx context.Context, d domain.Delegate) error {
	const query = `
		INSERT INTO delegates (manager, name, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (manager) DO UPDATE SET name = EXCLUDED.name, updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, d.Manager.Bytes(), d.Name); err != nil {
		return fmt.Errorf("postgres: upsert delegate %s: %w", d.Manager.Hex(), err)
	}
	return nil
}

// Get returns one delegate, or domain.ErrNotFound.
func (s *DelegateStore) Get(ctx context.Context, manager common.Address) (domain.Delegate, error) {
	const query = `SELECT manager, name, updated_at FROM delegates WHERE manager = $1`

	var d domain.Delegate
	err := s.pool.QueryRow(ctx, query, manager.Bytes()).Scan(&d.Manager, &d.Name, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Delegate{}, domain.ErrNotFound
		}
		return domain.Delegate{}, fmt.Errorf("postgres: get delegate %s: %w", manager.Hex(), err)
	}
	return d, nil
}

// List returns every delegate ordered by name.
func (s *DelegateStore) List(ctx context.Context) ([]domain.Delegate, error) {
	rows, err := s.pool.Query(ctx, `SELECT manager, name, updated_at FROM delegates ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list delegates: %w", err)
	}
	defer rows.Close()

	var out []domain.Delegate
	for rows.Next() {
		var d domain.Delegate
		if err := rows.Scan(&d.Manager, &d.Name, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan delegate: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list delegates rows: %w", err)
	}
	return out, nil
}
