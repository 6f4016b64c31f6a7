package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/troveledger/internal/domain"
)

var _ domain.EventStore = (*EventStore)(nil)

// EventStore implements domain.EventStore using PostgreSQL.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

const eventSelectCols = `id, position_id, kind, ts, block, tx_index, log_index,
	tx_hash, owner, debt_change, coll_change, upfront_fee,
	redist_debt_gain, redist_coll_gain, redemption_fee,
	interest_rate, batch_manager, management_fee, price, liquidation`

func scanEventRows(rows pgx.Rows) ([]domain.PositionEvent, error) {
	var events []domain.PositionEvent
	for rows.Next() {
		var (
			e                 domain.PositionEvent
			kind              string
			block             int64
			txIndex, logIndex int32
			liqJSON           []byte
		)
		if err := rows.Scan(
			&e.ID, &e.PositionID, &kind, &e.Timestamp, &block, &txIndex, &logIndex,
			&e.TxHash, &e.Owner, &e.DebtChange, &e.CollChange, &e.UpfrontFee,
			&e.RedistDebtGain, &e.RedistCollGain, &e.RedemptionFee,
			&e.InterestRate, &e.BatchManager, &e.ManagementFee, &e.Price, &liqJSON,
		); err != nil {
			return nil, err
		}
		e.Kind = domain.OperationKind(kind)
		e.Timestamp = e.Timestamp.UTC()
		e.Order = domain.EventOrder{Block: uint64(block), TxIndex: uint32(txIndex), LogIndex: uint32(logIndex)}
		if liqJSON != nil {
			var liq domain.SystemLiquidation
			if err := json.Unmarshal(liqJSON, &liq); err != nil {
				return nil, fmt.Errorf("unmarshal liquidation of %s: %w", e.ID, err)
			}
			e.Liquidation = &liq
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// InsertBatch inserts events using a pgx Batch. Events whose id is
// already stored are skipped, so re-scraping an overlapping range is safe.
func (s *EventStore) InsertBatch(ctx context.Context, events []domain.PositionEvent) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO position_events (
			id, position_id, kind, ts, block, tx_index, log_index,
			tx_hash, owner, debt_change, coll_change, upfront_fee,
			redist_debt_gain, redist_coll_gain, redemption_fee,
			interest_rate, batch_manager, management_fee, price, liquidation
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15,
			$16, $17, $18, $19, $20
		) ON CONFLICT (id) DO NOTHING`

	for _, e := range events {
		var liqJSON []byte
		if e.Liquidation != nil {
			var err error
			if liqJSON, err = json.Marshal(e.Liquidation); err != nil {
				return 0, fmt.Errorf("postgres: marshal liquidation of %s: %w", e.ID, err)
			}
		}
		batch.Queue(query,
			e.ID, e.PositionID, string(e.Kind), e.Timestamp,
			int64(e.Order.Block), int32(e.Order.TxIndex), int32(e.Order.LogIndex),
			e.TxHash, e.Owner.Bytes(), e.DebtChange, e.CollChange, e.UpfrontFee,
			e.RedistDebtGain, e.RedistCollGain, e.RedemptionFee,
			e.InterestRate, e.BatchManager.Bytes(), e.ManagementFee, e.Price, liqJSON,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	var inserted int64
	for i := range events {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("postgres: insert event batch item %d (%s): %w", i, events[i].ID, err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// ListByPosition returns every event of a position in chain order.
func (s *EventStore) ListByPosition(ctx context.Context, positionID string) ([]domain.PositionEvent, error) {
	query := `SELECT ` + eventSelectCols + ` FROM position_events
		WHERE position_id = $1
		ORDER BY block, tx_index, log_index`

	rows, err := s.pool.Query(ctx, query, positionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events of %s: %w", positionID, err)
	}
	defer rows.Close()

	events, err := scanEventRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan events of %s: %w", positionID, err)
	}
	return events, nil
}

// ListPositionsSince returns the distinct positions touched after block.
func (s *EventStore) ListPositionsSince(ctx context.Context, block uint64) ([]string, error) {
	const query = `SELECT DISTINCT position_id FROM position_events WHERE block > $1 ORDER BY position_id`

	rows, err := s.pool.Query(ctx, query, int64(block))
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions since %d: %w", block, err)
	}
	defer rows.Close()

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions since %d: %w", block, err)
	}
	return ids, nil
}

// ListPositions returns known position ids, filtered on the time of each
// position's latest event.
func (s *EventStore) ListPositions(ctx context.Context, opts domain.ListOpts) ([]string, error) {
	query := `SELECT position_id FROM position_events GROUP BY position_id HAVING 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND MAX(ts) >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND MAX(ts) <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY position_id"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions: %w", err)
	}
	return ids, nil
}

// LastBlock returns the highest stored block, or zero when empty.
func (s *EventStore) LastBlock(ctx context.Context) (uint64, error) {
	var block int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(block), 0) FROM position_events`).Scan(&block)
	if err != nil {
		return 0, fmt.Errorf("postgres: last block: %w", err)
	}
	return uint64(block), nil
}
