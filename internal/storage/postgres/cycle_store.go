package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"boil-protocol/internal/domain"
	"boil-protocol/internal/storage"
)

// CycleStore implements storage.CycleStore using PostgreSQL.
type CycleStore struct {
	pool *Pool
}

// NewCycleStore creates a new CycleStore.
func NewCycleStore(pool *Pool) *CycleStore {
	return &CycleStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CycleStore = (*CycleStore)(nil)

const cycleColumns = `
	id, cycle_number, start_time, end_time, status,
	alpha_wallet, alpha_bought, total_tank_sol, alpha_extraction, shatter_amount,
	participants, tx_alpha, tx_shatter
`

// Create inserts an active cycle. Returns ErrDuplicateKey if cycle_number exists.
func (s *CycleStore) Create(ctx context.Context, cycleNumber int64, startTime time.Time) (c *domain.Cycle, err error) {
	if cycleNumber < 1 {
		return nil, storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("cycle_create", start, err) }(time.Now())

	row := s.pool.QueryRow(ctx, `
		INSERT INTO cycles (cycle_number, start_time, status)
		VALUES ($1, $2, $3)
		RETURNING `+cycleColumns,
		cycleNumber, startTime.UTC(), domain.CycleStatusActive,
	)

	c, err = scanCycle(row)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, storage.ErrDuplicateKey
		}
		return nil, fmt.Errorf("create cycle: %w", err)
	}
	return c, nil
}

// Complete writes the resolution outcome. Returns ErrNotFound if no row matches.
func (s *CycleStore) Complete(ctx context.Context, cycleNumber int64, done domain.CycleCompletion) (err error) {
	defer func(start time.Time) { observe("cycle_complete", start, err) }(time.Now())

	tag, err := s.pool.Exec(ctx, `
		UPDATE cycles SET
			end_time = $2,
			status = $3,
			alpha_wallet = $4,
			alpha_bought = $5,
			total_tank_sol = $6,
			alpha_extraction = $7,
			shatter_amount = $8,
			participants = $9,
			tx_alpha = $10,
			tx_shatter = $11
		WHERE cycle_number = $1
	`,
		cycleNumber, done.EndTime.UTC(), domain.CycleStatusCompleted,
		done.AlphaWallet, done.AlphaBought, done.TotalTankSOL, done.AlphaExtraction, done.ShatterAmount,
		done.Participants, done.TxAlpha, done.TxShatter,
	)
	if err != nil {
		return fmt.Errorf("complete cycle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CloseStale completes active cycles numbered below before.
func (s *CycleStore) CloseStale(ctx context.Context, before int64, endTime time.Time) (n int64, err error) {
	defer func(start time.Time) { observe("cycle_close_stale", start, err) }(time.Now())

	tag, err := s.pool.Exec(ctx, `
		UPDATE cycles SET end_time = $2, status = $3
		WHERE cycle_number < $1 AND status = $4
	`, before, endTime.UTC(), domain.CycleStatusCompleted, domain.CycleStatusActive)
	if err != nil {
		return 0, fmt.Errorf("close stale cycles: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetByNumber retrieves one cycle. Returns ErrNotFound if not exists.
func (s *CycleStore) GetByNumber(ctx context.Context, cycleNumber int64) (c *domain.Cycle, err error) {
	defer func(start time.Time) { observe("cycle_get", start, err) }(time.Now())

	row := s.pool.QueryRow(ctx, `SELECT `+cycleColumns+` FROM cycles WHERE cycle_number = $1`, cycleNumber)
	c, err = scanCycle(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get cycle by number: %w", err)
	}
	return c, nil
}

// GetRecentCompleted returns up to limit completed cycles, newest first.
func (s *CycleStore) GetRecentCompleted(ctx context.Context, limit int) (cycles []*domain.Cycle, err error) {
	defer func(start time.Time) { observe("cycle_recent", start, err) }(time.Now())

	rows, err := s.pool.Query(ctx, `
		SELECT `+cycleColumns+`
		FROM cycles
		WHERE status = $1
		ORDER BY cycle_number DESC
		LIMIT $2
	`, domain.CycleStatusCompleted, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent cycles: %w", err)
	}
	defer rows.Close()

	cycles = make([]*domain.Cycle, 0)
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		cycles = append(cycles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cycles: %w", err)
	}
	return cycles, nil
}

// CountWins returns how many completed cycles wallet led.
func (s *CycleStore) CountWins(ctx context.Context, wallet string) (n int64, err error) {
	defer func(start time.Time) { observe("cycle_wins", start, err) }(time.Now())

	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM cycles WHERE alpha_wallet = $1 AND status = $2
	`, wallet, domain.CycleStatusCompleted).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count wins: %w", err)
	}
	return n, nil
}

// TotalEarnings returns the sum of landed extraction payouts to wallet.
func (s *CycleStore) TotalEarnings(ctx context.Context, wallet string) (total float64, err error) {
	defer func(start time.Time) { observe("cycle_earnings", start, err) }(time.Now())

	err = s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(alpha_extraction), 0) FROM cycles
		WHERE alpha_wallet = $1 AND status = $2 AND tx_alpha IS NOT NULL
	`, wallet, domain.CycleStatusCompleted).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total earnings: %w", err)
	}
	return total, nil
}

// DeleteAll removes every cycle row.
func (s *CycleStore) DeleteAll(ctx context.Context) (err error) {
	defer func(start time.Time) { observe("cycle_delete_all", start, err) }(time.Now())

	if _, err = s.pool.Exec(ctx, `DELETE FROM cycles`); err != nil {
		return fmt.Errorf("delete cycles: %w", err)
	}
	return nil
}

func scanCycle(row pgx.Row) (*domain.Cycle, error) {
	var c domain.Cycle
	err := row.Scan(
		&c.ID, &c.CycleNumber, &c.StartTime, &c.EndTime, &c.Status,
		&c.AlphaWallet, &c.AlphaBought, &c.TotalTankSOL, &c.AlphaExtraction, &c.ShatterAmount,
		&c.Participants, &c.TxAlpha, &c.TxShatter,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
