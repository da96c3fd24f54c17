package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/digkill/productshot/internal/quota"
)

// UsageRepository stores the usage ledger in MySQL. Increments are single
// upserts inside a transaction, so several server processes can share it.
type UsageRepository struct {
	db *sql.DB
}

func NewUsageRepository(db *sql.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

func (r *UsageRepository) Usage(ctx context.Context, day, userID string) (int, error) {
	const query = `SELECT count FROM usage_ledger WHERE day = ? AND user_id = ?`
	var count int
	err := r.db.QueryRowContext(ctx, query, day, userID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("select usage: %w", err)
	}
	return count, nil
}

func (r *UsageRepository) Add(ctx context.Context, day, userID string, n int) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	const upsert = `
INSERT INTO usage_ledger (day, user_id, count)
VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE count = count + VALUES(count)`
	if _, err := tx.ExecContext(ctx, upsert, day, userID, n); err != nil {
		return 0, fmt.Errorf("upsert usage: %w", err)
	}

	var count int
	const query = `SELECT count FROM usage_ledger WHERE day = ? AND user_id = ?`
	if err := tx.QueryRowContext(ctx, query, day, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("select usage: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit usage: %w", err)
	}
	return count, nil
}

func (r *UsageRepository) Day(ctx context.Context, day string) (map[string]int, error) {
	const query = `SELECT user_id, count FROM usage_ledger WHERE day = ?`
	rows, err := r.db.QueryContext(ctx, query, day)
	if err != nil {
		return nil, fmt.Errorf("select day usage: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			userID string
			count  int
		)
		if err := rows.Scan(&userID, &count); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		out[userID] = count
	}
	return out, rows.Err()
}

func (r *UsageRepository) DeleteDay(ctx context.Context, day string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM usage_ledger WHERE day = ?`, day); err != nil {
		return fmt.Errorf("delete day usage: %w", err)
	}
	return nil
}

func (r *UsageRepository) PruneBefore(ctx context.Context, cutoff string) (int, error) {
	const countDays = `SELECT COUNT(DISTINCT day) FROM usage_ledger WHERE day < ?`
	var days int
	if err := r.db.QueryRowContext(ctx, countDays, cutoff).Scan(&days); err != nil {
		return 0, fmt.Errorf("count stale days: %w", err)
	}
	if days == 0 {
		return 0, nil
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM usage_ledger WHERE day < ?`, cutoff); err != nil {
		return 0, fmt.Errorf("prune usage: %w", err)
	}
	return days, nil
}

var _ quota.Store = (*UsageRepository)(nil)
