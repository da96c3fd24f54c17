package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/digkill/productshot/internal/models"
)

type GenerationRepository struct {
	db *sql.DB
}

func NewGenerationRepository(db *sql.DB) *GenerationRepository {
	return &GenerationRepository{db: db}
}

func (r *GenerationRepository) Log(ctx context.Context, entry models.GenerationLog) error {
	const query = `
INSERT INTO generation_logs (run_id, user_id, shot_id, status, prompt, negative_prompt, applied_rules, own_credential, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var errText sql.NullString
	if entry.Error != "" {
		errText = sql.NullString{String: entry.Error, Valid: true}
	}
	if _, err := r.db.ExecContext(ctx, query,
		entry.RunID, entry.UserID, entry.ShotID, entry.Status,
		entry.Prompt, entry.NegativePrompt, entry.AppliedRules, entry.OwnCredential, errText,
	); err != nil {
		return fmt.Errorf("insert generation log: %w", err)
	}
	return nil
}

// ListByUser returns the most recent entries for a user, newest first.
func (r *GenerationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.GenerationLog, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
SELECT id, run_id, user_id, shot_id, status, prompt, negative_prompt, applied_rules, own_credential, error, created_at
FROM generation_logs
WHERE user_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list generation logs: %w", err)
	}
	defer rows.Close()

	var out []models.GenerationLog
	for rows.Next() {
		var (
			entry   models.GenerationLog
			errText sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.RunID, &entry.UserID, &entry.ShotID, &entry.Status,
			&entry.Prompt, &entry.NegativePrompt, &entry.AppliedRules, &entry.OwnCredential, &errText, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan generation log: %w", err)
		}
		entry.Error = errText.String
		out = append(out, entry)
	}
	return out, rows.Err()
}
