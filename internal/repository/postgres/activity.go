package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pilarlabs/studio-operator/internal/domain"
)

// ActivityRepo appends and reads audit-trail rows. Detail maps are stored as
// JSONB.
type ActivityRepo struct{ db *sql.DB }

// NewActivityRepo creates a Postgres-backed activity log repository.
func NewActivityRepo(db *sql.DB) *ActivityRepo { return &ActivityRepo{db: db} }

func (r *ActivityRepo) Append(ctx context.Context, entry *domain.ActivityEntry) error {
	detail, err := json.Marshal(entry.Detail)
	if err != nil {
		return fmt.Errorf("marshal activity detail: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO activity_log (id, workspace_id, kind, summary, success, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.ID, entry.WorkspaceID, entry.Kind, entry.Summary, entry.Success, detail, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

// ListRecent returns the newest entries for a workspace.
func (r *ActivityRepo) ListRecent(ctx context.Context, workspaceID string, limit int) ([]domain.ActivityEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, workspace_id, kind, summary, success, detail, created_at
		FROM activity_log
		WHERE workspace_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var out []domain.ActivityEntry
	for rows.Next() {
		var (
			e      domain.ActivityEntry
			detail []byte
		)
		if err := rows.Scan(&e.ID, &e.WorkspaceID, &e.Kind, &e.Summary, &e.Success, &detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &e.Detail); err != nil {
				return nil, fmt.Errorf("unmarshal activity detail: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
