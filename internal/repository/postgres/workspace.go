// Package postgres implements the persistence interfaces against PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pilarlabs/studio-operator/internal/domain"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// WorkspaceRepo reads workspace rows.
type WorkspaceRepo struct{ db *sql.DB }

// NewWorkspaceRepo creates a Postgres-backed workspace repository.
func NewWorkspaceRepo(db *sql.DB) *WorkspaceRepo { return &WorkspaceRepo{db: db} }

func (r *WorkspaceRepo) Get(ctx context.Context, id string) (*domain.Workspace, error) {
	w := &domain.Workspace{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, status, COALESCE(timezone,''), created_at, updated_at
		FROM workspaces
		WHERE id = $1
	`, id).Scan(&w.ID, &w.Name, &w.Status, &w.Timezone, &w.CreatedAt, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workspace: %w", err)
	}
	return w, nil
}

// ListActive returns active and onboarding workspaces in a stable order so
// bounded scans page deterministically.
func (r *WorkspaceRepo) ListActive(ctx context.Context, offset, limit int) ([]domain.Workspace, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, status, COALESCE(timezone,''), created_at, updated_at
		FROM workspaces
		WHERE status IN ('active', 'onboarding')
		ORDER BY created_at, id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list active workspaces: %w", err)
	}
	defer rows.Close()

	var out []domain.Workspace
	for rows.Next() {
		var w domain.Workspace
		if err := rows.Scan(&w.ID, &w.Name, &w.Status, &w.Timezone, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
