package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pilarlabs/studio-operator/internal/domain"
)

// ProvisioningRepo stores provisioning job rows.
type ProvisioningRepo struct{ db *sql.DB }

// NewProvisioningRepo creates a Postgres-backed provisioning job repository.
func NewProvisioningRepo(db *sql.DB) *ProvisioningRepo { return &ProvisioningRepo{db: db} }

const provisioningColumns = `id, workspace_id, status, progress, COALESCE(reason,''),
	       COALESCE(last_error,''), started_at, completed_at, created_at`

func scanJob(row *sql.Row) (*domain.ProvisioningJob, error) {
	j := &domain.ProvisioningJob{}
	err := row.Scan(
		&j.ID, &j.WorkspaceID, &j.Status, &j.Progress, &j.Reason,
		&j.LastError, &j.StartedAt, &j.CompletedAt, &j.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan provisioning job: %w", err)
	}
	return j, nil
}

// LatestJob returns the most recent job for the workspace, or (nil, nil).
func (r *ProvisioningRepo) LatestJob(ctx context.Context, workspaceID string) (*domain.ProvisioningJob, error) {
	return scanJob(r.db.QueryRowContext(ctx, `
		SELECT `+provisioningColumns+`
		FROM provisioning_jobs
		WHERE workspace_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, workspaceID))
}

// ActiveJob returns the queued or running job for the workspace, or (nil, nil).
func (r *ProvisioningRepo) ActiveJob(ctx context.Context, workspaceID string) (*domain.ProvisioningJob, error) {
	return scanJob(r.db.QueryRowContext(ctx, `
		SELECT `+provisioningColumns+`
		FROM provisioning_jobs
		WHERE workspace_id = $1 AND status IN ('queued', 'in_progress')
		ORDER BY created_at DESC
		LIMIT 1
	`, workspaceID))
}

func (r *ProvisioningRepo) CreateJob(ctx context.Context, job *domain.ProvisioningJob) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO provisioning_jobs (id, workspace_id, status, progress, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, job.ID, job.WorkspaceID, job.Status, job.Progress, job.Reason, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("create provisioning job: %w", err)
	}
	return nil
}
