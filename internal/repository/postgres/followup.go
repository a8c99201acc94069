package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pilarlabs/studio-operator/internal/domain"
)

// FollowupRepo implements followup.Repository plus the health and scanner
// queries over the followups, leads, and messages tables.
type FollowupRepo struct{ db *sql.DB }

// NewFollowupRepo creates a Postgres-backed followup repository.
func NewFollowupRepo(db *sql.DB) *FollowupRepo { return &FollowupRepo{db: db} }

const followupColumns = `id, workspace_id, lead_id, channel, scheduled_at, status,
	       COALESCE(content,''), sent_at, COALESCE(last_error,''), created_at`

func (r *FollowupRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Followup, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+followupColumns+`
		FROM followups
		WHERE status = 'pending' AND scheduled_at <= $1
		ORDER BY scheduled_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due followups: %w", err)
	}
	return scanFollowups(rows)
}

func (r *FollowupRepo) ListDueForWorkspace(ctx context.Context, workspaceID string, now time.Time, limit int) ([]domain.Followup, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+followupColumns+`
		FROM followups
		WHERE workspace_id = $1 AND status = 'pending' AND scheduled_at <= $2
		ORDER BY scheduled_at
		LIMIT $3
	`, workspaceID, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due followups for workspace: %w", err)
	}
	return scanFollowups(rows)
}

func scanFollowups(rows *sql.Rows) ([]domain.Followup, error) {
	defer rows.Close()
	var out []domain.Followup
	for rows.Next() {
		var f domain.Followup
		if err := rows.Scan(
			&f.ID, &f.WorkspaceID, &f.LeadID, &f.Channel, &f.ScheduledAt, &f.Status,
			&f.Content, &f.SentAt, &f.LastError, &f.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan followup: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *FollowupRepo) CountSent(ctx context.Context, workspaceID, leadID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM followups
		WHERE workspace_id = $1 AND lead_id = $2 AND status = 'sent'
	`, workspaceID, leadID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count sent followups: %w", err)
	}
	return n, nil
}

func (r *FollowupRepo) Create(ctx context.Context, f *domain.Followup) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO followups (id, workspace_id, lead_id, channel, scheduled_at, status, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, f.ID, f.WorkspaceID, f.LeadID, f.Channel, f.ScheduledAt, f.Status, f.Content, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("create followup: %w", err)
	}
	return nil
}

func (r *FollowupRepo) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE followups SET status = 'sent', sent_at = $2 WHERE id = $1 AND status = 'pending'
	`, id, sentAt)
	if err != nil {
		return fmt.Errorf("mark followup sent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *FollowupRepo) MarkFailed(ctx context.Context, id, reason string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE followups SET status = 'failed', last_error = $2 WHERE id = $1 AND status = 'pending'
	`, id, reason)
	if err != nil {
		return fmt.Errorf("mark followup failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *FollowupRepo) GetLead(ctx context.Context, workspaceID, leadID string) (*domain.Lead, error) {
	l := &domain.Lead{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, COALESCE(name,''), COALESCE(phone,''), COALESCE(email,''),
		       status, COALESCE(classification,''), created_at, updated_at
		FROM leads
		WHERE id = $1 AND workspace_id = $2
	`, leadID, workspaceID).Scan(
		&l.ID, &l.WorkspaceID, &l.Name, &l.Phone, &l.Email,
		&l.Status, &l.Classification, &l.CreatedAt, &l.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}
	return l, nil
}

func (r *FollowupRepo) CreateMessage(ctx context.Context, m *domain.Message) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (id, workspace_id, lead_id, channel, direction, content, provider_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, m.ID, m.WorkspaceID, m.LeadID, m.Channel, m.Direction, m.Content, m.ProviderID, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

// CountPending feeds the health aggregator's scheduler check.
func (r *FollowupRepo) CountPending(ctx context.Context, workspaceID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM followups WHERE workspace_id = $1 AND status = 'pending'
	`, workspaceID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending followups: %w", err)
	}
	return n, nil
}

// LastSentAt returns the timestamp of the most recent sent followup, or nil
// when the workspace has never sent one.
func (r *FollowupRepo) LastSentAt(ctx context.Context, workspaceID string) (*time.Time, error) {
	var ts sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT MAX(sent_at) FROM followups WHERE workspace_id = $1 AND status = 'sent'
	`, workspaceID).Scan(&ts)
	if err != nil {
		return nil, fmt.Errorf("last sent followup: %w", err)
	}
	if !ts.Valid {
		return nil, nil
	}
	return &ts.Time, nil
}

// WorkspacesWithDueFollowups returns distinct workspace ids holding at least
// one due pending followup, for the operator scan.
func (r *FollowupRepo) WorkspacesWithDueFollowups(ctx context.Context, now time.Time, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT workspace_id
		FROM followups
		WHERE status = 'pending' AND scheduled_at <= $1
		ORDER BY workspace_id
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("workspaces with due followups: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan workspace id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
