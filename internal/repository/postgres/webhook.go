package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pilarlabs/studio-operator/internal/domain"
)

// WebhookRepo stores outbound webhook delivery rows.
type WebhookRepo struct{ db *sql.DB }

// NewWebhookRepo creates a Postgres-backed webhook event repository.
func NewWebhookRepo(db *sql.DB) *WebhookRepo { return &WebhookRepo{db: db} }

func (r *WebhookRepo) ListFailed(ctx context.Context, workspaceID string, limit int) ([]domain.WebhookEvent, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, workspace_id, event_type, target_url, payload, status, attempts,
		       COALESCE(last_error,''), created_at
		FROM webhook_events
		WHERE workspace_id = $1 AND status = 'failed'
		ORDER BY created_at
		LIMIT $2
	`, workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list failed webhooks: %w", err)
	}
	defer rows.Close()

	var out []domain.WebhookEvent
	for rows.Next() {
		var ev domain.WebhookEvent
		if err := rows.Scan(
			&ev.ID, &ev.WorkspaceID, &ev.EventType, &ev.TargetURL, &ev.Payload,
			&ev.Status, &ev.Attempts, &ev.LastError, &ev.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan webhook event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (r *WebhookRepo) MarkDelivered(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE webhook_events
		SET status = 'delivered', attempts = attempts + 1, last_error = NULL
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("mark webhook delivered: %w", err)
	}
	return nil
}

func (r *WebhookRepo) MarkFailed(ctx context.Context, id, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE webhook_events
		SET status = 'failed', attempts = attempts + 1, last_error = $2
		WHERE id = $1
	`, id, reason)
	if err != nil {
		return fmt.Errorf("mark webhook failed: %w", err)
	}
	return nil
}

// WorkspacesWithFailedWebhooks returns distinct workspace ids with failed
// deliveries, for the operator scan.
func (r *WebhookRepo) WorkspacesWithFailedWebhooks(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT workspace_id
		FROM webhook_events
		WHERE status = 'failed'
		ORDER BY workspace_id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("workspaces with failed webhooks: %w", err)
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
