package domain

import "time"

// ActivityKind enumerates the audit-trail entry types.
type ActivityKind string

const (
	ActivityOperatorAction        ActivityKind = "operator_action"
	ActivityFollowupSent          ActivityKind = "followup_sent"
	ActivityProvisioningTriggered ActivityKind = "provisioning_triggered"
	ActivityWebhookRetried        ActivityKind = "webhook_retried"
	ActivityIntegrationRestarted  ActivityKind = "integration_restarted"
)

// ActivityEntry is one append-only audit row. Entries are written for every
// operator action, success or failure.
type ActivityEntry struct {
	ID          string            `json:"id" db:"id"`
	WorkspaceID string            `json:"workspace_id" db:"workspace_id"`
	Kind        ActivityKind      `json:"kind" db:"kind"`
	Summary     string            `json:"summary" db:"summary"`
	Success     bool              `json:"success" db:"success"`
	Detail      map[string]string `json:"detail" db:"detail"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
}
