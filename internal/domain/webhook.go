package domain

import "time"

// WebhookDeliveryStatus enumerates the states of an outbound webhook delivery.
type WebhookDeliveryStatus string

const (
	WebhookPending   WebhookDeliveryStatus = "pending"
	WebhookDelivered WebhookDeliveryStatus = "delivered"
	WebhookFailed    WebhookDeliveryStatus = "failed"
)

// WebhookEvent is one event the platform delivers to a workspace's configured
// endpoint (e.g. lead.created). Failed deliveries are retried by the operator.
type WebhookEvent struct {
	ID          string                `json:"id" db:"id"`
	WorkspaceID string                `json:"workspace_id" db:"workspace_id"`
	EventType   string                `json:"event_type" db:"event_type"`
	TargetURL   string                `json:"target_url" db:"target_url"`
	Payload     []byte                `json:"payload" db:"payload"`
	Status      WebhookDeliveryStatus `json:"status" db:"status"`
	Attempts    int                   `json:"attempts" db:"attempts"`
	LastError   string                `json:"last_error" db:"last_error"`
	CreatedAt   time.Time             `json:"created_at" db:"created_at"`
}
