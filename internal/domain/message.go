package domain

import "time"

// MessageDirection distinguishes inbound from outbound message records.
type MessageDirection string

const (
	MessageOutbound MessageDirection = "outbound"
	MessageInbound  MessageDirection = "inbound"
)

// Message is one persisted message exchanged with a lead. Followup sends
// always create an outbound message row for the conversation history.
type Message struct {
	ID          string           `json:"id" db:"id"`
	WorkspaceID string           `json:"workspace_id" db:"workspace_id"`
	LeadID      string           `json:"lead_id" db:"lead_id"`
	Channel     FollowupChannel  `json:"channel" db:"channel"`
	Direction   MessageDirection `json:"direction" db:"direction"`
	Content     string           `json:"content" db:"content"`
	ProviderID  string           `json:"provider_id" db:"provider_id"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
}
