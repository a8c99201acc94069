package domain

import "time"

// FollowupChannel enumerates the outbound channels a followup can use.
type FollowupChannel string

const (
	ChannelWhatsApp FollowupChannel = "whatsapp"
	ChannelEmail    FollowupChannel = "email"
	ChannelSMS      FollowupChannel = "sms"
)

// FollowupStatus enumerates the delivery states of a followup.
type FollowupStatus string

const (
	FollowupPending FollowupStatus = "pending"
	FollowupSent    FollowupStatus = "sent"
	FollowupFailed  FollowupStatus = "failed"
)

// MaxFollowupsPerLead is the hard cap on sent followups for one lead.
// Rows are never deleted, so the sent count doubles as an audit trail.
const MaxFollowupsPerLead = 5

// Followup is one scheduled outbound message to a lead.
type Followup struct {
	ID          string          `json:"id" db:"id"`
	WorkspaceID string          `json:"workspace_id" db:"workspace_id"`
	LeadID      string          `json:"lead_id" db:"lead_id"`
	Channel     FollowupChannel `json:"channel" db:"channel"`
	ScheduledAt time.Time       `json:"scheduled_at" db:"scheduled_at"`
	Status      FollowupStatus  `json:"status" db:"status"`
	Content     string          `json:"content" db:"content"`
	SentAt      *time.Time      `json:"sent_at" db:"sent_at"`
	LastError   string          `json:"last_error" db:"last_error"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// NextFollowupDelay returns the delay before the next followup for a lead
// classification. Hot leads get chased daily; cold ones every three days.
func NextFollowupDelay(classification string) time.Duration {
	switch classification {
	case "A":
		return 24 * time.Hour
	case "B":
		return 48 * time.Hour
	default: // "C" and anything unclassified
		return 72 * time.Hour
	}
}
