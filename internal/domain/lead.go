package domain

import "time"

// LeadStatus enumerates the conversion states of a lead.
type LeadStatus string

const (
	LeadNew       LeadStatus = "new"
	LeadContacted LeadStatus = "contacted"
	LeadEngaged   LeadStatus = "engaged"
	LeadConverted LeadStatus = "converted"
	LeadLost      LeadStatus = "lost"
)

// Lead represents a prospective customer of one workspace.
type Lead struct {
	ID          string     `json:"id" db:"id"`
	WorkspaceID string     `json:"workspace_id" db:"workspace_id"`
	Name        string     `json:"name" db:"name"`
	Phone       string     `json:"phone" db:"phone"`
	Email       string     `json:"email" db:"email"`
	Status      LeadStatus `json:"status" db:"status"`

	// Classification is the engagement tier assigned by the intake flow:
	// "A" (hot), "B" (warm), "C" (cold). It drives followup cadence.
	Classification string `json:"classification" db:"classification"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the lead must never receive another followup.
func (l Lead) IsTerminal() bool {
	return l.Status == LeadConverted || l.Status == LeadLost
}
