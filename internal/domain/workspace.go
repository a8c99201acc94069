package domain

import "time"

// WorkspaceStatus enumerates the lifecycle states of a tenant workspace.
type WorkspaceStatus string

const (
	WorkspaceOnboarding WorkspaceStatus = "onboarding"
	WorkspaceActive     WorkspaceStatus = "active"
	WorkspaceSuspended  WorkspaceStatus = "suspended"
	WorkspaceCancelled  WorkspaceStatus = "cancelled"
)

// Workspace represents one customer account (studio). It is the unit of
// isolation for locks, circuit breakers, and health checks.
type Workspace struct {
	ID        string          `json:"id" db:"id"`
	Name      string          `json:"name" db:"name"`
	Status    WorkspaceStatus `json:"status" db:"status"`
	Timezone  string          `json:"timezone" db:"timezone"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// IsActive returns true if the workspace should be included in operator scans.
func (w Workspace) IsActive() bool {
	return w.Status == WorkspaceActive || w.Status == WorkspaceOnboarding
}
