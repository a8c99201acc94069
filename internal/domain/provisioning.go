package domain

import "time"

// ProvisioningStatus enumerates the states of an asynchronous setup job.
type ProvisioningStatus string

const (
	ProvisioningQueued     ProvisioningStatus = "queued"
	ProvisioningInProgress ProvisioningStatus = "in_progress"
	ProvisioningCompleted  ProvisioningStatus = "completed"
	ProvisioningFailed     ProvisioningStatus = "failed"
)

// ProvisioningJob tracks one asynchronous workspace setup task, e.g.
// configuring a telephony subaccount or registering a messaging sender.
type ProvisioningJob struct {
	ID          string             `json:"id" db:"id"`
	WorkspaceID string             `json:"workspace_id" db:"workspace_id"`
	Status      ProvisioningStatus `json:"status" db:"status"`
	Progress    int                `json:"progress" db:"progress"` // 0-100
	Reason      string             `json:"reason" db:"reason"`
	LastError   string             `json:"last_error" db:"last_error"`
	StartedAt   *time.Time         `json:"started_at" db:"started_at"`
	CompletedAt *time.Time         `json:"completed_at" db:"completed_at"`
	CreatedAt   time.Time          `json:"created_at" db:"created_at"`
}

// IsActive returns true if the job is queued or running. A workspace should
// have at most one active provisioning job.
func (j ProvisioningJob) IsActive() bool {
	return j.Status == ProvisioningQueued || j.Status == ProvisioningInProgress
}
