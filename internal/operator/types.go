// Package operator implements the autonomous remediation loop: scan tenant
// state for problems, decide remediations with a fixed policy, and execute
// them under per-tenant distributed locks.
package operator

import "time"

// SignalType enumerates the conditions the scanner can report.
type SignalType string

const (
	SignalHealthDegraded     SignalType = "health_degraded"
	SignalProvisioningNeeded SignalType = "provisioning_needed"
	SignalFollowupDue        SignalType = "followup_due"
	SignalWebhookFailed      SignalType = "webhook_failed"
	SignalIntegrationOffline SignalType = "integration_offline"
)

// Severity grades how urgent a signal is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Signal is one observed condition for one workspace. Signals are ephemeral:
// produced by a scan, consumed by the policy engine in the same run.
type Signal struct {
	Type        SignalType        `json:"type"`
	WorkspaceID string            `json:"workspace_id"`
	Severity    Severity          `json:"severity"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	DetectedAt  time.Time         `json:"detected_at"`
}

// ActionType enumerates the remediation routines the executor can dispatch.
type ActionType string

const (
	ActionRunProvisioning    ActionType = "run_provisioning"
	ActionSendFollowup       ActionType = "send_followup"
	ActionRetryWebhook       ActionType = "retry_webhook"
	ActionRestartIntegration ActionType = "restart_integration"
)

// Action is one remediation decided by the policy engine for one workspace.
type Action struct {
	Type        ActionType        `json:"type"`
	WorkspaceID string            `json:"workspace_id"`
	Params      map[string]string `json:"params,omitempty"`
}

// Result summarizes one operator run.
type Result struct {
	SignalsProcessed int      `json:"signals_processed"`
	ActionsExecuted  int      `json:"actions_executed"`
	Skipped          int      `json:"skipped"`
	Errors           int      `json:"errors"`
	TenantsAffected  []string `json:"tenants_affected"`
}

// Options bounds one operator run.
type Options struct {
	MaxSignals int
	MaxActions int
}

func (o Options) withDefaults() Options {
	if o.MaxSignals <= 0 {
		o.MaxSignals = 100
	}
	if o.MaxActions <= 0 {
		o.MaxActions = 50
	}
	return o
}
