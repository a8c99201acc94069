// Package health aggregates per-workspace health from integration probes,
// provisioning state, and the followup scheduler backlog.
//
// The aggregator never fails its caller for an expected sub-check failure:
// every broken probe is downgraded into an "error" entry and surfaced through
// the issues list, so the dashboard and the operator always get a structured
// verdict.
package health

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pilarlabs/studio-operator/internal/domain"
	"github.com/pilarlabs/studio-operator/internal/integrations"
)

// Overall is the reduced three-level health verdict.
type Overall string

const (
	OverallHealthy   Overall = "healthy"
	OverallDegraded  Overall = "degraded"
	OverallUnhealthy Overall = "unhealthy"
)

// IssueSeverity grades one detected problem.
type IssueSeverity string

const (
	SeverityWarning  IssueSeverity = "warning"
	SeverityCritical IssueSeverity = "critical"
)

// IntegrationHealth is the result of one integration probe.
type IntegrationHealth struct {
	Status      string    `json:"status"` // "active", "inactive", "error"
	LastChecked time.Time `json:"last_checked"`
	Details     string    `json:"details,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// ProvisioningSummary describes the latest provisioning job for a workspace.
type ProvisioningSummary struct {
	Status          string `json:"status"` // "idle", "queued", "in_progress", "failed", "completed"
	LastJobID       string `json:"last_job_id,omitempty"`
	LastJobProgress int    `json:"last_job_progress,omitempty"`
	LastJobError    string `json:"last_job_error,omitempty"`
}

// SchedulerSummary describes the followup backlog for a workspace.
type SchedulerSummary struct {
	PendingFollowups int        `json:"pending_followups"`
	LastProcessedAt  *time.Time `json:"last_processed_at,omitempty"`
}

// Issue is one detected problem with a suggested remediation.
type Issue struct {
	Severity    IssueSeverity `json:"severity"`
	Component   string        `json:"component"`
	Message     string        `json:"message"`
	Remediation string        `json:"remediation,omitempty"`
}

// Status is the full health report for one workspace.
type Status struct {
	Overall      Overall                      `json:"overall"`
	Integrations map[string]IntegrationHealth `json:"integrations"`
	Provisioning ProvisioningSummary          `json:"provisioning"`
	Scheduler    SchedulerSummary             `json:"scheduler"`
	Issues       []Issue                      `json:"issues"`
	CheckedAt    time.Time                    `json:"checked_at"`
}

// ProvisioningReader supplies the latest provisioning job per workspace.
type ProvisioningReader interface {
	// LatestJob returns the most recent job, or (nil, nil) when none exists.
	LatestJob(ctx context.Context, workspaceID string) (*domain.ProvisioningJob, error)
}

// FollowupReader supplies scheduler backlog counters per workspace.
type FollowupReader interface {
	CountPending(ctx context.Context, workspaceID string) (int, error)
	LastSentAt(ctx context.Context, workspaceID string) (*time.Time, error)
}

// Aggregator computes workspace health. It holds only read-only collaborator
// handles, so concurrent calls for many workspaces are safe.
type Aggregator struct {
	adapters     []integrations.Adapter
	provisioning ProvisioningReader
	followups    FollowupReader
	now          func() time.Time
}

// NewAggregator creates a health aggregator over the given integration
// adapters and repositories.
func NewAggregator(adapters []integrations.Adapter, provisioning ProvisioningReader, followups FollowupReader) *Aggregator {
	return &Aggregator{
		adapters:     adapters,
		provisioning: provisioning,
		followups:    followups,
		now:          time.Now,
	}
}

// WorkspaceHealth runs all sub-checks for one workspace and reduces them into
// a Status. It never returns an error for a failing sub-check; every failure
// is folded into the report.
func (a *Aggregator) WorkspaceHealth(ctx context.Context, workspaceID string) Status {
	now := a.now()
	st := Status{
		Integrations: make(map[string]IntegrationHealth, len(a.adapters)),
		CheckedAt:    now,
	}

	for _, adapter := range a.adapters {
		st.Integrations[adapter.Name()] = a.checkIntegration(ctx, adapter, workspaceID, now)
	}
	st.Provisioning = a.checkProvisioning(ctx, workspaceID)
	st.Scheduler = a.checkScheduler(ctx, workspaceID)

	st.Issues = buildIssues(st)
	st.Overall = reduceOverall(st.Issues)
	return st
}

func (a *Aggregator) checkIntegration(ctx context.Context, adapter integrations.Adapter, workspaceID string, now time.Time) IntegrationHealth {
	res := adapter.GetStatus(ctx, workspaceID)
	h := IntegrationHealth{LastChecked: now, Details: res.Details}
	switch {
	case !res.OK:
		h.Status = "error"
		h.Error = res.Error
	case res.Active:
		h.Status = "active"
	default:
		h.Status = "inactive"
	}
	return h
}

func (a *Aggregator) checkProvisioning(ctx context.Context, workspaceID string) ProvisioningSummary {
	job, err := a.provisioning.LatestJob(ctx, workspaceID)
	if err != nil {
		return ProvisioningSummary{Status: "failed", LastJobError: fmt.Sprintf("provisioning check: %v", err)}
	}
	if job == nil {
		return ProvisioningSummary{Status: "idle"}
	}
	return ProvisioningSummary{
		Status:          string(job.Status),
		LastJobID:       job.ID,
		LastJobProgress: job.Progress,
		LastJobError:    job.LastError,
	}
}

func (a *Aggregator) checkScheduler(ctx context.Context, workspaceID string) SchedulerSummary {
	var s SchedulerSummary
	if n, err := a.followups.CountPending(ctx, workspaceID); err == nil {
		s.PendingFollowups = n
	}
	if ts, err := a.followups.LastSentAt(ctx, workspaceID); err == nil {
		s.LastProcessedAt = ts
	}
	return s
}

func buildIssues(st Status) []Issue {
	var issues []Issue

	// Stable issue order regardless of map iteration, so consumers see
	// the same first issue across runs.
	names := make([]string, 0, len(st.Integrations))
	for name := range st.Integrations {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ih := st.Integrations[name]
		if ih.Status != "error" {
			continue
		}
		issues = append(issues, Issue{
			Severity:    SeverityWarning,
			Component:   name,
			Message:     fmt.Sprintf("%s integration reporting errors: %s", name, ih.Error),
			Remediation: fmt.Sprintf("re-run provisioning to reconnect the %s integration", name),
		})
	}

	if st.Provisioning.Status == string(domain.ProvisioningFailed) {
		issues = append(issues, Issue{
			Severity:    SeverityCritical,
			Component:   "provisioning",
			Message:     fmt.Sprintf("last provisioning job failed: %s", st.Provisioning.LastJobError),
			Remediation: "retry the failed provisioning job",
		})
	}

	return issues
}

// reduceOverall applies the fixed reduction: any critical issue means
// unhealthy, any warning means degraded, otherwise healthy.
func reduceOverall(issues []Issue) Overall {
	overall := OverallHealthy
	for _, is := range issues {
		if is.Severity == SeverityCritical {
			return OverallUnhealthy
		}
		overall = OverallDegraded
	}
	return overall
}
