package operator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/pilarlabs/studio-operator/internal/domain"
	"github.com/pilarlabs/studio-operator/internal/health"
)

// HealthSource computes per-workspace health for the scanner.
type HealthSource interface {
	WorkspaceHealth(ctx context.Context, workspaceID string) (health.Status, error)
}

// AggregatorHealthSource adapts health.Aggregator to the HealthSource
// contract.
type AggregatorHealthSource struct {
	Agg *health.Aggregator
}

func (a AggregatorHealthSource) WorkspaceHealth(ctx context.Context, workspaceID string) (health.Status, error) {
	return a.Agg.WorkspaceHealth(ctx, workspaceID), nil
}

// WorkspaceLister pages through active workspaces in a stable order.
type WorkspaceLister interface {
	ListActive(ctx context.Context, offset, limit int) ([]domain.Workspace, error)
}

// DueFollowupLister returns distinct workspace ids with at least one pending
// followup that has come due.
type DueFollowupLister interface {
	WorkspacesWithDueFollowups(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// FailedWebhookLister returns distinct workspace ids with at least one failed
// webhook delivery.
type FailedWebhookLister interface {
	WorkspacesWithFailedWebhooks(ctx context.Context, limit int) ([]string, error)
}

// Scanner walks active workspaces and emits signals. One broken workspace
// never aborts the scan for the rest.
type Scanner struct {
	workspaces WorkspaceLister
	healthSrc  HealthSource
	followups  DueFollowupLister
	webhooks   FailedWebhookLister
	now        func() time.Time
}

// NewScanner creates a signal scanner. followups and webhooks may be nil,
// which disables the corresponding signal sources.
func NewScanner(workspaces WorkspaceLister, healthSrc HealthSource, followups DueFollowupLister, webhooks FailedWebhookLister) *Scanner {
	return &Scanner{
		workspaces: workspaces,
		healthSrc:  healthSrc,
		followups:  followups,
		webhooks:   webhooks,
		now:        time.Now,
	}
}

// Scan inspects up to limit workspaces and returns the signals found plus the
// count of isolated per-workspace failures. Signal order is fixed: health,
// then provisioning, then followup, then webhook.
func (s *Scanner) Scan(ctx context.Context, limit int) ([]Signal, int) {
	now := s.now()
	errCount := 0

	var healthSignals, provisioningSignals []Signal

	workspaces, err := s.workspaces.ListActive(ctx, 0, limit)
	if err != nil {
		log.Printf("[operator.Scanner] failed to list workspaces: %v", err)
		errCount++
	}

	for _, ws := range workspaces {
		st, err := s.healthSrc.WorkspaceHealth(ctx, ws.ID)
		if err != nil {
			log.Printf("[operator.Scanner] health check failed for %s, continuing: %v", ws.ID, err)
			errCount++
			continue
		}

		switch st.Overall {
		case health.OverallDegraded:
			healthSignals = append(healthSignals, s.healthSignal(ws.ID, SeverityHigh, st, now))
		case health.OverallUnhealthy:
			healthSignals = append(healthSignals, s.healthSignal(ws.ID, SeverityCritical, st, now))
		}

		if st.Provisioning.Status == string(domain.ProvisioningFailed) {
			provisioningSignals = append(provisioningSignals, Signal{
				Type:        SignalProvisioningNeeded,
				WorkspaceID: ws.ID,
				Severity:    SeverityMedium,
				Metadata:    map[string]string{"last_job_id": st.Provisioning.LastJobID, "last_error": st.Provisioning.LastJobError},
				DetectedAt:  now,
			})
		}
	}

	signals := append(healthSignals, provisioningSignals...)
	signals = append(signals, s.followupSignals(ctx, now, limit, &errCount)...)
	signals = append(signals, s.webhookSignals(ctx, now, limit, &errCount)...)

	if len(signals) > limit {
		signals = signals[:limit]
	}
	return signals, errCount
}

func (s *Scanner) healthSignal(workspaceID string, sev Severity, st health.Status, now time.Time) Signal {
	meta := map[string]string{"overall": string(st.Overall)}
	if len(st.Issues) > 0 {
		meta["first_issue"] = fmt.Sprintf("%s: %s", st.Issues[0].Component, st.Issues[0].Message)
	}
	return Signal{
		Type:        SignalHealthDegraded,
		WorkspaceID: workspaceID,
		Severity:    sev,
		Metadata:    meta,
		DetectedAt:  now,
	}
}

func (s *Scanner) followupSignals(ctx context.Context, now time.Time, limit int, errCount *int) []Signal {
	if s.followups == nil {
		return nil
	}
	ids, err := s.followups.WorkspacesWithDueFollowups(ctx, now, limit)
	if err != nil {
		log.Printf("[operator.Scanner] failed to list due followup workspaces: %v", err)
		*errCount++
		return nil
	}
	signals := make([]Signal, 0, len(ids))
	for _, id := range ids {
		signals = append(signals, Signal{
			Type:        SignalFollowupDue,
			WorkspaceID: id,
			Severity:    SeverityLow,
			DetectedAt:  now,
		})
	}
	return signals
}

func (s *Scanner) webhookSignals(ctx context.Context, now time.Time, limit int, errCount *int) []Signal {
	if s.webhooks == nil {
		return nil
	}
	ids, err := s.webhooks.WorkspacesWithFailedWebhooks(ctx, limit)
	if err != nil {
		log.Printf("[operator.Scanner] failed to list failed webhook workspaces: %v", err)
		*errCount++
		return nil
	}
	signals := make([]Signal, 0, len(ids))
	for _, id := range ids {
		signals = append(signals, Signal{
			Type:        SignalWebhookFailed,
			WorkspaceID: id,
			Severity:    SeverityMedium,
			DetectedAt:  now,
		})
	}
	return signals
}
