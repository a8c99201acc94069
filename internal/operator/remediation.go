package operator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pilarlabs/studio-operator/internal/domain"
	"github.com/pilarlabs/studio-operator/internal/integrations"
	"github.com/pilarlabs/studio-operator/internal/pkg/httpretry"
)

// ProvisioningJobStore is the persistence surface the provisioner needs.
type ProvisioningJobStore interface {
	ActiveJob(ctx context.Context, workspaceID string) (*domain.ProvisioningJob, error)
	CreateJob(ctx context.Context, job *domain.ProvisioningJob) error
}

// Provisioner enqueues provisioning jobs. Enqueueing is idempotent: a
// workspace with a queued or running job never gets a second one.
type Provisioner struct {
	jobs ProvisioningJobStore
}

// NewProvisioner creates a provisioner over the given job store.
func NewProvisioner(jobs ProvisioningJobStore) *Provisioner {
	return &Provisioner{jobs: jobs}
}

// RunProvisioning enqueues a provisioning job for the workspace unless one is
// already active.
func (p *Provisioner) RunProvisioning(ctx context.Context, workspaceID, reason string) error {
	active, err := p.jobs.ActiveJob(ctx, workspaceID)
	if err != nil {
		return fmt.Errorf("failed to look up active job: %w", err)
	}
	if active != nil {
		log.Printf("[operator.Provisioner] workspace %s already has active job %s, skipping", workspaceID, active.ID)
		return nil
	}

	job := &domain.ProvisioningJob{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		Status:      domain.ProvisioningQueued,
		Reason:      reason,
		CreatedAt:   time.Now(),
	}
	if err := p.jobs.CreateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to enqueue provisioning job: %w", err)
	}
	log.Printf("[operator.Provisioner] enqueued job %s for workspace %s (reason=%s)", job.ID, workspaceID, reason)
	return nil
}

// WebhookStore is the persistence surface webhook redelivery needs.
type WebhookStore interface {
	ListFailed(ctx context.Context, workspaceID string, limit int) ([]domain.WebhookEvent, error)
	MarkDelivered(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, reason string) error
}

// WebhookRedeliverer re-posts failed webhook events to their target URLs.
type WebhookRedeliverer struct {
	store  WebhookStore
	client *httpretry.RetryClient
	limit  int
}

// NewWebhookRedeliverer creates a redeliverer that retries up to limit failed
// events per invocation.
func NewWebhookRedeliverer(store WebhookStore, client *httpretry.RetryClient, limit int) *WebhookRedeliverer {
	if limit <= 0 {
		limit = 10
	}
	return &WebhookRedeliverer{store: store, client: client, limit: limit}
}

// RetryFailed re-delivers the workspace's failed webhook events. A delivery
// failure is recorded on the row and does not stop the rest of the batch; the
// routine errors only when every attempted delivery failed.
func (w *WebhookRedeliverer) RetryFailed(ctx context.Context, workspaceID string) error {
	events, err := w.store.ListFailed(ctx, workspaceID, w.limit)
	if err != nil {
		return fmt.Errorf("failed to list failed webhooks: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	delivered := 0
	for i := range events {
		ev := &events[i]
		if err := w.deliver(ctx, ev); err != nil {
			log.Printf("[operator.WebhookRedeliverer] redelivery failed event=%s: %v", ev.ID, err)
			if markErr := w.store.MarkFailed(ctx, ev.ID, err.Error()); markErr != nil {
				log.Printf("[operator.WebhookRedeliverer] failed to record failure for %s: %v", ev.ID, markErr)
			}
			continue
		}
		delivered++
		if err := w.store.MarkDelivered(ctx, ev.ID); err != nil {
			log.Printf("[operator.WebhookRedeliverer] failed to mark %s delivered: %v", ev.ID, err)
		}
	}

	if delivered == 0 {
		return fmt.Errorf("all %d webhook redeliveries failed", len(events))
	}
	return nil
}

func (w *WebhookRedeliverer) deliver(ctx context.Context, ev *domain.WebhookEvent) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ev.TargetURL, bytes.NewReader(ev.Payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Pilar-Event", ev.EventType)
	req.Header.Set("X-Pilar-Delivery", ev.ID)

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook target returned status %d", resp.StatusCode)
	}
	return nil
}

// IntegrationRestarter re-probes an integration after trouble. A healthy
// probe clears the condition; a failing probe surfaces as an error for the
// executor to count.
type IntegrationRestarter struct {
	adapters map[string]integrations.Adapter
}

// NewIntegrationRestarter creates a restarter over the given adapters.
func NewIntegrationRestarter(adapters []integrations.Adapter) *IntegrationRestarter {
	m := make(map[string]integrations.Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Name()] = a
	}
	return &IntegrationRestarter{adapters: m}
}

// Restart re-probes the named integration for the workspace. An empty name
// re-probes all of them.
func (r *IntegrationRestarter) Restart(ctx context.Context, workspaceID, name string) error {
	if name != "" {
		adapter, ok := r.adapters[name]
		if !ok {
			return fmt.Errorf("unknown integration %q", name)
		}
		return r.probe(ctx, adapter, workspaceID)
	}

	for _, adapter := range r.adapters {
		if err := r.probe(ctx, adapter, workspaceID); err != nil {
			return err
		}
	}
	return nil
}

func (r *IntegrationRestarter) probe(ctx context.Context, adapter integrations.Adapter, workspaceID string) error {
	res := adapter.GetStatus(ctx, workspaceID)
	if !res.OK {
		return fmt.Errorf("%s still failing after restart: %s", adapter.Name(), res.Error)
	}
	log.Printf("[operator.IntegrationRestarter] %s probe ok for workspace %s (active=%t)", adapter.Name(), workspaceID, res.Active)
	return nil
}
