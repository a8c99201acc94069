package operator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/pilarlabs/studio-operator/internal/domain"
	"github.com/pilarlabs/studio-operator/internal/integrations"
	"github.com/pilarlabs/studio-operator/internal/pkg/httpretry"
)

type fakeJobStore struct {
	active  *domain.ProvisioningJob
	created []domain.ProvisioningJob
}

func (f *fakeJobStore) ActiveJob(ctx context.Context, workspaceID string) (*domain.ProvisioningJob, error) {
	return f.active, nil
}

func (f *fakeJobStore) CreateJob(ctx context.Context, job *domain.ProvisioningJob) error {
	f.created = append(f.created, *job)
	return nil
}

func TestRunProvisioning_EnqueuesJob(t *testing.T) {
	store := &fakeJobStore{}
	p := NewProvisioner(store)

	if err := p.RunProvisioning(context.Background(), "ws_1", "health_degraded"); err != nil {
		t.Fatalf("RunProvisioning: %v", err)
	}

	if len(store.created) != 1 {
		t.Fatalf("created jobs = %d, want 1", len(store.created))
	}
	job := store.created[0]
	if job.WorkspaceID != "ws_1" || job.Status != domain.ProvisioningQueued || job.Reason != "health_degraded" {
		t.Errorf("job = %+v", job)
	}
	if job.ID == "" {
		t.Error("job id not assigned")
	}
}

func TestRunProvisioning_IdempotentWhileJobActive(t *testing.T) {
	store := &fakeJobStore{active: &domain.ProvisioningJob{ID: "job_1", Status: domain.ProvisioningInProgress}}
	p := NewProvisioner(store)

	if err := p.RunProvisioning(context.Background(), "ws_1", "retry_failed_job"); err != nil {
		t.Fatalf("RunProvisioning: %v", err)
	}
	if len(store.created) != 0 {
		t.Fatalf("created jobs = %d, want 0 while another job is active", len(store.created))
	}
}

type fakeWebhookStore struct {
	failed    []domain.WebhookEvent
	delivered []string
	refailed  map[string]string
}

func (f *fakeWebhookStore) ListFailed(ctx context.Context, workspaceID string, limit int) ([]domain.WebhookEvent, error) {
	return f.failed, nil
}

func (f *fakeWebhookStore) MarkDelivered(ctx context.Context, id string) error {
	f.delivered = append(f.delivered, id)
	return nil
}

func (f *fakeWebhookStore) MarkFailed(ctx context.Context, id, reason string) error {
	if f.refailed == nil {
		f.refailed = make(map[string]string)
	}
	f.refailed[id] = reason
	return nil
}

func TestRetryFailed_RedeliversAndMarks(t *testing.T) {
	var gotEvent atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEvent.Store(r.Header.Get("X-Pilar-Event"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := &fakeWebhookStore{failed: []domain.WebhookEvent{{
		ID: "evt_1", WorkspaceID: "ws_1", EventType: "lead.created",
		TargetURL: srv.URL, Payload: []byte(`{"lead_id":"lead_1"}`),
		Status: domain.WebhookFailed,
	}}}
	w := NewWebhookRedeliverer(store, httpretry.NewRetryClient(srv.Client(), 1), 10)

	if err := w.RetryFailed(context.Background(), "ws_1"); err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	if len(store.delivered) != 1 || store.delivered[0] != "evt_1" {
		t.Fatalf("delivered = %v, want [evt_1]", store.delivered)
	}
	if gotEvent.Load() != "lead.created" {
		t.Errorf("event header = %v, want lead.created", gotEvent.Load())
	}
}

func TestRetryFailed_AllFailuresSurface(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	store := &fakeWebhookStore{failed: []domain.WebhookEvent{{
		ID: "evt_1", TargetURL: srv.URL, Payload: []byte(`{}`), Status: domain.WebhookFailed,
	}}}
	w := NewWebhookRedeliverer(store, httpretry.NewRetryClient(srv.Client(), 0), 10)

	if err := w.RetryFailed(context.Background(), "ws_1"); err == nil {
		t.Fatal("expected error when every redelivery fails")
	}
	if len(store.delivered) != 0 {
		t.Errorf("delivered = %v, want none", store.delivered)
	}
	if store.refailed["evt_1"] == "" {
		t.Errorf("failure not recorded on the event row: %v", store.refailed)
	}
}

func TestRetryFailed_NoFailedEventsIsNoop(t *testing.T) {
	w := NewWebhookRedeliverer(&fakeWebhookStore{}, httpretry.NewRetryClient(http.DefaultClient, 0), 10)
	if err := w.RetryFailed(context.Background(), "ws_1"); err != nil {
		t.Fatalf("RetryFailed on empty set: %v", err)
	}
}

type probeAdapter struct {
	name   string
	result integrations.StatusResult
	calls  int
}

func (p *probeAdapter) Name() string { return p.name }

func (p *probeAdapter) GetStatus(ctx context.Context, tenantID string) integrations.StatusResult {
	p.calls++
	return p.result
}

func TestRestart_ProbesNamedIntegration(t *testing.T) {
	twilio := &probeAdapter{name: "twilio", result: integrations.StatusResult{OK: true, Active: true}}
	ses := &probeAdapter{name: "ses", result: integrations.StatusResult{OK: true, Active: true}}
	r := NewIntegrationRestarter([]integrations.Adapter{twilio, ses})

	if err := r.Restart(context.Background(), "ws_1", "twilio"); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if twilio.calls != 1 || ses.calls != 0 {
		t.Errorf("probe calls twilio=%d ses=%d, want only twilio", twilio.calls, ses.calls)
	}
}

func TestRestart_StillFailingProbeErrors(t *testing.T) {
	twilio := &probeAdapter{name: "twilio", result: integrations.StatusResult{OK: false, Error: "auth rejected"}}
	r := NewIntegrationRestarter([]integrations.Adapter{twilio})

	if err := r.Restart(context.Background(), "ws_1", "twilio"); err == nil {
		t.Fatal("expected error for a still-failing integration")
	}
}

func TestRestart_UnknownIntegration(t *testing.T) {
	r := NewIntegrationRestarter(nil)
	if err := r.Restart(context.Background(), "ws_1", "calendar"); err == nil {
		t.Fatal("expected error for unknown integration name")
	}
}
