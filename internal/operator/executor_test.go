package operator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pilarlabs/studio-operator/internal/domain"
	"github.com/pilarlabs/studio-operator/internal/followup"
	"github.com/pilarlabs/studio-operator/internal/pkg/distlock"
)

type fakeLock struct {
	acquired   bool
	held       *bool
	released   bool
	acquireErr error
}

func (f *fakeLock) Acquire(ctx context.Context) (bool, error) {
	if f.acquireErr != nil {
		return false, f.acquireErr
	}
	if f.held != nil && *f.held {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(ctx context.Context) error {
	f.released = true
	return nil
}

type fakeLockManager struct {
	contended     map[string]bool
	acquireErrFor map[string]error
	locks         []*fakeLock
}

func (f *fakeLockManager) TenantLock(tenantID, purpose string, ttl time.Duration) distlock.Lock {
	held := f.contended[tenantID]
	l := &fakeLock{held: &held, acquireErr: f.acquireErrFor[tenantID]}
	f.locks = append(f.locks, l)
	return l
}

type fakeActivity struct {
	entries []domain.ActivityEntry
}

func (f *fakeActivity) Append(ctx context.Context, entry *domain.ActivityEntry) error {
	f.entries = append(f.entries, *entry)
	return nil
}

type fakeProvisioningRunner struct {
	calls  []string
	errFor map[string]error
}

func (f *fakeProvisioningRunner) RunProvisioning(ctx context.Context, workspaceID, reason string) error {
	f.calls = append(f.calls, workspaceID+":"+reason)
	return f.errFor[workspaceID]
}

type fakeFollowupProcessor struct {
	calls int
	err   error
}

func (f *fakeFollowupProcessor) ProcessWorkspace(ctx context.Context, workspaceID string, limit int) (followup.Stats, error) {
	f.calls++
	return followup.Stats{Processed: 1, Sent: 1}, f.err
}

func newTestExecutor(locks *fakeLockManager, activity *fakeActivity, prov *fakeProvisioningRunner) *Executor {
	return NewExecutor(locks, activity, Routines{Provisioning: prov})
}

func TestExecute_DispatchesAndAudits(t *testing.T) {
	locks := &fakeLockManager{}
	activity := &fakeActivity{}
	prov := &fakeProvisioningRunner{}
	ex := newTestExecutor(locks, activity, prov)

	res := ex.Execute(context.Background(), []Action{
		{Type: ActionRunProvisioning, WorkspaceID: "ws_1", Params: map[string]string{"reason": "health_degraded"}},
	})

	if res.ActionsExecuted != 1 || res.Errors != 0 {
		t.Fatalf("result = %+v, want 1 executed and no errors", res)
	}
	if len(prov.calls) != 1 || prov.calls[0] != "ws_1:health_degraded" {
		t.Fatalf("provisioning calls = %v", prov.calls)
	}
	if len(res.TenantsAffected) != 1 || res.TenantsAffected[0] != "ws_1" {
		t.Fatalf("tenants affected = %v, want [ws_1]", res.TenantsAffected)
	}
	if len(activity.entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(activity.entries))
	}
	entry := activity.entries[0]
	if !entry.Success || entry.Kind != domain.ActivityProvisioningTriggered {
		t.Errorf("audit entry = %+v, want successful provisioning_triggered", entry)
	}
	if len(locks.locks) != 1 || !locks.locks[0].released {
		t.Errorf("lock not released: %+v", locks.locks)
	}
}

type ttlLock struct {
	fakeLock
	ttl time.Duration
}

func (l *ttlLock) TTL() time.Duration { return l.ttl }

type ttlLockManager struct {
	ttl time.Duration
}

func (m *ttlLockManager) TenantLock(tenantID, purpose string, ttl time.Duration) distlock.Lock {
	return &ttlLock{ttl: m.ttl}
}

type deadlineCapturingRunner struct {
	deadline time.Time
	ok       bool
}

func (r *deadlineCapturingRunner) RunProvisioning(ctx context.Context, workspaceID, reason string) error {
	r.deadline, r.ok = ctx.Deadline()
	return nil
}

func TestExecute_DeadlineComesFromLockTTL(t *testing.T) {
	wantTTL := 90 * time.Second
	runner := &deadlineCapturingRunner{}
	ex := NewExecutor(&ttlLockManager{ttl: wantTTL}, &fakeActivity{}, Routines{Provisioning: runner})

	ex.Execute(context.Background(), []Action{
		{Type: ActionRunProvisioning, WorkspaceID: "ws_1", Params: map[string]string{"reason": "r"}},
	})

	if !runner.ok {
		t.Fatal("remediation ran without a deadline")
	}
	until := time.Until(runner.deadline)
	if until <= wantTTL-5*time.Second || until > wantTTL {
		t.Fatalf("deadline %s out, want about the lock's %s TTL", until, wantTTL)
	}
}

func TestExecute_AcquireFailureIsErrorNotExecution(t *testing.T) {
	locks := &fakeLockManager{acquireErrFor: map[string]error{
		"ws_broken": errors.New("redis: connection refused"),
	}}
	activity := &fakeActivity{}
	prov := &fakeProvisioningRunner{}
	ex := newTestExecutor(locks, activity, prov)

	res := ex.Execute(context.Background(), []Action{
		{Type: ActionRunProvisioning, WorkspaceID: "ws_broken", Params: map[string]string{"reason": "r"}},
		{Type: ActionRunProvisioning, WorkspaceID: "ws_ok", Params: map[string]string{"reason": "r"}},
	})

	if res.Errors != 1 {
		t.Fatalf("errors = %d, want 1", res.Errors)
	}
	if res.ActionsExecuted != 1 {
		t.Fatalf("executed = %d, want only ws_ok", res.ActionsExecuted)
	}
	if res.Skipped != 0 {
		t.Fatalf("skipped = %d, want 0; an acquire failure is not a contention skip", res.Skipped)
	}
	if len(res.TenantsAffected) != 1 || res.TenantsAffected[0] != "ws_ok" {
		t.Fatalf("tenants affected = %v, want [ws_ok]", res.TenantsAffected)
	}
	// Nothing was dispatched for the broken tenant, so nothing is audited.
	if len(activity.entries) != 1 || activity.entries[0].WorkspaceID != "ws_ok" {
		t.Fatalf("audit entries = %+v, want one row for ws_ok", activity.entries)
	}
	if len(prov.calls) != 1 || prov.calls[0] != "ws_ok:r" {
		t.Fatalf("provisioning calls = %v", prov.calls)
	}
}

func TestExecute_ContendedLockSkipsWithoutError(t *testing.T) {
	locks := &fakeLockManager{contended: map[string]bool{"ws_busy": true}}
	activity := &fakeActivity{}
	prov := &fakeProvisioningRunner{}
	ex := newTestExecutor(locks, activity, prov)

	res := ex.Execute(context.Background(), []Action{
		{Type: ActionRunProvisioning, WorkspaceID: "ws_busy", Params: map[string]string{"reason": "r"}},
		{Type: ActionRunProvisioning, WorkspaceID: "ws_free", Params: map[string]string{"reason": "r"}},
	})

	if res.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", res.Skipped)
	}
	if res.Errors != 0 {
		t.Errorf("errors = %d, want 0 (contention is not an error)", res.Errors)
	}
	if res.ActionsExecuted != 1 {
		t.Errorf("executed = %d, want 1", res.ActionsExecuted)
	}
	if len(prov.calls) != 1 {
		t.Errorf("provisioning calls = %v, want only ws_free", prov.calls)
	}
}

func TestExecute_FailureCountedAndAudited(t *testing.T) {
	locks := &fakeLockManager{}
	activity := &fakeActivity{}
	prov := &fakeProvisioningRunner{errFor: map[string]error{"ws_bad": errors.New("job insert failed")}}
	ex := newTestExecutor(locks, activity, prov)

	res := ex.Execute(context.Background(), []Action{
		{Type: ActionRunProvisioning, WorkspaceID: "ws_bad", Params: map[string]string{"reason": "r"}},
		{Type: ActionRunProvisioning, WorkspaceID: "ws_ok", Params: map[string]string{"reason": "r"}},
	})

	if res.Errors != 1 {
		t.Fatalf("errors = %d, want 1", res.Errors)
	}
	if res.ActionsExecuted != 2 {
		t.Fatalf("executed = %d, want 2 (failure does not abort the batch)", res.ActionsExecuted)
	}
	if len(activity.entries) != 2 {
		t.Fatalf("audit entries = %d, want one per dispatched action", len(activity.entries))
	}
	failed := activity.entries[0]
	if failed.Success {
		t.Errorf("failed action audited as success: %+v", failed)
	}
	if failed.Detail["error"] == "" {
		t.Errorf("failure audit missing error detail: %v", failed.Detail)
	}
	// Lock released even for the failed action.
	for i, l := range locks.locks {
		if !l.released {
			t.Errorf("lock %d not released", i)
		}
	}
}

func TestExecute_SendFollowupDispatch(t *testing.T) {
	locks := &fakeLockManager{}
	activity := &fakeActivity{}
	fp := &fakeFollowupProcessor{}
	ex := NewExecutor(locks, activity, Routines{Followups: fp})

	res := ex.Execute(context.Background(), []Action{{Type: ActionSendFollowup, WorkspaceID: "ws_1"}})

	if fp.calls != 1 {
		t.Fatalf("followup processor calls = %d, want 1", fp.calls)
	}
	if res.ActionsExecuted != 1 {
		t.Fatalf("result = %+v", res)
	}
	if activity.entries[0].Kind != domain.ActivityFollowupSent {
		t.Errorf("audit kind = %s, want followup_sent", activity.entries[0].Kind)
	}
}

func TestExecute_UnconfiguredRoutineIsError(t *testing.T) {
	ex := NewExecutor(&fakeLockManager{}, &fakeActivity{}, Routines{})

	res := ex.Execute(context.Background(), []Action{{Type: ActionRetryWebhook, WorkspaceID: "ws_1"}})

	if res.Errors != 1 || res.ActionsExecuted != 1 {
		t.Fatalf("result = %+v, want counted error", res)
	}
}

func TestExecute_DedupesTenantsAffected(t *testing.T) {
	ex := newTestExecutor(&fakeLockManager{}, &fakeActivity{}, &fakeProvisioningRunner{})

	res := ex.Execute(context.Background(), []Action{
		{Type: ActionRunProvisioning, WorkspaceID: "ws_1", Params: map[string]string{"reason": "a"}},
		{Type: ActionRunProvisioning, WorkspaceID: "ws_1", Params: map[string]string{"reason": "b"}},
	})

	if len(res.TenantsAffected) != 1 {
		t.Fatalf("tenants affected = %v, want deduped [ws_1]", res.TenantsAffected)
	}
}
