package operator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/pilarlabs/studio-operator/internal/domain"
	"github.com/pilarlabs/studio-operator/internal/followup"
	"github.com/pilarlabs/studio-operator/internal/pkg/distlock"
)

const (
	lockPurpose    = "operator"
	lockTTL        = 5 * time.Minute
	lockRetries    = 1
	followupBudget = 25
)

// LockManager hands out per-tenant locks. *distlock.Manager satisfies it.
type LockManager interface {
	TenantLock(tenantID, purpose string, ttl time.Duration) distlock.Lock
}

// ActivityWriter appends audit rows.
type ActivityWriter interface {
	Append(ctx context.Context, entry *domain.ActivityEntry) error
}

// FollowupProcessor runs the followup loop for one workspace.
type FollowupProcessor interface {
	ProcessWorkspace(ctx context.Context, workspaceID string, limit int) (followup.Stats, error)
}

// ProvisioningRunner enqueues provisioning work.
type ProvisioningRunner interface {
	RunProvisioning(ctx context.Context, workspaceID, reason string) error
}

// WebhookRetrier redelivers failed webhook events.
type WebhookRetrier interface {
	RetryFailed(ctx context.Context, workspaceID string) error
}

// IntegrationProber re-probes integrations.
type IntegrationProber interface {
	Restart(ctx context.Context, workspaceID, name string) error
}

// Routines bundles the remediation implementations the executor dispatches to.
type Routines struct {
	Provisioning ProvisioningRunner
	Followups    FollowupProcessor
	Webhooks     WebhookRetrier
	Integrations IntegrationProber
}

// Executor runs remediation actions under per-tenant locks. A failing action
// is counted and the batch continues; a contended lock means another run owns
// the tenant, so the action is skipped without counting an error.
type Executor struct {
	locks    LockManager
	activity ActivityWriter
	routines Routines
	now      func() time.Time
}

// NewExecutor creates an action executor.
func NewExecutor(locks LockManager, activity ActivityWriter, routines Routines) *Executor {
	return &Executor{
		locks:    locks,
		activity: activity,
		routines: routines,
		now:      time.Now,
	}
}

// Execute runs each action in order and folds the outcomes into a Result.
func (e *Executor) Execute(ctx context.Context, actions []Action) Result {
	var res Result
	affected := make(map[string]bool)

	for i := range actions {
		action := &actions[i]
		executed, err := e.executeOne(ctx, action)
		if err != nil {
			log.Printf("[operator.Executor] action %s failed for workspace %s: %v", action.Type, action.WorkspaceID, err)
			res.Errors++
		}
		if !executed {
			// Contention is a skip; an acquire failure is only an error.
			// Neither dispatched anything.
			if err == nil {
				res.Skipped++
			}
			continue
		}
		res.ActionsExecuted++
		if !affected[action.WorkspaceID] {
			affected[action.WorkspaceID] = true
			res.TenantsAffected = append(res.TenantsAffected, action.WorkspaceID)
		}
	}
	return res
}

// executeOne returns executed=false when nothing was dispatched, either
// because the tenant lock was contended or because acquiring it failed.
func (e *Executor) executeOne(ctx context.Context, action *Action) (executed bool, err error) {
	lock := e.locks.TenantLock(action.WorkspaceID, lockPurpose, lockTTL)
	acquired, err := distlock.AcquireWithRetry(ctx, lock, lockRetries)
	if err != nil {
		return false, fmt.Errorf("lock acquire failed: %w", err)
	}
	if !acquired {
		log.Printf("[operator.Executor] workspace %s is locked, skipping %s", action.WorkspaceID, action.Type)
		return false, nil
	}
	defer func() {
		if relErr := lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			log.Printf("[operator.Executor] lock release failed for %s: %v", action.WorkspaceID, relErr)
		}
	}()

	// The lock TTL is the action-level timeout: a remediation that outlives
	// its lock must not keep mutating the tenant. Backends that carry a TTL
	// (Redis) report it; advisory locks fall back to the configured default.
	ttl := lockTTL
	if t, ok := lock.(interface{ TTL() time.Duration }); ok {
		ttl = t.TTL()
	}
	actionCtx, cancel := context.WithTimeout(ctx, ttl)
	defer cancel()

	err = e.dispatch(actionCtx, action)
	e.audit(ctx, action, err)
	return true, err
}

func (e *Executor) dispatch(ctx context.Context, action *Action) error {
	switch action.Type {
	case ActionRunProvisioning:
		if e.routines.Provisioning == nil {
			return fmt.Errorf("no provisioning routine configured")
		}
		return e.routines.Provisioning.RunProvisioning(ctx, action.WorkspaceID, action.Params["reason"])
	case ActionSendFollowup:
		if e.routines.Followups == nil {
			return fmt.Errorf("no followup routine configured")
		}
		_, err := e.routines.Followups.ProcessWorkspace(ctx, action.WorkspaceID, followupBudget)
		return err
	case ActionRetryWebhook:
		if e.routines.Webhooks == nil {
			return fmt.Errorf("no webhook routine configured")
		}
		return e.routines.Webhooks.RetryFailed(ctx, action.WorkspaceID)
	case ActionRestartIntegration:
		if e.routines.Integrations == nil {
			return fmt.Errorf("no integration routine configured")
		}
		return e.routines.Integrations.Restart(ctx, action.WorkspaceID, action.Params["integration"])
	default:
		return fmt.Errorf("unknown action type %q", action.Type)
	}
}

// audit appends an activity row for the action, win or lose.
func (e *Executor) audit(ctx context.Context, action *Action, actionErr error) {
	detail := map[string]string{"action": string(action.Type)}
	for k, v := range action.Params {
		detail[k] = v
	}
	if actionErr != nil {
		detail["error"] = actionErr.Error()
	}

	entry := &domain.ActivityEntry{
		ID:          uuid.NewString(),
		WorkspaceID: action.WorkspaceID,
		Kind:        activityKind(action.Type),
		Summary:     fmt.Sprintf("operator executed %s", action.Type),
		Success:     actionErr == nil,
		Detail:      detail,
		CreatedAt:   e.now(),
	}
	if err := e.activity.Append(ctx, entry); err != nil {
		log.Printf("[operator.Executor] failed to append audit row for %s: %v", action.WorkspaceID, err)
	}
}

func activityKind(t ActionType) domain.ActivityKind {
	switch t {
	case ActionRunProvisioning:
		return domain.ActivityProvisioningTriggered
	case ActionSendFollowup:
		return domain.ActivityFollowupSent
	case ActionRetryWebhook:
		return domain.ActivityWebhookRetried
	case ActionRestartIntegration:
		return domain.ActivityIntegrationRestarted
	default:
		return domain.ActivityOperatorAction
	}
}
