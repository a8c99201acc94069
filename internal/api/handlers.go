// Package api exposes the operator, health, and followup surfaces over HTTP.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pilarlabs/studio-operator/internal/domain"
	"github.com/pilarlabs/studio-operator/internal/followup"
	"github.com/pilarlabs/studio-operator/internal/health"
	"github.com/pilarlabs/studio-operator/internal/operator"
	"github.com/pilarlabs/studio-operator/internal/pkg/httputil"
)

// OperatorRunner triggers one remediation pass.
type OperatorRunner interface {
	RunOperator(ctx context.Context, opts operator.Options) (operator.Result, error)
}

// HealthReporter computes per-workspace health.
type HealthReporter interface {
	WorkspaceHealth(ctx context.Context, workspaceID string) health.Status
}

// FollowupRunner runs the followup loop.
type FollowupRunner interface {
	ProcessDue(ctx context.Context, limit int) (followup.Stats, error)
	ProcessWorkspace(ctx context.Context, workspaceID string, limit int) (followup.Stats, error)
}

// ActivityReader lists recent audit entries.
type ActivityReader interface {
	ListRecent(ctx context.Context, workspaceID string, limit int) ([]domain.ActivityEntry, error)
}

// Handlers holds the HTTP handlers and their collaborators.
type Handlers struct {
	operator  OperatorRunner
	health    HealthReporter
	followups FollowupRunner
	activity  ActivityReader
	batchSize int
}

// NewHandlers creates the API handlers. activity may be nil, which disables
// the activity endpoint.
func NewHandlers(op OperatorRunner, hr HealthReporter, fr FollowupRunner, activity ActivityReader, batchSize int) *Handlers {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Handlers{operator: op, health: hr, followups: fr, activity: activity, batchSize: batchSize}
}

// HandleRunOperator triggers one operator pass.
//
//	POST /api/operator/run
func (h *Handlers) HandleRunOperator(w http.ResponseWriter, r *http.Request) {
	var body struct {
		MaxSignals int `json:"max_signals"`
		MaxActions int `json:"max_actions"`
	}
	if !httputil.Decode(w, r, &body) {
		return
	}
	opts := operator.Options{MaxSignals: body.MaxSignals, MaxActions: body.MaxActions}

	res, err := h.operator.RunOperator(r.Context(), opts)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, res)
}

// HandleWorkspaceHealth returns the health report for one workspace. The
// report is always structured, even when every sub-check failed.
//
//	GET /api/workspaces/{id}/health
func (h *Handlers) HandleWorkspaceHealth(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		httputil.WorkspaceRequired(w)
		return
	}
	httputil.OK(w, h.health.WorkspaceHealth(r.Context(), id))
}

// HandleProcessFollowups runs the global followup loop.
//
//	POST /api/followups/process
func (h *Handlers) HandleProcessFollowups(w http.ResponseWriter, r *http.Request) {
	stats, err := h.followups.ProcessDue(r.Context(), h.limitParam(r))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, stats)
}

// HandleProcessWorkspaceFollowups runs the followup loop for one workspace.
//
//	POST /api/workspaces/{id}/followups/process
func (h *Handlers) HandleProcessWorkspaceFollowups(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		httputil.WorkspaceRequired(w)
		return
	}
	stats, err := h.followups.ProcessWorkspace(r.Context(), id, h.limitParam(r))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, stats)
}

// HandleWorkspaceActivity lists recent audit entries for a workspace.
//
//	GET /api/workspaces/{id}/activity
func (h *Handlers) HandleWorkspaceActivity(w http.ResponseWriter, r *http.Request) {
	if h.activity == nil {
		httputil.NotFound(w, "activity log not configured")
		return
	}
	id := chi.URLParam(r, "id")
	entries, err := h.activity.ListRecent(r.Context(), id, h.limitParam(r))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.ActivityEntry{}
	}
	httputil.OK(w, map[string]any{"entries": entries})
}

func (h *Handlers) limitParam(r *http.Request) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return h.batchSize
}
