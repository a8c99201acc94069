// Package integrations holds the narrow contracts the remediation core uses
// to talk to third-party providers, plus thin HTTP adapters for each.
//
// Adapters follow one rule: GetStatus never returns a Go error. Failures are
// reported inside the StatusResult so health aggregation can treat a broken
// provider as data, not as a crash.
package integrations

import "context"

// Collaborator names used for circuit-breaker keys and health maps.
const (
	NameTelephony = "twilio"
	NameMessaging = "whatsapp"
	NameEmail     = "ses"
)

// StatusResult is the outcome of one integration status probe.
type StatusResult struct {
	OK      bool   `json:"ok"`
	Active  bool   `json:"active"`
	Details string `json:"details,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Adapter is the minimal surface every integration exposes to the core.
type Adapter interface {
	// Name returns the stable collaborator name (used in breaker keys).
	Name() string
	// GetStatus probes the provider for one tenant. It must never panic and
	// never return an error: failures come back as OK=false with Error set.
	GetStatus(ctx context.Context, tenantID string) StatusResult
}

// SendResult is the outcome of one outbound channel send.
type SendResult struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
}

func failure(err error) StatusResult {
	return StatusResult{OK: false, Error: err.Error()}
}
