// Package httputil is the JSON plumbing for the operator API. Handlers
// return domain payloads (operator run results, workspace health reports,
// followup stats) unwrapped; only errors get the ErrorResponse envelope,
// with a stable code the dashboard can branch on.
package httputil
