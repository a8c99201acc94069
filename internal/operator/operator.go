package operator

import (
	"context"
	"log"
	"sync"
	"time"
)

// Metrics accumulates counters across operator runs. It is injectable and
// resettable so tests and replicas can reason about their own numbers.
type Metrics struct {
	mu               sync.Mutex
	Runs             int `json:"runs"`
	SignalsProcessed int `json:"signals_processed"`
	ActionsExecuted  int `json:"actions_executed"`
	Errors           int `json:"errors"`
}

func (m *Metrics) record(res Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Runs++
	m.SignalsProcessed += res.SignalsProcessed
	m.ActionsExecuted += res.ActionsExecuted
	m.Errors += res.Errors
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Metrics{
		Runs:             m.Runs,
		SignalsProcessed: m.SignalsProcessed,
		ActionsExecuted:  m.ActionsExecuted,
		Errors:           m.Errors,
	}
}

// Reset zeroes the counters.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Runs, m.SignalsProcessed, m.ActionsExecuted, m.Errors = 0, 0, 0, 0
}

// Operator wires the scanner, the policy, and the executor into one control
// loop entry point.
type Operator struct {
	scanner  *Scanner
	executor *Executor
	metrics  *Metrics
}

// New creates the operator service. metrics may be nil.
func New(scanner *Scanner, executor *Executor, metrics *Metrics) *Operator {
	if metrics == nil {
		metrics = &Metrics{}
	}
	return &Operator{scanner: scanner, executor: executor, metrics: metrics}
}

// Metrics returns the operator's counters.
func (o *Operator) Metrics() *Metrics {
	return o.metrics
}

// RunOperator executes one bounded remediation pass: scan, decide, execute.
func (o *Operator) RunOperator(ctx context.Context, opts Options) (Result, error) {
	opts = opts.withDefaults()
	start := time.Now()

	signals, scanErrs := o.scanner.Scan(ctx, opts.MaxSignals)

	actions := DecideActions(signals)
	if len(actions) > opts.MaxActions {
		actions = actions[:opts.MaxActions]
	}

	res := o.executor.Execute(ctx, actions)
	res.SignalsProcessed = len(signals)
	res.Errors += scanErrs

	o.metrics.record(res)
	log.Printf("[operator] run done in %s: signals=%d actions=%d skipped=%d errors=%d tenants=%d",
		time.Since(start).Round(time.Millisecond), res.SignalsProcessed, res.ActionsExecuted, res.Skipped, res.Errors, len(res.TenantsAffected))
	return res, nil
}
