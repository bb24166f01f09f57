package engine

import (
	"context"
	"sync"

	"github.com/lattica-ai/chaincore/pkg/schema"
)

// CancelRegistry tracks one cancellation signal per in-flight execution.
// It is owned by a ChainExecutor instance, never global, so multiple engine
// instances (and tests) do not interfere with each other.
type CancelRegistry struct {
	mu   sync.Mutex
	runs map[string]*registeredRun
}

type registeredRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCancelRegistry creates an empty registry.
func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{runs: make(map[string]*registeredRun)}
}

// Register records a cancellation function for an execution and returns a
// done channel the owner must close via Release when the run finishes.
func (r *CancelRegistry) Register(executionID string, cancel context.CancelFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runs[executionID]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict,
			"execution %q is already registered", executionID)
	}
	r.runs[executionID] = &registeredRun{cancel: cancel, done: make(chan struct{})}
	return nil
}

// Cancel fires the cancellation signal for an execution. Returns false when
// the execution is not registered (already finished or never started here).
func (r *CancelRegistry) Cancel(executionID string) bool {
	r.mu.Lock()
	run, ok := r.runs[executionID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	run.cancel()
	return true
}

// Release removes an execution from the registry and closes its done channel.
// Safe to call once per Register.
func (r *CancelRegistry) Release(executionID string) {
	r.mu.Lock()
	run, ok := r.runs[executionID]
	if ok {
		delete(r.runs, executionID)
	}
	r.mu.Unlock()
	if ok {
		run.cancel()
		close(run.done)
	}
}

// Wait blocks until the execution's background loop releases it or the
// context expires. Returns immediately for unknown executions.
func (r *CancelRegistry) Wait(ctx context.Context, executionID string) error {
	r.mu.Lock()
	run, ok := r.runs[executionID]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-run.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running returns the ids of all in-flight executions.
func (r *CancelRegistry) Running() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.runs))
	for id := range r.runs {
		ids = append(ids, id)
	}
	return ids
}

// CancelAll fires every registered cancellation signal. Used on shutdown.
func (r *CancelRegistry) CancelAll() {
	r.mu.Lock()
	runs := make([]*registeredRun, 0, len(r.runs))
	for _, run := range r.runs {
		runs = append(runs, run)
	}
	r.mu.Unlock()
	for _, run := range runs {
		run.cancel()
	}
}
