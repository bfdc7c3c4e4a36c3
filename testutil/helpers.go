package testutil

import (
	"context"
	"testing"

	"github.com/kbukum/dbfixture/component"
)

// CleanupFunc stops whatever Setup started.
type CleanupFunc func() error

// Setup starts c and returns the function that stops it.
func Setup(ctx context.Context, c TestComponent) (CleanupFunc, error) {
	if err := c.Start(ctx); err != nil {
		return nil, err
	}
	return func() error { return c.Stop(ctx) }, nil
}

// THelper runs component lifecycle steps against a testing.TB, failing
// the test on any error.
type THelper struct {
	t   testing.TB
	ctx context.Context
}

// T wraps t. Components set up through it are stopped by t.Cleanup.
func T(t testing.TB) *THelper {
	return &THelper{t: t, ctx: t.Context()}
}

// WithContext replaces the context passed to the component.
func (h *THelper) WithContext(ctx context.Context) *THelper {
	h.ctx = ctx
	return h
}

func (h *THelper) must(step string, c TestComponent, err error) {
	h.t.Helper()
	if err != nil {
		h.t.Fatalf("%s %s: %v", step, c.Name(), err)
	}
}

// Setup starts c and stops it when the test ends.
func (h *THelper) Setup(c TestComponent) {
	h.t.Helper()
	h.must("start", c, c.Start(h.ctx))
	if d := component.Describe(c); d.Details != "" {
		h.t.Logf("started %s: %s", d.Name, d.Details)
	}
	// t.Context is already canceled when cleanups run.
	stopCtx := context.WithoutCancel(h.ctx)
	h.t.Cleanup(func() {
		if err := c.Stop(stopCtx); err != nil {
			h.t.Errorf("stop %s: %v", c.Name(), err)
		}
	})
}

// Reset wipes c back to its initial state.
func (h *THelper) Reset(c TestComponent) {
	h.t.Helper()
	h.must("reset", c, c.Reset(h.ctx))
}

// Snapshot captures the state of c.
func (h *THelper) Snapshot(c TestComponent) any {
	h.t.Helper()
	snap, err := c.Snapshot(h.ctx)
	h.must("snapshot", c, err)
	return snap
}

// Restore puts c back into a captured state.
func (h *THelper) Restore(c TestComponent, snapshot any) {
	h.t.Helper()
	h.must("restore", c, c.Restore(h.ctx, snapshot))
}
