package testutil

import (
	"context"

	"github.com/kbukum/dbfixture/component"
)

// TestComponent is a component whose state a test can wipe, capture and
// put back. Snapshot values are opaque and only meaningful to the
// component that produced them.
type TestComponent interface {
	component.Component

	Reset(ctx context.Context) error
	Snapshot(ctx context.Context) (any, error)
	Restore(ctx context.Context, snapshot any) error
}
