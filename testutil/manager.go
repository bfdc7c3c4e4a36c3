package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Manager drives several test components as one. Components start in the
// order they were added and stop in reverse.
type Manager struct {
	ctx   context.Context
	mu    sync.RWMutex
	comps []TestComponent
}

// NewManager returns an empty Manager bound to ctx.
func NewManager(ctx context.Context) *Manager {
	return &Manager{ctx: ctx}
}

// Add appends c.
func (m *Manager) Add(c TestComponent) {
	m.mu.Lock()
	m.comps = append(m.comps, c)
	m.mu.Unlock()
}

// Get returns the component called name, or nil.
func (m *Manager) Get(name string) TestComponent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.comps {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

// each applies fn in registration order and stops at the first error.
func (m *Manager) each(step string, fn func(TestComponent) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.comps {
		if err := fn(c); err != nil {
			return fmt.Errorf("%s %s: %w", step, c.Name(), err)
		}
	}
	return nil
}

// StartAll starts every component, stopping at the first failure.
func (m *Manager) StartAll() error {
	return m.each("start", func(c TestComponent) error { return c.Start(m.ctx) })
}

// StopAll stops every component in reverse order. Failures do not stop
// the sweep; they are returned joined.
func (m *Manager) StopAll() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var errs []error
	for i := len(m.comps) - 1; i >= 0; i-- {
		if err := m.comps[i].Stop(m.ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", m.comps[i].Name(), err))
		}
	}
	return errors.Join(errs...)
}

// ResetAll wipes every component.
func (m *Manager) ResetAll() error {
	return m.each("reset", func(c TestComponent) error { return c.Reset(m.ctx) })
}

// SnapshotAll captures every component, keyed by name.
func (m *Manager) SnapshotAll() (map[string]any, error) {
	snaps := make(map[string]any)
	err := m.each("snapshot", func(c TestComponent) error {
		snap, err := c.Snapshot(m.ctx)
		if err == nil {
			snaps[c.Name()] = snap
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return snaps, nil
}

// RestoreAll restores from a SnapshotAll result. Components missing from
// snaps are left alone.
func (m *Manager) RestoreAll(snaps map[string]any) error {
	return m.each("restore", func(c TestComponent) error {
		snap, ok := snaps[c.Name()]
		if !ok {
			return nil
		}
		return c.Restore(m.ctx, snap)
	})
}
