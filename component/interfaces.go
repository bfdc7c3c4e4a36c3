package component

import "context"

// HealthStatus is the coarse state reported by Health.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// Health is a component's answer to a health probe.
type Health struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// Healthy reports whether the status is StatusHealthy.
func (h Health) Healthy() bool { return h.Status == StatusHealthy }

// Component is a piece of test infrastructure with a start/stop lifecycle,
// such as the throwaway database behind a session.
type Component interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health(ctx context.Context) Health
}

// Description summarizes a component for test logs.
type Description struct {
	Name    string
	Type    string // "database", "session", ...
	Details string // e.g. "sqlite wal fk=on pool=4/4"
}

// Describable is implemented by components that can describe themselves.
type Describable interface {
	Describe() Description
}

// Describe returns c's self description, falling back to its name. The
// Name field is always filled.
func Describe(c Component) Description {
	var d Description
	if dc, ok := c.(Describable); ok {
		d = dc.Describe()
	}
	if d.Name == "" {
		d.Name = c.Name()
	}
	return d
}
