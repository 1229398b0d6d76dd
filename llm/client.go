package llm

import (
	"context"
	"time"
)

// Client is the minimal reasoning capability consumed by agents.
// Implementations wrap a model endpoint; the deliberation core treats the
// call as opaque request/response text.
type Client interface {
	// Call sends a prompt and returns the raw completion text.
	Call(ctx context.Context, prompt string) (string, error)

	// Name returns the client's stable identifier.
	Name() string
}

// HealthStatus reports the result of a client liveness probe.
type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
}

// HealthChecker is implemented by clients that support liveness probes.
type HealthChecker interface {
	HealthCheck(ctx context.Context) (*HealthStatus, error)
}
