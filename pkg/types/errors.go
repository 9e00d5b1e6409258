package types

import (
	"fmt"
	"strings"
)

// ConfigurationError reports required configuration keys that are missing
// or empty. Always carries the complete list, not just the first.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", strings.Join(e.Missing, ", "))
}

// FetchError indicates an image pull failed. Raised before any container
// lifecycle action, so no rollback is needed.
type FetchError struct {
	Image string
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to pull image %s: %v", e.Image, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// OrchestrationError indicates the stop or start phase failed after
// container mutation had already begun. The host holds a mix of stopped,
// running, and missing containers and needs tearing down.
type OrchestrationError struct {
	Phase   string // "stopping" or "starting"
	Service string
	Err     error
}

func (e *OrchestrationError) Error() string {
	return fmt.Sprintf("failed while %s %s: %v", e.Phase, e.Service, e.Err)
}

func (e *OrchestrationError) Unwrap() error {
	return e.Err
}

// OrchestrationTimeout indicates the release never reached the required
// healthy count within the polling ceiling.
type OrchestrationTimeout struct {
	Attempts  int
	Unhealthy []string // Services not healthy at the ceiling
}

func (e *OrchestrationTimeout) Error() string {
	return fmt.Sprintf("release not healthy after %d attempts (waiting on: %s)",
		e.Attempts, strings.Join(e.Unhealthy, ", "))
}

// HealthCheckError indicates an external probe failed after internal
// health had already passed.
type HealthCheckError struct {
	Probe string
	Err   error
}

func (e *HealthCheckError) Error() string {
	return fmt.Sprintf("external probe %s failed: %v", e.Probe, e.Err)
}

func (e *HealthCheckError) Unwrap() error {
	return e.Err
}
