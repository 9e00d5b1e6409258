package types

import (
	"fmt"
	"time"
)

// ServiceRole identifies the function of a service within the fleet
type ServiceRole string

const (
	RoleDatabase ServiceRole = "database"
	RoleBackend  ServiceRole = "backend"
	RoleFrontend ServiceRole = "frontend"
)

// ServiceSpec is the declarative description of one deployable service
type ServiceSpec struct {
	Name        string            `yaml:"name" json:"name"`
	Role        ServiceRole       `yaml:"role" json:"role"`
	Image       string            `yaml:"image" json:"image"`
	DependsOn   string            `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Env         map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Ports       []*PortMapping    `yaml:"ports,omitempty" json:"ports,omitempty"`
	Volumes     []*VolumeMount    `yaml:"volumes,omitempty" json:"volumes,omitempty"`
	HealthCheck *HealthCheck      `yaml:"healthcheck,omitempty" json:"healthcheck,omitempty"`
	Probe       *Probe            `yaml:"probe,omitempty" json:"probe,omitempty"`
	StopTimeout int               `yaml:"stop_timeout,omitempty" json:"stop_timeout,omitempty"` // Seconds before force kill (default: 30)
}

// DefaultTag is used when no release tag is supplied
const DefaultTag = "latest"

// ImageRef resolves the service's image reference against a release tag
func (s *ServiceSpec) ImageRef(tag string) string {
	if tag == "" {
		tag = DefaultTag
	}
	return fmt.Sprintf("%s:%s", s.Image, tag)
}

// PortMapping defines port exposure on the host
type PortMapping struct {
	ContainerPort int    `yaml:"container_port" json:"container_port"`
	HostPort      int    `yaml:"host_port" json:"host_port"`
	Protocol      string `yaml:"protocol,omitempty" json:"protocol,omitempty"` // "tcp" or "udp", default tcp
}

// VolumeMount defines a named volume mount point
type VolumeMount struct {
	Source   string `yaml:"source" json:"source"`
	Target   string `yaml:"target" json:"target"`
	ReadOnly bool   `yaml:"read_only,omitempty" json:"read_only,omitempty"`
}

// HealthCheck defines the container-internal health check
type HealthCheck struct {
	Type     HealthCheckType `yaml:"type" json:"type"`
	Endpoint string          `yaml:"endpoint,omitempty" json:"endpoint,omitempty"` // For http type
	Command  []string        `yaml:"command,omitempty" json:"command,omitempty"`   // For exec type
	Interval Duration        `yaml:"interval,omitempty" json:"interval,omitempty"`
	Timeout  Duration        `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Retries  int             `yaml:"retries,omitempty" json:"retries,omitempty"`
}

// HealthCheckType defines the type of health check
type HealthCheckType string

const (
	HealthCheckHTTP HealthCheckType = "http"
	HealthCheckExec HealthCheckType = "exec"
)

// Probe defines the externally observable health probe used by the
// verifier after promotion. Distinct from the container-internal check:
// it exercises the routed path a client would actually hit.
type Probe struct {
	Type    HealthCheckType `yaml:"type" json:"type"`
	URL     string          `yaml:"url,omitempty" json:"url,omitempty"`         // For http type
	Command []string        `yaml:"command,omitempty" json:"command,omitempty"` // For exec type, run inside the container

	// StatusField, when set for http probes, requires the response body to
	// be JSON carrying this non-empty field.
	StatusField string `yaml:"status_field,omitempty" json:"status_field,omitempty"`
}

// ReleaseDescriptor is one versioned set of services deployed together.
// Immutable after creation; built once per deployment invocation.
type ReleaseDescriptor struct {
	Tag             string         `json:"tag"`
	Services        []*ServiceSpec `json:"services"`
	RequiredHealthy int            `json:"required_healthy"`
	CreatedAt       time.Time      `json:"created_at"`
}

// NewRelease builds a ReleaseDescriptor from a service set, validating
// that service names are unique within the release.
func NewRelease(tag string, services []*ServiceSpec) (*ReleaseDescriptor, error) {
	if tag == "" {
		tag = DefaultTag
	}
	seen := make(map[string]bool, len(services))
	for _, svc := range services {
		if seen[svc.Name] {
			return nil, fmt.Errorf("duplicate service name in release: %s", svc.Name)
		}
		seen[svc.Name] = true
	}
	return &ReleaseDescriptor{
		Tag:             tag,
		Services:        services,
		RequiredHealthy: len(services),
		CreatedAt:       time.Now(),
	}, nil
}

// Service returns the spec with the given name, or nil
func (r *ReleaseDescriptor) Service(name string) *ServiceSpec {
	for _, svc := range r.Services {
		if svc.Name == name {
			return svc
		}
	}
	return nil
}

// ByRole returns the first spec with the given role, or nil
func (r *ReleaseDescriptor) ByRole(role ServiceRole) *ServiceSpec {
	for _, svc := range r.Services {
		if svc.Role == role {
			return svc
		}
	}
	return nil
}

// StartOrder returns services sorted so that dependencies come first.
// The fleet is small with at most one depends_on edge per service, so a
// repeated sweep is sufficient.
func (r *ReleaseDescriptor) StartOrder() []*ServiceSpec {
	ordered := make([]*ServiceSpec, 0, len(r.Services))
	placed := make(map[string]bool, len(r.Services))
	for len(ordered) < len(r.Services) {
		progress := false
		for _, svc := range r.Services {
			if placed[svc.Name] {
				continue
			}
			if svc.DependsOn == "" || placed[svc.DependsOn] {
				ordered = append(ordered, svc)
				placed[svc.Name] = true
				progress = true
			}
		}
		if !progress {
			// Dependency cycle or dangling reference; append the rest in
			// declaration order rather than spinning.
			for _, svc := range r.Services {
				if !placed[svc.Name] {
					ordered = append(ordered, svc)
					placed[svc.Name] = true
				}
			}
		}
	}
	return ordered
}

// StopOrder returns services in reverse start order
func (r *ReleaseDescriptor) StopOrder() []*ServiceSpec {
	ordered := r.StartOrder()
	reversed := make([]*ServiceSpec, len(ordered))
	for i, svc := range ordered {
		reversed[len(ordered)-1-i] = svc
	}
	return reversed
}

// HealthStatus tracks the externally queried health state of a service.
// Only the runtime's status query produces these values.
type HealthStatus string

const (
	HealthUnknown   HealthStatus = "unknown"
	HealthStarting  HealthStatus = "starting"
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// BackupRecord describes one archived database dump
type BackupRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // Service name the dump was taken from
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`
}

// Outcome is the terminal result of a deployment attempt
type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeFailure    Outcome = "failure"
	OutcomeRolledBack Outcome = "rolled-back"
)

// DeploymentAttempt is the audit record for one deployment invocation.
// Never mutated after completion.
type DeploymentAttempt struct {
	ID           string                  `json:"id"`
	Tag          string                  `json:"tag"`
	StartedAt    time.Time               `json:"started_at"`
	FinishedAt   time.Time               `json:"finished_at"`
	Outcome      Outcome                 `json:"outcome"`
	FailureStage string                  `json:"failure_stage,omitempty"`
	Health       map[string]HealthStatus `json:"health,omitempty"`
	LogExcerpt   string                  `json:"log_excerpt,omitempty"`
}
