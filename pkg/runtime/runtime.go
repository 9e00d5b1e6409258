package runtime

import (
	"context"
	"time"

	"github.com/newshub/stevedore/pkg/types"
)

// Runtime is the container runtime surface the deployment pipeline
// consumes. The production implementation talks to the Docker Engine API;
// tests substitute fakes.
type Runtime interface {
	// PullImage pulls an image reference from the registry
	PullImage(ctx context.Context, imageRef string) error

	// CreateContainer creates (but does not start) a container for the
	// service at the given release tag and returns its ID
	CreateContainer(ctx context.Context, spec *types.ServiceSpec, tag string) (string, error)

	// StartContainer starts a created container by name
	StartContainer(ctx context.Context, name string) error

	// StopContainer stops a running container, allowing the grace period
	// before the engine force-kills it. Stopping an absent or already
	// stopped container is not an error.
	StopContainer(ctx context.Context, name string, grace time.Duration) error

	// RemoveContainer deletes a stopped container. Absent is not an error.
	RemoveContainer(ctx context.Context, name string) error

	// ContainerHealth returns the typed health state of a container as
	// reported by the engine's status and health check
	ContainerHealth(ctx context.Context, name string) (types.HealthStatus, error)

	// ContainerCurrent reports whether a container exists, is running,
	// and was created from the image currently resolved by imageRef.
	// Comparison is by image ID, so a re-pulled mutable tag (latest)
	// makes an old container non-current.
	ContainerCurrent(ctx context.Context, name, imageRef string) (bool, error)

	// IsRunning reports whether a container exists and is running
	IsRunning(ctx context.Context, name string) (bool, error)

	// ContainerLogs returns the last tail lines of a container's combined
	// stdout/stderr stream
	ContainerLogs(ctx context.Context, name string, tail int) (string, error)

	// Exec runs a command inside a running container and returns its
	// combined output. A non-zero exit code is returned as an error.
	Exec(ctx context.Context, name string, cmd []string) ([]byte, error)

	// PruneImages removes dangling images left behind by prior releases
	PruneImages(ctx context.Context) error
}
