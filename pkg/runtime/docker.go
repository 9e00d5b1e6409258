package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	apitypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"

	"github.com/newshub/stevedore/pkg/types"
)

// ManagedLabel marks containers created by stevedore
const ManagedLabel = "io.stevedore.managed"

// DockerRuntime implements Runtime against the Docker Engine API
type DockerRuntime struct {
	cli *client.Client
}

// NewDockerRuntime connects to the engine using the standard environment
// (DOCKER_HOST and friends), negotiating the API version with the daemon.
func NewDockerRuntime() (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to docker engine: %w", err)
	}
	return &DockerRuntime{cli: cli}, nil
}

// Close closes the engine client connection
func (r *DockerRuntime) Close() error {
	if r.cli != nil {
		return r.cli.Close()
	}
	return nil
}

// PullImage pulls an image reference from the registry
func (r *DockerRuntime) PullImage(ctx context.Context, imageRef string) error {
	rc, err := r.cli.ImagePull(ctx, imageRef, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", imageRef, err)
	}
	defer rc.Close()

	// The pull completes only once the progress stream is drained
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", imageRef, err)
	}
	return nil
}

// CreateContainer creates a container for the service at the given tag.
// The container is named after the service so a redeploy addresses the
// same fixed names each time.
func (r *DockerRuntime) CreateContainer(ctx context.Context, spec *types.ServiceSpec, tag string) (string, error) {
	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for _, p := range spec.Ports {
		proto := p.Protocol
		if proto == "" {
			proto = "tcp"
		}
		port := nat.Port(fmt.Sprintf("%d/%s", p.ContainerPort, proto))
		exposed[port] = struct{}{}
		bindings[port] = []nat.PortBinding{{
			HostIP:   "0.0.0.0",
			HostPort: strconv.Itoa(p.HostPort),
		}}
	}

	mounts := make([]mount.Mount, 0, len(spec.Volumes))
	for _, v := range spec.Volumes {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeVolume,
			Source:   v.Source,
			Target:   v.Target,
			ReadOnly: v.ReadOnly,
		})
	}

	cfg := &container.Config{
		Image:        spec.ImageRef(tag),
		Env:          envList(spec.Env),
		ExposedPorts: exposed,
		Healthcheck:  healthConfig(spec.HealthCheck),
		Labels: map[string]string{
			ManagedLabel:          "true",
			"io.stevedore.service": spec.Name,
			"io.stevedore.tag":     tag,
		},
	}
	hostCfg := &container.HostConfig{
		PortBindings: bindings,
		Mounts:       mounts,
	}

	resp, err := r.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container %s: %w", spec.Name, err)
	}
	return resp.ID, nil
}

// StartContainer starts a created container by name
func (r *DockerRuntime) StartContainer(ctx context.Context, name string) error {
	if err := r.cli.ContainerStart(ctx, name, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container %s: %w", name, err)
	}
	return nil
}

// StopContainer stops a container with the given grace period before the
// engine escalates to SIGKILL. Absent containers are a no-op.
func (r *DockerRuntime) StopContainer(ctx context.Context, name string, grace time.Duration) error {
	secs := int(grace.Seconds())
	err := r.cli.ContainerStop(ctx, name, container.StopOptions{Timeout: &secs})
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to stop container %s: %w", name, err)
	}
	return nil
}

// RemoveContainer deletes a stopped container. Absent is a no-op.
func (r *DockerRuntime) RemoveContainer(ctx context.Context, name string) error {
	err := r.cli.ContainerRemove(ctx, name, container.RemoveOptions{RemoveVolumes: false})
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to remove container %s: %w", name, err)
	}
	return nil
}

// ContainerHealth maps the engine's container state onto the typed
// HealthStatus enum. A running container without a configured health
// check counts as healthy; anything the engine does not know about is
// unknown rather than an error.
func (r *DockerRuntime) ContainerHealth(ctx context.Context, name string) (types.HealthStatus, error) {
	insp, err := r.cli.ContainerInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return types.HealthUnknown, nil
		}
		return types.HealthUnknown, fmt.Errorf("failed to inspect container %s: %w", name, err)
	}

	return healthFromState(insp.State), nil
}

// healthFromState maps the engine's inspect state onto the HealthStatus
// enum. A created-but-unstarted container is still starting; a running
// container without a configured health check counts as healthy.
func healthFromState(state *apitypes.ContainerState) types.HealthStatus {
	if state == nil {
		return types.HealthUnknown
	}
	if !state.Running {
		if state.Status == "created" {
			return types.HealthStarting
		}
		return types.HealthUnhealthy
	}
	if state.Health == nil {
		return types.HealthHealthy
	}

	switch state.Health.Status {
	case apitypes.Starting:
		return types.HealthStarting
	case apitypes.Healthy:
		return types.HealthHealthy
	case apitypes.Unhealthy:
		return types.HealthUnhealthy
	default:
		return types.HealthUnknown
	}
}

// ContainerCurrent reports whether a container is running the image the
// reference currently resolves to locally. Image IDs are compared rather
// than references so a freshly pulled mutable tag invalidates the old
// container.
func (r *DockerRuntime) ContainerCurrent(ctx context.Context, name, imageRef string) (bool, error) {
	insp, err := r.cli.ContainerInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to inspect container %s: %w", name, err)
	}
	if insp.State == nil || !insp.State.Running {
		return false, nil
	}

	img, _, err := r.cli.ImageInspectWithRaw(ctx, imageRef)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to inspect image %s: %w", imageRef, err)
	}
	return insp.Image == img.ID, nil
}

// IsRunning reports whether a container exists and is running
func (r *DockerRuntime) IsRunning(ctx context.Context, name string) (bool, error) {
	insp, err := r.cli.ContainerInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to inspect container %s: %w", name, err)
	}
	return insp.State != nil && insp.State.Running, nil
}

// ContainerLogs returns the last tail lines of combined stdout/stderr
func (r *DockerRuntime) ContainerLogs(ctx context.Context, name string, tail int) (string, error) {
	rc, err := r.cli.ContainerLogs(ctx, name, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       strconv.Itoa(tail),
	})
	if err != nil {
		if client.IsErrNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get logs for %s: %w", name, err)
	}
	defer rc.Close()

	// The engine multiplexes stdout/stderr on one stream
	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, rc); err != nil {
		return "", fmt.Errorf("failed to read logs for %s: %w", name, err)
	}
	return buf.String(), nil
}

// Exec runs a command inside a running container and returns its combined
// output. Non-zero exit is surfaced as an error with the output attached.
func (r *DockerRuntime) Exec(ctx context.Context, name string, cmd []string) ([]byte, error) {
	exec, err := r.cli.ContainerExecCreate(ctx, name, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create exec in %s: %w", name, err)
	}

	attach, err := r.cli.ContainerExecAttach(ctx, exec.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to attach exec in %s: %w", name, err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil {
		return nil, fmt.Errorf("failed to read exec output from %s: %w", name, err)
	}

	insp, err := r.cli.ContainerExecInspect(ctx, exec.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect exec in %s: %w", name, err)
	}
	if insp.ExitCode != 0 {
		return stdout.Bytes(), fmt.Errorf("command %v in %s exited %d: %s",
			cmd, name, insp.ExitCode, stderr.String())
	}
	return stdout.Bytes(), nil
}

// PruneImages removes dangling images left behind by prior releases
func (r *DockerRuntime) PruneImages(ctx context.Context) error {
	_, err := r.cli.ImagesPrune(ctx, filters.NewArgs(filters.Arg("dangling", "true")))
	if err != nil {
		return fmt.Errorf("failed to prune images: %w", err)
	}
	return nil
}

// envList renders an env map as the engine's KEY=VALUE list, sorted for
// deterministic container configs
func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	list := make([]string, 0, len(keys))
	for _, k := range keys {
		list = append(list, fmt.Sprintf("%s=%s", k, env[k]))
	}
	return list
}

// healthConfig translates the manifest health check into the engine's form
func healthConfig(hc *types.HealthCheck) *container.HealthConfig {
	if hc == nil {
		return nil
	}

	var test []string
	switch hc.Type {
	case types.HealthCheckExec:
		test = append([]string{"CMD"}, hc.Command...)
	case types.HealthCheckHTTP:
		test = []string{"CMD-SHELL", fmt.Sprintf("curl -fsS %s || exit 1", hc.Endpoint)}
	default:
		return nil
	}

	return &container.HealthConfig{
		Test:     test,
		Interval: hc.Interval.Std(),
		Timeout:  hc.Timeout.Std(),
		Retries:  hc.Retries,
	}
}
