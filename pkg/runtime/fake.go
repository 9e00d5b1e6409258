package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/newshub/stevedore/pkg/types"
)

// FakeRuntime is an in-memory Runtime for tests. Zero value is usable.
// Lifecycle calls are recorded in order; health responses come from the
// Health map unless HealthFn overrides them.
type FakeRuntime struct {
	mu sync.Mutex

	// Running tracks container run state by name
	Running map[string]bool

	// Images tracks the image ref each container was created from
	Images map[string]string

	// Health holds the status returned by ContainerHealth per container
	Health map[string]types.HealthStatus

	// HealthFn, when set, overrides Health lookups
	HealthFn func(name string) (types.HealthStatus, error)

	// Logs holds canned log output per container
	Logs map[string]string

	// ExecFn, when set, handles Exec calls
	ExecFn func(name string, cmd []string) ([]byte, error)

	// PullErrs fails pulls for specific image refs
	PullErrs map[string]error

	// CreateErrs fails container creation for specific services
	CreateErrs map[string]error

	// StopErrs fails stops for specific containers
	StopErrs map[string]error

	// InspectErrs fails state queries (current/running/health) for
	// specific containers
	InspectErrs map[string]error

	// Call recordings
	Pulled     []string
	Created    []string
	Started    []string
	Stopped    []string
	Removed    []string
	Execs      [][]string
	PruneCalls int
}

var _ Runtime = (*FakeRuntime)(nil)

func (f *FakeRuntime) init() {
	if f.Running == nil {
		f.Running = make(map[string]bool)
	}
	if f.Health == nil {
		f.Health = make(map[string]types.HealthStatus)
	}
	if f.Images == nil {
		f.Images = make(map[string]string)
	}
}

func (f *FakeRuntime) PullImage(_ context.Context, imageRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	if err := f.PullErrs[imageRef]; err != nil {
		return err
	}
	f.Pulled = append(f.Pulled, imageRef)
	return nil
}

func (f *FakeRuntime) CreateContainer(_ context.Context, spec *types.ServiceSpec, tag string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	if err := f.CreateErrs[spec.Name]; err != nil {
		return "", err
	}
	f.Created = append(f.Created, spec.Name)
	f.Images[spec.Name] = spec.ImageRef(tag)
	return "id-" + spec.Name, nil
}

func (f *FakeRuntime) StartContainer(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	f.Started = append(f.Started, name)
	f.Running[name] = true
	return nil
}

func (f *FakeRuntime) StopContainer(_ context.Context, name string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	if err := f.StopErrs[name]; err != nil {
		return err
	}
	f.Stopped = append(f.Stopped, name)
	f.Running[name] = false
	return nil
}

func (f *FakeRuntime) RemoveContainer(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	f.Removed = append(f.Removed, name)
	delete(f.Running, name)
	delete(f.Images, name)
	return nil
}

func (f *FakeRuntime) ContainerHealth(_ context.Context, name string) (types.HealthStatus, error) {
	f.mu.Lock()
	if err := f.InspectErrs[name]; err != nil {
		f.mu.Unlock()
		return types.HealthUnknown, err
	}
	fn := f.HealthFn
	f.mu.Unlock()
	if fn != nil {
		return fn(name)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	if status, ok := f.Health[name]; ok {
		return status, nil
	}
	return types.HealthUnknown, nil
}

func (f *FakeRuntime) ContainerCurrent(_ context.Context, name, imageRef string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	if err := f.InspectErrs[name]; err != nil {
		return false, err
	}
	return f.Running[name] && f.Images[name] == imageRef, nil
}

func (f *FakeRuntime) IsRunning(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	if err := f.InspectErrs[name]; err != nil {
		return false, err
	}
	return f.Running[name], nil
}

func (f *FakeRuntime) ContainerLogs(_ context.Context, name string, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	return f.Logs[name], nil
}

func (f *FakeRuntime) Exec(_ context.Context, name string, cmd []string) ([]byte, error) {
	f.mu.Lock()
	f.Execs = append(f.Execs, append([]string{name}, cmd...))
	fn := f.ExecFn
	f.mu.Unlock()
	if fn != nil {
		return fn(name, cmd)
	}
	return nil, fmt.Errorf("no exec handler for %s", name)
}

func (f *FakeRuntime) PruneImages(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PruneCalls++
	return nil
}

// SetHealth updates a container's reported health
func (f *FakeRuntime) SetHealth(name string, status types.HealthStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	f.Health[name] = status
}

// StopCount returns how many stop calls were recorded for a container
func (f *FakeRuntime) StopCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.Stopped {
		if s == name {
			n++
		}
	}
	return n
}
