package deploy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/newshub/stevedore/pkg/log"
	"github.com/newshub/stevedore/pkg/runtime"
	"github.com/newshub/stevedore/pkg/types"
)

// State is the orchestrator's position in the deployment state machine
type State string

const (
	StateIdle       State = "idle"
	StateStopping   State = "stopping"
	StateStarting   State = "starting"
	StatePolling    State = "polling"
	StateAllHealthy State = "all-healthy"
	StateTimedOut   State = "timed-out"
)

// Options bounds the orchestrator's stop and poll behavior
type Options struct {
	PollInterval time.Duration // Between status queries (default: 12s)
	PollAttempts int           // Ceiling before TimedOut (default: 40)
	StopGrace    time.Duration // Before force kill (default: 30s)
	TailLines    int           // Log lines captured for diagnostics (default: 50)
}

func (o *Options) defaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = 12 * time.Second
	}
	if o.PollAttempts <= 0 {
		o.PollAttempts = 40
	}
	if o.StopGrace <= 0 {
		o.StopGrace = 30 * time.Second
	}
	if o.TailLines <= 0 {
		o.TailLines = 50
	}
}

// Result is the orchestrator's terminal report for one release
type Result struct {
	State      State
	Health     map[string]types.HealthStatus
	LogExcerpt string
	Attempts   int // Poll attempts consumed before the terminal state
}

// Deployer drives a release through stop, start, and health polling.
// One deployment is in flight at a time; callers serialize invocations.
type Deployer struct {
	rt     runtime.Runtime
	opts   Options
	logger zerolog.Logger
}

// NewDeployer creates a release orchestrator
func NewDeployer(rt runtime.Runtime, opts Options) *Deployer {
	opts.defaults()
	return &Deployer{
		rt:     rt,
		opts:   opts,
		logger: log.WithComponent("deploy"),
	}
}

// Run executes the state machine for one release:
//
//	Idle → Stopping(old) → Starting(new) → Polling → AllHealthy | TimedOut
//
// Stopping blocks until the previous release is down or the grace period
// forces it. Run is idempotent: re-running with the same release finds
// nothing to stop and recreates the identical desired state.
func (d *Deployer) Run(ctx context.Context, rel *types.ReleaseDescriptor) (*Result, error) {
	d.logger.Info().Str("tag", rel.Tag).Int("services", len(rel.Services)).
		Msg("starting release")

	kept, err := d.stopOld(ctx, rel)
	if err != nil {
		return nil, err
	}
	if err := d.startNew(ctx, rel, kept); err != nil {
		return nil, err
	}
	return d.poll(ctx, rel)
}

// stopOld stops and removes the previous release's containers in reverse
// dependency order. Containers already running the target image are kept
// in place, which makes a re-run with an unchanged release a no-op here.
//
// Failures before the first stop or remove return plain errors: the
// previous release is still intact and nothing needs rolling back.
// Once mutation has begun, failures become OrchestrationError so the
// caller tears the mixed state down.
func (d *Deployer) stopOld(ctx context.Context, rel *types.ReleaseDescriptor) (map[string]bool, error) {
	d.logger.Info().Msg("stopping previous release")
	kept := make(map[string]bool)
	mutated := false
	for _, svc := range rel.StopOrder() {
		current, err := d.rt.ContainerCurrent(ctx, svc.Name, svc.ImageRef(rel.Tag))
		if err != nil {
			return nil, d.stopErr(mutated, svc.Name, fmt.Errorf("failed to query %s: %w", svc.Name, err))
		}
		if current {
			kept[svc.Name] = true
			d.logger.Info().Str("service", svc.Name).Msg("already current, leaving in place")
			continue
		}

		running, err := d.rt.IsRunning(ctx, svc.Name)
		if err != nil {
			return nil, d.stopErr(mutated, svc.Name, fmt.Errorf("failed to query %s: %w", svc.Name, err))
		}
		if running {
			grace := d.opts.StopGrace
			if svc.StopTimeout > 0 {
				grace = time.Duration(svc.StopTimeout) * time.Second
			}
			mutated = true
			if err := d.rt.StopContainer(ctx, svc.Name, grace); err != nil {
				return nil, &types.OrchestrationError{Phase: "stopping", Service: svc.Name, Err: err}
			}
			d.logger.Info().Str("service", svc.Name).Msg("stopped")
		}
		// Remove regardless so the fixed name is free for the new release
		mutated = true
		if err := d.rt.RemoveContainer(ctx, svc.Name); err != nil {
			return nil, &types.OrchestrationError{Phase: "stopping", Service: svc.Name, Err: err}
		}
	}
	return kept, nil
}

// stopErr wraps a query failure as an OrchestrationError only once the
// previous release has been touched
func (d *Deployer) stopErr(mutated bool, service string, err error) error {
	if mutated {
		return &types.OrchestrationError{Phase: "stopping", Service: service, Err: err}
	}
	return err
}

// startNew launches the service set in dependency order, skipping
// containers kept from the previous pass, and kicks off an opportunistic
// image prune for prior releases' leftovers.
//
// By the time startNew runs the previous release is already gone, so
// every failure here is an OrchestrationError: a name conflict or a
// refused start leaves a partially started release that must come down.
func (d *Deployer) startNew(ctx context.Context, rel *types.ReleaseDescriptor, kept map[string]bool) error {
	d.logger.Info().Str("tag", rel.Tag).Msg("starting new release")
	for _, svc := range rel.StartOrder() {
		if kept[svc.Name] {
			continue
		}
		if _, err := d.rt.CreateContainer(ctx, svc, rel.Tag); err != nil {
			return &types.OrchestrationError{Phase: "starting", Service: svc.Name, Err: err}
		}
		if err := d.rt.StartContainer(ctx, svc.Name); err != nil {
			return &types.OrchestrationError{Phase: "starting", Service: svc.Name, Err: err}
		}
		d.logger.Info().Str("service", svc.Name).Msg("started")
	}

	// Best-effort disk housekeeping; never blocks the deployment
	go func() {
		pruneCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := d.rt.PruneImages(pruneCtx); err != nil {
			d.logger.Warn().Err(err).Msg("image prune failed")
		}
	}()

	return nil
}

// poll queries every service at a fixed interval until all are healthy
// or the attempt ceiling fires. Log tails are captured for any service
// reporting unhealthy and, as a last diagnostic, on the attempt before
// the ceiling.
func (d *Deployer) poll(ctx context.Context, rel *types.ReleaseDescriptor) (*Result, error) {
	d.logger.Info().
		Int("attempts", d.opts.PollAttempts).
		Dur("interval", d.opts.PollInterval).
		Msg("polling service health")

	tails := make(map[string]string)
	var health map[string]types.HealthStatus

	for attempt := 1; attempt <= d.opts.PollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d.opts.PollInterval):
		}

		health = make(map[string]types.HealthStatus, len(rel.Services))
		healthy := 0
		for _, svc := range rel.Services {
			status, err := d.rt.ContainerHealth(ctx, svc.Name)
			if err != nil {
				// The new release is up but unobservable; that still
				// needs tearing down
				return nil, &types.OrchestrationError{Phase: "polling", Service: svc.Name, Err: err}
			}
			health[svc.Name] = status
			switch status {
			case types.HealthHealthy:
				healthy++
			case types.HealthUnhealthy:
				d.captureTail(ctx, svc.Name, tails)
			}
		}

		d.logger.Debug().
			Int("attempt", attempt).
			Int("healthy", healthy).
			Int("required", rel.RequiredHealthy).
			Msg("poll")

		if healthy >= rel.RequiredHealthy {
			d.logger.Info().Int("attempt", attempt).Msg("all services healthy")
			return &Result{State: StateAllHealthy, Health: health, Attempts: attempt}, nil
		}

		if attempt == d.opts.PollAttempts-1 {
			for _, svc := range rel.Services {
				if health[svc.Name] != types.HealthHealthy {
					d.captureTail(ctx, svc.Name, tails)
				}
			}
		}
	}

	var waiting []string
	for _, svc := range rel.Services {
		if health[svc.Name] != types.HealthHealthy {
			waiting = append(waiting, svc.Name)
			d.captureTail(ctx, svc.Name, tails)
		}
	}

	result := &Result{
		State:      StateTimedOut,
		Health:     health,
		LogExcerpt: formatTails(tails),
		Attempts:   d.opts.PollAttempts,
	}
	return result, &types.OrchestrationTimeout{
		Attempts:  d.opts.PollAttempts,
		Unhealthy: waiting,
	}
}

func (d *Deployer) captureTail(ctx context.Context, name string, tails map[string]string) {
	tail, err := d.rt.ContainerLogs(ctx, name, d.opts.TailLines)
	if err != nil {
		d.logger.Warn().Err(err).Str("service", name).Msg("failed to capture logs")
		return
	}
	tails[name] = tail
}

func formatTails(tails map[string]string) string {
	if len(tails) == 0 {
		return ""
	}
	names := make([]string, 0, len(tails))
	for name := range tails {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "=== %s ===\n%s\n", name, strings.TrimRight(tails[name], "\n"))
	}
	return b.String()
}
