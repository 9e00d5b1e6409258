package rollback

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

// Options bounds how the handler tears a failed release down
type Options struct {
	StopGrace time.Duration // Before force kill (default: 30s)
	TailLines int           // Log lines per service in the bundle (default: 50)
}

func (o *Options) defaults() {
	if o.StopGrace <= 0 {
		o.StopGrace = 30 * time.Second
	}
	if o.TailLines <= 0 {
		o.TailLines = 50
	}
}

// Bundle is the diagnostic report emitted for a rolled-back release
type Bundle struct {
	Stage      string    // Pipeline stage that failed
	Tag        string    // Release tag that was torn down
	LogExcerpt string    // Combined per-service log tails
	RolledAt   time.Time //
}

// Handler tears down a failed release. There is nothing to restore to:
// the previous release was already stopped before the new one started,
// so rollback stops the broken containers and surfaces diagnostics for
// the operator instead of pretending the old version is back.
type Handler struct {
	rt     runtime.Runtime
	opts   Options
	logger zerolog.Logger
}

// NewHandler creates a rollback handler
func NewHandler(rt runtime.Runtime, opts Options) *Handler {
	opts.defaults()
	return &Handler{
		rt:     rt,
		opts:   opts,
		logger: log.WithComponent("rollback"),
	}
}

// Rollback captures each service's log tail, then stops and removes the
// release's containers in reverse dependency order. Log capture happens
// first because removal discards the container's log stream. Teardown
// is best effort: a container that will not stop is logged and skipped
// so the rest still come down.
func (h *Handler) Rollback(ctx context.Context, rel *types.ReleaseDescriptor, stage string) *Bundle {
	h.logger.Warn().
		Str("tag", rel.Tag).
		Str("stage", stage).
		Msg("rolling back failed release")

	tails := make(map[string]string)
	for _, svc := range rel.Services {
		tail, err := h.rt.ContainerLogs(ctx, svc.Name, h.opts.TailLines)
		if err != nil {
			h.logger.Warn().Err(err).Str("service", svc.Name).Msg("failed to capture logs")
			continue
		}
		if tail != "" {
			tails[svc.Name] = tail
		}
	}

	for _, svc := range rel.StopOrder() {
		running, err := h.rt.IsRunning(ctx, svc.Name)
		if err != nil {
			h.logger.Warn().Err(err).Str("service", svc.Name).Msg("failed to query container")
			continue
		}
		if running {
			if err := h.rt.StopContainer(ctx, svc.Name, h.opts.StopGrace); err != nil {
				h.logger.Warn().Err(err).Str("service", svc.Name).Msg("failed to stop container")
				continue
			}
		}
		if err := h.rt.RemoveContainer(ctx, svc.Name); err != nil {
			h.logger.Warn().Err(err).Str("service", svc.Name).Msg("failed to remove container")
			continue
		}
		h.logger.Info().Str("service", svc.Name).Msg("torn down")
	}

	bundle := &Bundle{
		Stage:      stage,
		Tag:        rel.Tag,
		LogExcerpt: formatTails(tails),
		RolledAt:   time.Now().UTC(),
	}
	h.logger.Warn().
		Str("tag", rel.Tag).
		Str("stage", stage).
		Msg("release rolled back, host requires a new deployment")
	return bundle
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
