package verify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/newshub/stevedore/pkg/health"
	"github.com/newshub/stevedore/pkg/log"
	"github.com/newshub/stevedore/pkg/runtime"
	"github.com/newshub/stevedore/pkg/types"
)

// Verifier runs each service's external probe once after the
// orchestrator has already seen every container healthy. It exercises
// the externally routed path rather than the engine's view, so a
// service that is up but unreachable still fails the gate.
type Verifier struct {
	rt     runtime.Runtime
	logger zerolog.Logger
}

// NewVerifier creates an external health verifier
func NewVerifier(rt runtime.Runtime) *Verifier {
	return &Verifier{
		rt:     rt,
		logger: log.WithComponent("verify"),
	}
}

// Run probes every service in the release that declares one. Probes run
// in dependency order and the first failure aborts with a
// HealthCheckError naming the probe. Each probe fires exactly once; the
// orchestrator's polling already absorbed startup transients.
func (v *Verifier) Run(ctx context.Context, rel *types.ReleaseDescriptor) error {
	for _, svc := range rel.StartOrder() {
		if svc.Probe == nil {
			continue
		}

		checker, err := v.checker(svc)
		if err != nil {
			return &types.HealthCheckError{Probe: svc.Name, Err: err}
		}

		result := checker.Check(ctx)
		v.logger.Info().
			Str("service", svc.Name).
			Str("type", string(checker.Type())).
			Bool("healthy", result.Healthy).
			Dur("duration", result.Duration).
			Msg("probe")

		if !result.Healthy {
			return &types.HealthCheckError{
				Probe: svc.Name,
				Err:   errors.New(result.Message),
			}
		}
	}
	return nil
}

// checker builds the probe's checker from the service spec
func (v *Verifier) checker(svc *types.ServiceSpec) (health.Checker, error) {
	switch svc.Probe.Type {
	case types.HealthCheckHTTP:
		if svc.Probe.URL == "" {
			return nil, fmt.Errorf("http probe for %s has no url", svc.Name)
		}
		hc := health.NewHTTPChecker(svc.Probe.URL)
		if svc.Probe.StatusField != "" {
			hc.WithStatusField(svc.Probe.StatusField)
		}
		return hc, nil
	case types.HealthCheckExec:
		if len(svc.Probe.Command) == 0 {
			return nil, fmt.Errorf("exec probe for %s has no command", svc.Name)
		}
		return health.NewExecChecker(v.rt, svc.Name, svc.Probe.Command), nil
	default:
		return nil, fmt.Errorf("unknown probe type %q for %s", svc.Probe.Type, svc.Name)
	}
}
