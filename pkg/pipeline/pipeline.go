package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/newshub/stevedore/pkg/backup"
	"github.com/newshub/stevedore/pkg/config"
	"github.com/newshub/stevedore/pkg/deploy"
	"github.com/newshub/stevedore/pkg/log"
	"github.com/newshub/stevedore/pkg/metrics"
	"github.com/newshub/stevedore/pkg/rollback"
	"github.com/newshub/stevedore/pkg/runtime"
	"github.com/newshub/stevedore/pkg/storage"
	"github.com/newshub/stevedore/pkg/types"
	"github.com/newshub/stevedore/pkg/verify"
)

// Stage names recorded on failed attempts
const (
	StageBackup      = "backup"
	StageFetch       = "fetch"
	StageOrchestrate = "orchestrate"
	StageVerify      = "verify"
)

// Pipeline wires the deployment stages together and owns the attempt
// record: backup, fetch, orchestrate, verify, with rollback on health
// failures. Each invocation produces exactly one DeploymentAttempt.
type Pipeline struct {
	cfg      *config.Config
	store    storage.Store
	agent    *backup.Agent
	deployer *deploy.Deployer
	verifier *verify.Verifier
	handler  *rollback.Handler
	logger   zerolog.Logger
}

// New assembles a pipeline from the validated configuration
func New(cfg *config.Config, rt runtime.Runtime, store storage.Store) *Pipeline {
	return &Pipeline{
		cfg:   cfg,
		store: store,
		agent: backup.NewAgent(rt, store, backup.Options{
			Dir:      cfg.BackupDir,
			Retain:   cfg.RetainBackups,
			Username: cfg.Env["MONGO_INITDB_ROOT_USERNAME"],
			Password: cfg.Env["MONGO_INITDB_ROOT_PASSWORD"],
		}),
		deployer: deploy.NewDeployer(rt, deploy.Options{
			PollInterval: cfg.PollInterval,
			PollAttempts: cfg.PollAttempts,
			StopGrace:    cfg.StopGrace,
			TailLines:    cfg.LogTailLines,
		}),
		verifier: verify.NewVerifier(rt),
		handler: rollback.NewHandler(rt, rollback.Options{
			StopGrace: cfg.StopGrace,
			TailLines: cfg.LogTailLines,
		}),
		logger: log.WithComponent("pipeline"),
	}
}

// Deploy runs the release through every stage and records the attempt.
// The returned error is the stage's typed error, suitable for exit code
// mapping; the attempt is returned in all cases once started.
//
// Failures before any container is touched (fetch, pre-stop queries)
// leave the previous release running and do not roll back. Failures
// once mutation has begun (stop, start, polling, verify) tear the
// release down.
func (p *Pipeline) Deploy(ctx context.Context, rel *types.ReleaseDescriptor) (*types.DeploymentAttempt, error) {
	attempt := &types.DeploymentAttempt{
		ID:        uuid.NewString(),
		Tag:       rel.Tag,
		StartedAt: time.Now().UTC(),
	}
	logger := p.logger.With().Str("attempt_id", attempt.ID).Str("tag", rel.Tag).Logger()
	logger.Info().Msg("deployment started")

	// Backup is best effort and cannot fail the run
	if db := rel.ByRole(types.RoleDatabase); db != nil {
		if record := p.agent.Run(ctx, db); record != nil {
			metrics.BackupsTotal.WithLabelValues("archived").Inc()
			metrics.BackupSizeBytes.Set(float64(record.SizeBytes))
		} else {
			metrics.BackupsTotal.WithLabelValues("skipped").Inc()
		}
	}

	if err := p.deployer.Pull(ctx, rel); err != nil {
		return p.finish(attempt, types.OutcomeFailure, StageFetch, nil, "", err)
	}

	result, err := p.deployer.Run(ctx, rel)
	if result != nil {
		metrics.PollAttempts.Set(float64(result.Attempts))
	}
	if err != nil {
		var excerpt string
		var health map[string]types.HealthStatus
		if result != nil {
			excerpt = result.LogExcerpt
			health = result.Health
		}
		if isRollbackable(err) {
			bundle := p.handler.Rollback(ctx, rel, StageOrchestrate)
			metrics.RollbacksTotal.Inc()
			if bundle.LogExcerpt != "" {
				excerpt = bundle.LogExcerpt
			}
			return p.finish(attempt, types.OutcomeRolledBack, StageOrchestrate, health, excerpt, err)
		}
		return p.finish(attempt, types.OutcomeFailure, StageOrchestrate, health, excerpt, err)
	}
	attempt.Health = result.Health

	if err := p.verifier.Run(ctx, rel); err != nil {
		bundle := p.handler.Rollback(ctx, rel, StageVerify)
		metrics.RollbacksTotal.Inc()
		return p.finish(attempt, types.OutcomeRolledBack, StageVerify, result.Health, bundle.LogExcerpt, err)
	}

	if err := p.agent.Prune(); err != nil {
		logger.Warn().Err(err).Msg("backup pruning failed")
	}

	logger.Info().Msg("deployment succeeded")
	return p.finish(attempt, types.OutcomeSuccess, "", result.Health, "", nil)
}

// isRollbackable reports whether container mutation had begun when the
// failure hit, leaving a mixed or broken release to tear down. Query
// failures before the first stop stay untyped and skip rollback: the
// previous release is still running untouched.
func isRollbackable(err error) bool {
	switch err.(type) {
	case *types.OrchestrationError, *types.OrchestrationTimeout, *types.HealthCheckError:
		return true
	}
	return false
}

// finish completes the attempt record, persists it, appends the audit
// line, and exports metrics. Bookkeeping failures are logged but never
// mask the deployment's own error.
func (p *Pipeline) finish(attempt *types.DeploymentAttempt, outcome types.Outcome, stage string,
	health map[string]types.HealthStatus, excerpt string, cause error) (*types.DeploymentAttempt, error) {

	attempt.FinishedAt = time.Now().UTC()
	attempt.Outcome = outcome
	attempt.FailureStage = stage
	if health != nil {
		attempt.Health = health
	}
	attempt.LogExcerpt = excerpt

	metrics.DeploymentsTotal.WithLabelValues(string(outcome)).Inc()
	metrics.DeploymentDuration.Observe(attempt.FinishedAt.Sub(attempt.StartedAt).Seconds())

	if err := p.store.RecordAttempt(attempt); err != nil {
		p.logger.Warn().Err(err).Msg("failed to record attempt")
	}
	if err := p.audit(attempt); err != nil {
		p.logger.Warn().Err(err).Msg("failed to append audit log")
	}
	if err := metrics.WriteTextfile(p.cfg.MetricsPath()); err != nil {
		p.logger.Warn().Err(err).Msg("failed to write metrics textfile")
	}

	return attempt, cause
}

// audit appends one plain-text line per attempt to deploy.log. The file
// outlives the bbolt store's schema and is greppable from the host.
func (p *Pipeline) audit(attempt *types.DeploymentAttempt) error {
	f, err := os.OpenFile(p.cfg.AuditLogPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	line := fmt.Sprintf("%s tag=%s outcome=%s duration=%s",
		attempt.FinishedAt.Format(time.RFC3339),
		attempt.Tag,
		attempt.Outcome,
		attempt.FinishedAt.Sub(attempt.StartedAt).Round(time.Second),
	)
	if attempt.FailureStage != "" {
		line += " stage=" + attempt.FailureStage
	}
	_, err = fmt.Fprintln(f, line)
	return err
}
