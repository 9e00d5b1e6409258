package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newshub/stevedore/pkg/config"
	"github.com/newshub/stevedore/pkg/metrics"
	"github.com/newshub/stevedore/pkg/log"
	"github.com/newshub/stevedore/pkg/runtime"
	"github.com/newshub/stevedore/pkg/storage"
	"github.com/newshub/stevedore/pkg/types"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel})
	os.Exit(m.Run())
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Env: map[string]string{
			"MONGO_INITDB_ROOT_USERNAME": "admin",
			"MONGO_INITDB_ROOT_PASSWORD": "secret",
		},
		Tag:           "v1",
		DataDir:       dir,
		BackupDir:     filepath.Join(dir, "backups"),
		PollInterval:  time.Millisecond,
		PollAttempts:  5,
		StopGrace:     time.Second,
		RetainBackups: 5,
		LogTailLines:  50,
	}
}

func testStore(t *testing.T, cfg *config.Config) storage.Store {
	t.Helper()
	require.NoError(t, os.MkdirAll(cfg.BackupDir, 0o755))
	store, err := storage.NewBoltStore(cfg.StorePath())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testRelease(t *testing.T, backendProbeURL string) *types.ReleaseDescriptor {
	t.Helper()
	services := []*types.ServiceSpec{
		{Name: "mongo", Role: types.RoleDatabase, Image: "mongo"},
		{Name: "backend", Role: types.RoleBackend, Image: "newshub/news-backend", DependsOn: "mongo"},
		{Name: "frontend", Role: types.RoleFrontend, Image: "newshub/news-frontend", DependsOn: "backend"},
	}
	if backendProbeURL != "" {
		services[1].Probe = &types.Probe{
			Type:        types.HealthCheckHTTP,
			URL:         backendProbeURL,
			StatusField: "status",
		}
	}
	rel, err := types.NewRelease("v1", services)
	require.NoError(t, err)
	return rel
}

func healthyRuntime() *runtime.FakeRuntime {
	rt := &runtime.FakeRuntime{}
	rt.HealthFn = func(name string) (types.HealthStatus, error) {
		return types.HealthHealthy, nil
	}
	return rt
}

func TestDeploySuccess(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer api.Close()

	cfg := testConfig(t)
	store := testStore(t, cfg)
	rt := healthyRuntime()

	p := New(cfg, rt, store)
	attempt, err := p.Deploy(context.Background(), testRelease(t, api.URL))
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeSuccess, attempt.Outcome)
	assert.Empty(t, attempt.FailureStage)
	assert.Equal(t, types.HealthHealthy, attempt.Health["backend"])

	// No rollback happened
	assert.Empty(t, rt.Stopped)

	// Attempt was persisted
	attempts, err := store.ListAttempts()
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, attempt.ID, attempts[0].ID)

	// Audit line and metrics textfile written
	audit, err := os.ReadFile(cfg.AuditLogPath())
	require.NoError(t, err)
	assert.Contains(t, string(audit), "tag=v1 outcome=success")

	prom, err := os.ReadFile(cfg.MetricsPath())
	require.NoError(t, err)
	assert.Contains(t, string(prom), "stevedore_deployments_total")

	// Everything was healthy on the first poll
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PollAttempts))
}

func TestDeployFirstRunSkipsBackup(t *testing.T) {
	cfg := testConfig(t)
	store := testStore(t, cfg)
	rt := healthyRuntime()

	p := New(cfg, rt, store)
	_, err := p.Deploy(context.Background(), testRelease(t, ""))
	require.NoError(t, err)

	// Store was not running, so no dump was attempted
	assert.Empty(t, rt.Execs)
	backups, err := store.ListBackups()
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestDeployBackupBeforeRedeploy(t *testing.T) {
	cfg := testConfig(t)
	store := testStore(t, cfg)
	rt := healthyRuntime()
	rt.Running = map[string]bool{"mongo": true}
	rt.ExecFn = func(name string, cmd []string) ([]byte, error) {
		return []byte("dump-bytes"), nil
	}

	p := New(cfg, rt, store)
	attempt, err := p.Deploy(context.Background(), testRelease(t, ""))
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeSuccess, attempt.Outcome)

	backups, err := store.ListBackups()
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, "mongo", backups[0].Source)

	// Dump credentials came from the validated environment
	require.NotEmpty(t, rt.Execs)
	assert.Contains(t, rt.Execs[0], "admin")
}

func TestDeployFetchFailureNoRollback(t *testing.T) {
	cfg := testConfig(t)
	store := testStore(t, cfg)
	rt := healthyRuntime()
	rt.PullErrs = map[string]error{
		"newshub/news-backend:v1": errors.New("manifest unknown"),
	}

	p := New(cfg, rt, store)
	attempt, err := p.Deploy(context.Background(), testRelease(t, ""))

	var fetchErr *types.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, types.OutcomeFailure, attempt.Outcome)
	assert.Equal(t, StageFetch, attempt.FailureStage)

	// Previous release untouched, nothing created
	assert.Empty(t, rt.Stopped)
	assert.Empty(t, rt.Created)
}

func TestDeployTimeoutRollsBackOnce(t *testing.T) {
	cfg := testConfig(t)
	store := testStore(t, cfg)

	rt := &runtime.FakeRuntime{
		Logs: map[string]string{"backend": "Error: listen EADDRINUSE\n"},
	}
	rt.HealthFn = func(name string) (types.HealthStatus, error) {
		if name == "backend" {
			return types.HealthUnhealthy, nil
		}
		return types.HealthHealthy, nil
	}

	p := New(cfg, rt, store)
	attempt, err := p.Deploy(context.Background(), testRelease(t, ""))

	var timeout *types.OrchestrationTimeout
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, cfg.PollAttempts, timeout.Attempts)

	assert.Equal(t, types.OutcomeRolledBack, attempt.Outcome)
	assert.Equal(t, StageOrchestrate, attempt.FailureStage)
	assert.Contains(t, attempt.LogExcerpt, "EADDRINUSE")

	// Rollback tore the release down exactly once
	assert.Equal(t, 1, rt.StopCount("backend"))
	assert.Contains(t, rt.Removed, "frontend")
	assert.Contains(t, rt.Removed, "mongo")
}

func TestDeployStartFailureRollsBack(t *testing.T) {
	cfg := testConfig(t)
	store := testStore(t, cfg)

	// A v0 release is up; frontend creation for the new release hits a
	// name conflict after the old containers are already gone
	rt := healthyRuntime()
	rt.Running = map[string]bool{"mongo": true, "backend": true, "frontend": true}
	rt.Images = map[string]string{
		"mongo":    "mongo:v0",
		"backend":  "newshub/news-backend:v0",
		"frontend": "newshub/news-frontend:v0",
	}
	rt.CreateErrs = map[string]error{"frontend": errors.New("port is already allocated")}

	p := New(cfg, rt, store)
	attempt, err := p.Deploy(context.Background(), testRelease(t, ""))

	var orchErr *types.OrchestrationError
	require.ErrorAs(t, err, &orchErr)
	assert.Equal(t, types.OutcomeRolledBack, attempt.Outcome)
	assert.Equal(t, StageOrchestrate, attempt.FailureStage)

	// The partially started release was torn down, not left running
	assert.False(t, rt.Running["mongo"])
	assert.False(t, rt.Running["backend"])
	assert.Empty(t, rt.Images)
}

func TestDeployPreMutationQueryFailureSkipsRollback(t *testing.T) {
	cfg := testConfig(t)
	store := testStore(t, cfg)

	// The very first state query fails, before anything was stopped;
	// the running v0 release must stay untouched
	rt := healthyRuntime()
	rt.Running = map[string]bool{"mongo": true, "backend": true, "frontend": true}
	rt.Images = map[string]string{
		"mongo":    "mongo:v0",
		"backend":  "newshub/news-backend:v0",
		"frontend": "newshub/news-frontend:v0",
	}
	rt.InspectErrs = map[string]error{"frontend": errors.New("daemon unreachable")}

	p := New(cfg, rt, store)
	attempt, err := p.Deploy(context.Background(), testRelease(t, ""))
	require.Error(t, err)

	var orchErr *types.OrchestrationError
	assert.False(t, errors.As(err, &orchErr))
	assert.Equal(t, types.OutcomeFailure, attempt.Outcome)
	assert.Empty(t, rt.Stopped)
	assert.True(t, rt.Running["backend"])
}

func TestDeployExternalGateFailureAfterInternalSuccess(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer api.Close()

	cfg := testConfig(t)
	store := testStore(t, cfg)
	rt := healthyRuntime()

	p := New(cfg, rt, store)
	attempt, err := p.Deploy(context.Background(), testRelease(t, api.URL))

	var hcErr *types.HealthCheckError
	require.ErrorAs(t, err, &hcErr)
	assert.Equal(t, "backend", hcErr.Probe)

	// Internal health had passed; the external gate still rolled back
	assert.Equal(t, types.OutcomeRolledBack, attempt.Outcome)
	assert.Equal(t, StageVerify, attempt.FailureStage)
	assert.Equal(t, types.HealthHealthy, attempt.Health["backend"])
	assert.Equal(t, 1, rt.StopCount("backend"))
}

func TestDeployFailedAttemptIsRecorded(t *testing.T) {
	cfg := testConfig(t)
	store := testStore(t, cfg)
	rt := healthyRuntime()
	rt.PullErrs = map[string]error{"mongo:v1": errors.New("registry down")}

	p := New(cfg, rt, store)
	_, err := p.Deploy(context.Background(), testRelease(t, ""))
	require.Error(t, err)

	attempts, err := store.ListAttempts()
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, types.OutcomeFailure, attempts[0].Outcome)

	audit, readErr := os.ReadFile(cfg.AuditLogPath())
	require.NoError(t, readErr)
	assert.Contains(t, string(audit), "outcome=failure")
	assert.Contains(t, string(audit), "stage=fetch")
}
