package rollback

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newshub/stevedore/pkg/log"
	"github.com/newshub/stevedore/pkg/runtime"
	"github.com/newshub/stevedore/pkg/types"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel})
	os.Exit(m.Run())
}

func testRelease(t *testing.T) *types.ReleaseDescriptor {
	t.Helper()
	rel, err := types.NewRelease("v3", []*types.ServiceSpec{
		{Name: "mongo", Role: types.RoleDatabase, Image: "mongo"},
		{Name: "backend", Role: types.RoleBackend, Image: "newshub/news-backend", DependsOn: "mongo"},
		{Name: "frontend", Role: types.RoleFrontend, Image: "newshub/news-frontend", DependsOn: "backend"},
	})
	require.NoError(t, err)
	return rel
}

func TestRollbackTearsDownInReverseOrder(t *testing.T) {
	rt := &runtime.FakeRuntime{
		Running: map[string]bool{"mongo": true, "backend": true, "frontend": true},
	}

	h := NewHandler(rt, Options{StopGrace: time.Second})
	bundle := h.Rollback(context.Background(), testRelease(t), "polling")

	assert.Equal(t, []string{"frontend", "backend", "mongo"}, rt.Stopped)
	assert.Equal(t, []string{"frontend", "backend", "mongo"}, rt.Removed)
	assert.Equal(t, "polling", bundle.Stage)
	assert.Equal(t, "v3", bundle.Tag)
}

func TestRollbackCapturesLogsBeforeTeardown(t *testing.T) {
	rt := &runtime.FakeRuntime{
		Running: map[string]bool{"backend": true},
		Logs: map[string]string{
			"backend": "Error: connect ECONNREFUSED\n    at TCPConnectWrap\n",
			"mongo":   "waiting for connections\n",
		},
	}

	h := NewHandler(rt, Options{StopGrace: time.Second})
	bundle := h.Rollback(context.Background(), testRelease(t), "verify")

	assert.Contains(t, bundle.LogExcerpt, "=== backend ===")
	assert.Contains(t, bundle.LogExcerpt, "ECONNREFUSED")
	assert.Contains(t, bundle.LogExcerpt, "=== mongo ===")
	assert.False(t, bundle.RolledAt.IsZero())
}

func TestRollbackSkipsStoppedContainers(t *testing.T) {
	rt := &runtime.FakeRuntime{
		Running: map[string]bool{"mongo": true},
	}

	h := NewHandler(rt, Options{StopGrace: time.Second})
	h.Rollback(context.Background(), testRelease(t), "polling")

	// Only the running container gets a stop; all get removed
	assert.Equal(t, []string{"mongo"}, rt.Stopped)
	assert.Equal(t, []string{"frontend", "backend", "mongo"}, rt.Removed)
}

func TestRollbackEmptyHost(t *testing.T) {
	rt := &runtime.FakeRuntime{}

	h := NewHandler(rt, Options{})
	bundle := h.Rollback(context.Background(), testRelease(t), "fetch")

	assert.Empty(t, rt.Stopped)
	assert.Equal(t, "", bundle.LogExcerpt)
}
