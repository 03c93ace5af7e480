package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devrev/tsdb/confignode/internal/loadcache"
	"github.com/devrev/tsdb/confignode/internal/model"
	"github.com/devrev/tsdb/confignode/internal/store"
)

type fixedCycles uint64

func (c fixedCycles) Cycles() uint64 { return uint64(c) }

// downStatisticsStore fails every ping
type downStatisticsStore struct {
	store.StatisticsStore
}

func (downStatisticsStore) Ping(ctx context.Context) error {
	return errors.New("connection refused")
}

func newRegistry(t *testing.T) *loadcache.Registry {
	t.Helper()
	r, err := loadcache.NewRegistry(loadcache.DefaultOptions(time.Second), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, r.CreateGroupCache("root.sg",
		model.ConsensusGroupID{Type: model.DataRegion, ID: 1}, []int32{1}, model.ConsistencyWeak))
	return r
}

func readiness(t *testing.T, hc *HealthChecker) (int, HealthStatus) {
	t.Helper()
	rec := httptest.NewRecorder()
	hc.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	return rec.Code, status
}

func TestLivenessHandler(t *testing.T) {
	hc := NewHealthChecker(nil, nil, newRegistry(t), nil, 0, zap.NewNop())

	rec := httptest.NewRecorder()
	hc.LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"alive"`)
}

func TestReadinessHandler(t *testing.T) {
	topology := store.NewInMemoryTopologyStore(zap.NewNop())
	statistics := store.NewInMemoryStatisticsStore(zap.NewNop())

	t.Run("ready", func(t *testing.T) {
		hc := NewHealthChecker(topology, statistics, newRegistry(t), fixedCycles(3), time.Second, zap.NewNop())

		code, status := readiness(t, hc)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ready", status.Status)
		assert.Equal(t, "healthy", status.Checks["topology_store"])
		assert.Equal(t, 1, status.RegionGroups[model.GroupStatusDisabled])
	})

	t.Run("before first recompute", func(t *testing.T) {
		hc := NewHealthChecker(topology, statistics, newRegistry(t), fixedCycles(0), time.Second, zap.NewNop())

		code, status := readiness(t, hc)
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "not_ready", status.Status)
		assert.Equal(t, "waiting for first recompute", status.Checks["load_statistics"])
	})

	t.Run("statistics store down", func(t *testing.T) {
		hc := NewHealthChecker(topology, downStatisticsStore{}, newRegistry(t), fixedCycles(1), time.Second, zap.NewNop())

		code, status := readiness(t, hc)
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "unhealthy: connection refused", status.Checks["statistics_store"])
		assert.Equal(t, "healthy", status.Checks["topology_store"])
	})
}

func TestNewHealthServer(t *testing.T) {
	hc := NewHealthChecker(nil, nil, newRegistry(t), nil, 0, zap.NewNop())
	server := NewHealthServer(hc, 18080, zap.NewNop())

	assert.Equal(t, ":18080", server.Addr)

	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
