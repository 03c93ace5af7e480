package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cnerrors "github.com/devrev/tsdb/confignode/internal/errors"
	"github.com/devrev/tsdb/confignode/internal/loadcache"
	"github.com/devrev/tsdb/confignode/internal/metrics"
	"github.com/devrev/tsdb/confignode/internal/model"
	"github.com/devrev/tsdb/confignode/internal/service"
	"github.com/devrev/tsdb/confignode/internal/store"
)

type testServer struct {
	mux      *http.ServeMux
	registry *loadcache.Registry
	metrics  *metrics.Metrics
	now      int64
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{now: int64(100 * time.Second)}

	opts := loadcache.DefaultOptions(time.Second)
	opts.Clock = func() int64 { return ts.now }
	registry, err := loadcache.NewRegistry(opts, zap.NewNop())
	require.NoError(t, err)

	ts.registry = registry
	ts.metrics = metrics.NewMetrics(prometheus.NewRegistry())

	resolve := func(model.ConsensusGroupType) (model.ConsistencyModel, error) {
		return model.ConsistencyStrong, nil
	}
	topology := service.NewTopologyService(store.NewInMemoryTopologyStore(zap.NewNop()), nil, registry, resolve, zap.NewNop())
	heartbeats := service.NewHeartbeatService(registry, nil, ts.metrics, zap.NewNop())

	ts.mux = http.NewServeMux()
	NewRegionHandler(heartbeats, topology, registry, ts.metrics, zap.NewNop()).Register(ts.mux)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) createGroup(t *testing.T, id int32, nodes ...int32) {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/v1/region-groups", map[string]interface{}{
		"database":      "root.sg",
		"group_id":      map[string]interface{}{"type": "DataRegion", "id": id},
		"data_node_ids": nodes,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestRegionHandler_HeartbeatToStatistics(t *testing.T) {
	ts := newTestServer(t)
	ts.createGroup(t, 1, 1, 2, 3)

	for _, node := range []int32{1, 2} {
		rec := ts.do(t, http.MethodPost, "/v1/heartbeats?sync=true", model.HeartbeatReport{
			DataNodeID: node,
			Regions: []model.RegionHeartbeat{{
				GroupID: model.ConsensusGroupID{Type: model.DataRegion, ID: 1},
				Status:  model.ReplicaStatusRunning,
			}},
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}
	_, err := ts.registry.UpdateAll(context.Background(), 1)
	require.NoError(t, err)

	rec := ts.do(t, http.MethodGet, "/v1/region-groups/DataRegion-1/statistics", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats model.GroupStatistics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, model.GroupStatusAvailable, stats.Status())
	assert.Equal(t, []int32{1, 2, 3}, stats.DataNodeIDs())

	assert.Equal(t, 2.0, testutil.ToFloat64(ts.metrics.RequestsTotal.WithLabelValues("report_heartbeat", "200")))
}

func TestRegionHandler_HeartbeatFromClockAheadIsRejected(t *testing.T) {
	ts := newTestServer(t)
	ts.createGroup(t, 1, 1)

	rec := ts.do(t, http.MethodPost, "/v1/heartbeats?sync=true", model.HeartbeatReport{
		DataNodeID: 1,
		Timestamp:  ts.now + int64(time.Hour),
		Regions: []model.RegionHeartbeat{{
			GroupID: model.ConsensusGroupID{Type: model.DataRegion, ID: 1},
			Status:  model.ReplicaStatusRunning,
		}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"cached":0,"unknown_group":0,"unknown_replica":0,"invalid":0,"invalid_timestamp":1}`, rec.Body.String())
}

func TestRegionHandler_AsyncHeartbeatWithoutPool(t *testing.T) {
	ts := newTestServer(t)
	ts.createGroup(t, 1, 1)

	rec := ts.do(t, http.MethodPost, "/v1/heartbeats", model.HeartbeatReport{DataNodeID: 1})
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = ts.do(t, http.MethodPost, "/v1/heartbeats", map[string]interface{}{"unexpected": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, cnerrors.ErrCodeInvalidArgument, decodeError(t, rec).Code)
}

func TestRegionHandler_ListRegionGroups(t *testing.T) {
	ts := newTestServer(t)
	ts.createGroup(t, 2, 1)
	ts.createGroup(t, 1, 1)

	rec := ts.do(t, http.MethodGet, "/v1/region-groups", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var views []struct {
		GroupID     string `json:"group_id"`
		Consistency string `json:"consistency"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 2)
	assert.Equal(t, "DataRegion-1", views[0].GroupID)
	assert.Equal(t, "strong", views[0].Consistency)

	rec = ts.do(t, http.MethodGet, "/v1/region-groups?status=Running", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/v1/region-groups?database=root.other", nil)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/v1/region-groups?status=Sleeping", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegionHandler_ReplicaLifecycle(t *testing.T) {
	ts := newTestServer(t)
	ts.createGroup(t, 1, 1, 2)

	rec := ts.do(t, http.MethodPut, "/v1/region-groups/DataRegion-1/replicas/3", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/v1/region-groups/DataRegion-1/locations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"group_id":"DataRegion-1","data_node_ids":[1,2,3]}`, rec.Body.String())

	// Disabled group: removal refused unless forced
	rec = ts.do(t, http.MethodDelete, "/v1/region-groups/DataRegion-1/replicas/3", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, cnerrors.ErrCodeReplicaNotRemovable, decodeError(t, rec).Code)

	rec = ts.do(t, http.MethodDelete, "/v1/region-groups/DataRegion-1/replicas/3?force=true", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []int32{1, 2}, ts.registry.GetReplicaLocations(model.ConsensusGroupID{Type: model.DataRegion, ID: 1}))

	rec = ts.do(t, http.MethodPut, "/v1/region-groups/DataRegion-1/replicas/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegionHandler_NotFoundAndConflicts(t *testing.T) {
	ts := newTestServer(t)
	ts.createGroup(t, 1, 1)

	rec := ts.do(t, http.MethodPost, "/v1/region-groups", map[string]interface{}{
		"database": "root.sg",
		"group_id": map[string]interface{}{"type": "DataRegion", "id": 1},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	for _, path := range []string{
		"/v1/region-groups/DataRegion-9/statistics",
		"/v1/region-groups/DataRegion-9/locations",
	} {
		rec = ts.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}

	rec = ts.do(t, http.MethodGet, "/v1/region-groups/Bogus-1/statistics", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/v1/region-groups/DataRegion-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, http.MethodDelete, "/v1/region-groups/DataRegion-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
