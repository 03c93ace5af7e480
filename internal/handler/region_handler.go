package handler

import (
	"net/http"

	"go.uber.org/zap"

	cnerrors "github.com/devrev/tsdb/confignode/internal/errors"
	"github.com/devrev/tsdb/confignode/internal/loadcache"
	"github.com/devrev/tsdb/confignode/internal/metrics"
	"github.com/devrev/tsdb/confignode/internal/model"
	"github.com/devrev/tsdb/confignode/internal/service"
)

// RegionGroupView is one region group as returned by the API
type RegionGroupView struct {
	GroupID     string                 `json:"group_id"`
	Database    string                 `json:"database"`
	Consistency model.ConsistencyModel `json:"consistency"`
	Statistics  *model.GroupStatistics `json:"statistics"`
}

// LocationsView lists the data nodes hosting a region group
type LocationsView struct {
	GroupID     string  `json:"group_id"`
	DataNodeIDs []int32 `json:"data_node_ids"`
}

// RegionHandler serves the region health HTTP API
type RegionHandler struct {
	heartbeats *service.HeartbeatService
	topology   *service.TopologyService
	registry   *loadcache.Registry
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewRegionHandler creates a new region handler
func NewRegionHandler(
	heartbeats *service.HeartbeatService,
	topology *service.TopologyService,
	registry *loadcache.Registry,
	m *metrics.Metrics,
	logger *zap.Logger,
) *RegionHandler {
	return &RegionHandler{
		heartbeats: heartbeats,
		topology:   topology,
		registry:   registry,
		metrics:    m,
		logger:     logger,
	}
}

// Register adds the API routes to mux
func (h *RegionHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/heartbeats", instrument("report_heartbeat", h.metrics, h.ReportHeartbeat))
	mux.HandleFunc("GET /v1/region-groups", instrument("list_region_groups", h.metrics, h.ListRegionGroups))
	mux.HandleFunc("POST /v1/region-groups", instrument("create_region_group", h.metrics, h.CreateRegionGroup))
	mux.HandleFunc("DELETE /v1/region-groups/{group}", instrument("delete_region_group", h.metrics, h.DeleteRegionGroup))
	mux.HandleFunc("GET /v1/region-groups/{group}/statistics", instrument("get_statistics", h.metrics, h.GetStatistics))
	mux.HandleFunc("GET /v1/region-groups/{group}/locations", instrument("get_locations", h.metrics, h.GetLocations))
	mux.HandleFunc("PUT /v1/region-groups/{group}/replicas/{node}", instrument("add_replica", h.metrics, h.AddReplica))
	mux.HandleFunc("DELETE /v1/region-groups/{group}/replicas/{node}", instrument("remove_replica", h.metrics, h.RemoveReplica))
}

// ReportHeartbeat ingests a data node heartbeat report. With ?sync=true the
// report is cached before responding and the per-region outcome is returned.
func (h *RegionHandler) ReportHeartbeat(w http.ResponseWriter, r *http.Request) {
	const op = "report_heartbeat"

	var report model.HeartbeatReport
	if err := decodeJSON(w, r, &report); err != nil {
		h.writeError(w, op, err)
		return
	}

	if r.URL.Query().Get("sync") == "true" {
		writeJSON(w, http.StatusOK, h.heartbeats.HandleReport(&report))
		return
	}

	if err := h.heartbeats.SubmitReport(&report); err != nil {
		h.writeError(w, op, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ListRegionGroups lists region groups, optionally filtered by ?database= and ?status=
func (h *RegionHandler) ListRegionGroups(w http.ResponseWriter, r *http.Request) {
	const op = "list_region_groups"

	query := r.URL.Query()
	var ids []model.ConsensusGroupID
	switch {
	case query.Get("status") != "":
		status := model.GroupStatus(query.Get("status"))
		if status != model.GroupStatusRunning && status != model.GroupStatusAvailable && status != model.GroupStatusDisabled {
			h.writeError(w, op, cnerrors.InvalidArgument("unknown group status "+string(status), nil))
			return
		}
		ids = h.registry.FilterGroups(status)
	default:
		ids = h.registry.GroupIDs()
	}

	database := query.Get("database")
	views := make([]RegionGroupView, 0, len(ids))
	for _, id := range ids {
		g, ok := h.registry.GroupCache(id)
		if !ok || (database != "" && g.Database() != database) {
			continue
		}
		views = append(views, RegionGroupView{
			GroupID:     id.String(),
			Database:    g.Database(),
			Consistency: g.Consistency(),
			Statistics:  g.CurrentStatistics(),
		})
	}

	writeJSON(w, http.StatusOK, views)
}

// CreateRegionGroup registers a new region group
func (h *RegionHandler) CreateRegionGroup(w http.ResponseWriter, r *http.Request) {
	const op = "create_region_group"

	var group model.RegionGroup
	if err := decodeJSON(w, r, &group); err != nil {
		h.writeError(w, op, err)
		return
	}

	if err := h.topology.CreateRegionGroup(r.Context(), &group); err != nil {
		h.writeError(w, op, err)
		return
	}

	h.logger.Info("Region group created",
		zap.String("group_id", group.GroupID.String()),
		zap.String("database", group.Database))
	writeJSON(w, http.StatusCreated, group)
}

// DeleteRegionGroup deletes a region group
func (h *RegionHandler) DeleteRegionGroup(w http.ResponseWriter, r *http.Request) {
	const op = "delete_region_group"

	id, err := groupIDParam(r)
	if err != nil {
		h.writeError(w, op, err)
		return
	}

	if err := h.topology.DeleteRegionGroup(r.Context(), id); err != nil {
		h.writeError(w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetStatistics returns the published statistics of one region group
func (h *RegionHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	const op = "get_statistics"

	id, err := groupIDParam(r)
	if err != nil {
		h.writeError(w, op, err)
		return
	}

	if _, ok := h.registry.GroupCache(id); !ok {
		h.writeError(w, op, cnerrors.RegionGroupNotFound(id.String()))
		return
	}
	writeJSON(w, http.StatusOK, h.registry.GetCurrentStatistics(id))
}

// GetLocations returns the data nodes hosting one region group
func (h *RegionHandler) GetLocations(w http.ResponseWriter, r *http.Request) {
	const op = "get_locations"

	id, err := groupIDParam(r)
	if err != nil {
		h.writeError(w, op, err)
		return
	}

	if _, ok := h.registry.GroupCache(id); !ok {
		h.writeError(w, op, cnerrors.RegionGroupNotFound(id.String()))
		return
	}
	writeJSON(w, http.StatusOK, LocationsView{GroupID: id.String(), DataNodeIDs: h.registry.GetReplicaLocations(id)})
}

// AddReplica adds a replica of a region group on a data node
func (h *RegionHandler) AddReplica(w http.ResponseWriter, r *http.Request) {
	const op = "add_replica"

	id, err := groupIDParam(r)
	if err != nil {
		h.writeError(w, op, err)
		return
	}
	node, err := dataNodeParam(r)
	if err != nil {
		h.writeError(w, op, err)
		return
	}

	if err := h.topology.AddReplica(r.Context(), id, node); err != nil {
		h.writeError(w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveReplica removes a replica of a region group; ?force=true skips the
// serving check
func (h *RegionHandler) RemoveReplica(w http.ResponseWriter, r *http.Request) {
	const op = "remove_replica"

	id, err := groupIDParam(r)
	if err != nil {
		h.writeError(w, op, err)
		return
	}
	node, err := dataNodeParam(r)
	if err != nil {
		h.writeError(w, op, err)
		return
	}

	force := r.URL.Query().Get("force") == "true"
	if err := h.topology.RemoveReplica(r.Context(), id, node, force); err != nil {
		h.writeError(w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
