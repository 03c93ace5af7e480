package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	cnerrors "github.com/devrev/tsdb/confignode/internal/errors"
	"github.com/devrev/tsdb/confignode/internal/metrics"
	"github.com/devrev/tsdb/confignode/internal/model"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 4 << 20

// errorResponse is the JSON body of every failed request
type errorResponse struct {
	Code    cnerrors.ErrorCode     `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument records request metrics for one operation
func instrument(operation string, m *metrics.Metrics, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		m.RecordRequest(operation, strconv.Itoa(rec.status), time.Since(start).Seconds())
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (h *RegionHandler) writeError(w http.ResponseWriter, operation string, err error) {
	resp := errorResponse{Code: cnerrors.GetCode(err), Message: err.Error()}
	var ce *cnerrors.ConfigNodeError
	if errors.As(err, &ce) && len(ce.Details) > 0 {
		resp.Details = ce.Details
	}

	status := cnerrors.HTTPStatusOf(err)
	h.metrics.RecordError(operation, strconv.Itoa(int(resp.Code)))
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("operation", operation),
			zap.Int("status", status),
			zap.Error(err))
	} else {
		h.logger.Warn("Request rejected",
			zap.String("operation", operation),
			zap.Int("status", status),
			zap.Error(err))
	}
	writeJSON(w, status, resp)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return cnerrors.InvalidArgument("invalid request body", err)
	}
	return nil
}

func groupIDParam(r *http.Request) (model.ConsensusGroupID, error) {
	id, err := model.ParseConsensusGroupID(r.PathValue("group"))
	if err != nil {
		return model.ConsensusGroupID{}, cnerrors.InvalidArgument("invalid region group id", err)
	}
	return id, nil
}

func dataNodeParam(r *http.Request) (int32, error) {
	id, err := strconv.ParseInt(r.PathValue("node"), 10, 32)
	if err != nil {
		return 0, cnerrors.InvalidArgument("invalid data node id", err)
	}
	return int32(id), nil
}
