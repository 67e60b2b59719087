package api

import (
	"context"
	"net/http"
)

// ThresholdDependencies defines the base threshold operations.
type ThresholdDependencies interface {
	Threshold(ctx context.Context) (float64, error)
	SetThreshold(ctx context.Context, v float64) error
}

type thresholdBody struct {
	Threshold *float64 `json:"threshold"`
}

// ThresholdHandler handles GET and PUT /settings/threshold.
type ThresholdHandler struct {
	deps ThresholdDependencies
}

// NewThresholdHandler creates a new threshold handler.
func NewThresholdHandler(deps ThresholdDependencies) *ThresholdHandler {
	return &ThresholdHandler{deps: deps}
}

// HandleThreshold dispatches on the request method.
func (h *ThresholdHandler) HandleThreshold(w http.ResponseWriter, r *http.Request) {
	const op = "api.threshold"
	switch r.Method {
	case http.MethodGet:
		v, err := h.deps.Threshold(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
			return
		}
		writeJSON(w, http.StatusOK, thresholdBody{Threshold: &v})
	case http.MethodPut:
		var body thresholdBody
		if err := decodeBody(w, r, 1<<10, &body); err != nil {
			writeBodyError(w, op, err)
			return
		}
		if body.Threshold == nil {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind("missing threshold", ErrBadRequest))
			return
		}
		if err := h.deps.SetThreshold(r.Context(), *body.Threshold); err != nil {
			writeDomainError(w, op, err)
			return
		}
		writeJSON(w, http.StatusOK, body)
	default:
		http.NotFound(w, r)
	}
}
