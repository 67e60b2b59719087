package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/okian/biomatch/internal/domain/model"
)

// AttendanceDependencies defines the attendance read operation.
type AttendanceDependencies interface {
	Attendance(ctx context.Context, limit int) ([]model.Attendance, error)
}

// AttendanceHandler handles attendance listing requests.
type AttendanceHandler struct {
	deps     AttendanceDependencies
	maxLimit int
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(deps AttendanceDependencies, maxLimit int) *AttendanceHandler {
	return &AttendanceHandler{deps: deps, maxLimit: maxLimit}
}

// HandleList handles GET /attendance?limit=N requests. Scores are reported
// on a 0-100 scale.
func (h *AttendanceHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_attendance"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	n := defaultAttendanceLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		v, err := strconv.Atoi(limitStr)
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		n = v
	}
	if n > h.maxLimit {
		writeError(w, http.StatusBadRequest, "limit_exceeded", NewKind(op, ErrLimitExceeded))
		return
	}
	recs, err := h.deps.Attendance(r.Context(), n)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	out := make([]model.Attendance, len(recs))
	for i, rec := range recs {
		rec.EyeScore = percent(rec.EyeScore)
		rec.ThumbScore = percent(rec.ThumbScore)
		out[i] = rec
	}
	writeJSON(w, http.StatusOK, out)
}
