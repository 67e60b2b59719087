package api

import (
	"context"
	"net/http"

	"github.com/okian/biomatch/internal/adapters/imaging"
	service "github.com/okian/biomatch/internal/app"
	"github.com/okian/biomatch/internal/domain/model"
)

// VerifyDependencies defines the verification operation.
type VerifyDependencies interface {
	Verify(ctx context.Context, req service.VerifyRequest) (service.Verification, error)
}

// verifyRequest mirrors the OpenAPI schema for POST /verify.
type verifyRequest struct {
	AttemptID  string `json:"attempt_id"`
	EyeImage   string `json:"eye_image"`
	ThumbImage string `json:"thumb_image"`
}

// verifyResponse reports scores on a 0-100 scale.
type verifyResponse struct {
	AttemptID  string          `json:"attempt_id"`
	Matched    bool            `json:"matched"`
	EyeScore   float64         `json:"eye_score"`
	ThumbScore float64         `json:"thumb_score"`
	TotalScore float64         `json:"total_score"`
	Confidence string          `json:"confidence,omitempty"`
	Rule       string          `json:"rule,omitempty"`
	Identity   *model.Identity `json:"identity,omitempty"`
	Message    string          `json:"message"`
	Recorded   bool            `json:"recorded"`
}

// VerifyHandler handles verification requests.
type VerifyHandler struct {
	deps    VerifyDependencies
	decoder *imaging.Decoder
	maxBody int64
}

// NewVerifyHandler creates a new verification handler.
func NewVerifyHandler(deps VerifyDependencies, decoder *imaging.Decoder, maxBody int64) *VerifyHandler {
	return &VerifyHandler{deps: deps, decoder: decoder, maxBody: maxBody}
}

// HandleVerify handles POST /verify requests. A rejected or unreadable
// capture is still a 200 with matched=false.
func (h *VerifyHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	const op = "api.verify"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req verifyRequest
	if err := decodeBody(w, r, h.maxBody, &req); err != nil {
		writeBodyError(w, op, err)
		return
	}
	eye, thumb, err := decodeCaptures(h.decoder, req.EyeImage, req.ThumbImage)
	if err != nil {
		writeDomainError(w, op, err)
		return
	}
	res, err := h.deps.Verify(r.Context(), service.VerifyRequest{AttemptID: req.AttemptID, Eye: eye, Thumb: thumb})
	if err != nil {
		writeDomainError(w, op, err)
		return
	}

	resp := verifyResponse{
		AttemptID:  res.AttemptID,
		Matched:    res.Matched,
		EyeScore:   percent(res.EyeScore),
		ThumbScore: percent(res.ThumbScore),
		TotalScore: percent(res.TotalScore),
		Confidence: res.Confidence,
		Rule:       res.Rule,
		Identity:   res.Identity,
		Message:    res.Message,
		Recorded:   res.Recorded,
	}
	if res.Matched {
		resp.Message = "Attendance marked successfully"
	}
	writeJSON(w, http.StatusOK, resp)
}
