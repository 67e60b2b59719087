package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/biomatch/internal/adapters/imaging"
	service "github.com/okian/biomatch/internal/app"
	"github.com/okian/biomatch/internal/domain/model"
)

// EnrollDependencies defines the enrollment operations.
type EnrollDependencies interface {
	Enroll(ctx context.Context, req service.EnrollRequest) (model.Identity, error)
	Reenroll(ctx context.Context, id int64, eye, thumb model.RawImage) (model.Identity, error)
	Identities(ctx context.Context) ([]model.Identity, error)
}

// enrollRequest mirrors the OpenAPI schema for POST /enroll.
type enrollRequest struct {
	RegistrationNumber string `json:"registration_number"`
	Name               string `json:"name"`
	EyeImage           string `json:"eye_image"`
	ThumbImage         string `json:"thumb_image"`
}

func (e enrollRequest) validate() error {
	switch {
	case strings.TrimSpace(e.RegistrationNumber) == "":
		return NewKind("missing registration_number", ErrBadRequest)
	case strings.TrimSpace(e.Name) == "":
		return NewKind("missing name", ErrBadRequest)
	case strings.TrimSpace(e.EyeImage) == "":
		return NewKind("missing eye_image", ErrBadRequest)
	case strings.TrimSpace(e.ThumbImage) == "":
		return NewKind("missing thumb_image", ErrBadRequest)
	}
	return nil
}

// templatesRequest mirrors the OpenAPI schema for PUT /identities/{id}/templates.
type templatesRequest struct {
	EyeImage   string `json:"eye_image"`
	ThumbImage string `json:"thumb_image"`
}

type enrollResponse struct {
	model.Identity
	Message string `json:"message"`
}

// EnrollHandler handles enrollment requests.
type EnrollHandler struct {
	deps    EnrollDependencies
	decoder *imaging.Decoder
	maxBody int64
}

// NewEnrollHandler creates a new enrollment handler.
func NewEnrollHandler(deps EnrollDependencies, decoder *imaging.Decoder, maxBody int64) *EnrollHandler {
	return &EnrollHandler{deps: deps, decoder: decoder, maxBody: maxBody}
}

// HandleEnroll handles POST /enroll requests.
func (h *EnrollHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	const op = "api.enroll"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req enrollRequest
	if err := decodeBody(w, r, h.maxBody, &req); err != nil {
		writeBodyError(w, op, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", Wrap(op, err))
		return
	}
	eye, thumb, err := decodeCaptures(h.decoder, req.EyeImage, req.ThumbImage)
	if err != nil {
		writeDomainError(w, op, err)
		return
	}
	id, err := h.deps.Enroll(r.Context(), service.EnrollRequest{
		RegistrationNumber: req.RegistrationNumber,
		Name:               req.Name,
		Eye:                eye,
		Thumb:              thumb,
	})
	if err != nil {
		writeDomainError(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, enrollResponse{Identity: id, Message: "Registration successful"})
}

// HandleReplaceTemplates handles PUT /identities/{id}/templates requests.
func (h *EnrollHandler) HandleReplaceTemplates(w http.ResponseWriter, r *http.Request) {
	const op = "api.replace_templates"
	if r.Method != http.MethodPut {
		http.NotFound(w, r)
		return
	}
	// Extract path parameter: /identities/{id}/templates
	rest := strings.TrimPrefix(r.URL.Path, "/identities/")
	idStr, tail, ok := strings.Cut(rest, "/")
	if !ok || tail != "templates" {
		http.NotFound(w, r)
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	var req templatesRequest
	if err := decodeBody(w, r, h.maxBody, &req); err != nil {
		writeBodyError(w, op, err)
		return
	}
	eye, thumb, err := decodeCaptures(h.decoder, req.EyeImage, req.ThumbImage)
	if err != nil {
		writeDomainError(w, op, err)
		return
	}
	ident, err := h.deps.Reenroll(r.Context(), id, eye, thumb)
	if err != nil {
		writeDomainError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, enrollResponse{Identity: ident, Message: "Templates replaced"})
}

type identitiesResponse struct {
	Identities []model.Identity `json:"identities"`
	Count      int              `json:"count"`
}

// IdentitiesHandler handles identity listing requests.
type IdentitiesHandler struct {
	deps EnrollDependencies
}

// NewIdentitiesHandler creates a new identities handler.
func NewIdentitiesHandler(deps EnrollDependencies) *IdentitiesHandler {
	return &IdentitiesHandler{deps: deps}
}

// HandleList handles GET /identities requests.
func (h *IdentitiesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_identities"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	ids, err := h.deps.Identities(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	if ids == nil {
		ids = []model.Identity{}
	}
	writeJSON(w, http.StatusOK, identitiesResponse{Identities: ids, Count: len(ids)})
}

func writeBodyError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, ErrBodyTooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", Wrap(op, err))
		return
	}
	writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
}
