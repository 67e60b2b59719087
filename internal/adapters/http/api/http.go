// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"

	"github.com/okian/biomatch/internal/adapters/imaging"
	"github.com/okian/biomatch/internal/adapters/provider"
	"github.com/okian/biomatch/internal/adapters/repository"
	service "github.com/okian/biomatch/internal/app"
	"github.com/okian/biomatch/internal/domain/model"
	"github.com/okian/biomatch/internal/domain/signature"
)

const (
	defaultAttendanceLimit    = 50
	defaultMaxAttendanceLimit = 500
	// Two base64 images plus JSON framing.
	bodyOverhead = 64 << 10
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	EnrollDependencies
	VerifyDependencies
	AttendanceDependencies
	ThresholdDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler     *HealthHandler
	enrollHandler     *EnrollHandler
	identitiesHandler *IdentitiesHandler
	verifyHandler     *VerifyHandler
	attendanceHandler *AttendanceHandler
	thresholdHandler  *ThresholdHandler
}

// Option configures the Server.
type Option func(*settings)

type settings struct {
	decoder            *imaging.Decoder
	maxImageBytes      int
	maxAttendanceLimit int
}

// WithMaxImageBytes bounds each decoded image.
func WithMaxImageBytes(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxImageBytes = n
		}
	}
}

// WithMaxAttendanceLimit bounds GET /attendance?limit=.
func WithMaxAttendanceLimit(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxAttendanceLimit = n
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	cfg := settings{
		maxImageBytes:      imaging.DefaultMaxBytes,
		maxAttendanceLimit: defaultMaxAttendanceLimit,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.decoder = imaging.NewDecoder(imaging.WithMaxBytes(cfg.maxImageBytes))
	maxBody := int64(2*base64Len(cfg.maxImageBytes) + bodyOverhead)

	return &Server{
		healthHandler:     NewHealthHandler(),
		enrollHandler:     NewEnrollHandler(deps, cfg.decoder, maxBody),
		identitiesHandler: NewIdentitiesHandler(deps),
		verifyHandler:     NewVerifyHandler(deps, cfg.decoder, maxBody),
		attendanceHandler: NewAttendanceHandler(deps, cfg.maxAttendanceLimit),
		thresholdHandler:  NewThresholdHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/enroll", MetricsMiddleware(s.enrollHandler.HandleEnroll, "enroll"))
	mux.HandleFunc("/identities", MetricsMiddleware(s.identitiesHandler.HandleList, "identities"))
	mux.HandleFunc("/identities/", MetricsMiddleware(s.enrollHandler.HandleReplaceTemplates, "identity_templates"))
	mux.HandleFunc("/verify", MetricsMiddleware(s.verifyHandler.HandleVerify, "verify"))
	mux.HandleFunc("/attendance", MetricsMiddleware(s.attendanceHandler.HandleList, "attendance"))
	mux.HandleFunc("/settings/threshold", MetricsMiddleware(s.thresholdHandler.HandleThreshold, "threshold"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// decodeBody reads a JSON body of at most limit bytes into v.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return ErrBodyTooLarge
		}
		return err
	}
	return nil
}

// decodeCaptures turns the two base64 payloads into images.
func decodeCaptures(d *imaging.Decoder, eye, thumb string) (model.RawImage, model.RawImage, error) {
	eyeImg, err := d.DecodeString(eye)
	if err != nil {
		return model.RawImage{}, model.RawImage{}, Wrap("eye_image", err)
	}
	thumbImg, err := d.DecodeString(thumb)
	if err != nil {
		return model.RawImage{}, model.RawImage{}, Wrap("thumb_image", err)
	}
	return eyeImg, thumbImg, nil
}

// writeDomainError maps service and adapter errors to HTTP responses.
func writeDomainError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrBodyTooLarge), errors.Is(err, imaging.ErrImageTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", Wrap(op, err))
	case errors.Is(err, imaging.ErrUnsupportedFormat):
		writeError(w, http.StatusUnsupportedMediaType, "unsupported_image", Wrap(op, err))
	case errors.Is(err, imaging.ErrEmptyInput),
		errors.Is(err, imaging.ErrInvalidBase64),
		errors.Is(err, imaging.ErrInvalidImage):
		writeError(w, http.StatusBadRequest, "invalid_image", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrInvalidThreshold):
		writeError(w, http.StatusBadRequest, "bad_request", Wrap(op, err))
	case errors.Is(err, signature.ErrNoFaceDetected),
		errors.Is(err, signature.ErrPoorFingerprintQuality),
		errors.Is(err, signature.ErrEmptyImage):
		writeError(w, http.StatusUnprocessableEntity, "extraction_failed", Wrap(op, err))
	case errors.Is(err, signature.ErrProvider), errors.Is(err, provider.ErrUnavailable):
		writeError(w, http.StatusBadGateway, "provider_unavailable", Wrap(op, err))
	case errors.Is(err, repository.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "already_exists", Wrap(op, err))
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", Wrap(op, err))
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "timeout", Wrap(op, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}

// percent reports a [0,1] score on a 0-100 scale rounded to one decimal.
func percent(score float64) float64 {
	return math.Round(score*1000) / 10
}

func base64Len(n int) int {
	return (n + 2) / 3 * 4
}
