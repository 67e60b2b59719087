// Package service wires signature extraction, template matching and the
// attendance pipeline behind the operations the HTTP API exposes.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	eventqueue "github.com/okian/biomatch/internal/adapters/mq/queue"
	workerpool "github.com/okian/biomatch/internal/adapters/mq/worker"
	"github.com/okian/biomatch/internal/adapters/repository"
	"github.com/okian/biomatch/internal/domain/decision"
	"github.com/okian/biomatch/internal/domain/dedupe"
	"github.com/okian/biomatch/internal/domain/model"
	"github.com/okian/biomatch/internal/domain/scoring"
	"github.com/okian/biomatch/internal/domain/signature"
	"github.com/okian/biomatch/pkg/logger"
	"github.com/okian/biomatch/pkg/metrics"
)

// Messages attached to rejected verifications.
const (
	MessageNoMatch          = "Identity verification failed. Please try again."
	messageExtractionPrefix = "Biometric extraction failed: "
)

const (
	modalityEye   = "eye"
	modalityThumb = "thumb"
)

// EyeExtractor derives an eye signature from a face capture.
type EyeExtractor interface {
	Build(ctx context.Context, img model.RawImage) (model.EyeSignature, error)
}

// FingerprintExtractor derives a fingerprint signature from a thumb capture.
type FingerprintExtractor interface {
	Build(ctx context.Context, img model.RawImage) (model.FingerprintSignature, error)
}

// TemplateCodec seals and opens signatures for storage.
type TemplateCodec interface {
	TemplateDecoder
	EncodeEye(sig model.EyeSignature) ([]byte, error)
	EncodeFingerprint(sig model.FingerprintSignature) ([]byte, error)
}

// EnrollRequest carries one enrollment.
type EnrollRequest struct {
	RegistrationNumber string
	Name               string
	Eye                model.RawImage
	Thumb              model.RawImage
}

// VerifyRequest carries one verification attempt. AttemptID is generated
// when empty; replays of the same id are recorded once.
type VerifyRequest struct {
	AttemptID string
	Eye       model.RawImage
	Thumb     model.RawImage
}

// Verification is the outcome of Verify.
type Verification struct {
	model.MatchResult
	AttemptID string
	// Identity is set when the attempt matched.
	Identity *model.Identity
	// Recorded reports whether an attendance record was queued.
	Recorded bool
}

// Service implements the API dependencies for enrollment and verification.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     repository.Store
	codec     TemplateCodec
	eye       EyeExtractor
	thumb     FingerprintExtractor
	matcher   *Matcher
	threshold ThresholdSource
	slots     *semaphore.Weighted
	deduper   dedupe.Deduper
	queue     *eventqueue.InMemoryQueue
	pool      *workerpool.Pool

	// Configuration
	scanWorkers       int
	extractionSlots   int
	queueSize         int
	dedupeSize        int
	attendanceWorkers int
	baseThreshold     float64
	policy            decision.Policy
	comparator        scoring.Comparator
	now               func() time.Time

	// State
	started bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount bounds the goroutines used by one template scan.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.scanWorkers = count
		}
	}
}

// WithExtractionSlots bounds concurrent extractions across all requests.
func WithExtractionSlots(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.extractionSlots = n
		}
	}
}

// WithQueueSize sets the capacity of the attendance queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many attempt ids are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithAttendanceWorkers sets how many workers persist attendance records.
func WithAttendanceWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.attendanceWorkers = n
		}
	}
}

// WithBaseThreshold sets the threshold used until one is stored in settings.
func WithBaseThreshold(v float64) Option {
	return func(s *Service) {
		if validThreshold(v) {
			s.baseThreshold = v
		}
	}
}

// WithPolicy sets the decision policy.
func WithPolicy(p decision.Policy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

// WithSignatureComparator replaces the default comparator.
func WithSignatureComparator(c scoring.Comparator) Option {
	return func(s *Service) {
		if c != nil {
			s.comparator = c
		}
	}
}

// WithThresholdSource replaces the settings-backed threshold source.
func WithThresholdSource(src ThresholdSource) Option {
	return func(s *Service) {
		if src != nil {
			s.threshold = src
		}
	}
}

// WithClock sets the time source for attendance timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service. Call Start before submitting verifications.
func New(store repository.Store, codec TemplateCodec, eye EyeExtractor, thumb FingerprintExtractor, opts ...Option) *Service {
	s := &Service{
		store:             store,
		codec:             codec,
		eye:               eye,
		thumb:             thumb,
		scanWorkers:       runtime.NumCPU(),
		extractionSlots:   runtime.NumCPU(),
		queueSize:         10000,
		dedupeSize:        100000,
		attendanceWorkers: 2,
		baseThreshold:     0.6,
		policy:            decision.DefaultPolicy(),
		comparator:        scoring.NewSignatureComparator(),
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.threshold == nil {
		s.threshold = NewSettingsThreshold(store, s.baseThreshold)
	}
	s.slots = semaphore.NewWeighted(int64(s.extractionSlots))
	s.matcher = NewMatcher(codec,
		WithScanWorkers(s.scanWorkers),
		WithMatchPolicy(s.policy),
		WithComparator(s.comparator),
	)
	return s
}

// Start creates the attendance pipeline and starts its workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.pool = workerpool.NewPool(s.attendanceWorkers, s.queue, s.store)
	s.pool.Start(ctx)

	metrics.UpdateEnrolledIdentities(s.store.Count(ctx))

	s.started = true
	s.logger.Info(ctx, "biometric service started",
		logger.Int("scan_workers", s.scanWorkers),
		logger.Int("extraction_slots", s.extractionSlots),
		logger.Int("attendance_workers", s.attendanceWorkers),
		logger.Int("queue_size", s.queueSize),
		logger.Int("dedupe_size", s.dedupeSize),
	)
	return nil
}

// Stop drains the attendance queue and stops the workers. The store is left
// open for the caller to close.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping biometric service...")
	err := s.pool.Shutdown(ctx)
	s.started = false
	s.logger.Info(ctx, "biometric service stopped")
	return err
}

// Enroll extracts both signatures and stores them as a new identity.
// Extraction errors are returned as is; a taken registration number yields
// repository.ErrAlreadyExists.
func (s *Service) Enroll(ctx context.Context, req EnrollRequest) (model.Identity, error) {
	req.RegistrationNumber = strings.TrimSpace(req.RegistrationNumber)
	req.Name = strings.TrimSpace(req.Name)
	if req.RegistrationNumber == "" || req.Name == "" {
		metrics.RecordEnrollment("create", "invalid")
		return model.Identity{}, fmt.Errorf("%w: registration number and name are required", ErrInvalidRequest)
	}

	eyeBlob, thumbBlob, err := s.sealCaptures(ctx, req.Eye, req.Thumb)
	if err != nil {
		metrics.RecordEnrollment("create", "extraction_failed")
		return model.Identity{}, err
	}

	t, err := s.store.Create(ctx, model.Template{
		RegistrationNumber: req.RegistrationNumber,
		Name:               req.Name,
		EyeTemplate:        eyeBlob,
		ThumbTemplate:      thumbBlob,
	})
	if err != nil {
		metrics.RecordEnrollment("create", outcome(err))
		return model.Identity{}, err
	}
	metrics.RecordEnrollment("create", "ok")
	s.logger.Info(ctx, "identity enrolled",
		logger.Int64("identity_id", t.IdentityID),
		logger.String("registration_number", t.RegistrationNumber))
	return t.Identity(), nil
}

// Reenroll replaces both templates of an existing identity.
func (s *Service) Reenroll(ctx context.Context, id int64, eye, thumb model.RawImage) (model.Identity, error) {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		metrics.RecordEnrollment("replace", outcome(err))
		return model.Identity{}, err
	}
	eyeBlob, thumbBlob, err := s.sealCaptures(ctx, eye, thumb)
	if err != nil {
		metrics.RecordEnrollment("replace", "extraction_failed")
		return model.Identity{}, err
	}
	if err := s.store.Replace(ctx, id, eyeBlob, thumbBlob); err != nil {
		metrics.RecordEnrollment("replace", outcome(err))
		return model.Identity{}, err
	}
	metrics.RecordEnrollment("replace", "ok")
	s.logger.Info(ctx, "identity re-enrolled", logger.Int64("identity_id", id))
	return current.Identity(), nil
}

// Verify scores the captures against every enrolled identity. Extraction
// failures come back as a rejected result wrapping ErrExtractionFailed; only
// store failures are returned as errors.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (Verification, error) {
	start := time.Now()
	out := Verification{AttemptID: req.AttemptID}
	if out.AttemptID == "" {
		out.AttemptID = uuid.NewString()
	}

	eyeSig, thumbSig, err := s.extract(ctx, req.Eye, req.Thumb)
	if err != nil {
		out.Err = fmt.Errorf("%w: %w", ErrExtractionFailed, err)
		out.Message = messageExtractionPrefix + err.Error()
		metrics.RecordVerification(metrics.OutcomeExtractionFailed, msSince(start))
		s.logger.Debug(ctx, "verification extraction failed",
			logger.String("attempt_id", out.AttemptID), logger.Error(err))
		return out, nil
	}

	base, err := s.threshold.Threshold(ctx)
	if err != nil {
		return out, fmt.Errorf("read threshold: %w", err)
	}
	templates, err := s.store.List(ctx)
	if err != nil {
		return out, fmt.Errorf("list templates: %w", err)
	}

	out.MatchResult = s.matcher.Match(ctx, eyeSig, thumbSig, templates, base)
	if out.Err != nil {
		return out, out.Err
	}
	if out.Matched {
		for i := range templates {
			if templates[i].IdentityID == *out.BestIdentityID {
				id := templates[i].Identity()
				out.Identity = &id
				break
			}
		}
		metrics.RecordVerification(metrics.OutcomeMatched, msSince(start))
	} else {
		metrics.RecordVerification(metrics.OutcomeRejected, msSince(start))
	}

	out.Recorded = s.recordAttempt(ctx, out.AttemptID, out.MatchResult)
	s.logger.Debug(ctx, "verification finished",
		logger.String("attempt_id", out.AttemptID),
		logger.Bool("matched", out.Matched),
		logger.Float64("total_score", out.TotalScore),
		logger.Int("compared", out.Compared),
		logger.Int("skipped", out.Skipped))
	return out, nil
}

// Identities lists enrolled identities in enrollment order.
func (s *Service) Identities(ctx context.Context) ([]model.Identity, error) {
	templates, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Identity, len(templates))
	for i := range templates {
		out[i] = templates[i].Identity()
	}
	return out, nil
}

// Attendance returns up to limit records, newest first.
func (s *Service) Attendance(ctx context.Context, limit int) ([]model.Attendance, error) {
	return s.store.Recent(ctx, limit)
}

// Threshold returns the base threshold the next verification will use.
func (s *Service) Threshold(ctx context.Context) (float64, error) {
	return s.threshold.Threshold(ctx)
}

// SetThreshold stores a new base threshold.
func (s *Service) SetThreshold(ctx context.Context, v float64) error {
	if !validThreshold(v) {
		return fmt.Errorf("%w: got %v", ErrInvalidThreshold, v)
	}
	if err := s.store.SetFloat(ctx, repository.ThresholdKey, v); err != nil {
		return err
	}
	s.logger.Info(ctx, "base threshold updated", logger.Float64("threshold", v))
	return nil
}

// QueueLen returns the number of attendance records waiting to be written.
func (s *Service) QueueLen(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.queue == nil {
		return 0
	}
	return s.queue.Len(ctx)
}

// recordAttempt queues an attendance record: a success for a match, a failure
// when the fused total clears the policy floor, nothing otherwise.
func (s *Service) recordAttempt(ctx context.Context, attemptID string, res model.MatchResult) bool {
	status := model.AttendanceSuccess
	if !res.Matched {
		if !s.policy.ShouldRecordFailure(res.TotalScore) {
			return false
		}
		status = model.AttendanceFailed
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		s.logger.Warn(ctx, "attendance dropped", logger.String("attempt_id", attemptID), logger.Error(ErrNotStarted))
		return false
	}

	if s.deduper.SeenAndRecord(ctx, attemptID) {
		metrics.RecordAttendanceDuplicate()
		s.logger.Debug(ctx, "duplicate attempt, skipping", logger.String("attempt_id", attemptID))
		return false
	}

	ev := model.Attendance{
		AttemptID:  attemptID,
		IdentityID: res.BestIdentityID,
		EyeScore:   res.EyeScore,
		ThumbScore: res.ThumbScore,
		Status:     status,
		Method:     model.MethodDualBiometric,
		Timestamp:  s.now().UTC(),
	}
	if !s.queue.Enqueue(ctx, ev) {
		s.deduper.Unrecord(ctx, attemptID)
		s.logger.Warn(ctx, "attendance dropped", logger.String("attempt_id", attemptID), logger.Error(ErrQueueFull))
		return false
	}
	return true
}

// sealCaptures extracts and encrypts both signatures for storage.
func (s *Service) sealCaptures(ctx context.Context, eye, thumb model.RawImage) ([]byte, []byte, error) {
	eyeSig, thumbSig, err := s.extract(ctx, eye, thumb)
	if err != nil {
		return nil, nil, err
	}
	eyeBlob, err := s.codec.EncodeEye(eyeSig)
	if err != nil {
		return nil, nil, fmt.Errorf("encode eye template: %w", err)
	}
	thumbBlob, err := s.codec.EncodeFingerprint(thumbSig)
	if err != nil {
		return nil, nil, fmt.Errorf("encode thumb template: %w", err)
	}
	return eyeBlob, thumbBlob, nil
}

// extract runs both extractions concurrently, each holding one extraction slot.
func (s *Service) extract(ctx context.Context, eye, thumb model.RawImage) (model.EyeSignature, model.FingerprintSignature, error) {
	var (
		eyeSig   model.EyeSignature
		thumbSig model.FingerprintSignature
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.withSlot(gctx, modalityEye, func(ctx context.Context) error {
			var err error
			eyeSig, err = s.eye.Build(ctx, eye)
			return err
		})
	})
	g.Go(func() error {
		return s.withSlot(gctx, modalityThumb, func(ctx context.Context) error {
			var err error
			thumbSig, err = s.thumb.Build(ctx, thumb)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		return model.EyeSignature{}, model.FingerprintSignature{}, err
	}
	return eyeSig, thumbSig, nil
}

func (s *Service) withSlot(ctx context.Context, modality string, fn func(context.Context) error) error {
	if err := s.slots.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.slots.Release(1)
	metrics.AddExtractionInFlight(1)
	defer metrics.AddExtractionInFlight(-1)

	start := time.Now()
	err := fn(ctx)
	metrics.RecordExtractionLatency(modality, msSince(start))
	if err != nil {
		metrics.RecordExtractionFailure(modality, failureReason(err))
		return fmt.Errorf("%s: %w", modality, err)
	}
	return nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, signature.ErrNoFaceDetected):
		return "no_face"
	case errors.Is(err, signature.ErrPoorFingerprintQuality):
		return "poor_quality"
	case errors.Is(err, signature.ErrEmptyImage):
		return "empty_image"
	case errors.Is(err, signature.ErrProvider):
		return "provider"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "other"
	}
}

func outcome(err error) string {
	switch {
	case errors.Is(err, repository.ErrAlreadyExists):
		return "duplicate"
	case errors.Is(err, repository.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
