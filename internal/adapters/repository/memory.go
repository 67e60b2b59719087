package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
	"github.com/okian/biomatch/internal/domain/model"
	"github.com/okian/biomatch/pkg/metrics"
)

const defaultMaxAttendance = 100000

// MemoryStore implements Store in process memory. Templates and attendance
// are kept in ordered maps keyed by their sequential ids.
type MemoryStore struct {
	mu sync.RWMutex

	templates *treemap.Map // int64 -> model.Template
	byRegNo   map[string]int64
	nextID    int64

	attendance    *treemap.Map // int64 -> model.Attendance
	attempts      map[string]int64
	nextRecordID  int64
	maxAttendance int

	settings map[string]float64

	now func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		templates:     treemap.NewWith(utils.Int64Comparator),
		byRegNo:       make(map[string]int64),
		attendance:    treemap.NewWith(utils.Int64Comparator),
		attempts:      make(map[string]int64),
		maxAttendance: defaultMaxAttendance,
		settings:      make(map[string]float64),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create implements TemplateStore.
func (s *MemoryStore) Create(_ context.Context, t model.Template) (model.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byRegNo[t.RegistrationNumber]; ok {
		return model.Template{}, fmt.Errorf("registration number %q: %w", t.RegistrationNumber, ErrAlreadyExists)
	}
	s.nextID++
	t.IdentityID = s.nextID
	t.CreatedAt = s.now().UTC()
	t.EyeTemplate = clone(t.EyeTemplate)
	t.ThumbTemplate = clone(t.ThumbTemplate)

	s.templates.Put(t.IdentityID, t)
	s.byRegNo[t.RegistrationNumber] = t.IdentityID
	metrics.UpdateEnrolledIdentities(s.templates.Size())
	return t, nil
}

// Replace implements TemplateStore.
func (s *MemoryStore) Replace(_ context.Context, id int64, eye, thumb []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.templates.Get(id)
	if !ok {
		return fmt.Errorf("identity %d: %w", id, ErrNotFound)
	}
	t := v.(model.Template)
	t.EyeTemplate = clone(eye)
	t.ThumbTemplate = clone(thumb)
	s.templates.Put(id, t)
	return nil
}

// Get implements TemplateStore.
func (s *MemoryStore) Get(_ context.Context, id int64) (model.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.templates.Get(id)
	if !ok {
		return model.Template{}, fmt.Errorf("identity %d: %w", id, ErrNotFound)
	}
	return v.(model.Template), nil
}

// List implements TemplateStore. The returned templates share their byte
// slices with the store; callers must treat them as read-only.
func (s *MemoryStore) List(_ context.Context) ([]model.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Template, 0, s.templates.Size())
	it := s.templates.Iterator()
	for it.Next() {
		out = append(out, it.Value().(model.Template))
	}
	return out, nil
}

// Count implements TemplateStore.
func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.templates.Size()
}

// Record implements AttendanceStore.
func (s *MemoryStore) Record(_ context.Context, a model.Attendance) (model.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.AttemptID != "" {
		if _, ok := s.attempts[a.AttemptID]; ok {
			return model.Attendance{}, fmt.Errorf("attempt %s: %w", a.AttemptID, ErrAlreadyExists)
		}
	}
	s.nextRecordID++
	a.ID = s.nextRecordID
	if a.Timestamp.IsZero() {
		a.Timestamp = s.now().UTC()
	}
	s.attendance.Put(a.ID, a)
	if a.AttemptID != "" {
		s.attempts[a.AttemptID] = a.ID
	}

	for s.attendance.Size() > s.maxAttendance {
		k, v := s.attendance.Min()
		s.attendance.Remove(k)
		delete(s.attempts, v.(model.Attendance).AttemptID)
	}
	return a, nil
}

// Recent implements AttendanceStore.
func (s *MemoryStore) Recent(_ context.Context, limit int) ([]model.Attendance, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Attendance, 0, min(limit, s.attendance.Size()))
	it := s.attendance.Iterator()
	for it.End(); it.Prev() && len(out) < limit; {
		out = append(out, it.Value().(model.Attendance))
	}
	return out, nil
}

// Float implements SettingsStore.
func (s *MemoryStore) Float(_ context.Context, key string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.settings[key]
	if !ok {
		return 0, fmt.Errorf("setting %s: %w", key, ErrNotFound)
	}
	return v, nil
}

// SetFloat implements SettingsStore.
func (s *MemoryStore) SetFloat(_ context.Context, key string, v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = v
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() {}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

var _ Store = (*MemoryStore)(nil)
