package repository

import "time"

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithClock overrides the time source used for CreatedAt and Timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMaxAttendance bounds how many attendance records are retained. The
// oldest records are dropped first.
func WithMaxAttendance(n int) Option {
	return func(s *MemoryStore) {
		if n > 0 {
			s.maxAttendance = n
		}
	}
}
