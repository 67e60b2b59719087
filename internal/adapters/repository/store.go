// Package repository persists enrolled templates, attendance records and
// runtime settings.
package repository

import (
	"context"

	"github.com/okian/biomatch/internal/domain/model"
)

// ThresholdKey is the settings key holding the base match threshold.
const ThresholdKey = "min_match_score"

// TemplateStore provides read/write access to enrolled identities.
type TemplateStore interface {
	// Create stores a new identity and assigns its IdentityID and CreatedAt.
	// Returns ErrAlreadyExists if the registration number is taken.
	Create(ctx context.Context, t model.Template) (model.Template, error)

	// Replace swaps both encrypted templates of an identity.
	// Returns ErrNotFound if the identity is unknown.
	Replace(ctx context.Context, id int64, eye, thumb []byte) error

	// Get returns one identity. Returns ErrNotFound if the identity is unknown.
	Get(ctx context.Context, id int64) (model.Template, error)

	// List returns every identity ordered by IdentityID.
	List(ctx context.Context) ([]model.Template, error)

	// Count returns the number of enrolled identities.
	Count(ctx context.Context) int
}

// AttendanceStore records verification attempts.
type AttendanceStore interface {
	// Record appends an attendance record and assigns its ID.
	// Returns ErrAlreadyExists if the attempt id was already recorded.
	Record(ctx context.Context, a model.Attendance) (model.Attendance, error)

	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]model.Attendance, error)
}

// SettingsStore holds numeric runtime settings.
type SettingsStore interface {
	// Float returns a setting. Returns ErrNotFound if it was never set.
	Float(ctx context.Context, key string) (float64, error)
	// SetFloat stores a setting.
	SetFloat(ctx context.Context, key string, v float64) error
}

// Store bundles every store the service needs.
type Store interface {
	TemplateStore
	AttendanceStore
	SettingsStore
	Close()
}
