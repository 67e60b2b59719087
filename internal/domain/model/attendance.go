package model

import "time"

// Attendance statuses.
const (
	AttendanceSuccess = "success"
	AttendanceFailed  = "failed"

	MethodDualBiometric = "dual_biometric"
)

// Attendance is one recorded verification attempt.
type Attendance struct {
	ID         int64     `json:"id"`
	AttemptID  string    `json:"attempt_id"`
	IdentityID *int64    `json:"identity_id,omitempty"`
	EyeScore   float64   `json:"eye_score"`
	ThumbScore float64   `json:"thumb_score"`
	Status     string    `json:"status"`
	Method     string    `json:"method"`
	Timestamp  time.Time `json:"timestamp"`
}
