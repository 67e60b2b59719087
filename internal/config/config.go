// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers defaults, an optional YAML file and BIOMATCH_ env vars.
// - Errors are wrapped with this package's sentinel kinds.
package config

import (
	"runtime"
)

// DefaultEncryptionKey is only meant for local development.
const DefaultEncryptionKey = "dev-encryption-key-32-bytes-long"

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`
	// LogFile, when set, also writes daily rotated logs to this path.
	LogFile string `koanf:"log_file"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// WorkerCount bounds how many enrolled identities are scored in parallel.
	WorkerCount int `koanf:"worker_count"`

	// ExtractionSlots bounds concurrent signature extractions.
	ExtractionSlots int `koanf:"extraction_slots"`

	// QueueSize bounds the in-memory attendance queue.
	QueueSize int `koanf:"queue_size"`

	// DedupeSize sets how many attempt ids are remembered for replay detection.
	DedupeSize int `koanf:"dedupe_size"`

	// AttendanceWorkers sets the number of attendance writers.
	AttendanceWorkers int `koanf:"attendance_workers"`

	// BaseThreshold is the initial minimum match score. It can be changed at
	// runtime through the settings store.
	BaseThreshold float64 `koanf:"base_threshold"`

	// PolicyProfile optionally points at a TOML calibration profile.
	PolicyProfile string `koanf:"policy_profile"`

	// EncryptionKey seeds the template encryption key.
	EncryptionKey string `koanf:"encryption_key"`

	// DatabaseURL selects PostgreSQL persistence; empty keeps everything in memory.
	DatabaseURL string `koanf:"database_url"`

	// ProviderURL is the base URL of the landmark/keypoint inference sidecar.
	ProviderURL string `koanf:"provider_url"`
	// ProviderTimeoutMS bounds each inference call.
	ProviderTimeoutMS int `koanf:"provider_timeout_ms"`

	// MaxImageBytes caps the decoded size of an uploaded capture.
	MaxImageBytes int `koanf:"max_image_bytes"`

	// MaxAttendanceLimit caps GET /attendance?limit.
	MaxAttendanceLimit int `koanf:"max_attendance_limit"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":9080",
		WorkerCount:        runtime.NumCPU(),
		ExtractionSlots:    runtime.NumCPU(),
		QueueSize:          10_000,
		DedupeSize:         100_000,
		AttendanceWorkers:  2,
		BaseThreshold:      0.6,
		EncryptionKey:      DefaultEncryptionKey,
		ProviderURL:        "http://127.0.0.1:8500",
		ProviderTimeoutMS:  10_000,
		MaxImageBytes:      10 << 20,
		MaxAttendanceLimit: 500,
	}
}
