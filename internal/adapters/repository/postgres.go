package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/okian/biomatch/internal/domain/model"
	"github.com/okian/biomatch/pkg/metrics"
)

const uniqueViolation = "23505"

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database and ensures the schema exists.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS identities (
			id BIGSERIAL PRIMARY KEY,
			registration_number TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			eye_template BYTEA NOT NULL,
			thumb_template BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS attendance (
			id BIGSERIAL PRIMARY KEY,
			attempt_id TEXT UNIQUE,
			identity_id BIGINT REFERENCES identities(id),
			eye_score DOUBLE PRECISION NOT NULL,
			thumb_score DOUBLE PRECISION NOT NULL,
			status TEXT NOT NULL,
			method TEXT NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS attendance_recorded_at_idx ON attendance (recorded_at DESC);
		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`
	_, err := pool.Exec(ctx, query)
	return err
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Create implements TemplateStore.
func (s *PostgresStore) Create(ctx context.Context, t model.Template) (model.Template, error) {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO identities (registration_number, name, eye_template, thumb_template)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, t.RegistrationNumber, t.Name, t.EyeTemplate, t.ThumbTemplate).Scan(&t.IdentityID, &t.CreatedAt)
	if isUniqueViolation(err) {
		return model.Template{}, fmt.Errorf("registration number %q: %w", t.RegistrationNumber, ErrAlreadyExists)
	}
	if err != nil {
		return model.Template{}, fmt.Errorf("insert identity: %w", err)
	}
	metrics.UpdateEnrolledIdentities(s.Count(ctx))
	return t, nil
}

// Replace implements TemplateStore.
func (s *PostgresStore) Replace(ctx context.Context, id int64, eye, thumb []byte) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE identities SET eye_template = $2, thumb_template = $3 WHERE id = $1
	`, id, eye, thumb)
	if err != nil {
		return fmt.Errorf("update identity %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("identity %d: %w", id, ErrNotFound)
	}
	return nil
}

// Get implements TemplateStore.
func (s *PostgresStore) Get(ctx context.Context, id int64) (model.Template, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, registration_number, name, eye_template, thumb_template, created_at
		FROM identities WHERE id = $1
	`, id)
	t, err := scanTemplate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Template{}, fmt.Errorf("identity %d: %w", id, ErrNotFound)
	}
	return t, err
}

// List implements TemplateStore.
func (s *PostgresStore) List(ctx context.Context) ([]model.Template, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, registration_number, name, eye_template, thumb_template, created_at
		FROM identities ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Template, error) {
		return scanTemplate(row)
	})
}

// Count implements TemplateStore. Errors count as zero.
func (s *PostgresStore) Count(ctx context.Context) int {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM identities`).Scan(&n); err != nil {
		return 0
	}
	return n
}

// Record implements AttendanceStore.
func (s *PostgresStore) Record(ctx context.Context, a model.Attendance) (model.Attendance, error) {
	var attempt *string
	if a.AttemptID != "" {
		attempt = &a.AttemptID
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO attendance (attempt_id, identity_id, eye_score, thumb_score, status, method)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, recorded_at
	`, attempt, a.IdentityID, a.EyeScore, a.ThumbScore, a.Status, a.Method).Scan(&a.ID, &a.Timestamp)
	if isUniqueViolation(err) {
		return model.Attendance{}, fmt.Errorf("attempt %s: %w", a.AttemptID, ErrAlreadyExists)
	}
	if err != nil {
		return model.Attendance{}, fmt.Errorf("insert attendance: %w", err)
	}
	return a, nil
}

// Recent implements AttendanceStore.
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]model.Attendance, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, COALESCE(attempt_id, ''), identity_id, eye_score, thumb_score, status, method, recorded_at
		FROM attendance ORDER BY id DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Attendance, error) {
		var a model.Attendance
		err := row.Scan(&a.ID, &a.AttemptID, &a.IdentityID, &a.EyeScore, &a.ThumbScore, &a.Status, &a.Method, &a.Timestamp)
		return a, err
	})
}

// Float implements SettingsStore.
func (s *PostgresStore) Float(ctx context.Context, key string) (float64, error) {
	var raw string
	err := s.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("setting %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("read setting %s: %w", key, err)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("setting %s: %w", key, err)
	}
	return v, nil
}

// SetFloat implements SettingsStore.
func (s *PostgresStore) SetFloat(ctx context.Context, key string, v float64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, key, strconv.FormatFloat(v, 'g', -1, 64))
	if err != nil {
		return fmt.Errorf("write setting %s: %w", key, err)
	}
	return nil
}

func scanTemplate(row pgx.Row) (model.Template, error) {
	var t model.Template
	err := row.Scan(&t.IdentityID, &t.RegistrationNumber, &t.Name, &t.EyeTemplate, &t.ThumbTemplate, &t.CreatedAt)
	return t, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

var _ Store = (*PostgresStore)(nil)
