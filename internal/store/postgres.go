package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/soillink/soillink/internal/circuitbreaker"
	"github.com/soillink/soillink/internal/logger"
	"github.com/soillink/soillink/internal/metrics"
	"github.com/soillink/soillink/internal/soil"
	"github.com/soillink/soillink/internal/tracing"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            UUID PRIMARY KEY,
	name          TEXT NOT NULL,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role          TEXT NOT NULL DEFAULT 'user',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS soil_samples (
	id               UUID PRIMARY KEY,
	user_id          UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	name             TEXT NOT NULL,
	ph_level         DOUBLE PRECISION NOT NULL,
	water_level      DOUBLE PRECISION NOT NULL,
	soil_health      DOUBLE PRECISION NOT NULL,
	nitrogen_level   DOUBLE PRECISION NOT NULL,
	phosphorus_level DOUBLE PRECISION NOT NULL,
	potassium_level  DOUBLE PRECISION NOT NULL,
	notes            TEXT NOT NULL DEFAULT '',
	location         TEXT NOT NULL DEFAULT '',
	submitted_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	status           TEXT NOT NULL DEFAULT 'completed' CHECK (status IN ('pending', 'completed'))
);

CREATE INDEX IF NOT EXISTS soil_samples_user_submitted_idx
	ON soil_samples (user_id, submitted_at DESC);
`

const sampleColumns = `id, user_id, name, ph_level, water_level, soil_health, nitrogen_level,
	phosphorus_level, potassium_level, notes, location, submitted_at, status`

// pq error codes
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// QueryObserver receives the timing of every database call.
type QueryObserver interface {
	TrackQuery(d time.Duration, err error)
}

// PostgresOptions tunes the connection pool and instrumentation.
type PostgresOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Observer        QueryObserver
	Breaker         *circuitbreaker.CircuitBreaker
}

// PostgresStore implements Store on PostgreSQL through lib/pq. Every call
// runs behind a circuit breaker, inside a tracing span, and is timed.
type PostgresStore struct {
	db       *sql.DB
	breaker  *circuitbreaker.CircuitBreaker
	observer QueryObserver
}

// OpenPostgres connects, pings and migrates the schema.
func OpenPostgres(ctx context.Context, dsn string, opts PostgresOptions) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 10
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 5
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = 30 * time.Minute
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := NewPostgresStore(db, opts)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore wraps an already open database.
func NewPostgresStore(db *sql.DB, opts PostgresOptions) *PostgresStore {
	breaker := opts.Breaker
	if breaker == nil {
		breaker = circuitbreaker.New(circuitbreaker.Config{
			Name:             "postgres",
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
			IsFailure:        isInfrastructureError,
		})
	}
	return &PostgresStore{db: db, breaker: breaker, observer: opts.Observer}
}

// isInfrastructureError keeps expected outcomes from tripping the breaker.
func isInfrastructureError(err error) bool {
	switch {
	case err == nil,
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrDuplicateEmail),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

// Migrate creates missing tables and indexes.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return s.do(ctx, "migrate", func(ctx context.Context) error {
		if _, err := s.db.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) do(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, span := tracing.StartSpan(ctx, "store."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.operation", op)),
	)
	defer span.End()

	start := time.Now()
	err := s.breaker.Execute(ctx, fn)
	elapsed := time.Since(start)

	metrics.DBOperationDuration.WithLabelValues(op).Observe(elapsed.Seconds())
	failed := isInfrastructureError(err)
	if failed {
		metrics.DBOperationErrors.WithLabelValues(op).Inc()
		tracing.RecordError(span, err)
		logger.ErrorContext(ctx, "database operation failed", "operation", op, "error", err)
	}
	if s.observer != nil {
		var observed error
		if failed {
			observed = err
		}
		s.observer.TrackQuery(elapsed, observed)
	}
	return err
}

func (s *PostgresStore) CreateUser(ctx context.Context, u User) (User, error) {
	u.ID = uuid.NewString()
	u.Email = NormalizeEmail(u.Email)
	if u.Role == "" {
		u.Role = RoleUser
	}
	err := s.do(ctx, "create_user", func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx,
			`INSERT INTO users (id, name, email, password_hash, role) VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
			u.ID, u.Name, u.Email, u.PasswordHash, u.Role)
		if err := row.Scan(&u.CreatedAt); err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
				return ErrDuplicateEmail
			}
			return fmt.Errorf("insert user: %w", err)
		}
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *PostgresStore) UserByEmail(ctx context.Context, email string) (User, error) {
	return s.queryUser(ctx, "user_by_email", `WHERE email = $1`, NormalizeEmail(email))
}

func (s *PostgresStore) UserByID(ctx context.Context, id string) (User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return User{}, ErrNotFound
	}
	return s.queryUser(ctx, "user_by_id", `WHERE id = $1`, id)
}

func (s *PostgresStore) queryUser(ctx context.Context, op, where string, arg any) (User, error) {
	var u User
	err := s.do(ctx, op, func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx,
			`SELECT id, name, email, password_hash, role, created_at FROM users `+where, arg)
		err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	})
	return u, err
}

func (s *PostgresStore) CreateSample(ctx context.Context, smp soil.Sample) (soil.Sample, error) {
	if _, err := uuid.Parse(smp.UserID); err != nil {
		return soil.Sample{}, ErrNotFound
	}
	smp.ID = uuid.NewString()
	if smp.Status == "" {
		smp.Status = soil.StatusCompleted
	}
	if smp.SubmittedAt.IsZero() {
		smp.SubmittedAt = time.Now()
	}
	smp.SubmittedAt = smp.SubmittedAt.UTC()

	err := s.do(ctx, "create_sample", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO soil_samples (`+sampleColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			smp.ID, smp.UserID, smp.Name, smp.PHLevel, smp.WaterLevel, smp.SoilHealth,
			smp.NitrogenLevel, smp.PhosphorusLevel, smp.PotassiumLevel,
			smp.Notes, smp.Location, smp.SubmittedAt, smp.Status)
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == foreignKeyViolation {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("insert sample: %w", err)
		}
		return nil
	})
	if err != nil {
		return soil.Sample{}, err
	}
	return smp, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSample(row scanner) (soil.Sample, error) {
	var smp soil.Sample
	err := row.Scan(&smp.ID, &smp.UserID, &smp.Name, &smp.PHLevel, &smp.WaterLevel, &smp.SoilHealth,
		&smp.NitrogenLevel, &smp.PhosphorusLevel, &smp.PotassiumLevel,
		&smp.Notes, &smp.Location, &smp.SubmittedAt, &smp.Status)
	smp.SubmittedAt = smp.SubmittedAt.UTC()
	return smp, err
}

func (s *PostgresStore) SampleByID(ctx context.Context, userID, id string) (soil.Sample, error) {
	if _, err := uuid.Parse(id); err != nil {
		return soil.Sample{}, ErrNotFound
	}
	if _, err := uuid.Parse(userID); err != nil {
		return soil.Sample{}, ErrNotFound
	}
	var smp soil.Sample
	err := s.do(ctx, "sample_by_id", func(ctx context.Context) error {
		var err error
		smp, err = scanSample(s.db.QueryRowContext(ctx,
			`SELECT `+sampleColumns+` FROM soil_samples WHERE id = $1 AND user_id = $2`, id, userID))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	})
	return smp, err
}

func (s *PostgresStore) ListSamples(ctx context.Context, userID string, limit int) ([]soil.Sample, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return []soil.Sample{}, nil
	}
	var q strings.Builder
	q.WriteString(`SELECT ` + sampleColumns + ` FROM soil_samples WHERE user_id = $1 ORDER BY submitted_at DESC, id`)
	args := []any{userID}
	if limit > 0 {
		q.WriteString(` LIMIT $2`)
		args = append(args, limit)
	}

	out := []soil.Sample{}
	err := s.do(ctx, "list_samples", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, q.String(), args...)
		if err != nil {
			return fmt.Errorf("list samples: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			smp, err := scanSample(rows)
			if err != nil {
				return fmt.Errorf("scan sample: %w", err)
			}
			out = append(out, smp)
		}
		return rows.Err()
	})
	return out, err
}

func (s *PostgresStore) CountSamples(ctx context.Context, userID string) (int, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return 0, nil
	}
	var n int
	err := s.do(ctx, "count_samples", func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, `SELECT count(*) FROM soil_samples WHERE user_id = $1`, userID).Scan(&n)
	})
	return n, err
}

func (s *PostgresStore) Totals(ctx context.Context) (int, int, error) {
	var users, samples int
	err := s.do(ctx, "totals", func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx,
			`SELECT (SELECT count(*) FROM users), (SELECT count(*) FROM soil_samples)`).Scan(&users, &samples)
	})
	return users, samples, err
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.do(ctx, "ping", s.db.PingContext)
}

func (s *PostgresStore) Close() error { return s.db.Close() }
