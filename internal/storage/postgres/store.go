package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Brownie44l1/skinlens/internal/domain/entity"
)

// Store owns the connection pool and exposes one repository per table group.
type Store struct {
	pool *pgxpool.Pool

	Users       *UserRepository
	Sessions    *SessionRepository
	Posts       *PostRepository
	Uploads     *UploadRepository
	Escalations *EscalationRepository
}

// Connect waits for the database with exponential backoff for at most
// maxWait, then ensures the schema exists.
func Connect(ctx context.Context, connString string, maxWait time.Duration, log *zap.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxWait

	var pool *pgxpool.Pool
	err = backoff.Retry(func() error {
		p, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return backoff.Permanent(err)
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			log.Warn("Database not ready", zap.Error(err))
			return err
		}
		pool = p
		return nil
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	log.Info("Connected to database", zap.String("host", cfg.ConnConfig.Host))
	return newStore(pool), nil
}

func newStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:        pool,
		Users:       &UserRepository{pool: pool},
		Sessions:    &SessionRepository{pool: pool},
		Posts:       &PostRepository{pool: pool},
		Uploads:     &UploadRepository{pool: pool},
		Escalations: &EscalationRepository{pool: pool},
	}
}

// initSchema creates the tables if they don't exist.
func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			family_history_skin_cancer BOOLEAN NOT NULL DEFAULT FALSE,
			role TEXT NOT NULL DEFAULT 'patient' CHECK (role IN ('admin', 'doctor', 'patient')),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS sessions (
			access_token TEXT PRIMARY KEY,
			refresh_token TEXT NOT NULL,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			access_expires_at TIMESTAMPTZ NOT NULL,
			refresh_expires_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS posts (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS comments (
			id BIGSERIAL PRIMARY KEY,
			post_id BIGINT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			comment TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS image_uploads (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			image_key TEXT NOT NULL,
			image_url TEXT NOT NULL,
			thumbnail_key TEXT NOT NULL DEFAULT '',
			metadata JSONB NOT NULL DEFAULT '{}',
			prediction JSONB,
			explanation TEXT NOT NULL DEFAULT '',
			uploaded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS escalations (
			id BIGSERIAL PRIMARY KEY,
			patient_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			image_id BIGINT NOT NULL REFERENCES image_uploads(id) ON DELETE CASCADE,
			reason TEXT NOT NULL DEFAULT '',
			contact_number TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'reviewed', 'closed')),
			submitted_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS sessions_refresh_token_idx ON sessions (refresh_token);
		CREATE INDEX IF NOT EXISTS comments_post_id_idx ON comments (post_id);
		CREATE INDEX IF NOT EXISTS image_uploads_user_id_idx ON image_uploads (user_id);
		CREATE INDEX IF NOT EXISTS escalations_patient_id_idx ON escalations (patient_id);
	`)
	return err
}

func (s *Store) Close() {
	s.pool.Close()
}

// Migrate re-runs the idempotent schema creation.
func (s *Store) Migrate(ctx context.Context) error {
	return initSchema(ctx, s.pool)
}

// Reset drops all application tables. Call Migrate afterwards to recreate them.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		DROP TABLE IF EXISTS escalations CASCADE;
		DROP TABLE IF EXISTS image_uploads CASCADE;
		DROP TABLE IF EXISTS comments CASCADE;
		DROP TABLE IF EXISTS posts CASCADE;
		DROP TABLE IF EXISTS sessions CASCADE;
		DROP TABLE IF EXISTS users CASCADE;
	`)
	return err
}

// mapError translates driver errors into domain errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return entity.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", entity.ErrConflict, pgErr.ConstraintName)
		case "23503":
			return fmt.Errorf("%w: %s", entity.ErrNotFound, pgErr.ConstraintName)
		}
	}
	return err
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
