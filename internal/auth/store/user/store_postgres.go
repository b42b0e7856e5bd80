package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"teller/internal/auth/models"
	"teller/pkg/platform/sentinel"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL DEFAULT '',
	role          TEXT NOT NULL,
	permissions   TEXT[] NOT NULL DEFAULT '{}',
	password_hash BYTEA NOT NULL,
	last_login    TIMESTAMPTZ
)`

// PostgresUserStore keeps the credential registry in a users table.
type PostgresUserStore struct {
	db    *sql.DB
	cost  int
	clock func() time.Time
}

type PostgresOption func(*PostgresUserStore)

func WithPostgresBcryptCost(cost int) PostgresOption {
	return func(s *PostgresUserStore) {
		s.cost = cost
	}
}

func WithPostgresClock(clock func() time.Time) PostgresOption {
	return func(s *PostgresUserStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewPostgres(db *sql.DB, opts ...PostgresOption) *PostgresUserStore {
	s := &PostgresUserStore{db: db, cost: bcrypt.DefaultCost, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Migrate creates the users table if it does not exist.
func (s *PostgresUserStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate users: %w", err)
	}
	return nil
}

// Seed inserts seeds that are not present yet. Existing rows keep their
// password and LastLogin.
func (s *PostgresUserStore) Seed(ctx context.Context, seeds []Seed) error {
	query := `
		INSERT INTO users (id, email, name, role, permissions, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`
	for _, seed := range seeds {
		hash, err := bcrypt.GenerateFromPassword([]byte(seed.Password), s.cost)
		if err != nil {
			return fmt.Errorf("hash password for %s: %w", seed.Email, err)
		}
		if _, err := s.db.ExecContext(ctx, query,
			seed.ID, seed.Email, seed.Name, seed.Role, pq.Array(seed.Permissions), hash,
		); err != nil {
			return fmt.Errorf("seed user %s: %w", seed.Email, err)
		}
	}
	return nil
}

func (s *PostgresUserStore) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	if email == "" || password == "" {
		return nil, nil
	}
	var (
		u    models.User
		hash []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, role, permissions, password_hash FROM users WHERE email = $1`, email,
	).Scan(&u.ID, &u.Email, &u.Name, &u.Role, pq.Array(&u.Permissions), &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return nil, nil
	}

	now := s.clock()
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET last_login = $2 WHERE id = $1`, u.ID, now); err != nil {
		return nil, fmt.Errorf("stamp last login: %w", err)
	}
	u.LastLogin = &now
	return &u, nil
}

func (s *PostgresUserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	var (
		u         models.User
		lastLogin sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, role, permissions, last_login FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.Name, &u.Role, pq.Array(&u.Permissions), &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	return &u, nil
}
