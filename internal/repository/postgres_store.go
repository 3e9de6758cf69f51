package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"camwatch/internal/model"
)

const pgUniqueViolation = "23505"

// PostgresStore backs the user table with Postgres. Uniqueness is
// enforced by the users_username_key index, so concurrent Create and
// rename races resolve in the database rather than in Go.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) FindByUsername(ctx context.Context, username string) (model.User, error) {
	return s.scanOne(ctx,
		`SELECT id, username, password_hash, role, protected, created_at, last_login
		 FROM users WHERE username = $1`, username)
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (model.User, error) {
	return s.scanOne(ctx,
		`SELECT id, username, password_hash, role, protected, created_at, last_login
		 FROM users WHERE id = $1`, id)
}

func (s *PostgresStore) List(ctx context.Context) ([]model.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, username, password_hash, role, protected, created_at, last_login
		 FROM users ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role,
			&u.Protected, &u.CreatedAt, &u.LastLogin); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

func (s *PostgresStore) Create(ctx context.Context, u model.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, username, password_hash, role, protected, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Username, u.PasswordHash, u.Role, u.Protected, u.CreatedAt)
	if isUniqueViolation(err) {
		return model.ErrUsernameTaken
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	return nil
}

func (s *PostgresStore) Update(ctx context.Context, id string, upd model.UserUpdate) error {
	existing, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if existing.Protected {
		return model.ErrProtected
	}

	username := existing.Username
	if upd.Username != nil {
		username = *upd.Username
	}
	hash := existing.PasswordHash
	if upd.PasswordHash != nil {
		hash = *upd.PasswordHash
	}

	// Protected is re-checked in the WHERE clause so a concurrent Seed
	// cannot be overwritten between the read and the write.
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET username = $2, password_hash = $3
		 WHERE id = $1 AND NOT protected`,
		id, username, hash)
	if isUniqueViolation(err) {
		return model.ErrUsernameTaken
	}
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrProtected
	}

	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	existing, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if existing.Protected {
		return model.ErrProtected
	}

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM users WHERE id = $1 AND NOT protected`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrProtected
	}

	return nil
}

func (s *PostgresStore) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET last_login = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrUserNotFound
	}

	return nil
}

func (s *PostgresStore) Seed(ctx context.Context, admins []SeedAdmin) error {
	for _, admin := range admins {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO users (id, username, password_hash, role, protected, created_at)
			 VALUES ($1, $2, $3, 'admin', TRUE, $4)
			 ON CONFLICT (username) DO UPDATE
			 SET password_hash = EXCLUDED.password_hash, role = 'admin', protected = TRUE`,
			uuid.NewString(), admin.Username, admin.PasswordHash, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("seed admin %s: %w", admin.Username, err)
		}
	}

	return nil
}

func (s *PostgresStore) scanOne(ctx context.Context, query string, arg any) (model.User, error) {
	var u model.User
	err := s.pool.QueryRow(ctx, query, arg).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role,
			&u.Protected, &u.CreatedAt, &u.LastLogin)

	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("find user: %w", err)
	}

	return u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
