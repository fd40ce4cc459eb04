package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/lib/pq"

	"bahr/analytics/models"
)

var (
	ErrUserNotFound = errors.New("operator not found")
	ErrUserExists   = errors.New("operator already exists")
)

const usersDDL = `
	CREATE TABLE IF NOT EXISTS users (
		id              SERIAL PRIMARY KEY,
		email           TEXT NOT NULL UNIQUE,
		hashed_password BYTEA NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

// UserStore keeps dashboard operator accounts in Postgres.
type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, usersDDL); err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}
	return nil
}

func (s *UserStore) CreateUser(ctx context.Context, email string, hashedPassword []byte) (*models.Operator, error) {
	op := &models.Operator{}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (email, hashed_password)
		VALUES ($1, $2)
		RETURNING id, email, created_at, updated_at
	`, email, hashedPassword).Scan(&op.ID, &op.Email, &op.CreatedAt, &op.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, fmt.Errorf("%w: %s", ErrUserExists, email)
		}
		return nil, fmt.Errorf("failed to create operator: %w", err)
	}

	log.Printf("Operator created: ID=%d, Email=%s", op.ID, op.Email)
	return op, nil
}

func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (*models.Operator, error) {
	op := &models.Operator{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, hashed_password, created_at, updated_at
		FROM users
		WHERE email = $1
	`, email).Scan(&op.ID, &op.Email, &op.HashedPassword, &op.CreatedAt, &op.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, email)
		}
		return nil, fmt.Errorf("failed to get operator by email: %w", err)
	}
	return op, nil
}
