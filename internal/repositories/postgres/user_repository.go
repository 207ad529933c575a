package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/patchline/api/internal/domain"
	"github.com/patchline/api/internal/repositories"
)

// UserRepository stores accounts in Postgres.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository constructs a UserRepository over an open database.
func NewUserRepository(db *sql.DB) (*UserRepository, error) {
	if db == nil {
		return nil, errors.New("postgres: database handle is required")
	}
	return &UserRepository{db: db}, nil
}

// Create inserts a new account. A conflicting email maps to ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, user domain.User, passwordHash string) error {
	query := `INSERT INTO users (id, email, name, role, verified, password_hash, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		strings.ToLower(strings.TrimSpace(user.Email)),
		user.Name,
		string(user.Role),
		user.Verified,
		passwordHash,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("%w: email %s", repositories.ErrDuplicate, user.Email)
		}
		return fmt.Errorf("postgres: insert user: %w", err)
	}
	return nil
}

// GetByEmail fetches an account and its credential hash.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (domain.User, string, error) {
	query := `SELECT id, email, name, role, verified, password_hash, created_at, updated_at
	          FROM users WHERE email = $1`

	var user domain.User
	var role, hash string
	err := r.db.QueryRowContext(ctx, query, strings.ToLower(strings.TrimSpace(email))).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&role,
		&user.Verified,
		&hash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, "", fmt.Errorf("%w: user %s", repositories.ErrNotFound, email)
	}
	if err != nil {
		return domain.User{}, "", fmt.Errorf("postgres: query user by email: %w", err)
	}
	user.Role = domain.ParseRole(role)
	return user, hash, nil
}

// GetByID fetches an account by its id.
func (r *UserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	query := `SELECT id, email, name, role, verified, created_at, updated_at
	          FROM users WHERE id = $1`

	var user domain.User
	var role string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&role,
		&user.Verified,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, fmt.Errorf("%w: user %s", repositories.ErrNotFound, id)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("postgres: query user by id: %w", err)
	}
	user.Role = domain.ParseRole(role)
	return user, nil
}
