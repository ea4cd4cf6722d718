package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kevinmaint/maint-api/internal/models"
)

// UserRepository handles user database operations
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, provider_id, name, role, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.ProviderID,
		&user.Name,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, email, provider_id, name, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	if user.Role == "" {
		user.Role = models.RoleReporter
	}
	now := time.Now()
	err := r.db.QueryRowContext(ctx, query,
		user.ID,
		user.Email,
		user.ProviderID,
		user.Name,
		user.Role,
		now,
		now,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user not found: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetByProviderID retrieves a user by the identity provider's subject
func (r *UserRepository) GetByProviderID(ctx context.Context, providerID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE provider_id = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, providerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user not found: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by provider ID: %w", err)
	}
	return user, nil
}

// Update updates an existing user's profile fields
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users
		SET email = $2, name = $3, role = $4, updated_at = $5
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.Role,
		time.Now(),
	).Scan(&user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("user not found: %w", ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// EnsureFromClaims returns the user for a verified token, creating it on first
// sight and refreshing email, name and role when the token disagrees.
func (r *UserRepository) EnsureFromClaims(ctx context.Context, claims *models.JWTClaims) (*models.User, error) {
	role := models.UserRole(claims.Role)
	switch role {
	case models.RoleReporter, models.RoleManager, models.RoleAdmin:
	default:
		role = models.RoleReporter
	}

	user, err := r.GetByProviderID(ctx, claims.Sub)
	if errors.Is(err, ErrNotFound) {
		sub := claims.Sub
		user = &models.User{
			ID:         uuid.New(),
			Email:      claims.Email,
			ProviderID: &sub,
			Role:       role,
		}
		if claims.Name != "" {
			name := claims.Name
			user.Name = &name
		}
		if err := r.Create(ctx, user); err != nil {
			return nil, err
		}
		return user, nil
	}
	if err != nil {
		return nil, err
	}

	updateNeeded := false
	if claims.Email != "" && user.Email != claims.Email {
		user.Email = claims.Email
		updateNeeded = true
	}
	if claims.Name != "" && (user.Name == nil || *user.Name != claims.Name) {
		name := claims.Name
		user.Name = &name
		updateNeeded = true
	}
	if claims.Role != "" && user.Role != role {
		user.Role = role
		updateNeeded = true
	}
	if updateNeeded {
		if err := r.Update(ctx, user); err != nil {
			return nil, err
		}
	}
	return user, nil
}
