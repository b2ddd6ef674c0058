// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/avelichko/libcirc/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepository provides account access and role membership.
type UserRepository interface {
	// Create inserts a new user and assigns the named role, atomically.
	Create(ctx context.Context, u *model.User, roleName string) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByLogin loads a user by login.
	GetByLogin(ctx context.Context, login string) (*model.User, error)
	// RoleGrants returns the user's roles with their raw rights maps.
	RoleGrants(ctx context.Context, userID uuid.UUID) ([]model.RoleGrant, error)
	// HasRole reports whether the user holds the named role.
	HasRole(ctx context.Context, userID uuid.UUID, roleName string) (bool, error)
	// SetActive enables or disables an account.
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	// SetPasswordHash replaces the stored password hash.
	SetPasswordHash(ctx context.Context, id uuid.UUID, hash string) error
}
