package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"

	pkgcrypto "github.com/avelichko/libcirc/internal/crypto"
	"github.com/avelichko/libcirc/internal/errs"
	"github.com/avelichko/libcirc/internal/model"
	"github.com/avelichko/libcirc/internal/repository"
)

// UserService covers staff account management.
type UserService interface {
	// RegisterLibrarian creates a Librarian account.
	RegisterLibrarian(ctx context.Context, sess model.Session, in RegisterInput) (uuid.UUID, error)
	// SetActive enables or disables an account.
	SetActive(ctx context.Context, sess model.Session, userID uuid.UUID, active bool) error
	// ResetPassword replaces an account's password.
	ResetPassword(ctx context.Context, sess model.Session, userID uuid.UUID, password string) error
}

type UserServiceImpl struct {
	users repository.UserRepository
}

// NewUserService constructs UserService.
func NewUserService(users repository.UserRepository) *UserServiceImpl {
	return &UserServiceImpl{users: users}
}

func (s *UserServiceImpl) RegisterLibrarian(ctx context.Context, sess model.Session, in RegisterInput) (uuid.UUID, error) {
	if !sess.Can(model.PermManageUsers) {
		return uuid.Nil, errs.ErrPermissionDenied
	}
	return createUser(ctx, s.users, in, RoleLibrarian)
}

// SetActive refuses to disable the caller's own account and any Admin
// account, so the system cannot be locked out of administration.
func (s *UserServiceImpl) SetActive(ctx context.Context, sess model.Session, userID uuid.UUID, active bool) error {
	if !sess.Can(model.PermManageUsers) {
		return errs.ErrPermissionDenied
	}
	if userID == uuid.Nil {
		return errors.New("validation: empty user id")
	}
	if !active {
		if userID == sess.User.ID {
			return fmt.Errorf("%w: cannot disable own account", errs.ErrConflict)
		}
		isAdmin, err := s.users.HasRole(ctx, userID, RoleAdmin)
		if err != nil {
			return err
		}
		if isAdmin {
			return fmt.Errorf("%w: cannot disable an Admin account", errs.ErrConflict)
		}
	}
	return s.users.SetActive(ctx, userID, active)
}

func (s *UserServiceImpl) ResetPassword(ctx context.Context, sess model.Session, userID uuid.UUID, password string) error {
	if !sess.Can(model.PermManageUsers) {
		return errs.ErrPermissionDenied
	}
	if userID == uuid.Nil {
		return errors.New("validation: empty user id")
	}
	if len(password) < minPasswordLen {
		return fmt.Errorf("validation: password must be at least %d characters", minPasswordLen)
	}
	hash, err := pkgcrypto.HashPassword(password)
	if err != nil {
		return err
	}
	return s.users.SetPasswordHash(ctx, userID, hash)
}
