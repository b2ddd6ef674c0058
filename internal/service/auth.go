// Package service contains application services for authentication,
// reservations, loans and user management. Every mutating operation takes the
// caller's Session by value and checks permissions before touching the store.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	pkgcrypto "github.com/avelichko/libcirc/internal/crypto"
	"github.com/avelichko/libcirc/internal/errs"
	"github.com/avelichko/libcirc/internal/limiter"
	"github.com/avelichko/libcirc/internal/model"
	"github.com/avelichko/libcirc/internal/repository"
)

// RoleReader is assigned on self-registration; RoleLibrarian and RoleAdmin
// are assigned by staff.
const (
	RoleAdmin     = "Admin"
	RoleLibrarian = "Librarian"
	RoleReader    = "Reader"
)

const minPasswordLen = 4

// RegisterInput carries the fields needed to create an account.
type RegisterInput struct {
	Login    string
	FullName string
	Phone    string
	Password string
}

// AuthService defines authentication and registration operations.
type AuthService interface {
	// LoginWithIP applies rate limiting, verifies credentials and returns
	// the per-login session with an access token for the HTTP API.
	LoginWithIP(ctx context.Context, login, password, ip string) (model.Session, model.Tokens, error)
	// SessionFor rebuilds a session for an already-authenticated user ID.
	SessionFor(ctx context.Context, userID uuid.UUID) (model.Session, error)
	// Register creates a Reader account (self-registration).
	Register(ctx context.Context, in RegisterInput) (uuid.UUID, error)
}

type AuthServiceImpl struct {
	users     repository.UserRepository
	signKey   []byte
	accessTTL time.Duration
	lim       limiter.Limiter
	now       func() time.Time
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(users repository.UserRepository, signKey []byte, accessTTL time.Duration, lim limiter.Limiter) *AuthServiceImpl {
	return &AuthServiceImpl{users: users, signKey: signKey, accessTTL: accessTTL, lim: lim, now: time.Now}
}

// LoginWithIP authenticates with rate limiting by (login, ip).
func (s *AuthServiceImpl) LoginWithIP(ctx context.Context, login, password, ip string) (model.Session, model.Tokens, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return model.Session{}, model.Tokens{}, errors.New("validation: empty login/password")
	}

	ipHash := limiter.HashIP(ip)
	allowed, _, err := s.lim.Allow(ctx, login, ipHash)
	if err != nil {
		return model.Session{}, model.Tokens{}, err
	}
	if !allowed {
		return model.Session{}, model.Tokens{}, errs.ErrRateLimited
	}

	u, err := s.users.GetByLogin(ctx, login)
	if err != nil || !pkgcrypto.VerifyPassword(password, u.PasswordHash) {
		// Record failure; if the threshold is reached the caller is locked out.
		if blocked, _, ferr := s.lim.Failure(ctx, login, ipHash); ferr == nil && blocked {
			return model.Session{}, model.Tokens{}, errs.ErrRateLimited
		}
		// hide account existence on wrong password
		return model.Session{}, model.Tokens{}, errs.ErrUnauthorized
	}
	if !u.IsActive {
		return model.Session{}, model.Tokens{}, errs.ErrAccountDisabled
	}

	_ = s.lim.Success(ctx, login, ipHash)

	sess, err := s.buildSession(ctx, u)
	if err != nil {
		return model.Session{}, model.Tokens{}, err
	}
	access, exp, err := s.issueAccessToken(u.ID)
	if err != nil {
		return model.Session{}, model.Tokens{}, err
	}
	return sess, model.Tokens{AccessToken: access, ExpiresAt: exp}, nil
}

// SessionFor rebuilds a session for a bearer-token request. Rights are merged
// fresh so role changes apply on the next request, not the next login.
func (s *AuthServiceImpl) SessionFor(ctx context.Context, userID uuid.UUID) (model.Session, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return model.Session{}, errs.ErrUnauthorized
	}
	if !u.IsActive {
		return model.Session{}, errs.ErrAccountDisabled
	}
	return s.buildSession(ctx, u)
}

// buildSession merges the user's role grants into a flattened rights value.
func (s *AuthServiceImpl) buildSession(ctx context.Context, u *model.User) (model.Session, error) {
	grants, err := s.users.RoleGrants(ctx, u.ID)
	if err != nil {
		return model.Session{}, err
	}
	roles := make([]string, 0, len(grants))
	for _, g := range grants {
		roles = append(roles, g.Name)
	}
	if len(roles) == 0 {
		roles = []string{RoleReader}
	}
	return model.Session{User: *u, Roles: roles, Rights: model.MergeRights(grants)}, nil
}

// Register creates a Reader account.
func (s *AuthServiceImpl) Register(ctx context.Context, in RegisterInput) (uuid.UUID, error) {
	return createUser(ctx, s.users, in, RoleReader)
}

// createUser validates input, hashes the password and stores the account with
// the given role. Shared by self-registration and staff-created accounts.
func createUser(ctx context.Context, users repository.UserRepository, in RegisterInput, roleName string) (uuid.UUID, error) {
	in.Login = strings.TrimSpace(in.Login)
	in.FullName = strings.TrimSpace(in.FullName)
	in.Phone = strings.TrimSpace(in.Phone)
	if in.Login == "" || in.FullName == "" || in.Password == "" {
		return uuid.Nil, errors.New("validation: login, full name and password are required")
	}
	if len(in.Password) < minPasswordLen {
		return uuid.Nil, fmt.Errorf("validation: password must be at least %d characters", minPasswordLen)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, err
	}
	hash, err := pkgcrypto.HashPassword(in.Password)
	if err != nil {
		return uuid.Nil, err
	}
	u := &model.User{
		ID:           id,
		Login:        in.Login,
		FullName:     in.FullName,
		Phone:        in.Phone,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := users.Create(ctx, u, roleName); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// issueAccessToken creates a signed HS256 JWT for the given subject.
func (s *AuthServiceImpl) issueAccessToken(userID uuid.UUID) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.accessTTL)
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signKey)
	return signed, exp, err
}
