package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/avelichko/libcirc/internal/errs"
	"github.com/avelichko/libcirc/internal/model"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts a new user and assigns the named role in one transaction.
func (r *UserRepo) Create(ctx context.Context, u *model.User, roleName string) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const selRole = `SELECT id FROM roles WHERE name=$1`
	var roleID uuid.UUID
	if err = tx.QueryRow(ctx, selRole, roleName).Scan(&roleID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("role %q: %w", roleName, errs.ErrNotFound)
		}
		return err
	}

	const insUser = `
INSERT INTO users (id, login, full_name, phone, password_hash, is_active)
VALUES ($1, $2, $3, NULLIF($4,''), $5, $6)`
	if _, err = tx.Exec(ctx, insUser, u.ID, u.Login, u.FullName, u.Phone, u.PasswordHash, u.IsActive); err != nil {
		if isUniqueViolation(err) {
			return errs.ErrAlreadyExists
		}
		return err
	}

	const insRole = `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`
	if _, err = tx.Exec(ctx, insRole, u.ID, roleID); err != nil {
		return err
	}
	return nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Login, &u.FullName, &u.Phone, &u.PasswordHash, &u.IsActive, &u.CreatedAt); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	const q = `
SELECT id, login, full_name, COALESCE(phone,''), password_hash, is_active, created_at
FROM users WHERE id=$1`
	return scanUser(r.db.Pool.QueryRow(ctx, q, id))
}

// GetByLogin selects a user by login.
func (r *UserRepo) GetByLogin(ctx context.Context, login string) (*model.User, error) {
	const q = `
SELECT id, login, full_name, COALESCE(phone,''), password_hash, is_active, created_at
FROM users WHERE login=$1`
	return scanUser(r.db.Pool.QueryRow(ctx, q, login))
}

// RoleGrants returns the user's roles with their raw rights maps.
func (r *UserRepo) RoleGrants(ctx context.Context, userID uuid.UUID) ([]model.RoleGrant, error) {
	const q = `
SELECT r.name, r.rights
FROM roles r
JOIN user_roles ur ON ur.role_id = r.id
WHERE ur.user_id=$1
ORDER BY r.name ASC`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RoleGrant
	for rows.Next() {
		var (
			g   model.RoleGrant
			raw []byte
		)
		if err = rows.Scan(&g.Name, &raw); err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			if err = json.Unmarshal(raw, &g.Rights); err != nil {
				return nil, fmt.Errorf("rights for role %q: %w", g.Name, err)
			}
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// HasRole reports whether the user holds the named role.
func (r *UserRepo) HasRole(ctx context.Context, userID uuid.UUID, roleName string) (bool, error) {
	const q = `
SELECT EXISTS (
    SELECT 1 FROM user_roles ur
    JOIN roles r ON r.id = ur.role_id
    WHERE ur.user_id=$1 AND r.name=$2
)`
	var ok bool
	if err := r.db.Pool.QueryRow(ctx, q, userID, roleName).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// SetActive enables or disables an account.
func (r *UserRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	const q = `UPDATE users SET is_active=$2 WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// SetPasswordHash replaces the stored password hash.
func (r *UserRepo) SetPasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	const q = `UPDATE users SET password_hash=$2 WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
