package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/avelichko/libcirc/internal/errs"
	"github.com/avelichko/libcirc/internal/model"
)

// CopyRepo implements CopyRepository using PostgreSQL.
type CopyRepo struct{ db *DB }

// NewCopyRepo constructs a copy repository.
func NewCopyRepo(db *DB) *CopyRepo { return &CopyRepo{db: db} }

func scanCopy(row pgx.Row) (*model.Copy, error) {
	var c model.Copy
	if err := row.Scan(&c.ID, &c.InventoryCode, &c.Status, &c.Price, &c.ConditionNote, &c.BookID, &c.LocationID); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// GetByCode resolves a copy by its unique inventory code.
func (r *CopyRepo) GetByCode(ctx context.Context, code string) (*model.Copy, error) {
	const q = `
SELECT id, inventory_code, status, price, COALESCE(condition_note,''), book_id, location_id
FROM copies WHERE inventory_code=$1`
	return scanCopy(r.db.Pool.QueryRow(ctx, q, code))
}

// GetByID loads a copy by ID.
func (r *CopyRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Copy, error) {
	const q = `
SELECT id, inventory_code, status, price, COALESCE(condition_note,''), book_id, location_id
FROM copies WHERE id=$1`
	return scanCopy(r.db.Pool.QueryRow(ctx, q, id))
}

// AvailableBranches groups available copies of the book by branch.
func (r *CopyRepo) AvailableBranches(ctx context.Context, bookID uuid.UUID) ([]model.BranchAvailability, error) {
	const q = `
SELECT b.id, b.name, COALESCE(b.address,''), COALESCE(b.phone,''), COUNT(c.id)
FROM branches b
JOIN locations l ON l.branch_id = b.id
JOIN copies c ON c.location_id = l.id
WHERE c.book_id=$1 AND c.status='available'
GROUP BY b.id, b.name, b.address, b.phone
ORDER BY b.name ASC`
	rows, err := r.db.Pool.Query(ctx, q, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.BranchAvailability
	for rows.Next() {
		var ba model.BranchAvailability
		if err = rows.Scan(&ba.BranchID, &ba.Name, &ba.Address, &ba.Phone, &ba.AvailableCount); err != nil {
			return nil, err
		}
		out = append(out, ba)
	}
	return out, rows.Err()
}

// AvailabilityByBook summarizes copy counts per status for every book.
func (r *CopyRepo) AvailabilityByBook(ctx context.Context) ([]model.BookAvailability, error) {
	const q = `
SELECT bk.id, bk.title,
       COUNT(c.id),
       COUNT(c.id) FILTER (WHERE c.status='available'),
       COUNT(c.id) FILTER (WHERE c.status='loaned'),
       COUNT(c.id) FILTER (WHERE c.status='reserved'),
       COUNT(c.id) FILTER (WHERE c.status='lost'),
       COUNT(c.id) FILTER (WHERE c.status='damaged')
FROM books bk
LEFT JOIN copies c ON c.book_id = bk.id
GROUP BY bk.id, bk.title
ORDER BY bk.title ASC`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.BookAvailability
	for rows.Next() {
		var ba model.BookAvailability
		if err = rows.Scan(&ba.BookID, &ba.Title, &ba.Total, &ba.Available, &ba.Loaned, &ba.Reserved, &ba.Lost, &ba.Damaged); err != nil {
			return nil, err
		}
		out = append(out, ba)
	}
	return out, rows.Err()
}

// lockCopy acquires an exclusive row lock on the copy for the duration of tx
// and returns the row as it is under the lock.
func lockCopy(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Copy, error) {
	const q = `
SELECT id, inventory_code, status, price, COALESCE(condition_note,''), book_id, location_id
FROM copies WHERE id=$1 FOR UPDATE`
	var c model.Copy
	if err := tx.QueryRow(ctx, q, id).Scan(&c.ID, &c.InventoryCode, &c.Status, &c.Price, &c.ConditionNote, &c.BookID, &c.LocationID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, mapLockErr(err)
	}
	return &c, nil
}

// setCopyStatus writes the copy status inside tx after validating the
// transition against the allowed table.
func setCopyStatus(ctx context.Context, tx pgx.Tx, c *model.Copy, next model.CopyStatus) error {
	if !c.Status.CanBecome(next) {
		return fmt.Errorf("%w: copy %s cannot go %s -> %s", errs.ErrConflict, c.InventoryCode, c.Status, next)
	}
	const q = `UPDATE copies SET status=$2 WHERE id=$1`
	if _, err := tx.Exec(ctx, q, c.ID, string(next)); err != nil {
		return err
	}
	c.Status = next
	return nil
}
