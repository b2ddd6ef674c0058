package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/avelichko/libcirc/internal/errs"
	"github.com/avelichko/libcirc/internal/model"
)

// LoanRepo implements LoanRepository using PostgreSQL.
type LoanRepo struct{ db *DB }

// NewLoanRepo constructs a loan repository.
func NewLoanRepo(db *DB) *LoanRepo { return &LoanRepo{db: db} }

// Issue creates the loan and flips its copy to loaned, in one transaction.
// The copy status is rechecked under its row lock; a concurrent issue or
// reserve makes the second caller fail with a conflict.
func (r *LoanRepo) Issue(ctx context.Context, l *model.Loan) (err error) {
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

	c, err := lockCopy(ctx, tx, l.CopyID)
	if err != nil {
		return err
	}
	if c.Status != model.CopyAvailable {
		return fmt.Errorf("%w: copy %s is %s", errs.ErrConflict, c.InventoryCode, c.Status)
	}

	const ins = `
INSERT INTO loans (id, status, start_date, due_date, copy_id, reader_id, librarian_id)
VALUES ($1,'open',$2,$3,$4,$5,$6)`
	if _, err = tx.Exec(ctx, ins, l.ID, l.StartDate, l.DueDate, l.CopyID, l.ReaderID, l.LibrarianID); err != nil {
		if isUniqueViolation(err) {
			// backstop index uq_one_open_loan_per_copy fired
			return fmt.Errorf("%w: copy %s already has an active loan", errs.ErrConflict, c.InventoryCode)
		}
		return err
	}
	l.Status = model.LoanOpen
	return setCopyStatus(ctx, tx, c, model.CopyLoaned)
}

// Return closes an open/overdue loan and frees its copy, in one transaction.
// The loan row is locked and rechecked so a concurrent return fails cleanly.
func (r *LoanRepo) Return(ctx context.Context, loanID, librarianID uuid.UUID, returnDate time.Time) (err error) {
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

	const sel = `SELECT status, copy_id FROM loans WHERE id=$1 FOR UPDATE`
	var (
		status model.LoanStatus
		copyID uuid.UUID
	)
	if err = tx.QueryRow(ctx, sel, loanID).Scan(&status, &copyID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ErrNotFound
		}
		return mapLockErr(err)
	}
	if !status.Active() {
		return fmt.Errorf("%w: loan is already %s", errs.ErrConflict, status)
	}

	const upd = `UPDATE loans SET status='returned', return_date=$2, librarian_id=$3 WHERE id=$1`
	if _, err = tx.Exec(ctx, upd, loanID, returnDate, librarianID); err != nil {
		return err
	}

	c, err := lockCopy(ctx, tx, copyID)
	if err != nil {
		return err
	}
	return setCopyStatus(ctx, tx, c, model.CopyAvailable)
}

// MarkOverdue flips all open loans past their due date to overdue.
func (r *LoanRepo) MarkOverdue(ctx context.Context, today time.Time) (int64, error) {
	const q = `UPDATE loans SET status='overdue' WHERE status='open' AND due_date < $1`
	tag, err := r.db.Pool.Exec(ctx, q, today)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// GetByID loads a loan by ID.
func (r *LoanRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Loan, error) {
	const q = `
SELECT id, status, start_date, due_date, return_date, copy_id, reader_id, librarian_id
FROM loans WHERE id=$1`
	var l model.Loan
	err := r.db.Pool.QueryRow(ctx, q, id).Scan(
		&l.ID, &l.Status, &l.StartDate, &l.DueDate, &l.ReturnDate, &l.CopyID, &l.ReaderID, &l.LibrarianID)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}

// ListActive returns open/overdue loans with details, soonest due first.
func (r *LoanRepo) ListActive(ctx context.Context) ([]model.ActiveLoanView, error) {
	const q = `
SELECT l.id, l.status, l.start_date, l.due_date, c.inventory_code, b.title, u.login, u.full_name
FROM loans l
JOIN copies c ON c.id = l.copy_id
JOIN books b ON b.id = c.book_id
JOIN users u ON u.id = l.reader_id
WHERE l.status IN ('open','overdue')
ORDER BY l.due_date ASC`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ActiveLoanView
	for rows.Next() {
		var v model.ActiveLoanView
		if err = rows.Scan(&v.ID, &v.Status, &v.StartDate, &v.DueDate, &v.InventoryCode, &v.BookTitle, &v.ReaderLogin, &v.ReaderName); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
