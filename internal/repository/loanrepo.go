package repository

import (
	"context"
	"time"

	"github.com/avelichko/libcirc/internal/model"
	"github.com/gofrs/uuid/v5"
)

// LoanRepository issues and returns loans. Every mutating method runs one
// transaction that locks the contended rows and rechecks status under the
// lock before writing.
type LoanRepository interface {
	// Issue creates the loan and flips its copy to loaned. Fails with a
	// conflict when the copy is no longer available at lock time.
	Issue(ctx context.Context, l *model.Loan) error
	// Return closes an open/overdue loan, records the returning librarian
	// and return date, and frees the copy.
	Return(ctx context.Context, loanID, librarianID uuid.UUID, returnDate time.Time) error
	// MarkOverdue flips all open loans past their due date to overdue and
	// returns the affected row count. Idempotent.
	MarkOverdue(ctx context.Context, today time.Time) (int64, error)
	// GetByID loads a loan by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Loan, error)
	// ListActive returns open/overdue loans with copy/book/reader details,
	// soonest due first.
	ListActive(ctx context.Context) ([]model.ActiveLoanView, error)
}
