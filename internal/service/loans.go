package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/avelichko/libcirc/internal/errs"
	"github.com/avelichko/libcirc/internal/model"
	"github.com/avelichko/libcirc/internal/repository"
)

// defaultLoanPeriodDays is the loan term for direct issuance.
const defaultLoanPeriodDays = 14

// LoanService issues and returns loans independently of reservations and
// maintains overdue statuses in bulk.
type LoanService interface {
	// Issue lends the copy with the given inventory code to the reader with
	// the given login; the caller is recorded as the issuing librarian.
	Issue(ctx context.Context, sess model.Session, copyCode, readerLogin string) (uuid.UUID, time.Time, error)
	// Return closes an open/overdue loan and frees its copy.
	Return(ctx context.Context, sess model.Session, loanID uuid.UUID) error
	// UpdateOverdue flips all open loans past due date to overdue.
	UpdateOverdue(ctx context.Context, sess model.Session) (int64, error)
	// ListActive returns the active-loans report.
	ListActive(ctx context.Context, sess model.Session) ([]model.ActiveLoanView, error)
	// Availability returns per-book copy counts by status.
	Availability(ctx context.Context, sess model.Session) ([]model.BookAvailability, error)
}

type LoanServiceImpl struct {
	loans    repository.LoanRepository
	copies   repository.CopyRepository
	users    repository.UserRepository
	loanDays int
	now      func() time.Time
}

// NewLoanService constructs LoanService.
func NewLoanService(loans repository.LoanRepository, copies repository.CopyRepository, users repository.UserRepository, loanDays int) *LoanServiceImpl {
	if loanDays <= 0 {
		loanDays = defaultLoanPeriodDays
	}
	return &LoanServiceImpl{loans: loans, copies: copies, users: users, loanDays: loanDays, now: time.Now}
}

// Issue resolves the copy and reader, then creates the loan. The copy status
// is checked here for a fast, descriptive failure and rechecked inside the
// transaction under the row lock, so a concurrent issue or reserve loses
// cleanly.
func (s *LoanServiceImpl) Issue(ctx context.Context, sess model.Session, copyCode, readerLogin string) (uuid.UUID, time.Time, error) {
	if !sess.Can(model.PermManageLoans) {
		return uuid.Nil, time.Time{}, errs.ErrPermissionDenied
	}
	copyCode = strings.TrimSpace(copyCode)
	readerLogin = strings.TrimSpace(readerLogin)
	if copyCode == "" || readerLogin == "" {
		return uuid.Nil, time.Time{}, errors.New("validation: inventory code and reader login are required")
	}

	c, err := s.copies.GetByCode(ctx, copyCode)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return uuid.Nil, time.Time{}, fmt.Errorf("copy %s: %w", copyCode, errs.ErrNotFound)
		}
		return uuid.Nil, time.Time{}, err
	}
	if c.Status != model.CopyAvailable {
		return uuid.Nil, time.Time{}, fmt.Errorf("%w: copy %s is %s", errs.ErrConflict, copyCode, c.Status)
	}

	reader, err := s.users.GetByLogin(ctx, readerLogin)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return uuid.Nil, time.Time{}, fmt.Errorf("reader %s: %w", readerLogin, errs.ErrNotFound)
		}
		return uuid.Nil, time.Time{}, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, time.Time{}, err
	}
	start := model.DateOnly(s.now())
	due := start.AddDate(0, 0, s.loanDays)
	l := &model.Loan{
		ID:          id,
		StartDate:   start,
		DueDate:     due,
		CopyID:      c.ID,
		ReaderID:    reader.ID,
		LibrarianID: sess.User.ID,
	}
	if err := s.loans.Issue(ctx, l); err != nil {
		return uuid.Nil, time.Time{}, err
	}
	return id, due, nil
}

// Return closes the loan; the second of two concurrent returns fails cleanly.
func (s *LoanServiceImpl) Return(ctx context.Context, sess model.Session, loanID uuid.UUID) error {
	if !sess.Can(model.PermManageLoans) {
		return errs.ErrPermissionDenied
	}
	if loanID == uuid.Nil {
		return errors.New("validation: empty loan id")
	}
	return s.loans.Return(ctx, loanID, sess.User.ID, model.DateOnly(s.now()))
}

// UpdateOverdue is idempotent: a second run with no newly overdue loans
// affects zero rows.
func (s *LoanServiceImpl) UpdateOverdue(ctx context.Context, sess model.Session) (int64, error) {
	if !sess.Can(model.PermManageLoans) {
		return 0, errs.ErrPermissionDenied
	}
	return s.loans.MarkOverdue(ctx, model.DateOnly(s.now()))
}

// ListActive returns open/overdue loans, soonest due first.
func (s *LoanServiceImpl) ListActive(ctx context.Context, sess model.Session) ([]model.ActiveLoanView, error) {
	if !sess.Can(model.PermViewReports) {
		return nil, errs.ErrPermissionDenied
	}
	return s.loans.ListActive(ctx)
}

// Availability returns per-book copy counts by status.
func (s *LoanServiceImpl) Availability(ctx context.Context, sess model.Session) ([]model.BookAvailability, error) {
	if !sess.Can(model.PermViewReports) {
		return nil, errs.ErrPermissionDenied
	}
	return s.copies.AvailabilityByBook(ctx)
}
