package repository

import (
	"context"
	"time"

	"github.com/avelichko/libcirc/internal/model"
	"github.com/gofrs/uuid/v5"
)

// ReservationRepository owns the reserved status transition. Each mutating
// method is one transaction; concurrent callers contending for the same copy
// serialize on its row lock.
type ReservationRepository interface {
	// ExpireDue flips active reservations with expires_at before now to
	// expired and frees their copies if still reserved. Returns the number
	// of reservations expired.
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
	// CreateAllocating picks one available copy of the book at the branch
	// under a locking read (lowest inventory code first), marks it reserved
	// and inserts the reservation. Fills r.CopyID on success.
	CreateAllocating(ctx context.Context, r *model.Reservation, bookID uuid.UUID) error
	// Cancel cancels the reader's own active reservation and frees the copy
	// if it is still reserved.
	Cancel(ctx context.Context, id, readerID uuid.UUID) error
	// Extend pushes the pickup date one day out and recomputes expiry.
	// Allowed exactly once per reservation; returns the new pickup date.
	Extend(ctx context.Context, id, readerID uuid.UUID) (time.Time, error)
	// Fulfill converts an active reservation into the given loan: inserts
	// the loan, marks the reservation fulfilled and the copy loaned. Fills
	// l.CopyID and l.ReaderID from the reservation.
	Fulfill(ctx context.Context, reservationID uuid.UUID, l *model.Loan) error
	// GetByID loads a reservation by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Reservation, error)
	// ListForReader returns the reader's reservations, newest first.
	ListForReader(ctx context.Context, readerID uuid.UUID) ([]model.ReservationView, error)
	// ListAll returns all reservations with reader details, newest first.
	ListAll(ctx context.Context) ([]model.ReservationView, error)
}
