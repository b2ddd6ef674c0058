package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/avelichko/libcirc/internal/errs"
	"github.com/avelichko/libcirc/internal/model"
	"github.com/avelichko/libcirc/internal/repository"
)

// pickupWindowDays bounds how far ahead a pickup date may be chosen.
const pickupWindowDays = 3

// ReservationService allocates copies to reservations and drives the
// reservation lifecycle. Expired reservations are swept at the start of every
// listing or mutation, so no background scheduler is needed.
type ReservationService interface {
	// ExpireOld sweeps expired active reservations and frees their copies.
	ExpireOld(ctx context.Context) (int64, error)
	// ListAvailableBranches lists branches holding available copies of a book.
	ListAvailableBranches(ctx context.Context, bookID uuid.UUID) ([]model.BranchAvailability, error)
	// Create reserves one available copy of the book at the branch for the
	// caller, expiring at the end of the pickup day.
	Create(ctx context.Context, sess model.Session, bookID, branchID uuid.UUID, pickupDate time.Time) (uuid.UUID, error)
	// Cancel cancels the caller's own active reservation.
	Cancel(ctx context.Context, sess model.Session, id uuid.UUID) error
	// Extend pushes the pickup date one day out, once per reservation.
	Extend(ctx context.Context, sess model.Session, id uuid.UUID) (time.Time, error)
	// Fulfill converts an active reservation into a loan issued by the caller.
	Fulfill(ctx context.Context, sess model.Session, id uuid.UUID, loanDays int) (uuid.UUID, time.Time, error)
	// ListOwn returns the caller's reservations.
	ListOwn(ctx context.Context, sess model.Session) ([]model.ReservationView, error)
	// ListAll returns every reservation with reader details (staff view).
	ListAll(ctx context.Context, sess model.Session) ([]model.ReservationView, error)
}

type ReservationServiceImpl struct {
	reservations repository.ReservationRepository
	copies       repository.CopyRepository
	loanDays     int
	now          func() time.Time
}

// NewReservationService constructs ReservationService.
func NewReservationService(reservations repository.ReservationRepository, copies repository.CopyRepository, defaultLoanDays int) *ReservationServiceImpl {
	if defaultLoanDays <= 0 {
		defaultLoanDays = defaultLoanPeriodDays
	}
	return &ReservationServiceImpl{
		reservations: reservations,
		copies:       copies,
		loanDays:     defaultLoanDays,
		now:          time.Now,
	}
}

// ExpireOld sweeps expired active reservations. Safe to run concurrently with
// allocation attempts.
func (s *ReservationServiceImpl) ExpireOld(ctx context.Context) (int64, error) {
	return s.reservations.ExpireDue(ctx, s.now())
}

// ListAvailableBranches lists branches with at least one available copy.
func (s *ReservationServiceImpl) ListAvailableBranches(ctx context.Context, bookID uuid.UUID) ([]model.BranchAvailability, error) {
	if bookID == uuid.Nil {
		return nil, errors.New("validation: empty book id")
	}
	return s.copies.AvailableBranches(ctx, bookID)
}

// Create validates the pickup window, sweeps expired reservations and
// allocates a copy under a locking read.
func (s *ReservationServiceImpl) Create(ctx context.Context, sess model.Session, bookID, branchID uuid.UUID, pickupDate time.Time) (uuid.UUID, error) {
	if !sess.Can(model.PermCreateReservation) {
		return uuid.Nil, errs.ErrPermissionDenied
	}
	if bookID == uuid.Nil || branchID == uuid.Nil {
		return uuid.Nil, errors.New("validation: empty book/branch id")
	}

	today := model.DateOnly(s.now())
	pickup := model.DateOnly(pickupDate)
	if pickup.Before(today) || pickup.After(today.AddDate(0, 0, pickupWindowDays)) {
		return uuid.Nil, fmt.Errorf("validation: pickup date must be between today and today+%d days", pickupWindowDays)
	}

	if _, err := s.ExpireOld(ctx); err != nil {
		return uuid.Nil, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, err
	}
	res := &model.Reservation{
		ID:         id,
		ReaderID:   sess.User.ID,
		BranchID:   branchID,
		PickupDate: pickup,
		ExpiresAt:  model.EndOfDay(pickup),
	}
	if err := s.reservations.CreateAllocating(ctx, res, bookID); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// Cancel cancels the caller's own active reservation.
func (s *ReservationServiceImpl) Cancel(ctx context.Context, sess model.Session, id uuid.UUID) error {
	if !sess.Can(model.PermManageOwnReservations) {
		return errs.ErrPermissionDenied
	}
	if id == uuid.Nil {
		return errors.New("validation: empty reservation id")
	}
	if _, err := s.ExpireOld(ctx); err != nil {
		return err
	}
	return s.reservations.Cancel(ctx, id, sess.User.ID)
}

// Extend pushes the pickup date one day out. Copy status is untouched.
func (s *ReservationServiceImpl) Extend(ctx context.Context, sess model.Session, id uuid.UUID) (time.Time, error) {
	if !sess.Can(model.PermManageOwnReservations) {
		return time.Time{}, errs.ErrPermissionDenied
	}
	if id == uuid.Nil {
		return time.Time{}, errors.New("validation: empty reservation id")
	}
	if _, err := s.ExpireOld(ctx); err != nil {
		return time.Time{}, err
	}
	return s.reservations.Extend(ctx, id, sess.User.ID)
}

// Fulfill converts an active reservation into a loan issued by the caller.
func (s *ReservationServiceImpl) Fulfill(ctx context.Context, sess model.Session, id uuid.UUID, loanDays int) (uuid.UUID, time.Time, error) {
	if !sess.Can(model.PermManageReservations) {
		return uuid.Nil, time.Time{}, errs.ErrPermissionDenied
	}
	if id == uuid.Nil {
		return uuid.Nil, time.Time{}, errors.New("validation: empty reservation id")
	}
	if loanDays <= 0 {
		loanDays = s.loanDays
	}
	if _, err := s.ExpireOld(ctx); err != nil {
		return uuid.Nil, time.Time{}, err
	}

	loanID, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, time.Time{}, err
	}
	start := model.DateOnly(s.now())
	due := start.AddDate(0, 0, loanDays)
	l := &model.Loan{
		ID:          loanID,
		StartDate:   start,
		DueDate:     due,
		LibrarianID: sess.User.ID,
	}
	if err := s.reservations.Fulfill(ctx, id, l); err != nil {
		return uuid.Nil, time.Time{}, err
	}
	return loanID, due, nil
}

// ListOwn returns the caller's reservations, sweeping expired ones first.
func (s *ReservationServiceImpl) ListOwn(ctx context.Context, sess model.Session) ([]model.ReservationView, error) {
	if _, err := s.ExpireOld(ctx); err != nil {
		return nil, err
	}
	return s.reservations.ListForReader(ctx, sess.User.ID)
}

// ListAll returns every reservation with reader details.
func (s *ReservationServiceImpl) ListAll(ctx context.Context, sess model.Session) ([]model.ReservationView, error) {
	if !sess.Can(model.PermManageReservations) {
		return nil, errs.ErrPermissionDenied
	}
	if _, err := s.ExpireOld(ctx); err != nil {
		return nil, err
	}
	return s.reservations.ListAll(ctx)
}
