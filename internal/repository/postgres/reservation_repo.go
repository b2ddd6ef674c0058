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

// ReservationRepo implements ReservationRepository using PostgreSQL.
type ReservationRepo struct{ db *DB }

// NewReservationRepo constructs a reservation repository.
func NewReservationRepo(db *DB) *ReservationRepo { return &ReservationRepo{db: db} }

// ExpireDue flips active reservations past expiry to expired and frees their
// copies, one transaction per batch. Copies are reset only while still
// reserved, so a sweep racing an allocation never clobbers a newer holder.
func (r *ReservationRepo) ExpireDue(ctx context.Context, now time.Time) (count int64, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
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

	const sel = `SELECT id, copy_id FROM reservations WHERE status='active' AND expires_at < $1`
	rows, err := tx.Query(ctx, sel, now)
	if err != nil {
		return 0, err
	}
	var ids, copyIDs []uuid.UUID
	for rows.Next() {
		var id, copyID uuid.UUID
		if err = rows.Scan(&id, &copyID); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
		copyIDs = append(copyIDs, copyID)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	const expire = `UPDATE reservations SET status='expired' WHERE id = ANY($1)`
	if _, err = tx.Exec(ctx, expire, ids); err != nil {
		return 0, err
	}
	const free = `UPDATE copies SET status='available' WHERE id = ANY($1) AND status='reserved'`
	if _, err = tx.Exec(ctx, free, copyIDs); err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}

// CreateAllocating selects one available copy of the book at the reservation's
// branch under a locking read and allocates it. The lock guarantees exactly
// one concurrent caller wins each copy; the rest pick another copy or get
// ErrNoCopyAvailable.
func (r *ReservationRepo) CreateAllocating(ctx context.Context, res *model.Reservation, bookID uuid.UUID) (err error) {
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

	// lowest inventory code first: deterministic pick under contention
	const sel = `
SELECT c.id, c.inventory_code, c.status, c.price, COALESCE(c.condition_note,''), c.book_id, c.location_id
FROM copies c
JOIN locations l ON l.id = c.location_id
WHERE c.book_id=$1 AND c.status='available' AND l.branch_id=$2
ORDER BY c.inventory_code ASC
LIMIT 1
FOR UPDATE OF c`
	var c model.Copy
	if err = tx.QueryRow(ctx, sel, bookID, res.BranchID).Scan(
		&c.ID, &c.InventoryCode, &c.Status, &c.Price, &c.ConditionNote, &c.BookID, &c.LocationID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ErrNoCopyAvailable
		}
		return mapLockErr(err)
	}

	if err = setCopyStatus(ctx, tx, &c, model.CopyReserved); err != nil {
		return err
	}

	const ins = `
INSERT INTO reservations (id, reader_id, copy_id, branch_id, pickup_date, expires_at, status, extended_once)
VALUES ($1,$2,$3,$4,$5,$6,'active',FALSE)`
	if _, err = tx.Exec(ctx, ins, res.ID, res.ReaderID, c.ID, res.BranchID, res.PickupDate, res.ExpiresAt); err != nil {
		if isUniqueViolation(err) {
			// backstop index uq_reservation_active_copy fired
			return fmt.Errorf("%w: copy %s already reserved", errs.ErrConflict, c.InventoryCode)
		}
		return err
	}
	res.CopyID = c.ID
	res.Status = model.ReservationActive
	return nil
}

// Cancel cancels the reader's own active reservation.
func (r *ReservationRepo) Cancel(ctx context.Context, id, readerID uuid.UUID) (err error) {
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

	const sel = `SELECT reader_id, copy_id, status FROM reservations WHERE id=$1 FOR UPDATE`
	var (
		owner  uuid.UUID
		copyID uuid.UUID
		status model.ReservationStatus
	)
	if err = tx.QueryRow(ctx, sel, id).Scan(&owner, &copyID, &status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ErrNotFound
		}
		return mapLockErr(err)
	}
	if owner != readerID {
		return errs.ErrNotOwner
	}
	if status != model.ReservationActive {
		return fmt.Errorf("%w: reservation is already %s", errs.ErrConflict, status)
	}

	const upd = `UPDATE reservations SET status='cancelled' WHERE id=$1`
	if _, err = tx.Exec(ctx, upd, id); err != nil {
		return err
	}
	const free = `UPDATE copies SET status='available' WHERE id=$1 AND status='reserved'`
	if _, err = tx.Exec(ctx, free, copyID); err != nil {
		return err
	}
	return nil
}

// Extend pushes the pickup date one day out, exactly once per reservation.
// Copy status is not revalidated here; fulfillment rechecks it under the
// same lock and fails with a conflict if the copy is no longer reserved.
func (r *ReservationRepo) Extend(ctx context.Context, id, readerID uuid.UUID) (newPickup time.Time, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return time.Time{}, err
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

	const sel = `SELECT reader_id, status, pickup_date, extended_once FROM reservations WHERE id=$1 FOR UPDATE`
	var (
		owner    uuid.UUID
		status   model.ReservationStatus
		pickup   time.Time
		extended bool
	)
	if err = tx.QueryRow(ctx, sel, id).Scan(&owner, &status, &pickup, &extended); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, errs.ErrNotFound
		}
		return time.Time{}, mapLockErr(err)
	}
	if owner != readerID {
		return time.Time{}, errs.ErrNotOwner
	}
	if status != model.ReservationActive {
		return time.Time{}, fmt.Errorf("%w: reservation is already %s", errs.ErrConflict, status)
	}
	if extended {
		return time.Time{}, errs.ErrAlreadyExtended
	}

	newPickup = pickup.AddDate(0, 0, 1)
	const upd = `UPDATE reservations SET pickup_date=$2, expires_at=$3, extended_once=TRUE WHERE id=$1`
	if _, err = tx.Exec(ctx, upd, id, newPickup, model.EndOfDay(newPickup)); err != nil {
		return time.Time{}, err
	}
	return newPickup, nil
}

// Fulfill converts an active reservation into the given loan. The
// reservation/copy pair is locked, statuses are rechecked, and a defensive
// check rejects copies that somehow already carry an active loan. All three
// writes are one transaction.
func (r *ReservationRepo) Fulfill(ctx context.Context, reservationID uuid.UUID, l *model.Loan) (err error) {
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

	const sel = `
SELECT r.reader_id, r.copy_id, r.status, c.inventory_code, c.status
FROM reservations r
JOIN copies c ON c.id = r.copy_id
WHERE r.id=$1
FOR UPDATE`
	var (
		readerID   uuid.UUID
		copyID     uuid.UUID
		resStatus  model.ReservationStatus
		invCode    string
		copyStatus model.CopyStatus
	)
	if err = tx.QueryRow(ctx, sel, reservationID).Scan(&readerID, &copyID, &resStatus, &invCode, &copyStatus); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ErrNotFound
		}
		return mapLockErr(err)
	}
	if resStatus != model.ReservationActive {
		return fmt.Errorf("%w: reservation is already %s", errs.ErrConflict, resStatus)
	}
	if copyStatus != model.CopyReserved {
		return fmt.Errorf("%w: copy %s is %s, not reserved", errs.ErrConflict, invCode, copyStatus)
	}

	const chk = `SELECT EXISTS (SELECT 1 FROM loans WHERE copy_id=$1 AND status IN ('open','overdue'))`
	var hasActive bool
	if err = tx.QueryRow(ctx, chk, copyID).Scan(&hasActive); err != nil {
		return err
	}
	if hasActive {
		return fmt.Errorf("%w: copy %s already has an active loan", errs.ErrConflict, invCode)
	}

	const ins = `
INSERT INTO loans (id, status, start_date, due_date, copy_id, reader_id, librarian_id)
VALUES ($1,'open',$2,$3,$4,$5,$6)`
	if _, err = tx.Exec(ctx, ins, l.ID, l.StartDate, l.DueDate, copyID, readerID, l.LibrarianID); err != nil {
		return err
	}
	const updRes = `UPDATE reservations SET status='fulfilled' WHERE id=$1`
	if _, err = tx.Exec(ctx, updRes, reservationID); err != nil {
		return err
	}
	c := model.Copy{ID: copyID, InventoryCode: invCode, Status: copyStatus}
	if err = setCopyStatus(ctx, tx, &c, model.CopyLoaned); err != nil {
		return err
	}

	l.CopyID = copyID
	l.ReaderID = readerID
	l.Status = model.LoanOpen
	return nil
}

// GetByID loads a reservation by ID.
func (r *ReservationRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Reservation, error) {
	const q = `
SELECT id, status, pickup_date, created_at, expires_at, extended_once, reader_id, copy_id, branch_id
FROM reservations WHERE id=$1`
	var res model.Reservation
	err := r.db.Pool.QueryRow(ctx, q, id).Scan(
		&res.ID, &res.Status, &res.PickupDate, &res.CreatedAt, &res.ExpiresAt,
		&res.ExtendedOnce, &res.ReaderID, &res.CopyID, &res.BranchID)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &res, nil
}

// ListForReader returns the reader's reservations, newest first.
func (r *ReservationRepo) ListForReader(ctx context.Context, readerID uuid.UUID) ([]model.ReservationView, error) {
	const q = `
SELECT r.id, r.status, r.pickup_date, r.created_at, r.expires_at, r.extended_once,
       b.title, c.inventory_code, br.name, COALESCE(br.address,'')
FROM reservations r
JOIN copies c ON c.id = r.copy_id
JOIN books b ON b.id = c.book_id
JOIN branches br ON br.id = r.branch_id
WHERE r.reader_id=$1
ORDER BY r.created_at DESC`
	rows, err := r.db.Pool.Query(ctx, q, readerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ReservationView
	for rows.Next() {
		var v model.ReservationView
		if err = rows.Scan(&v.ID, &v.Status, &v.PickupDate, &v.CreatedAt, &v.ExpiresAt, &v.ExtendedOnce,
			&v.BookTitle, &v.InventoryCode, &v.BranchName, &v.BranchAddress); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ListAll returns all reservations with reader details, newest first.
func (r *ReservationRepo) ListAll(ctx context.Context) ([]model.ReservationView, error) {
	const q = `
SELECT r.id, r.status, r.pickup_date, r.created_at, r.expires_at, r.extended_once,
       b.title, c.inventory_code, br.name, COALESCE(br.address,''),
       u.login, u.full_name, COALESCE(u.phone,'')
FROM reservations r
JOIN copies c ON c.id = r.copy_id
JOIN books b ON b.id = c.book_id
JOIN branches br ON br.id = r.branch_id
JOIN users u ON u.id = r.reader_id
ORDER BY r.created_at DESC`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ReservationView
	for rows.Next() {
		var v model.ReservationView
		if err = rows.Scan(&v.ID, &v.Status, &v.PickupDate, &v.CreatedAt, &v.ExpiresAt, &v.ExtendedOnce,
			&v.BookTitle, &v.InventoryCode, &v.BranchName, &v.BranchAddress,
			&v.ReaderLogin, &v.ReaderName, &v.ReaderPhone); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
