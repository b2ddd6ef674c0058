package service

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/avelichko/libcirc/internal/errs"
	"github.com/avelichko/libcirc/internal/limiter"
	"github.com/avelichko/libcirc/internal/model"
	"github.com/avelichko/libcirc/internal/repository"
)

func sessionWith(perms ...string) model.Session {
	granted := make(map[string]bool, len(perms))
	for _, p := range perms {
		granted[p] = true
	}
	return model.Session{
		User:   model.User{ID: uuid.Must(uuid.NewV4()), Login: "caller", IsActive: true},
		Roles:  []string{"test"},
		Rights: model.Rights{Granted: granted},
	}
}

type fakeUsers struct {
	byLogin map[string]*model.User
	grants  map[uuid.UUID][]model.RoleGrant
	admins  map[uuid.UUID]bool

	createdRole string
	createErr   error
	getErr      error

	activeSet  map[uuid.UUID]bool
	hashSet    map[uuid.UUID]string
	setErr     error
	hasRoleErr error
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func (f *fakeUsers) Create(_ context.Context, u *model.User, roleName string) error {
	if f.createErr != nil {
		return f.createErr
	}
	if f.byLogin == nil {
		f.byLogin = map[string]*model.User{}
	}
	if _, exists := f.byLogin[u.Login]; exists {
		return errs.ErrAlreadyExists
	}
	cpy := *u
	f.byLogin[u.Login] = &cpy
	f.createdRole = roleName
	return nil
}
func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	for _, u := range f.byLogin {
		if u.ID == id {
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}
func (f *fakeUsers) GetByLogin(_ context.Context, login string) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byLogin[login]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}
func (f *fakeUsers) RoleGrants(_ context.Context, userID uuid.UUID) ([]model.RoleGrant, error) {
	return append([]model.RoleGrant(nil), f.grants[userID]...), nil
}
func (f *fakeUsers) HasRole(_ context.Context, userID uuid.UUID, roleName string) (bool, error) {
	if f.hasRoleErr != nil {
		return false, f.hasRoleErr
	}
	return roleName == RoleAdmin && f.admins[userID], nil
}
func (f *fakeUsers) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	if f.setErr != nil {
		return f.setErr
	}
	if f.activeSet == nil {
		f.activeSet = map[uuid.UUID]bool{}
	}
	f.activeSet[id] = active
	return nil
}
func (f *fakeUsers) SetPasswordHash(_ context.Context, id uuid.UUID, hash string) error {
	if f.setErr != nil {
		return f.setErr
	}
	if f.hashSet == nil {
		f.hashSet = map[uuid.UUID]string{}
	}
	f.hashSet[id] = hash
	return nil
}

type fakeCopies struct {
	byCode map[string]*model.Copy

	branches    []model.BranchAvailability
	branchesErr error

	avail    []model.BookAvailability
	availErr error
}

var _ repository.CopyRepository = (*fakeCopies)(nil)

func (f *fakeCopies) GetByCode(_ context.Context, code string) (*model.Copy, error) {
	c, ok := f.byCode[code]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *c
	return &cp, nil
}
func (f *fakeCopies) GetByID(_ context.Context, id uuid.UUID) (*model.Copy, error) {
	for _, c := range f.byCode {
		if c.ID == id {
			cp := *c
			return &cp, nil
		}
	}
	return nil, errs.ErrNotFound
}
func (f *fakeCopies) AvailableBranches(_ context.Context, _ uuid.UUID) ([]model.BranchAvailability, error) {
	return append([]model.BranchAvailability(nil), f.branches...), f.branchesErr
}
func (f *fakeCopies) AvailabilityByBook(_ context.Context) ([]model.BookAvailability, error) {
	return append([]model.BookAvailability(nil), f.avail...), f.availErr
}

type fakeLoans struct {
	issued   *model.Loan
	issueErr error

	retInLoan      uuid.UUID
	retInLibrarian uuid.UUID
	retInDate      time.Time
	retErr         error

	overdueIn    time.Time
	overdueOut   int64
	overdueErr   error
	overdueCalls int

	active    []model.ActiveLoanView
	activeErr error
}

var _ repository.LoanRepository = (*fakeLoans)(nil)

func (f *fakeLoans) Issue(_ context.Context, l *model.Loan) error {
	if f.issueErr != nil {
		return f.issueErr
	}
	cpy := *l
	f.issued = &cpy
	return nil
}
func (f *fakeLoans) Return(_ context.Context, loanID, librarianID uuid.UUID, returnDate time.Time) error {
	f.retInLoan, f.retInLibrarian, f.retInDate = loanID, librarianID, returnDate
	return f.retErr
}
func (f *fakeLoans) MarkOverdue(_ context.Context, today time.Time) (int64, error) {
	f.overdueCalls++
	f.overdueIn = today
	return f.overdueOut, f.overdueErr
}
func (f *fakeLoans) GetByID(_ context.Context, _ uuid.UUID) (*model.Loan, error) {
	return nil, errs.ErrNotFound
}
func (f *fakeLoans) ListActive(_ context.Context) ([]model.ActiveLoanView, error) {
	return append([]model.ActiveLoanView(nil), f.active...), f.activeErr
}

type fakeReservations struct {
	expireCalls int
	expireOut   int64
	expireErr   error

	created   *model.Reservation
	createErr error
	allocCopy uuid.UUID

	cancelInID     uuid.UUID
	cancelInReader uuid.UUID
	cancelErr      error

	extendInID  uuid.UUID
	extendOut   time.Time
	extendErr   error

	fulfillInID   uuid.UUID
	fulfilledLoan *model.Loan
	fulfillCopy   uuid.UUID
	fulfillReader uuid.UUID
	fulfillErr    error

	forReader []model.ReservationView
	all       []model.ReservationView
	listErr   error
}

var _ repository.ReservationRepository = (*fakeReservations)(nil)

func (f *fakeReservations) ExpireDue(_ context.Context, _ time.Time) (int64, error) {
	f.expireCalls++
	return f.expireOut, f.expireErr
}
func (f *fakeReservations) CreateAllocating(_ context.Context, r *model.Reservation, _ uuid.UUID) error {
	if f.createErr != nil {
		return f.createErr
	}
	r.CopyID = f.allocCopy
	r.Status = model.ReservationActive
	cpy := *r
	f.created = &cpy
	return nil
}
func (f *fakeReservations) Cancel(_ context.Context, id, readerID uuid.UUID) error {
	f.cancelInID, f.cancelInReader = id, readerID
	return f.cancelErr
}
func (f *fakeReservations) Extend(_ context.Context, id, _ uuid.UUID) (time.Time, error) {
	f.extendInID = id
	return f.extendOut, f.extendErr
}
func (f *fakeReservations) Fulfill(_ context.Context, reservationID uuid.UUID, l *model.Loan) error {
	if f.fulfillErr != nil {
		return f.fulfillErr
	}
	f.fulfillInID = reservationID
	l.CopyID, l.ReaderID = f.fulfillCopy, f.fulfillReader
	cpy := *l
	f.fulfilledLoan = &cpy
	return nil
}
func (f *fakeReservations) GetByID(_ context.Context, _ uuid.UUID) (*model.Reservation, error) {
	return nil, errs.ErrNotFound
}
func (f *fakeReservations) ListForReader(_ context.Context, _ uuid.UUID) ([]model.ReservationView, error) {
	return append([]model.ReservationView(nil), f.forReader...), f.listErr
}
func (f *fakeReservations) ListAll(_ context.Context) ([]model.ReservationView, error) {
	return append([]model.ReservationView(nil), f.all...), f.listErr
}

type fakeLimiter struct {
	allowOK  bool
	allowErr error

	failBlocked bool
	failErr     error

	allowCalls   int
	failureCalls int
	successCalls int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	l.allowCalls++
	return l.allowOK, 0, l.allowErr
}
func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.successCalls++
	return nil
}
func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.failureCalls++
	return l.failBlocked, 0, l.failErr
}
