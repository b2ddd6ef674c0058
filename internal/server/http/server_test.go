package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/avelichko/libcirc/internal/errs"
	"github.com/avelichko/libcirc/internal/model"
	"github.com/avelichko/libcirc/internal/service"
)

var testKey = []byte("test-sign-key")

type fakeAuth struct {
	sess     model.Session
	tokens   model.Tokens
	loginErr error

	sessErr error

	regID  uuid.UUID
	regErr error
}

var _ service.AuthService = (*fakeAuth)(nil)

func (f *fakeAuth) LoginWithIP(_ context.Context, _, _, _ string) (model.Session, model.Tokens, error) {
	return f.sess, f.tokens, f.loginErr
}
func (f *fakeAuth) SessionFor(_ context.Context, _ uuid.UUID) (model.Session, error) {
	return f.sess, f.sessErr
}
func (f *fakeAuth) Register(_ context.Context, _ service.RegisterInput) (uuid.UUID, error) {
	return f.regID, f.regErr
}

type fakeReservations struct {
	createID  uuid.UUID
	createErr error

	branches []model.BranchAvailability

	extendOut time.Time
	extendErr error

	fulfillLoan uuid.UUID
	fulfillDue  time.Time
	fulfillErr  error

	own []model.ReservationView
	all []model.ReservationView
}

var _ service.ReservationService = (*fakeReservations)(nil)

func (f *fakeReservations) ExpireOld(context.Context) (int64, error) { return 0, nil }
func (f *fakeReservations) ListAvailableBranches(context.Context, uuid.UUID) ([]model.BranchAvailability, error) {
	return f.branches, nil
}
func (f *fakeReservations) Create(context.Context, model.Session, uuid.UUID, uuid.UUID, time.Time) (uuid.UUID, error) {
	return f.createID, f.createErr
}
func (f *fakeReservations) Cancel(context.Context, model.Session, uuid.UUID) error { return nil }
func (f *fakeReservations) Extend(context.Context, model.Session, uuid.UUID) (time.Time, error) {
	return f.extendOut, f.extendErr
}
func (f *fakeReservations) Fulfill(context.Context, model.Session, uuid.UUID, int) (uuid.UUID, time.Time, error) {
	return f.fulfillLoan, f.fulfillDue, f.fulfillErr
}
func (f *fakeReservations) ListOwn(context.Context, model.Session) ([]model.ReservationView, error) {
	return f.own, nil
}
func (f *fakeReservations) ListAll(context.Context, model.Session) ([]model.ReservationView, error) {
	return f.all, nil
}

type fakeLoanSvc struct {
	issueID  uuid.UUID
	issueDue time.Time
	issueErr error

	returnErr error
	overdue   int64
}

var _ service.LoanService = (*fakeLoanSvc)(nil)

func (f *fakeLoanSvc) Issue(context.Context, model.Session, string, string) (uuid.UUID, time.Time, error) {
	return f.issueID, f.issueDue, f.issueErr
}
func (f *fakeLoanSvc) Return(context.Context, model.Session, uuid.UUID) error { return f.returnErr }
func (f *fakeLoanSvc) UpdateOverdue(context.Context, model.Session) (int64, error) {
	return f.overdue, nil
}
func (f *fakeLoanSvc) ListActive(context.Context, model.Session) ([]model.ActiveLoanView, error) {
	return nil, nil
}
func (f *fakeLoanSvc) Availability(context.Context, model.Session) ([]model.BookAvailability, error) {
	return nil, nil
}

type fakeUserSvc struct{}

var _ service.UserService = (*fakeUserSvc)(nil)

func (fakeUserSvc) RegisterLibrarian(context.Context, model.Session, service.RegisterInput) (uuid.UUID, error) {
	return uuid.Must(uuid.NewV4()), nil
}
func (fakeUserSvc) SetActive(context.Context, model.Session, uuid.UUID, bool) error { return nil }
func (fakeUserSvc) ResetPassword(context.Context, model.Session, uuid.UUID, string) error {
	return nil
}

func bearerFor(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testKey)
	require.NoError(t, err)
	return "Bearer " + signed
}

func newTestServer(auth *fakeAuth, res *fakeReservations, loans *fakeLoanSvc) *Server {
	return New(auth, res, loans, fakeUserSvc{}, testKey, zap.NewNop())
}

func jsonReq(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestServer_Login(t *testing.T) {
	userID := uuid.Must(uuid.NewV4())
	auth := &fakeAuth{
		sess:   model.Session{User: model.User{ID: userID, FullName: "Alice A"}, Roles: []string{"Reader"}},
		tokens: model.Tokens{AccessToken: "tok", ExpiresAt: time.Now().Add(time.Minute)},
	}
	app := newTestServer(auth, &fakeReservations{}, &fakeLoanSvc{}).App()

	resp, err := app.Test(jsonReq(t, http.MethodPost, "/api/auth/login", map[string]string{
		"login": "alice", "password": "pwd4",
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "tok", body["access_token"])

	auth.loginErr = errs.ErrRateLimited
	resp, err = app.Test(jsonReq(t, http.MethodPost, "/api/auth/login", map[string]string{
		"login": "alice", "password": "pwd4",
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestServer_RequiresBearer(t *testing.T) {
	app := newTestServer(&fakeAuth{}, &fakeReservations{}, &fakeLoanSvc{}).App()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/reservations", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(http.MethodGet, "/api/reservations", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_CreateReservation(t *testing.T) {
	userID := uuid.Must(uuid.NewV4())
	auth := &fakeAuth{sess: model.Session{User: model.User{ID: userID, IsActive: true}}}
	res := &fakeReservations{createID: uuid.Must(uuid.NewV4())}
	app := newTestServer(auth, res, &fakeLoanSvc{}).App()

	req := jsonReq(t, http.MethodPost, "/api/reservations", map[string]any{
		"book_id":     uuid.Must(uuid.NewV4()),
		"branch_id":   uuid.Must(uuid.NewV4()),
		"pickup_date": time.Now().Format(dateLayout),
	})
	req.Header.Set("Authorization", bearerFor(t, userID))
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// bad date format
	req = jsonReq(t, http.MethodPost, "/api/reservations", map[string]any{
		"book_id":     uuid.Must(uuid.NewV4()),
		"branch_id":   uuid.Must(uuid.NewV4()),
		"pickup_date": "12.03.2025",
	})
	req.Header.Set("Authorization", bearerFor(t, userID))
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	res.createErr = errs.ErrNoCopyAvailable
	req = jsonReq(t, http.MethodPost, "/api/reservations", map[string]any{
		"book_id":     uuid.Must(uuid.NewV4()),
		"branch_id":   uuid.Must(uuid.NewV4()),
		"pickup_date": time.Now().Format(dateLayout),
	})
	req.Header.Set("Authorization", bearerFor(t, userID))
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestServer_ErrorMapping(t *testing.T) {
	userID := uuid.Must(uuid.NewV4())
	auth := &fakeAuth{sess: model.Session{User: model.User{ID: userID, IsActive: true}}}
	res := &fakeReservations{extendErr: errs.ErrAlreadyExtended}
	loans := &fakeLoanSvc{issueErr: errs.ErrPermissionDenied}
	app := newTestServer(auth, res, loans).App()

	req := jsonReq(t, http.MethodPost, "/api/reservations/"+uuid.Must(uuid.NewV4()).String()+"/extend", nil)
	req.Header.Set("Authorization", bearerFor(t, userID))
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	req = jsonReq(t, http.MethodPost, "/api/loans", map[string]string{
		"inventory_code": "INV-001", "reader_login": "reader1",
	})
	req.Header.Set("Authorization", bearerFor(t, userID))
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServer_DisabledAccountBlocked(t *testing.T) {
	userID := uuid.Must(uuid.NewV4())
	auth := &fakeAuth{sessErr: errs.ErrAccountDisabled}
	app := newTestServer(auth, &fakeReservations{}, &fakeLoanSvc{}).App()

	req := httptest.NewRequest(http.MethodGet, "/api/reservations", nil)
	req.Header.Set("Authorization", bearerFor(t, userID))
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}
