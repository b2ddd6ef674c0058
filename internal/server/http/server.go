// Package httpserver exposes the circulation HTTP API.
package httpserver

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/avelichko/libcirc/internal/errs"
	"github.com/avelichko/libcirc/internal/service"
)

const dateLayout = "2006-01-02"

// Server wires services into HTTP handlers.
type Server struct {
	auth         service.AuthService
	reservations service.ReservationService
	loans        service.LoanService
	users        service.UserService
	signKey      []byte
	log          *zap.Logger
}

// New constructs a server with injected services.
func New(auth service.AuthService, reservations service.ReservationService, loans service.LoanService, users service.UserService, signKey []byte, log *zap.Logger) *Server {
	return &Server{
		auth:         auth,
		reservations: reservations,
		loans:        loans,
		users:        users,
		signKey:      signKey,
		log:          log,
	}
}

// App builds the Fiber application with middleware and routes.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	app.Use(Recover(s.log))
	app.Use(RequestLogger(s.log))

	api := app.Group("/api")
	api.Post("/auth/register", s.register)
	api.Post("/auth/login", s.login)

	authed := api.Group("", RequireSession(s.auth, s.signKey))
	authed.Get("/books/:id/branches", s.availableBranches)

	authed.Post("/reservations", s.createReservation)
	authed.Get("/reservations", s.listOwnReservations)
	authed.Get("/reservations/all", s.listAllReservations)
	authed.Post("/reservations/:id/cancel", s.cancelReservation)
	authed.Post("/reservations/:id/extend", s.extendReservation)
	authed.Post("/reservations/:id/fulfill", s.fulfillReservation)

	authed.Post("/loans", s.issueLoan)
	authed.Post("/loans/:id/return", s.returnLoan)
	authed.Post("/loans/overdue-sweep", s.sweepOverdue)

	authed.Get("/reports/active-loans", s.activeLoans)
	authed.Get("/reports/availability", s.availability)

	authed.Post("/users/librarians", s.registerLibrarian)
	authed.Post("/users/:id/active", s.setUserActive)
	authed.Post("/users/:id/password", s.resetPassword)

	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal"})
}

// httpError maps service errors onto HTTP statuses.
func httpError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, errs.ErrUnauthorized):
		return fiber.NewError(fiber.StatusUnauthorized, "bad credentials")
	case errors.Is(err, errs.ErrAccountDisabled):
		return fiber.NewError(fiber.StatusForbidden, "account disabled")
	case errors.Is(err, errs.ErrPermissionDenied), errors.Is(err, errs.ErrNotOwner):
		return fiber.NewError(fiber.StatusForbidden, "forbidden")
	case errors.Is(err, errs.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrNoCopyAvailable):
		return fiber.NewError(fiber.StatusConflict, "no copies available")
	case errors.Is(err, errs.ErrAlreadyExtended):
		return fiber.NewError(fiber.StatusConflict, "already extended once")
	case errors.Is(err, errs.ErrConflict), errors.Is(err, errs.ErrAlreadyExists):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, errs.ErrRateLimited):
		return fiber.NewError(fiber.StatusTooManyRequests, "too many attempts")
	case errors.Is(err, errs.ErrLockTimeout):
		return fiber.NewError(fiber.StatusServiceUnavailable, "busy, retry")
	case strings.HasPrefix(err.Error(), "validation:"):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return fiber.NewError(fiber.StatusInternalServerError, "internal")
}

func parseIDParam(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.FromString(c.Params(name))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "bad "+name)
	}
	return id, nil
}

// --- Auth ---

func (s *Server) register(c *fiber.Ctx) error {
	var req struct {
		Login    string `json:"login"`
		FullName string `json:"full_name"`
		Phone    string `json:"phone"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "bad body")
	}
	id, err := s.auth.Register(c.UserContext(), service.RegisterInput{
		Login:    req.Login,
		FullName: req.FullName,
		Phone:    req.Phone,
		Password: req.Password,
	})
	if err != nil {
		return httpError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"user_id": id})
}

func (s *Server) login(c *fiber.Ctx) error {
	var req struct {
		Login    string `json:"login"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "bad body")
	}
	sess, tokens, err := s.auth.LoginWithIP(c.UserContext(), req.Login, req.Password, c.IP())
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(fiber.Map{
		"access_token": tokens.AccessToken,
		"expires_at":   tokens.ExpiresAt,
		"user_id":      sess.User.ID,
		"full_name":    sess.User.FullName,
		"roles":        sess.Roles,
	})
}

// --- Catalog ---

func (s *Server) availableBranches(c *fiber.Ctx) error {
	bookID, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}
	out, err := s.reservations.ListAvailableBranches(c.UserContext(), bookID)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(out)
}

// --- Reservations ---

func (s *Server) createReservation(c *fiber.Ctx) error {
	var req struct {
		BookID     uuid.UUID `json:"book_id"`
		BranchID   uuid.UUID `json:"branch_id"`
		PickupDate string    `json:"pickup_date"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "bad body")
	}
	pickup, err := time.ParseInLocation(dateLayout, req.PickupDate, time.Local)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "pickup_date must be YYYY-MM-DD")
	}
	id, err := s.reservations.Create(c.UserContext(), sessionFrom(c), req.BookID, req.BranchID, pickup)
	if err != nil {
		return httpError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"reservation_id": id})
}

func (s *Server) listOwnReservations(c *fiber.Ctx) error {
	out, err := s.reservations.ListOwn(c.UserContext(), sessionFrom(c))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(out)
}

func (s *Server) listAllReservations(c *fiber.Ctx) error {
	out, err := s.reservations.ListAll(c.UserContext(), sessionFrom(c))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(out)
}

func (s *Server) cancelReservation(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}
	if err := s.reservations.Cancel(c.UserContext(), sessionFrom(c), id); err != nil {
		return httpError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) extendReservation(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}
	pickup, err := s.reservations.Extend(c.UserContext(), sessionFrom(c), id)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(fiber.Map{"pickup_date": pickup.Format(dateLayout)})
}

func (s *Server) fulfillReservation(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}
	var req struct {
		LoanDays int `json:"loan_days"`
	}
	// body is optional; the default loan term applies when absent
	_ = c.BodyParser(&req)
	loanID, due, err := s.reservations.Fulfill(c.UserContext(), sessionFrom(c), id, req.LoanDays)
	if err != nil {
		return httpError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"loan_id":  loanID,
		"due_date": due.Format(dateLayout),
	})
}

// --- Loans ---

func (s *Server) issueLoan(c *fiber.Ctx) error {
	var req struct {
		InventoryCode string `json:"inventory_code"`
		ReaderLogin   string `json:"reader_login"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "bad body")
	}
	id, due, err := s.loans.Issue(c.UserContext(), sessionFrom(c), req.InventoryCode, req.ReaderLogin)
	if err != nil {
		return httpError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"loan_id":  id,
		"due_date": due.Format(dateLayout),
	})
}

func (s *Server) returnLoan(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}
	if err := s.loans.Return(c.UserContext(), sessionFrom(c), id); err != nil {
		return httpError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) sweepOverdue(c *fiber.Ctx) error {
	n, err := s.loans.UpdateOverdue(c.UserContext(), sessionFrom(c))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(fiber.Map{"marked_overdue": n})
}

// --- Reports ---

func (s *Server) activeLoans(c *fiber.Ctx) error {
	out, err := s.loans.ListActive(c.UserContext(), sessionFrom(c))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(out)
}

func (s *Server) availability(c *fiber.Ctx) error {
	out, err := s.loans.Availability(c.UserContext(), sessionFrom(c))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(out)
}

// --- Users ---

func (s *Server) registerLibrarian(c *fiber.Ctx) error {
	var req struct {
		Login    string `json:"login"`
		FullName string `json:"full_name"`
		Phone    string `json:"phone"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "bad body")
	}
	id, err := s.users.RegisterLibrarian(c.UserContext(), sessionFrom(c), service.RegisterInput{
		Login:    req.Login,
		FullName: req.FullName,
		Phone:    req.Phone,
		Password: req.Password,
	})
	if err != nil {
		return httpError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"user_id": id})
}

func (s *Server) setUserActive(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}
	var req struct {
		Active bool `json:"active"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "bad body")
	}
	if err := s.users.SetActive(c.UserContext(), sessionFrom(c), id, req.Active); err != nil {
		return httpError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) resetPassword(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}
	var req struct {
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "bad body")
	}
	if err := s.users.ResetPassword(c.UserContext(), sessionFrom(c), id, req.Password); err != nil {
		return httpError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
