// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Tokens collects tokens issued for an authenticated session.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time
}

// User represents an account. The password is stored only as a bcrypt hash.
type User struct {
	ID           uuid.UUID
	Login        string // unique
	FullName     string
	Phone        string // optional, empty when unset
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
}

// Branch is a physical library location where copies are shelved and picked up.
type Branch struct {
	ID      uuid.UUID
	Name    string // unique
	Address string
	Phone   string
}

// Copy is one physical instance of a book, tracked by inventory code.
type Copy struct {
	ID            uuid.UUID
	InventoryCode string // unique
	Status        CopyStatus
	Price         *float64
	ConditionNote string
	BookID        uuid.UUID
	LocationID    *uuid.UUID // nil when the copy is not shelved
}

// Loan links a copy, a reader, and the issuing librarian.
type Loan struct {
	ID          uuid.UUID
	Status      LoanStatus
	StartDate   time.Time // date precision
	DueDate     time.Time
	ReturnDate  *time.Time // nil until returned
	CopyID      uuid.UUID
	ReaderID    uuid.UUID
	LibrarianID uuid.UUID
}

// Reservation is a time-boxed hold on one copy for pickup at a branch.
type Reservation struct {
	ID           uuid.UUID
	Status       ReservationStatus
	PickupDate   time.Time // date precision
	CreatedAt    time.Time
	ExpiresAt    time.Time
	ExtendedOnce bool
	ReaderID     uuid.UUID
	CopyID       uuid.UUID
	BranchID     uuid.UUID
}

// BranchAvailability reports how many copies of a book a branch can hand out.
// Branches with zero available copies are never listed.
type BranchAvailability struct {
	BranchID       uuid.UUID
	Name           string
	Address        string
	Phone          string
	AvailableCount int64
}

// ReservationView is a denormalized reservation row for listings.
// Reader fields are populated only in the librarian-wide listing.
type ReservationView struct {
	ID            uuid.UUID
	Status        ReservationStatus
	PickupDate    time.Time
	CreatedAt     time.Time
	ExpiresAt     time.Time
	ExtendedOnce  bool
	BookTitle     string
	InventoryCode string
	BranchName    string
	BranchAddress string
	ReaderLogin   string
	ReaderName    string
	ReaderPhone   string
}

// ActiveLoanView is a denormalized open/overdue loan row for the report.
type ActiveLoanView struct {
	ID            uuid.UUID
	Status        LoanStatus
	StartDate     time.Time
	DueDate       time.Time
	InventoryCode string
	BookTitle     string
	ReaderLogin   string
	ReaderName    string
}

// BookAvailability summarizes copy counts per status for one book.
type BookAvailability struct {
	BookID    uuid.UUID
	Title     string
	Total     int64
	Available int64
	Loaned    int64
	Reserved  int64
	Lost      int64
	Damaged   int64
}

// EndOfDay returns the reservation expiry instant for a pickup date:
// 23:59:59 local time on that day.
func EndOfDay(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 0, d.Location())
}

// DateOnly truncates an instant to midnight local time.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
