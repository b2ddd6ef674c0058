package model

// CopyStatus is the lifecycle state of a physical copy.
type CopyStatus string

const (
	CopyAvailable CopyStatus = "available"
	CopyLoaned    CopyStatus = "loaned"
	CopyReserved  CopyStatus = "reserved"
	CopyLost      CopyStatus = "lost"
	CopyDamaged   CopyStatus = "damaged"
)

var copyTransitions = map[CopyStatus][]CopyStatus{
	CopyAvailable: {CopyLoaned, CopyReserved, CopyLost, CopyDamaged},
	CopyLoaned:    {CopyAvailable, CopyLost, CopyDamaged},
	CopyReserved:  {CopyAvailable, CopyLoaned, CopyLost, CopyDamaged},
	CopyLost:      {CopyAvailable},
	CopyDamaged:   {CopyAvailable},
}

// Valid reports whether s is a known copy status.
func (s CopyStatus) Valid() bool {
	_, ok := copyTransitions[s]
	return ok
}

// CanBecome reports whether the transition s -> next is allowed.
func (s CopyStatus) CanBecome(next CopyStatus) bool {
	for _, t := range copyTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// LoanStatus is the lifecycle state of a loan.
type LoanStatus string

const (
	LoanOpen      LoanStatus = "open"
	LoanOverdue   LoanStatus = "overdue"
	LoanReturned  LoanStatus = "returned"
	LoanCancelled LoanStatus = "cancelled"
)

var loanTransitions = map[LoanStatus][]LoanStatus{
	LoanOpen:      {LoanOverdue, LoanReturned, LoanCancelled},
	LoanOverdue:   {LoanReturned},
	LoanReturned:  nil,
	LoanCancelled: nil,
}

// Valid reports whether s is a known loan status.
func (s LoanStatus) Valid() bool {
	_, ok := loanTransitions[s]
	return ok
}

// Active reports whether the loan still holds its copy.
func (s LoanStatus) Active() bool {
	return s == LoanOpen || s == LoanOverdue
}

// CanBecome reports whether the transition s -> next is allowed.
func (s LoanStatus) CanBecome(next LoanStatus) bool {
	for _, t := range loanTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationFulfilled ReservationStatus = "fulfilled"
	ReservationExpired   ReservationStatus = "expired"
	ReservationCancelled ReservationStatus = "cancelled"
)

var reservationTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationActive:    {ReservationFulfilled, ReservationExpired, ReservationCancelled},
	ReservationFulfilled: nil,
	ReservationExpired:   nil,
	ReservationCancelled: nil,
}

// Valid reports whether s is a known reservation status.
func (s ReservationStatus) Valid() bool {
	_, ok := reservationTransitions[s]
	return ok
}

// Terminal reports whether no further transitions are allowed.
func (s ReservationStatus) Terminal() bool {
	return s.Valid() && len(reservationTransitions[s]) == 0
}

// CanBecome reports whether the transition s -> next is allowed.
func (s ReservationStatus) CanBecome(next ReservationStatus) bool {
	for _, t := range reservationTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}
