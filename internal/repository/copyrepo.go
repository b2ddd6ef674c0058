package repository

import (
	"context"

	"github.com/avelichko/libcirc/internal/model"
	"github.com/gofrs/uuid/v5"
)

// CopyRepository is the read side of the inventory store. Status mutations
// happen only inside loan/reservation transactions, never through this
// interface, so cross-entity invariants stay with the engines.
type CopyRepository interface {
	// GetByCode resolves a copy by its unique inventory code.
	GetByCode(ctx context.Context, code string) (*model.Copy, error)
	// GetByID loads a copy by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Copy, error)
	// AvailableBranches groups available copies of a book by branch,
	// excluding branches with none.
	AvailableBranches(ctx context.Context, bookID uuid.UUID) ([]model.BranchAvailability, error)
	// AvailabilityByBook summarizes copy counts per status for every book.
	AvailabilityByBook(ctx context.Context) ([]model.BookAvailability, error)
}
