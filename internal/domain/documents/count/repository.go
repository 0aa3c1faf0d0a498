package count

import (
	"context"

	"stockledger/internal/core/id"
)

// Repository defines operations for inventory counts.
type Repository interface {
	// Create stores the header together with its seeded sheet.
	Create(ctx context.Context, c *Count, items []Item) error

	GetByID(ctx context.Context, countID id.ID) (*Count, error)

	// GetItems returns the sheet ordered by item id.
	GetItems(ctx context.Context, countID id.ID) ([]Item, error)

	// GetItemForUpdate locks one sheet line. Unknown lines yield apperror NotFound.
	GetItemForUpdate(ctx context.Context, countID, itemID id.ID) (*Item, error)

	// UpsertItem inserts a sheet line or updates its counted fields.
	UpsertItem(ctx context.Context, item Item) error

	// FinalizeItem writes SystemQuantityAtFinalization and Discrepancy once.
	// A line that is already finalized yields apperror ConcurrencyConflict.
	FinalizeItem(ctx context.Context, item Item) error

	// UpdateStatus moves the header from one status to another.
	// A header that is no longer in from yields apperror ConcurrencyConflict.
	UpdateStatus(ctx context.Context, countID id.ID, from, to Status) error

	// MarkApproved stores the approval stamp and aggregates unless the row is
	// already approved, in which case it yields apperror CountAlreadyApproved.
	MarkApproved(ctx context.Context, c *Count) error

	List(ctx context.Context, filter ListFilter) ([]*Count, error)
}

// ListFilter for filtering counts.
type ListFilter struct {
	WarehouseID *id.ID
	Status      *Status
	Limit       int
	Offset      int
}
