package warehouse

import (
	"context"

	"stockledger/internal/core/id"
)

// Repository defines the interface for Warehouse persistence.
type Repository interface {
	Create(ctx context.Context, wh *Warehouse) error

	// GetByID returns apperror NotFound for unknown ids.
	GetByID(ctx context.Context, id id.ID) (*Warehouse, error)

	List(ctx context.Context) ([]*Warehouse, error)
}
