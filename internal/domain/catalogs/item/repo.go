package item

import (
	"context"

	"stockledger/internal/core/id"
)

// ListFilter narrows item listings.
type ListFilter struct {
	Category string
	Search   string
	Limit    int
	Offset   int
}

// Repository defines the interface for Item persistence.
type Repository interface {
	Create(ctx context.Context, item *Item) error

	// GetByID returns apperror NotFound for unknown ids.
	GetByID(ctx context.Context, id id.ID) (*Item, error)

	List(ctx context.Context, filter ListFilter) ([]*Item, error)

	// ListIDs returns ids of all active items.
	ListIDs(ctx context.Context) ([]id.ID, error)

	// UpdateStockCache overwrites the cache fields of one item.
	UpdateStockCache(ctx context.Context, id id.ID, cache StockCache) error

	// ListLowStock returns items flagged low-stock or at their reorder point.
	ListLowStock(ctx context.Context) ([]*Item, error)
}
