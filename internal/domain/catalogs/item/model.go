// Package item provides the Item catalog: stock-keeping units tracked by the ledger,
// together with their denormalized stock summary.
package item

import (
	"context"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/types"
)

// Item is an ingredient or other stock-keeping unit.
type Item struct {
	entity.Catalog

	Category string `db:"category" json:"category,omitempty"`

	// Unit of measure (kg, l, pcs)
	Unit string `db:"unit" json:"unit"`

	MinStock     types.Quantity `db:"min_stock" json:"minStock"`
	MaxStock     types.Quantity `db:"max_stock" json:"maxStock"`
	ReorderPoint types.Quantity `db:"reorder_point" json:"reorderPoint"`

	StockCache
}

// StockCache is the per-item summary maintained by the item cache sync.
// Nothing else writes these fields.
type StockCache struct {
	TotalQuantity types.Quantity `db:"total_quantity" json:"totalQuantity"`
	TotalValue    types.Money    `db:"total_value" json:"totalValue"`

	// UnitPrice is the weighted-average price across warehouses
	UnitPrice types.Money `db:"unit_price" json:"unitPrice"`

	IsLowStock    bool       `db:"is_low_stock" json:"isLowStock"`
	CacheSyncedAt *time.Time `db:"cache_synced_at" json:"cacheSyncedAt,omitempty"`
}

// NewItem creates a new Item with required fields.
func NewItem(code, name, unit string) *Item {
	return &Item{
		Catalog: entity.NewCatalog(code, name),
		Unit:    unit,
	}
}

// Validate implements entity.Validatable interface.
func (i *Item) Validate(ctx context.Context) error {
	if err := i.Catalog.Validate(ctx); err != nil {
		return err
	}
	if i.Unit == "" {
		return apperror.NewValidation("unit is required").WithDetail("field", "unit")
	}
	if i.MinStock.IsNegative() || i.MaxStock.IsNegative() || i.ReorderPoint.IsNegative() {
		return apperror.NewValidation("stock thresholds must not be negative")
	}
	if i.MaxStock > 0 && i.MinStock > i.MaxStock {
		return apperror.NewValidation("minStock exceeds maxStock").
			WithDetail("minStock", i.MinStock.String()).
			WithDetail("maxStock", i.MaxStock.String())
	}
	return nil
}

// IsLowStockAt applies the low-stock rule to a total quantity.
func (i *Item) IsLowStockAt(total types.Quantity) bool {
	return total <= i.MinStock
}

// NeedsReorder reports whether cached stock reached the reorder point.
func (i *Item) NeedsReorder() bool {
	return i.ReorderPoint > 0 && i.TotalQuantity <= i.ReorderPoint
}
