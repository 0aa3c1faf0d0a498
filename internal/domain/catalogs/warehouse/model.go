// Package warehouse provides the Warehouse catalog.
// Warehouses are static reference data; the ledger consults them for stock policy.
package warehouse

import (
	"context"

	"stockledger/internal/core/entity"
)

// Warehouse represents a storage location.
type Warehouse struct {
	entity.Catalog

	// AllowNegativeStock lets outflows drive balances below zero
	AllowNegativeStock bool `db:"allow_negative_stock" json:"allowNegativeStock"`
}

// NewWarehouse creates a new Warehouse with required fields.
func NewWarehouse(code, name string) *Warehouse {
	return &Warehouse{
		Catalog: entity.NewCatalog(code, name),
	}
}

// Validate implements entity.Validatable interface.
func (w *Warehouse) Validate(ctx context.Context) error {
	return w.Catalog.Validate(ctx)
}

// CanIssueStock reports whether an outflow is allowed given whether it would leave the balance negative.
func (w *Warehouse) CanIssueStock(wouldGoNegative bool) bool {
	return !wouldGoNegative || w.AllowNegativeStock
}
