// Package stock provides the stock ledger: the append-only movement log,
// the per-partition balances derived from it and the FIFO cost layers.
package stock

import (
	"context"
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
)

// Repository defines persistence for the stock ledger.
// Write methods must be called inside a transaction from tx.Manager.
type Repository interface {
	// Movement log

	// InsertMovement appends one movement. Movements are never updated.
	InsertMovement(ctx context.Context, m entity.StockMovement) error

	// ListMovements returns up to limit movements ordered by (created_at, id),
	// starting strictly after the cursor when one is given.
	ListMovements(ctx context.Context, filter MovementFilter, after *MovementCursor, limit int) ([]entity.StockMovement, error)

	// Balances

	// GetBalance returns the partition balance, or an empty balance (Version 0)
	// when the partition has no movements yet.
	GetBalance(ctx context.Context, itemID, warehouseID id.ID) (entity.StockBalance, error)

	// GetBalanceForUpdate is GetBalance with a row lock held until the transaction ends.
	GetBalanceForUpdate(ctx context.Context, itemID, warehouseID id.ID) (entity.StockBalance, error)

	// SaveBalance writes b if the stored version still equals b.Version
	// (insert when b.Version is 0) and stores b.Version+1.
	// A stale version yields apperror ConcurrencyConflict.
	SaveBalance(ctx context.Context, b entity.StockBalance) error

	// GetBalancesByItem returns the item's balances across all warehouses.
	GetBalancesByItem(ctx context.Context, itemID id.ID) ([]entity.StockBalance, error)

	// GetBalancesByWarehouse returns balances stored for a warehouse.
	GetBalancesByWarehouse(ctx context.Context, warehouseID id.ID, filter BalanceFilter) ([]entity.StockBalance, error)

	// FIFO layers

	InsertLayer(ctx context.Context, layer entity.FIFOLayer) error

	// GetOpenLayersForUpdate locks and returns layers with remaining quantity,
	// oldest first.
	GetOpenLayersForUpdate(ctx context.Context, itemID, warehouseID id.ID) ([]entity.FIFOLayer, error)

	// UpdateLayerRemaining persists RemainingQuantity of the given layers.
	UpdateLayerRemaining(ctx context.Context, layers []entity.FIFOLayer) error

	// ListOpenLayers is the read-only variant of GetOpenLayersForUpdate.
	ListOpenLayers(ctx context.Context, itemID, warehouseID id.ID) ([]entity.FIFOLayer, error)

	// ListExpiringLayers returns open layers whose expiration date is before the given time.
	ListExpiringLayers(ctx context.Context, before time.Time) ([]entity.FIFOLayer, error)
}

// BalanceFilter for filtering balance queries.
type BalanceFilter struct {
	ItemIDs     []id.ID
	ExcludeZero bool
}

// MovementFilter for filtering the movement log.
// FromDate is inclusive, ToDate exclusive.
type MovementFilter struct {
	ItemID      *id.ID
	WarehouseID *id.ID
	FromDate    *time.Time
	ToDate      *time.Time
	Types       []entity.MovementType
	ReferenceID *id.ID
}

// MovementCursor is a keyset position in the movement log.
type MovementCursor struct {
	CreatedAt time.Time
	ID        id.ID
}

// CursorOf returns the position right after m.
func CursorOf(m entity.StockMovement) *MovementCursor {
	return &MovementCursor{CreatedAt: m.CreatedAt, ID: m.ID}
}
