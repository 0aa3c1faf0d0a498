// Package reports provides read-only stock projections: low stock,
// expiring lots and turnover. Reports never write to the ledger.
package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// --- Low stock ---

// LowStockRow is one item at or below its minimum or reorder point.
type LowStockRow struct {
	ItemID        id.ID          `json:"itemId"`
	Code          string         `json:"code"`
	Name          string         `json:"name"`
	Unit          string         `json:"unit"`
	TotalQuantity types.Quantity `json:"totalQuantity"`
	MinStock      types.Quantity `json:"minStock"`
	ReorderPoint  types.Quantity `json:"reorderPoint"`
	IsLowStock    bool           `json:"isLowStock"`
	NeedsReorder  bool           `json:"needsReorder"`
}

// LowStockReport lists items that need attention, most urgent first.
type LowStockReport struct {
	GeneratedAt time.Time     `json:"generatedAt"`
	Items       []LowStockRow `json:"items"`
}

// --- Expiring lots ---

// ExpiringLot is an open FIFO layer close to or past its expiration date.
type ExpiringLot struct {
	LayerID           id.ID          `json:"layerId"`
	ItemID            id.ID          `json:"itemId"`
	WarehouseID       id.ID          `json:"warehouseId"`
	LotNumber         *string        `json:"lotNumber,omitempty"`
	ExpirationDate    time.Time      `json:"expirationDate"`
	RemainingQuantity types.Quantity `json:"remainingQuantity"`
	UnitPrice         types.Money    `json:"unitPrice"`
	Value             types.Money    `json:"value"`
	DaysLeft          int            `json:"daysLeft"`
	Expired           bool           `json:"expired"`
}

// ExpiringLotsReport lists lots expiring within a window.
type ExpiringLotsReport struct {
	GeneratedAt time.Time     `json:"generatedAt"`
	Until       time.Time     `json:"until"`
	Lots        []ExpiringLot `json:"lots"`
	TotalValue  types.Money   `json:"totalValue"`
}

// --- Turnover ---

// TurnoverFilter selects the partition and period of a turnover report.
// WarehouseID nil means all warehouses. To is exclusive.
type TurnoverFilter struct {
	ItemID      id.ID
	WarehouseID *id.ID
	From        time.Time
	To          time.Time
}

// Totals is a quantity/value pair.
type Totals struct {
	Quantity types.Quantity `json:"quantity"`
	Value    types.Money    `json:"value"`
}

func zeroTotals() Totals { return Totals{Value: decimal.Zero} }

func (t *Totals) add(m entity.StockMovement) {
	t.Quantity += m.Quantity
	t.Value = t.Value.Add(m.TotalValue)
}

// TurnoverReport is the opening balance, period flows and closing balance.
// Outflow totals are negative.
type TurnoverReport struct {
	ItemID      id.ID     `json:"itemId"`
	WarehouseID *id.ID    `json:"warehouseId,omitempty"`
	From        time.Time `json:"from"`
	To          time.Time `json:"to"`

	Opening Totals `json:"opening"`
	Inflow  Totals `json:"inflow"`
	Outflow Totals `json:"outflow"`
	Closing Totals `json:"closing"`

	ByType    map[entity.MovementType]Totals `json:"byType"`
	Movements int                            `json:"movements"`
}
