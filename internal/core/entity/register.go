// Package entity defines the ledger records shared by domain and storage layers.
package entity

import (
	"time"

	"github.com/shopspring/decimal"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// MovementType classifies a stock movement.
type MovementType string

const (
	MovementInitial             MovementType = "INITIAL"
	MovementPurchaseIn          MovementType = "PURCHASE_IN"
	MovementSaleConsumption     MovementType = "SALE_CONSUMPTION"
	MovementTransferOut         MovementType = "TRANSFER_OUT"
	MovementTransferIn          MovementType = "TRANSFER_IN"
	MovementAdjustmentIncrement MovementType = "ADJUSTMENT_INCREMENT"
	MovementAdjustmentDecrement MovementType = "ADJUSTMENT_DECREMENT"
	MovementWastage             MovementType = "WASTAGE"
	MovementReturnIn            MovementType = "RETURN_IN"
	MovementReturnOut           MovementType = "RETURN_OUT"
)

// Direction is the expected sign of a movement quantity.
type Direction int

const (
	Inflow  Direction = 1
	Outflow Direction = -1
)

var movementDirections = map[MovementType]Direction{
	MovementInitial:             Inflow,
	MovementPurchaseIn:          Inflow,
	MovementTransferIn:          Inflow,
	MovementAdjustmentIncrement: Inflow,
	MovementReturnIn:            Inflow,
	MovementSaleConsumption:     Outflow,
	MovementTransferOut:         Outflow,
	MovementAdjustmentDecrement: Outflow,
	MovementWastage:             Outflow,
	MovementReturnOut:           Outflow,
}

// MovementTypes lists every known movement type.
func MovementTypes() []MovementType {
	return []MovementType{
		MovementInitial, MovementPurchaseIn, MovementSaleConsumption,
		MovementTransferOut, MovementTransferIn,
		MovementAdjustmentIncrement, MovementAdjustmentDecrement,
		MovementWastage, MovementReturnIn, MovementReturnOut,
	}
}

// IsValid reports whether t is a known movement type.
func (t MovementType) IsValid() bool {
	_, ok := movementDirections[t]
	return ok
}

// Direction returns the sign a quantity of this type must carry.
func (t MovementType) Direction() Direction {
	return movementDirections[t]
}

// IsInflow reports whether the movement adds stock.
func (t MovementType) IsInflow() bool {
	return t.Direction() == Inflow
}

// UsesFIFOCost reports whether the movement is valued at FIFO cost
// rather than at the caller-supplied unit price.
func (t MovementType) UsesFIFOCost() bool {
	switch t {
	case MovementSaleConsumption, MovementTransferOut, MovementWastage:
		return true
	}
	return false
}

// MatchesSign reports whether q carries the sign the type requires.
func (t MovementType) MatchesSign(q types.Quantity) bool {
	switch t.Direction() {
	case Inflow:
		return q.IsPositive()
	case Outflow:
		return q.IsNegative()
	}
	return false
}

// StockMovement is one immutable entry of the movement log.
// Corrections are new movements; rows are never updated or deleted.
type StockMovement struct {
	ID          id.ID `db:"id" json:"id"`
	ItemID      id.ID `db:"item_id" json:"itemId"`
	WarehouseID id.ID `db:"warehouse_id" json:"warehouseId"`

	MovementType MovementType `db:"movement_type" json:"movementType"`

	// Quantity is signed: positive for inflows, negative for outflows.
	Quantity   types.Quantity `db:"quantity" json:"quantity"`
	UnitPrice  types.Money    `db:"unit_price" json:"unitPrice"`
	TotalValue types.Money    `db:"total_value" json:"totalValue"`

	LotNumber      *string    `db:"lot_number" json:"lotNumber,omitempty"`
	ExpirationDate *time.Time `db:"expiration_date" json:"expirationDate,omitempty"`

	DocumentNumber string `db:"document_number" json:"documentNumber,omitempty"`
	DocumentType   string `db:"document_type" json:"documentType,omitempty"`
	ReferenceID    *id.ID `db:"reference_id" json:"referenceId,omitempty"`

	CreatedBy string    `db:"created_by" json:"createdBy"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// StockBalance is the running total for one (item, warehouse) partition.
// It always equals the signed sum of the partition's movements.
type StockBalance struct {
	ItemID      id.ID          `db:"item_id" json:"itemId"`
	WarehouseID id.ID          `db:"warehouse_id" json:"warehouseId"`
	Quantity    types.Quantity `db:"quantity" json:"quantity"`
	TotalValue  types.Money    `db:"total_value" json:"totalValue"`
	LastUpdated time.Time      `db:"last_updated" json:"lastUpdated"`

	// Version is 0 for a partition that has never been written.
	Version int64 `db:"version" json:"-"`
}

// NewEmptyBalance returns the balance of a partition without movements.
func NewEmptyBalance(itemID, warehouseID id.ID) StockBalance {
	return StockBalance{
		ItemID:      itemID,
		WarehouseID: warehouseID,
		TotalValue:  decimal.Zero,
	}
}

// AveragePrice returns totalValue / quantity, or zero when quantity <= 0.
func (b StockBalance) AveragePrice() types.Money {
	if b.Quantity <= 0 {
		return decimal.Zero
	}
	return b.TotalValue.Div(b.Quantity.Decimal())
}

// Apply adds a movement to the balance.
func (b *StockBalance) Apply(m StockMovement) {
	b.Quantity += m.Quantity
	b.TotalValue = b.TotalValue.Add(m.TotalValue)
	b.LastUpdated = m.CreatedAt
}

// FIFOLayer is an unconsumed lot of stock with its own unit cost.
type FIFOLayer struct {
	ID          id.ID `db:"id" json:"id"`
	ItemID      id.ID `db:"item_id" json:"itemId"`
	WarehouseID id.ID `db:"warehouse_id" json:"warehouseId"`
	MovementID  id.ID `db:"movement_id" json:"movementId"`

	Quantity          types.Quantity `db:"quantity" json:"quantity"`
	RemainingQuantity types.Quantity `db:"remaining_quantity" json:"remainingQuantity"`
	UnitPrice         types.Money    `db:"unit_price" json:"unitPrice"`

	LotNumber      *string    `db:"lot_number" json:"lotNumber,omitempty"`
	ExpirationDate *time.Time `db:"expiration_date" json:"expirationDate,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// IsExhausted reports whether the layer has nothing left to consume.
func (l FIFOLayer) IsExhausted() bool {
	return l.RemainingQuantity <= 0
}
