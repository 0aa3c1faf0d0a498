package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/registers/stock"
)

// --- Request DTOs ---

// RecordMovementRequest is the body of POST /stock/movements.
// Quantity is signed and accepts a number or a decimal string.
type RecordMovementRequest struct {
	ItemID         id.ID            `json:"itemId"`
	WarehouseID    id.ID            `json:"warehouseId"`
	MovementType   string           `json:"movementType" binding:"required"`
	Quantity       types.Quantity   `json:"quantity"`
	UnitPrice      *decimal.Decimal `json:"unitPrice"`
	LotNumber      *string          `json:"lotNumber"`
	ExpirationDate *time.Time       `json:"expirationDate"`
	DocumentNumber string           `json:"documentNumber"`
	DocumentType   string           `json:"documentType"`
	ReferenceID    *id.ID           `json:"referenceId"`
}

// ToRequest converts DTO to a ledger request.
func (r *RecordMovementRequest) ToRequest() stock.MovementRequest {
	req := stock.MovementRequest{
		ItemID:         r.ItemID,
		WarehouseID:    r.WarehouseID,
		Type:           entity.MovementType(r.MovementType),
		Quantity:       r.Quantity,
		UnitPrice:      decimal.Zero,
		LotNumber:      r.LotNumber,
		ExpirationDate: r.ExpirationDate,
		Document: stock.DocumentRef{
			Number:      r.DocumentNumber,
			Type:        r.DocumentType,
			ReferenceID: r.ReferenceID,
		},
	}
	if r.UnitPrice != nil {
		req.UnitPrice = *r.UnitPrice
	}
	return req
}

// TransferRequest is the body of POST /stock/transfers.
type TransferRequest struct {
	ItemID          id.ID          `json:"itemId"`
	FromWarehouseID id.ID          `json:"fromWarehouseId"`
	ToWarehouseID   id.ID          `json:"toWarehouseId"`
	Quantity        types.Quantity `json:"quantity"`
	DocumentNumber  string         `json:"documentNumber"`
	ReferenceID     *id.ID         `json:"referenceId"`
}

// ToRequest converts DTO to a ledger request.
func (r *TransferRequest) ToRequest() stock.TransferRequest {
	return stock.TransferRequest{
		ItemID:          r.ItemID,
		FromWarehouseID: r.FromWarehouseID,
		ToWarehouseID:   r.ToWarehouseID,
		Quantity:        r.Quantity,
		Document: stock.DocumentRef{
			Number:      r.DocumentNumber,
			ReferenceID: r.ReferenceID,
		},
	}
}

// --- Response DTOs ---

// StockBalanceResponse represents stock balance in API responses.
type StockBalanceResponse struct {
	ItemID       string         `json:"itemId"`
	WarehouseID  string         `json:"warehouseId"`
	Quantity     types.Quantity `json:"quantity"`
	TotalValue   types.Money    `json:"totalValue"`
	AveragePrice types.Money    `json:"averagePrice"`
	LastUpdated  *time.Time     `json:"lastUpdated,omitempty"`
}

// FromStockBalance converts entity to response DTO.
// A partition without movements has no lastUpdated.
func FromStockBalance(b entity.StockBalance) StockBalanceResponse {
	var lastUpdated *time.Time
	if !b.LastUpdated.IsZero() {
		val := b.LastUpdated
		lastUpdated = &val
	}

	return StockBalanceResponse{
		ItemID:       b.ItemID.String(),
		WarehouseID:  b.WarehouseID.String(),
		Quantity:     b.Quantity,
		TotalValue:   b.TotalValue,
		AveragePrice: b.AveragePrice(),
		LastUpdated:  lastUpdated,
	}
}

// FromStockBalances converts a slice of balances.
func FromStockBalances(bs []entity.StockBalance) []StockBalanceResponse {
	out := make([]StockBalanceResponse, len(bs))
	for i, b := range bs {
		out[i] = FromStockBalance(b)
	}
	return out
}

// MovementListResponse is one page of the movement log.
// HasMore is set when the log continues past the limit.
type MovementListResponse struct {
	Items   []entity.StockMovement `json:"items"`
	Count   int                    `json:"count"`
	HasMore bool                   `json:"hasMore"`
}
