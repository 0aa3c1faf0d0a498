package dto

import (
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/documents/count"
)

// CreateCountRequest is the body of POST /counts.
// An empty itemIds seeds the sheet from every non-zero balance.
type CreateCountRequest struct {
	WarehouseID id.ID   `json:"warehouseId"`
	ItemIDs     []id.ID `json:"itemIds"`
	Notes       string  `json:"notes"`
}

// ToInput converts DTO to the service input.
func (r *CreateCountRequest) ToInput() count.CreateInput {
	return count.CreateInput{
		WarehouseID: r.WarehouseID,
		ItemIDs:     r.ItemIDs,
		Notes:       r.Notes,
	}
}

// RecordCountRequest is the body of PUT /counts/:id/items/:itemId.
type RecordCountRequest struct {
	CountedQuantity *types.Quantity `json:"countedQuantity"`
}

// CountListRequest are the query parameters of GET /counts.
type CountListRequest struct {
	PaginationRequest
	WarehouseID string `form:"warehouseId"`
	Status      string `form:"status"`
}
