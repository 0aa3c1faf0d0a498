package dto

import (
	"stockledger/internal/core/types"
	"stockledger/internal/domain/catalogs/item"
)

// CreateItemRequest is the request body for creating an item.
type CreateItemRequest struct {
	Code         string         `json:"code" binding:"required"`
	Name         string         `json:"name" binding:"required"`
	Unit         string         `json:"unit" binding:"required"`
	Category     string         `json:"category"`
	MinStock     types.Quantity `json:"minStock"`
	MaxStock     types.Quantity `json:"maxStock"`
	ReorderPoint types.Quantity `json:"reorderPoint"`
}

// ToEntity converts DTO to domain entity.
func (r CreateItemRequest) ToEntity() *item.Item {
	it := item.NewItem(r.Code, r.Name, r.Unit)
	it.Category = r.Category
	it.MinStock = r.MinStock
	it.MaxStock = r.MaxStock
	it.ReorderPoint = r.ReorderPoint
	return it
}
