package dto

import (
	"stockledger/internal/domain/catalogs/warehouse"
)

// CreateWarehouseRequest is the request body for creating a warehouse.
type CreateWarehouseRequest struct {
	Code               string `json:"code" binding:"required"`
	Name               string `json:"name" binding:"required"`
	AllowNegativeStock bool   `json:"allowNegativeStock"`
}

// ToEntity converts DTO to domain entity.
func (r CreateWarehouseRequest) ToEntity() *warehouse.Warehouse {
	wh := warehouse.NewWarehouse(r.Code, r.Name)
	wh.AllowNegativeStock = r.AllowNegativeStock
	return wh
}
