package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/registers/stock"
	"stockledger/internal/infrastructure/http/v1/dto"
)

const (
	defaultMovementLimit = 100
	maxMovementLimit     = 1000
)

// StockHandler handles HTTP requests for the stock ledger.
type StockHandler struct {
	*BaseHandler
	service *stock.Service
}

// NewStockHandler creates a new stock handler.
func NewStockHandler(base *BaseHandler, service *stock.Service) *StockHandler {
	return &StockHandler{
		BaseHandler: base,
		service:     service,
	}
}

// RegisterRoutes mounts the ledger endpoints on rg.
func (h *StockHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/movements", h.RecordMovement)
	rg.GET("/movements", h.ListMovements)
	rg.POST("/transfers", h.Transfer)
	rg.GET("/balance", h.GetBalance)
	rg.GET("/balances", h.GetBalances)
	rg.GET("/layers", h.GetLayers)
	rg.GET("/fifo-cost", h.PreviewFIFOCost)
}

// RecordMovement handles POST /stock/movements
func (h *StockHandler) RecordMovement(c *gin.Context) {
	var req dto.RecordMovementRequest
	if !h.BindJSON(c, &req) {
		return
	}

	m, err := h.service.RecordMovement(c.Request.Context(), req.ToRequest())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.CreatedWith(c, m)
}

// Transfer handles POST /stock/transfers
func (h *StockHandler) Transfer(c *gin.Context) {
	var req dto.TransferRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.service.Transfer(c.Request.Context(), req.ToRequest())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.CreatedWith(c, result)
}

// GetBalance handles GET /stock/balance?itemId&warehouseId
func (h *StockHandler) GetBalance(c *gin.Context) {
	itemID, ok := h.RequiredQueryID(c, "itemId")
	if !ok {
		return
	}
	warehouseID, ok := h.RequiredQueryID(c, "warehouseId")
	if !ok {
		return
	}

	b, err := h.service.GetBalance(c.Request.Context(), itemID, warehouseID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromStockBalance(b))
}

// GetBalances handles GET /stock/balances
// With warehouseId it lists the warehouse (optionally narrowed to itemId),
// with itemId alone it lists the item across warehouses.
func (h *StockHandler) GetBalances(c *gin.Context) {
	ctx := c.Request.Context()

	warehouseID, ok := h.QueryID(c, "warehouseId")
	if !ok {
		return
	}
	itemID, ok := h.QueryID(c, "itemId")
	if !ok {
		return
	}

	var (
		balances []entity.StockBalance
		err      error
	)
	switch {
	case warehouseID != nil:
		filter := stock.BalanceFilter{ExcludeZero: c.Query("excludeZero") != "false"}
		if itemID != nil {
			filter.ItemIDs = []id.ID{*itemID}
		}
		balances, err = h.service.GetBalancesByWarehouse(ctx, *warehouseID, filter)
	case itemID != nil:
		balances, err = h.service.GetBalancesByItem(ctx, *itemID)
	default:
		h.Error(c, apperror.NewValidation("warehouseId or itemId is required"))
		return
	}
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.NewListResponse(dto.FromStockBalances(balances)))
}

// ListMovements handles GET /stock/movements
func (h *StockHandler) ListMovements(c *gin.Context) {
	var (
		filter stock.MovementFilter
		ok     bool
	)
	if filter.ItemID, ok = h.QueryID(c, "itemId"); !ok {
		return
	}
	if filter.WarehouseID, ok = h.QueryID(c, "warehouseId"); !ok {
		return
	}
	if filter.ReferenceID, ok = h.QueryID(c, "referenceId"); !ok {
		return
	}
	if filter.FromDate, ok = h.QueryTime(c, "fromDate"); !ok {
		return
	}
	if filter.ToDate, ok = h.QueryTime(c, "toDate"); !ok {
		return
	}
	for _, raw := range c.QueryArray("type") {
		t := entity.MovementType(raw)
		if !t.IsValid() {
			h.Error(c, apperror.NewValidation("unknown movement type").WithDetail("type", raw))
			return
		}
		filter.Types = append(filter.Types, t)
	}

	limit := h.ParseIntQuery(c, "limit", defaultMovementLimit)
	if limit < 1 || limit > maxMovementLimit {
		h.Error(c, apperror.NewValidation("limit must be between 1 and 1000").WithDetail("field", "limit"))
		return
	}

	resp := dto.MovementListResponse{Items: make([]entity.StockMovement, 0, min(limit, defaultMovementLimit))}
	for m, err := range h.service.ListMovements(c.Request.Context(), filter) {
		if err != nil {
			h.Error(c, err)
			return
		}
		if len(resp.Items) == limit {
			resp.HasMore = true
			break
		}
		resp.Items = append(resp.Items, m)
	}
	resp.Count = len(resp.Items)

	h.OK(c, resp)
}

// GetLayers handles GET /stock/layers?itemId&warehouseId
func (h *StockHandler) GetLayers(c *gin.Context) {
	itemID, ok := h.RequiredQueryID(c, "itemId")
	if !ok {
		return
	}
	warehouseID, ok := h.RequiredQueryID(c, "warehouseId")
	if !ok {
		return
	}

	layers, err := h.service.ListOpenLayers(c.Request.Context(), itemID, warehouseID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(layers))
}

// PreviewFIFOCost handles GET /stock/fifo-cost?itemId&warehouseId&quantity
func (h *StockHandler) PreviewFIFOCost(c *gin.Context) {
	itemID, ok := h.RequiredQueryID(c, "itemId")
	if !ok {
		return
	}
	warehouseID, ok := h.RequiredQueryID(c, "warehouseId")
	if !ok {
		return
	}
	qty, err := types.ParseQuantity(c.Query("quantity"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid quantity").WithDetail("field", "quantity"))
		return
	}

	cost, err := h.service.PreviewFIFOCost(c.Request.Context(), itemID, warehouseID, qty)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, cost)
}
