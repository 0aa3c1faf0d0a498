package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/documents/count"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// CountHandler handles the inventory count lifecycle.
type CountHandler struct {
	*BaseHandler
	service *count.Service
}

// NewCountHandler creates a new inventory count handler.
func NewCountHandler(base *BaseHandler, service *count.Service) *CountHandler {
	return &CountHandler{
		BaseHandler: base,
		service:     service,
	}
}

// RegisterRoutes mounts the count endpoints on rg.
func (h *CountHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.GET("/:id/history", h.History)
	rg.POST("/:id/start", h.Start)
	rg.PUT("/:id/items/:itemId", h.RecordCount)
	rg.POST("/:id/ready", h.MarkReady)
	rg.POST("/:id/approve", h.Approve)
}

// Create handles POST /counts
func (h *CountHandler) Create(c *gin.Context) {
	var req dto.CreateCountRequest
	if !h.BindJSON(c, &req) {
		return
	}

	created, err := h.service.Create(c.Request.Context(), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.CreatedWith(c, created)
}

// List handles GET /counts
func (h *CountHandler) List(c *gin.Context) {
	var req dto.CountListRequest
	if !h.BindQuery(c, &req) {
		return
	}
	req.Defaults()

	filter := count.ListFilter{Limit: req.Limit, Offset: req.Offset}
	if req.WarehouseID != "" {
		whID, err := id.Parse(req.WarehouseID)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid warehouseId format").WithDetail("field", "warehouseId"))
			return
		}
		filter.WarehouseID = &whID
	}
	if req.Status != "" {
		status := count.Status(req.Status)
		filter.Status = &status
	}

	counts, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(counts))
}

// Get handles GET /counts/:id
func (h *CountHandler) Get(c *gin.Context) {
	countID, ok := h.PathID(c, "id")
	if !ok {
		return
	}

	found, err := h.service.Get(c.Request.Context(), countID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, found)
}

// History handles GET /counts/:id/history
func (h *CountHandler) History(c *gin.Context) {
	countID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	entries, err := h.service.History(c.Request.Context(), countID, h.ParseIntQuery(c, "limit", 20))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(entries))
}

// Start handles POST /counts/:id/start
func (h *CountHandler) Start(c *gin.Context) {
	countID, ok := h.PathID(c, "id")
	if !ok {
		return
	}

	started, err := h.service.Start(c.Request.Context(), countID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, started)
}

// RecordCount handles PUT /counts/:id/items/:itemId
func (h *CountHandler) RecordCount(c *gin.Context) {
	countID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	itemID, ok := h.PathID(c, "itemId")
	if !ok {
		return
	}

	var req dto.RecordCountRequest
	if !h.BindJSON(c, &req) {
		return
	}
	if req.CountedQuantity == nil {
		h.Error(c, apperror.NewValidation("countedQuantity is required").WithDetail("field", "countedQuantity"))
		return
	}

	line, err := h.service.RecordCount(c.Request.Context(), countID, itemID, *req.CountedQuantity, h.GetUserID(c))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, line)
}

// MarkReady handles POST /counts/:id/ready
func (h *CountHandler) MarkReady(c *gin.Context) {
	countID, ok := h.PathID(c, "id")
	if !ok {
		return
	}

	ready, err := h.service.MarkReady(c.Request.Context(), countID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, ready)
}

// Approve handles POST /counts/:id/approve
func (h *CountHandler) Approve(c *gin.Context) {
	countID, ok := h.PathID(c, "id")
	if !ok {
		return
	}

	result, err := h.service.Approve(c.Request.Context(), countID, h.GetUserID(c))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}
