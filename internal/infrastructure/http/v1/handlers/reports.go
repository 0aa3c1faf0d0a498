package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	"stockledger/internal/domain/reports"
)

const defaultExpiryDays = 7

// ReportsHandler handles HTTP requests for reports.
type ReportsHandler struct {
	*BaseHandler
	service *reports.Service
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(base *BaseHandler, service *reports.Service) *ReportsHandler {
	return &ReportsHandler{
		BaseHandler: base,
		service:     service,
	}
}

// RegisterRoutes mounts the report endpoints on rg.
func (h *ReportsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/low-stock", h.LowStock)
	rg.GET("/expiring", h.Expiring)
	rg.GET("/turnover", h.Turnover)
}

// LowStock handles GET /reports/low-stock
func (h *ReportsHandler) LowStock(c *gin.Context) {
	report, err := h.service.LowStock(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}

// Expiring handles GET /reports/expiring?days=
func (h *ReportsHandler) Expiring(c *gin.Context) {
	days := h.ParseIntQuery(c, "days", defaultExpiryDays)
	if days < 0 {
		h.Error(c, apperror.NewValidation("days must not be negative").WithDetail("field", "days"))
		return
	}

	report, err := h.service.ExpiringLots(c.Request.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}

// Turnover handles GET /reports/turnover?itemId&warehouseId&from&to
func (h *ReportsHandler) Turnover(c *gin.Context) {
	itemID, ok := h.RequiredQueryID(c, "itemId")
	if !ok {
		return
	}
	warehouseID, ok := h.QueryID(c, "warehouseId")
	if !ok {
		return
	}
	from, ok := h.QueryTime(c, "from")
	if !ok {
		return
	}
	to, ok := h.QueryTime(c, "to")
	if !ok {
		return
	}

	filter := reports.TurnoverFilter{ItemID: itemID, WarehouseID: warehouseID}
	if from != nil {
		filter.From = *from
	}
	if to != nil {
		filter.To = *to
	}

	report, err := h.service.Turnover(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}
