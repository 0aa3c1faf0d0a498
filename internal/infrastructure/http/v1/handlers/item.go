package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/itemcache"
)

// ItemHandler serves the per-item stock summary.
type ItemHandler struct {
	*BaseHandler
	cache *itemcache.Service
}

// NewItemHandler creates a new item summary handler.
func NewItemHandler(base *BaseHandler, cache *itemcache.Service) *ItemHandler {
	return &ItemHandler{
		BaseHandler: base,
		cache:       cache,
	}
}

// RegisterRoutes mounts the summary endpoints on rg.
func (h *ItemHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/:id/summary", h.GetSummary)
	rg.POST("/:id/sync", h.Sync)
}

// GetSummary handles GET /items/:id/summary
func (h *ItemHandler) GetSummary(c *gin.Context) {
	itemID, ok := h.PathID(c, "id")
	if !ok {
		return
	}

	summary, err := h.cache.GetItemSummary(c.Request.Context(), itemID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, summary)
}

// Sync handles POST /items/:id/sync
// It recomputes the summary from the balances right away.
func (h *ItemHandler) Sync(c *gin.Context) {
	itemID, ok := h.PathID(c, "id")
	if !ok {
		return
	}

	summary, err := h.cache.SyncItem(c.Request.Context(), itemID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, summary)
}
