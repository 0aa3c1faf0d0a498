package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/id"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// CatalogQuery is the list query shared by catalog endpoints.
type CatalogQuery struct {
	Search   string
	Category string
	Limit    int
	Offset   int
}

// CatalogHandler provides generic HTTP handlers for catalog entities.
type CatalogHandler[T any, CreateDTO any] struct {
	*BaseHandler
	cfg CatalogHandlerConfig[T, CreateDTO]
}

// CatalogHandlerConfig configures the catalog handler.
type CatalogHandlerConfig[T any, CreateDTO any] struct {
	Create       func(ctx context.Context, entity *T) error
	GetByID      func(ctx context.Context, id id.ID) (*T, error)
	List         func(ctx context.Context, q CatalogQuery) ([]*T, error)
	MapCreateDTO func(dto CreateDTO) *T
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler[T any, CreateDTO any](base *BaseHandler, cfg CatalogHandlerConfig[T, CreateDTO]) *CatalogHandler[T, CreateDTO] {
	return &CatalogHandler[T, CreateDTO]{BaseHandler: base, cfg: cfg}
}

// List handles GET /catalogs/{entity}
func (h *CatalogHandler[T, CreateDTO]) List(c *gin.Context) {
	page := dto.PaginationRequest{}
	if !h.BindQuery(c, &page) {
		return
	}
	page.Defaults()

	result, err := h.cfg.List(c.Request.Context(), CatalogQuery{
		Search:   c.Query("search"),
		Category: c.Query("category"),
		Limit:    page.Limit,
		Offset:   page.Offset,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(result))
}

// Get handles GET /catalogs/{entity}/:id
func (h *CatalogHandler[T, CreateDTO]) Get(c *gin.Context) {
	entityID, ok := h.PathID(c, "id")
	if !ok {
		return
	}

	entity, err := h.cfg.GetByID(c.Request.Context(), entityID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, entity)
}

// Create handles POST /catalogs/{entity}
func (h *CatalogHandler[T, CreateDTO]) Create(c *gin.Context) {
	var req CreateDTO
	if !h.BindJSON(c, &req) {
		return
	}

	entity := h.cfg.MapCreateDTO(req)
	if err := h.cfg.Create(c.Request.Context(), entity); err != nil {
		h.Error(c, err)
		return
	}
	h.CreatedWith(c, entity)
}
