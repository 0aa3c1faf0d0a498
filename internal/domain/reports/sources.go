package reports

import (
	"context"
	"iter"
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/catalogs/item"
	"stockledger/internal/domain/registers/stock"
)

// Ledger is the read side of the stock ledger used by reports.
type Ledger interface {
	ListMovements(ctx context.Context, filter stock.MovementFilter) iter.Seq2[entity.StockMovement, error]
	ListExpiringLayers(ctx context.Context, before time.Time) ([]entity.FIFOLayer, error)
}

// Items is the item catalog used by reports.
type Items interface {
	GetByID(ctx context.Context, id id.ID) (*item.Item, error)
	ListLowStock(ctx context.Context) ([]*item.Item, error)
}
