// Package itemcache maintains the denormalized per-item stock summary:
// total quantity and value across warehouses, weighted-average price and the
// low-stock flag. It is a projection of the balance store and can always be
// rebuilt from it.
package itemcache

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/catalogs/item"
	"stockledger/pkg/logger"
)

// Summary is the read model served to menu costing and alerting.
type Summary struct {
	ItemID        id.ID          `json:"itemId"`
	TotalQuantity types.Quantity `json:"totalQuantity"`
	TotalValue    types.Money    `json:"totalValue"`
	AvgPrice      types.Money    `json:"avgPrice"`
	IsLowStock    bool           `json:"isLowStock"`
	NeedsReorder  bool           `json:"needsReorder"`
	SyncedAt      time.Time      `json:"syncedAt"`
}

// BalanceReader lists an item's balances across warehouses.
type BalanceReader interface {
	GetBalancesByItem(ctx context.Context, itemID id.ID) ([]entity.StockBalance, error)
}

// ItemStore is the item catalog as seen by the cache sync.
type ItemStore interface {
	GetByID(ctx context.Context, id id.ID) (*item.Item, error)
	ListIDs(ctx context.Context) ([]id.ID, error)
	UpdateStockCache(ctx context.Context, id id.ID, cache item.StockCache) error
}

// SummaryCache is a fast lookup for summaries. A miss is (nil, nil).
type SummaryCache interface {
	Get(ctx context.Context, itemID id.ID) (*Summary, error)
	Set(ctx context.Context, s Summary) error
}

// NoopCache never hits.
type NoopCache struct{}

func (NoopCache) Get(context.Context, id.ID) (*Summary, error) { return nil, nil }
func (NoopCache) Set(context.Context, Summary) error           { return nil }

// Service recomputes and serves item summaries.
type Service struct {
	balances    BalanceReader
	items       ItemStore
	cache       SummaryCache
	concurrency int
	now         func() time.Time

	loads singleflight.Group
}

// Option customizes a Service.
type Option func(*Service)

// WithCache sets the summary cache.
func WithCache(c SummaryCache) Option { return func(s *Service) { s.cache = c } }

// WithConcurrency bounds parallel syncs in SyncItems.
func WithConcurrency(n int) Option { return func(s *Service) { s.concurrency = n } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService creates an item cache service.
func NewService(balances BalanceReader, items ItemStore, opts ...Option) *Service {
	s := &Service{
		balances:    balances,
		items:       items,
		cache:       NoopCache{},
		concurrency: 8,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.concurrency < 1 {
		s.concurrency = 1
	}
	return s
}

// SyncItem recomputes one item's summary from its balances and stores it.
// Running it again over the same balances yields the same summary.
func (s *Service) SyncItem(ctx context.Context, itemID id.ID) (Summary, error) {
	it, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return Summary{}, err
	}
	balances, err := s.balances.GetBalancesByItem(ctx, itemID)
	if err != nil {
		return Summary{}, fmt.Errorf("load balances: %w", err)
	}

	cache := Compute(it, balances, s.now())
	if err := s.items.UpdateStockCache(ctx, itemID, cache); err != nil {
		return Summary{}, fmt.Errorf("update stock cache: %w", err)
	}

	it.StockCache = cache
	summary := summaryOf(it)
	if err := s.cache.Set(ctx, summary); err != nil {
		logger.Warn(ctx, "summary cache write failed", "item_id", itemID, "error", err)
	}

	logger.Debug(ctx, "item cache synced",
		"item_id", itemID,
		"total_quantity", cache.TotalQuantity.String(),
		"low_stock", cache.IsLowStock,
	)
	return summary, nil
}

// Compute derives the cache fields of it from its balances.
// The average price is value/quantity; with no stock on hand the previous price is kept.
func Compute(it *item.Item, balances []entity.StockBalance, at time.Time) item.StockCache {
	var qty types.Quantity
	value := decimal.Zero
	for _, b := range balances {
		qty += b.Quantity
		value = value.Add(b.TotalValue)
	}

	price := it.UnitPrice
	if qty.IsPositive() {
		price = value.Div(qty.Decimal()).Round(4)
	}

	return item.StockCache{
		TotalQuantity: qty,
		TotalValue:    value,
		UnitPrice:     price,
		IsLowStock:    it.IsLowStockAt(qty),
		CacheSyncedAt: &at,
	}
}

// SyncItems syncs several items in parallel. It returns the first error
// after all started syncs finished.
func (s *Service) SyncItems(ctx context.Context, itemIDs ...id.ID) error {
	if len(itemIDs) == 1 {
		_, err := s.SyncItem(ctx, itemIDs[0])
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, itemID := range itemIDs {
		g.Go(func() error {
			if _, err := s.SyncItem(ctx, itemID); err != nil {
				return fmt.Errorf("sync item %s: %w", itemID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// ScheduleSync syncs inline. It lets the service act as the ledger's syncer
// when no job queue is configured.
func (s *Service) ScheduleSync(ctx context.Context, itemIDs ...id.ID) error {
	return s.SyncItems(ctx, itemIDs...)
}

// SyncAll resyncs every active item and returns how many were synced.
func (s *Service) SyncAll(ctx context.Context) (int, error) {
	ids, err := s.items.ListIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list items: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := s.SyncItems(ctx, ids...); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// GetItemSummary serves a summary from the cache, falling back to the item
// record. Items that were never synced are synced on first read.
func (s *Service) GetItemSummary(ctx context.Context, itemID id.ID) (Summary, error) {
	if cached, err := s.cache.Get(ctx, itemID); err != nil {
		logger.Warn(ctx, "summary cache read failed", "item_id", itemID, "error", err)
	} else if cached != nil {
		return *cached, nil
	}

	v, err, _ := s.loads.Do(itemID.String(), func() (any, error) {
		it, err := s.items.GetByID(ctx, itemID)
		if err != nil {
			return Summary{}, err
		}
		if it.CacheSyncedAt == nil {
			return s.SyncItem(ctx, itemID)
		}
		summary := summaryOf(it)
		if err := s.cache.Set(ctx, summary); err != nil {
			logger.Warn(ctx, "summary cache write failed", "item_id", itemID, "error", err)
		}
		return summary, nil
	})
	if err != nil {
		return Summary{}, err
	}
	return v.(Summary), nil
}

func summaryOf(it *item.Item) Summary {
	s := Summary{
		ItemID:        it.ID,
		TotalQuantity: it.TotalQuantity,
		TotalValue:    it.TotalValue,
		AvgPrice:      it.UnitPrice,
		IsLowStock:    it.IsLowStock,
		NeedsReorder:  it.NeedsReorder(),
	}
	if it.CacheSyncedAt != nil {
		s.SyncedAt = *it.CacheSyncedAt
	}
	return s
}
