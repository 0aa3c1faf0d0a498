package reports

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/registers/stock"
)

// Service provides report generation operations.
type Service struct {
	ledger Ledger
	items  Items
	now    func() time.Time
}

// NewService creates a new reports service.
func NewService(ledger Ledger, items Items) *Service {
	return &Service{
		ledger: ledger,
		items:  items,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// LowStock lists items flagged low-stock by the item cache or at their reorder point.
func (s *Service) LowStock(ctx context.Context) (*LowStockReport, error) {
	items, err := s.items.ListLowStock(ctx)
	if err != nil {
		return nil, fmt.Errorf("list low stock items: %w", err)
	}

	report := &LowStockReport{GeneratedAt: s.now(), Items: make([]LowStockRow, 0, len(items))}
	for _, it := range items {
		report.Items = append(report.Items, LowStockRow{
			ItemID:        it.ID,
			Code:          it.Code,
			Name:          it.Name,
			Unit:          it.Unit,
			TotalQuantity: it.TotalQuantity,
			MinStock:      it.MinStock,
			ReorderPoint:  it.ReorderPoint,
			IsLowStock:    it.IsLowStock,
			NeedsReorder:  it.NeedsReorder(),
		})
	}

	// Largest shortfall against the minimum first.
	slices.SortStableFunc(report.Items, func(a, b LowStockRow) int {
		return cmp.Compare(a.TotalQuantity-a.MinStock, b.TotalQuantity-b.MinStock)
	})
	return report, nil
}

// ExpiringLots lists open layers expiring within the given window,
// including already expired ones, soonest first.
func (s *Service) ExpiringLots(ctx context.Context, within time.Duration) (*ExpiringLotsReport, error) {
	if within < 0 {
		return nil, apperror.NewValidation("window must not be negative")
	}
	now := s.now()
	until := now.Add(within)

	layers, err := s.ledger.ListExpiringLayers(ctx, until)
	if err != nil {
		return nil, fmt.Errorf("list expiring layers: %w", err)
	}

	report := &ExpiringLotsReport{GeneratedAt: now, Until: until, TotalValue: decimal.Zero}
	for _, l := range layers {
		if l.ExpirationDate == nil || l.IsExhausted() {
			continue
		}
		value := l.RemainingQuantity.Value(l.UnitPrice)
		report.Lots = append(report.Lots, ExpiringLot{
			LayerID:           l.ID,
			ItemID:            l.ItemID,
			WarehouseID:       l.WarehouseID,
			LotNumber:         l.LotNumber,
			ExpirationDate:    *l.ExpirationDate,
			RemainingQuantity: l.RemainingQuantity,
			UnitPrice:         l.UnitPrice,
			Value:             value,
			DaysLeft:          int(l.ExpirationDate.Sub(now).Hours() / 24),
			Expired:           !l.ExpirationDate.After(now),
		})
		report.TotalValue = report.TotalValue.Add(value)
	}

	slices.SortStableFunc(report.Lots, func(a, b ExpiringLot) int {
		return a.ExpirationDate.Compare(b.ExpirationDate)
	})
	return report, nil
}

// Turnover computes opening balance, inflows, outflows and closing balance
// for an item over [From, To) by replaying the movement log.
func (s *Service) Turnover(ctx context.Context, filter TurnoverFilter) (*TurnoverReport, error) {
	if id.IsNil(filter.ItemID) {
		return nil, apperror.NewValidation("itemId is required").WithDetail("field", "itemId")
	}
	if filter.From.IsZero() || filter.To.IsZero() {
		return nil, apperror.NewValidation("from and to are required")
	}
	if !filter.From.Before(filter.To) {
		return nil, apperror.NewValidation("from must be before to")
	}
	if _, err := s.items.GetByID(ctx, filter.ItemID); err != nil {
		return nil, err
	}

	report := &TurnoverReport{
		ItemID:      filter.ItemID,
		WarehouseID: filter.WarehouseID,
		From:        filter.From,
		To:          filter.To,
		Opening:     zeroTotals(),
		Inflow:      zeroTotals(),
		Outflow:     zeroTotals(),
		ByType:      make(map[entity.MovementType]Totals),
	}

	itemID := filter.ItemID
	from, to := filter.From, filter.To

	before := s.ledger.ListMovements(ctx, stock.MovementFilter{
		ItemID:      &itemID,
		WarehouseID: filter.WarehouseID,
		ToDate:      &from,
	})
	for m, err := range before {
		if err != nil {
			return nil, err
		}
		report.Opening.add(m)
	}

	period := s.ledger.ListMovements(ctx, stock.MovementFilter{
		ItemID:      &itemID,
		WarehouseID: filter.WarehouseID,
		FromDate:    &from,
		ToDate:      &to,
	})
	for m, err := range period {
		if err != nil {
			return nil, err
		}
		report.Movements++
		if m.MovementType.IsInflow() {
			report.Inflow.add(m)
		} else {
			report.Outflow.add(m)
		}
		t, ok := report.ByType[m.MovementType]
		if !ok {
			t = zeroTotals()
		}
		t.add(m)
		report.ByType[m.MovementType] = t
	}

	report.Closing = Totals{
		Quantity: report.Opening.Quantity + report.Inflow.Quantity + report.Outflow.Quantity,
		Value:    report.Opening.Value.Add(report.Inflow.Value).Add(report.Outflow.Value),
	}
	return report, nil
}
