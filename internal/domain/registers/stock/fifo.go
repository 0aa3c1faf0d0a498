package stock

import (
	"context"
	"slices"

	"github.com/shopspring/decimal"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/pkg/logger"
)

// LayerDraw is the part of one layer taken by a consumption.
type LayerDraw struct {
	LayerID   id.ID          `json:"layerId"`
	Quantity  types.Quantity `json:"quantity"`
	UnitPrice types.Money    `json:"unitPrice"`
}

// FIFOCost is the cost of consuming a quantity under FIFO.
type FIFOCost struct {
	Quantity types.Quantity `json:"quantity"`
	Total    types.Money    `json:"total"`
	Draws    []LayerDraw    `json:"draws"`

	// FallbackQuantity is the part not covered by layers, valued at FallbackPrice
	// (the balance weighted-average price).
	FallbackQuantity types.Quantity `json:"fallbackQuantity"`
	FallbackPrice    types.Money    `json:"fallbackPrice"`
}

// UnitCost returns Total / Quantity rounded to 4 places.
func (c FIFOCost) UnitCost() types.Money {
	if c.Quantity <= 0 {
		return decimal.Zero
	}
	return c.Total.Div(c.Quantity.Decimal()).Round(4)
}

// ConsumeLayers takes qty from layers oldest-first and returns the cost together
// with the layers whose remaining quantity changed. The input slice is not modified.
// Any quantity left once layers run out is valued at fallbackPrice.
func ConsumeLayers(layers []entity.FIFOLayer, qty types.Quantity, fallbackPrice types.Money) (FIFOCost, []entity.FIFOLayer) {
	cost := FIFOCost{Quantity: qty, Total: decimal.Zero, FallbackPrice: fallbackPrice}
	if qty <= 0 {
		return cost, nil
	}

	ordered := slices.Clone(layers)
	slices.SortStableFunc(ordered, func(a, b entity.FIFOLayer) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return id.Compare(a.ID, b.ID)
	})

	var changed []entity.FIFOLayer
	left := qty
	for _, layer := range ordered {
		if left == 0 {
			break
		}
		if layer.IsExhausted() {
			continue
		}
		take := left.Min(layer.RemainingQuantity)
		layer.RemainingQuantity -= take
		left -= take

		cost.Total = cost.Total.Add(take.Value(layer.UnitPrice))
		cost.Draws = append(cost.Draws, LayerDraw{LayerID: layer.ID, Quantity: take, UnitPrice: layer.UnitPrice})
		changed = append(changed, layer)
	}

	if left > 0 {
		cost.FallbackQuantity = left
		cost.Total = cost.Total.Add(left.Value(fallbackPrice))
	}

	return cost, changed
}

// ConsumeFIFO consumes qty from the partition's layers and returns its cost.
// It joins the ledger transaction carried by ctx, or opens one, so layer
// mutations always commit together with the movement that caused them.
func (s *Service) ConsumeFIFO(ctx context.Context, itemID, warehouseID id.ID, qty types.Quantity) (FIFOCost, error) {
	if !qty.IsPositive() {
		return FIFOCost{}, apperror.NewValidation("quantity to consume must be positive").
			WithDetail("quantity", qty.String())
	}

	var cost FIFOCost
	err := s.atomically(ctx, func(ctx context.Context) error {
		balance, err := s.repo.GetBalanceForUpdate(ctx, itemID, warehouseID)
		if err != nil {
			return err
		}
		cost, err = s.consumeFIFO(ctx, balance, qty)
		return err
	})
	return cost, err
}

func (s *Service) consumeFIFO(ctx context.Context, balance entity.StockBalance, qty types.Quantity) (FIFOCost, error) {
	layers, err := s.repo.GetOpenLayersForUpdate(ctx, balance.ItemID, balance.WarehouseID)
	if err != nil {
		return FIFOCost{}, err
	}

	cost, changed := ConsumeLayers(layers, qty, balance.AveragePrice())
	if len(changed) > 0 {
		if err := s.repo.UpdateLayerRemaining(ctx, changed); err != nil {
			return FIFOCost{}, err
		}
	}

	if cost.FallbackQuantity > 0 {
		logger.FromContext(ctx).WithStockKey(balance.ItemID, balance.WarehouseID).Warnw(
			"fifo layers exhausted, costing remainder at average price",
			"fallback_quantity", cost.FallbackQuantity.String(),
			"fallback_price", cost.FallbackPrice.String(),
		)
	}

	return cost, nil
}

// PreviewFIFOCost returns what consuming qty would cost now, without touching layers.
func (s *Service) PreviewFIFOCost(ctx context.Context, itemID, warehouseID id.ID, qty types.Quantity) (FIFOCost, error) {
	if !qty.IsPositive() {
		return FIFOCost{}, apperror.NewValidation("quantity must be positive")
	}
	balance, err := s.repo.GetBalance(ctx, itemID, warehouseID)
	if err != nil {
		return FIFOCost{}, err
	}
	layers, err := s.repo.ListOpenLayers(ctx, itemID, warehouseID)
	if err != nil {
		return FIFOCost{}, err
	}
	cost, _ := ConsumeLayers(layers, qty, balance.AveragePrice())
	return cost, nil
}
