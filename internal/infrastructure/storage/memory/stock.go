package memory

import (
	"context"
	"slices"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/registers/stock"
)

// StockRepo implements stock.Repository.
type StockRepo struct {
	s *Store
}

var _ stock.Repository = (*StockRepo)(nil)

func (r *StockRepo) InsertMovement(ctx context.Context, m entity.StockMovement) error {
	return r.s.write(ctx, func(st *state) error {
		st.movements = append(st.movements, m)
		return nil
	})
}

func movementLess(a, b entity.StockMovement) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return id.Compare(a.ID, b.ID)
}

func matchMovement(m entity.StockMovement, f stock.MovementFilter) bool {
	switch {
	case f.ItemID != nil && m.ItemID != *f.ItemID:
		return false
	case f.WarehouseID != nil && m.WarehouseID != *f.WarehouseID:
		return false
	case f.FromDate != nil && m.CreatedAt.Before(*f.FromDate):
		return false
	case f.ToDate != nil && !m.CreatedAt.Before(*f.ToDate):
		return false
	case f.ReferenceID != nil && (m.ReferenceID == nil || *m.ReferenceID != *f.ReferenceID):
		return false
	case len(f.Types) > 0 && !slices.Contains(f.Types, m.MovementType):
		return false
	}
	return true
}

func (r *StockRepo) ListMovements(_ context.Context, filter stock.MovementFilter, after *stock.MovementCursor, limit int) ([]entity.StockMovement, error) {
	var matched []entity.StockMovement
	r.s.read(func(st *state) {
		for _, m := range st.movements {
			if matchMovement(m, filter) {
				matched = append(matched, m)
			}
		}
	})
	slices.SortFunc(matched, movementLess)

	if after != nil {
		pos := entity.StockMovement{CreatedAt: after.CreatedAt, ID: after.ID}
		i, found := slices.BinarySearchFunc(matched, pos, movementLess)
		if found {
			i++
		}
		matched = matched[i:]
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (r *StockRepo) GetBalance(_ context.Context, itemID, warehouseID id.ID) (entity.StockBalance, error) {
	b := entity.NewEmptyBalance(itemID, warehouseID)
	r.s.read(func(st *state) {
		if cur, ok := st.balances[partition{itemID, warehouseID}]; ok {
			b = cur
		}
	})
	return b, nil
}

// GetBalanceForUpdate needs no row lock: transactions are already serialized.
func (r *StockRepo) GetBalanceForUpdate(ctx context.Context, itemID, warehouseID id.ID) (entity.StockBalance, error) {
	return r.GetBalance(ctx, itemID, warehouseID)
}

func (r *StockRepo) SaveBalance(ctx context.Context, b entity.StockBalance) error {
	key := partition{b.ItemID, b.WarehouseID}
	return r.s.write(ctx, func(st *state) error {
		cur, exists := st.balances[key]
		if (b.Version == 0 && exists) || (b.Version != 0 && (!exists || cur.Version != b.Version)) {
			return apperror.NewConcurrencyConflict("stock_balance", b.ItemID.String()+"/"+b.WarehouseID.String())
		}
		b.Version++
		st.balances[key] = b
		return nil
	})
}

func (r *StockRepo) GetBalancesByItem(_ context.Context, itemID id.ID) ([]entity.StockBalance, error) {
	var out []entity.StockBalance
	r.s.read(func(st *state) {
		for k, b := range st.balances {
			if k.itemID == itemID {
				out = append(out, b)
			}
		}
	})
	slices.SortFunc(out, func(a, b entity.StockBalance) int { return id.Compare(a.WarehouseID, b.WarehouseID) })
	return out, nil
}

func (r *StockRepo) GetBalancesByWarehouse(_ context.Context, warehouseID id.ID, filter stock.BalanceFilter) ([]entity.StockBalance, error) {
	var out []entity.StockBalance
	r.s.read(func(st *state) {
		for k, b := range st.balances {
			if k.warehouseID != warehouseID {
				continue
			}
			if len(filter.ItemIDs) > 0 && !slices.Contains(filter.ItemIDs, k.itemID) {
				continue
			}
			if filter.ExcludeZero && b.Quantity.IsZero() {
				continue
			}
			out = append(out, b)
		}
	})
	slices.SortFunc(out, func(a, b entity.StockBalance) int { return id.Compare(a.ItemID, b.ItemID) })
	return out, nil
}

func (r *StockRepo) InsertLayer(ctx context.Context, layer entity.FIFOLayer) error {
	return r.s.write(ctx, func(st *state) error {
		if _, dup := st.layers[layer.ID]; dup {
			return apperror.NewDuplicate("fifo_layer", "id", layer.ID.String())
		}
		st.layers[layer.ID] = layer
		return nil
	})
}

func layerLess(a, b entity.FIFOLayer) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return id.Compare(a.ID, b.ID)
}

func (r *StockRepo) collectLayers(keep func(entity.FIFOLayer) bool) []entity.FIFOLayer {
	var out []entity.FIFOLayer
	r.s.read(func(st *state) {
		for _, l := range st.layers {
			if !l.IsExhausted() && keep(l) {
				out = append(out, l)
			}
		}
	})
	slices.SortFunc(out, layerLess)
	return out
}

func (r *StockRepo) GetOpenLayersForUpdate(ctx context.Context, itemID, warehouseID id.ID) ([]entity.FIFOLayer, error) {
	return r.ListOpenLayers(ctx, itemID, warehouseID)
}

func (r *StockRepo) UpdateLayerRemaining(ctx context.Context, layers []entity.FIFOLayer) error {
	return r.s.write(ctx, func(st *state) error {
		for _, l := range layers {
			if _, ok := st.layers[l.ID]; !ok {
				return apperror.NewNotFound("fifo_layer", l.ID)
			}
		}
		for _, l := range layers {
			cur := st.layers[l.ID]
			cur.RemainingQuantity = l.RemainingQuantity
			st.layers[l.ID] = cur
		}
		return nil
	})
}

func (r *StockRepo) ListOpenLayers(_ context.Context, itemID, warehouseID id.ID) ([]entity.FIFOLayer, error) {
	return r.collectLayers(func(l entity.FIFOLayer) bool {
		return l.ItemID == itemID && l.WarehouseID == warehouseID
	}), nil
}

func (r *StockRepo) ListExpiringLayers(_ context.Context, before time.Time) ([]entity.FIFOLayer, error) {
	out := r.collectLayers(func(l entity.FIFOLayer) bool {
		return l.ExpirationDate != nil && l.ExpirationDate.Before(before)
	})
	slices.SortStableFunc(out, func(a, b entity.FIFOLayer) int {
		return a.ExpirationDate.Compare(*b.ExpirationDate)
	})
	return out, nil
}
