package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/catalogs/item"
	"stockledger/internal/domain/catalogs/warehouse"
)

// ItemRepo implements item.Repository.
type ItemRepo struct {
	s *Store
}

var _ item.Repository = (*ItemRepo)(nil)

func (r *ItemRepo) Create(ctx context.Context, it *item.Item) error {
	return r.s.write(ctx, func(st *state) error {
		for _, cur := range st.items {
			if cur.Code == it.Code {
				return apperror.NewDuplicate("item", "code", it.Code)
			}
		}
		st.items[it.ID] = *it
		return nil
	})
}

func (r *ItemRepo) GetByID(_ context.Context, itemID id.ID) (*item.Item, error) {
	var (
		it item.Item
		ok bool
	)
	r.s.read(func(st *state) { it, ok = st.items[itemID] })
	if !ok {
		return nil, apperror.NewNotFound("item", itemID)
	}
	return &it, nil
}

func (r *ItemRepo) List(_ context.Context, filter item.ListFilter) ([]*item.Item, error) {
	search := strings.ToLower(filter.Search)
	var out []*item.Item
	r.s.read(func(st *state) {
		for _, it := range st.items {
			if filter.Category != "" && it.Category != filter.Category {
				continue
			}
			if search != "" &&
				!strings.Contains(strings.ToLower(it.Name), search) &&
				!strings.Contains(strings.ToLower(it.Code), search) {
				continue
			}
			out = append(out, &it)
		}
	})
	slices.SortFunc(out, func(a, b *item.Item) int { return cmp.Compare(a.Code, b.Code) })
	return page(out, filter.Offset, filter.Limit), nil
}

func (r *ItemRepo) ListIDs(_ context.Context) ([]id.ID, error) {
	var out []id.ID
	r.s.read(func(st *state) {
		for itemID, it := range st.items {
			if it.IsActive {
				out = append(out, itemID)
			}
		}
	})
	slices.SortFunc(out, id.Compare)
	return out, nil
}

func (r *ItemRepo) UpdateStockCache(ctx context.Context, itemID id.ID, cache item.StockCache) error {
	return r.s.write(ctx, func(st *state) error {
		it, ok := st.items[itemID]
		if !ok {
			return apperror.NewNotFound("item", itemID)
		}
		it.StockCache = cache
		st.items[itemID] = it
		return nil
	})
}

func (r *ItemRepo) ListLowStock(_ context.Context) ([]*item.Item, error) {
	var out []*item.Item
	r.s.read(func(st *state) {
		for _, it := range st.items {
			if it.IsActive && (it.IsLowStock || it.NeedsReorder()) {
				out = append(out, &it)
			}
		}
	})
	slices.SortFunc(out, func(a, b *item.Item) int { return cmp.Compare(a.Code, b.Code) })
	return out, nil
}

// WarehouseRepo implements warehouse.Repository.
type WarehouseRepo struct {
	s *Store
}

var _ warehouse.Repository = (*WarehouseRepo)(nil)

func (r *WarehouseRepo) Create(ctx context.Context, wh *warehouse.Warehouse) error {
	return r.s.write(ctx, func(st *state) error {
		for _, cur := range st.warehouses {
			if cur.Code == wh.Code {
				return apperror.NewDuplicate("warehouse", "code", wh.Code)
			}
		}
		st.warehouses[wh.ID] = *wh
		return nil
	})
}

func (r *WarehouseRepo) GetByID(_ context.Context, warehouseID id.ID) (*warehouse.Warehouse, error) {
	var (
		wh warehouse.Warehouse
		ok bool
	)
	r.s.read(func(st *state) { wh, ok = st.warehouses[warehouseID] })
	if !ok {
		return nil, apperror.NewNotFound("warehouse", warehouseID)
	}
	return &wh, nil
}

func (r *WarehouseRepo) List(_ context.Context) ([]*warehouse.Warehouse, error) {
	var out []*warehouse.Warehouse
	r.s.read(func(st *state) {
		for _, wh := range st.warehouses {
			out = append(out, &wh)
		}
	})
	slices.SortFunc(out, func(a, b *warehouse.Warehouse) int { return cmp.Compare(a.Code, b.Code) })
	return out, nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[max(offset, 0):]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
