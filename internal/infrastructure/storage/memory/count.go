package memory

import (
	"context"
	"slices"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/documents/count"
)

// CountRepo implements count.Repository.
type CountRepo struct {
	s *Store
}

var _ count.Repository = (*CountRepo)(nil)

func (r *CountRepo) Create(ctx context.Context, c *count.Count, items []count.Item) error {
	return r.s.write(ctx, func(st *state) error {
		if _, dup := st.counts[c.ID]; dup {
			return apperror.NewDuplicate("inventory_count", "id", c.ID.String())
		}
		header := *c
		header.Items = nil
		header.Version = 1
		st.counts[c.ID] = header

		lines := make(map[id.ID]count.Item, len(items))
		for _, it := range items {
			lines[it.ItemID] = it
		}
		st.countItems[c.ID] = lines
		return nil
	})
}

func (r *CountRepo) GetByID(_ context.Context, countID id.ID) (*count.Count, error) {
	var (
		c  count.Count
		ok bool
	)
	r.s.read(func(st *state) { c, ok = st.counts[countID] })
	if !ok {
		return nil, apperror.NewNotFound("inventory_count", countID)
	}
	return &c, nil
}

func (r *CountRepo) GetItems(_ context.Context, countID id.ID) ([]count.Item, error) {
	var out []count.Item
	r.s.read(func(st *state) {
		for _, it := range st.countItems[countID] {
			out = append(out, it)
		}
	})
	slices.SortFunc(out, func(a, b count.Item) int { return id.Compare(a.ItemID, b.ItemID) })
	return out, nil
}

func (r *CountRepo) GetItemForUpdate(_ context.Context, countID, itemID id.ID) (*count.Item, error) {
	var (
		it count.Item
		ok bool
	)
	r.s.read(func(st *state) { it, ok = st.countItems[countID][itemID] })
	if !ok {
		return nil, apperror.NewNotFound("inventory_count_item", itemID)
	}
	return &it, nil
}

func (r *CountRepo) UpsertItem(ctx context.Context, it count.Item) error {
	return r.s.write(ctx, func(st *state) error {
		lines, ok := st.countItems[it.CountID]
		if !ok {
			return apperror.NewNotFound("inventory_count", it.CountID)
		}
		lines[it.ItemID] = it
		return nil
	})
}

func (r *CountRepo) FinalizeItem(ctx context.Context, it count.Item) error {
	return r.s.write(ctx, func(st *state) error {
		cur, ok := st.countItems[it.CountID][it.ItemID]
		if !ok {
			return apperror.NewNotFound("inventory_count_item", it.ItemID)
		}
		if cur.IsFinalized() {
			return apperror.NewConcurrencyConflict("inventory_count_item", it.ItemID)
		}
		cur.SystemQuantityAtFinalization = it.SystemQuantityAtFinalization
		cur.Discrepancy = it.Discrepancy
		st.countItems[it.CountID][it.ItemID] = cur
		return nil
	})
}

func (r *CountRepo) UpdateStatus(ctx context.Context, countID id.ID, from, to count.Status) error {
	return r.s.write(ctx, func(st *state) error {
		c, ok := st.counts[countID]
		if !ok {
			return apperror.NewNotFound("inventory_count", countID)
		}
		if c.Status != from {
			return apperror.NewConcurrencyConflict("inventory_count", countID)
		}
		c.Status = to
		c.Version++
		st.counts[countID] = c
		return nil
	})
}

func (r *CountRepo) MarkApproved(ctx context.Context, c *count.Count) error {
	return r.s.write(ctx, func(st *state) error {
		cur, ok := st.counts[c.ID]
		if !ok {
			return apperror.NewNotFound("inventory_count", c.ID)
		}
		if cur.Status == count.StatusApproved {
			return apperror.NewCountAlreadyApproved(c.ID)
		}
		cur.Status = count.StatusApproved
		cur.ApprovedBy = c.ApprovedBy
		cur.ApprovedDate = c.ApprovedDate
		cur.CountedItems = c.CountedItems
		cur.Discrepancies = c.Discrepancies
		cur.DiscrepancyValue = c.DiscrepancyValue
		cur.Version++
		st.counts[c.ID] = cur
		c.Version = cur.Version
		return nil
	})
}

func (r *CountRepo) List(_ context.Context, filter count.ListFilter) ([]*count.Count, error) {
	var out []*count.Count
	r.s.read(func(st *state) {
		for _, c := range st.counts {
			if filter.WarehouseID != nil && c.WarehouseID != *filter.WarehouseID {
				continue
			}
			if filter.Status != nil && c.Status != *filter.Status {
				continue
			}
			out = append(out, &c)
		}
	})
	slices.SortFunc(out, func(a, b *count.Count) int {
		if c := b.CreatedDate.Compare(a.CreatedDate); c != 0 {
			return c
		}
		return id.Compare(b.ID, a.ID)
	})
	return page(out, filter.Offset, filter.Limit), nil
}
