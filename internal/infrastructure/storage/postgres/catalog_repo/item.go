package catalog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/catalogs/item"
	"stockledger/internal/infrastructure/storage/postgres"
)

const itemTable = "cat_items"

// ItemRepo implements item.Repository.
type ItemRepo struct {
	*BaseCatalogRepo[item.Item]
}

var _ item.Repository = (*ItemRepo)(nil)

// NewItemRepo creates a new item repository.
func NewItemRepo(txm *postgres.TxManager) *ItemRepo {
	return &ItemRepo{
		BaseCatalogRepo: NewBaseCatalogRepo[item.Item](txm, itemTable, "item"),
	}
}

func (r *ItemRepo) listQuery(filter item.ListFilter) squirrel.SelectBuilder {
	q := r.baseSelect()
	if filter.Category != "" {
		q = q.Where(squirrel.Eq{"category": filter.Category})
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		q = q.Where(squirrel.Or{
			squirrel.ILike{"name": pattern},
			squirrel.ILike{"code": pattern},
		})
	}
	return paginate(q.OrderBy("code"), filter.Limit, filter.Offset)
}

func (r *ItemRepo) List(ctx context.Context, filter item.ListFilter) ([]*item.Item, error) {
	return r.selectAll(ctx, r.listQuery(filter))
}

func (r *ItemRepo) ListIDs(ctx context.Context) ([]id.ID, error) {
	sql, args, err := r.Builder().Select("id").
		From(itemTable).
		Where(squirrel.Eq{"is_active": true}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.txm.GetQuerier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list item ids: %w", err)
	}
	defer rows.Close()

	var ids []id.ID
	for rows.Next() {
		var itemID id.ID
		if err := rows.Scan(&itemID); err != nil {
			return nil, fmt.Errorf("scan item id: %w", err)
		}
		ids = append(ids, itemID)
	}
	return ids, rows.Err()
}

func (r *ItemRepo) updateCacheQuery(itemID id.ID, cache item.StockCache) squirrel.UpdateBuilder {
	return r.Builder().Update(itemTable).
		SetMap(postgres.StructToMap(cache)).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": itemID})
}

// UpdateStockCache overwrites the cache columns only; catalog fields are untouched.
func (r *ItemRepo) UpdateStockCache(ctx context.Context, itemID id.ID, cache item.StockCache) error {
	sql, args, err := r.updateCacheQuery(itemID, cache).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update stock cache: %w", postgres.TranslateError(err, "item", itemID))
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("item", itemID)
	}
	return nil
}

func (r *ItemRepo) ListLowStock(ctx context.Context) ([]*item.Item, error) {
	return r.selectAll(ctx, r.baseSelect().
		Where(squirrel.Eq{"is_active": true}).
		Where(squirrel.Or{
			squirrel.Eq{"is_low_stock": true},
			squirrel.Expr("(reorder_point > 0 AND total_quantity <= reorder_point)"),
		}).
		OrderBy("code"))
}
