// Package document_repo provides PostgreSQL implementations for document repositories.
package document_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/documents/count"
	"stockledger/internal/infrastructure/storage/postgres"
)

const (
	countsTable     = "doc_inventory_counts"
	countItemsTable = "doc_inventory_count_items"
)

var (
	countColumns     = postgres.ExtractDBColumns[count.Count]()
	countItemColumns = postgres.ExtractDBColumns[count.Item]()
)

// CountRepo implements count.Repository.
type CountRepo struct {
	txm     *postgres.TxManager
	copier  *postgres.BatchInserter
	builder squirrel.StatementBuilderType
}

var _ count.Repository = (*CountRepo)(nil)

// NewCountRepo creates a new inventory count repository.
func NewCountRepo(txm *postgres.TxManager) *CountRepo {
	return &CountRepo{
		txm:     txm,
		copier:  postgres.NewBatchInserter(txm),
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts the header and streams the sheet over COPY.
func (r *CountRepo) Create(ctx context.Context, c *count.Count, items []count.Item) error {
	header := *c
	header.Version = 1

	sql, args, err := r.builder.Insert(countsTable).SetMap(postgres.StructToMap(header)).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.IsUniqueViolation(err) {
			return apperror.NewDuplicate("inventory_count", "count_number", c.CountNumber)
		}
		return fmt.Errorf("insert count: %w", postgres.TranslateError(err, "inventory_count", c.ID))
	}

	rows := make([][]any, len(items))
	for i, it := range items {
		rows[i] = rowOf(postgres.StructToMap(it), countItemColumns)
	}
	if _, err := r.copier.CopyFromSlice(ctx, countItemsTable, countItemColumns, rows); err != nil {
		return fmt.Errorf("copy count sheet: %w", err)
	}

	c.Version = header.Version
	return nil
}

func rowOf(data map[string]any, columns []string) []any {
	row := make([]any, len(columns))
	for i, col := range columns {
		row[i] = data[col]
	}
	return row
}

func (r *CountRepo) GetByID(ctx context.Context, countID id.ID) (*count.Count, error) {
	sql, args, err := r.builder.Select(countColumns...).
		From(countsTable).
		Where(squirrel.Eq{"id": countID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var c count.Count
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &c, sql, args...); err != nil {
		return nil, postgres.TranslateError(err, "inventory_count", countID)
	}
	return &c, nil
}

func (r *CountRepo) GetItems(ctx context.Context, countID id.ID) ([]count.Item, error) {
	sql, args, err := r.builder.Select(countItemColumns...).
		From(countItemsTable).
		Where(squirrel.Eq{"count_id": countID}).
		OrderBy("item_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var items []count.Item
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &items, sql, args...); err != nil {
		return nil, fmt.Errorf("get count items: %w", err)
	}
	return items, nil
}

func (r *CountRepo) GetItemForUpdate(ctx context.Context, countID, itemID id.ID) (*count.Item, error) {
	sql, args, err := r.builder.Select(countItemColumns...).
		From(countItemsTable).
		Where(squirrel.Eq{"count_id": countID, "item_id": itemID}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var it count.Item
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &it, sql, args...); err != nil {
		return nil, postgres.TranslateError(err, "inventory_count_item", itemID)
	}
	return &it, nil
}

func (r *CountRepo) upsertItemQuery(it count.Item) squirrel.InsertBuilder {
	return r.builder.Insert(countItemsTable).
		Columns(countItemColumns...).
		Values(rowOf(postgres.StructToMap(it), countItemColumns)...).
		Suffix(`ON CONFLICT (count_id, item_id) DO UPDATE SET
			counted_quantity = EXCLUDED.counted_quantity,
			counted_by = EXCLUDED.counted_by,
			counted_at = EXCLUDED.counted_at`)
}

// UpsertItem never touches the snapshot or finalization columns of an existing line.
func (r *CountRepo) UpsertItem(ctx context.Context, it count.Item) error {
	sql, args, err := r.upsertItemQuery(it).ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("upsert count item: %w", postgres.TranslateError(err, "inventory_count_item", it.ItemID))
	}
	return nil
}

func (r *CountRepo) finalizeItemQuery(it count.Item) squirrel.UpdateBuilder {
	return r.builder.Update(countItemsTable).
		Set("system_quantity_at_finalization", it.SystemQuantityAtFinalization).
		Set("discrepancy", it.Discrepancy).
		Where(squirrel.Eq{"count_id": it.CountID, "item_id": it.ItemID}).
		Where(squirrel.Eq{"system_quantity_at_finalization": nil})
}

func (r *CountRepo) FinalizeItem(ctx context.Context, it count.Item) error {
	sql, args, err := r.finalizeItemQuery(it).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("finalize count item: %w", postgres.TranslateError(err, "inventory_count_item", it.ItemID))
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrencyConflict("inventory_count_item", it.ItemID)
	}
	return nil
}

func (r *CountRepo) UpdateStatus(ctx context.Context, countID id.ID, from, to count.Status) error {
	sql, args, err := r.builder.Update(countsTable).
		Set("status", to).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": countID, "status": from}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update count status: %w", postgres.TranslateError(err, "inventory_count", countID))
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, countID); err != nil {
			return err
		}
		return apperror.NewConcurrencyConflict("inventory_count", countID)
	}
	return nil
}

func (r *CountRepo) markApprovedQuery(c *count.Count) squirrel.UpdateBuilder {
	return r.builder.Update(countsTable).
		Set("status", count.StatusApproved).
		Set("approved_by", c.ApprovedBy).
		Set("approved_date", c.ApprovedDate).
		Set("counted_items", c.CountedItems).
		Set("discrepancies", c.Discrepancies).
		Set("discrepancy_value", c.DiscrepancyValue).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": c.ID}).
		Where(squirrel.NotEq{"status": count.StatusApproved}).
		Suffix("RETURNING version")
}

func (r *CountRepo) MarkApproved(ctx context.Context, c *count.Count) error {
	sql, args, err := r.markApprovedQuery(c).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	var version int64
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&version); err != nil {
		if !pgxscan.NotFound(err) {
			return fmt.Errorf("approve count: %w", postgres.TranslateError(err, "inventory_count", c.ID))
		}
		if _, err := r.GetByID(ctx, c.ID); err != nil {
			return err
		}
		return apperror.NewCountAlreadyApproved(c.ID)
	}

	c.Version = version
	return nil
}

func (r *CountRepo) listQuery(filter count.ListFilter) squirrel.SelectBuilder {
	q := r.builder.Select(countColumns...).From(countsTable)
	if filter.WarehouseID != nil {
		q = q.Where(squirrel.Eq{"warehouse_id": *filter.WarehouseID})
	}
	if filter.Status != nil {
		q = q.Where(squirrel.Eq{"status": *filter.Status})
	}
	q = q.OrderBy("created_date DESC", "id DESC")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	return q
}

func (r *CountRepo) List(ctx context.Context, filter count.ListFilter) ([]*count.Count, error) {
	sql, args, err := r.listQuery(filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var counts []*count.Count
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &counts, sql, args...); err != nil {
		return nil, fmt.Errorf("list counts: %w", err)
	}
	return counts, nil
}
