// Package register_repo provides PostgreSQL implementations for register repositories.
package register_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/registers/stock"
	"stockledger/internal/infrastructure/storage/postgres"
)

const (
	stockMovementsTable = "reg_stock_movements"
	stockBalancesTable  = "reg_stock_balances"
	fifoLayersTable     = "reg_stock_fifo_layers"
)

var (
	movementColumns = []string{
		"id", "item_id", "warehouse_id", "movement_type",
		"quantity", "unit_price", "total_value",
		"lot_number", "expiration_date",
		"document_number", "document_type", "reference_id",
		"created_by", "created_at",
	}
	balanceColumns = []string{
		"item_id", "warehouse_id", "quantity", "total_value", "last_updated", "version",
	}
	layerColumns = []string{
		"id", "item_id", "warehouse_id", "movement_id",
		"quantity", "remaining_quantity", "unit_price",
		"lot_number", "expiration_date", "created_at",
	}
)

// StockRepo implements stock.Repository.
type StockRepo struct {
	txm     *postgres.TxManager
	batch   *postgres.BatchExecutor
	builder squirrel.StatementBuilderType
}

var _ stock.Repository = (*StockRepo)(nil)

// NewStockRepo creates a new stock register repository.
func NewStockRepo(txm *postgres.TxManager) *StockRepo {
	return &StockRepo{
		txm:     txm,
		batch:   postgres.NewBatchExecutor(txm),
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// --- Movement log ---

func (r *StockRepo) InsertMovement(ctx context.Context, m entity.StockMovement) error {
	sql, args, err := r.builder.Insert(stockMovementsTable).
		Columns(movementColumns...).
		Values(
			m.ID, m.ItemID, m.WarehouseID, m.MovementType,
			m.Quantity, m.UnitPrice, m.TotalValue,
			m.LotNumber, m.ExpirationDate,
			m.DocumentNumber, m.DocumentType, m.ReferenceID,
			m.CreatedBy, m.CreatedAt,
		).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert movement: %w", postgres.TranslateError(err, "stock_movement", m.ID))
	}
	return nil
}

func (r *StockRepo) movementsQuery(filter stock.MovementFilter, after *stock.MovementCursor, limit int) squirrel.SelectBuilder {
	q := r.builder.Select(movementColumns...).From(stockMovementsTable)

	if filter.ItemID != nil {
		q = q.Where(squirrel.Eq{"item_id": *filter.ItemID})
	}
	if filter.WarehouseID != nil {
		q = q.Where(squirrel.Eq{"warehouse_id": *filter.WarehouseID})
	}
	if filter.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *filter.FromDate})
	}
	if filter.ToDate != nil {
		q = q.Where(squirrel.Lt{"created_at": *filter.ToDate})
	}
	if len(filter.Types) > 0 {
		q = q.Where(squirrel.Eq{"movement_type": filter.Types})
	}
	if filter.ReferenceID != nil {
		q = q.Where(squirrel.Eq{"reference_id": *filter.ReferenceID})
	}
	if after != nil {
		q = q.Where(squirrel.Expr("(created_at, id) > (?, ?)", after.CreatedAt, after.ID))
	}

	return q.OrderBy("created_at", "id").Limit(uint64(limit))
}

func (r *StockRepo) ListMovements(ctx context.Context, filter stock.MovementFilter, after *stock.MovementCursor, limit int) ([]entity.StockMovement, error) {
	sql, args, err := r.movementsQuery(filter, after, limit).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var movements []entity.StockMovement
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("select movements: %w", err)
	}
	return movements, nil
}

// --- Balances ---

func (r *StockRepo) balanceQuery(itemID, warehouseID id.ID, forUpdate bool) squirrel.SelectBuilder {
	q := r.builder.Select(balanceColumns...).
		From(stockBalancesTable).
		Where(squirrel.Eq{"item_id": itemID, "warehouse_id": warehouseID})
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}
	return q
}

func (r *StockRepo) getBalance(ctx context.Context, itemID, warehouseID id.ID, forUpdate bool) (entity.StockBalance, error) {
	sql, args, err := r.balanceQuery(itemID, warehouseID, forUpdate).ToSql()
	if err != nil {
		return entity.StockBalance{}, fmt.Errorf("build query: %w", err)
	}

	var balance entity.StockBalance
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &balance, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return entity.NewEmptyBalance(itemID, warehouseID), nil
		}
		return entity.StockBalance{}, fmt.Errorf("get balance: %w", postgres.TranslateError(err, "stock_balance", itemID))
	}
	return balance, nil
}

func (r *StockRepo) GetBalance(ctx context.Context, itemID, warehouseID id.ID) (entity.StockBalance, error) {
	return r.getBalance(ctx, itemID, warehouseID, false)
}

// GetBalanceForUpdate locks the balance row. A partition without a row is
// not locked; the first writer wins the insert in SaveBalance and the other
// gets a ConcurrencyConflict.
func (r *StockRepo) GetBalanceForUpdate(ctx context.Context, itemID, warehouseID id.ID) (entity.StockBalance, error) {
	if !r.txm.InTransaction(ctx) {
		return entity.StockBalance{}, fmt.Errorf("GetBalanceForUpdate requires transaction context")
	}
	return r.getBalance(ctx, itemID, warehouseID, true)
}

func (r *StockRepo) saveBalanceQuery(b entity.StockBalance) squirrel.Sqlizer {
	if b.Version == 0 {
		return r.builder.Insert(stockBalancesTable).
			Columns(balanceColumns...).
			Values(b.ItemID, b.WarehouseID, b.Quantity, b.TotalValue, b.LastUpdated, 1).
			Suffix("ON CONFLICT (item_id, warehouse_id) DO NOTHING")
	}
	return r.builder.Update(stockBalancesTable).
		Set("quantity", b.Quantity).
		Set("total_value", b.TotalValue).
		Set("last_updated", b.LastUpdated).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{
			"item_id":      b.ItemID,
			"warehouse_id": b.WarehouseID,
			"version":      b.Version,
		})
}

func (r *StockRepo) SaveBalance(ctx context.Context, b entity.StockBalance) error {
	sql, args, err := r.saveBalanceQuery(b).ToSql()
	if err != nil {
		return fmt.Errorf("build balance write: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("save balance: %w", postgres.TranslateError(err, "stock_balance", b.ItemID))
	}
	if tag.RowsAffected() != 1 {
		return apperror.NewConcurrencyConflict("stock_balance", b.ItemID.String()+"/"+b.WarehouseID.String())
	}
	return nil
}

func (r *StockRepo) selectBalances(ctx context.Context, q squirrel.SelectBuilder) ([]entity.StockBalance, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var balances []entity.StockBalance
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &balances, sql, args...); err != nil {
		return nil, fmt.Errorf("select balances: %w", err)
	}
	return balances, nil
}

func (r *StockRepo) GetBalancesByItem(ctx context.Context, itemID id.ID) ([]entity.StockBalance, error) {
	return r.selectBalances(ctx, r.builder.Select(balanceColumns...).
		From(stockBalancesTable).
		Where(squirrel.Eq{"item_id": itemID}).
		OrderBy("warehouse_id"))
}

func (r *StockRepo) warehouseBalancesQuery(warehouseID id.ID, filter stock.BalanceFilter) squirrel.SelectBuilder {
	q := r.builder.Select(balanceColumns...).
		From(stockBalancesTable).
		Where(squirrel.Eq{"warehouse_id": warehouseID})
	if filter.ExcludeZero {
		q = q.Where(squirrel.NotEq{"quantity": int64(0)})
	}
	if len(filter.ItemIDs) > 0 {
		q = q.Where(squirrel.Eq{"item_id": filter.ItemIDs})
	}
	return q.OrderBy("item_id")
}

func (r *StockRepo) GetBalancesByWarehouse(ctx context.Context, warehouseID id.ID, filter stock.BalanceFilter) ([]entity.StockBalance, error) {
	return r.selectBalances(ctx, r.warehouseBalancesQuery(warehouseID, filter))
}

// --- FIFO layers ---

func (r *StockRepo) InsertLayer(ctx context.Context, l entity.FIFOLayer) error {
	sql, args, err := r.builder.Insert(fifoLayersTable).
		Columns(layerColumns...).
		Values(
			l.ID, l.ItemID, l.WarehouseID, l.MovementID,
			l.Quantity, l.RemainingQuantity, l.UnitPrice,
			l.LotNumber, l.ExpirationDate, l.CreatedAt,
		).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert layer: %w", postgres.TranslateError(err, "fifo_layer", l.ID))
	}
	return nil
}

func (r *StockRepo) openLayersQuery(itemID, warehouseID id.ID, forUpdate bool) squirrel.SelectBuilder {
	q := r.builder.Select(layerColumns...).
		From(fifoLayersTable).
		Where(squirrel.Eq{"item_id": itemID, "warehouse_id": warehouseID}).
		Where(squirrel.Gt{"remaining_quantity": int64(0)}).
		OrderBy("created_at", "id")
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}
	return q
}

func (r *StockRepo) selectLayers(ctx context.Context, q squirrel.SelectBuilder) ([]entity.FIFOLayer, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var layers []entity.FIFOLayer
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &layers, sql, args...); err != nil {
		return nil, fmt.Errorf("select layers: %w", err)
	}
	return layers, nil
}

func (r *StockRepo) GetOpenLayersForUpdate(ctx context.Context, itemID, warehouseID id.ID) ([]entity.FIFOLayer, error) {
	return r.selectLayers(ctx, r.openLayersQuery(itemID, warehouseID, true))
}

func (r *StockRepo) ListOpenLayers(ctx context.Context, itemID, warehouseID id.ID) ([]entity.FIFOLayer, error) {
	return r.selectLayers(ctx, r.openLayersQuery(itemID, warehouseID, false))
}

// UpdateLayerRemaining writes all layers in one round-trip.
func (r *StockRepo) UpdateLayerRemaining(ctx context.Context, layers []entity.FIFOLayer) error {
	queries := make([]postgres.BatchQuery, 0, len(layers))
	for _, l := range layers {
		sql, args, err := r.builder.Update(fifoLayersTable).
			Set("remaining_quantity", l.RemainingQuantity).
			Where(squirrel.Eq{"id": l.ID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build layer update: %w", err)
		}
		queries = append(queries, postgres.BatchQuery{SQL: sql, Args: args, ExpectRows: 1})
	}

	if err := r.batch.ExecuteBatch(ctx, queries); err != nil {
		return fmt.Errorf("update layers: %w", err)
	}
	return nil
}

func (r *StockRepo) ListExpiringLayers(ctx context.Context, before time.Time) ([]entity.FIFOLayer, error) {
	return r.selectLayers(ctx, r.builder.Select(layerColumns...).
		From(fifoLayersTable).
		Where(squirrel.Gt{"remaining_quantity": int64(0)}).
		Where(squirrel.NotEq{"expiration_date": nil}).
		Where(squirrel.Lt{"expiration_date": before}).
		OrderBy("expiration_date", "created_at", "id"))
}
