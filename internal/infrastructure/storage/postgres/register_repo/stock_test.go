package register_repo

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/registers/stock"
)

func TestMovementsQuery_KeysetCursor(t *testing.T) {
	r := NewStockRepo(nil)
	itemID := id.New()
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cursor := &stock.MovementCursor{CreatedAt: at, ID: id.New()}

	sql, args, err := r.movementsQuery(stock.MovementFilter{
		ItemID: &itemID,
		Types:  []entity.MovementType{entity.MovementSaleConsumption, entity.MovementWastage},
	}, cursor, 50).ToSql()
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT id, item_id, warehouse_id, movement_type, quantity, unit_price, total_value, "+
			"lot_number, expiration_date, document_number, document_type, reference_id, created_by, created_at "+
			"FROM reg_stock_movements WHERE item_id = $1 AND movement_type IN ($2,$3) "+
			"AND (created_at, id) > ($4, $5) ORDER BY created_at, id LIMIT 50",
		sql)
	require.Len(t, args, 5)
	assert.Equal(t, []any{entity.MovementSaleConsumption, entity.MovementWastage, at, cursor.ID}, args[1:])
}

func TestMovementsQuery_DateRange(t *testing.T) {
	r := NewStockRepo(nil)
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	sql, args, err := r.movementsQuery(stock.MovementFilter{FromDate: &from, ToDate: &to}, nil, 10).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "WHERE created_at >= $1 AND created_at < $2")
	assert.Equal(t, []any{from, to}, args)
}

func TestBalanceQuery_Locking(t *testing.T) {
	r := NewStockRepo(nil)

	sql, _, err := r.balanceQuery(id.New(), id.New(), true).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "FOR UPDATE")

	sql, _, err = r.balanceQuery(id.New(), id.New(), false).ToSql()
	require.NoError(t, err)
	assert.NotContains(t, sql, "FOR UPDATE")
}

func TestSaveBalanceQuery(t *testing.T) {
	r := NewStockRepo(nil)
	b := entity.StockBalance{
		ItemID:      id.New(),
		WarehouseID: id.New(),
		Quantity:    types.MustQuantity("5"),
		TotalValue:  decimal.NewFromInt(50),
		LastUpdated: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	t.Run("first write inserts", func(t *testing.T) {
		sql, args, err := r.saveBalanceQuery(b).ToSql()
		require.NoError(t, err)
		assert.Contains(t, sql, "INSERT INTO reg_stock_balances")
		assert.Contains(t, sql, "ON CONFLICT (item_id, warehouse_id) DO NOTHING")
		assert.Equal(t, 1, args[len(args)-1])
	})

	t.Run("later writes compare version", func(t *testing.T) {
		b := b
		b.Version = 4
		sql, args, err := r.saveBalanceQuery(b).ToSql()
		require.NoError(t, err)
		assert.Contains(t, sql, "UPDATE reg_stock_balances SET")
		assert.Contains(t, sql, "version = version + 1")
		assert.Contains(t, sql, "version = $")
		assert.Contains(t, args, int64(4))
	})
}

func TestOpenLayersQuery_OldestFirst(t *testing.T) {
	r := NewStockRepo(nil)

	sql, _, err := r.openLayersQuery(id.New(), id.New(), true).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "remaining_quantity > $3")
	assert.Contains(t, sql, "ORDER BY created_at, id FOR UPDATE")
}

func TestWarehouseBalancesQuery_ExcludeZero(t *testing.T) {
	r := NewStockRepo(nil)
	items := []id.ID{id.New(), id.New()}

	sql, args, err := r.warehouseBalancesQuery(id.New(), stock.BalanceFilter{ItemIDs: items, ExcludeZero: true}).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "quantity <> $2")
	assert.Contains(t, sql, "item_id IN ($3,$4)")
	assert.Len(t, args, 4)
}
