package reports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/catalogs/item"
	"stockledger/internal/domain/catalogs/warehouse"
	"stockledger/internal/domain/itemcache"
	"stockledger/internal/domain/registers/stock"
	"stockledger/internal/infrastructure/storage/memory"
)

var day0 = time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)

type fixture struct {
	store  *memory.Store
	ledger *stock.Service
	svc    *Service
	wh     *warehouse.Warehouse
	milk   *item.Item
	clock  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	wh := warehouse.NewWarehouse("MAIN", "Main")
	require.NoError(t, store.Warehouses().Create(ctx, wh))
	milk := item.NewItem("MILK", "Milk", "l")
	milk.MinStock = types.NewQuantity(10)
	require.NoError(t, store.Items().Create(ctx, milk))

	f := &fixture{store: store, wh: wh, milk: milk, clock: day0}
	cache := itemcache.NewService(store.Stock(), store.Items())
	f.ledger = stock.NewService(store.Stock(), store.Items(), store.Warehouses(), store,
		stock.WithClock(func() time.Time { return f.clock }),
		stock.WithSyncer(cache),
	)
	f.svc = NewService(f.ledger, store.Items())
	f.svc.now = func() time.Time { return day0 }
	return f
}

// at posts a movement on the given day offset.
func (f *fixture) at(t *testing.T, days int, typ entity.MovementType, qty int64, price string, expires *time.Time) {
	t.Helper()
	f.clock = day0.AddDate(0, 0, days)
	_, err := f.ledger.RecordMovement(context.Background(), stock.MovementRequest{
		ItemID:         f.milk.ID,
		WarehouseID:    f.wh.ID,
		Type:           typ,
		Quantity:       types.NewQuantity(qty),
		UnitPrice:      types.MustMoney(price),
		ExpirationDate: expires,
	})
	require.NoError(t, err)
}

func TestTurnover(t *testing.T) {
	f := newFixture(t)
	f.at(t, -3, entity.MovementPurchaseIn, 10, "2", nil)
	f.at(t, 1, entity.MovementPurchaseIn, 5, "3", nil)
	f.at(t, 2, entity.MovementSaleConsumption, -12, "0", nil)
	f.at(t, 2, entity.MovementWastage, -1, "0", nil)
	f.at(t, 9, entity.MovementPurchaseIn, 100, "1", nil)

	report, err := f.svc.Turnover(context.Background(), TurnoverFilter{
		ItemID: f.milk.ID,
		From:   day0,
		To:     day0.AddDate(0, 0, 7),
	})
	require.NoError(t, err)

	assert.Equal(t, types.NewQuantity(10), report.Opening.Quantity)
	assert.True(t, types.MustMoney("20").Equal(report.Opening.Value))
	assert.Equal(t, types.NewQuantity(5), report.Inflow.Quantity)
	assert.Equal(t, types.NewQuantity(-13), report.Outflow.Quantity)
	// sale 10×2 + 2×3, wastage 1×3
	assert.True(t, types.MustMoney("-29").Equal(report.Outflow.Value), report.Outflow.Value.String())
	assert.Equal(t, types.NewQuantity(2), report.Closing.Quantity)
	assert.True(t, types.MustMoney("6").Equal(report.Closing.Value))
	assert.Equal(t, 3, report.Movements)
	assert.Len(t, report.ByType, 3)
	assert.Equal(t, types.NewQuantity(-12), report.ByType[entity.MovementSaleConsumption].Quantity)

	whID := f.wh.ID
	other := id.New()
	scoped, err := f.svc.Turnover(context.Background(), TurnoverFilter{
		ItemID: f.milk.ID, WarehouseID: &other, From: day0, To: day0.AddDate(0, 0, 7),
	})
	require.NoError(t, err)
	assert.Zero(t, scoped.Movements)

	scoped, err = f.svc.Turnover(context.Background(), TurnoverFilter{
		ItemID: f.milk.ID, WarehouseID: &whID, From: day0, To: day0.AddDate(0, 0, 7),
	})
	require.NoError(t, err)
	assert.Equal(t, report.Closing.Quantity, scoped.Closing.Quantity)
}

func TestTurnover_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Turnover(ctx, TurnoverFilter{From: day0, To: day0.AddDate(0, 0, 1)})
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))

	_, err = f.svc.Turnover(ctx, TurnoverFilter{ItemID: f.milk.ID, From: day0, To: day0})
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))

	_, err = f.svc.Turnover(ctx, TurnoverFilter{ItemID: id.New(), From: day0, To: day0.AddDate(0, 0, 1)})
	assert.True(t, apperror.IsNotFound(err))
}

func TestExpiringLots(t *testing.T) {
	f := newFixture(t)
	expired := day0.AddDate(0, 0, -1)
	soon := day0.AddDate(0, 0, 3)
	later := day0.AddDate(0, 0, 30)

	f.at(t, -5, entity.MovementPurchaseIn, 2, "1", &expired)
	f.at(t, -4, entity.MovementPurchaseIn, 4, "1.5", &soon)
	f.at(t, -3, entity.MovementPurchaseIn, 8, "1", &later)
	f.at(t, -2, entity.MovementPurchaseIn, 1, "1", nil)

	report, err := f.svc.ExpiringLots(context.Background(), 7*24*time.Hour)
	require.NoError(t, err)

	require.Len(t, report.Lots, 2)
	assert.True(t, report.Lots[0].Expired)
	assert.Equal(t, -1, report.Lots[0].DaysLeft)
	assert.False(t, report.Lots[1].Expired)
	assert.Equal(t, 3, report.Lots[1].DaysLeft)
	assert.True(t, types.MustMoney("8").Equal(report.TotalValue), report.TotalValue.String())

	// Consumed lots drop out of the report.
	f.at(t, 0, entity.MovementSaleConsumption, -2, "0", nil)
	report, err = f.svc.ExpiringLots(context.Background(), 7*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, report.Lots, 1)
	assert.Equal(t, soon, report.Lots[0].ExpirationDate)

	_, err = f.svc.ExpiringLots(context.Background(), -time.Hour)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestLowStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	eggs := item.NewItem("EGGS", "Eggs", "pcs")
	eggs.MinStock = types.NewQuantity(3)
	require.NoError(t, f.store.Items().Create(ctx, eggs))

	f.at(t, 0, entity.MovementPurchaseIn, 4, "1", nil)

	report, err := f.svc.LowStock(ctx)
	require.NoError(t, err)
	require.Len(t, report.Items, 1)
	assert.Equal(t, "MILK", report.Items[0].Code)
	assert.True(t, report.Items[0].IsLowStock)
	assert.Equal(t, types.NewQuantity(4), report.Items[0].TotalQuantity)
}
