package stock_test

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/catalogs/item"
	"stockledger/internal/domain/catalogs/warehouse"
	"stockledger/internal/domain/registers/stock"
	"stockledger/internal/infrastructure/storage/memory"
)

type fixture struct {
	store *memory.Store
	svc   *stock.Service
	item  *item.Item
	main  *warehouse.Warehouse
	bar   *warehouse.Warehouse // allows negative stock
}

func steppingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Minute)
		return now
	}
}

func newFixture(t *testing.T, opts ...stock.Option) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	it := item.NewItem("FLOUR", "Flour", "kg")
	require.NoError(t, store.Items().Create(ctx, it))

	main := warehouse.NewWarehouse("MAIN", "Main store")
	require.NoError(t, store.Warehouses().Create(ctx, main))

	bar := warehouse.NewWarehouse("BAR", "Bar")
	bar.AllowNegativeStock = true
	require.NoError(t, store.Warehouses().Create(ctx, bar))

	opts = append([]stock.Option{stock.WithClock(steppingClock())}, opts...)
	return &fixture{
		store: store,
		svc:   stock.NewService(store.Stock(), store.Items(), store.Warehouses(), store, opts...),
		item:  it,
		main:  main,
		bar:   bar,
	}
}

func (f *fixture) post(t *testing.T, wh *warehouse.Warehouse, typ entity.MovementType, qty int64, price string) (entity.StockMovement, error) {
	t.Helper()
	return f.svc.RecordMovement(context.Background(), stock.MovementRequest{
		ItemID:      f.item.ID,
		WarehouseID: wh.ID,
		Type:        typ,
		Quantity:    types.NewQuantity(qty),
		UnitPrice:   types.MustMoney(price),
		Document:    stock.DocumentRef{Number: "TEST-1", Type: "test"},
		CreatedBy:   "tester",
	})
}

func (f *fixture) mustPost(t *testing.T, wh *warehouse.Warehouse, typ entity.MovementType, qty int64, price string) entity.StockMovement {
	t.Helper()
	m, err := f.post(t, wh, typ, qty, price)
	require.NoError(t, err)
	return m
}

func (f *fixture) balance(t *testing.T, wh *warehouse.Warehouse) entity.StockBalance {
	t.Helper()
	b, err := f.svc.GetBalance(context.Background(), f.item.ID, wh.ID)
	require.NoError(t, err)
	return b
}

func (f *fixture) layered(t *testing.T, wh *warehouse.Warehouse) types.Quantity {
	t.Helper()
	layers, err := f.svc.ListOpenLayers(context.Background(), f.item.ID, wh.ID)
	require.NoError(t, err)
	var sum types.Quantity
	for _, l := range layers {
		sum += l.RemainingQuantity
	}
	return sum
}

func (f *fixture) movements(wh *warehouse.Warehouse) stock.MovementFilter {
	itemID, whID := f.item.ID, wh.ID
	return stock.MovementFilter{ItemID: &itemID, WarehouseID: &whID}
}

func assertMoney(t *testing.T, want string, got types.Money) {
	t.Helper()
	assert.Truef(t, types.MustMoney(want).Equal(got), "want %s, got %s", want, got)
}

func TestRecordMovement_BalanceEqualsSumOfMovements(t *testing.T) {
	f := newFixture(t)

	f.mustPost(t, f.main, entity.MovementPurchaseIn, 10, "100")
	f.mustPost(t, f.main, entity.MovementPurchaseIn, 5, "120")
	f.mustPost(t, f.main, entity.MovementSaleConsumption, -12, "0")
	f.mustPost(t, f.main, entity.MovementWastage, -1, "0")
	f.mustPost(t, f.main, entity.MovementReturnIn, 2, "110")
	f.mustPost(t, f.main, entity.MovementAdjustmentDecrement, -1, "100")

	b := f.balance(t, f.main)
	qty, value, err := sumMovements(f.svc.ListMovements(context.Background(), f.movements(f.main)))
	require.NoError(t, err)

	assert.Equal(t, types.NewQuantity(3), b.Quantity)
	assert.Equal(t, qty, b.Quantity)
	// 1000 + 600 - 1240 - 120 + 220 - 100
	assertMoney(t, "360", b.TotalValue)
	assert.True(t, value.Equal(b.TotalValue))

	assert.Equal(t, b.Quantity, f.layered(t, f.main), "layers cover the whole balance when no fallback happened")
}

func TestRecordMovement_FIFOCostReplacesAdvisoryPrice(t *testing.T) {
	f := newFixture(t)
	f.mustPost(t, f.main, entity.MovementPurchaseIn, 10, "100")
	f.mustPost(t, f.main, entity.MovementPurchaseIn, 5, "120")

	sale := f.mustPost(t, f.main, entity.MovementSaleConsumption, -12, "999")

	assertMoney(t, "-1240", sale.TotalValue)
	assertMoney(t, "103.3333", sale.UnitPrice)

	layers, err := f.svc.ListOpenLayers(context.Background(), f.item.ID, f.main.ID)
	require.NoError(t, err)
	require.Len(t, layers, 1)
	assert.Equal(t, types.NewQuantity(3), layers[0].RemainingQuantity)
	assertMoney(t, "120", layers[0].UnitPrice)
}

func TestRecordMovement_NonFIFOOutflowKeepsPassedPrice(t *testing.T) {
	f := newFixture(t)
	f.mustPost(t, f.main, entity.MovementPurchaseIn, 4, "10")

	ret := f.mustPost(t, f.main, entity.MovementReturnOut, -1, "9.5")

	assertMoney(t, "-9.5", ret.TotalValue)
	assertMoney(t, "9.5", ret.UnitPrice)
	assert.Equal(t, types.NewQuantity(3), f.layered(t, f.main))
}

func TestRecordMovement_NegativeStockPolicy(t *testing.T) {
	t.Run("rejected when not allowed", func(t *testing.T) {
		f := newFixture(t)
		f.mustPost(t, f.main, entity.MovementPurchaseIn, 2, "10")

		_, err := f.post(t, f.main, entity.MovementSaleConsumption, -5, "0")

		require.Error(t, err)
		assert.True(t, apperror.IsCode(err, apperror.CodeNegativeStock))
		assert.Equal(t, types.NewQuantity(2), f.balance(t, f.main).Quantity)
		assert.Equal(t, types.NewQuantity(2), f.layered(t, f.main), "rejected sale must not consume layers")

		qty, _, err := sumMovements(f.svc.ListMovements(context.Background(), f.movements(f.main)))
		require.NoError(t, err)
		assert.Equal(t, types.NewQuantity(2), qty)
	})

	t.Run("allowed goes negative", func(t *testing.T) {
		f := newFixture(t)
		f.mustPost(t, f.bar, entity.MovementPurchaseIn, 2, "10")

		sale := f.mustPost(t, f.bar, entity.MovementSaleConsumption, -5, "0")

		// 2 from layers at 10, 3 at the average price of 10
		assertMoney(t, "-50", sale.TotalValue)
		b := f.balance(t, f.bar)
		assert.Equal(t, types.NewQuantity(-3), b.Quantity)
		assert.Zero(t, f.layered(t, f.bar))

		// Refilling covers the shortfall first; only the surplus opens a layer.
		f.mustPost(t, f.bar, entity.MovementPurchaseIn, 5, "10")
		assert.Equal(t, types.NewQuantity(2), f.balance(t, f.bar).Quantity)
		assert.Equal(t, types.NewQuantity(2), f.layered(t, f.bar))
	})
}

func TestRecordMovement_ConcurrentSalesRespectBalance(t *testing.T) {
	f := newFixture(t)
	f.mustPost(t, f.main, entity.MovementPurchaseIn, 2, "10")

	const sales = 3
	errs := make([]error, sales)
	var wg sync.WaitGroup
	for i := range sales {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.post(t, f.main, entity.MovementSaleConsumption, -1, "0")
		}()
	}
	wg.Wait()

	var ok, negative int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperror.IsCode(err, apperror.CodeNegativeStock):
			negative++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 2, ok)
	assert.Equal(t, 1, negative)
	assert.Zero(t, f.balance(t, f.main).Quantity)
}

func TestRecordMovement_Rejections(t *testing.T) {
	f := newFixture(t)
	inactive := warehouse.NewWarehouse("OLD", "Closed store")
	inactive.IsActive = false
	require.NoError(t, f.store.Warehouses().Create(context.Background(), inactive))

	tests := []struct {
		name string
		req  stock.MovementRequest
		code string
	}{
		{
			name: "zero quantity",
			req:  stock.MovementRequest{ItemID: f.item.ID, WarehouseID: f.main.ID, Type: entity.MovementPurchaseIn},
			code: apperror.CodeValidation,
		},
		{
			name: "sign mismatch",
			req: stock.MovementRequest{
				ItemID: f.item.ID, WarehouseID: f.main.ID, Type: entity.MovementWastage,
				Quantity: types.NewQuantity(1),
			},
			code: apperror.CodeValidation,
		},
		{
			name: "unknown item",
			req: stock.MovementRequest{
				ItemID: id.New(), WarehouseID: f.main.ID, Type: entity.MovementPurchaseIn,
				Quantity: types.NewQuantity(1),
			},
			code: apperror.CodeNotFound,
		},
		{
			name: "unknown warehouse",
			req: stock.MovementRequest{
				ItemID: f.item.ID, WarehouseID: id.New(), Type: entity.MovementPurchaseIn,
				Quantity: types.NewQuantity(1),
			},
			code: apperror.CodeNotFound,
		},
		{
			name: "inactive warehouse",
			req: stock.MovementRequest{
				ItemID: f.item.ID, WarehouseID: inactive.ID, Type: entity.MovementPurchaseIn,
				Quantity: types.NewQuantity(1),
			},
			code: apperror.CodeValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.RecordMovement(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, apperror.IsCode(err, tt.code), err.Error())
		})
	}
}

// conflictingRepo fails the first SaveBalance calls with a concurrency conflict.
type conflictingRepo struct {
	stock.Repository
	failures atomic.Int32
}

func (r *conflictingRepo) SaveBalance(ctx context.Context, b entity.StockBalance) error {
	if r.failures.Add(-1) >= 0 {
		return apperror.NewConcurrencyConflict("stock_balance", "test")
	}
	return r.Repository.SaveBalance(ctx, b)
}

type countingObserver struct {
	retries  atomic.Int32
	recorded atomic.Int32
	rejected sync.Map
}

func (o *countingObserver) MovementRecorded(entity.MovementType) { o.recorded.Add(1) }
func (o *countingObserver) MovementRejected(reason string)       { o.rejected.Store(reason, true) }
func (o *countingObserver) ConflictRetried()                     { o.retries.Add(1) }

func newConflictFixture(t *testing.T, failures int32) (*fixture, *countingObserver) {
	t.Helper()
	f := newFixture(t)
	repo := &conflictingRepo{Repository: f.store.Stock()}
	repo.failures.Store(failures)
	obs := &countingObserver{}
	f.svc = stock.NewService(repo, f.store.Items(), f.store.Warehouses(), f.store,
		stock.WithConfig(stock.Config{RetryAttempts: 3, MovementPageSize: 50}),
		stock.WithObserver(obs),
	)
	return f, obs
}

func TestRecordMovement_RetriesConcurrencyConflicts(t *testing.T) {
	f, obs := newConflictFixture(t, 2)

	_, err := f.post(t, f.main, entity.MovementPurchaseIn, 3, "4")
	require.NoError(t, err)

	assert.EqualValues(t, 2, obs.retries.Load())
	assert.EqualValues(t, 1, obs.recorded.Load())

	var n int
	for _, err := range f.svc.ListMovements(context.Background(), f.movements(f.main)) {
		require.NoError(t, err)
		n++
	}
	assert.Equal(t, 1, n, "failed attempts must leave no movement behind")
	assert.Equal(t, types.NewQuantity(3), f.layered(t, f.main))
}

func TestRecordMovement_SurfacesConflictAfterRetries(t *testing.T) {
	f, obs := newConflictFixture(t, 10)

	_, err := f.post(t, f.main, entity.MovementPurchaseIn, 3, "4")

	require.Error(t, err)
	assert.True(t, apperror.IsConcurrencyConflict(err))
	assert.EqualValues(t, 2, obs.retries.Load())
	_, rejected := obs.rejected.Load("conflict")
	assert.True(t, rejected)
	assert.Zero(t, f.layered(t, f.main))
}

type recordingSyncer struct {
	mu    sync.Mutex
	calls [][]id.ID
}

func (s *recordingSyncer) ScheduleSync(_ context.Context, itemIDs ...id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, itemIDs)
	return nil
}

func TestRecordMovement_SchedulesSyncOnlyForOutermostTransaction(t *testing.T) {
	syncer := &recordingSyncer{}
	f := newFixture(t, stock.WithSyncer(syncer))

	f.mustPost(t, f.main, entity.MovementPurchaseIn, 1, "1")
	require.Len(t, syncer.calls, 1)
	assert.Equal(t, []id.ID{f.item.ID}, syncer.calls[0])

	err := f.store.RunInTransaction(context.Background(), func(ctx context.Context) error {
		_, err := f.svc.RecordMovement(ctx, stock.MovementRequest{
			ItemID: f.item.ID, WarehouseID: f.main.ID, Type: entity.MovementPurchaseIn,
			Quantity: types.NewQuantity(1), UnitPrice: types.MustMoney("1"),
		})
		return err
	})
	require.NoError(t, err)
	assert.Len(t, syncer.calls, 1)
}

func TestRecordMovement_DefaultsActor(t *testing.T) {
	f := newFixture(t)
	m, err := f.svc.RecordMovement(context.Background(), stock.MovementRequest{
		ItemID: f.item.ID, WarehouseID: f.main.ID, Type: entity.MovementInitial,
		Quantity: types.NewQuantity(1), UnitPrice: types.MustMoney("1"),
	})
	require.NoError(t, err)
	assert.Equal(t, "system", m.CreatedBy)
}

func TestTransfer(t *testing.T) {
	f := newFixture(t)
	f.mustPost(t, f.main, entity.MovementPurchaseIn, 10, "100")
	f.mustPost(t, f.main, entity.MovementPurchaseIn, 5, "120")

	res, err := f.svc.Transfer(context.Background(), stock.TransferRequest{
		ItemID:          f.item.ID,
		FromWarehouseID: f.main.ID,
		ToWarehouseID:   f.bar.ID,
		Quantity:        types.NewQuantity(12),
	})
	require.NoError(t, err)

	assert.Equal(t, entity.MovementTransferOut, res.Out.MovementType)
	assert.Equal(t, types.NewQuantity(-12), res.Out.Quantity)
	assertMoney(t, "-1240", res.Out.TotalValue)
	assert.Equal(t, entity.MovementTransferIn, res.In.MovementType)
	assertMoney(t, "103.3333", res.In.UnitPrice)
	assert.Equal(t, "transfer", res.In.DocumentType)

	assert.Equal(t, types.NewQuantity(3), f.balance(t, f.main).Quantity)
	assert.Equal(t, types.NewQuantity(12), f.balance(t, f.bar).Quantity)
	assert.Equal(t, types.NewQuantity(12), f.layered(t, f.bar))
}

func TestTransfer_Rejections(t *testing.T) {
	f := newFixture(t)
	f.mustPost(t, f.main, entity.MovementPurchaseIn, 1, "1")

	_, err := f.svc.Transfer(context.Background(), stock.TransferRequest{
		ItemID: f.item.ID, FromWarehouseID: f.main.ID, ToWarehouseID: f.main.ID, Quantity: types.NewQuantity(1),
	})
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))

	_, err = f.svc.Transfer(context.Background(), stock.TransferRequest{
		ItemID: f.item.ID, FromWarehouseID: f.main.ID, ToWarehouseID: f.bar.ID, Quantity: types.NewQuantity(2),
	})
	assert.True(t, apperror.IsCode(err, apperror.CodeNegativeStock))
	assert.Equal(t, types.NewQuantity(1), f.balance(t, f.main).Quantity)
	assert.Zero(t, f.balance(t, f.bar).Quantity, "failed transfer must not post the inbound leg")
}

// pageCounter counts how many pages ListMovements fetched.
type pageCounter struct {
	stock.Repository
	pages atomic.Int32
}

func (r *pageCounter) ListMovements(ctx context.Context, filter stock.MovementFilter, after *stock.MovementCursor, limit int) ([]entity.StockMovement, error) {
	r.pages.Add(1)
	return r.Repository.ListMovements(ctx, filter, after, limit)
}

func TestListMovements_LazyAndReplayable(t *testing.T) {
	f := newFixture(t)
	repo := &pageCounter{Repository: f.store.Stock()}
	f.svc = stock.NewService(repo, f.store.Items(), f.store.Warehouses(), f.store,
		stock.WithClock(steppingClock()),
		stock.WithConfig(stock.Config{RetryAttempts: 1, MovementPageSize: 2}),
	)
	for range 5 {
		f.mustPost(t, f.main, entity.MovementPurchaseIn, 1, "1")
	}

	seq := f.svc.ListMovements(context.Background(), f.movements(f.main))
	assert.Zero(t, repo.pages.Load(), "nothing is read before ranging")

	collect := func() []entity.StockMovement {
		var out []entity.StockMovement
		for m, err := range seq {
			require.NoError(t, err)
			out = append(out, m)
		}
		return out
	}

	first := collect()
	require.Len(t, first, 5)
	assert.EqualValues(t, 3, repo.pages.Load())
	for i := 1; i < len(first); i++ {
		assert.True(t, first[i-1].CreatedAt.Before(first[i].CreatedAt))
	}

	second := collect()
	assert.Equal(t, first, second)

	repo.pages.Store(0)
	for range seq {
		break
	}
	assert.EqualValues(t, 1, repo.pages.Load())
}

func TestListMovements_DateRange(t *testing.T) {
	f := newFixture(t)
	var all []entity.StockMovement
	for range 4 {
		all = append(all, f.mustPost(t, f.main, entity.MovementPurchaseIn, 1, "1"))
	}

	filter := f.movements(f.main)
	from, to := all[1].CreatedAt, all[3].CreatedAt
	filter.FromDate, filter.ToDate = &from, &to

	var got []id.ID
	for m, err := range f.svc.ListMovements(context.Background(), filter) {
		require.NoError(t, err)
		got = append(got, m.ID)
	}
	assert.Equal(t, []id.ID{all[1].ID, all[2].ID}, got)

	filter.FromDate, filter.ToDate = &to, &from
	for _, err := range f.svc.ListMovements(context.Background(), filter) {
		assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
	}
}

func TestPostWithBalance(t *testing.T) {
	f := newFixture(t)
	f.mustPost(t, f.main, entity.MovementPurchaseIn, 7, "2")

	var seen types.Quantity
	m, err := f.svc.PostWithBalance(context.Background(), f.item.ID, f.main.ID,
		func(_ context.Context, live entity.StockBalance) (*stock.MovementRequest, error) {
			seen = live.Quantity
			return &stock.MovementRequest{
				ItemID: f.item.ID, WarehouseID: f.main.ID, Type: entity.MovementAdjustmentDecrement,
				Quantity: types.NewQuantity(-2), UnitPrice: types.MustMoney("2"),
			}, nil
		})
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, types.NewQuantity(7), seen)
	assert.Equal(t, types.NewQuantity(5), f.balance(t, f.main).Quantity)

	m, err = f.svc.PostWithBalance(context.Background(), f.item.ID, f.main.ID,
		func(context.Context, entity.StockBalance) (*stock.MovementRequest, error) { return nil, nil })
	require.NoError(t, err)
	assert.Nil(t, m)

	_, err = f.svc.PostWithBalance(context.Background(), f.item.ID, f.main.ID,
		func(context.Context, entity.StockBalance) (*stock.MovementRequest, error) {
			return &stock.MovementRequest{
				ItemID: f.item.ID, WarehouseID: f.bar.ID, Type: entity.MovementPurchaseIn,
				Quantity: types.NewQuantity(1),
			}, nil
		})
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
	assert.Equal(t, types.NewQuantity(5), f.balance(t, f.main).Quantity)
}

func TestConsumeFIFO_OpensTransactionWhenNeeded(t *testing.T) {
	f := newFixture(t)
	f.mustPost(t, f.main, entity.MovementPurchaseIn, 10, "100")

	cost, err := f.svc.ConsumeFIFO(context.Background(), f.item.ID, f.main.ID, types.NewQuantity(4))
	require.NoError(t, err)
	assertMoney(t, "400", cost.Total)
	assert.Equal(t, types.NewQuantity(6), f.layered(t, f.main))

	preview, err := f.svc.PreviewFIFOCost(context.Background(), f.item.ID, f.main.ID, types.NewQuantity(6))
	require.NoError(t, err)
	assertMoney(t, "600", preview.Total)
	assert.Equal(t, types.NewQuantity(6), f.layered(t, f.main), "preview must not consume")
}

func sumMovements(seq iter.Seq2[entity.StockMovement, error]) (types.Quantity, types.Money, error) {
	var qty types.Quantity
	value := decimal.Zero
	for m, err := range seq {
		if err != nil {
			return 0, decimal.Zero, err
		}
		qty += m.Quantity
		value = value.Add(m.TotalValue)
	}
	return qty, value, nil
}
