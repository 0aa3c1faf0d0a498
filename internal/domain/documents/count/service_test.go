package count_test

import (
	"context"
	"errors"
	"sync"
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
	"stockledger/internal/domain/documents/count"
	"stockledger/internal/domain/registers/stock"
	"stockledger/internal/infrastructure/storage/memory"
)

type env struct {
	store  *memory.Store
	ledger *stock.Service
	svc    *count.Service
	wh     *warehouse.Warehouse
	flour  *item.Item
	sugar  *item.Item
	syncer *recordingSyncer
}

type recordingSyncer struct {
	mu  sync.Mutex
	ids []id.ID
}

func (s *recordingSyncer) ScheduleSync(_ context.Context, itemIDs ...id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, itemIDs...)
	return nil
}

func clock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	wh := warehouse.NewWarehouse("MAIN", "Main kitchen")
	require.NoError(t, store.Warehouses().Create(ctx, wh))
	flour := item.NewItem("FLOUR", "Flour", "kg")
	require.NoError(t, store.Items().Create(ctx, flour))
	sugar := item.NewItem("SUGAR", "Sugar", "kg")
	require.NoError(t, store.Items().Create(ctx, sugar))

	e := &env{
		store:  store,
		wh:     wh,
		flour:  flour,
		sugar:  sugar,
		syncer: &recordingSyncer{},
	}
	e.ledger = stock.NewService(store.Stock(), store.Items(), store.Warehouses(), store, stock.WithClock(clock()))
	e.svc = e.newService(e.ledger)
	return e
}

func (e *env) newService(ledger count.Ledger) *count.Service {
	return count.NewService(
		e.store.Counts(), ledger, e.store.Items(), e.store.Warehouses(), e.store.Numerator(), e.store,
		count.WithSyncer(e.syncer),
		count.WithAuditor(e.store.Audit()),
		count.WithClock(clock()),
	)
}

func (e *env) receive(t *testing.T, it *item.Item, qty int64, price string) {
	t.Helper()
	_, err := e.ledger.RecordMovement(context.Background(), stock.MovementRequest{
		ItemID:      it.ID,
		WarehouseID: e.wh.ID,
		Type:        entity.MovementPurchaseIn,
		Quantity:    types.NewQuantity(qty),
		UnitPrice:   types.MustMoney(price),
	})
	require.NoError(t, err)
}

func (e *env) quantity(t *testing.T, it *item.Item) types.Quantity {
	t.Helper()
	b, err := e.ledger.GetBalance(context.Background(), it.ID, e.wh.ID)
	require.NoError(t, err)
	return b.Quantity
}

// started creates a count over the warehouse and moves it to counting.
func (e *env) started(t *testing.T, itemIDs ...id.ID) *count.Count {
	t.Helper()
	ctx := context.Background()
	c, err := e.svc.Create(ctx, count.CreateInput{WarehouseID: e.wh.ID, ItemIDs: itemIDs, CreatedBy: "alice"})
	require.NoError(t, err)
	_, err = e.svc.Start(ctx, c.ID)
	require.NoError(t, err)
	return c
}

func (e *env) record(t *testing.T, c *count.Count, it *item.Item, qty int64) {
	t.Helper()
	_, err := e.svc.RecordCount(context.Background(), c.ID, it.ID, types.NewQuantity(qty), "bob")
	require.NoError(t, err)
}

func (e *env) adjustments(t *testing.T, c *count.Count) []entity.StockMovement {
	t.Helper()
	ref := c.ID
	var out []entity.StockMovement
	for m, err := range e.ledger.ListMovements(context.Background(), stock.MovementFilter{ReferenceID: &ref}) {
		require.NoError(t, err)
		out = append(out, m)
	}
	return out
}

func TestCreate_SeedsSheetFromNonZeroBalances(t *testing.T) {
	e := newEnv(t)
	e.receive(t, e.flour, 100, "2")

	c, err := e.svc.Create(context.Background(), count.CreateInput{WarehouseID: e.wh.ID, Notes: "monthly"})
	require.NoError(t, err)

	assert.Equal(t, count.StatusDraft, c.Status)
	assert.Equal(t, "CNT-2026-00001", c.CountNumber)
	assert.Equal(t, "system", c.CreatedBy)
	require.Len(t, c.Items, 1, "sugar has no stock and is left off the sheet")
	assert.Equal(t, e.flour.ID, c.Items[0].ItemID)
	assert.Equal(t, types.NewQuantity(100), c.Items[0].SystemQuantity)
	assert.True(t, types.MustMoney("2").Equal(c.Items[0].UnitPrice))
	assert.Nil(t, c.Items[0].CountedQuantity)

	next, err := e.svc.Create(context.Background(), count.CreateInput{
		WarehouseID: e.wh.ID,
		ItemIDs:     []id.ID{e.sugar.ID, e.sugar.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, "CNT-2026-00002", next.CountNumber)
	require.Len(t, next.Items, 1, "duplicates collapse")
	assert.Zero(t, next.Items[0].SystemQuantity)
}

func TestCreate_UnknownWarehouse(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.Create(context.Background(), count.CreateInput{WarehouseID: id.New()})
	assert.True(t, apperror.IsNotFound(err))
}

func TestApprove_ReconcilesAgainstLiveBalance(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.receive(t, e.flour, 100, "2")

	c := e.started(t)
	// Stock arrives while counting is under way.
	e.receive(t, e.flour, 20, "2")
	e.record(t, c, e.flour, 130)

	res, err := e.svc.Approve(ctx, c.ID, "carol")
	require.NoError(t, err)

	require.Len(t, res.Adjustments, 1)
	adj := res.Adjustments[0]
	assert.Equal(t, entity.MovementAdjustmentIncrement, adj.MovementType)
	assert.Equal(t, types.NewQuantity(10), adj.Quantity)
	assert.Equal(t, c.CountNumber, adj.DocumentNumber)
	assert.Equal(t, count.DocumentType, adj.DocumentType)
	require.NotNil(t, adj.ReferenceID)
	assert.Equal(t, c.ID, *adj.ReferenceID)
	assert.Equal(t, "carol", adj.CreatedBy)

	assert.Equal(t, types.NewQuantity(130), e.quantity(t, e.flour))

	got, err := e.svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, count.StatusApproved, got.Status)
	require.NotNil(t, got.ApprovedBy)
	assert.Equal(t, "carol", *got.ApprovedBy)
	assert.NotNil(t, got.ApprovedDate)
	assert.Equal(t, 1, got.CountedItems)
	assert.Equal(t, 1, got.Discrepancies)
	assert.True(t, types.MustMoney("20").Equal(got.DiscrepancyValue))

	line := got.Items[0]
	assert.Equal(t, types.NewQuantity(120), *line.SystemQuantityAtFinalization)
	assert.Equal(t, types.NewQuantity(10), *line.Discrepancy)
	assert.Equal(t, types.NewQuantity(100), line.SystemQuantity)

	assert.Contains(t, e.syncer.ids, e.flour.ID)
	history, err := e.svc.History(context.Background(), c.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "approve", history[0].Action)
	assert.Contains(t, string(history[0].Changes), `"discrepancies":1`)
}

func TestApprove_ShortageAndExactLines(t *testing.T) {
	e := newEnv(t)
	e.receive(t, e.flour, 10, "3")
	e.receive(t, e.sugar, 5, "1")

	c := e.started(t)
	e.record(t, c, e.flour, 7)
	e.record(t, c, e.sugar, 5)
	_, err := e.svc.MarkReady(context.Background(), c.ID)
	require.NoError(t, err)

	res, err := e.svc.Approve(context.Background(), c.ID, "carol")
	require.NoError(t, err)

	require.Len(t, res.Adjustments, 1)
	assert.Equal(t, entity.MovementAdjustmentDecrement, res.Adjustments[0].MovementType)
	assert.Equal(t, types.NewQuantity(-3), res.Adjustments[0].Quantity)
	assert.Equal(t, types.NewQuantity(7), e.quantity(t, e.flour))
	assert.Equal(t, types.NewQuantity(5), e.quantity(t, e.sugar))
	assert.Equal(t, 2, res.Count.CountedItems)
	assert.Equal(t, 1, res.Count.Discrepancies)
	assert.True(t, types.MustMoney("-9").Equal(res.Count.DiscrepancyValue))
}

func TestApprove_IsNotRepeatable(t *testing.T) {
	e := newEnv(t)
	e.receive(t, e.flour, 100, "2")
	c := e.started(t)
	e.record(t, c, e.flour, 90)

	_, err := e.svc.Approve(context.Background(), c.ID, "carol")
	require.NoError(t, err)
	before := e.adjustments(t, c)

	_, err = e.svc.Approve(context.Background(), c.ID, "carol")
	assert.True(t, apperror.IsCode(err, apperror.CodeCountAlreadyApproved))
	assert.Equal(t, before, e.adjustments(t, c), "second approval posts nothing")
	assert.Equal(t, types.NewQuantity(90), e.quantity(t, e.flour))
}

func TestApprove_Preconditions(t *testing.T) {
	e := newEnv(t)
	e.receive(t, e.flour, 1, "1")
	e.receive(t, e.sugar, 1, "1")

	draft, err := e.svc.Create(context.Background(), count.CreateInput{WarehouseID: e.wh.ID})
	require.NoError(t, err)
	_, err = e.svc.Approve(context.Background(), draft.ID, "carol")
	assert.True(t, apperror.IsCode(err, apperror.CodeCountNotReady))

	c := e.started(t)
	e.record(t, c, e.flour, 1)
	_, err = e.svc.Approve(context.Background(), c.ID, "carol")
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeCountIncomplete))
	assert.Empty(t, e.adjustments(t, c))

	_, err = e.svc.Approve(context.Background(), id.New(), "carol")
	assert.True(t, apperror.IsNotFound(err))
}

func TestRecordCount(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.receive(t, e.flour, 4, "1")
	c := e.started(t, e.flour.ID)

	t.Run("negative quantity", func(t *testing.T) {
		_, err := e.svc.RecordCount(ctx, c.ID, e.flour.ID, types.NewQuantity(-1), "bob")
		assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
	})

	t.Run("recount overwrites", func(t *testing.T) {
		e.record(t, c, e.flour, 3)
		line, err := e.svc.RecordCount(ctx, c.ID, e.flour.ID, types.NewQuantity(4), "dave")
		require.NoError(t, err)
		assert.Equal(t, types.NewQuantity(4), *line.CountedQuantity)
		assert.Equal(t, "dave", *line.CountedBy)
	})

	t.Run("item off the sheet is added", func(t *testing.T) {
		line, err := e.svc.RecordCount(ctx, c.ID, e.sugar.ID, types.NewQuantity(2), "bob")
		require.NoError(t, err)
		assert.Zero(t, line.SystemQuantity)

		got, err := e.svc.Get(ctx, c.ID)
		require.NoError(t, err)
		assert.Len(t, got.Items, 2)
	})

	t.Run("unknown item", func(t *testing.T) {
		_, err := e.svc.RecordCount(ctx, c.ID, id.New(), types.NewQuantity(1), "bob")
		assert.True(t, apperror.IsNotFound(err))
	})

	t.Run("closed after ready", func(t *testing.T) {
		_, err := e.svc.MarkReady(ctx, c.ID)
		require.NoError(t, err)
		_, err = e.svc.RecordCount(ctx, c.ID, e.flour.ID, types.NewQuantity(1), "bob")
		assert.True(t, apperror.IsCode(err, apperror.CodeCountNotEditable))
	})
}

func TestStartAndMarkReady_InvalidTransitions(t *testing.T) {
	e := newEnv(t)
	c := e.started(t)

	_, err := e.svc.Start(context.Background(), c.ID)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidStatus))

	_, err = e.svc.MarkReady(context.Background(), c.ID)
	require.NoError(t, err)
	_, err = e.svc.MarkReady(context.Background(), c.ID)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidStatus))
}

// flakyLedger fails the first posting for one item.
type flakyLedger struct {
	*stock.Service
	failFor id.ID
	failed  bool
}

func (l *flakyLedger) PostWithBalance(
	ctx context.Context,
	itemID, warehouseID id.ID,
	decide func(ctx context.Context, live entity.StockBalance) (*stock.MovementRequest, error),
) (*entity.StockMovement, error) {
	if itemID == l.failFor && !l.failed {
		l.failed = true
		return nil, errors.New("connection reset")
	}
	return l.Service.PostWithBalance(ctx, itemID, warehouseID, decide)
}

func TestApprove_ResumesAfterInterruption(t *testing.T) {
	e := newEnv(t)
	e.receive(t, e.flour, 10, "1")
	e.receive(t, e.sugar, 10, "1")
	c := e.started(t)
	e.record(t, c, e.flour, 8)
	e.record(t, c, e.sugar, 12)

	// Lines are processed in item id order; fail whichever comes second.
	second := e.sugar
	if id.Compare(e.flour.ID, e.sugar.ID) > 0 {
		second = e.flour
	}
	svc := e.newService(&flakyLedger{Service: e.ledger, failFor: second.ID})

	_, err := svc.Approve(context.Background(), c.ID, "carol")
	require.Error(t, err)

	got, err := svc.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, count.StatusCounting, got.Status)
	assert.Len(t, e.adjustments(t, c), 1)

	res, err := svc.Approve(context.Background(), c.ID, "carol")
	require.NoError(t, err)
	assert.Len(t, res.Adjustments, 1, "only the unfinished line is posted")
	assert.Len(t, e.adjustments(t, c), 2)
	assert.Equal(t, types.NewQuantity(8), e.quantity(t, e.flour))
	assert.Equal(t, types.NewQuantity(12), e.quantity(t, e.sugar))
	assert.Equal(t, 2, res.Count.Discrepancies)
}

func TestList(t *testing.T) {
	e := newEnv(t)
	first := e.started(t)
	_, err := e.svc.Create(context.Background(), count.CreateInput{WarehouseID: e.wh.ID})
	require.NoError(t, err)

	status := count.StatusCounting
	got, err := e.svc.List(context.Background(), count.ListFilter{Status: &status})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, first.ID, got[0].ID)

	all, err := e.svc.List(context.Background(), count.ListFilter{WarehouseID: &e.wh.ID})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	bogus := count.Status("lost")
	_, err = e.svc.List(context.Background(), count.ListFilter{Status: &bogus})
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}
