package stock

import (
	"context"
	"fmt"
	"iter"
	"time"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/catalogs/item"
	"stockledger/internal/domain/catalogs/warehouse"
	"stockledger/pkg/logger"
)

// ItemReader resolves items referenced by movements.
type ItemReader interface {
	GetByID(ctx context.Context, id id.ID) (*item.Item, error)
}

// WarehouseReader resolves warehouses and their stock policy.
type WarehouseReader interface {
	GetByID(ctx context.Context, id id.ID) (*warehouse.Warehouse, error)
}

// ItemSyncer refreshes the item cache after balances change.
// Implementations may run inline or hand the work to a queue.
type ItemSyncer interface {
	ScheduleSync(ctx context.Context, itemIDs ...id.ID) error
}

// Observer receives ledger events for metrics.
type Observer interface {
	MovementRecorded(t entity.MovementType)
	MovementRejected(reason string)
	ConflictRetried()
}

type noopObserver struct{}

func (noopObserver) MovementRecorded(entity.MovementType) {}
func (noopObserver) MovementRejected(string)              {}
func (noopObserver) ConflictRetried()                     {}

// Config tunes the ledger writer.
type Config struct {
	// RetryAttempts bounds how often a write is attempted on concurrency conflicts.
	RetryAttempts int
	// RetryBaseDelay is the first backoff delay; it doubles per attempt.
	RetryBaseDelay time.Duration
	// MovementPageSize is the page size used by ListMovements sequences.
	MovementPageSize int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		RetryAttempts:    5,
		RetryBaseDelay:   10 * time.Millisecond,
		MovementPageSize: 500,
	}
}

// Option customizes a Service.
type Option func(*Service)

// WithSyncer sets the item cache syncer invoked after committed writes.
func WithSyncer(syncer ItemSyncer) Option {
	return func(s *Service) { s.syncer = syncer }
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// WithConfig overrides DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(s *Service) { s.cfg = cfg }
}

// WithClock overrides the time source for movement timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service is the transactional writer and reader of the stock ledger.
type Service struct {
	repo       Repository
	items      ItemReader
	warehouses WarehouseReader
	txm        tx.Manager
	syncer     ItemSyncer
	observer   Observer
	cfg        Config
	now        func() time.Time
}

// NewService creates a new stock ledger service.
func NewService(repo Repository, items ItemReader, warehouses WarehouseReader, txm tx.Manager, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		items:      items,
		warehouses: warehouses,
		txm:        txm,
		observer:   noopObserver{},
		cfg:        DefaultConfig(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.RetryAttempts < 1 {
		s.cfg.RetryAttempts = 1
	}
	if s.cfg.MovementPageSize <= 0 {
		s.cfg.MovementPageSize = DefaultConfig().MovementPageSize
	}
	return s
}

// DocumentRef links a movement to the document that caused it.
type DocumentRef struct {
	Number      string `json:"number,omitempty"`
	Type        string `json:"type,omitempty"`
	ReferenceID *id.ID `json:"referenceId,omitempty"`
}

// MovementRequest describes one movement to record.
type MovementRequest struct {
	ItemID      id.ID
	WarehouseID id.ID
	Type        entity.MovementType

	// Quantity is signed and must match the direction of Type.
	Quantity types.Quantity

	// UnitPrice values inflows and non-FIFO outflows.
	// For FIFO-costed types it is advisory and replaced by the layer cost.
	UnitPrice types.Money

	LotNumber      *string
	ExpirationDate *time.Time
	Document       DocumentRef
	CreatedBy      string
}

// Validate checks the request without touching storage.
func (r MovementRequest) Validate() error {
	if id.IsNil(r.ItemID) {
		return apperror.NewValidation("itemId is required").WithDetail("field", "itemId")
	}
	if id.IsNil(r.WarehouseID) {
		return apperror.NewValidation("warehouseId is required").WithDetail("field", "warehouseId")
	}
	if !r.Type.IsValid() {
		return apperror.NewValidation("unknown movement type").WithDetail("movementType", string(r.Type))
	}
	if r.Quantity.IsZero() {
		return apperror.NewValidation("quantity must not be zero").WithDetail("field", "quantity")
	}
	if !r.Type.MatchesSign(r.Quantity) {
		return apperror.NewValidation("quantity sign does not match movement type").
			WithDetail("movementType", string(r.Type)).
			WithDetail("quantity", r.Quantity.String())
	}
	if r.UnitPrice.IsNegative() {
		return apperror.NewValidation("unitPrice must not be negative").WithDetail("field", "unitPrice")
	}
	return nil
}

// RecordMovement appends a movement and, in the same transaction, updates the
// partition balance and its FIFO layers. Concurrency conflicts are retried.
// When ctx already carries a transaction the movement joins it and the caller
// owns retries and the item cache refresh.
func (s *Service) RecordMovement(ctx context.Context, req MovementRequest) (entity.StockMovement, error) {
	if err := req.Validate(); err != nil {
		s.observer.MovementRejected("validation")
		return entity.StockMovement{}, err
	}
	if req.CreatedBy == "" {
		req.CreatedBy = appctx.ActorOrSystem(ctx)
	}

	nested := s.txm.InTransaction(ctx)

	var movement entity.StockMovement
	err := s.atomically(ctx, func(ctx context.Context) error {
		wh, err := s.loadPartition(ctx, req.ItemID, req.WarehouseID)
		if err != nil {
			return err
		}
		balance, err := s.repo.GetBalanceForUpdate(ctx, req.ItemID, req.WarehouseID)
		if err != nil {
			return fmt.Errorf("lock balance: %w", err)
		}
		movement, err = s.apply(ctx, wh, balance, req)
		return err
	})
	if err != nil {
		s.reject(err)
		return entity.StockMovement{}, err
	}

	s.observer.MovementRecorded(movement.MovementType)
	logger.FromContext(ctx).WithStockKey(movement.ItemID, movement.WarehouseID).Debugw("movement recorded",
		"movement_id", movement.ID,
		"type", movement.MovementType,
		"quantity", movement.Quantity.String(),
	)

	if !nested {
		s.scheduleSync(ctx, movement.ItemID)
	}
	return movement, nil
}

// PostWithBalance locks the (item, warehouse) partition, hands its live balance
// to decide and posts the movement decide returns, all in one transaction.
// decide runs inside that transaction and may write its own records there;
// a nil request posts nothing.
func (s *Service) PostWithBalance(
	ctx context.Context,
	itemID, warehouseID id.ID,
	decide func(ctx context.Context, live entity.StockBalance) (*MovementRequest, error),
) (*entity.StockMovement, error) {
	var posted *entity.StockMovement
	err := s.atomically(ctx, func(ctx context.Context) error {
		posted = nil

		wh, err := s.loadPartition(ctx, itemID, warehouseID)
		if err != nil {
			return err
		}
		balance, err := s.repo.GetBalanceForUpdate(ctx, itemID, warehouseID)
		if err != nil {
			return fmt.Errorf("lock balance: %w", err)
		}

		req, err := decide(ctx, balance)
		if err != nil || req == nil {
			return err
		}
		if req.ItemID != itemID || req.WarehouseID != warehouseID {
			return apperror.NewValidation("movement does not belong to the locked partition")
		}
		if err := req.Validate(); err != nil {
			return err
		}
		if req.CreatedBy == "" {
			req.CreatedBy = appctx.ActorOrSystem(ctx)
		}

		m, err := s.apply(ctx, wh, balance, *req)
		if err != nil {
			return err
		}
		posted = &m
		return nil
	})
	if err != nil {
		s.reject(err)
		return nil, err
	}
	if posted != nil {
		s.observer.MovementRecorded(posted.MovementType)
	}
	return posted, nil
}

// TransferRequest moves stock of one item between two warehouses.
type TransferRequest struct {
	ItemID          id.ID
	FromWarehouseID id.ID
	ToWarehouseID   id.ID
	Quantity        types.Quantity
	Document        DocumentRef
	CreatedBy       string
}

// TransferResult holds both legs of a transfer.
type TransferResult struct {
	Out entity.StockMovement `json:"out"`
	In  entity.StockMovement `json:"in"`
}

// Transfer posts a TRANSFER_OUT / TRANSFER_IN pair atomically.
// The inbound leg is valued at the FIFO unit cost of the outbound leg.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	if !req.Quantity.IsPositive() {
		return TransferResult{}, apperror.NewValidation("transfer quantity must be positive")
	}
	if req.FromWarehouseID == req.ToWarehouseID {
		return TransferResult{}, apperror.NewValidation("source and destination warehouse must differ")
	}
	if req.CreatedBy == "" {
		req.CreatedBy = appctx.ActorOrSystem(ctx)
	}
	if req.Document.Type == "" {
		req.Document.Type = "transfer"
	}

	var result TransferResult
	err := s.atomically(ctx, func(ctx context.Context) error {
		from, err := s.loadPartition(ctx, req.ItemID, req.FromWarehouseID)
		if err != nil {
			return err
		}
		to, err := s.warehouses.GetByID(ctx, req.ToWarehouseID)
		if err != nil {
			return err
		}
		if !to.IsActive {
			return apperror.NewValidation("warehouse is not active").WithDetail("warehouse_id", to.ID)
		}

		// Lock both partitions in id order so opposite transfers cannot deadlock.
		balances := make(map[id.ID]entity.StockBalance, 2)
		order := []id.ID{req.FromWarehouseID, req.ToWarehouseID}
		if id.Compare(order[0], order[1]) > 0 {
			order[0], order[1] = order[1], order[0]
		}
		for _, whID := range order {
			b, err := s.repo.GetBalanceForUpdate(ctx, req.ItemID, whID)
			if err != nil {
				return fmt.Errorf("lock balance: %w", err)
			}
			balances[whID] = b
		}

		result.Out, err = s.apply(ctx, from, balances[req.FromWarehouseID], MovementRequest{
			ItemID:      req.ItemID,
			WarehouseID: req.FromWarehouseID,
			Type:        entity.MovementTransferOut,
			Quantity:    req.Quantity.Neg(),
			Document:    req.Document,
			CreatedBy:   req.CreatedBy,
		})
		if err != nil {
			return err
		}

		result.In, err = s.apply(ctx, to, balances[req.ToWarehouseID], MovementRequest{
			ItemID:      req.ItemID,
			WarehouseID: req.ToWarehouseID,
			Type:        entity.MovementTransferIn,
			Quantity:    req.Quantity,
			UnitPrice:   result.Out.UnitPrice,
			Document:    req.Document,
			CreatedBy:   req.CreatedBy,
		})
		return err
	})
	if err != nil {
		s.reject(err)
		return TransferResult{}, err
	}

	s.observer.MovementRecorded(entity.MovementTransferOut)
	s.observer.MovementRecorded(entity.MovementTransferIn)
	logger.Info(ctx, "transfer recorded",
		"item_id", req.ItemID,
		"from", req.FromWarehouseID,
		"to", req.ToWarehouseID,
		"quantity", req.Quantity.String(),
	)
	if !s.txm.InTransaction(ctx) {
		s.scheduleSync(ctx, req.ItemID)
	}
	return result, nil
}

// apply writes one movement against a balance that is already locked.
func (s *Service) apply(ctx context.Context, wh *warehouse.Warehouse, balance entity.StockBalance, req MovementRequest) (entity.StockMovement, error) {
	resulting := balance.Quantity + req.Quantity
	if req.Quantity.IsNegative() && !wh.CanIssueStock(resulting.IsNegative()) {
		return entity.StockMovement{}, apperror.NewNegativeStock(
			req.ItemID, req.WarehouseID, balance.Quantity.String(), req.Quantity.Abs().String(),
		)
	}

	m := entity.StockMovement{
		ID:             id.New(),
		ItemID:         req.ItemID,
		WarehouseID:    req.WarehouseID,
		MovementType:   req.Type,
		Quantity:       req.Quantity,
		UnitPrice:      req.UnitPrice,
		TotalValue:     req.Quantity.Value(req.UnitPrice),
		LotNumber:      req.LotNumber,
		ExpirationDate: req.ExpirationDate,
		DocumentNumber: req.Document.Number,
		DocumentType:   req.Document.Type,
		ReferenceID:    req.Document.ReferenceID,
		CreatedBy:      req.CreatedBy,
		CreatedAt:      s.now(),
	}

	if !req.Type.IsInflow() {
		cost, err := s.consumeFIFO(ctx, balance, req.Quantity.Abs())
		if err != nil {
			return entity.StockMovement{}, err
		}
		if req.Type.UsesFIFOCost() {
			m.UnitPrice = cost.UnitCost()
			m.TotalValue = cost.Total.Neg()
		}
	}

	if err := s.repo.InsertMovement(ctx, m); err != nil {
		return entity.StockMovement{}, fmt.Errorf("insert movement: %w", err)
	}

	if req.Type.IsInflow() {
		if err := s.addLayer(ctx, balance, m); err != nil {
			return entity.StockMovement{}, err
		}
	}

	balance.Apply(m)
	if err := s.repo.SaveBalance(ctx, balance); err != nil {
		return entity.StockMovement{}, fmt.Errorf("save balance: %w", err)
	}

	return m, nil
}

// addLayer opens a FIFO layer for an inflow. Stock that only covers an existing
// negative balance does not open a layer, which keeps layered quantity at or
// below the balance.
func (s *Service) addLayer(ctx context.Context, before entity.StockBalance, m entity.StockMovement) error {
	remaining := m.Quantity
	if before.Quantity.IsNegative() {
		remaining = max(before.Quantity+m.Quantity, 0)
	}
	if remaining == 0 {
		return nil
	}

	layer := entity.FIFOLayer{
		ID:                id.New(),
		ItemID:            m.ItemID,
		WarehouseID:       m.WarehouseID,
		MovementID:        m.ID,
		Quantity:          m.Quantity,
		RemainingQuantity: remaining,
		UnitPrice:         m.UnitPrice,
		LotNumber:         m.LotNumber,
		ExpirationDate:    m.ExpirationDate,
		CreatedAt:         m.CreatedAt,
	}
	if err := s.repo.InsertLayer(ctx, layer); err != nil {
		return fmt.Errorf("insert fifo layer: %w", err)
	}
	return nil
}

// loadPartition checks that the item exists and returns an active warehouse.
func (s *Service) loadPartition(ctx context.Context, itemID, warehouseID id.ID) (*warehouse.Warehouse, error) {
	if _, err := s.items.GetByID(ctx, itemID); err != nil {
		return nil, err
	}
	wh, err := s.warehouses.GetByID(ctx, warehouseID)
	if err != nil {
		return nil, err
	}
	if !wh.IsActive {
		return nil, apperror.NewValidation("warehouse is not active").WithDetail("warehouse_id", wh.ID)
	}
	return wh, nil
}

func (s *Service) reject(err error) {
	switch {
	case apperror.IsCode(err, apperror.CodeNegativeStock):
		s.observer.MovementRejected("negative_stock")
	case apperror.IsConcurrencyConflict(err):
		s.observer.MovementRejected("conflict")
	case apperror.IsCode(err, apperror.CodeValidation), apperror.IsNotFound(err):
		s.observer.MovementRejected("validation")
	}
}

func (s *Service) scheduleSync(ctx context.Context, itemIDs ...id.ID) {
	if s.syncer == nil {
		return
	}
	if err := s.syncer.ScheduleSync(ctx, itemIDs...); err != nil {
		logger.Warn(ctx, "item cache sync not scheduled", "item_ids", itemIDs, "error", err)
	}
}

// --- Reads ---

// GetBalance returns the current balance of an (item, warehouse) partition.
func (s *Service) GetBalance(ctx context.Context, itemID, warehouseID id.ID) (entity.StockBalance, error) {
	if _, err := s.items.GetByID(ctx, itemID); err != nil {
		return entity.StockBalance{}, err
	}
	if _, err := s.warehouses.GetByID(ctx, warehouseID); err != nil {
		return entity.StockBalance{}, err
	}
	return s.repo.GetBalance(ctx, itemID, warehouseID)
}

// GetBalancesByItem returns an item's balances in every warehouse.
func (s *Service) GetBalancesByItem(ctx context.Context, itemID id.ID) ([]entity.StockBalance, error) {
	return s.repo.GetBalancesByItem(ctx, itemID)
}

// GetBalancesByWarehouse returns the balances held in a warehouse.
func (s *Service) GetBalancesByWarehouse(ctx context.Context, warehouseID id.ID, filter BalanceFilter) ([]entity.StockBalance, error) {
	return s.repo.GetBalancesByWarehouse(ctx, warehouseID, filter)
}

// ListOpenLayers returns the partition's unconsumed FIFO layers, oldest first.
func (s *Service) ListOpenLayers(ctx context.Context, itemID, warehouseID id.ID) ([]entity.FIFOLayer, error) {
	return s.repo.ListOpenLayers(ctx, itemID, warehouseID)
}

// ListExpiringLayers returns open layers expiring before the given time.
func (s *Service) ListExpiringLayers(ctx context.Context, before time.Time) ([]entity.FIFOLayer, error) {
	return s.repo.ListExpiringLayers(ctx, before)
}

// ListMovements returns a lazy sequence over the movement log in (createdAt, id) order.
// Pages are fetched as the sequence is consumed; ranging again re-reads the log.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) iter.Seq2[entity.StockMovement, error] {
	pageSize := s.cfg.MovementPageSize
	return func(yield func(entity.StockMovement, error) bool) {
		if filter.FromDate != nil && filter.ToDate != nil && filter.ToDate.Before(*filter.FromDate) {
			yield(entity.StockMovement{}, apperror.NewValidation("toDate must not be before fromDate"))
			return
		}

		var cursor *MovementCursor
		for {
			page, err := s.repo.ListMovements(ctx, filter, cursor, pageSize)
			if err != nil {
				yield(entity.StockMovement{}, fmt.Errorf("list movements: %w", err))
				return
			}
			for _, m := range page {
				if !yield(m, nil) {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
			cursor = CursorOf(page[len(page)-1])
		}
	}
}
