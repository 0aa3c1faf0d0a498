package count

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/numerator"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/catalogs/item"
	"stockledger/internal/domain/catalogs/warehouse"
	"stockledger/internal/domain/registers/stock"
	"stockledger/pkg/logger"
)

// Ledger is the part of the stock ledger a count needs.
type Ledger interface {
	GetBalance(ctx context.Context, itemID, warehouseID id.ID) (entity.StockBalance, error)
	GetBalancesByWarehouse(ctx context.Context, warehouseID id.ID, filter stock.BalanceFilter) ([]entity.StockBalance, error)
	PostWithBalance(
		ctx context.Context,
		itemID, warehouseID id.ID,
		decide func(ctx context.Context, live entity.StockBalance) (*stock.MovementRequest, error),
	) (*entity.StockMovement, error)
}

// ItemReader resolves items for sheet lines.
type ItemReader interface {
	GetByID(ctx context.Context, id id.ID) (*item.Item, error)
}

// WarehouseReader resolves the counted warehouse.
type WarehouseReader interface {
	GetByID(ctx context.Context, id id.ID) (*warehouse.Warehouse, error)
}

// ItemSyncer refreshes the item cache for approved items.
type ItemSyncer interface {
	ScheduleSync(ctx context.Context, itemIDs ...id.ID) error
}

// AuditEntry is one recorded change of a count.
type AuditEntry struct {
	Action    string          `json:"action"`
	UserID    string          `json:"userId,omitempty"`
	Changes   json.RawMessage `json:"changes"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Auditor records approved sheets and reads them back, newest first.
type Auditor interface {
	LogChange(ctx context.Context, entityType string, entityID id.ID, action string, changes map[string]any) error
	History(ctx context.Context, entityType string, entityID id.ID, limit int) ([]AuditEntry, error)
}

// Observer receives approval events for metrics.
type Observer interface {
	ApprovalFinished(result string)
	AdjustmentPosted(t entity.MovementType)
}

type noopObserver struct{}

func (noopObserver) ApprovalFinished(string)              {}
func (noopObserver) AdjustmentPosted(entity.MovementType) {}

// Option customizes a Service.
type Option func(*Service)

// WithSyncer sets the item cache syncer triggered after approval.
func WithSyncer(s ItemSyncer) Option { return func(svc *Service) { svc.syncer = s } }

// WithAuditor sets the audit log for approved sheets.
func WithAuditor(a Auditor) Option { return func(svc *Service) { svc.auditor = a } }

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option { return func(svc *Service) { svc.observer = o } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(svc *Service) { svc.now = now } }

// Service runs the count lifecycle: draft, counting, ready_for_approval, approved.
type Service struct {
	repo       Repository
	ledger     Ledger
	items      ItemReader
	warehouses WarehouseReader
	numerator  numerator.Generator
	txManager  tx.Manager
	syncer     ItemSyncer
	auditor    Auditor
	observer   Observer
	now        func() time.Time
}

// NewService creates a new count service.
func NewService(
	repo Repository,
	ledger Ledger,
	items ItemReader,
	warehouses WarehouseReader,
	gen numerator.Generator,
	txManager tx.Manager,
	opts ...Option,
) *Service {
	s := &Service{
		repo:       repo,
		ledger:     ledger,
		items:      items,
		warehouses: warehouses,
		numerator:  gen,
		txManager:  txManager,
		observer:   noopObserver{},
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput describes a new count.
type CreateInput struct {
	WarehouseID id.ID
	// ItemIDs limits the sheet. When empty the sheet holds every item
	// with a non-zero balance in the warehouse.
	ItemIDs   []id.ID
	CreatedBy string
	Notes     string
}

// Create opens a draft count and seeds its sheet from the current balances.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Count, error) {
	if id.IsNil(in.WarehouseID) {
		return nil, apperror.NewValidation("warehouseId is required").WithDetail("field", "warehouseId")
	}
	if _, err := s.warehouses.GetByID(ctx, in.WarehouseID); err != nil {
		return nil, err
	}
	if in.CreatedBy == "" {
		in.CreatedBy = appctx.ActorOrSystem(ctx)
	}

	now := s.now()
	c := NewCount(in.WarehouseID, in.CreatedBy, now)
	c.Notes = in.Notes

	sheet, err := s.seedSheet(ctx, c, in.ItemIDs)
	if err != nil {
		return nil, err
	}

	number, err := s.numerator.GetNextNumber(ctx, numerator.DefaultConfig(NumeratorPrefix), &numerator.Options{Strategy: NumeratorStrategy}, now)
	if err != nil {
		return nil, fmt.Errorf("generate number: %w", err)
	}
	c.CountNumber = number

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, c, sheet)
	})
	if err != nil {
		return nil, err
	}

	c.Items = sheet
	logger.Info(ctx, "inventory count created",
		"count_id", c.ID,
		"number", c.CountNumber,
		"warehouse_id", c.WarehouseID,
		"items", len(sheet),
	)
	return c, nil
}

func (s *Service) seedSheet(ctx context.Context, c *Count, itemIDs []id.ID) ([]Item, error) {
	var balances []entity.StockBalance
	if len(itemIDs) == 0 {
		var err error
		balances, err = s.ledger.GetBalancesByWarehouse(ctx, c.WarehouseID, stock.BalanceFilter{ExcludeZero: true})
		if err != nil {
			return nil, fmt.Errorf("load balances: %w", err)
		}
	} else {
		seen := make(map[id.ID]struct{}, len(itemIDs))
		for _, itemID := range itemIDs {
			if _, dup := seen[itemID]; dup {
				continue
			}
			seen[itemID] = struct{}{}
			b, err := s.ledger.GetBalance(ctx, itemID, c.WarehouseID)
			if err != nil {
				return nil, err
			}
			balances = append(balances, b)
		}
	}

	sheet := make([]Item, 0, len(balances))
	for _, b := range balances {
		line, err := s.newLine(ctx, c, b)
		if err != nil {
			return nil, err
		}
		sheet = append(sheet, line)
	}
	return sheet, nil
}

// newLine builds a sheet line priced at the balance average,
// or at the item's cached price when the balance carries no value.
func (s *Service) newLine(ctx context.Context, c *Count, b entity.StockBalance) (Item, error) {
	price := b.AveragePrice()
	if price.IsZero() {
		it, err := s.items.GetByID(ctx, b.ItemID)
		if err != nil {
			return Item{}, err
		}
		price = it.UnitPrice
	}
	return NewItem(c.ID, b.ItemID, c.WarehouseID, b.Quantity, price), nil
}

// Start moves a draft count to counting.
func (s *Service) Start(ctx context.Context, countID id.ID) (*Count, error) {
	c, err := s.repo.GetByID(ctx, countID)
	if err != nil {
		return nil, err
	}
	if err := c.Start(); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, c.ID, StatusDraft, StatusCounting); err != nil {
		return nil, err
	}
	logger.Info(ctx, "inventory count started", "count_id", c.ID, "number", c.CountNumber)
	return c, nil
}

// RecordCount stores the counted quantity of one item. Items missing from the
// sheet are added with a snapshot of their current balance.
func (s *Service) RecordCount(ctx context.Context, countID, itemID id.ID, counted types.Quantity, countedBy string) (*Item, error) {
	if counted.IsNegative() {
		return nil, apperror.NewValidation("counted quantity must not be negative").
			WithDetail("countedQuantity", counted.String())
	}
	if countedBy == "" {
		countedBy = appctx.ActorOrSystem(ctx)
	}

	var line *Item
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		c, err := s.repo.GetByID(ctx, countID)
		if err != nil {
			return err
		}
		if err := c.CheckEditable(); err != nil {
			return err
		}

		line, err = s.repo.GetItemForUpdate(ctx, countID, itemID)
		switch {
		case apperror.IsNotFound(err):
			if _, err := s.items.GetByID(ctx, itemID); err != nil {
				return err
			}
			b, err := s.ledger.GetBalance(ctx, itemID, c.WarehouseID)
			if err != nil {
				return err
			}
			added, err := s.newLine(ctx, c, b)
			if err != nil {
				return err
			}
			line = &added
		case err != nil:
			return err
		case line.IsFinalized():
			return apperror.NewCountNotEditable(c.ID, string(c.Status)).WithDetail("itemId", itemID)
		}

		if err := line.SetCounted(counted, countedBy, s.now()); err != nil {
			return err
		}
		return s.repo.UpsertItem(ctx, *line)
	})
	if err != nil {
		return nil, err
	}

	logger.Debug(ctx, "count recorded",
		"count_id", countID,
		"item_id", itemID,
		"counted", counted.String(),
	)
	return line, nil
}

// MarkReady moves a count in progress to ready_for_approval.
func (s *Service) MarkReady(ctx context.Context, countID id.ID) (*Count, error) {
	c, err := s.repo.GetByID(ctx, countID)
	if err != nil {
		return nil, err
	}
	if err := c.MarkReady(); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, c.ID, StatusCounting, StatusReadyForApproval); err != nil {
		return nil, err
	}
	logger.Info(ctx, "inventory count ready for approval", "count_id", c.ID, "number", c.CountNumber)
	return c, nil
}

// ApprovalResult is the outcome of an approval.
type ApprovalResult struct {
	Count       *Count                 `json:"count"`
	Adjustments []entity.StockMovement `json:"adjustments"`
}

// Approve reconciles every sheet line against the live balance, posts the
// adjustment movements and finally marks the header approved.
//
// Each line is finalized in its own ledger transaction together with its
// adjustment. If approval stops halfway the header is not approved and a new
// call resumes with the lines that are not finalized yet.
func (s *Service) Approve(ctx context.Context, countID id.ID, approvedBy string) (*ApprovalResult, error) {
	if approvedBy == "" {
		approvedBy = appctx.ActorOrSystem(ctx)
	}

	c, err := s.repo.GetByID(ctx, countID)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.GetItems(ctx, countID)
	if err != nil {
		return nil, fmt.Errorf("get count items: %w", err)
	}
	if err := c.CheckApprovable(items); err != nil {
		s.observer.ApprovalFinished("rejected")
		return nil, err
	}

	result := &ApprovalResult{Count: c}
	for _, line := range items {
		if line.IsFinalized() {
			continue
		}
		m, err := s.ledger.PostWithBalance(ctx, line.ItemID, c.WarehouseID, s.finalizeLine(c, line.ItemID, approvedBy))
		if err != nil {
			s.observer.ApprovalFinished("failed")
			logger.Error(ctx, "count approval interrupted",
				"count_id", c.ID,
				"item_id", line.ItemID,
				"error", err,
			)
			return nil, err
		}
		if m != nil {
			result.Adjustments = append(result.Adjustments, *m)
			s.observer.AdjustmentPosted(m.MovementType)
		}
	}

	items, err = s.repo.GetItems(ctx, countID)
	if err != nil {
		return nil, fmt.Errorf("get count items: %w", err)
	}
	c.Approve(approvedBy, s.now(), items)
	if err := s.repo.MarkApproved(ctx, c); err != nil {
		s.observer.ApprovalFinished("failed")
		return nil, err
	}
	c.Items = items

	s.observer.ApprovalFinished("approved")
	logger.Info(ctx, "inventory count approved",
		"count_id", c.ID,
		"number", c.CountNumber,
		"counted_items", c.CountedItems,
		"discrepancies", c.Discrepancies,
		"discrepancy_value", c.DiscrepancyValue.String(),
	)

	s.afterApproval(ctx, c)
	return result, nil
}

// finalizeLine returns the decision run under the partition lock for one line:
// re-check, finalize against the live balance, and request the adjustment.
func (s *Service) finalizeLine(c *Count, itemID id.ID, approvedBy string) func(context.Context, entity.StockBalance) (*stock.MovementRequest, error) {
	return func(ctx context.Context, live entity.StockBalance) (*stock.MovementRequest, error) {
		line, err := s.repo.GetItemForUpdate(ctx, c.ID, itemID)
		if err != nil {
			return nil, err
		}
		if line.IsFinalized() {
			return nil, nil
		}
		if line.CountedQuantity == nil {
			return nil, apperror.NewCountIncomplete(c.ID, []string{itemID.String()})
		}

		disc := line.Finalize(live.Quantity)
		if err := s.repo.FinalizeItem(ctx, *line); err != nil {
			return nil, err
		}
		if disc.IsZero() {
			return nil, nil
		}

		movementType := entity.MovementAdjustmentIncrement
		if disc.IsNegative() {
			movementType = entity.MovementAdjustmentDecrement
		}
		countID := c.ID
		return &stock.MovementRequest{
			ItemID:      itemID,
			WarehouseID: c.WarehouseID,
			Type:        movementType,
			Quantity:    disc,
			UnitPrice:   line.UnitPrice,
			Document: stock.DocumentRef{
				Number:      c.CountNumber,
				Type:        DocumentType,
				ReferenceID: &countID,
			},
			CreatedBy: approvedBy,
		}, nil
	}
}

func (s *Service) afterApproval(ctx context.Context, c *Count) {
	itemIDs := make([]id.ID, 0, len(c.Items))
	for _, it := range c.Items {
		itemIDs = append(itemIDs, it.ItemID)
	}

	if s.syncer != nil && len(itemIDs) > 0 {
		if err := s.syncer.ScheduleSync(ctx, itemIDs...); err != nil {
			logger.Warn(ctx, "item cache sync after approval failed", "count_id", c.ID, "error", err)
		}
	}

	if s.auditor != nil {
		err := s.auditor.LogChange(ctx, AuditEntityType, c.ID, "approve", map[string]any{
			"countNumber":      c.CountNumber,
			"warehouseId":      c.WarehouseID,
			"approvedBy":       c.ApprovedBy,
			"countedItems":     c.CountedItems,
			"discrepancies":    c.Discrepancies,
			"discrepancyValue": c.DiscrepancyValue,
			"items":            c.Items,
		})
		if err != nil {
			logger.Warn(ctx, "audit log for approved count failed", "count_id", c.ID, "error", err)
		}
	}
}

// Get returns a count with its sheet.
func (s *Service) Get(ctx context.Context, countID id.ID) (*Count, error) {
	c, err := s.repo.GetByID(ctx, countID)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.GetItems(ctx, countID)
	if err != nil {
		return nil, fmt.Errorf("get count items: %w", err)
	}
	c.Items = items
	return c, nil
}

// List returns count headers.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Count, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, apperror.NewValidation("unknown count status").WithDetail("status", string(*filter.Status))
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	return s.repo.List(ctx, filter)
}

// History returns the audit trail of a count, newest first.
func (s *Service) History(ctx context.Context, countID id.ID, limit int) ([]AuditEntry, error) {
	if _, err := s.repo.GetByID(ctx, countID); err != nil {
		return nil, err
	}
	if s.auditor == nil {
		return []AuditEntry{}, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	entries, err := s.auditor.History(ctx, AuditEntityType, countID, limit)
	if err != nil {
		return nil, fmt.Errorf("read count history: %w", err)
	}
	return entries, nil
}
