package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/reports"
	"stockledger/pkg/logger"
)

// ItemSyncer is the item cache service as seen by the worker.
type ItemSyncer interface {
	SyncItems(ctx context.Context, itemIDs ...id.ID) error
	SyncAll(ctx context.Context) (int, error)
}

// ExpiryReporter produces the expiring lots report.
type ExpiryReporter interface {
	ExpiringLots(ctx context.Context, within time.Duration) (*reports.ExpiringLotsReport, error)
}

// Handlers processes the ledger's task types.
type Handlers struct {
	items  ItemSyncer
	expiry ExpiryReporter
}

// NewHandlers constructs task handlers.
func NewHandlers(items ItemSyncer, expiry ExpiryReporter) *Handlers {
	return &Handlers{items: items, expiry: expiry}
}

// HandleItemSync processes TaskItemSync tasks.
func (h *Handlers) HandleItemSync(ctx context.Context, t *asynq.Task) error {
	var payload ItemSyncPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", TaskItemSync, err, asynq.SkipRetry)
	}
	if len(payload.ItemIDs) == 0 {
		return nil
	}
	return h.items.SyncItems(ctx, payload.ItemIDs...)
}

// HandleResyncAll processes TaskResyncAll tasks.
func (h *Handlers) HandleResyncAll(ctx context.Context, _ *asynq.Task) error {
	n, err := h.items.SyncAll(ctx)
	if err != nil {
		return err
	}
	logger.Info(ctx, "item cache resynced", "items", n)
	return nil
}

// HandleExpiryScan processes TaskExpiryScan tasks.
func (h *Handlers) HandleExpiryScan(ctx context.Context, t *asynq.Task) error {
	var payload ExpiryScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", TaskExpiryScan, err, asynq.SkipRetry)
	}

	report, err := h.expiry.ExpiringLots(ctx, time.Duration(payload.WithinDays)*24*time.Hour)
	if err != nil {
		return err
	}

	expired := 0
	for _, lot := range report.Lots {
		if lot.Expired {
			expired++
			logger.Warn(ctx, "lot expired",
				"item_id", lot.ItemID,
				"warehouse_id", lot.WarehouseID,
				"layer_id", lot.LayerID,
				"remaining", lot.RemainingQuantity.String(),
				"value", lot.Value.String(),
			)
		}
	}
	logger.Info(ctx, "expiry scan finished",
		"lots", len(report.Lots),
		"expired", expired,
		"value_at_risk", report.TotalValue.String(),
	)
	return nil
}
