// Package jobs runs the ledger's background work on asynq: deferred item cache
// syncs, the nightly full resync and the daily lot expiry scan.
package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"stockledger/internal/core/id"
)

const (
	// QueueDefault is the queue every ledger task runs on.
	QueueDefault = "default"

	// TaskItemSync recomputes the cache of the items in the payload.
	TaskItemSync = "itemcache:sync"
	// TaskResyncAll recomputes the cache of every active item.
	TaskResyncAll = "itemcache:resync-all"
	// TaskExpiryScan reports lots that expired or expire soon.
	TaskExpiryScan = "stock:expiry-scan"
)

// ItemSyncPayload names the items whose balances changed.
type ItemSyncPayload struct {
	ItemIDs []id.ID `json:"item_ids"`
}

// ExpiryScanPayload sets the look-ahead window of the scan.
type ExpiryScanPayload struct {
	WithinDays int `json:"within_days"`
}

// NewItemSyncTask constructs a sync task for a single item.
func NewItemSyncTask(itemID id.ID) (*asynq.Task, error) {
	body, err := json.Marshal(ItemSyncPayload{ItemIDs: []id.ID{itemID}})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskItemSync, body, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// NewResyncAllTask constructs the full resync task.
func NewResyncAllTask() *asynq.Task {
	return asynq.NewTask(TaskResyncAll, nil, asynq.Queue(QueueDefault), asynq.Timeout(30*time.Minute))
}

// NewExpiryScanTask constructs the expiry scan task.
func NewExpiryScanTask(withinDays int) (*asynq.Task, error) {
	if withinDays < 0 {
		return nil, fmt.Errorf("expiry scan window must not be negative: %d", withinDays)
	}
	body, err := json.Marshal(ExpiryScanPayload{WithinDays: withinDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskExpiryScan, body, asynq.Queue(QueueDefault)), nil
}
