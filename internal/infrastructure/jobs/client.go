package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/registers/stock"
	"stockledger/pkg/logger"
)

// enqueuer is the part of *asynq.Client the ledger uses.
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Client hands item cache syncs to the worker.
type Client struct {
	queue      enqueuer
	uniqueness time.Duration
}

var _ stock.ItemSyncer = (*Client)(nil)

// NewClient constructs a client on the given Redis connection.
// Syncs of the same item within the uniqueness window are collapsed.
func NewClient(redisOpts asynq.RedisClientOpt, uniqueness time.Duration) *Client {
	return &Client{queue: asynq.NewClient(redisOpts), uniqueness: uniqueness}
}

// ScheduleSync enqueues one task per item. A task already pending for an
// item absorbs the new request.
func (c *Client) ScheduleSync(ctx context.Context, itemIDs ...id.ID) error {
	var errs []error
	for _, itemID := range itemIDs {
		task, err := NewItemSyncTask(itemID)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		var opts []asynq.Option
		if c.uniqueness > 0 {
			opts = append(opts, asynq.Unique(c.uniqueness))
		}
		_, err = c.queue.EnqueueContext(ctx, task, opts...)
		switch {
		case errors.Is(err, asynq.ErrDuplicateTask):
			logger.Debug(ctx, "item sync already queued", "item_id", itemID)
		case err != nil:
			errs = append(errs, fmt.Errorf("enqueue sync for item %s: %w", itemID, err))
		}
	}
	return errors.Join(errs...)
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.queue.Close()
}
