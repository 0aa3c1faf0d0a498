package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/entity"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.MovementRecorded(entity.MovementPurchaseIn)
	m.MovementRecorded(entity.MovementPurchaseIn)
	m.MovementRejected("NEGATIVE_STOCK")
	m.ConflictRetried()
	m.ApprovalFinished("approved")
	m.AdjustmentPosted(entity.MovementAdjustmentDecrement)
	m.JobFinished("itemcache:sync", "success", 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.movements.WithLabelValues("PURCHASE_IN")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejections.WithLabelValues("NEGATIVE_STOCK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.approvals.WithLabelValues("approved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.adjustments.WithLabelValues("ADJUSTMENT_DECREMENT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("itemcache:sync", "success")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.jobDuration))
}

func TestNew_DoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)
}
