package count

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

func counted(t *testing.T, it Item, qty int64) Item {
	t.Helper()
	require.NoError(t, it.SetCounted(types.NewQuantity(qty), "alice", time.Now()))
	return it
}

func TestCount_StatusTransitions(t *testing.T) {
	c := NewCount(id.New(), "alice", time.Now())
	assert.Equal(t, StatusDraft, c.Status)

	err := c.MarkReady()
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidStatus))

	require.NoError(t, c.Start())
	assert.Equal(t, StatusCounting, c.Status)
	require.NoError(t, c.CheckEditable())

	err = c.Start()
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidStatus))

	require.NoError(t, c.MarkReady())
	assert.Equal(t, StatusReadyForApproval, c.Status)
	assert.True(t, apperror.IsCode(c.CheckEditable(), apperror.CodeCountNotEditable))
}

func TestCount_CheckApprovable(t *testing.T) {
	whID := id.New()
	c := NewCount(whID, "alice", time.Now())
	a := NewItem(c.ID, id.New(), whID, types.NewQuantity(1), types.MustMoney("1"))
	b := NewItem(c.ID, id.New(), whID, types.NewQuantity(1), types.MustMoney("1"))

	err := c.CheckApprovable(nil)
	assert.True(t, apperror.IsCode(err, apperror.CodeCountNotReady), "draft")

	c.Status = StatusCounting
	err = c.CheckApprovable([]Item{a, b})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeCountIncomplete))
	appErr, _ := apperror.AsAppError(err)
	assert.Len(t, appErr.Details["missing_items"], 2)

	require.NoError(t, c.CheckApprovable([]Item{counted(t, a, 1), counted(t, b, 0)}))

	c.Status = StatusReadyForApproval
	require.NoError(t, c.CheckApprovable(nil), "an empty sheet is approvable")

	c.Status = StatusApproved
	err = c.CheckApprovable([]Item{a})
	assert.True(t, apperror.IsCode(err, apperror.CodeCountAlreadyApproved), "already approved wins over incomplete")
}

func TestItem_SetCountedRejectsNegative(t *testing.T) {
	it := NewItem(id.New(), id.New(), id.New(), 0, types.MustMoney("1"))
	err := it.SetCounted(types.NewQuantity(-1), "alice", time.Now())
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
	assert.Nil(t, it.CountedQuantity)
}

func TestItem_FinalizeUsesLiveBalance(t *testing.T) {
	it := NewItem(id.New(), id.New(), id.New(), types.NewQuantity(100), types.MustMoney("2"))
	it = counted(t, it, 130)

	disc := it.Finalize(types.NewQuantity(120))

	assert.Equal(t, types.NewQuantity(10), disc)
	assert.True(t, it.IsFinalized())
	assert.Equal(t, types.NewQuantity(120), *it.SystemQuantityAtFinalization)
	assert.Equal(t, types.NewQuantity(100), it.SystemQuantity, "snapshot is informational and unchanged")
}

func TestSummarize(t *testing.T) {
	c := NewCount(id.New(), "alice", time.Now())
	over := counted(t, NewItem(c.ID, id.New(), c.WarehouseID, 0, types.MustMoney("2.5")), 14)
	over.Finalize(types.NewQuantity(10))
	short := counted(t, NewItem(c.ID, id.New(), c.WarehouseID, 0, types.MustMoney("10")), 1)
	short.Finalize(types.NewQuantity(3))
	exact := counted(t, NewItem(c.ID, id.New(), c.WarehouseID, 0, types.MustMoney("7")), 5)
	exact.Finalize(types.NewQuantity(5))
	uncounted := NewItem(c.ID, id.New(), c.WarehouseID, 0, types.MustMoney("1"))

	n, discrepancies, value := Summarize([]Item{over, short, exact, uncounted})

	assert.Equal(t, 3, n)
	assert.Equal(t, 2, discrepancies)
	// 4×2.5 - 2×10
	assert.True(t, types.MustMoney("-10").Equal(value), value.String())
}
