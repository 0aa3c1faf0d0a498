// Package count provides the inventory count document: a physical stocktake of
// one warehouse that is reconciled against the live ledger balance on approval.
package count

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// Status represents the status of an inventory count.
type Status string

const (
	StatusDraft            Status = "draft"
	StatusCounting         Status = "counting"
	StatusReadyForApproval Status = "ready_for_approval"
	StatusApproved         Status = "approved"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusCounting, StatusReadyForApproval, StatusApproved:
		return true
	}
	return false
}

// Count is the header of an inventory count.
type Count struct {
	ID          id.ID  `db:"id" json:"id"`
	CountNumber string `db:"count_number" json:"countNumber"`
	WarehouseID id.ID  `db:"warehouse_id" json:"warehouseId"`
	Status      Status `db:"status" json:"status"`
	Notes       string `db:"notes" json:"notes,omitempty"`

	CreatedDate time.Time `db:"created_date" json:"createdDate"`
	CreatedBy   string    `db:"created_by" json:"createdBy"`

	ApprovedBy   *string    `db:"approved_by" json:"approvedBy,omitempty"`
	ApprovedDate *time.Time `db:"approved_date" json:"approvedDate,omitempty"`

	// Aggregates, set on approval
	CountedItems     int         `db:"counted_items" json:"countedItems"`
	Discrepancies    int         `db:"discrepancies" json:"discrepancies"`
	DiscrepancyValue types.Money `db:"discrepancy_value" json:"discrepancyValue"`

	Version int64 `db:"version" json:"-"`

	Items []Item `db:"-" json:"items,omitempty"`
}

// Item is one line of the count sheet.
type Item struct {
	CountID     id.ID `db:"count_id" json:"countId"`
	ItemID      id.ID `db:"item_id" json:"itemId"`
	WarehouseID id.ID `db:"warehouse_id" json:"warehouseId"`

	// SystemQuantity is the balance when the line was created. Informational only.
	SystemQuantity types.Quantity `db:"system_quantity" json:"systemQuantity"`

	CountedQuantity *types.Quantity `db:"counted_quantity" json:"countedQuantity"`

	// Written once on approval from the live balance.
	SystemQuantityAtFinalization *types.Quantity `db:"system_quantity_at_finalization" json:"systemQuantityAtFinalization"`
	Discrepancy                  *types.Quantity `db:"discrepancy" json:"discrepancy"`

	UnitPrice types.Money `db:"unit_price" json:"unitPrice"`

	CountedBy *string    `db:"counted_by" json:"countedBy,omitempty"`
	CountedAt *time.Time `db:"counted_at" json:"countedAt,omitempty"`
}

// NewCount creates a draft count for a warehouse.
func NewCount(warehouseID id.ID, createdBy string, now time.Time) *Count {
	return &Count{
		ID:               id.New(),
		WarehouseID:      warehouseID,
		Status:           StatusDraft,
		CreatedDate:      now,
		CreatedBy:        createdBy,
		DiscrepancyValue: decimal.Zero,
	}
}

// NewItem creates a sheet line from a balance snapshot.
func NewItem(countID, itemID, warehouseID id.ID, snapshot types.Quantity, unitPrice types.Money) Item {
	return Item{
		CountID:        countID,
		ItemID:         itemID,
		WarehouseID:    warehouseID,
		SystemQuantity: snapshot,
		UnitPrice:      unitPrice,
	}
}

// Start transitions draft -> counting.
func (c *Count) Start() error {
	if c.Status != StatusDraft {
		return apperror.NewBusinessRule(apperror.CodeInvalidStatus, "count can only be started from draft").
			WithDetail("countId", c.ID).
			WithDetail("status", string(c.Status))
	}
	c.Status = StatusCounting
	return nil
}

// MarkReady transitions counting -> ready_for_approval.
func (c *Count) MarkReady() error {
	if c.Status != StatusCounting {
		return apperror.NewBusinessRule(apperror.CodeInvalidStatus, "only a count in progress can be marked ready").
			WithDetail("countId", c.ID).
			WithDetail("status", string(c.Status))
	}
	c.Status = StatusReadyForApproval
	return nil
}

// CheckEditable returns CountNotEditable unless counts may still be recorded.
func (c *Count) CheckEditable() error {
	if c.Status != StatusDraft && c.Status != StatusCounting {
		return apperror.NewCountNotEditable(c.ID, string(c.Status))
	}
	return nil
}

// CheckApprovable validates the approval preconditions in order:
// already approved, wrong status, uncounted lines.
func (c *Count) CheckApprovable(items []Item) error {
	if c.Status == StatusApproved {
		return apperror.NewCountAlreadyApproved(c.ID)
	}
	if c.Status != StatusCounting && c.Status != StatusReadyForApproval {
		return apperror.NewCountNotReady(c.ID, string(c.Status))
	}

	var missing []string
	for _, it := range items {
		if it.CountedQuantity == nil {
			missing = append(missing, it.ItemID.String())
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return apperror.NewCountIncomplete(c.ID, missing)
	}
	return nil
}

// Approve stamps the header as approved with the sheet aggregates.
func (c *Count) Approve(approvedBy string, at time.Time, items []Item) {
	c.Status = StatusApproved
	c.ApprovedBy = &approvedBy
	c.ApprovedDate = &at
	c.CountedItems, c.Discrepancies, c.DiscrepancyValue = Summarize(items)
}

// Summarize returns the number of counted lines, lines with a non-zero
// finalized discrepancy and the value of those discrepancies.
func Summarize(items []Item) (counted, discrepancies int, value types.Money) {
	value = decimal.Zero
	for _, it := range items {
		if it.CountedQuantity != nil {
			counted++
		}
		if it.Discrepancy != nil && !it.Discrepancy.IsZero() {
			discrepancies++
			value = value.Add(it.Discrepancy.Value(it.UnitPrice))
		}
	}
	return counted, discrepancies, value
}

// SetCounted records the counted quantity.
func (i *Item) SetCounted(qty types.Quantity, countedBy string, at time.Time) error {
	if qty.IsNegative() {
		return apperror.NewValidation("counted quantity must not be negative").
			WithDetail("itemId", i.ItemID).
			WithDetail("countedQuantity", qty.String())
	}
	i.CountedQuantity = &qty
	i.CountedBy = &countedBy
	i.CountedAt = &at
	return nil
}

// IsFinalized reports whether the line was already reconciled by an approval.
func (i *Item) IsFinalized() bool {
	return i.SystemQuantityAtFinalization != nil
}

// Finalize reconciles the counted quantity against the live balance
// and returns the discrepancy. CountedQuantity must be set.
func (i *Item) Finalize(live types.Quantity) types.Quantity {
	disc := *i.CountedQuantity - live
	i.SystemQuantityAtFinalization = &live
	i.Discrepancy = &disc
	return disc
}
