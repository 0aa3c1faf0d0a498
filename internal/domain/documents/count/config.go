package count

import "stockledger/internal/core/numerator"

const (
	// NumeratorPrefix is the count number prefix (CNT-2026-00001).
	NumeratorPrefix = "CNT"

	// NumeratorStrategy keeps count numbers gapless.
	NumeratorStrategy = numerator.StrategyStrict

	// DocumentType is recorded on the adjustment movements an approval posts.
	DocumentType = "inventory_count"

	// AuditEntityType names counts in the audit log.
	AuditEntityType = "inventory_count"
)
