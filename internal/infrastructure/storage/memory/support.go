package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/id"
	"stockledger/internal/core/numerator"
	"stockledger/internal/domain/documents/count"
)

// Numerator implements numerator.Generator over the store.
// Every strategy behaves strictly: there is no range to lose on restart.
type Numerator struct {
	s *Store
}

var _ numerator.Generator = (*Numerator)(nil)

func (n *Numerator) GetNextNumber(ctx context.Context, cfg numerator.Config, _ *numerator.Options, period time.Time) (string, error) {
	var next int64
	err := n.s.write(ctx, func(st *state) error {
		key := cfg.Key(period)
		st.sequences[key]++
		next = st.sequences[key]
		return nil
	})
	if err != nil {
		return "", err
	}
	return cfg.Format(period, next), nil
}

// AuditRecord is one entry of the in-memory audit log.
type AuditRecord struct {
	EntityType string
	EntityID   id.ID
	Action     string
	UserID     string
	Changes    map[string]any
	CreatedAt  time.Time
}

// AuditLog keeps audit entries in memory.
type AuditLog struct {
	s *Store
}

// LogChange records an entity change.
func (a *AuditLog) LogChange(ctx context.Context, entityType string, entityID id.ID, action string, changes map[string]any) error {
	rec := AuditRecord{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		UserID:     appctx.GetUserID(ctx),
		Changes:    changes,
		CreatedAt:  time.Now().UTC(),
	}
	return a.s.write(ctx, func(st *state) error {
		st.audit = append(st.audit, rec)
		return nil
	})
}

// History returns the entries of one entity, newest first.
func (a *AuditLog) History(_ context.Context, entityType string, entityID id.ID, limit int) ([]count.AuditEntry, error) {
	var out []count.AuditEntry
	var err error
	a.s.read(func(st *state) {
		for i := len(st.audit) - 1; i >= 0 && len(out) < limit; i-- {
			rec := st.audit[i]
			if rec.EntityType != entityType || rec.EntityID != entityID {
				continue
			}
			var raw []byte
			if raw, err = json.Marshal(rec.Changes); err != nil {
				return
			}
			out = append(out, count.AuditEntry{
				Action:    rec.Action,
				UserID:    rec.UserID,
				Changes:   raw,
				CreatedAt: rec.CreatedAt,
			})
		}
	})
	if err != nil {
		return nil, fmt.Errorf("marshal audit changes: %w", err)
	}
	return out, nil
}
