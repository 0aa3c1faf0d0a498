// Package memory provides an in-process implementation of every ledger
// repository and of tx.Manager. Transactions are serialized by a store-wide
// lock and rolled back by restoring a snapshot, so the ledger invariants hold
// exactly as they do on Postgres. Reads outside a transaction may observe
// writes of a transaction that is still running.
package memory

import (
	"context"
	"maps"
	"sync"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain/catalogs/item"
	"stockledger/internal/domain/catalogs/warehouse"
	"stockledger/internal/domain/documents/count"
)

type partition struct {
	itemID      id.ID
	warehouseID id.ID
}

type state struct {
	items      map[id.ID]item.Item
	warehouses map[id.ID]warehouse.Warehouse

	movements []entity.StockMovement
	balances  map[partition]entity.StockBalance
	layers    map[id.ID]entity.FIFOLayer

	counts     map[id.ID]count.Count
	countItems map[id.ID]map[id.ID]count.Item

	sequences map[string]int64
	audit     []AuditRecord
}

func newState() state {
	return state{
		items:      make(map[id.ID]item.Item),
		warehouses: make(map[id.ID]warehouse.Warehouse),
		balances:   make(map[partition]entity.StockBalance),
		layers:     make(map[id.ID]entity.FIFOLayer),
		counts:     make(map[id.ID]count.Count),
		countItems: make(map[id.ID]map[id.ID]count.Item),
		sequences:  make(map[string]int64),
	}
}

// clone copies everything a transaction may change. Movements and audit
// records are append-only, so keeping the slice length is enough.
func (st *state) clone() state {
	countItems := make(map[id.ID]map[id.ID]count.Item, len(st.countItems))
	for k, v := range st.countItems {
		countItems[k] = maps.Clone(v)
	}
	return state{
		items:      maps.Clone(st.items),
		warehouses: maps.Clone(st.warehouses),
		movements:  st.movements[:len(st.movements):len(st.movements)],
		balances:   maps.Clone(st.balances),
		layers:     maps.Clone(st.layers),
		counts:     maps.Clone(st.counts),
		countItems: countItems,
		sequences:  maps.Clone(st.sequences),
		audit:      st.audit[:len(st.audit):len(st.audit)],
	}
}

// Store holds all ledger state in memory.
type Store struct {
	// txMu serializes transactions and autocommit writes
	txMu sync.Mutex
	// mu guards st
	mu sync.RWMutex
	st state
}

var _ tx.Manager = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{st: newState()}
}

type txKey struct{}

// RunInTransaction implements tx.Manager.
// Nested calls join the transaction already carried by ctx.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if s.InTransaction(ctx) {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.st.clone()
	s.mu.RUnlock()

	defer func() {
		if p := recover(); p != nil {
			s.restore(snapshot)
			panic(p)
		}
		if err != nil {
			s.restore(snapshot)
		}
	}()

	return fn(context.WithValue(ctx, txKey{}, s))
}

// InTransaction implements tx.Manager.
func (s *Store) InTransaction(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// Ping reports readiness. The memory store is always ready.
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) restore(snapshot state) {
	s.mu.Lock()
	s.st = snapshot
	s.mu.Unlock()
}

// write applies fn to the state. Outside a transaction the write is
// serialized with running transactions so a rollback cannot undo it.
// fn must check its preconditions before mutating anything.
func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	if !s.InTransaction(ctx) {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&s.st)
}

func (s *Store) read(fn func(st *state)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(&s.st)
}

// Repository views over the store.

func (s *Store) Stock() *StockRepo { return &StockRepo{s: s} }
func (s *Store) Items() *ItemRepo { return &ItemRepo{s: s} }
func (s *Store) Warehouses() *WarehouseRepo { return &WarehouseRepo{s: s} }
func (s *Store) Counts() *CountRepo { return &CountRepo{s: s} }
func (s *Store) Numerator() *Numerator { return &Numerator{s: s} }
func (s *Store) Audit() *AuditLog { return &AuditLog{s: s} }
