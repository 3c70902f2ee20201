package gating

import (
	"hash/fnv"
	"sync"
)

// symbolStripeCount is the lock-striping cardinality spec §9 calls "a
// small constant (e.g., 16)".
const symbolStripeCount = 16

// SymbolLocks serializes gating+persist for a given symbol (spec §4.4,
// §5): held from "begin gating" to "admission persisted and added to
// tracker" or "rejection snapshot persisted". Striping by hash keeps
// memory bounded regardless of how many distinct symbols are ever seen.
type SymbolLocks struct {
	stripes [symbolStripeCount]sync.Mutex
}

// NewSymbolLocks builds an empty striped lock set.
func NewSymbolLocks() *SymbolLocks {
	return &SymbolLocks{}
}

func (s *SymbolLocks) stripe(symbol string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(symbol))
	return &s.stripes[h.Sum32()%symbolStripeCount]
}

// Lock acquires the stripe for symbol.
func (s *SymbolLocks) Lock(symbol string) {
	s.stripe(symbol).Lock()
}

// Unlock releases the stripe for symbol.
func (s *SymbolLocks) Unlock(symbol string) {
	s.stripe(symbol).Unlock()
}
