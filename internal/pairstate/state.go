// Package pairstate owns the single record of which pair is active.
package pairstate

import (
	"sync"

	"tradedash/internal/market"
	"tradedash/models"
)

// State is the process-lifetime holder of the active pair. Readers get value
// snapshots; only the coordinator mutates it.
type State struct {
	mu             sync.RWMutex
	base           string
	quote          string
	userOverride   bool
	pricePrecision int
}

// New creates the state with no base selected.
func New(quote string) *State {
	return &State{
		quote:          models.CanonicalCode(quote),
		pricePrecision: market.DefaultPrecision,
	}
}

func (s *State) Snapshot() models.PairSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.PairSnapshot{
		Pair:           models.Pair{Base: s.base, Quote: s.quote},
		UserOverride:   s.userOverride,
		PricePrecision: s.pricePrecision,
	}
}

func (s *State) Pair() models.Pair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.Pair{Base: s.base, Quote: s.quote}
}

// Is reports whether p is still the active pair.
func (s *State) Is(p models.Pair) bool {
	return s.Pair() == p
}

// Set replaces the active pair. override marks a human choice of base and is
// sticky: it is never cleared once set.
func (s *State) Set(p models.Pair, override bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Base != s.base || p.Quote != s.quote {
		s.pricePrecision = market.DefaultPrecision
	}
	s.base = p.Base
	s.quote = p.Quote
	if override {
		s.userOverride = true
	}
}

// SetPrecisionFor stores the precision derived for pair p. The write is
// discarded when p is no longer active.
func (s *State) SetPrecisionFor(p models.Pair, precision int) bool {
	if precision < 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.base != p.Base || s.quote != p.Quote {
		return false
	}
	s.pricePrecision = precision
	return true
}

// PickFromCurrencies returns the base a freshly loaded currency list implies.
// A user-chosen base is never replaced; otherwise an empty or unlisted base
// becomes the first entry. changed is false when nothing should happen.
func (s *State) PickFromCurrencies(codes []string) (base string, changed bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.userOverride || len(codes) == 0 {
		return s.base, false
	}
	for _, c := range codes {
		if c == s.base && s.base != "" {
			return s.base, false
		}
	}
	return codes[0], true
}
