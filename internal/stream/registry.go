package stream

import (
	"sync"
	"time"

	"github.com/algo-trading/tastytrade/internal/domain"
)

// Subscription is one symbol's live-data intent. Owned by the Registry;
// callers get copies or short-lived pointers and must not mutate.
type Subscription struct {
	Symbol       domain.Symbol
	VenueSymbol  string
	TimeZone     *time.Location
	TickTypes    []domain.TickType
	SubscribedAt time.Time
}

// Registry maps canonical symbols to their subscriptions and indexes them by
// venue symbol for the receive path. All operations are goroutine-safe.
type Registry struct {
	mu      sync.RWMutex
	byKey   map[string]*Subscription // canonical symbol key
	byVenue map[string]*Subscription // venue symbol
}

func NewRegistry() *Registry {
	return &Registry{
		byKey:   make(map[string]*Subscription),
		byVenue: make(map[string]*Subscription),
	}
}

// Add registers a subscription. Re-adding the same canonical symbol updates
// its metadata in place rather than duplicating; the returned flag reports
// whether the symbol was already present.
func (r *Registry) Add(symbol domain.Symbol, venueSymbol string, tz *time.Location, tickTypes []domain.TickType) (*Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := symbol.Key()
	if existing, ok := r.byKey[key]; ok {
		if existing.VenueSymbol != venueSymbol {
			delete(r.byVenue, existing.VenueSymbol)
			existing.VenueSymbol = venueSymbol
			r.byVenue[venueSymbol] = existing
		}
		existing.TimeZone = tz
		existing.TickTypes = tickTypes
		return existing, true
	}

	sub := &Subscription{
		Symbol:       symbol,
		VenueSymbol:  venueSymbol,
		TimeZone:     tz,
		TickTypes:    tickTypes,
		SubscribedAt: time.Now(),
	}
	r.byKey[key] = sub
	r.byVenue[venueSymbol] = sub
	return sub, false
}

// Remove drops the subscription for a canonical symbol. Removing an unknown
// symbol is a no-op.
func (r *Registry) Remove(symbol domain.Symbol) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := symbol.Key()
	sub, ok := r.byKey[key]
	if !ok {
		return false
	}
	delete(r.byKey, key)
	delete(r.byVenue, sub.VenueSymbol)
	return true
}

// Lookup resolves an inbound venue symbol to its subscription. A miss is
// expected under concurrent unsubscribe and the in-flight message is
// silently dropped by the caller.
func (r *Registry) Lookup(venueSymbol string) (*Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.byVenue[venueSymbol]
	return sub, ok
}

func (r *Registry) Get(symbol domain.Symbol) (*Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.byKey[symbol.Key()]
	return sub, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey)
}

// Symbols returns a snapshot of the subscribed canonical symbols.
func (r *Registry) Symbols() []domain.Symbol {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Symbol, 0, len(r.byKey))
	for _, sub := range r.byKey {
		out = append(out, sub.Symbol)
	}
	return out
}
