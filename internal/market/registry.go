package market

import (
	"sort"
	"sync"

	"synth-exchange/internal/errors"
	"synth-exchange/internal/models"
)

// entry guards one stock. mu must be held to read or mutate stock.
type entry struct {
	mu      sync.Mutex
	stock   *models.Stock
	removed bool
}

// Registry is the in-memory set of live stocks.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Add registers s. It fails with ErrStockExists when the ticker is taken.
func (r *Registry) Add(s *models.Stock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[s.Ticker]; ok {
		return errors.ErrStockExists
	}
	r.entries[s.Ticker] = &entry{stock: s}
	return nil
}

// Remove drops ticker and returns its entry. The caller marks it removed
// under the entry lock so in-flight holders can notice.
func (r *Registry) Remove(ticker string) (*entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[ticker]
	if ok {
		delete(r.entries, ticker)
	}
	return e, ok
}

func (r *Registry) get(ticker string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[ticker]
	return e, ok
}

// Has reports whether ticker is registered.
func (r *Registry) Has(ticker string) bool {
	_, ok := r.get(ticker)
	return ok
}

// Len returns the number of registered stocks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Tickers returns the registered tickers in order.
func (r *Registry) Tickers() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.entries))
	for t := range r.entries {
		out = append(out, t)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// snapshot returns the entries ordered by ticker.
func (r *Registry) snapshot() []*entry {
	r.mu.RLock()
	out := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].stock.Ticker < out[j].stock.Ticker })
	return out
}
