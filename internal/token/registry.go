package token

import (
	"sync"
	"time"
)

type record struct {
	remaining int
	expiry    time.Time
}

// Registry tracks use counts for tokens registered as limited. Tokens it has
// never seen are unrestricted; a registered token keeps its (possibly zero)
// remaining count until the expiry sweep removes it, so a spent token stays
// rejected for its whole lifetime.
type Registry struct {
	mu      sync.Mutex
	records map[string]*record
}

func NewRegistry() *Registry {
	return &Registry{records: make(map[string]*record)}
}

func (r *Registry) RegisterLimited(tok string, expiry time.Time, maxUses int) {
	if maxUses < 1 {
		maxUses = 1
	}
	r.mu.Lock()
	r.records[tok] = &record{remaining: maxUses, expiry: expiry}
	r.mu.Unlock()
}

// TryConsume burns one use. The check-and-decrement happens under one lock,
// so two racing requests cannot both succeed on a last remaining use.
func (r *Registry) TryConsume(tok string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[tok]
	if !ok {
		return true
	}
	if rec.remaining <= 0 {
		return false
	}
	rec.remaining--
	return true
}

// Sweep drops records whose token has expired and returns how many it removed.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for tok, rec := range r.records {
		if now.After(rec.expiry) {
			delete(r.records, tok)
			n++
		}
	}
	return n
}
