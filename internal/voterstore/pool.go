package voterstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/securevote/backend/internal/facematch"
)

// Pool is the process-scoped in-memory view of all registered templates,
// warmed from the Store at startup and appended to on every successful
// registration. Readers always work on a snapshot so an authentication scan
// never observes a partially applied append.
type Pool struct {
	mu sync.RWMutex

	// entries is the flattened authentication pool: every template of
	// every voter, in registration order.
	entries []facematch.Entry

	// registry holds one representative template per voter (the first one
	// registered), in registration order, for the duplicate scan.
	registry []facematch.Entry

	neighbors *NeighborIndex
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{}
}

// Warmup replaces the pool contents with everything the store holds.
func (p *Pool) Warmup(ctx context.Context, store Store) error {
	voters, err := store.LoadAllTemplates(ctx)
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}

	entries := make([]facematch.Entry, 0, len(voters))
	registry := make([]facematch.Entry, 0, len(voters))
	for _, v := range voters {
		for i, tmpl := range v.Templates {
			entries = append(entries, facematch.Entry{Name: v.Name, Template: tmpl})
			if i == 0 {
				registry = append(registry, facematch.Entry{Name: v.Name, Template: tmpl})
			}
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = entries
	p.registry = registry
	if p.neighbors != nil {
		if err := p.neighbors.rebuild(registry); err != nil {
			return fmt.Errorf("rebuilding neighbor index: %w", err)
		}
	}
	return nil
}

// Append adds a freshly registered voter's first template. Called after the
// store acknowledged the registration, so the pool never leads durable state.
func (p *Pool) Append(name string, template []float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, facematch.Entry{Name: name, Template: template})
	p.registry = append(p.registry, facematch.Entry{Name: name, Template: template})
	if p.neighbors != nil {
		p.neighbors.add(name, template)
	}
}

// Snapshot returns a copy of the flattened authentication pool. The entry
// slice headers are copied; templates are immutable by contract so sharing
// the backing arrays is safe.
func (p *Pool) Snapshot() []facematch.Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]facematch.Entry, len(p.entries))
	copy(out, p.entries)
	return out
}

// Registry returns a copy of the per-voter representative registry in
// registration order.
func (p *Pool) Registry() []facematch.Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]facematch.Entry, len(p.registry))
	copy(out, p.registry)
	return out
}

// Size returns the number of templates in the authentication pool.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// Voters returns the number of registered voters in the pool.
func (p *Pool) Voters() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.registry)
}

// EnableNeighborIndex attaches an HNSW index over the representative
// registry for the operator similar-voters diagnostic. Must be called
// before Warmup.
func (p *Pool) EnableNeighborIndex() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.neighbors = NewNeighborIndex()
}

// Nearest returns up to k approximate nearest registered voters for probe.
// Returns nil when the neighbor index is not enabled.
func (p *Pool) Nearest(probe []float32, k int) []Neighbor {
	p.mu.RLock()
	idx := p.neighbors
	p.mu.RUnlock()
	if idx == nil {
		return nil
	}
	return idx.search(probe, k)
}
