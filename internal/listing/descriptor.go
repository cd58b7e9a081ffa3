package listing

import (
	"fmt"
	"sync"
)

// Descriptor is a subscription's poll contract: which community, which
// category, and (for every category but Random) the pagination cursor
// state. Random carries no pagination; every other category must.
type Descriptor struct {
	Community  Community
	Category   Category
	Pagination *Pagination // nil iff Category.Paginates() == false
}

// NewDescriptor validates the random/pagination invariant and builds a
// Descriptor. limit is ignored for Random categories.
func NewDescriptor(community Community, category Category, dir Direction, limit int) (Descriptor, error) {
	if !category.Paginates() {
		return Descriptor{Community: community, Category: category}, nil
	}
	pg, err := NewPagination(dir, limit)
	if err != nil {
		return Descriptor{}, err
	}
	return Descriptor{Community: community, Category: category, Pagination: pg}, nil
}

// Guarded wraps a Descriptor in a mutex so a Subscription Poller can mutate
// it while other callers (e.g. Aggregator.AddListing via Snapshot) read it
// concurrently. The poller holds the lock across a single retrieve call;
// no holder sleeps or performs a channel operation while holding it.
type Guarded struct {
	mu   sync.Mutex
	desc Descriptor
}

// NewGuarded wraps a Descriptor for shared, mutex-protected access.
func NewGuarded(desc Descriptor) *Guarded {
	return &Guarded{desc: desc}
}

// With runs fn with the descriptor locked, for a single critical section.
// fn must not sleep or perform channel operations; a single retrieve call
// is the only I/O the poller makes under the lock.
func (g *Guarded) With(fn func(*Descriptor)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(&g.desc)
}

// Snapshot returns a shallow copy of the current descriptor's community and
// category — safe for logging without holding the lock across a slow call.
func (g *Guarded) Snapshot() (Community, Category) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.desc.Community, g.desc.Category
}

// String renders a human-readable label, e.g. "art/new", for logging.
func (d Descriptor) String() string {
	return fmt.Sprintf("%s/%s", d.Community.Name(), d.Category.PersistTag())
}
