// Package dedup implements the bounded FIFO membership set each
// Subscription Poller uses to compute the delta between polls.
package dedup

import "github.com/listingbot/listingbot/internal/model"

// Buffer is a bounded FIFO of Items with a companion membership set keyed
// by ID. It is owned exclusively by a single poller and is never shared
// across goroutines.
type Buffer struct {
	order []string
	set   map[string]model.Item
	cap   int
}

// New builds a Buffer with the given capacity. Capacity 0 is a programming
// error — every poller configures a fixed, non-zero size — so New panics
// rather than silently degrading to an unbounded buffer.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		panic("dedup: buffer capacity must be > 0")
	}
	return &Buffer{
		order: make([]string, 0, capacity),
		set:   make(map[string]model.Item, capacity),
		cap:   capacity,
	}
}

// Insert appends item, evicting the oldest resident first if at capacity.
func (b *Buffer) Insert(item model.Item) {
	if _, exists := b.set[item.ID]; exists {
		return
	}
	if len(b.order) >= b.cap {
		oldest := b.order[0]
		b.order = b.order[1:]
		delete(b.set, oldest)
	}
	b.order = append(b.order, item.ID)
	b.set[item.ID] = item
}

// Contains reports whether id is currently resident.
func (b *Buffer) Contains(id string) bool {
	_, ok := b.set[id]
	return ok
}

// Difference returns the subsequence of items not currently resident,
// preserving input order.
func (b *Buffer) Difference(items []model.Item) []model.Item {
	out := make([]model.Item, 0, len(items))
	for _, it := range items {
		if !b.Contains(it.ID) {
			out = append(out, it)
		}
	}
	return out
}

// Len reports the number of items currently resident.
func (b *Buffer) Len() int { return len(b.order) }
