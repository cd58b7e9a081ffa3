package listing

import "github.com/listingbot/listingbot/internal/model"

// Direction determines whether the next request anchors "after" the last
// seen item (Forward, crawling older items) or "before" the first seen item
// (Back, crawling newer items than the cursor).
type Direction int

const (
	Forward Direction = iota
	Back
)

// Pagination holds the cursor state for one non-random Descriptor. The
// anchor cache is never empty during a steady-state poll; it is seeded with
// a single sentinel Item.
type Pagination struct {
	direction  Direction
	limit      int
	seenCount  int
	showRules  string
	anchor     []model.Item // source order (newest-first); see UpdateAnchor
}

// DefaultLimit and DefaultShowRules are the default page size and display
// rule applied to a freshly constructed subscription.
const (
	DefaultLimit     = 5
	DefaultShowRules = "null"
)

// NewPagination builds a Pagination seeded with the sentinel anchor.
func NewPagination(dir Direction, limit int) (*Pagination, error) {
	if limit < 1 || limit > 100 {
		return nil, errLimitRange(limit)
	}
	return &Pagination{
		direction: dir,
		limit:     limit,
		seenCount: 0,
		showRules: DefaultShowRules,
		anchor:    []model.Item{model.Empty()},
	}, nil
}

func (p *Pagination) Direction() Direction { return p.direction }
func (p *Pagination) Limit() int           { return p.limit }
func (p *Pagination) SeenCount() int       { return p.seenCount }
func (p *Pagination) ShowRules() string    { return p.showRules }

// AnchorLen reports the number of items currently resident in the anchor
// cache. Non-random descriptors hold this above zero after the first
// successful retrieve.
func (p *Pagination) AnchorLen() int { return len(p.anchor) }

// CursorID is the ID used in the next request's after=/before= anchor.
// Forward reads the last element of the cache; Back reads the first.
// An empty string means "null" (no real item seen yet).
func (p *Pagination) CursorID() string {
	if len(p.anchor) == 0 {
		return ""
	}
	switch p.direction {
	case Forward:
		return p.anchor[len(p.anchor)-1].ID
	default:
		return p.anchor[0].ID
	}
}

// UpdateAnchor replaces the cache with a freshly retrieved, non-empty page.
// items are in source order (newest-first), so the cache ends up ending
// with the oldest item in the page regardless of direction — CursorID
// reads from whichever end each direction needs. A zero-length page
// leaves the cache unchanged.
func (p *Pagination) UpdateAnchor(items []model.Item) {
	if len(items) == 0 {
		return
	}
	next := make([]model.Item, len(items))
	copy(next, items)
	p.anchor = next
}

// ResetAnchor seeds the cache back to the sentinel — used by the poller's
// forward-direction timeout recovery.
func (p *Pagination) ResetAnchor() {
	p.anchor = []model.Item{model.Empty()}
}
