// Package poller runs one long-lived polling loop per subscription,
// owning the adaptive-backoff state machine and emitting newly observed
// items into a shared outbound channel.
package poller

import (
	"context"
	"log"
	"time"

	"github.com/listingbot/listingbot/internal/dedup"
	"github.com/listingbot/listingbot/internal/listing"
	"github.com/listingbot/listingbot/internal/model"
)

const (
	bufferCapacity     = 100
	syncIntervalStart  = 1
	syncIntervalMax    = 32
	timeoutErrorSleep  = 10 * time.Second
	timeoutTripAt      = 2
)

// Retriever is the subset of the Listing Source Adapter a poller needs.
// Satisfied by *social.Adapter.
type Retriever interface {
	Retrieve(ctx context.Context, desc *listing.Descriptor) ([]model.Item, error)
}

// Predicate is an optional filter hook. No built-in predicate is shipped;
// callers may veto emission of an item after the dedup delta and before
// the send.
type Predicate func(model.Item) bool

// Status is a snapshot of one poller's adaptive-backoff state, published
// after every cycle so an operator-facing surface can report live wait
// intervals without reaching into the poller itself.
type Status struct {
	Community    string `json:"community"`
	SyncInterval int    `json:"sync_interval"`
	TimeoutCount int    `json:"timeout_count"`
}

// StatusSink receives the current Status after every poll cycle.
type StatusSink func(Status)

// Option configures a Poller at construction time.
type Option func(*Poller)

// WithPredicate installs a veto hook run on every delta item before it is
// emitted. A nil predicate (the default) admits everything.
func WithPredicate(p Predicate) Option {
	return func(pl *Poller) { pl.predicate = p }
}

// WithStatusSink installs a hook invoked with this poller's backoff state
// after every cycle. A nil sink (the default) is a no-op.
func WithStatusSink(sink StatusSink) Option {
	return func(pl *Poller) { pl.statusSink = sink }
}

// Poller drives adaptive polling of one Listing Descriptor and emits newly
// observed items on out. Call Run in its own goroutine; it returns when ctx
// is canceled or when the descriptor's direction is Back and the source is
// exhausted. A send on out blocks until a receiver takes the item or ctx
// is canceled; a send on a closed out panics.
type Poller struct {
	api        Retriever
	desc       *listing.Guarded
	out        chan<- model.Item
	buf        *dedup.Buffer
	predicate  Predicate
	statusSink StatusSink
	runCtx     context.Context // set for the duration of Run; lets emit abort a blocked send on cancellation
	sleep      func(ctx context.Context, d time.Duration) bool
}

// publish reports the current backoff state to the installed status sink,
// if any.
func (p *Poller) publish(community string, syncInterval, timeoutCount int) {
	if p.statusSink == nil {
		return
	}
	p.statusSink(Status{Community: community, SyncInterval: syncInterval, TimeoutCount: timeoutCount})
}

// New builds a Poller over desc, sending newly observed items to out. out
// is owned by the caller (typically a Curator) and is never closed by the
// Poller itself.
func New(api Retriever, desc *listing.Guarded, out chan<- model.Item, opts ...Option) *Poller {
	p := &Poller{
		api:   api,
		desc:  desc,
		out:   out,
		buf:   dedup.New(bufferCapacity),
		sleep: sleepCtx,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes the poll cycle until ctx is canceled or the subscription
// is exhausted (Back direction, no more items).
func (p *Poller) Run(ctx context.Context) {
	p.runCtx = ctx
	syncInterval := syncIntervalStart
	timeoutCount := 0

	for {
		if ctx.Err() != nil {
			return
		}

		community, _ := p.desc.Snapshot()
		items, err := p.pollOnce(ctx)
		if err != nil {
			log.Printf("poller: %s: retrieve failed: %v; retrying in %s", community.Name(), err, timeoutErrorSleep)
			if !p.sleep(ctx, timeoutErrorSleep) {
				return
			}
			continue
		}

		ordered := p.orderByDirection(items)
		delta := p.buf.Difference(ordered)
		delta = p.applyPredicate(delta)

		if len(delta) > 0 {
			log.Printf("poller: %s: %d new item(s), resetting wait interval", community.Name(), len(delta))
			if !p.emit(delta) {
				panic("poller: send into outbound channel with no receiver")
			}
			syncInterval = syncIntervalStart
			timeoutCount = 0
			p.publish(community.Name(), syncInterval, timeoutCount)
			continue
		}

		// wasAtMax distinguishes "just reached the cap this cycle" (no
		// timeout-count movement yet) from "was already capped coming in"
		// (a stalled cycle: five empties reach 32 with timeout_count still
		// 0; only the next empty increments it).
		wasAtMax := syncInterval >= syncIntervalMax
		if !wasAtMax {
			syncInterval *= 2
		}
		log.Printf("poller: %s: no new items, wait interval now %ds", community.Name(), syncInterval)
		p.publish(community.Name(), syncInterval, timeoutCount)
		if !p.sleep(ctx, time.Duration(syncInterval)*time.Second) {
			return
		}

		if !wasAtMax {
			continue
		}

		timeoutCount++
		p.publish(community.Name(), syncInterval, timeoutCount)
		if timeoutCount < timeoutTripAt {
			continue
		}

		done, keepGoing := p.recover(ctx, community.Name())
		if done {
			return
		}
		if keepGoing {
			syncInterval = syncIntervalStart
			timeoutCount = 0
		} else {
			// retry the recovery attempt on the next stalled cycle rather
			// than re-triggering every cycle immediately.
			timeoutCount = timeoutTripAt - 1
		}
		p.publish(community.Name(), syncInterval, timeoutCount)
	}
}

// pollOnce acquires the descriptor lock for exactly one retrieve call,
// then releases it.
func (p *Poller) pollOnce(ctx context.Context) ([]model.Item, error) {
	var items []model.Item
	var err error
	p.desc.With(func(d *listing.Descriptor) {
		items, err = p.api.Retrieve(ctx, d)
	})
	return items, err
}

// orderByDirection applies the direction-dependent ordering rule: Forward
// preserves source order (newest-first); Back reverses to oldest-first
// emission order.
func (p *Poller) orderByDirection(items []model.Item) []model.Item {
	var dir listing.Direction
	p.desc.With(func(d *listing.Descriptor) {
		if d.Pagination != nil {
			dir = d.Pagination.Direction()
		}
	})
	if dir != listing.Back {
		return items
	}
	out := make([]model.Item, len(items))
	for i, it := range items {
		out[len(items)-1-i] = it
	}
	return out
}

func (p *Poller) applyPredicate(items []model.Item) []model.Item {
	if p.predicate == nil {
		return items
	}
	out := items[:0:0]
	for _, it := range items {
		if p.predicate(it) {
			out = append(out, it)
		}
	}
	return out
}

// emit inserts each delta item into the buffer and sends it in order.
// If ctx is canceled mid-emission it stops sending and still returns true,
// so Run stops at its next context check; emit never returns false.
func (p *Poller) emit(items []model.Item) bool {
	for _, it := range items {
		p.buf.Insert(it)
		select {
		case p.out <- it:
		case <-p.runCtx.Done():
			return true // cooperative shutdown, not a fatal send failure
		}
	}
	return true
}

// recover implements direction-dependent timeout recovery. Returns
// (done, continuedPolling): done means the poller should
// terminate (Back direction exhausted); continuedPolling means a
// forward-reset retrieve happened and the caller should reset its backoff
// state.
func (p *Poller) recover(ctx context.Context, communityName string) (done bool, continuedPolling bool) {
	var dir listing.Direction
	p.desc.With(func(d *listing.Descriptor) {
		if d.Pagination != nil {
			dir = d.Pagination.Direction()
		}
	})

	if dir == listing.Back {
		log.Printf("poller: %s: finished polling back, no more items", communityName)
		return true, false
	}

	log.Printf("poller: %s: polling timeout, resetting cursor and retrying", communityName)
	var items []model.Item
	var err error
	p.desc.With(func(d *listing.Descriptor) {
		if d.Pagination != nil {
			d.Pagination.ResetAnchor()
		}
		items, err = p.api.Retrieve(ctx, d)
	})
	if err != nil {
		log.Printf("poller: %s: reset retrieve failed: %v", communityName, err)
		return false, false
	}

	ordered := p.orderByDirection(items)
	delta := p.buf.Difference(ordered)
	delta = p.applyPredicate(delta)
	if len(delta) > 0 {
		if !p.emit(delta) {
			panic("poller: send into outbound channel with no receiver")
		}
	}
	return false, true
}

// sleepCtx sleeps for d or returns false early if ctx is canceled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

