// Package curator implements the per-user owner of one goroutine per
// subscription, all feeding a single outbound channel the User Aggregator
// drains.
package curator

import (
	"context"
	"sync"

	"github.com/listingbot/listingbot/internal/listing"
	"github.com/listingbot/listingbot/internal/model"
	"github.com/listingbot/listingbot/internal/poller"
)

// receiveBuffer is the outbound channel capacity.
const receiveBuffer = 5

// Curator owns a cloning source and fans out a goroutine per subscribed
// Listing Descriptor, all emitting into a single shared channel.
type Curator struct {
	clone  func() poller.Retriever
	out    chan model.Item
	status *statusBoard

	mu      sync.Mutex
	cancels []context.CancelFunc
	wg      sync.WaitGroup
}

// New builds a Curator. clone produces an independent Retriever for each
// spawned poller, so token refresh contention stays per-poller; the
// caller typically passes a *social.Adapter's Clone method.
func New(clone func() poller.Retriever) *Curator {
	return &Curator{
		clone:  clone,
		out:    make(chan model.Item, receiveBuffer),
		status: newStatusBoard(),
	}
}

// statusBoard is a mutex-protected map of the latest Status each spawned
// poller has reported, keyed by community name.
type statusBoard struct {
	mu    sync.Mutex
	byKey map[string]poller.Status
}

func newStatusBoard() *statusBoard {
	return &statusBoard{byKey: make(map[string]poller.Status)}
}

func (b *statusBoard) update(s poller.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byKey[s.Community] = s
}

func (b *statusBoard) snapshot() []poller.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]poller.Status, 0, len(b.byKey))
	for _, s := range b.byKey {
		out = append(out, s)
	}
	return out
}

// Status reports the most recent backoff state this Curator's pollers have
// published, one entry per community currently being polled.
func (c *Curator) Status() []poller.Status {
	return c.status.snapshot()
}

// Receiver exposes the channel pollers emit into. The caller (typically a
// User Aggregator) owns draining it; the Curator never closes it, since a
// subscription can be added at any point in the user's lifetime.
func (c *Curator) Receiver() <-chan model.Item {
	return c.out
}

// SpawnFor starts a poller over desc, feeding this Curator's channel. ctx
// governs the poller's lifetime; call the Curator's Stop (or cancel a
// parent context) to unwind every spawned poller cooperatively.
func (c *Curator) SpawnFor(ctx context.Context, desc *listing.Guarded, opts ...poller.Option) {
	pollCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.cancels = append(c.cancels, cancel)
	c.mu.Unlock()

	opts = append(opts, poller.WithStatusSink(c.status.update))
	p := poller.New(c.clone(), desc, c.out, opts...)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		p.Run(pollCtx)
	}()
}

// Stop cancels every spawned poller and waits for them to return.
func (c *Curator) Stop() {
	c.mu.Lock()
	cancels := c.cancels
	c.cancels = nil
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	c.wg.Wait()
}
