// Package aggregator implements the per-user sink that drains a Curator
// and the Store that constructs those sinks on demand.
package aggregator

import (
	"context"
	"log"
	"sync"

	"github.com/listingbot/listingbot/internal/curator"
	"github.com/listingbot/listingbot/internal/directory"
	"github.com/listingbot/listingbot/internal/listing"
	"github.com/listingbot/listingbot/internal/messaging"
	"github.com/listingbot/listingbot/internal/model"
	"github.com/listingbot/listingbot/internal/poller"
)

// cacheCapacity bounds the recent-items cache retained per user.
const cacheCapacity = 5

// Vault is the subset of *vault.Vault an Aggregator needs to gate
// deliveries on prior-send state.
type Vault interface {
	Fetch(ctx context.Context, id string) (model.Item, bool, error)
	Save(ctx context.Context, it model.Item) error
}

// Directory is the subset of *directory.Manager an Aggregator needs to
// manage Subscription Records.
type Directory interface {
	SaveSubscription(ctx context.Context, rec directory.SubscriptionRecord) error
	DeleteSubscription(ctx context.Context, userID int64, communityName string) error
}

// Aggregator is the per-user sink: it drains its Curator, keeps a short
// cache of recent Items, and forwards new deliveries to the messaging
// collaborator behind the Delivery Vault gate.
type Aggregator struct {
	userID int64
	cur    *curator.Curator
	sender messaging.Sender
	vault  Vault
	dir    Directory

	mu    sync.Mutex
	cache []model.Item
}

// New builds an Aggregator for userID. cur is this user's Curator; it is
// not started until a listing is added or restored from persistence.
func New(userID int64, cur *curator.Curator, sender messaging.Sender, v Vault, dir Directory) *Aggregator {
	return &Aggregator{
		userID: userID,
		cur:    cur,
		sender: sender,
		vault:  v,
		dir:    dir,
	}
}

// AddListing persists the Subscription Record then asks the Curator to
// spawn a poller for it. A duplicate (user, community, category) triple
// surfaces directory.ErrAlreadySubscribed; any other persistence error
// aborts the add without spawning a poller.
func (a *Aggregator) AddListing(ctx context.Context, desc *listing.Guarded) error {
	community, category := desc.Snapshot()
	rec := directory.SubscriptionRecord{
		UserID:        a.userID,
		CommunityName: community.Name(),
		CategoryTag:   category.PersistTag(),
	}
	if err := a.dir.SaveSubscription(ctx, rec); err != nil {
		return err
	}
	a.cur.SpawnFor(ctx, desc)
	return nil
}

// Silence removes this user's Subscription Records for community. It does
// not stop the poller(s) already running for that community: they keep
// polling and delivering until the Curator is stopped or their context is
// canceled.
func (a *Aggregator) Silence(ctx context.Context, communityName string) error {
	return a.dir.DeleteSubscription(ctx, a.userID, communityName)
}

// Status reports this user's pollers' current backoff state, one entry
// per community currently being polled.
func (a *Aggregator) Status() []poller.Status {
	return a.cur.Status()
}

// Latest drains and returns the recent-items cache; idempotent thereafter
// until new items arrive.
func (a *Aggregator) Latest() []model.Item {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.cache
	a.cache = nil
	return out
}

func (a *Aggregator) pushCache(it model.Item) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cache = append(a.cache, it)
	if len(a.cache) > cacheCapacity {
		a.cache = a.cache[len(a.cache)-cacheCapacity:]
	}
}

// Listen is the forever loop: receive from the Curator, cache, then
// forward. Returns when ctx is canceled or the Curator's channel closes.
func (a *Aggregator) Listen(ctx context.Context) {
	for {
		select {
		case it, ok := <-a.cur.Receiver():
			if !ok {
				return
			}
			a.pushCache(it)
			a.deliver(ctx, it)
		case <-ctx.Done():
			return
		}
	}
}

// deliver implements the Delivery Vault gate: a Vault hit means skip. On a
// successful send the item is recorded in the Vault.
func (a *Aggregator) deliver(ctx context.Context, it model.Item) {
	if _, found, err := a.vault.Fetch(ctx, it.ID); err != nil {
		log.Printf("aggregator: user %d: vault lookup for %q failed: %v", a.userID, it.ID, err)
	} else if found {
		return
	}

	caption := messaging.SanitizeCaption(it.Title)
	if err := a.sender.SendPhoto(ctx, a.userID, it.Link, caption); err != nil {
		log.Printf("aggregator: user %d: send failed for %q: %v", a.userID, it.ID, err)
		return
	}

	if err := a.vault.Save(ctx, it); err != nil {
		log.Printf("aggregator: user %d: vault save for %q failed: %v", a.userID, it.ID, err)
	}
}
