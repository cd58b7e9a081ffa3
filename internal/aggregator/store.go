package aggregator

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/listingbot/listingbot/internal/curator"
	"github.com/listingbot/listingbot/internal/directory"
	"github.com/listingbot/listingbot/internal/listing"
	"github.com/listingbot/listingbot/internal/messaging"
	"github.com/listingbot/listingbot/internal/poller"
)

// SubscriptionSource is the subset of *directory.Manager the Store needs to
// rebuild a user's pollers on demand.
type SubscriptionSource interface {
	Directory
	ListSubscriptions(ctx context.Context, userID int64) ([]directory.SubscriptionRecord, error)
}

// Store is a directory of User Aggregators keyed by user id, constructing
// them on demand from persisted Subscription Records.
type Store struct {
	dir    SubscriptionSource
	vault  Vault
	sender messaging.Sender
	clone  func() poller.Retriever

	mu          sync.Mutex
	aggregators map[int64]*Aggregator

	sf singleflight.Group
}

// NewStore builds a Store. clone produces an independent Retriever per
// spawned poller (forwarded to each user's Curator, see internal/curator).
func NewStore(dir SubscriptionSource, v Vault, sender messaging.Sender, clone func() poller.Retriever) *Store {
	return &Store{
		dir:         dir,
		vault:       v,
		sender:      sender,
		clone:       clone,
		aggregators: make(map[int64]*Aggregator),
	}
}

func (s *Store) get(userID int64) *Aggregator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aggregators[userID]
}

func (s *Store) put(userID int64, a *Aggregator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aggregators[userID] = a
}

// Len reports how many User Aggregators have been constructed so far, for
// status reporting.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.aggregators)
}

// Status aggregates the backoff state of every poller across every
// constructed User Aggregator, for operator-facing status reporting.
func (s *Store) Status() []poller.Status {
	s.mu.Lock()
	aggs := make([]*Aggregator, 0, len(s.aggregators))
	for _, a := range s.aggregators {
		aggs = append(aggs, a)
	}
	s.mu.Unlock()

	out := make([]poller.Status, 0, len(aggs))
	for _, a := range aggs {
		out = append(out, a.Status()...)
	}
	return out
}

// Find returns userID's Aggregator, constructing it (and restoring its
// persisted Subscription Records) if this is the first call. Concurrent
// Find calls for the same user collapse onto a single construction via
// singleflight, so callers always share one handle instead of racing to
// build duplicate pollers.
func (s *Store) Find(ctx context.Context, userID int64) (*Aggregator, error) {
	if a := s.get(userID); a != nil {
		return a, nil
	}

	key := strconv.FormatInt(userID, 10)
	v, err, _ := s.sf.Do(key, func() (any, error) {
		if a := s.get(userID); a != nil {
			return a, nil
		}
		return s.construct(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Aggregator), nil
}

func (s *Store) construct(ctx context.Context, userID int64) (*Aggregator, error) {
	cur := curator.New(s.clone)
	agg := New(userID, cur, s.sender, s.vault, s.dir)

	records, err := s.dir.ListSubscriptions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("aggregator: load subscriptions for %d: %w", userID, err)
	}
	for _, rec := range records {
		desc, err := descriptorFromRecord(rec)
		if err != nil {
			log.Printf("aggregator: user %d: skipping unreadable subscription %+v: %v", userID, rec, err)
			continue
		}
		cur.SpawnFor(ctx, desc)
	}

	go agg.Listen(ctx)
	s.put(userID, agg)
	return agg, nil
}

// descriptorFromRecord rebuilds a Listing Descriptor from a persisted
// Subscription Record. Subscription Records carry no direction; every
// restored subscription polls Forward, matching the only direction a live
// `/listen` command ever produces.
func descriptorFromRecord(rec directory.SubscriptionRecord) (*listing.Guarded, error) {
	community, err := listing.NewCommunity(rec.CommunityName)
	if err != nil {
		return nil, err
	}
	category, err := listing.ParseCategory(rec.CategoryTag)
	if err != nil {
		return nil, err
	}
	desc, err := listing.NewDescriptor(community, category, listing.Forward, listing.DefaultLimit)
	if err != nil {
		return nil, err
	}
	return listing.NewGuarded(desc), nil
}
