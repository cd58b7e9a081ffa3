package aggregator

import (
	"context"
	"sync"
	"testing"

	"github.com/listingbot/listingbot/internal/directory"
	"github.com/listingbot/listingbot/internal/poller"
)

type fakeSubscriptionSource struct {
	fakeDirectory
	byUser map[int64][]directory.SubscriptionRecord
}

func newFakeSubscriptionSource() *fakeSubscriptionSource {
	return &fakeSubscriptionSource{
		fakeDirectory: *newFakeDirectory(),
		byUser:        map[int64][]directory.SubscriptionRecord{},
	}
}

func (f *fakeSubscriptionSource) ListSubscriptions(ctx context.Context, userID int64) ([]directory.SubscriptionRecord, error) {
	return f.byUser[userID], nil
}

func TestFindConstructsOnceAndCachesAggregator(t *testing.T) {
	dir := newFakeSubscriptionSource()
	dir.byUser[1] = []directory.SubscriptionRecord{{UserID: 1, CommunityName: "art", CategoryTag: "new"}}

	var constructs sync.WaitGroup
	store := NewStore(dir, newFakeVault(), &fakeSender{}, func() poller.Retriever { return emptyRetriever{} })

	const n = 20
	constructs.Add(n)
	results := make([]*Aggregator, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer constructs.Done()
			a, err := store.Find(context.Background(), 1)
			if err != nil {
				t.Errorf("Find: %v", err)
				return
			}
			results[i] = a
		}(i)
	}
	constructs.Wait()

	for i := 1; i < n; i++ {
		if results[i] != results[0] {
			t.Fatal("concurrent Find calls returned different Aggregator instances for the same user")
		}
	}
}

func TestFindDistinctUsersGetDistinctAggregators(t *testing.T) {
	dir := newFakeSubscriptionSource()
	store := NewStore(dir, newFakeVault(), &fakeSender{}, func() poller.Retriever { return emptyRetriever{} })

	a1, err := store.Find(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	a2, err := store.Find(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if a1 == a2 {
		t.Fatal("expected distinct aggregators for distinct users")
	}
}
