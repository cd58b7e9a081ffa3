package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/listingbot/listingbot/internal/listing"
	"github.com/listingbot/listingbot/internal/model"
)

// scriptedRetriever returns one page per call from a fixed script, looping
// on the last entry once exhausted so long-running tests don't panic on
// index overrun.
type scriptedRetriever struct {
	mu     sync.Mutex
	pages  [][]model.Item
	calls  int
}

func (s *scriptedRetriever) Retrieve(ctx context.Context, desc *listing.Descriptor) ([]model.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	if idx >= len(s.pages) {
		idx = len(s.pages) - 1
	}
	s.calls++
	page := s.pages[idx]
	if desc.Pagination != nil {
		desc.Pagination.UpdateAnchor(page)
	}
	return page, nil
}

func newForwardDescriptor(t *testing.T, limit int) *listing.Guarded {
	t.Helper()
	community, err := listing.NewCommunity("art")
	if err != nil {
		t.Fatal(err)
	}
	desc, err := listing.NewDescriptor(community, listing.NewNew(), listing.Forward, limit)
	if err != nil {
		t.Fatal(err)
	}
	return listing.NewGuarded(desc)
}

func newBackDescriptor(t *testing.T, limit int) *listing.Guarded {
	t.Helper()
	community, err := listing.NewCommunity("art")
	if err != nil {
		t.Fatal(err)
	}
	desc, err := listing.NewDescriptor(community, listing.NewNew(), listing.Back, limit)
	if err != nil {
		t.Fatal(err)
	}
	return listing.NewGuarded(desc)
}

func TestFreshForwardPollEmitsSourceOrder(t *testing.T) {
	ret := &scriptedRetriever{pages: [][]model.Item{
		{{ID: "1"}, {ID: "2"}},
		{}, {}, {}, {}, {}, {}, {}, {}, {}, {}, // stay empty so Run doesn't loop forever fast
	}}
	desc := newForwardDescriptor(t, 2)
	out := make(chan model.Item, 5)
	p := New(ret, desc, out)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() { p.Run(ctx); close(done) }()

	first := <-out
	second := <-out
	<-done

	if first.ID != "1" || second.ID != "2" {
		t.Fatalf("got %v, %v; want 1 then 2 (source order preserved)", first, second)
	}
}

func TestBackDirectionReversesEmissionOrder(t *testing.T) {
	ret := &scriptedRetriever{pages: [][]model.Item{
		{{ID: "2"}, {ID: "1"}}, // source order newest-first: 2 newer than 1
	}}
	desc := newBackDescriptor(t, 2)
	out := make(chan model.Item, 5)
	p := New(ret, desc, out)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	go p.Run(ctx)

	first := <-out
	second := <-out
	if first.ID != "1" || second.ID != "2" {
		t.Fatalf("got %v, %v; want oldest-first emission [1, 2]", first, second)
	}
}

func TestDedupAcrossCycles(t *testing.T) {
	ret := &scriptedRetriever{pages: [][]model.Item{
		{{ID: "1"}, {ID: "2"}},
		{{ID: "2"}, {ID: "3"}},
	}}
	desc := newForwardDescriptor(t, 2)
	out := make(chan model.Item, 5)
	p := New(ret, desc, out)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	go p.Run(ctx)

	got := []string{(<-out).ID, (<-out).ID, (<-out).ID}
	want := []string{"1", "2", "3"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("emission order = %v, want %v", got, want)
		}
	}
}

// fastSleep stands in for real wall-clock backoff in tests that need to
// drive the state machine through several cycles quickly. It still honors
// cancellation so shutdown semantics are exercised for real.
func fastSleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(time.Millisecond):
		return true
	case <-ctx.Done():
		return false
	}
}

func TestBackPollerTerminatesAfterTwoEmptyCyclesAtMaxInterval(t *testing.T) {
	ret := &scriptedRetriever{pages: [][]model.Item{{}}}
	desc := newBackDescriptor(t, 2)
	out := make(chan model.Item, 1)
	p := New(ret, desc, out)
	p.sleep = fastSleep

	// With sleep fast-forwarded, the full backoff ladder (sleeps of
	// 2,4,8,16,32,32,32) and the two-strikes-at-cap rule complete in
	// milliseconds instead of ~126s of real time.
	done := make(chan struct{})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go func() { p.Run(ctx); close(done) }()

	select {
	case <-done:
		// terminated on its own (Back direction exhausted) well before the
		// context deadline.
	case <-ctx.Done():
		t.Fatal("back-direction poller with perpetually empty pages did not terminate before context deadline")
	}
}

func TestForwardPollerResetsCursorOnTimeout(t *testing.T) {
	ret := &scriptedRetriever{pages: [][]model.Item{{}}}
	desc := newForwardDescriptor(t, 2)
	out := make(chan model.Item, 1)
	p := New(ret, desc, out)
	p.sleep = fastSleep

	// Forward direction never terminates on its own: after the second
	// stalled cycle at the cap it resets the cursor and keeps polling, so
	// Run only returns when the context is canceled.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	p.Run(ctx)

	if ctx.Err() == nil {
		t.Fatal("expected context deadline to be the reason Run returned")
	}
}

func TestStatusSinkReportsResetAfterDelta(t *testing.T) {
	ret := &scriptedRetriever{pages: [][]model.Item{
		{{ID: "1"}, {ID: "2"}},
	}}
	desc := newForwardDescriptor(t, 2)
	out := make(chan model.Item, 5)

	var mu sync.Mutex
	var reported []Status
	p := New(ret, desc, out, WithStatusSink(func(s Status) {
		mu.Lock()
		defer mu.Unlock()
		reported = append(reported, s)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	<-out
	<-out
	cancel()

	mu.Lock()
	defer mu.Unlock()
	if len(reported) == 0 {
		t.Fatal("expected at least one status report")
	}
	first := reported[0]
	if first.Community != "art" {
		t.Fatalf("Status.Community = %q, want %q", first.Community, "art")
	}
	if first.SyncInterval != syncIntervalStart || first.TimeoutCount != 0 {
		t.Fatalf("first status after a delta = %+v, want reset to start", first)
	}
}

func TestPredicateVetoesEmission(t *testing.T) {
	ret := &scriptedRetriever{pages: [][]model.Item{
		{{ID: "1"}, {ID: "2"}},
	}}
	desc := newForwardDescriptor(t, 2)
	out := make(chan model.Item, 5)
	p := New(ret, desc, out, WithPredicate(func(it model.Item) bool {
		return it.ID != "1"
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	go p.Run(ctx)

	got := <-out
	if got.ID != "2" {
		t.Fatalf("got %v, want item 2 (item 1 vetoed)", got)
	}
}
