package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/listingbot/listingbot/internal/aggregator"
	"github.com/listingbot/listingbot/internal/command"
	"github.com/listingbot/listingbot/internal/curator"
	"github.com/listingbot/listingbot/internal/directory"
	"github.com/listingbot/listingbot/internal/listing"
	"github.com/listingbot/listingbot/internal/model"
	"github.com/listingbot/listingbot/internal/poller"
)

type fakeDirectory struct {
	users map[int64]model.User
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{users: make(map[int64]model.User)}
}

func (d *fakeDirectory) Get(ctx context.Context, id int64) (model.User, bool, error) {
	u, ok := d.users[id]
	return u, ok, nil
}

func (d *fakeDirectory) AddNewUser(ctx context.Context, id int64, username string, isUser bool) (model.User, error) {
	u := model.User{ID: id, Username: username, IsUser: isUser}
	d.users[id] = u
	return u, nil
}

// fakeVault and fakeSubRecorder back the Aggregator a fakeStore hands out,
// so AddListing/Silence exercise real Aggregator logic without a database.
type fakeVault struct{ seen map[string]model.Item }

func (v *fakeVault) Fetch(ctx context.Context, id string) (model.Item, bool, error) {
	it, ok := v.seen[id]
	return it, ok, nil
}

func (v *fakeVault) Save(ctx context.Context, it model.Item) error {
	v.seen[it.ID] = it
	return nil
}

type fakeSubRecorder struct {
	saved []directory.SubscriptionRecord
}

func (r *fakeSubRecorder) SaveSubscription(ctx context.Context, rec directory.SubscriptionRecord) error {
	r.saved = append(r.saved, rec)
	return nil
}

func (r *fakeSubRecorder) DeleteSubscription(ctx context.Context, userID int64, communityName string) error {
	return nil
}

type neverRetriever struct{}

func (neverRetriever) Retrieve(ctx context.Context, desc *listing.Descriptor) ([]model.Item, error) {
	return nil, nil
}

type fakeStore struct {
	agg  *aggregator.Aggregator
	subs *fakeSubRecorder
}

func newFakeStore() *fakeStore {
	cur := curator.New(func() poller.Retriever { return neverRetriever{} })
	subs := &fakeSubRecorder{}
	agg := aggregator.New(1, cur, nil, &fakeVault{seen: make(map[string]model.Item)}, subs)
	return &fakeStore{agg: agg, subs: subs}
}

func (s *fakeStore) Find(ctx context.Context, userID int64) (*aggregator.Aggregator, error) {
	return s.agg, nil
}

func (s *fakeStore) Len() int { return 1 }

func (s *fakeStore) Status() []poller.Status { return s.agg.Status() }

func postJSON(t *testing.T, srv *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(buf))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHandleWebhookRejectsWrongSecret(t *testing.T) {
	srv := NewServer(newFakeDirectory(), newFakeStore(), "correct-secret")
	rec := postJSON(t, srv, "/webhook/wrong-secret", update{ChatID: 1, Text: "/listen art new"})
	if rec.Code != 404 {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleWebhookRegistersNewUserAndDispatchesListen(t *testing.T) {
	dir := newFakeDirectory()
	store := newFakeStore()
	srv := NewServer(dir, store, "s3cr3t")

	rec := postJSON(t, srv, "/webhook/s3cr3t", update{ChatID: 42, Username: "ada", Text: "/listen art new"})
	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if _, ok := dir.users[42]; !ok {
		t.Fatalf("expected user 42 to be registered")
	}
	if len(store.subs.saved) != 1 || store.subs.saved[0].CommunityName != "art" || store.subs.saved[0].CategoryTag != "new" {
		t.Fatalf("expected /listen art new to be dispatched as one subscription, got %+v", store.subs.saved)
	}
}

func TestHandleWebhookUnrecognizedCommandStillReturns200(t *testing.T) {
	srv := NewServer(newFakeDirectory(), newFakeStore(), "s3cr3t")
	rec := postJSON(t, srv, "/webhook/s3cr3t", update{ChatID: 7, Text: "not a command"})
	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHandleWebhookMalformedBodyIsBadRequest(t *testing.T) {
	srv := NewServer(newFakeDirectory(), newFakeStore(), "s3cr3t")
	req := httptest.NewRequest("POST", "/webhook/s3cr3t", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != 400 {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestDispatchSilenceOnExistingAggregator(t *testing.T) {
	store := newFakeStore()
	srv := NewServer(newFakeDirectory(), store, "s3cr3t")

	community, err := listing.NewCommunity("art")
	if err != nil {
		t.Fatalf("NewCommunity: %v", err)
	}
	category, err := listing.ParseCategory("new")
	if err != nil {
		t.Fatalf("ParseCategory: %v", err)
	}

	if err := srv.dispatch(context.Background(), 1, command.Listen{Community: community, Category: category}); err != nil {
		t.Fatalf("dispatch listen: %v", err)
	}
	if err := srv.dispatch(context.Background(), 1, command.Silence{CommunityName: "art"}); err != nil {
		t.Fatalf("dispatch silence: %v", err)
	}
}

func TestHandleStatusStreamSendsInitialSnapshot(t *testing.T) {
	srv := NewServer(newFakeDirectory(), newFakeStore(), "s3cr3t")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest("GET", "/status/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Body.Len() == 0 {
		t.Fatalf("expected at least the initial SSE snapshot to be written")
	}
}
