// Package webhook is the inbound HTTP surface wired at the transport
// boundary: a chi router that authenticates
// inbound bot updates by URL secret, attributes them through the Client
// Manager, and dispatches recognized commands.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/listingbot/listingbot/internal/aggregator"
	"github.com/listingbot/listingbot/internal/command"
	"github.com/listingbot/listingbot/internal/directory"
	"github.com/listingbot/listingbot/internal/listing"
	"github.com/listingbot/listingbot/internal/model"
	"github.com/listingbot/listingbot/internal/poller"
)

// userDirectory is the subset of *directory.Manager this surface needs to
// attribute an inbound update to a registered user.
type userDirectory interface {
	Get(ctx context.Context, id int64) (model.User, bool, error)
	AddNewUser(ctx context.Context, id int64, username string, isUser bool) (model.User, error)
}

// aggregatorStore is the subset of *aggregator.Store this surface needs to
// dispatch a command and report live status: how many users are active
// and each community's current poller backoff state.
type aggregatorStore interface {
	Find(ctx context.Context, userID int64) (*aggregator.Aggregator, error)
	Len() int
	Status() []poller.Status
}

// Server holds the collaborators the inbound surface dispatches through.
type Server struct {
	dir    userDirectory
	store  aggregatorStore
	secret string
	notify *statusNotifier
}

// NewServer builds a Server. secret is the URL path component every
// inbound webhook call must present.
func NewServer(dir userDirectory, store aggregatorStore, secret string) *Server {
	return &Server{dir: dir, store: store, secret: secret, notify: newStatusNotifier()}
}

// Router assembles the chi router: request-scoped middleware in the same
// order below, rate limiting per group, and the three routes
// this surface exposes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/healthz"))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(30, time.Second))
		r.Post("/webhook/{secret}", s.handleWebhook)
	})

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(100, time.Second))
		r.Get("/status/stream", s.handleStatusStream)
	})

	return r
}

// update is the inbound bot update shape this surface accepts: enough of a
// chat message to attribute a user and parse a command, deliberately not a
// full transport-specific payload: messaging transport internals are out
// of scope here.
type update struct {
	ChatID   int64  `json:"chat_id"`
	Username string `json:"username"`
	IsBot    bool   `json:"is_bot"`
	Text     string `json:"text"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if chi.URLParam(r, "secret") != s.secret {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var upd update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	user, ok, err := s.dir.Get(ctx, upd.ChatID)
	if err != nil {
		log.Printf("webhook: lookup user %d: %v", upd.ChatID, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !ok {
		user, err = s.dir.AddNewUser(ctx, upd.ChatID, upd.Username, !upd.IsBot)
		if err != nil {
			log.Printf("webhook: register user %d: %v", upd.ChatID, err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}

	parsed, err := command.Parse(upd.Text)
	if err != nil {
		log.Printf("webhook: unrecognized command from user %d: %q", user.ID, upd.Text)
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := s.dispatch(ctx, user.ID, parsed); err != nil {
		log.Printf("webhook: dispatch for user %d: %v", user.ID, err)
	}
	s.notify.Notify()
	w.WriteHeader(http.StatusOK)
}

func (s *Server) dispatch(ctx context.Context, userID int64, parsed any) error {
	agg, err := s.store.Find(ctx, userID)
	if err != nil {
		return fmt.Errorf("find aggregator for %d: %w", userID, err)
	}

	switch cmd := parsed.(type) {
	case command.Listen:
		desc, err := listing.NewDescriptor(cmd.Community, cmd.Category, listing.Forward, listing.DefaultLimit)
		if err != nil {
			return fmt.Errorf("build descriptor: %w", err)
		}
		if err := agg.AddListing(ctx, listing.NewGuarded(desc)); err != nil {
			if err == directory.ErrAlreadySubscribed {
				log.Printf("webhook: user %d already listening to %s", userID, cmd.Community.Name())
				return nil
			}
			return fmt.Errorf("add listing: %w", err)
		}
	case command.Silence:
		if err := agg.Silence(ctx, cmd.CommunityName); err != nil {
			return fmt.Errorf("silence: %w", err)
		}
	}
	return nil
}

// statusPayload is the SSE body handleStatusStream emits: the count of
// constructed User Aggregators and the live backoff state of every
// community currently being polled, across every user.
type statusPayload struct {
	ActiveUsers int             `json:"active_users"`
	Communities []poller.Status `json:"communities"`
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ch := s.notify.Subscribe()
	defer s.notify.Unsubscribe(ch)

	throttle := time.NewTicker(333 * time.Millisecond)
	defer throttle.Stop()

	sendUpdate := func() {
		communities := s.store.Status()
		if communities == nil {
			communities = []poller.Status{}
		}
		data, _ := json.Marshal(statusPayload{
			ActiveUsers: s.store.Len(),
			Communities: communities,
		})
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
	sendUpdate()

	var pending bool
	for {
		select {
		case <-ch:
			pending = true
		case <-throttle.C:
			if pending {
				sendUpdate()
				pending = false
			}
		case <-r.Context().Done():
			return
		}
	}
}
