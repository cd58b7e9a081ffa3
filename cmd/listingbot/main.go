// Command listingbot runs the subscription engine: it boots storage, the
// listing source adapter, the per-user aggregator store, the outbound
// sender, and the inbound webhook surface, then restores every previously
// registered user's pollers before serving traffic.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/listingbot/listingbot/internal/aggregator"
	"github.com/listingbot/listingbot/internal/config"
	"github.com/listingbot/listingbot/internal/directory"
	"github.com/listingbot/listingbot/internal/messaging"
	"github.com/listingbot/listingbot/internal/poller"
	"github.com/listingbot/listingbot/internal/social"
	"github.com/listingbot/listingbot/internal/storage"
	"github.com/listingbot/listingbot/internal/vault"
	"github.com/listingbot/listingbot/internal/webhook"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := storage.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	if err := storage.Migrate(ctx, pool); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	hc := &http.Client{Timeout: 15 * time.Second}
	adapter := social.New(cfg.Host, cfg.Listing, hc)
	sender := messaging.NewTelegramSender(cfg.BotToken, hc)
	v := vault.New(pool)
	dir := directory.New(pool)

	store := aggregator.NewStore(dir, v, sender, func() poller.Retriever { return adapter.Clone() })

	users, err := dir.AllUsers(ctx)
	if err != nil {
		log.Fatalf("load users: %v", err)
	}
	for _, u := range users {
		if _, err := store.Find(ctx, u.ID); err != nil {
			log.Printf("restore user %d: %v", u.ID, err)
		}
	}
	log.Printf("restored %d users", len(users))

	srv := webhook.NewServer(dir, store, cfg.WebhookSecret)

	addr := cfg.ListenHost + ":" + cfg.ListenPort
	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv.Router(),
	}

	go func() {
		log.Printf("listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	<-ctx.Done()
	log.Print("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
