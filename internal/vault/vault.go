// Package vault implements the Delivery Vault: the persistent,
// cross-user, cross-restart record of which items have already been sent.
package vault

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/listingbot/listingbot/internal/model"
	"github.com/listingbot/listingbot/internal/storage"
)

// Vault is a persistent set of delivered Items keyed by id.
type Vault struct {
	pool *storage.Pool
}

// New builds a Vault over an already-migrated pool.
func New(pool *storage.Pool) *Vault {
	return &Vault{pool: pool}
}

// Save records it as delivered. A unique-violation (already delivered) is
// swallowed with a warning, matching ArtVault::save's idempotent insert.
func (v *Vault) Save(ctx context.Context, it model.Item) error {
	rec := model.FromItem(it)
	_, err := v.pool.Exec(ctx, `
		INSERT INTO delivery_vault (id, link, media_href, title, author, ups, downs)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, rec.Link, rec.MediaHref, rec.Title, rec.Author, rec.Ups, rec.Downs)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			log.Printf("vault: item %q already delivered, skipping", rec.ID)
			return nil
		}
		return fmt.Errorf("vault: save %q: %w", rec.ID, err)
	}
	return nil
}

// Fetch looks up a delivery record by item id. The bool is false when no
// record exists (not yet delivered, or this id was never an Item).
func (v *Vault) Fetch(ctx context.Context, id string) (model.Item, bool, error) {
	var rec model.DeliveryRecord
	err := v.pool.QueryRow(ctx, `
		SELECT id, link, media_href, title, author, ups, downs
		FROM delivery_vault WHERE id = $1
	`, id).Scan(&rec.ID, &rec.Link, &rec.MediaHref, &rec.Title, &rec.Author, &rec.Ups, &rec.Downs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Item{}, false, nil
		}
		return model.Item{}, false, fmt.Errorf("vault: fetch %q: %w", id, err)
	}
	return rec.Item(), true, nil
}
