// Package directory implements the persistent directory of known users,
// and the Subscription Record CRUD that backs a User Aggregator's
// add_listing/silence operations.
package directory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/listingbot/listingbot/internal/model"
	"github.com/listingbot/listingbot/internal/storage"
)

// SubscriptionRecord is the persisted triple a User Aggregator materializes
// into one running Subscription Poller.
type SubscriptionRecord struct {
	UserID        int64
	CommunityName string
	CategoryTag   string
}

// Manager is the Client Manager: cache-then-database lookup of User
// Records, named to avoid colliding with net/http's "client".
type Manager struct {
	pool *storage.Pool

	mu       sync.Mutex
	existing map[int64]model.User
}

// New builds a Manager over an already-migrated pool.
func New(pool *storage.Pool) *Manager {
	return &Manager{pool: pool, existing: make(map[int64]model.User)}
}

// Get returns a cached User or loads it from the directory. The bool is
// false if no such user is registered yet.
func (m *Manager) Get(ctx context.Context, id int64) (model.User, bool, error) {
	m.mu.Lock()
	if u, ok := m.existing[id]; ok {
		m.mu.Unlock()
		return u, true, nil
	}
	m.mu.Unlock()

	var u model.User
	var username *string
	err := m.pool.QueryRow(ctx, `SELECT id, username, is_user FROM users WHERE id = $1`, id).
		Scan(&u.ID, &username, &u.IsUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, false, nil
		}
		return model.User{}, false, fmt.Errorf("directory: get %d: %w", id, err)
	}
	if username != nil {
		u.Username = *username
	}

	m.mu.Lock()
	m.existing[id] = u
	m.mu.Unlock()
	return u, true, nil
}

// AddNewUser persists a new User Record, swallowing a unique-violation as a
// warning and returning a handle to the existing row.
func (m *Manager) AddNewUser(ctx context.Context, id int64, username string, isUser bool) (model.User, error) {
	u := model.User{ID: id, Username: username, IsUser: isUser}

	var usernameArg any
	if username != "" {
		usernameArg = username
	}
	_, err := m.pool.Exec(ctx, `INSERT INTO users (id, username, is_user) VALUES ($1, $2, $3)`,
		id, usernameArg, isUser)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			log.Printf("directory: user %d already registered", id)
			if existing, ok, getErr := m.Get(ctx, id); getErr == nil && ok {
				return existing, nil
			}
		} else {
			return model.User{}, fmt.Errorf("directory: add user %d: %w", id, err)
		}
	}

	m.mu.Lock()
	m.existing[id] = u
	m.mu.Unlock()
	return u, nil
}

// SaveSubscription persists a Subscription Record. A unique-violation means
// the user already listens to this (community, category) pair.
func (m *Manager) SaveSubscription(ctx context.Context, rec SubscriptionRecord) error {
	_, err := m.pool.Exec(ctx, `
		INSERT INTO subscribed_listings (user_id, community_name, category_tag)
		VALUES ($1, $2, $3)
	`, rec.UserID, rec.CommunityName, rec.CategoryTag)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadySubscribed
		}
		return fmt.Errorf("directory: save subscription: %w", err)
	}
	return nil
}

// ListSubscriptions returns every Subscription Record for userID, used to
// rebuild a user's pollers on restart.
func (m *Manager) ListSubscriptions(ctx context.Context, userID int64) ([]SubscriptionRecord, error) {
	rows, err := m.pool.Query(ctx, `
		SELECT user_id, community_name, category_tag
		FROM subscribed_listings WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("directory: list subscriptions for %d: %w", userID, err)
	}
	defer rows.Close()

	var out []SubscriptionRecord
	for rows.Next() {
		var rec SubscriptionRecord
		if err := rows.Scan(&rec.UserID, &rec.CommunityName, &rec.CategoryTag); err != nil {
			return nil, fmt.Errorf("directory: scan subscription: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteSubscription removes a Subscription Record, backing the /silence
// command.
func (m *Manager) DeleteSubscription(ctx context.Context, userID int64, communityName string) error {
	_, err := m.pool.Exec(ctx, `
		DELETE FROM subscribed_listings WHERE user_id = $1 AND community_name = $2
	`, userID, communityName)
	if err != nil {
		return fmt.Errorf("directory: delete subscription: %w", err)
	}
	return nil
}

// ErrAlreadySubscribed is returned by SaveSubscription on a duplicate
// (user, community, category) triple.
var ErrAlreadySubscribed = errors.New("directory: already subscribed")

// AllUsers returns every registered user, used at boot to reconstruct the
// Aggregator Store at boot.
func (m *Manager) AllUsers(ctx context.Context) ([]model.User, error) {
	rows, err := m.pool.Query(ctx, `SELECT id, username, is_user FROM users`)
	if err != nil {
		return nil, fmt.Errorf("directory: list users: %w", err)
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		var u model.User
		var username *string
		if err := rows.Scan(&u.ID, &username, &u.IsUser); err != nil {
			return nil, fmt.Errorf("directory: scan user: %w", err)
		}
		if username != nil {
			u.Username = *username
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
