// Package config loads the process-wide configuration bundle as an
// initialized-once value passed explicitly, with no ambient globals.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/listingbot/listingbot/internal/social"
)

// Config is every environment-sourced value the process needs at boot.
type Config struct {
	Listing social.Credentials
	Host    string // listing source host, e.g. "reddit.com"

	DatabaseURL string

	BotToken      string
	WebhookSecret string

	ListenHost string
	ListenPort string
}

// Load reads a .env file if present (ignored if absent) then builds a
// Config from the environment. A required variable that is missing
// causes an error; the caller is expected to log.Fatal on it at the
// process edge.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Listing: social.Credentials{
			ClientID: os.Getenv("CLIENT_ID"),
			Secret:   os.Getenv("SECRET"),
			Username: os.Getenv("USER_NAME"),
			Password: os.Getenv("PASSWORD"),
		},
		Host:          env("LISTING_HOST", "reddit.com"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		BotToken:      os.Getenv("BOT_TOKEN"),
		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),
		ListenHost:    env("HOST", "127.0.0.1"),
		ListenPort:    env("PORT", "8080"),
	}

	required := []struct {
		name  string
		value string
	}{
		{"CLIENT_ID", cfg.Listing.ClientID},
		{"SECRET", cfg.Listing.Secret},
		{"USER_NAME", cfg.Listing.Username},
		{"PASSWORD", cfg.Listing.Password},
		{"DATABASE_URL", cfg.DatabaseURL},
		{"BOT_TOKEN", cfg.BotToken},
		{"WEBHOOK_SECRET", cfg.WebhookSecret},
	}
	for _, r := range required {
		if r.value == "" {
			return Config{}, fmt.Errorf("config: %s is required", r.name)
		}
	}

	return cfg, nil
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
