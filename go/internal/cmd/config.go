package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/mcdev12/pennyauction/go/internal/auction"
	"github.com/mcdev12/pennyauction/go/internal/auction/bots"
	"github.com/mcdev12/pennyauction/go/internal/dbconfig"
	"github.com/mcdev12/pennyauction/go/internal/platform/redis"
)

type Config struct {
	HTTPPort       int           `env:"HTTP_PORT" envDefault:"8080"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"5s"`
	NATSURL        string        `env:"NATS_URL"` // empty disables the event relay to WebSocket clients

	Log struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info"`
		Pretty bool   `env:"LOG_PRETTY" envDefault:"false"`
	}

	Auction struct {
		CountdownSeconds int           `env:"AUCTION_COUNTDOWN_SECONDS" envDefault:"10"`
		SweepInterval    time.Duration `env:"AUCTION_SWEEP_INTERVAL" envDefault:"1s"`
		DisplayPrefix    string        `env:"AUCTION_DISPLAY_PREFIX" envDefault:"PA"`
		SnapshotBids     int           `env:"AUCTION_SNAPSHOT_BIDS" envDefault:"5"`
		RecentCacheSize  int           `env:"AUCTION_RECENT_CACHE_SIZE" envDefault:"1024"`
	}

	Bots struct {
		SettingsFile string        `env:"BOT_SETTINGS_FILE"`
		MinSpacing   time.Duration `env:"BOT_MIN_SPACING" envDefault:"1s"`
	}

	Redis    redis.Config
	Database dbconfig.Config
}

func loadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		return nil, fmt.Errorf("invalid HTTP_PORT %d", cfg.HTTPPort)
	}
	return &cfg, nil
}

func (c *Config) auctionConfig() auction.Config {
	return auction.Config{
		CountdownSeconds: c.Auction.CountdownSeconds,
		DisplayPrefix:    c.Auction.DisplayPrefix,
		SnapshotBids:     c.Auction.SnapshotBids,
		RecentCacheSize:  c.Auction.RecentCacheSize,
		SweepInterval:    c.Auction.SweepInterval,
	}
}

// botSettings reads BOT_SETTINGS_FILE when set. Without a file the defaults
// apply with BOT_MIN_SPACING.
func (c *Config) botSettings() (bots.Settings, error) {
	if c.Bots.SettingsFile != "" {
		return bots.LoadSettings(c.Bots.SettingsFile)
	}
	s := bots.DefaultSettings()
	s.MinSpacing = c.Bots.MinSpacing
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("invalid BOT_MIN_SPACING: %w", err)
	}
	return s, nil
}
