package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadCreatesTemplateAndUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "config.toml")); err != nil {
		t.Errorf("template not written: %v", err)
	}
	if cfg.Trading.SellLock != time.Hour {
		t.Errorf("sell lock = %v, want 1h", cfg.Trading.SellLock)
	}
	if cfg.Storage.Path != filepath.Join(dir, "market.db") {
		t.Errorf("storage path = %q", cfg.Storage.Path)
	}
	if cfg.Redis.QuoteChannel != "synthx:quotes" {
		t.Errorf("quote channel = %q", cfg.Redis.QuoteChannel)
	}
}

func TestLoadTemplateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(dir); err != nil {
		t.Fatalf("first load: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if len(cfg.Trading.FeeTiers) != 5 {
		t.Fatalf("fee tiers = %d, want 5", len(cfg.Trading.FeeTiers))
	}
	if cfg.Trading.FeeTiers[1].Multiplier != 3 {
		t.Errorf("tier 1 multiplier = %v, want 3", cfg.Trading.FeeTiers[1].Multiplier)
	}
	if cfg.Simulation.TickInterval != 5*time.Minute {
		t.Errorf("tick interval = %v", cfg.Simulation.TickInterval)
	}
}

func TestLoadFileOverrides(t *testing.T) {
	dir := t.TempDir()
	body := `
[market]
open_time = "09:30"
close_time = "16:00:00"

[trading]
sell_lock = "15m"
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Trading.SellLock != 15*time.Minute {
		t.Errorf("sell lock = %v, want 15m", cfg.Trading.SellLock)
	}
	open, _ := cfg.Market.OpenOffset()
	if open != 9*time.Hour+30*time.Minute {
		t.Errorf("open offset = %v", open)
	}
	if cfg.Trading.BuyFeeRate != 0.005 {
		t.Errorf("unset key lost its default: %v", cfg.Trading.BuyFeeRate)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SYNTHX_SEED", "42")
	t.Setenv("SYNTHX_DB_PATH", "/tmp/override.db")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Simulation.Seed != 42 {
		t.Errorf("seed = %d, want 42", cfg.Simulation.Seed)
	}
	if cfg.Storage.Path != "/tmp/override.db" {
		t.Errorf("db path = %q", cfg.Storage.Path)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"close before open", func(c *Config) { c.Market.CloseTime = "07:00" }},
		{"bad clock", func(c *Config) { c.Market.OpenTime = "8am" }},
		{"decay out of range", func(c *Config) { c.Simulation.PressureDecay = 1 }},
		{"unsorted tiers", func(c *Config) {
			c.Trading.FeeTiers = []FeeTier{{MaxVolume: 10, Multiplier: 1}, {MaxVolume: 5, Multiplier: 2}}
		}},
		{"no tiers", func(c *Config) { c.Trading.FeeTiers = nil }},
		{"zero trap", func(c *Config) { c.MarketMaker.TrapDuration = 0 }},
	}

	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
