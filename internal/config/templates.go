package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# synthx market simulator configuration
# Every key is optional; omitted keys keep their built-in defaults.

[market]
# Daily trading window (inclusive), local to timezone
open_time = "08:00:00"
close_time = "23:59:59"
# IANA zone name or "Local"
timezone = "Local"

[simulation]
# Fixed seed for reproducible runs; 0 seeds from the clock
seed = 0
tick_interval = "5m"
# Back-off after a failed tick
retry_backoff = "60s"
# Seed the default board when the store is empty
seed_stocks = true
native_event_probability = 0.001
pressure_decay = 0.85
pending_decay = 0.90

[market_maker]
enabled = true
budget = 2000000.0
max_position = 20000000.0
rig_probability = 0.02
rig_cooldown = 60

[trading]
# Lots stay locked this long after purchase
sell_lock = "60m"
# Cash granted to users the paper ledger has not seen
starting_balance = 100000.0
buy_fee_rate = 0.005
sell_fee_rate = 0.01
daily_liquidity_limit = 1000000.0

[[trading.fee_tiers]]
max_volume = 99999.0
multiplier = 1.0

[[trading.fee_tiers]]
max_volume = 499999.0
multiplier = 3.0

[[trading.fee_tiers]]
max_volume = 799999.0
multiplier = 8.0

[[trading.fee_tiers]]
max_volume = 999999.0
multiplier = 15.0

[[trading.fee_tiers]]
max_volume = 999999999.0
multiplier = 50.0

[storage]
# SQLite database path; defaults to market.db in the config directory
# path = ""
# Paper cash ledger; defaults to ledger.db in the config directory
# ledger_path = ""

[logging]
level = "info"
console = true
file = false

[notifications]
enabled = true
# Mirror market events into the log
log = true

[notifications.webhook]
enabled = false
url = ""

[metrics]
enabled = false
addr = ":9464"

[redis]
# Publish market events on a Redis pub/sub channel
enabled = false
addr = "localhost:6379"
channel = "synthx:market-events"
# Every tick quote, empty to disable
quote_channel = "synthx:quotes"
`

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}
