// Package config provides configuration management for the market simulator.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Market        MarketConfig       `mapstructure:"market"`
	Simulation    SimulationConfig   `mapstructure:"simulation"`
	MarketMaker   MarketMakerConfig  `mapstructure:"market_maker"`
	Trading       TradingConfig      `mapstructure:"trading"`
	Storage       StorageConfig      `mapstructure:"storage"`
	Logging       LoggingConfig      `mapstructure:"logging"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Metrics       MetricsConfig      `mapstructure:"metrics"`
	Redis         RedisConfig        `mapstructure:"redis"`
}

// MarketConfig holds the trading window.
type MarketConfig struct {
	OpenTime  string `mapstructure:"open_time"`  // HH:MM:SS
	CloseTime string `mapstructure:"close_time"` // HH:MM:SS, inclusive
	Timezone  string `mapstructure:"timezone"`
}

// SimulationConfig holds price engine tunables.
type SimulationConfig struct {
	Seed           int64         `mapstructure:"seed"` // 0 seeds from the clock
	TickInterval   time.Duration `mapstructure:"tick_interval"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
	TicksPerDay    int           `mapstructure:"ticks_per_day"`
	SeedStocks     bool          `mapstructure:"seed_stocks"`
	PersistWorkers int           `mapstructure:"persist_workers"`

	VolatilityMultiplier float64 `mapstructure:"volatility_multiplier"`
	WaveStartProbability float64 `mapstructure:"wave_start_probability"`
	BigWaveProbability   float64 `mapstructure:"big_wave_probability"`
	SmallWavePeakMin     float64 `mapstructure:"small_wave_peak_min"`
	SmallWavePeakMax     float64 `mapstructure:"small_wave_peak_max"`
	SmallWaveMinTicks    int     `mapstructure:"small_wave_min_ticks"`
	SmallWaveMaxTicks    int     `mapstructure:"small_wave_max_ticks"`
	BigWavePeakMin       float64 `mapstructure:"big_wave_peak_min"`
	BigWavePeakMax       float64 `mapstructure:"big_wave_peak_max"`
	BigWaveMinTicks      int     `mapstructure:"big_wave_min_ticks"`
	BigWaveMaxTicks      int     `mapstructure:"big_wave_max_ticks"`
	RandomWalkSigma      float64 `mapstructure:"random_walk_sigma"`
	SMAWindow            int     `mapstructure:"sma_window"`
	MeanReversionFactor  float64 `mapstructure:"mean_reversion_factor"`
	AnchorPullFactor     float64 `mapstructure:"anchor_pull_factor"`
	PressureInfluence    float64 `mapstructure:"pressure_influence"`
	WickFactor           float64 `mapstructure:"wick_factor"`

	NativeEventProbability float64 `mapstructure:"native_event_probability"`
	PressureDecay          float64 `mapstructure:"pressure_decay"`
	PendingDecay           float64 `mapstructure:"pending_decay"`
	PendingConversion      float64 `mapstructure:"pending_conversion"`
	FundamentalDrift       float64 `mapstructure:"fundamental_drift"`

	MacroMinDwell               int     `mapstructure:"macro_min_dwell"`
	CycleSwitchProbability      float64 `mapstructure:"cycle_switch_probability"`
	VolatilitySwitchProbability float64 `mapstructure:"volatility_switch_probability"`

	PriceHistoryLen  int `mapstructure:"price_history_len"`
	DailyCloseLen    int `mapstructure:"daily_close_len"`
	CandleHistoryLen int `mapstructure:"candle_history_len"`
}

// MarketMakerConfig holds market maker tunables.
type MarketMakerConfig struct {
	Enabled               bool    `mapstructure:"enabled"`
	Budget                float64 `mapstructure:"budget"`
	MaxPosition           float64 `mapstructure:"max_position"`
	BaseImpact            float64 `mapstructure:"base_impact"`
	DeviationThreshold    float64 `mapstructure:"deviation_threshold"`
	MaxIntensity          float64 `mapstructure:"max_intensity"`
	CounterTradeIntensity float64 `mapstructure:"counter_trade_intensity"`
	PressureThreshold     float64 `mapstructure:"pressure_threshold"`
	RigProbability        float64 `mapstructure:"rig_probability"`
	RigUpProbability      float64 `mapstructure:"rig_up_probability"`
	RigCooldown           int     `mapstructure:"rig_cooldown"`
	MaxRigPressure        float64 `mapstructure:"max_rig_pressure"`
	TrapDuration          int     `mapstructure:"trap_duration"`
	HarvestDuration       int     `mapstructure:"harvest_duration"`
	DipWindow             int     `mapstructure:"dip_window"`
	DipDeclineThreshold   float64 `mapstructure:"dip_decline_threshold"`
	DipMaxJump            float64 `mapstructure:"dip_max_jump"`
	DipCooldown           int     `mapstructure:"dip_cooldown"`
	DipMaxPressure        float64 `mapstructure:"dip_max_pressure"`
}

// FeeTier maps a cumulative same-day traded value ceiling to a fee multiplier.
type FeeTier struct {
	MaxVolume  float64 `mapstructure:"max_volume"`
	Multiplier float64 `mapstructure:"multiplier"`
}

// TradingConfig holds order settlement tunables.
type TradingConfig struct {
	SellLock        time.Duration `mapstructure:"sell_lock"`
	LedgerTimeout   time.Duration `mapstructure:"ledger_timeout"`
	StartingBalance float64       `mapstructure:"starting_balance"`

	BuyFeeRate               float64       `mapstructure:"buy_fee_rate"`
	SellFeeRate              float64       `mapstructure:"sell_fee_rate"`
	FeeTiers                 []FeeTier     `mapstructure:"fee_tiers"`
	FrequentTradeWindow      time.Duration `mapstructure:"frequent_trade_window"`
	FrequentTradeThreshold   int           `mapstructure:"frequent_trade_threshold"`
	FrequentTradeStep        float64       `mapstructure:"frequent_trade_step"`
	MaxTradesForPenalty      int           `mapstructure:"max_trades_for_penalty"`
	FrequentTradePenalty     float64       `mapstructure:"frequent_trade_penalty"`
	SlippageFactor           float64       `mapstructure:"slippage_factor"`
	MaxSlippage              float64       `mapstructure:"max_slippage"`
	DailyLiquidityLimit      float64       `mapstructure:"daily_liquidity_limit"`
	ExtremeSlippageThreshold float64       `mapstructure:"extreme_slippage_threshold"`
	MaxExtremeSlippage       float64       `mapstructure:"max_extreme_slippage"`
	LiquidityShortagePenalty float64       `mapstructure:"liquidity_shortage_penalty"`
	NearCapRatio             float64       `mapstructure:"near_cap_ratio"`

	CostPressureFactor   float64 `mapstructure:"cost_pressure_factor"`
	BuyPressureRatio     float64 `mapstructure:"buy_pressure_ratio"`
	PendingSellRatio     float64 `mapstructure:"pending_sell_ratio"`
	SellPressureFactor   float64 `mapstructure:"sell_pressure_factor"`
	ProfitSellMultiplier float64 `mapstructure:"profit_sell_multiplier"`
	LossSellRatio        float64 `mapstructure:"loss_sell_ratio"`
	PendingReleaseRatio  float64 `mapstructure:"pending_release_ratio"`

	DilutionRatio       float64 `mapstructure:"dilution_ratio"`
	MaxDilutionPerTrade int64   `mapstructure:"max_dilution_per_trade"`

	ListedVolatility        float64 `mapstructure:"listed_volatility"`
	EarningsSensitivity     float64 `mapstructure:"earnings_sensitivity"`
	IntrinsicPressureFactor float64 `mapstructure:"intrinsic_pressure_factor"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	Path       string `mapstructure:"path"`
	LedgerPath string `mapstructure:"ledger_path"` // paper cash ledger, kept apart from Path
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Log     bool          `mapstructure:"log"`
	Webhook WebhookConfig `mapstructure:"webhook"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// MetricsConfig holds Prometheus exporter configuration.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addr      string `mapstructure:"addr"`
	Namespace string `mapstructure:"namespace"`
}

// RedisConfig holds the Redis pub/sub notification channel configuration.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`

	// QuoteChannel carries every tick quote; empty disables the feed.
	QuoteChannel string `mapstructure:"quote_channel"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/synthx"
	}
	return filepath.Join(home, ".config", "synthx")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	// Missing .env is fine.
	_ = godotenv.Load(filepath.Join(configDir, ".env"))

	cfg := Default()
	cfg.Storage.Path = filepath.Join(configDir, "market.db")
	cfg.Storage.LedgerPath = filepath.Join(configDir, "ledger.db")

	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, target *Config) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, target)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateConfig(configDir, name)
		}
		return err
	}

	// Slices decode element-wise onto existing values.
	if v.IsSet("trading.fee_tiers") {
		target.Trading.FeeTiers = nil
	}

	return v.Unmarshal(target)
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("market.open_time", d.Market.OpenTime)
	v.SetDefault("market.close_time", d.Market.CloseTime)
	v.SetDefault("market.timezone", d.Market.Timezone)
	v.SetDefault("simulation.tick_interval", d.Simulation.TickInterval)
	v.SetDefault("simulation.retry_backoff", d.Simulation.RetryBackoff)
	v.SetDefault("simulation.seed_stocks", d.Simulation.SeedStocks)
	v.SetDefault("market_maker.enabled", d.MarketMaker.Enabled)
	v.SetDefault("trading.sell_lock", d.Trading.SellLock)
	v.SetDefault("trading.starting_balance", d.Trading.StartingBalance)
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("storage.ledger_path", d.Storage.LedgerPath)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("redis.enabled", d.Redis.Enabled)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.channel", d.Redis.Channel)
	v.SetDefault("redis.quote_channel", d.Redis.QuoteChannel)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SYNTHX_DB_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("SYNTHX_LEDGER_PATH"); v != "" {
		cfg.Storage.LedgerPath = v
	}
	if v := os.Getenv("SYNTHX_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SYNTHX_TIMEZONE"); v != "" {
		cfg.Market.Timezone = v
	}
	if v := os.Getenv("SYNTHX_SEED"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Simulation.Seed = seed
		}
	}
	if v := os.Getenv("SYNTHX_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("SYNTHX_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SYNTHX_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, err := c.Market.Location(); err != nil {
		return err
	}
	open, err := c.Market.OpenOffset()
	if err != nil {
		return err
	}
	closeAt, err := c.Market.CloseOffset()
	if err != nil {
		return err
	}
	if closeAt <= open {
		return fmt.Errorf("close_time must be after open_time")
	}

	s := c.Simulation
	if s.TicksPerDay <= 0 {
		return fmt.Errorf("ticks_per_day must be positive")
	}
	if s.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive")
	}
	if s.PressureDecay <= 0 || s.PressureDecay >= 1 {
		return fmt.Errorf("pressure_decay must be between 0 and 1")
	}
	if s.PendingDecay <= 0 || s.PendingDecay >= 1 {
		return fmt.Errorf("pending_decay must be between 0 and 1")
	}
	if s.PendingConversion < 0 || s.PendingConversion > 1 {
		return fmt.Errorf("pending_conversion must be between 0 and 1")
	}
	if s.SmallWaveMinTicks <= 0 || s.SmallWaveMaxTicks < s.SmallWaveMinTicks {
		return fmt.Errorf("invalid small wave duration range")
	}
	if s.BigWaveMinTicks <= 0 || s.BigWaveMaxTicks < s.BigWaveMinTicks {
		return fmt.Errorf("invalid big wave duration range")
	}

	m := c.MarketMaker
	if m.MaxPosition < 0 {
		return fmt.Errorf("market_maker.max_position must be non-negative")
	}
	if m.TrapDuration <= 0 || m.HarvestDuration <= 0 {
		return fmt.Errorf("market_maker trap and harvest durations must be positive")
	}

	t := c.Trading
	if t.SellLock < 0 {
		return fmt.Errorf("sell_lock must be non-negative")
	}
	if t.MaxSlippage < 0 || t.MaxSlippage >= 1 {
		return fmt.Errorf("max_slippage must be in [0, 1)")
	}
	if t.DailyLiquidityLimit <= 0 {
		return fmt.Errorf("daily_liquidity_limit must be positive")
	}
	if len(t.FeeTiers) == 0 {
		return fmt.Errorf("at least one fee tier is required")
	}
	for i := 1; i < len(t.FeeTiers); i++ {
		if t.FeeTiers[i].MaxVolume <= t.FeeTiers[i-1].MaxVolume {
			return fmt.Errorf("fee tiers must be sorted by max_volume")
		}
	}

	return nil
}

// Location returns the market time zone.
func (m MarketConfig) Location() (*time.Location, error) {
	if m.Timezone == "" || m.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(m.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", m.Timezone, err)
	}
	return loc, nil
}

// OpenOffset returns the open time as an offset from midnight.
func (m MarketConfig) OpenOffset() (time.Duration, error) {
	return parseClock(m.OpenTime)
}

// CloseOffset returns the close time as an offset from midnight.
func (m MarketConfig) CloseOffset() (time.Duration, error) {
	return parseClock(m.CloseTime)
}

func parseClock(s string) (time.Duration, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second, nil
		}
	}
	return 0, fmt.Errorf("invalid clock time %q (want HH:MM[:SS])", s)
}
