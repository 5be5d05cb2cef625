package config

import "time"

// Default returns the configuration used when no file overrides a value.
func Default() *Config {
	return &Config{
		Market: MarketConfig{
			OpenTime:  "08:00:00",
			CloseTime: "23:59:59",
			Timezone:  "Local",
		},
		Simulation: SimulationConfig{
			TickInterval:   5 * time.Minute,
			RetryBackoff:   60 * time.Second,
			TicksPerDay:    288,
			SeedStocks:     true,
			PersistWorkers: 4,

			VolatilityMultiplier: 2.2,
			WaveStartProbability: 0.3,
			BigWaveProbability:   0.03,
			SmallWavePeakMin:     0.4,
			SmallWavePeakMax:     0.8,
			SmallWaveMinTicks:    5,
			SmallWaveMaxTicks:    12,
			BigWavePeakMin:       1.0,
			BigWavePeakMax:       1.6,
			BigWaveMinTicks:      12,
			BigWaveMaxTicks:      24,
			RandomWalkSigma:      0.8,
			SMAWindow:            5,
			MeanReversionFactor:  0.15,
			AnchorPullFactor:     0.05,
			PressureInfluence:    0.01,
			WickFactor:           0.8,

			NativeEventProbability: 0.001,
			PressureDecay:          0.85,
			PendingDecay:           0.90,
			PendingConversion:      0.05,
			FundamentalDrift:       0.001,

			MacroMinDwell:               7,
			CycleSwitchProbability:      1.0 / 7.0,
			VolatilitySwitchProbability: 1.0 / 5.0,

			PriceHistoryLen:  60,
			DailyCloseLen:    20,
			CandleHistoryLen: 9000,
		},
		MarketMaker: MarketMakerConfig{
			Enabled:               true,
			Budget:                2_000_000,
			MaxPosition:           20_000_000,
			BaseImpact:            0.00002,
			DeviationThreshold:    0.15,
			MaxIntensity:          0.25,
			CounterTradeIntensity: 0.3,
			PressureThreshold:     50_000,
			RigProbability:        0.02,
			RigUpProbability:      0.7,
			RigCooldown:           60,
			MaxRigPressure:        50,
			TrapDuration:          5,
			HarvestDuration:       5,
			DipWindow:             5,
			DipDeclineThreshold:   0.25,
			DipMaxJump:            0.5,
			DipCooldown:           30,
			DipMaxPressure:        80,
		},
		Trading: TradingConfig{
			SellLock:        60 * time.Minute,
			LedgerTimeout:   5 * time.Second,
			StartingBalance: 100_000,

			BuyFeeRate:  0.005,
			SellFeeRate: 0.01,
			FeeTiers: []FeeTier{
				{MaxVolume: 99_999, Multiplier: 1},
				{MaxVolume: 499_999, Multiplier: 3},
				{MaxVolume: 799_999, Multiplier: 8},
				{MaxVolume: 999_999, Multiplier: 15},
				{MaxVolume: 999_999_999, Multiplier: 50},
			},
			FrequentTradeWindow:      time.Hour,
			FrequentTradeThreshold:   5,
			FrequentTradeStep:        0.2,
			MaxTradesForPenalty:      20,
			FrequentTradePenalty:     2.0,
			SlippageFactor:           0.0000005,
			MaxSlippage:              0.3,
			DailyLiquidityLimit:      1_000_000,
			ExtremeSlippageThreshold: 500_000,
			MaxExtremeSlippage:       0.8,
			LiquidityShortagePenalty: 0.1,
			NearCapRatio:             0.8,

			CostPressureFactor:   0.0000002,
			BuyPressureRatio:     0.5,
			PendingSellRatio:     0.8,
			SellPressureFactor:   0.0000003,
			ProfitSellMultiplier: 2.0,
			LossSellRatio:        0.8,
			PendingReleaseRatio:  0.5,

			DilutionRatio:       0.8,
			MaxDilutionPerTrade: 1_000_000,

			ListedVolatility:        0.025,
			EarningsSensitivity:     0.5,
			IntrinsicPressureFactor: 5,
		},
		Storage: StorageConfig{
			Path:       "market.db",
			LedgerPath: "ledger.db",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Console:    true,
			MaxSize:    100,
			MaxBackups: 7,
			MaxAge:     30,
		},
		Notifications: NotificationConfig{
			Enabled: true,
			Log:     true,
			Timeout: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Addr:      ":9464",
			Namespace: "synthx",
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			Channel:      "synthx:market-events",
			QuoteChannel: "synthx:quotes",
		},
	}
}
