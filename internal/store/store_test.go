package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	apperrors "synth-exchange/internal/errors"
	"synth-exchange/internal/models"
)

func newStores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "market.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"sqlite": sqlite,
		"memory": NewMemoryStore(),
	}
}

func TestProperty_CandleUpsertIdempotent(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			parameters := gopter.DefaultTestParameters()
			parameters.MinSuccessfulTests = 50
			properties := gopter.NewProperties(parameters)

			base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

			properties.Property("writing a candle twice leaves one row with the last values", prop.ForAll(
				func(slot int, first, second float64) bool {
					ctx := context.Background()
					ts := base.Add(time.Duration(slot) * 5 * time.Minute)
					a := models.Candle{Ticker: "IDEM", Timestamp: ts, Open: first, High: first, Low: first, Close: first}
					b := models.Candle{Ticker: "IDEM", Timestamp: ts, Open: first, High: second, Low: first, Close: second}

					if err := s.UpsertCandle(ctx, a); err != nil {
						return false
					}
					if err := s.UpsertCandle(ctx, b); err != nil {
						return false
					}

					got, err := s.GetCandles(ctx, "IDEM", ts, ts)
					if err != nil || len(got) != 1 {
						return false
					}
					return got[0].Close == second && got[0].Timestamp.Equal(ts)
				},
				gen.IntRange(0, 287),
				gen.Float64Range(1, 1000),
				gen.Float64Range(1, 1000),
			))

			properties.TestingRun(t)
		})
	}
}

func TestRecentCandlesOrder(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 10; i++ {
				c := models.Candle{Ticker: "CY", Timestamp: base.Add(time.Duration(i) * 5 * time.Minute), Close: float64(i)}
				if err := s.UpsertCandle(ctx, c); err != nil {
					t.Fatalf("UpsertCandle: %v", err)
				}
			}

			got, err := s.RecentCandles(ctx, "CY", 3)
			if err != nil {
				t.Fatalf("RecentCandles: %v", err)
			}
			if len(got) != 3 {
				t.Fatalf("got %d candles, want 3", len(got))
			}
			for i, want := range []float64{7, 8, 9} {
				if got[i].Close != want {
					t.Errorf("candle %d close = %v, want %v", i, got[i].Close, want)
				}
			}
		})
	}
}

func TestStockRoundTrip(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			st := models.NewStock("CY", "Cyberdyne Systems", "Tech", 57, 0.02)
			st.PushPrice(58, 60)
			st.PushDailyClose(56, 20)
			st.Script = &models.DailyScript{Date: day, Bias: models.BiasUp, RangeFactor: 0.03, TargetClose: 59.5}
			st.MarketPressure = 12.5
			maker := models.MarketMakerState{Position: -300, RigState: models.RigCooling, RigCooldown: 12}

			if err := s.SaveStock(ctx, StockRecord{Stock: *st, Maker: maker}); err != nil {
				t.Fatalf("SaveStock: %v", err)
			}

			recs, err := s.LoadStocks(ctx)
			if err != nil {
				t.Fatalf("LoadStocks: %v", err)
			}
			if len(recs) != 1 {
				t.Fatalf("got %d stocks, want 1", len(recs))
			}
			got := recs[0]
			if got.Stock.Ticker != "CY" || got.Stock.MarketPressure != 12.5 {
				t.Errorf("stock = %+v", got.Stock)
			}
			if len(got.Stock.PriceHistory) != 2 || len(got.Stock.DailyCloses) != 1 {
				t.Errorf("history = %v, closes = %v", got.Stock.PriceHistory, got.Stock.DailyCloses)
			}
			if got.Stock.Script == nil || !got.Stock.Script.Date.Equal(day) || got.Stock.Script.TargetClose != 59.5 {
				t.Errorf("script = %+v", got.Stock.Script)
			}
			if got.Maker != maker {
				t.Errorf("maker = %+v, want %+v", got.Maker, maker)
			}

			if err := s.DeleteStock(ctx, "CY"); err != nil {
				t.Fatalf("DeleteStock: %v", err)
			}
			recs, _ = s.LoadStocks(ctx)
			if len(recs) != 0 {
				t.Errorf("stock survived delete")
			}
		})
	}
}

func TestConsumeLotsFIFO(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		qty       int64
		cutoff    time.Time
		wantFills []models.LotFill
		wantErr   error
		wantLeft  []int64
	}{
		{
			name:      "oldest lot first",
			qty:       3,
			cutoff:    t0.Add(3 * time.Hour),
			wantFills: []models.LotFill{{LotID: "a", Quantity: 3, Price: 10}},
			wantLeft:  []int64{2, 5, 5},
		},
		{
			name:   "spans lots",
			qty:    7,
			cutoff: t0.Add(3 * time.Hour),
			wantFills: []models.LotFill{
				{LotID: "a", Quantity: 5, Price: 10},
				{LotID: "b", Quantity: 2, Price: 20},
			},
			wantLeft: []int64{3, 5},
		},
		{
			name:     "locked lot is not sellable",
			qty:      11,
			cutoff:   t0.Add(90 * time.Minute),
			wantErr:  apperrors.ErrInsufficientShares,
			wantLeft: []int64{5, 5, 5},
		},
		{
			name:     "zero quantity",
			qty:      0,
			cutoff:   t0.Add(3 * time.Hour),
			wantErr:  apperrors.ErrInvalidQuantity,
			wantLeft: []int64{5, 5, 5},
		},
	}

	for _, tt := range tests {
		for name, s := range newStores(t) {
			t.Run(tt.name+"/"+name, func(t *testing.T) {
				lots := []models.Lot{
					{ID: "a", UserID: "u1", Ticker: "CY", Quantity: 5, PurchasePrice: 10, PurchasedAt: t0},
					{ID: "b", UserID: "u1", Ticker: "CY", Quantity: 5, PurchasePrice: 20, PurchasedAt: t0.Add(time.Hour)},
					{ID: "c", UserID: "u1", Ticker: "CY", Quantity: 5, PurchasePrice: 30, PurchasedAt: t0.Add(2 * time.Hour)},
				}
				err := s.InTx(ctx, func(tx Tx) error {
					for _, l := range lots {
						if err := tx.InsertLot(ctx, l); err != nil {
							return err
						}
					}
					return nil
				})
				if err != nil {
					t.Fatalf("seed lots: %v", err)
				}

				var fills []models.LotFill
				err = s.InTx(ctx, func(tx Tx) error {
					var err error
					fills, err = tx.ConsumeLots(ctx, "u1", "CY", tt.qty, tt.cutoff)
					return err
				})
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				if tt.wantErr == nil {
					if len(fills) != len(tt.wantFills) {
						t.Fatalf("fills = %+v, want %+v", fills, tt.wantFills)
					}
					for i := range fills {
						if fills[i] != tt.wantFills[i] {
							t.Errorf("fill %d = %+v, want %+v", i, fills[i], tt.wantFills[i])
						}
					}
				}

				left, err := s.Lots(ctx, "u1", "CY")
				if err != nil {
					t.Fatalf("Lots: %v", err)
				}
				if len(left) != len(tt.wantLeft) {
					t.Fatalf("left = %+v, want quantities %v", left, tt.wantLeft)
				}
				for i, q := range tt.wantLeft {
					if left[i].Quantity != q {
						t.Errorf("lot %d quantity = %d, want %d", i, left[i].Quantity, q)
					}
				}
			})
		}
	}
}

func TestProperty_ConsumeLotsFIFO(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			parameters := gopter.DefaultTestParameters()
			parameters.MinSuccessfulTests = 50
			properties := gopter.NewProperties(parameters)

			run := 0
			properties.Property("sells fill the request from the oldest lots first", prop.ForAll(
				func(sizes []int64, qty int64) bool {
					ctx := context.Background()
					run++
					user := fmt.Sprintf("u%d", run)

					lots := make([]models.Lot, len(sizes))
					var total int64
					for i, n := range sizes {
						lots[i] = models.Lot{
							ID:            fmt.Sprintf("%s-%d", user, i),
							UserID:        user,
							Ticker:        "CY",
							Quantity:      n,
							PurchasePrice: float64(10 * (i + 1)),
							PurchasedAt:   t0.Add(time.Duration(i) * time.Minute),
						}
						total += n
					}
					err := s.InTx(ctx, func(tx Tx) error {
						for _, l := range lots {
							if err := tx.InsertLot(ctx, l); err != nil {
								return err
							}
						}
						return nil
					})
					if err != nil {
						return false
					}

					var fills []models.LotFill
					err = s.InTx(ctx, func(tx Tx) error {
						var err error
						fills, err = tx.ConsumeLots(ctx, user, "CY", qty, t0.Add(24*time.Hour))
						return err
					})

					left, lerr := s.Lots(ctx, user, "CY")
					if lerr != nil {
						return false
					}
					var remaining int64
					for _, l := range left {
						if l.Quantity <= 0 {
							return false
						}
						remaining += l.Quantity
					}

					if qty > total {
						return errors.Is(err, apperrors.ErrInsufficientShares) && remaining == total
					}
					if err != nil {
						return false
					}

					var filled int64
					for i, f := range fills {
						if f.LotID != lots[i].ID || f.Price != lots[i].PurchasePrice {
							return false
						}
						// Every fill but the last empties its lot.
						if i < len(fills)-1 && f.Quantity != lots[i].Quantity {
							return false
						}
						filled += f.Quantity
					}
					return filled == qty && remaining == total-qty
				},
				gen.SliceOf(gen.Int64Range(1, 20)),
				gen.Int64Range(1, 100),
			))

			properties.TestingRun(t)
		})
	}
}

func TestSaveTickRequiresStoredStock(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			st := models.NewStock("GONE", "Gone Corp", "listed", 10, 0.02)
			candle := models.Candle{Ticker: "GONE", Timestamp: ts, Open: 10, High: 10, Low: 10, Close: 10}

			err := s.SaveTick(ctx, StockRecord{Stock: *st}, candle)
			if !errors.Is(err, apperrors.ErrDataNotFound) {
				t.Fatalf("err = %v, want ErrDataNotFound", err)
			}
			var derr *apperrors.DataError
			if !errors.As(err, &derr) || derr.Ticker != "GONE" {
				t.Errorf("err = %v, want a data error for GONE", err)
			}
			if recs, _ := s.LoadStocks(ctx); len(recs) != 0 {
				t.Error("SaveTick inserted a stock row")
			}
			if c, _ := s.RecentCandles(ctx, "GONE", 1); len(c) != 0 {
				t.Error("SaveTick wrote a candle for a missing stock")
			}

			if err := s.SaveStock(ctx, StockRecord{Stock: *st}); err != nil {
				t.Fatalf("SaveStock: %v", err)
			}
			st.CurrentPrice = 11
			if err := s.SaveTick(ctx, StockRecord{Stock: *st}, candle); err != nil {
				t.Fatalf("SaveTick: %v", err)
			}
			recs, _ := s.LoadStocks(ctx)
			if len(recs) != 1 || recs[0].Stock.CurrentPrice != 11 {
				t.Errorf("stored = %+v, want price 11", recs)
			}
		})
	}
}

func TestInTxRollback(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("ledger down")
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			err := s.InTx(ctx, func(tx Tx) error {
				if err := tx.InsertLot(ctx, models.Lot{ID: "x", UserID: "u1", Ticker: "CY", Quantity: 1, PurchasePrice: 1, PurchasedAt: now}); err != nil {
					return err
				}
				if err := tx.AppendTrade(ctx, models.Trade{ID: "t1", UserID: "u1", Ticker: "CY", Side: models.OrderSideBuy, Quantity: 1, Gross: 1, Timestamp: now}); err != nil {
					return err
				}
				return boom
			})
			if !errors.Is(err, boom) {
				t.Fatalf("err = %v, want %v", err, boom)
			}

			lots, _ := s.UserLots(ctx, "u1")
			trades, _ := s.Trades(ctx, TradeFilter{UserID: "u1"})
			if len(lots) != 0 || len(trades) != 0 {
				t.Errorf("rolled back tx left lots=%d trades=%d", len(lots), len(trades))
			}
		})
	}
}

func TestHolders(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			err := s.InTx(ctx, func(tx Tx) error {
				for i, owner := range []string{"zed", "amy", "zed", "bob"} {
					lot := models.Lot{ID: fmt.Sprintf("h%d", i), UserID: owner, Ticker: "CY", Quantity: 2, PurchasePrice: 10, PurchasedAt: now}
					if err := tx.InsertLot(ctx, lot); err != nil {
						return err
					}
				}
				_, err := tx.ConsumeLots(ctx, "bob", "CY", 2, now)
				return err
			})
			if err != nil {
				t.Fatal(err)
			}

			got, err := s.Holders(ctx)
			if err != nil {
				t.Fatalf("Holders: %v", err)
			}
			if fmt.Sprint(got) != "[amy zed]" {
				t.Errorf("Holders = %v, want [amy zed]", got)
			}
		})
	}
}

func TestTradeAggregates(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			trades := []models.Trade{
				{ID: "1", UserID: "u1", Ticker: "CY", Side: models.OrderSideBuy, Quantity: 10, Gross: 1000, Timestamp: now.Add(-2 * time.Hour)},
				{ID: "2", UserID: "u1", Ticker: "CY", Side: models.OrderSideSell, Quantity: 5, Gross: 600, Timestamp: now.Add(-30 * time.Minute)},
				{ID: "3", UserID: "u2", Ticker: "CY", Side: models.OrderSideBuy, Quantity: 1, Gross: 50, Timestamp: now.Add(-10 * time.Minute)},
			}
			err := s.InTx(ctx, func(tx Tx) error {
				for _, tr := range trades {
					if err := tx.AppendTrade(ctx, tr); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				t.Fatalf("seed trades: %v", err)
			}

			since := now.Add(-time.Hour)
			if v, _ := s.UserVolumeSince(ctx, "u1", since); v != 600 {
				t.Errorf("UserVolumeSince = %v, want 600", v)
			}
			if n, _ := s.UserTradeCountSince(ctx, "u1", since); n != 1 {
				t.Errorf("UserTradeCountSince = %d, want 1", n)
			}
			if v, _ := s.StockVolumeSince(ctx, "CY", since); v != 650 {
				t.Errorf("StockVolumeSince = %v, want 650", v)
			}

			got, _ := s.Trades(ctx, TradeFilter{Ticker: "CY", Limit: 2})
			if len(got) != 2 || got[0].ID != "3" || got[1].ID != "2" {
				t.Errorf("Trades newest first = %+v", got)
			}
		})
	}
}

func TestMarketStateRoundTrip(t *testing.T) {
	ctx := context.Background()

	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := s.LoadMarketState(ctx); err != nil || ok {
				t.Fatalf("empty store: ok=%v err=%v", ok, err)
			}

			want := MarketState{
				Macro:      models.MacroCycle{Cycle: models.CycleBear, Volatility: models.VolatilityHigh, CycleDays: 3, VolatilityDays: 9},
				TradingDay: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			}
			if err := s.SaveMarketState(ctx, want); err != nil {
				t.Fatalf("SaveMarketState: %v", err)
			}
			got, ok, err := s.LoadMarketState(ctx)
			if err != nil || !ok {
				t.Fatalf("LoadMarketState: ok=%v err=%v", ok, err)
			}
			if got.Macro != want.Macro || !got.TradingDay.Equal(want.TradingDay) {
				t.Errorf("got %+v, want %+v", got, want)
			}
		})
	}
}

func TestSellableQuantity(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	lots := []models.Lot{
		{Quantity: 4, PurchasedAt: t0},
		{Quantity: 6, PurchasedAt: t0.Add(time.Hour)},
	}
	if got := SellableQuantity(lots, t0); got != 4 {
		t.Errorf("SellableQuantity at t0 = %d, want 4", got)
	}
	if got := SellableQuantity(lots, t0.Add(time.Hour)); got != 10 {
		t.Errorf("SellableQuantity at t0+1h = %d, want 10", got)
	}
}
