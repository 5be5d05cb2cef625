package trading

import (
	"context"
	"testing"
	"time"
)

func TestPortfolioValuesHoldings(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	ctx := context.Background()

	if _, err := f.engine.Buy(ctx, user, "X", 10); err != nil {
		t.Fatal(err)
	}
	f.advance(61 * time.Minute)
	if _, err := f.engine.Buy(ctx, user, "Y", 4); err != nil {
		t.Fatal(err)
	}
	f.setPrice(t, "X", 110)

	p, err := f.engine.Portfolio(ctx, user)
	if err != nil {
		t.Fatalf("Portfolio: %v", err)
	}
	if len(p.Positions) != 2 {
		t.Fatalf("positions = %+v", p.Positions)
	}

	x := p.Positions[0]
	if x.Ticker != "X" || x.Quantity != 10 || x.Sellable != 10 || x.AverageCost != 100 ||
		x.MarketValue != 1100 || x.ProfitLoss != 100 {
		t.Errorf("X position = %+v", x)
	}
	y := p.Positions[1]
	if y.Ticker != "Y" || y.Quantity != 4 || y.Sellable != 0 || y.MarketValue != 400 {
		t.Errorf("Y position = %+v", y)
	}

	// 1 000 000 - (1000 + 5) - (400 + 2)
	if p.Balance != 998_593 {
		t.Errorf("balance = %v, want 998593", p.Balance)
	}
	if p.MarketValue != 1500 || p.TotalAsset != 1_000_093 {
		t.Errorf("market value = %v total = %v", p.MarketValue, p.TotalAsset)
	}
}

func TestPortfolioSkipsDelistedStocks(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	ctx := context.Background()

	if _, err := f.engine.Buy(ctx, user, "X", 10); err != nil {
		t.Fatal(err)
	}
	if err := f.market.Delist(ctx, "X"); err != nil {
		t.Fatalf("Delist: %v", err)
	}

	p, err := f.engine.Portfolio(ctx, user)
	if err != nil {
		t.Fatalf("Portfolio: %v", err)
	}
	if len(p.Positions) != 0 || p.MarketValue != 0 {
		t.Errorf("portfolio = %+v, want no positions", p)
	}
}

func TestEmptyPortfolio(t *testing.T) {
	f := newFixture(t, fixtureOpts{balance: 5000})
	p, err := f.engine.Portfolio(context.Background(), "nobody")
	if err != nil {
		t.Fatal(err)
	}
	if p.Balance != 5000 || p.TotalAsset != 5000 || len(p.Positions) != 0 {
		t.Errorf("portfolio = %+v", p)
	}
}

func TestRankingOrdersHoldersByTotalAsset(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	ctx := context.Background()

	for userID, qty := range map[string]int64{"small": 5, "large": 20, "medium": 10} {
		if _, err := f.engine.Buy(ctx, userID, "X", qty); err != nil {
			t.Fatal(err)
		}
	}
	f.setPrice(t, "X", 200)

	ranking, err := f.engine.Ranking(ctx, 0)
	if err != nil {
		t.Fatalf("Ranking: %v", err)
	}
	if len(ranking) != 3 {
		t.Fatalf("ranking = %+v, want 3 holders", ranking)
	}
	for i, want := range []string{"large", "medium", "small"} {
		e := ranking[i]
		if e.UserID != want || e.Rank != i+1 {
			t.Errorf("rank %d = %+v, want %s", i+1, e, want)
		}
		p, err := f.engine.Portfolio(ctx, e.UserID)
		if err != nil {
			t.Fatal(err)
		}
		if e.Balance != p.Balance || e.MarketValue != p.MarketValue || e.TotalAsset != p.TotalAsset {
			t.Errorf("%s entry = %+v, portfolio = %+v", e.UserID, e, p)
		}
	}

	top, err := f.engine.Ranking(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 1 || top[0].UserID != "large" {
		t.Errorf("top 1 = %+v", top)
	}
}

func TestRankingSkipsUsersWithoutLots(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	ctx := context.Background()

	if _, err := f.engine.Buy(ctx, user, "X", 10); err != nil {
		t.Fatal(err)
	}
	f.advance(61 * time.Minute)
	if _, err := f.engine.Sell(ctx, user, "X", 10); err != nil {
		t.Fatal(err)
	}

	ranking, err := f.engine.Ranking(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(ranking) != 0 {
		t.Errorf("ranking = %+v, want empty after selling out", ranking)
	}
}
