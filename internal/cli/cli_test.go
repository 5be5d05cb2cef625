package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"synth-exchange/internal/models"
	"synth-exchange/internal/stream"
)

func run(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := NewRootCmd(zerolog.Nop())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", dir}, args...))
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("synthx %s: %v\n%s", strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

func TestStocksSeedsDefaultBoard(t *testing.T) {
	dir := t.TempDir()

	var stocks []models.Stock
	if err := json.Unmarshal([]byte(run(t, dir, "--json", "stocks")), &stocks); err != nil {
		t.Fatal(err)
	}
	if len(stocks) != 6 {
		t.Fatalf("got %d stocks, want the 6 seeded ones", len(stocks))
	}
	if stocks[0].Ticker != "CY" {
		t.Errorf("stocks not ordered by ticker: %s first", stocks[0].Ticker)
	}
}

func TestListQuoteDelist(t *testing.T) {
	dir := t.TempDir()

	var listed models.Stock
	if err := json.Unmarshal([]byte(run(t, dir, "--json", "list", "acme", "25.5", "--shares", "1000", "--name", "Acme Corp")), &listed); err != nil {
		t.Fatal(err)
	}
	if listed.Ticker != "ACME" || !listed.IsListed || listed.CurrentPrice != 25.5 || listed.TotalShares != 1000 {
		t.Fatalf("listed = %+v", listed)
	}

	var quote struct {
		Quote models.Quote            `json:"quote"`
		Maker models.MarketMakerState `json:"maker"`
	}
	if err := json.Unmarshal([]byte(run(t, dir, "--json", "quote", "ACME")), &quote); err != nil {
		t.Fatal(err)
	}
	if quote.Quote.Price != 25.5 {
		t.Errorf("quote price = %v, want 25.5 after reload", quote.Quote.Price)
	}
	if quote.Maker.RigState != models.RigNone {
		t.Errorf("maker state = %+v, want idle for a new listing", quote.Maker)
	}

	run(t, dir, "delist", "ACME")

	var stocks []models.Stock
	if err := json.Unmarshal([]byte(run(t, dir, "--json", "stocks")), &stocks); err != nil {
		t.Fatal(err)
	}
	for _, s := range stocks {
		if s.Ticker == "ACME" {
			t.Errorf("ACME still listed after delist")
		}
	}
}

func TestSimulateIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	a := run(t, dir, "--json", "simulate", "--days", "1", "--seed", "9")
	b := run(t, dir, "--json", "simulate", "--days", "1", "--seed", "9")
	if a != b {
		t.Errorf("same seed produced different replays")
	}
	if !strings.Contains(a, `"ticks"`) {
		t.Errorf("unexpected output: %s", a)
	}
}

func TestRankingEmptyMarket(t *testing.T) {
	dir := t.TempDir()

	out := run(t, dir, "--json", "ranking", "-n", "3")
	var ranking []models.RankingEntry
	if err := json.Unmarshal([]byte(out), &ranking); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if len(ranking) != 0 {
		t.Errorf("ranking = %+v, want no holders", ranking)
	}
	if text := run(t, dir, "ranking"); !strings.Contains(text, "No holders yet") {
		t.Errorf("text output = %q", text)
	}
}

func TestConfigShow(t *testing.T) {
	out := run(t, t.TempDir(), "config", "show")
	for _, want := range []string{"Market", "Trading", "Ledger DB"} {
		if !strings.Contains(out, want) {
			t.Errorf("config show missing %q:\n%s", want, out)
		}
	}
}

func TestLogStreamMetrics(t *testing.T) {
	hub := stream.NewHub()
	hub.Subscribe("CY")
	hub.Subscribe("CY")
	hub.Publish(models.Quote{Ticker: "CY"})

	var buf bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	logStreamMetrics(ctx, zerolog.New(&buf), hub, []string{"CY", "HL"}, 10*time.Millisecond)

	line, _, _ := strings.Cut(buf.String(), "\n")
	var entry struct {
		Operation   string `json:"operation"`
		Subscribers int    `json:"subscribers"`
		Message     string `json:"message"`
	}
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("decoding %q: %v", line, err)
	}
	if entry.Message != "Stream metrics" || entry.Operation != "stream" || entry.Subscribers != 2 {
		t.Errorf("log entry = %+v", entry)
	}
}
