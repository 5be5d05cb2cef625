package stream

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"synth-exchange/internal/models"
)

func receive(ch <-chan models.Quote, timeout time.Duration) (models.Quote, bool) {
	select {
	case q, ok := <-ch:
		return q, ok
	case <-time.After(timeout):
		return models.Quote{}, false
	}
}

func TestProperty_SubscribersReceiveQuotes(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	tickers := []string{"CY", "HL", "JD", "DL", "HK", "GH"}

	properties.Property("every subscriber of a ticker receives every quote in order", prop.ForAll(
		func(subscribers, quotes, idx int) bool {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			hub := NewHub()
			hub.Start(ctx)
			defer hub.Stop()

			ticker := tickers[idx]
			chans := make([]<-chan models.Quote, subscribers)
			for i := range chans {
				chans[i] = hub.Subscribe(ticker)
			}

			for i := 0; i < quotes; i++ {
				hub.Publish(models.Quote{Ticker: ticker, Price: float64(i + 1)})
			}

			for _, ch := range chans {
				for i := 0; i < quotes; i++ {
					q, ok := receive(ch, time.Second)
					if !ok || q.Price != float64(i+1) {
						return false
					}
				}
			}
			return true
		},
		gen.IntRange(1, 5),
		gen.IntRange(1, 20),
		gen.IntRange(0, len(tickers)-1),
	))

	properties.TestingRun(t)
}

type countingConsumer struct {
	tickers []string
	seen    atomic.Int32
}

func (c *countingConsumer) OnQuote(models.Quote) { c.seen.Add(1) }
func (c *countingConsumer) Tickers() []string    { return c.tickers }

func TestWildcardAndFiltering(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	hub.Start(ctx)
	defer hub.Stop()

	all := hub.Subscribe(AllTickers)
	cy := hub.Subscribe("CY")

	hl := &countingConsumer{tickers: []string{"HL"}}
	hub.RegisterConsumer(hl)

	hub.Publish(models.Quote{Ticker: "HL", Price: 49})
	hub.Publish(models.Quote{Ticker: "CY", Price: 57})

	if q, ok := receive(all, time.Second); !ok || q.Ticker != "HL" {
		t.Fatalf("wildcard first quote = %+v, %v", q, ok)
	}
	if q, ok := receive(all, time.Second); !ok || q.Ticker != "CY" {
		t.Fatalf("wildcard second quote = %+v, %v", q, ok)
	}
	if q, ok := receive(cy, time.Second); !ok || q.Price != 57 {
		t.Fatalf("CY quote = %+v, %v", q, ok)
	}
	if hl.seen.Load() != 1 {
		t.Errorf("consumer saw %d quotes, want 1", hl.seen.Load())
	}
}

func TestUnsubscribeAllClosesChannels(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe("GH")
	hub.UnsubscribeAll("GH")

	if _, ok := <-ch; ok {
		t.Fatal("channel still open after UnsubscribeAll")
	}
	if hub.SubscriberCount("GH") != 0 {
		t.Error("subscriber not removed")
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	hub := NewHubWithConfig(HubConfig{BufferSize: 1, SubscriberBufferSize: 1})
	hub.Publish(models.Quote{Ticker: "CY"})
	hub.Publish(models.Quote{Ticker: "CY"})

	if got := hub.Metrics().Dropped; got != 1 {
		t.Errorf("dropped = %d, want 1", got)
	}
}
