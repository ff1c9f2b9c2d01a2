package chain

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"truedata-client/internal/live"
	"truedata-client/internal/models"
)

func TestDeriveRow_ComputesChanges(t *testing.T) {
	row := &models.ChainRow{LTP: 110, PrevClose: 100, OI: 1500, PrevOI: 1000}
	deriveRow(row)

	if row.Change != 10 {
		t.Errorf("change = %v, want 10", row.Change)
	}
	if row.ChangePercent != 10 {
		t.Errorf("change%% = %v, want 10", row.ChangePercent)
	}
	if row.OIChange != 500 {
		t.Errorf("oi change = %v, want 500", row.OIChange)
	}
	if row.OIChangePerc != 50 {
		t.Errorf("oi change%% = %v, want 50", row.OIChangePerc)
	}
}

func TestNew_RetriesDefinitionFetch(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("symbol,expiry,strike,type\nNIFTY,2025-06-26,19500,CE\nNIFTY,2025-06-26,19550,CE\n"))
	}))
	defer srv.Close()

	sess := live.NewSession(live.SessionConfig{URL: "ws://unused"}, live.NewStore(), nil, zerolog.Nop())
	c, err := New(context.Background(), Config{
		Root:          "NIFTY",
		Expiry:        time.Date(2025, 6, 26, 0, 0, 0, 0, time.UTC),
		FuturePrice:   19532,
		Length:        10,
		DefinitionURL: srv.URL,
	}, sess, zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if calls != 2 {
		t.Errorf("definition fetch attempts = %d, want 2", calls)
	}
	if c.cfg.StrikeStep != 50 {
		t.Errorf("inferred step = %v, want 50", c.cfg.StrikeStep)
	}
}

// The market-close exit must run the same teardown as Stop: legs released and
// the running flag cleared.
func TestChain_MarketCloseRoutesThroughStop(t *testing.T) {
	sess := live.NewSession(live.SessionConfig{FirstSubscriptionID: 2000}, live.NewStore(), nil, zerolog.Nop())
	c, err := New(context.Background(), Config{
		Root:         "NIFTY",
		Expiry:       time.Date(2025, 6, 26, 0, 0, 0, 0, time.UTC),
		FuturePrice:  19532,
		Length:       2,
		StrikeStep:   50,
		PollInterval: time.Millisecond,
	}, sess, zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	c.marketOpen = func() bool { return false }

	c.mu.Lock()
	c.running = true
	c.mu.Unlock()
	go c.pollLoop()

	deadline := time.Now().Add(time.Second)
	for {
		c.mu.RLock()
		running := c.running
		c.mu.RUnlock()
		if !running {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("market close did not stop the chain")
		}
		time.Sleep(5 * time.Millisecond)
	}
	select {
	case <-c.done:
	default:
		t.Error("done channel not closed on market-close exit")
	}
}

func TestDeriveRow_ZeroDenominators(t *testing.T) {
	row := &models.ChainRow{LTP: 110, PrevClose: 0, OI: 1500, PrevOI: 0}
	deriveRow(row)

	// Missing denominators substitute zero rather than dividing.
	if row.ChangePercent != 0 {
		t.Errorf("change%% = %v, want 0", row.ChangePercent)
	}
	if row.OIChangePerc != 0 {
		t.Errorf("oi change%% = %v, want 0", row.OIChangePerc)
	}
	if row.Change != 110 {
		t.Errorf("change = %v, want 110", row.Change)
	}
}
