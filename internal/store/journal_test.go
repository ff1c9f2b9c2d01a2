package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"truedata-client/internal/models"
)

func newTestJournal(t *testing.T) *BarJournal {
	t.Helper()
	j, err := NewBarJournal(filepath.Join(t.TempDir(), "bars.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func testBar(symbol string, ts time.Time, close float64) models.Bar {
	return models.Bar{
		Symbol: symbol, Interval: models.BarOneMin, Timestamp: ts,
		Open: close - 1, High: close + 1, Low: close - 2, Close: close,
		Volume: 1000, OI: 50,
	}
}

func TestBarJournal_SaveAndGet(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 2, 10, 15, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		bar := testBar("TCS", base.Add(time.Duration(i)*time.Minute), 3500+float64(i))
		if err := j.SaveBar(ctx, bar); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	bars, err := j.GetBars(ctx, "TCS", models.BarOneMin, base, base.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(bars) != 5 {
		t.Fatalf("got %d bars, want 5", len(bars))
	}
	if bars[0].Close != 3500 || bars[4].Close != 3504 {
		t.Errorf("ordering wrong: first=%v last=%v", bars[0].Close, bars[4].Close)
	}
}

func TestBarJournal_RedeliveryOverwrites(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	ts := time.Date(2025, 6, 2, 10, 15, 0, 0, time.UTC)

	j.SaveBar(ctx, testBar("TCS", ts, 3500))
	j.SaveBar(ctx, testBar("TCS", ts, 3502)) // same minute, updated close

	bars, err := j.GetBars(ctx, "TCS", models.BarOneMin, ts.Add(-time.Minute), ts.Add(time.Minute))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(bars) != 1 {
		t.Fatalf("got %d bars, want 1 after overwrite", len(bars))
	}
	if bars[0].Close != 3502 {
		t.Errorf("close = %v, want 3502", bars[0].Close)
	}
}

func TestBarJournal_LatestBar(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 2, 10, 15, 0, 0, time.UTC)

	if _, ok, err := j.LatestBar(ctx, "TCS", models.BarOneMin); err != nil || ok {
		t.Fatalf("empty journal: ok=%v err=%v", ok, err)
	}

	j.SaveBar(ctx, testBar("TCS", base, 3500))
	j.SaveBar(ctx, testBar("TCS", base.Add(time.Minute), 3505))

	bar, ok, err := j.LatestBar(ctx, "TCS", models.BarOneMin)
	if err != nil || !ok {
		t.Fatalf("latest: ok=%v err=%v", ok, err)
	}
	if bar.Close != 3505 {
		t.Errorf("latest close = %v, want 3505", bar.Close)
	}
}

func TestBarJournal_Purge(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 2, 10, 15, 0, 0, time.UTC)

	j.SaveBar(ctx, testBar("TCS", base, 3500))
	j.SaveBar(ctx, testBar("TCS", base.Add(24*time.Hour), 3510))

	n, err := j.Purge(ctx, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d rows, want 1", n)
	}

	bars, _ := j.GetBars(ctx, "TCS", models.BarOneMin, base.Add(-time.Hour), base.Add(48*time.Hour))
	if len(bars) != 1 || bars[0].Close != 3510 {
		t.Errorf("remaining bars = %+v", bars)
	}
}
