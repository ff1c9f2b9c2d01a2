package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDecodeFrame_Classification(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want FrameKind
	}{
		{"heartbeat", `{"success":true,"message":"HeartBeat","timestamp":"2025-06-02T10:15:00"}`, FrameControl},
		{"trade", `{"trade":[100,"2025-06-02T10:15:00",3500.5,5,3500,50,3490,3510,3480,3470,0,0,1000,"",1]}`, FrameTrade},
		{"bidask", `{"bidask":[100,"2025-06-02T10:15:00",3500,10,3501,12]}`, FrameBidAsk},
		{"bar1min", `{"bar1min":[100,"2025-06-02T10:15:00",3500,3510,3495,3505,1200,0]}`, FrameBarOneMin},
		{"bar5min", `{"bar5min":[100,"2025-06-02T10:15:00",3500,3510,3495,3505,1200,0]}`, FrameBarFiveMin},
		{"greeks", `{"greeks":[100,"2025-06-02T10:15:00",14.2,0.5,-3.1,0.002,8.5,1.1]}`, FrameGreeks},
		{"unknown", `{"something":"else"}`, FrameUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := DecodeFrame([]byte(tt.raw))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if frame.Kind != tt.want {
				t.Errorf("kind = %s, want %s", frame.Kind, tt.want)
			}
		})
	}
}

func TestDecodeFrame_Malformed(t *testing.T) {
	if _, err := DecodeFrame([]byte("not json")); err == nil {
		t.Error("no error for malformed frame")
	}
}

func TestDecodeTrade_WithAndWithoutBidAsk(t *testing.T) {
	base := []any{
		float64(100), "2025-06-02T10:15:00", 3500.5, float64(5), 3500.1, float64(50),
		3490.0, 3510.0, 3480.0, 3470.0, float64(200), float64(180), 1000.5, "H", float64(7),
	}

	tr, err := DecodeTrade(base)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tr.SymbolID != 100 || tr.LTP != 3500.5 || tr.SpecialTag != "H" || tr.TickSeq != 7 {
		t.Errorf("trade = %+v", tr)
	}
	if tr.HasBidAsk {
		t.Error("HasBidAsk set without bid/ask fields")
	}

	withBA := append(append([]any{}, base...), 3500.0, float64(10), 3501.0, float64(12))
	tr, err = DecodeTrade(withBA)
	if err != nil {
		t.Fatalf("decode with bidask: %v", err)
	}
	if !tr.HasBidAsk || tr.Bid != 3500 || tr.AskQty != 12 {
		t.Errorf("bidask fields = %+v", tr)
	}
}

func TestDecodeTrade_TooShort(t *testing.T) {
	if _, err := DecodeTrade([]any{float64(100)}); err == nil {
		t.Error("no error for short trade frame")
	}
}

func TestDecodeTouchlineEntry_StringCoercion(t *testing.T) {
	// The gateway serializes most numerics as strings.
	raw := json.RawMessage(`["TCS","100","2025-06-02T10:15:00","3500.5","5","3500.1","50","3490","3510","3480","3470","200","180","1000.5","3500","10","3501","12"]`)
	tl, err := DecodeTouchlineEntry(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tl.Symbol != "TCS" || tl.SymbolID != 100 || tl.LTP != 3500.5 {
		t.Errorf("touchline = %+v", tl)
	}
	if tl.Bid != 3500 || tl.AskQty != 12 {
		t.Errorf("bidask = %+v", tl)
	}
	if !tl.Populated {
		t.Error("Populated not set")
	}
	want := time.Date(2025, 6, 2, 10, 15, 0, 0, time.UTC)
	if !tl.Timestamp.Equal(want) {
		t.Errorf("timestamp = %s", tl.Timestamp)
	}
}

func TestSymbolListEntrySymbol_BothForms(t *testing.T) {
	if got := SymbolListEntrySymbol(json.RawMessage(`"TCS"`)); got != "TCS" {
		t.Errorf("bare string form = %q", got)
	}
	if got := SymbolListEntrySymbol(json.RawMessage(`["INFY",101]`)); got != "INFY" {
		t.Errorf("array form = %q", got)
	}
	if got := SymbolListEntrySymbol(json.RawMessage(`{}`)); got != "" {
		t.Errorf("object form = %q, want empty", got)
	}
}

func TestParseFeedKinds(t *testing.T) {
	tests := []struct {
		in   string
		want FeedKinds
	}{
		{"tick", FeedKinds(0).With(FeedTick)},
		{"1min", FeedKinds(0).With(FeedOneMin)},
		{"tick+1min", FeedKinds(0).With(FeedTick).With(FeedOneMin)},
		{"tick+1min+5min", FeedKinds(0).With(FeedTick).With(FeedOneMin).With(FeedFiveMin)},
		{"", FeedKinds(0)},
	}
	for _, tt := range tests {
		if got := ParseFeedKinds(tt.in); got != tt.want {
			t.Errorf("ParseFeedKinds(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if s := ParseFeedKinds("tick+5min").String(); s != "tick+5min" {
		t.Errorf("round trip = %q", s)
	}
}
