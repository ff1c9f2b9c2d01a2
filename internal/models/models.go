// Package models provides domain models for the market-data client.
package models

import (
	"time"
)

// FeedKind identifies which real-time feeds a session carries.
type FeedKind uint8

const (
	FeedTick FeedKind = 1 << iota
	FeedOneMin
	FeedFiveMin
)

// FeedKinds is the set of feeds active on a session.
type FeedKinds uint8

// Has reports whether the set contains the given kind.
func (f FeedKinds) Has(k FeedKind) bool { return uint8(f)&uint8(k) != 0 }

// With returns the set with the given kind added.
func (f FeedKinds) With(k FeedKind) FeedKinds { return FeedKinds(uint8(f) | uint8(k)) }

// ParseFeedKinds converts the server's subscription string
// (e.g. "tick", "tick+1min", "1min+5min") into a flag set.
func ParseFeedKinds(subscription string) FeedKinds {
	var out FeedKinds
	start := 0
	for i := 0; i <= len(subscription); i++ {
		if i == len(subscription) || subscription[i] == '+' {
			switch subscription[start:i] {
			case "tick":
				out = out.With(FeedTick)
			case "1min":
				out = out.With(FeedOneMin)
			case "5min":
				out = out.With(FeedFiveMin)
			}
			start = i + 1
		}
	}
	return out
}

func (f FeedKinds) String() string {
	var parts []byte
	add := func(s string) {
		if len(parts) > 0 {
			parts = append(parts, '+')
		}
		parts = append(parts, s...)
	}
	if f.Has(FeedTick) {
		add("tick")
	}
	if f.Has(FeedOneMin) {
		add("1min")
	}
	if f.Has(FeedFiveMin) {
		add("5min")
	}
	return string(parts)
}

// SubscriptionID is the caller-assigned or auto-assigned handle for one
// live subscription. Many ids may alias the same symbol.
type SubscriptionID int

// BarInterval tags a minute bar with its aggregation interval.
type BarInterval string

const (
	BarOneMin  BarInterval = "1min"
	BarFiveMin BarInterval = "5min"
)

// MarketStatus represents the current market session.
type MarketStatus string

const (
	MarketOpen    MarketStatus = "OPEN"
	MarketPreOpen MarketStatus = "PRE_OPEN"
	MarketClosed  MarketStatus = "CLOSED"
)

// Touchline is the venue's snapshot summary for one subscribed symbol:
// last trade, day OHLC, open interest and best bid/ask. It is created empty
// at subscribe time and populated by the "symbols added" / touchline control
// frame, then enriched incrementally by trade and bar frames.
type Touchline struct {
	Symbol        string
	SymbolID      int
	Timestamp     time.Time
	LTP           float64
	LTQ           int64
	ATP           float64
	TTQ           int64
	Open          float64
	High          float64
	Low           float64
	PrevClose     float64
	OI            int64
	PrevOI        int64
	Turnover      float64
	Bid           float64
	BidQty        int64
	Ask           float64
	AskQty        int64
	Populated     bool // set once the first touchline frame lands
}

// LiveTick is the tick-granularity trade state for one subscription.
// Revision increases on every mutation so pollers can detect change without
// deep comparison.
type LiveTick struct {
	Symbol     string
	SymbolID   int
	Timestamp  time.Time
	LTP        float64
	LTQ        int64
	ATP        float64
	TTQ        int64
	Open       float64
	High       float64
	Low        float64
	PrevClose  float64
	OI         int64
	PrevOI     int64
	Turnover   float64
	SpecialTag string
	TickSeq    int64
	Bid        float64
	BidQty     int64
	Ask        float64
	AskQty     int64

	Revision uint64
}

// Bar is an interval-aggregated OHLCV record for one subscription.
type Bar struct {
	Symbol    string
	SymbolID  int
	Interval  BarInterval
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
	OI        int64

	Revision uint64
}

// BidAsk is a level-1 best bid/offer update.
type BidAsk struct {
	SymbolID  int
	Timestamp time.Time
	Bid       float64
	BidQty    int64
	Ask       float64
	AskQty    int64
}

// Tick is the normalized event published to stream consumers. It flattens
// whichever live object (tick or bar backed) produced the update.
type Tick struct {
	Symbol    string
	LTP       float64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
	OI        int64
	Bid       float64
	Ask       float64
	Timestamp time.Time
}

// GapEvent reports the largest gap between consecutive heartbeats observed
// across a disconnect, for callers that want to backfill the span themselves.
type GapEvent struct {
	Start time.Time
	End   time.Time
	Span  time.Duration
}
