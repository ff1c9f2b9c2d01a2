package models

import "time"

// OptionRight distinguishes calls from puts.
type OptionRight string

const (
	RightCall OptionRight = "CE"
	RightPut  OptionRight = "PE"
)

// ChainRow is one leg of an option chain table, keyed by the constructed
// option symbol. Derived fields are recomputed on every update from the
// leg's live object.
type ChainRow struct {
	Symbol string
	Strike float64
	Right  OptionRight

	Timestamp time.Time
	LTP       float64
	LTQ       int64
	ATP       float64
	TTQ       int64
	Open      float64
	High      float64
	Low       float64
	PrevClose float64
	OI        int64
	PrevOI    int64
	Turnover  float64
	Bid       float64
	BidQty    int64
	Ask       float64
	AskQty    int64

	// Derived
	Change        float64
	ChangePercent float64
	OIChange      int64
	OIChangePerc  float64

	// Greeks, filled when the session carries a greeks feed.
	IV    float64
	Delta float64
	Theta float64
	Gamma float64
	Vega  float64
	Rho   float64

	// Populated reports whether any live update has landed on this leg.
	Populated bool
}

// ChainDefinitionRow is one row of the chain-definition CSV used to infer the
// strike step for a symbol/expiry.
type ChainDefinitionRow struct {
	Symbol string  `csv:"symbol"`
	Expiry string  `csv:"expiry"`
	Strike float64 `csv:"strike"`
	Right  string  `csv:"type"`
}
