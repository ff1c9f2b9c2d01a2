package models

import "time"

// HistoricalBar is one OHLCV record returned by the history endpoints.
type HistoricalBar struct {
	Timestamp time.Time `csv:"timestamp" json:"timestamp"`
	Open      float64   `csv:"open" json:"open"`
	High      float64   `csv:"high" json:"high"`
	Low       float64   `csv:"low" json:"low"`
	Close     float64   `csv:"close" json:"close"`
	Volume    int64     `csv:"volume" json:"volume"`
	OI        int64     `csv:"oi" json:"oi"`
}

// HistoricalTick is one tick record returned by the tick-history endpoints.
// Bid/ask columns are present only when requested.
type HistoricalTick struct {
	Timestamp time.Time `csv:"timestamp" json:"timestamp"`
	LTP       float64   `csv:"ltp" json:"ltp"`
	Volume    int64     `csv:"volume" json:"volume"`
	OI        int64     `csv:"oi" json:"oi"`
	Bid       float64   `csv:"bid" json:"bid"`
	BidQty    int64     `csv:"bidqty" json:"bidqty"`
	Ask       float64   `csv:"ask" json:"ask"`
	AskQty    int64     `csv:"askqty" json:"askqty"`
}

// MoverRow is one entry of a top-n gainers/losers table.
type MoverRow struct {
	Symbol        string  `csv:"symbol" json:"symbol"`
	LTP           float64 `csv:"ltp" json:"ltp"`
	PrevClose     float64 `csv:"prev_close" json:"prev_close"`
	Change        float64 `csv:"change" json:"change"`
	ChangePercent float64 `csv:"change_perc" json:"change_perc"`
	Volume        int64   `csv:"volume" json:"volume"`
	Turnover      float64 `csv:"turnover" json:"turnover"`
}

// BhavcopyRow is one end-of-day settlement record.
type BhavcopyRow struct {
	Symbol    string  `csv:"symbol"`
	Date      string  `csv:"date"`
	Open      float64 `csv:"open"`
	High      float64 `csv:"high"`
	Low       float64 `csv:"low"`
	Close     float64 `csv:"close"`
	Volume    int64   `csv:"volume"`
	OI        int64   `csv:"oi"`
}

// SymbolRow is one row of the symbol master: the exchange-assigned numeric id
// and the human-readable symbol.
type SymbolRow struct {
	SymbolID int    `csv:"symbolid"`
	Symbol   string `csv:"symbol"`
	Segment  string `csv:"segment"`
}
