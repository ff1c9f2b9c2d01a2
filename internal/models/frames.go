package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// FrameKind classifies an inbound websocket frame by its top-level key.
type FrameKind int

const (
	FrameUnknown FrameKind = iota
	FrameControl
	FrameTrade
	FrameBidAsk
	FrameBidAskL2
	FrameBarOneMin
	FrameBarFiveMin
	FrameGreeks
)

func (k FrameKind) String() string {
	switch k {
	case FrameControl:
		return "control"
	case FrameTrade:
		return "trade"
	case FrameBidAsk:
		return "bidask"
	case FrameBidAskL2:
		return "bidaskL2"
	case FrameBarOneMin:
		return "bar1min"
	case FrameBarFiveMin:
		return "bar5min"
	case FrameGreeks:
		return "greeks"
	default:
		return "unknown"
	}
}

// ControlMessage is the payload of a frame carrying a "message" key:
// heartbeats, the connect acknowledgement, symbol add/remove confirmations,
// market status changes and server-side errors.
type ControlMessage struct {
	Success      *bool             `json:"success,omitempty"`
	Message      string            `json:"message"`
	Timestamp    string            `json:"timestamp,omitempty"`
	MaxSymbols   int               `json:"maxsymbols,omitempty"`
	Segments     []string          `json:"segments,omitempty"`
	Validity     string            `json:"validity,omitempty"`
	Subscription string            `json:"subscription,omitempty"`
	SymbolsAdded int               `json:"symbolsadded,omitempty"`
	SymbolList   []json.RawMessage `json:"symbollist,omitempty"`
}

// Control message names sent by the gateway.
const (
	MsgHeartbeat      = "HeartBeat"
	MsgConnected      = "TrueData Real Time Data Service"
	MsgSymbolsAdded   = "symbols added"
	MsgSymbolsRemoved = "symbols removed"
	MsgTouchline      = "touchline"
	MsgMarketStatus   = "marketstatus"
	MsgInvalidUser    = "Invalid User Credentials"
)

// Frame is one decoded inbound websocket message. Exactly one of the payload
// fields is set, according to Kind.
type Frame struct {
	Kind    FrameKind
	Control *ControlMessage
	Values  []any // raw array payload for data frames
}

// wireEnvelope mirrors the discriminated single-key JSON objects on the wire.
type wireEnvelope struct {
	Message  json.RawMessage `json:"message"`
	Trade    []any           `json:"trade"`
	BidAsk   []any           `json:"bidask"`
	BidAskL2 []any           `json:"bidaskL2"`
	Bar1Min  []any           `json:"bar1min"`
	Bar5Min  []any           `json:"bar5min"`
	Greeks   []any           `json:"greeks"`
}

// DecodeFrame classifies and decodes a raw websocket text frame.
func DecodeFrame(b []byte) (*Frame, error) {
	var env wireEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	switch {
	case env.Message != nil:
		// The whole object is the control message; "message" itself may be a
		// bare string inside a richer object, so re-decode the full frame.
		var ctrl ControlMessage
		if err := json.Unmarshal(b, &ctrl); err != nil {
			return nil, fmt.Errorf("decode control message: %w", err)
		}
		return &Frame{Kind: FrameControl, Control: &ctrl}, nil
	case env.Trade != nil:
		return &Frame{Kind: FrameTrade, Values: env.Trade}, nil
	case env.BidAsk != nil:
		return &Frame{Kind: FrameBidAsk, Values: env.BidAsk}, nil
	case env.BidAskL2 != nil:
		return &Frame{Kind: FrameBidAskL2, Values: env.BidAskL2}, nil
	case env.Bar1Min != nil:
		return &Frame{Kind: FrameBarOneMin, Values: env.Bar1Min}, nil
	case env.Bar5Min != nil:
		return &Frame{Kind: FrameBarFiveMin, Values: env.Bar5Min}, nil
	case env.Greeks != nil:
		return &Frame{Kind: FrameGreeks, Values: env.Greeks}, nil
	default:
		return &Frame{Kind: FrameUnknown}, nil
	}
}

// TradeFrame is a decoded trade print.
type TradeFrame struct {
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

	HasBidAsk bool
	Bid       float64
	BidQty    int64
	Ask       float64
	AskQty    int64
}

// BarFrame is a decoded 1-minute or 5-minute bar.
type BarFrame struct {
	SymbolID  int
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
	OI        int64
}

// GreeksFrame is a decoded option-greeks update.
type GreeksFrame struct {
	SymbolID  int
	Timestamp time.Time
	IV        float64
	Delta     float64
	Theta     float64
	Gamma     float64
	Vega      float64
	Rho       float64
}

// wireTimeLayout is the timestamp format used in data frames.
const wireTimeLayout = "2006-01-02T15:04:05"

// DecodeTrade parses the positional trade array:
// [symbol_id, timestamp, ltp, ltq, atp, ttq, open, high, low, prev_close,
// oi, prev_oi, turnover, special_tag, tick_seq, [bid, bid_qty, ask, ask_qty]].
func DecodeTrade(values []any) (*TradeFrame, error) {
	if len(values) < 15 {
		return nil, fmt.Errorf("trade frame has %d fields, want at least 15", len(values))
	}
	t := &TradeFrame{
		SymbolID:   fieldInt(values[0]),
		Timestamp:  fieldTime(values[1]),
		LTP:        fieldFloat(values[2]),
		LTQ:        int64(fieldInt(values[3])),
		ATP:        fieldFloat(values[4]),
		TTQ:        int64(fieldInt(values[5])),
		Open:       fieldFloat(values[6]),
		High:       fieldFloat(values[7]),
		Low:        fieldFloat(values[8]),
		PrevClose:  fieldFloat(values[9]),
		OI:         int64(fieldInt(values[10])),
		PrevOI:     int64(fieldInt(values[11])),
		Turnover:   fieldFloat(values[12]),
		SpecialTag: fieldString(values[13]),
		TickSeq:    int64(fieldInt(values[14])),
	}
	if len(values) >= 19 {
		t.HasBidAsk = true
		t.Bid = fieldFloat(values[15])
		t.BidQty = int64(fieldInt(values[16]))
		t.Ask = fieldFloat(values[17])
		t.AskQty = int64(fieldInt(values[18]))
	}
	return t, nil
}

// DecodeBar parses the positional bar array:
// [symbol_id, timestamp, open, high, low, close, volume, oi].
func DecodeBar(values []any) (*BarFrame, error) {
	if len(values) < 8 {
		return nil, fmt.Errorf("bar frame has %d fields, want 8", len(values))
	}
	return &BarFrame{
		SymbolID:  fieldInt(values[0]),
		Timestamp: fieldTime(values[1]),
		Open:      fieldFloat(values[2]),
		High:      fieldFloat(values[3]),
		Low:       fieldFloat(values[4]),
		Close:     fieldFloat(values[5]),
		Volume:    int64(fieldInt(values[6])),
		OI:        int64(fieldInt(values[7])),
	}, nil
}

// DecodeBidAsk parses the positional L1 array:
// [symbol_id, timestamp, bid, bid_qty, ask, ask_qty].
func DecodeBidAsk(values []any) (*BidAsk, error) {
	if len(values) < 6 {
		return nil, fmt.Errorf("bidask frame has %d fields, want 6", len(values))
	}
	return &BidAsk{
		SymbolID:  fieldInt(values[0]),
		Timestamp: fieldTime(values[1]),
		Bid:       fieldFloat(values[2]),
		BidQty:    int64(fieldInt(values[3])),
		Ask:       fieldFloat(values[4]),
		AskQty:    int64(fieldInt(values[5])),
	}, nil
}

// DecodeGreeks parses the positional greeks array:
// [symbol_id, timestamp, iv, delta, theta, gamma, vega, rho].
func DecodeGreeks(values []any) (*GreeksFrame, error) {
	if len(values) < 8 {
		return nil, fmt.Errorf("greeks frame has %d fields, want 8", len(values))
	}
	return &GreeksFrame{
		SymbolID:  fieldInt(values[0]),
		Timestamp: fieldTime(values[1]),
		IV:        fieldFloat(values[2]),
		Delta:     fieldFloat(values[3]),
		Theta:     fieldFloat(values[4]),
		Gamma:     fieldFloat(values[5]),
		Vega:      fieldFloat(values[6]),
		Rho:       fieldFloat(values[7]),
	}, nil
}

// DecodeTouchlineEntry parses one symbollist entry from a "symbols added" or
// "touchline" control frame. Entries are positional string arrays:
// [symbol, symbol_id, timestamp, ltp, ltq, atp, ttq, open, high, low,
// prev_close, oi, prev_oi, turnover, bid, bid_qty, ask, ask_qty].
func DecodeTouchlineEntry(raw json.RawMessage) (*Touchline, error) {
	var values []any
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("decode touchline entry: %w", err)
	}
	if len(values) < 14 {
		return nil, fmt.Errorf("touchline entry has %d fields, want at least 14", len(values))
	}
	tl := &Touchline{
		Symbol:    fieldString(values[0]),
		SymbolID:  fieldInt(values[1]),
		Timestamp: fieldTime(values[2]),
		LTP:       fieldFloat(values[3]),
		LTQ:       int64(fieldInt(values[4])),
		ATP:       fieldFloat(values[5]),
		TTQ:       int64(fieldInt(values[6])),
		Open:      fieldFloat(values[7]),
		High:      fieldFloat(values[8]),
		Low:       fieldFloat(values[9]),
		PrevClose: fieldFloat(values[10]),
		OI:        int64(fieldInt(values[11])),
		PrevOI:    int64(fieldInt(values[12])),
		Turnover:  fieldFloat(values[13]),
		Populated: true,
	}
	if len(values) >= 18 {
		tl.Bid = fieldFloat(values[14])
		tl.BidQty = int64(fieldInt(values[15]))
		tl.Ask = fieldFloat(values[16])
		tl.AskQty = int64(fieldInt(values[17]))
	}
	return tl, nil
}

// SymbolListEntrySymbol extracts just the symbol name from a symbollist entry,
// which may be either a positional array or a bare string (remove acks).
func SymbolListEntrySymbol(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var values []any
	if err := json.Unmarshal(raw, &values); err == nil && len(values) > 0 {
		return fieldString(values[0])
	}
	return ""
}

// The gateway serializes most numeric fields as strings; these helpers accept
// either form.

func fieldString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

func fieldFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		f, _ := strconv.ParseFloat(x, 64)
		return f
	default:
		return 0
	}
}

func fieldInt(v any) int {
	switch x := v.(type) {
	case float64:
		return int(x)
	case string:
		// Some feeds serialize integral fields as "123.0".
		if n, err := strconv.Atoi(x); err == nil {
			return n
		}
		f, _ := strconv.ParseFloat(x, 64)
		return int(f)
	default:
		return 0
	}
}

func fieldTime(v any) time.Time {
	s := fieldString(v)
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(wireTimeLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}
