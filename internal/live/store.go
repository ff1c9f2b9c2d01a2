package live

import (
	"sync"

	"truedata-client/internal/models"
)

// symbolState is the shared per-symbol state. Every subscription id aliasing
// the same symbol points at the same symbolState, so a mutation applied for
// one id is observable through all of them.
type symbolState struct {
	symbol string
	ids    map[models.SubscriptionID]struct{}

	touchline *models.Touchline
	tick      *models.LiveTick
	bars      map[models.BarInterval]*models.Bar

	// pendingRemoval is set between the removesymbol command and the server's
	// confirmation; data stays readable until the confirm lands.
	pendingRemoval bool
}

// Store is the canonical in-process state for every active subscription.
// It is mutated by the websocket dispatch goroutine and read by caller
// threads and option-chain pollers, so every access goes through the mutex.
type Store struct {
	mu    sync.RWMutex
	feeds models.FeedKinds

	bySymbol map[string]*symbolState
	bySub    map[models.SubscriptionID]*symbolState
	byID     map[int]*symbolState // exchange numeric symbol id
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		bySymbol: make(map[string]*symbolState),
		bySub:    make(map[models.SubscriptionID]*symbolState),
		byID:     make(map[int]*symbolState),
	}
}

// SetFeeds records which feeds the session carries; consulted by the apply
// methods to decide which objects exist and whether bars back the live view.
func (s *Store) SetFeeds(f models.FeedKinds) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeds = f
}

// Feeds returns the active feed kinds.
func (s *Store) Feeds() models.FeedKinds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.feeds
}

// Ensure idempotently registers a subscription id for a symbol, creating the
// data objects appropriate to the active feeds on first sight of the symbol.
// Returns true when the symbol was not previously tracked (a net-new
// subscription that needs an addsymbol command).
func (s *Store) Ensure(symbol string, id models.SubscriptionID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.bySymbol[symbol]
	if !ok {
		st = &symbolState{
			symbol:    symbol,
			ids:       make(map[models.SubscriptionID]struct{}),
			touchline: &models.Touchline{Symbol: symbol},
			// The live view exists regardless of feed kinds: when tick data
			// is not subscribed it mirrors the minute bars.
			tick: &models.LiveTick{Symbol: symbol},
			bars: make(map[models.BarInterval]*models.Bar),
		}
		if s.feeds.Has(models.FeedOneMin) {
			st.bars[models.BarOneMin] = &models.Bar{Symbol: symbol, Interval: models.BarOneMin}
		}
		if s.feeds.Has(models.FeedFiveMin) {
			st.bars[models.BarFiveMin] = &models.Bar{Symbol: symbol, Interval: models.BarFiveMin}
		}
		s.bySymbol[symbol] = st
	}
	// A subscribe landing while a removal confirmation is in flight must
	// re-issue addsymbol: the server has already been told to drop the symbol.
	// The stale confirmation is then ignored by DropSymbol.
	netNew := !ok || st.pendingRemoval
	st.pendingRemoval = false
	st.ids[id] = struct{}{}
	s.bySub[id] = st
	return netNew
}

// MapSymbolID records the exchange numeric id for a tracked symbol so data
// frames arriving before the touchline confirmation can still be applied.
func (s *Store) MapSymbolID(symbolID int, symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.bySymbol[symbol]; ok {
		s.byID[symbolID] = st
		st.touchline.SymbolID = symbolID
		st.tick.SymbolID = symbolID
	}
}

// ApplyTouchline overwrites the symbol's touchline from a "symbols added" or
// touchline control frame and registers the numeric id mapping.
func (s *Store) ApplyTouchline(tl *models.Touchline) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.bySymbol[tl.Symbol]
	if !ok {
		return false
	}
	*st.touchline = *tl
	st.tick.Symbol = tl.Symbol
	st.tick.SymbolID = tl.SymbolID
	s.byID[tl.SymbolID] = st
	return true
}

// ApplyTrade applies a trade print to the symbol's live tick and
// cross-updates the touchline. Returns the resolved symbol and a snapshot of
// the updated live object.
func (s *Store) ApplyTrade(t *models.TradeFrame) (string, models.LiveTick, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.byID[t.SymbolID]
	if !ok {
		return "", models.LiveTick{}, false
	}

	tick := st.tick
	tick.Timestamp = t.Timestamp
	tick.LTP = t.LTP
	tick.LTQ = t.LTQ
	tick.ATP = t.ATP
	tick.TTQ = t.TTQ
	tick.Open = t.Open
	tick.High = t.High
	tick.Low = t.Low
	tick.PrevClose = t.PrevClose
	tick.OI = t.OI
	tick.PrevOI = t.PrevOI
	tick.Turnover = t.Turnover
	tick.SpecialTag = t.SpecialTag
	tick.TickSeq = t.TickSeq
	if t.HasBidAsk {
		tick.Bid = t.Bid
		tick.BidQty = t.BidQty
		tick.Ask = t.Ask
		tick.AskQty = t.AskQty
	}
	tick.Revision++

	tl := st.touchline
	tl.Timestamp = t.Timestamp
	tl.LTP = t.LTP
	tl.LTQ = t.LTQ
	tl.ATP = t.ATP
	tl.TTQ = t.TTQ
	tl.OI = t.OI
	tl.PrevOI = t.PrevOI
	tl.Turnover = t.Turnover
	if tl.Open == 0 && t.Open != 0 {
		tl.Open = t.Open
	}
	if t.HasBidAsk {
		tl.Bid = t.Bid
		tl.BidQty = t.BidQty
		tl.Ask = t.Ask
		tl.AskQty = t.AskQty
	}
	// Session extremes move only on tagged prints, and only outward.
	switch t.SpecialTag {
	case "H":
		if t.LTP > tl.High {
			tl.High = t.LTP
		}
	case "L":
		if tl.Low == 0 || t.LTP < tl.Low {
			tl.Low = t.LTP
		}
	}

	return st.symbol, *tick, true
}

// ApplyBar applies an interval bar, conditionally widens the touchline's day
// range, and mirrors the bar into the live view when the session carries no
// tick feed. Returns the resolved symbol and a snapshot of the updated bar.
func (s *Store) ApplyBar(b *models.BarFrame, interval models.BarInterval) (string, models.Bar, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.byID[b.SymbolID]
	if !ok {
		return "", models.Bar{}, false
	}

	bar, ok := st.bars[interval]
	if !ok {
		bar = &models.Bar{Symbol: st.symbol, Interval: interval}
		st.bars[interval] = bar
	}
	bar.SymbolID = b.SymbolID
	bar.Timestamp = b.Timestamp
	bar.Open = b.Open
	bar.High = b.High
	bar.Low = b.Low
	bar.Close = b.Close
	bar.Volume = b.Volume
	bar.OI = b.OI
	bar.Revision++

	tl := st.touchline
	if b.High > tl.High {
		tl.High = b.High
	}
	if b.Low > 0 && (tl.Low == 0 || b.Low < tl.Low) {
		tl.Low = b.Low
	}
	if tl.Open == 0 && b.Open != 0 {
		tl.Open = b.Open
	}

	if !s.feeds.Has(models.FeedTick) {
		tick := st.tick
		tick.Timestamp = b.Timestamp
		tick.LTP = b.Close
		tick.Open = b.Open
		tick.High = b.High
		tick.Low = b.Low
		tick.OI = b.OI
		tick.Revision++
	}

	return st.symbol, *bar, true
}

// ApplyBidAsk applies a level-1 best bid/offer update.
func (s *Store) ApplyBidAsk(ba *models.BidAsk) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.byID[ba.SymbolID]
	if !ok {
		return "", false
	}
	st.tick.Bid = ba.Bid
	st.tick.BidQty = ba.BidQty
	st.tick.Ask = ba.Ask
	st.tick.AskQty = ba.AskQty
	st.tick.Revision++
	st.touchline.Bid = ba.Bid
	st.touchline.BidQty = ba.BidQty
	st.touchline.Ask = ba.Ask
	st.touchline.AskQty = ba.AskQty
	return st.symbol, true
}

// Release drops one subscription id. It reports whether this was the last
// alias for its symbol; if so the symbol is marked pending removal and data
// is retained until DropSymbol is called after server confirmation.
func (s *Store) Release(id models.SubscriptionID) (last bool, symbol string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, found := s.bySub[id]
	if !found {
		return false, "", false
	}
	delete(s.bySub, id)
	delete(st.ids, id)
	if len(st.ids) == 0 {
		st.pendingRemoval = true
		return true, st.symbol, true
	}
	return false, st.symbol, true
}

// DropSymbol deletes all state for a symbol, called once the server confirms
// removal. A confirmation arriving after the symbol has been resubscribed is
// stale and ignored.
func (s *Store) DropSymbol(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.bySymbol[symbol]
	if !ok || len(st.ids) > 0 {
		return
	}
	delete(s.bySymbol, symbol)
	if st.touchline.SymbolID != 0 {
		delete(s.byID, st.touchline.SymbolID)
	}
}

// SymbolByID resolves a tracked symbol from its exchange numeric id.
func (s *Store) SymbolByID(symbolID int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.byID[symbolID]; ok {
		return st.symbol, true
	}
	return "", false
}

// HasSymbol reports whether the symbol is tracked and not pending removal.
func (s *Store) HasSymbol(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.bySymbol[symbol]
	return ok && !st.pendingRemoval
}

// Subscribers returns the number of ids aliasing the symbol.
func (s *Store) Subscribers(symbol string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.bySymbol[symbol]; ok {
		return len(st.ids)
	}
	return 0
}

// IDsFor returns the subscription ids aliasing a symbol.
func (s *Store) IDsFor(symbol string) []models.SubscriptionID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.bySymbol[symbol]
	if !ok {
		return nil
	}
	out := make([]models.SubscriptionID, 0, len(st.ids))
	for id := range st.ids {
		out = append(out, id)
	}
	return out
}

// Symbols returns all tracked symbols not pending removal, i.e. the set to
// resubscribe after a reconnect.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.bySymbol))
	for sym, st := range s.bySymbol {
		if !st.pendingRemoval {
			out = append(out, sym)
		}
	}
	return out
}

// Count returns the number of tracked symbols.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bySymbol)
}

// Touchline returns a snapshot of the touchline for a subscription id.
func (s *Store) Touchline(id models.SubscriptionID) (models.Touchline, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.bySub[id]; ok {
		return *st.touchline, true
	}
	return models.Touchline{}, false
}

// Live returns a snapshot of the live view for a subscription id. When the
// session carries no tick feed this view mirrors the latest minute bar.
func (s *Store) Live(id models.SubscriptionID) (models.LiveTick, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.bySub[id]; ok {
		return *st.tick, true
	}
	return models.LiveTick{}, false
}

// Bar returns a snapshot of the interval bar for a subscription id.
func (s *Store) Bar(id models.SubscriptionID, interval models.BarInterval) (models.Bar, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.bySub[id]
	if !ok {
		return models.Bar{}, false
	}
	if bar, ok := st.bars[interval]; ok {
		return *bar, true
	}
	return models.Bar{}, false
}

// LiveBySymbol returns a snapshot of the live view for a symbol.
func (s *Store) LiveBySymbol(symbol string) (models.LiveTick, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.bySymbol[symbol]; ok {
		return *st.tick, true
	}
	return models.LiveTick{}, false
}

// TouchlineBySymbol returns a snapshot of the touchline for a symbol.
func (s *Store) TouchlineBySymbol(symbol string) (models.Touchline, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.bySymbol[symbol]; ok {
		return *st.touchline, true
	}
	return models.Touchline{}, false
}
