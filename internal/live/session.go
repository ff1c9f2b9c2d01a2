package live

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	tderr "truedata-client/internal/errors"
	"truedata-client/internal/logging"
	"truedata-client/internal/metrics"
	"truedata-client/internal/models"
)

// State is the session lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateStreaming
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SessionConfig holds websocket session configuration.
type SessionConfig struct {
	URL string

	ConnectTimeout    time.Duration
	HeartbeatInterval time.Duration
	HeartbeatBuffer   time.Duration
	ConfirmCount      int
	LookbackCount     int

	// Reconnect policy. MaxReconnectAttempts == 0 retries forever.
	ReconnectDelay       time.Duration
	ReconnectMaxDelay    time.Duration
	MaxReconnectAttempts int
	ExponentialBackoff   bool

	FirstSubscriptionID int
}

// Handlers are the user-registered callbacks invoked from the dispatch
// goroutine. All are optional.
type Handlers struct {
	OnTick         func(symbol string, tick models.LiveTick)
	OnBar          func(symbol string, bar models.Bar)
	OnBidAsk       func(symbol string, ba models.BidAsk)
	OnGreeks       func(g models.GreeksFrame)
	OnMarketStatus func(status string)
	OnGap          func(gap models.GapEvent)
	OnReconnect    func()
}

type ackResult struct {
	feeds models.FeedKinds
	err   error
}

// command is the outbound control message shape.
type command struct {
	Method  string   `json:"method"`
	Symbols []string `json:"symbols"`
}

// Session owns the persistent websocket connection: connect, subscribe,
// unsubscribe, frame dispatch, staleness detection and reconnect/resubscribe.
type Session struct {
	cfg      SessionConfig
	logger   zerolog.Logger
	store    *Store
	monitor  *HeartbeatMonitor
	metrics  *metrics.Metrics
	handlers Handlers

	dialer *websocket.Dialer

	mu          sync.Mutex
	conn        *websocket.Conn
	state       State
	feeds       models.FeedKinds
	nextID      models.SubscriptionID
	intentional bool
	ack         chan ackResult

	writeMu sync.Mutex

	reconnecting atomic.Bool
	done         chan struct{}
	hbOnce       sync.Once
}

// NewSession creates a session bound to the given store. Metrics may be nil.
func NewSession(cfg SessionConfig, store *Store, m *metrics.Metrics, logger zerolog.Logger) *Session {
	if cfg.FirstSubscriptionID <= 0 {
		cfg.FirstSubscriptionID = 2000
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	return &Session{
		cfg:     cfg,
		logger:  logging.WithComponent(logger, "live"),
		store:   store,
		monitor: NewHeartbeatMonitor(cfg.HeartbeatInterval, cfg.HeartbeatBuffer, cfg.ConfirmCount, cfg.LookbackCount),
		metrics: m,
		dialer:  websocket.DefaultDialer,
		state:   StateDisconnected,
		nextID:  models.SubscriptionID(cfg.FirstSubscriptionID),
		done:    make(chan struct{}),
	}
}

// SetHandlers registers user callbacks. Must be called before Connect.
func (s *Session) SetHandlers(h Handlers) {
	s.handlers = h
}

// Store returns the session's live data store.
func (s *Session) Store() *Store {
	return s.store
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Feeds returns the feed kinds confirmed by the server at connect time.
func (s *Session) Feeds() models.FeedKinds {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feeds
}

// Monitor returns the heartbeat monitor.
func (s *Session) Monitor() *HeartbeatMonitor {
	return s.monitor
}

// Connect opens the websocket and blocks until the server confirms the
// subscription type or the configured connect timeout elapses.
// Authentication rejection is fatal to this call.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return tderr.ErrSessionClosed
	}
	if s.conn != nil {
		s.mu.Unlock()
		return tderr.ErrAlreadyConnected
	}
	s.state = StateConnecting
	s.intentional = false
	s.mu.Unlock()

	feeds, err := s.dial(ctx)
	if err != nil {
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.feeds = feeds
	s.state = StateStreaming
	s.mu.Unlock()
	s.store.SetFeeds(feeds)

	s.hbOnce.Do(func() { go s.heartbeatLoop() })

	s.logger.Info().Str("subscription", feeds.String()).Msg("connected")
	return nil
}

// dial opens one websocket connection, starts its read loop and waits for the
// connect acknowledgement.
func (s *Session) dial(ctx context.Context) (models.FeedKinds, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return 0, tderr.Wrap(err, "dial websocket")
	}

	ack := make(chan ackResult, 1)
	s.mu.Lock()
	s.conn = conn
	s.ack = ack
	s.mu.Unlock()

	go s.readLoop(conn, ack)

	timer := time.NewTimer(s.cfg.ConnectTimeout)
	defer timer.Stop()
	select {
	case res := <-ack:
		if res.err != nil {
			conn.Close()
			return 0, res.err
		}
		return res.feeds, nil
	case <-timer.C:
		conn.Close()
		return 0, tderr.ErrConnectTimeout
	case <-ctx.Done():
		conn.Close()
		return 0, ctx.Err()
	}
}

// Subscribe registers the symbols and issues a single batched addsymbol
// command for the net-new ones. ids may be nil (auto-assignment) or must
// match symbols in length. Symbols already subscribed are aliased to the
// existing shared data objects without a server command.
func (s *Session) Subscribe(symbols []string, ids []models.SubscriptionID) ([]models.SubscriptionID, error) {
	if len(ids) != 0 && len(ids) != len(symbols) {
		return nil, tderr.NewConfigError("ids", len(ids),
			fmt.Sprintf("id list length must match symbol list length %d", len(symbols)))
	}

	assigned := make([]models.SubscriptionID, len(symbols))
	var netNew []string

	s.mu.Lock()
	for i, raw := range symbols {
		sym := strings.ToUpper(strings.TrimSpace(raw))
		var id models.SubscriptionID
		if len(ids) != 0 {
			id = ids[i]
		} else {
			id = s.nextID
			s.nextID++
		}
		assigned[i] = id
		if s.store.Ensure(sym, id) {
			netNew = append(netNew, sym)
		} else {
			s.logger.Debug().Str("symbol", sym).Int("id", int(id)).Msg("aliased existing subscription")
		}
	}
	s.mu.Unlock()

	if len(netNew) > 0 {
		if err := s.sendCommand("addsymbol", netNew); err != nil {
			return assigned, err
		}
	}
	s.metrics.SetActiveSymbols(s.store.Count())
	return assigned, nil
}

// Release drops one subscription id. When it is the last alias of its symbol
// a removesymbol command is issued; store entries are deleted only once the
// server confirms removal. A miss is returned as a result, not raised.
func (s *Session) Release(id models.SubscriptionID) *tderr.UnsubscribeError {
	last, symbol, ok := s.store.Release(id)
	if !ok {
		s.logger.Warn().Int("id", int(id)).Msg("release of unknown subscription id")
		return &tderr.UnsubscribeError{Symbol: fmt.Sprintf("id %d", id), Reason: "not subscribed"}
	}
	if last {
		if err := s.sendCommand("removesymbol", []string{symbol}); err != nil {
			s.logger.Error().Err(err).Str("symbol", symbol).Msg("removesymbol failed")
		}
	}
	return nil
}

// Unsubscribe drops every alias of each symbol. Symbols dropping to zero
// subscribers get exactly one removesymbol command. Unknown symbols are
// reported in the returned slice and logged, never raised.
func (s *Session) Unsubscribe(symbols []string) []*tderr.UnsubscribeError {
	var misses []*tderr.UnsubscribeError
	var toRemove []string

	for _, raw := range symbols {
		sym := strings.ToUpper(strings.TrimSpace(raw))
		ids := s.store.IDsFor(sym)
		if len(ids) == 0 {
			s.logger.Warn().Str("symbol", sym).Msg("unsubscribe of unknown symbol")
			misses = append(misses, &tderr.UnsubscribeError{Symbol: sym, Reason: "not subscribed"})
			continue
		}
		for _, id := range ids {
			if last, _, ok := s.store.Release(id); ok && last {
				toRemove = append(toRemove, sym)
			}
		}
	}

	if len(toRemove) > 0 {
		if err := s.sendCommand("removesymbol", toRemove); err != nil {
			s.logger.Error().Err(err).Strs("symbols", toRemove).Msg("removesymbol failed")
		}
	}
	s.metrics.SetActiveSymbols(s.store.Count())
	return misses
}

// Disconnect closes the session intentionally. Safe to call from any thread;
// loops observe the flag at their next iteration boundary.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.intentional = true
	s.state = StateClosed
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	close(s.done)
	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}
	s.monitor.Reset()
	s.logger.Info().Msg("disconnected")
	return nil
}

func (s *Session) sendCommand(method string, symbols []string) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return tderr.ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.WriteJSON(command{Method: method, Symbols: symbols}); err != nil {
		return tderr.Wrapf(err, "send %s", method)
	}
	return nil
}

// readLoop pumps one connection until it dies. Frame-level errors are logged
// and the frame dropped; they never terminate the loop.
func (s *Session) readLoop(conn *websocket.Conn, ack chan ackResult) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			current := s.conn == conn
			intentional := s.intentional
			s.mu.Unlock()
			if !current || intentional {
				return
			}
			s.logger.Warn().Err(err).Msg("read error, scheduling reconnect")
			s.forceReconnect()
			return
		}
		s.handleFrame(payload, ack)
	}
}

func (s *Session) handleFrame(payload []byte, ack chan ackResult) {
	frame, err := models.DecodeFrame(payload)
	if err != nil {
		logging.LogFrameDropped(s.logger, "unknown", "undecodable frame", err)
		s.metrics.Dropped("unknown")
		return
	}
	s.metrics.Frame(frame.Kind.String())

	switch frame.Kind {
	case models.FrameControl:
		s.handleControl(frame.Control, ack)
	case models.FrameTrade:
		t, err := models.DecodeTrade(frame.Values)
		if err != nil {
			logging.LogFrameDropped(s.logger, "trade", "malformed", err)
			s.metrics.Dropped("trade")
			return
		}
		symbol, snap, ok := s.store.ApplyTrade(t)
		if !ok {
			logging.LogFrameDropped(s.logger, "trade",
				fmt.Sprintf("unmapped symbol id %d", t.SymbolID), nil)
			s.metrics.Dropped("trade")
			return
		}
		if s.handlers.OnTick != nil {
			s.handlers.OnTick(symbol, snap)
		}
	case models.FrameBarOneMin, models.FrameBarFiveMin:
		interval := models.BarOneMin
		if frame.Kind == models.FrameBarFiveMin {
			interval = models.BarFiveMin
		}
		b, err := models.DecodeBar(frame.Values)
		if err != nil {
			logging.LogFrameDropped(s.logger, frame.Kind.String(), "malformed", err)
			s.metrics.Dropped(frame.Kind.String())
			return
		}
		symbol, snap, ok := s.store.ApplyBar(b, interval)
		if !ok {
			logging.LogFrameDropped(s.logger, frame.Kind.String(),
				fmt.Sprintf("unmapped symbol id %d", b.SymbolID), nil)
			s.metrics.Dropped(frame.Kind.String())
			return
		}
		if s.handlers.OnBar != nil {
			s.handlers.OnBar(symbol, snap)
		}
	case models.FrameBidAsk:
		ba, err := models.DecodeBidAsk(frame.Values)
		if err != nil {
			logging.LogFrameDropped(s.logger, "bidask", "malformed", err)
			s.metrics.Dropped("bidask")
			return
		}
		symbol, ok := s.store.ApplyBidAsk(ba)
		if !ok {
			logging.LogFrameDropped(s.logger, "bidask",
				fmt.Sprintf("unmapped symbol id %d", ba.SymbolID), nil)
			s.metrics.Dropped("bidask")
			return
		}
		if s.handlers.OnBidAsk != nil {
			s.handlers.OnBidAsk(symbol, *ba)
		}
	case models.FrameBidAskL2:
		// Depth is decoded lazily by interested callers; no store model.
		s.logger.Debug().Msg("bidaskL2 frame ignored")
	case models.FrameGreeks:
		g, err := models.DecodeGreeks(frame.Values)
		if err != nil {
			logging.LogFrameDropped(s.logger, "greeks", "malformed", err)
			s.metrics.Dropped("greeks")
			return
		}
		if s.handlers.OnGreeks != nil {
			s.handlers.OnGreeks(*g)
		}
	default:
		logging.LogFrameDropped(s.logger, "unknown", "unrecognized top-level key", nil)
		s.metrics.Dropped("unknown")
	}
}

func (s *Session) handleControl(ctrl *models.ControlMessage, ack chan ackResult) {
	switch ctrl.Message {
	case models.MsgHeartbeat:
		ts := time.Now()
		if ctrl.Timestamp != "" {
			if parsed, err := time.Parse("2006-01-02T15:04:05.999999999", ctrl.Timestamp); err == nil {
				ts = parsed
			}
		}
		s.monitor.Record(ts)
		s.metrics.Heartbeat()

	case models.MsgSymbolsAdded, models.MsgTouchline:
		for _, raw := range ctrl.SymbolList {
			tl, err := models.DecodeTouchlineEntry(raw)
			if err != nil {
				logging.LogFrameDropped(s.logger, "touchline", "malformed symbollist entry", err)
				continue
			}
			if !s.store.ApplyTouchline(tl) {
				s.logger.Warn().Str("symbol", tl.Symbol).Msg("touchline for untracked symbol")
			}
		}

	case models.MsgSymbolsRemoved:
		for _, raw := range ctrl.SymbolList {
			sym := models.SymbolListEntrySymbol(raw)
			if sym == "" {
				continue
			}
			s.store.DropSymbol(sym)
			s.logger.Info().Str("symbol", sym).Msg("symbol removed")
		}
		s.metrics.SetActiveSymbols(s.store.Count())

	case models.MsgMarketStatus:
		if s.handlers.OnMarketStatus != nil {
			s.handlers.OnMarketStatus(ctrl.Timestamp)
		}

	case models.MsgInvalidUser:
		select {
		case ack <- ackResult{err: tderr.NewAuthError(0, ctrl.Message, nil)}:
		default:
		}

	default:
		// The connect acknowledgement carries the confirmed subscription type.
		if ctrl.Subscription != "" {
			feeds := models.ParseFeedKinds(ctrl.Subscription)
			s.logger.Info().
				Str("subscription", ctrl.Subscription).
				Int("maxsymbols", ctrl.MaxSymbols).
				Strs("segments", ctrl.Segments).
				Msg("connect acknowledged")
			select {
			case ack <- ackResult{feeds: feeds}:
			default:
			}
			return
		}
		if ctrl.Success != nil && !*ctrl.Success {
			s.logger.Error().Str("message", ctrl.Message).Msg("server error message")
			return
		}
		s.logger.Debug().Str("message", ctrl.Message).Msg("control message")
	}
}

// heartbeatLoop runs the staleness check on its own fixed schedule,
// independent of the read loop. Either detector (read error or staleness)
// may trigger the reconnect path; attempts are serialized.
func (s *Session) heartbeatLoop() {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			if s.State() != StateStreaming {
				continue
			}
			if s.monitor.IsStale(now) {
				last, _ := s.monitor.Last()
				staleErr := &tderr.StaleConnectionError{
					LastHeartbeat: last,
					Allowed:       s.monitor.Allowed(),
				}
				s.logger.Warn().Err(staleErr).Msg("heartbeat staleness detected")
				s.forceReconnect()
			}
		}
	}
}

// forceReconnect serializes reconnect attempts; only one loop runs at a time.
func (s *Session) forceReconnect() {
	if !s.reconnecting.CompareAndSwap(false, true) {
		return
	}
	go s.reconnectLoop()
}

func (s *Session) reconnectLoop() {
	defer s.reconnecting.Store(false)

	s.mu.Lock()
	if s.intentional || s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateReconnecting
	stale := s.conn
	s.conn = nil
	s.mu.Unlock()

	if stale != nil {
		stale.Close()
	}

	// Snapshot of the subscription set to restore; the store keeps entries
	// alive across the disconnect so data objects are preserved, not rebuilt.
	want := s.store.Symbols()
	sort.Strings(want)

	var bo backoff.BackOff
	if s.cfg.ExponentialBackoff {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = s.cfg.ReconnectDelay
		eb.MaxInterval = s.cfg.ReconnectMaxDelay
		eb.MaxElapsedTime = 0
		bo = eb
	} else {
		bo = backoff.NewConstantBackOff(s.cfg.ReconnectDelay)
	}
	if s.cfg.MaxReconnectAttempts > 0 {
		bo = backoff.WithMaxRetries(bo, uint64(s.cfg.MaxReconnectAttempts))
	}

	attempt := 0
	op := func() error {
		s.mu.Lock()
		if s.intentional {
			s.mu.Unlock()
			return backoff.Permanent(tderr.ErrSessionClosed)
		}
		s.mu.Unlock()

		attempt++
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ConnectTimeout)
		defer cancel()
		feeds, err := s.dial(ctx)
		if err != nil {
			return err
		}

		s.mu.Lock()
		s.feeds = feeds
		s.mu.Unlock()
		s.store.SetFeeds(feeds)

		if len(want) > 0 {
			if err := s.sendCommand("addsymbol", want); err != nil {
				return err
			}
		}
		return nil
	}

	err := backoff.RetryNotify(op, bo, func(err error, delay time.Duration) {
		logging.LogReconnect(s.logger, attempt, delay, err)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("reconnect abandoned")
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		return
	}

	got := s.store.Symbols()
	sort.Strings(got)
	if !equalStrings(want, got) {
		s.logger.Error().
			Strs("want", want).
			Strs("got", got).
			Msg("resubscribe mismatch after reconnect")
	}

	var gapSecs float64
	if gap, ok := s.monitor.LargestGap(); ok {
		gapSecs = gap.Span.Seconds()
		s.logger.Warn().
			Time("gap_start", gap.Start).
			Time("gap_end", gap.End).
			Dur("span", gap.Span).
			Msg("recovered; largest heartbeat gap")
		if s.handlers.OnGap != nil {
			s.handlers.OnGap(gap)
		}
	}
	s.metrics.Reconnect(gapSecs)

	// The window still references pre-disconnect timestamps; left in place it
	// would flag the fresh connection as stale and reconnect again.
	s.monitor.Reset()

	s.mu.Lock()
	s.state = StateStreaming
	s.mu.Unlock()

	if s.handlers.OnReconnect != nil {
		s.handlers.OnReconnect()
	}
	s.logger.Info().Int("symbols", len(want)).Msg("reconnected and resubscribed")
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
