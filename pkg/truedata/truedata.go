// Package truedata is the top-level facade tying together the live websocket
// session, the historical REST client, the symbol cache, the option chain and
// the streaming hub behind one client type.
package truedata

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"truedata-client/internal/chain"
	"truedata-client/internal/config"
	tderr "truedata-client/internal/errors"
	"truedata-client/internal/hist"
	"truedata-client/internal/live"
	"truedata-client/internal/logging"
	"truedata-client/internal/metrics"
	"truedata-client/internal/models"
	"truedata-client/internal/store"
	"truedata-client/internal/stream"
	"truedata-client/internal/symbols"
)

// Callbacks are the user-facing event hooks. All optional; they run on the
// session's dispatch goroutine so they must not block.
type Callbacks struct {
	OnTick         func(symbol string, tick models.LiveTick)
	OnBar          func(symbol string, bar models.Bar)
	OnBidAsk       func(symbol string, ba models.BidAsk)
	OnMarketStatus func(status string)
	OnGap          func(gap models.GapEvent)
	OnReconnect    func()
}

// Client is the facade over the whole market-data stack.
type Client struct {
	cfg     *config.Config
	logger  zerolog.Logger
	metrics *metrics.Metrics

	cache   *symbols.Cache
	hist    *hist.Client
	session *live.Session
	hub     *stream.Hub
	journal *store.BarJournal

	callbacks Callbacks

	mu     sync.Mutex
	chains []*chain.Chain

	metricsSrv *http.Server
}

// New builds a client from configuration. Nothing connects until Connect.
func New(cfg *config.Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, tderr.Wrap(err, "validate config")
	}

	logger := logging.NewLoggerWithConfig(logging.LogConfig{
		Level:      cfg.Logging.Level,
		Console:    cfg.Logging.Console,
		File:       cfg.Logging.File,
		FilePath:   cfg.Logging.Path,
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
	})

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	c := &Client{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		hist:    hist.NewClient(cfg.History, cfg.Credentials, m, logger),
		hub:     stream.NewHub(),
	}
	c.hub.OnDrop = m.HubDrop

	if cfg.Cache.Enabled {
		c.cache = symbols.NewCache(cfg.Cache, logger)
	}
	if cfg.Store.Enabled {
		journal, err := store.NewBarJournal(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		c.journal = journal
	}

	sessionCfg := live.SessionConfig{
		URL:                  cfg.WebSocketURL(),
		ConnectTimeout:       cfg.Realtime.ConnectTimeout,
		HeartbeatInterval:    cfg.Realtime.HeartbeatInterval,
		HeartbeatBuffer:      cfg.Realtime.HeartbeatBuffer,
		ConfirmCount:         cfg.Realtime.ConfirmCount,
		LookbackCount:        cfg.Realtime.LookbackCount,
		ReconnectDelay:       cfg.Realtime.ReconnectDelay,
		ReconnectMaxDelay:    cfg.Realtime.ReconnectMaxDelay,
		MaxReconnectAttempts: cfg.Realtime.MaxReconnectAttempts,
		ExponentialBackoff:   cfg.Realtime.ExponentialBackoff,
		FirstSubscriptionID:  cfg.Realtime.FirstSubscriptionID,
	}
	c.session = live.NewSession(sessionCfg, live.NewStore(), m, logger)
	c.session.SetHandlers(live.Handlers{
		OnTick:         c.handleTick,
		OnBar:          c.handleBar,
		OnBidAsk:       c.handleBidAsk,
		OnGreeks:       c.handleGreeks,
		OnMarketStatus: c.handleMarketStatus,
		OnGap:          c.handleGap,
		OnReconnect:    c.handleReconnect,
	})

	return c, nil
}

// SetCallbacks registers user event hooks. Call before Connect.
func (c *Client) SetCallbacks(cb Callbacks) {
	c.callbacks = cb
}

// Connect loads the symbol cache, starts the metrics endpoint if enabled, and
// opens the websocket session.
func (c *Client) Connect(ctx context.Context) error {
	if c.cache != nil {
		if err := c.cache.Load(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("symbol cache unavailable, continuing without it")
		}
	}
	if c.metrics != nil && c.cfg.Metrics.Addr != "" {
		c.metricsSrv = &http.Server{Addr: c.cfg.Metrics.Addr, Handler: c.metrics.Handler()}
		go func() {
			if err := c.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				c.logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}
	return c.session.Connect(ctx)
}

// StartLiveData subscribes the symbols, seeding the symbol-id mapping from the
// cache when available so pre-confirmation data frames are not dropped.
func (c *Client) StartLiveData(symbolList []string, ids []models.SubscriptionID) ([]models.SubscriptionID, error) {
	assigned, err := c.session.Subscribe(symbolList, ids)
	if err != nil {
		return assigned, err
	}
	if c.cache != nil {
		st := c.session.Store()
		for _, sym := range symbolList {
			if id, ok := c.cache.ID(sym); ok {
				st.MapSymbolID(id, sym)
			}
		}
	}
	return assigned, nil
}

// StopLiveData unsubscribes the symbols. Unknown symbols come back as results.
func (c *Client) StopLiveData(symbolList []string) []*tderr.UnsubscribeError {
	return c.session.Unsubscribe(symbolList)
}

// LiveData returns a snapshot of the live object for a subscription id.
func (c *Client) LiveData(id models.SubscriptionID) (models.LiveTick, bool) {
	return c.session.Store().Live(id)
}

// TouchlineData returns a snapshot of the touchline for a subscription id.
func (c *Client) TouchlineData(id models.SubscriptionID) (models.Touchline, bool) {
	return c.session.Store().Touchline(id)
}

// BarData returns a snapshot of the interval bar for a subscription id.
func (c *Client) BarData(id models.SubscriptionID, interval models.BarInterval) (models.Bar, bool) {
	return c.session.Store().Bar(id, interval)
}

// StreamTicks returns a buffered channel of normalized ticks for the given
// symbols (nil for all subscribed). Call CloseStream with the returned id.
func (c *Client) StreamTicks(symbolList []string) (string, <-chan models.Tick) {
	return c.hub.Subscribe(symbolList)
}

// CloseStream tears down one hub subscription.
func (c *Client) CloseStream(id string) {
	c.hub.Unsubscribe(id)
}

// History exposes the historical REST client.
func (c *Client) History() *hist.Client {
	return c.hist
}

// SymbolCache exposes the id-to-symbol cache; nil when disabled.
func (c *Client) SymbolCache() *symbols.Cache {
	return c.cache
}

// Session exposes the live session for advanced callers.
func (c *Client) Session() *live.Session {
	return c.session
}

// StartOptionChain constructs and starts a chain. The future price, when
// zero, is seeded from the latest historical bar of the root future.
func (c *Client) StartOptionChain(ctx context.Context, chainCfg chain.Config, futureContract string) (*chain.Chain, error) {
	if chainCfg.FuturePrice == 0 {
		bars, err := c.hist.GetNHistoricBars(ctx, futureContract, time.Now(), 1, hist.Options{})
		if err != nil {
			return nil, tderr.Wrap(err, "seed future price")
		}
		if len(bars) == 0 {
			return nil, tderr.ErrDataNotFound
		}
		chainCfg.FuturePrice = bars[len(bars)-1].Close
	}

	ch, err := chain.New(ctx, chainCfg, c.session, c.logger)
	if err != nil {
		return nil, err
	}
	if err := ch.Start(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.chains = append(c.chains, ch)
	c.mu.Unlock()
	return ch, nil
}

// Disconnect stops all chains, the session, the hub and ancillary services.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	chains := c.chains
	c.chains = nil
	c.mu.Unlock()
	for _, ch := range chains {
		ch.Stop()
	}

	err := c.session.Disconnect()
	c.hub.Close()
	if c.journal != nil {
		c.journal.Close()
	}
	if c.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		c.metricsSrv.Shutdown(ctx)
	}
	return err
}

func (c *Client) handleTick(symbol string, tick models.LiveTick) {
	c.hub.Publish(models.Tick{
		Symbol:    symbol,
		LTP:       tick.LTP,
		Open:      tick.Open,
		High:      tick.High,
		Low:       tick.Low,
		OI:        tick.OI,
		Bid:       tick.Bid,
		Ask:       tick.Ask,
		Timestamp: tick.Timestamp,
	})
	if c.callbacks.OnTick != nil {
		c.callbacks.OnTick(symbol, tick)
	}
}

func (c *Client) handleBar(symbol string, bar models.Bar) {
	if c.journal != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.journal.SaveBar(ctx, bar); err != nil {
			c.logger.Error().Err(err).Str("symbol", symbol).Msg("bar journal write failed")
		}
		cancel()
	}
	if c.callbacks.OnBar != nil {
		c.callbacks.OnBar(symbol, bar)
	}
}

func (c *Client) handleBidAsk(symbol string, ba models.BidAsk) {
	if c.callbacks.OnBidAsk != nil {
		c.callbacks.OnBidAsk(symbol, ba)
	}
}

func (c *Client) handleGreeks(g models.GreeksFrame) {
	symbol, ok := "", false
	if c.cache != nil {
		symbol, ok = c.cache.Resolve(g.SymbolID)
	}
	if !ok {
		// The live store learns the id mapping from touchline confirmations,
		// so chain legs resolve even without the symbol master cache.
		symbol, ok = c.session.Store().SymbolByID(g.SymbolID)
	}
	if !ok {
		c.logger.Debug().Int("symbol_id", g.SymbolID).Msg("greeks for unresolved symbol dropped")
		return
	}
	c.mu.Lock()
	chains := c.chains
	c.mu.Unlock()
	for _, ch := range chains {
		ch.ApplyGreeks(symbol, g)
	}
}

func (c *Client) handleMarketStatus(status string) {
	c.logger.Info().Str("status", status).Msg("market status change")
	if c.callbacks.OnMarketStatus != nil {
		c.callbacks.OnMarketStatus(status)
	}
}

func (c *Client) handleGap(gap models.GapEvent) {
	if c.callbacks.OnGap != nil {
		c.callbacks.OnGap(gap)
	}
}

func (c *Client) handleReconnect() {
	if c.callbacks.OnReconnect != nil {
		c.callbacks.OnReconnect()
	}
}
