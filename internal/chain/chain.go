package chain

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog"

	tderr "truedata-client/internal/errors"
	"truedata-client/internal/live"
	"truedata-client/internal/logging"
	"truedata-client/internal/models"
	"truedata-client/pkg/utils"
)

// Config describes one option chain.
type Config struct {
	Root        string
	Expiry      time.Time
	FuturePrice float64
	Length      int

	// StrikeStep, when zero, is inferred from the chain-definition CSV at
	// DefinitionURL.
	StrikeStep    float64
	DefinitionURL string

	// PollInterval is the revision-check cadence of the update loop.
	PollInterval time.Duration

	// AfterHours keeps the update loop running outside market hours.
	AfterHours bool
}

// leg is one CE or PE instrument of the ladder.
type leg struct {
	symbol  string
	strike  float64
	right   models.OptionRight
	lastRev uint64
}

// Chain maintains a continuously updated table of ladder legs fed by the live
// store. Rows are created once at construction and torn down together by Stop.
type Chain struct {
	cfg     Config
	session *live.Session
	store   *live.Store
	logger  zerolog.Logger

	mu   sync.RWMutex
	legs []*leg
	rows map[string]*models.ChainRow

	marketOpen func() bool

	stopOnce sync.Once
	done     chan struct{}
	running  bool
}

// New builds the ladder and its empty rows. The strike step is taken from the
// config or inferred from the chain-definition CSV; ATM is the future price
// rounded to the nearest step.
func New(ctx context.Context, cfg Config, session *live.Session, logger zerolog.Logger) (*Chain, error) {
	if cfg.Length <= 0 {
		return nil, tderr.NewConfigError("length", cfg.Length, "chain length must be positive")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Millisecond
	}

	step := cfg.StrikeStep
	if step == 0 {
		if cfg.DefinitionURL == "" {
			return nil, tderr.NewConfigError("definition_url", "", "required when strike_step is not set")
		}
		var rows []models.ChainDefinitionRow
		err := utils.Retry(ctx, utils.DefaultRetryConfig(), func() error {
			var ferr error
			rows, ferr = fetchDefinition(ctx, cfg.DefinitionURL)
			return ferr
		})
		if err != nil {
			return nil, err
		}
		step = StrikeStep(rows, cfg.Root)
		if step == 0 {
			return nil, tderr.NewConfigError("strike_step", 0,
				"could not infer strike step for "+cfg.Root)
		}
	}
	cfg.StrikeStep = step

	atm := ATMStrike(cfg.FuturePrice, step)
	strikes := Ladder(atm, step, cfg.Length)

	c := &Chain{
		cfg:        cfg,
		session:    session,
		store:      session.Store(),
		logger:     logging.WithComponent(logger, "chain").With().Str("root", cfg.Root).Logger(),
		rows:       make(map[string]*models.ChainRow, cfg.Length*2),
		done:       make(chan struct{}),
		marketOpen: utils.IsMarketOpen,
	}
	for _, strike := range strikes {
		for _, right := range []models.OptionRight{models.RightCall, models.RightPut} {
			sym := OptionSymbol(cfg.Root, cfg.Expiry, strike, right)
			c.legs = append(c.legs, &leg{symbol: sym, strike: strike, right: right})
			c.rows[sym] = &models.ChainRow{Symbol: sym, Strike: strike, Right: right}
		}
	}

	c.logger.Info().
		Float64("atm", atm).
		Float64("step", step).
		Int("legs", len(c.legs)).
		Msg("chain constructed")
	return c, nil
}

func fetchDefinition(ctx context.Context, url string) ([]models.ChainDefinitionRow, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, tderr.Wrap(err, "build chain definition request")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, tderr.Wrap(err, "fetch chain definition")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chain definition: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, tderr.Wrap(err, "read chain definition")
	}
	var rows []*models.ChainDefinitionRow
	if err := gocsv.UnmarshalBytes(body, &rows); err != nil {
		return nil, tderr.Wrap(err, "decode chain definition")
	}
	out := make([]models.ChainDefinitionRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	return out, nil
}

// Symbols returns the leg symbols in ladder order.
func (c *Chain) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.legs))
	for _, l := range c.legs {
		out = append(out, l.symbol)
	}
	return out
}

// Start subscribes all legs, seeds the table from their touchline snapshots
// and launches the polling loop. The loop exits outside market hours unless
// configured otherwise, and always on Stop.
func (c *Chain) Start() error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	symbols := make([]string, 0, len(c.legs))
	for _, l := range c.legs {
		symbols = append(symbols, l.symbol)
	}
	c.mu.Unlock()

	if _, err := c.session.Subscribe(symbols, nil); err != nil {
		return tderr.Wrap(err, "subscribe chain legs")
	}

	// Initial synchronous pass from the touchline snapshots so the table is
	// populated before the first poll tick.
	c.mu.Lock()
	for _, l := range c.legs {
		if tl, ok := c.store.TouchlineBySymbol(l.symbol); ok && tl.Populated {
			c.applyTouchlineLocked(l, tl)
		}
	}
	c.mu.Unlock()

	go c.pollLoop()
	return nil
}

// pollLoop compares each leg's live revision counter against the last one
// observed and refreshes the row on any change.
func (c *Chain) pollLoop() {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if !c.cfg.AfterHours && !c.marketOpen() {
				c.logger.Info().Msg("market closed, stopping chain")
				c.Stop()
				return
			}
			c.refresh()
		}
	}
}

func (c *Chain) refresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range c.legs {
		tick, ok := c.store.LiveBySymbol(l.symbol)
		if !ok || tick.Revision == l.lastRev {
			continue
		}
		l.lastRev = tick.Revision
		c.applyTickLocked(l, tick)
	}
}

func (c *Chain) applyTouchlineLocked(l *leg, tl models.Touchline) {
	row := c.rows[l.symbol]
	row.Timestamp = tl.Timestamp
	row.LTP = tl.LTP
	row.LTQ = tl.LTQ
	row.ATP = tl.ATP
	row.TTQ = tl.TTQ
	row.Open = tl.Open
	row.High = tl.High
	row.Low = tl.Low
	row.PrevClose = tl.PrevClose
	row.OI = tl.OI
	row.PrevOI = tl.PrevOI
	row.Turnover = tl.Turnover
	row.Bid = tl.Bid
	row.BidQty = tl.BidQty
	row.Ask = tl.Ask
	row.AskQty = tl.AskQty
	row.Populated = true
	deriveRow(row)
}

func (c *Chain) applyTickLocked(l *leg, tick models.LiveTick) {
	row := c.rows[l.symbol]
	row.Timestamp = tick.Timestamp
	row.LTP = tick.LTP
	row.LTQ = tick.LTQ
	row.ATP = tick.ATP
	row.TTQ = tick.TTQ
	row.Open = tick.Open
	row.High = tick.High
	row.Low = tick.Low
	row.PrevClose = tick.PrevClose
	row.OI = tick.OI
	row.PrevOI = tick.PrevOI
	row.Turnover = tick.Turnover
	row.Bid = tick.Bid
	row.BidQty = tick.BidQty
	row.Ask = tick.Ask
	row.AskQty = tick.AskQty
	row.Populated = true
	deriveRow(row)
}

// deriveRow recomputes change and OI-change fields, substituting zero where a
// denominator is missing.
func deriveRow(row *models.ChainRow) {
	row.Change = row.LTP - row.PrevClose
	if row.PrevClose != 0 {
		row.ChangePercent = row.Change / row.PrevClose * 100
	} else {
		row.ChangePercent = 0
	}
	row.OIChange = row.OI - row.PrevOI
	if row.PrevOI != 0 {
		row.OIChangePerc = float64(row.OIChange) / float64(row.PrevOI) * 100
	} else {
		row.OIChangePerc = 0
	}
}

// ApplyGreeks copies a greeks update into the matching leg row, if any.
func (c *Chain) ApplyGreeks(symbol string, g models.GreeksFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	row, ok := c.rows[symbol]
	if !ok {
		return
	}
	row.IV = g.IV
	row.Delta = g.Delta
	row.Theta = g.Theta
	row.Gamma = g.Gamma
	row.Vega = g.Vega
	row.Rho = g.Rho
}

// Snapshot returns the cleaned chain table: unpopulated rows are dropped and
// rows come back sorted by strike then right. excludeBidAsk zeroes the bid/ask
// columns for callers that do not want them.
func (c *Chain) Snapshot(excludeBidAsk bool) []models.ChainRow {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.ChainRow, 0, len(c.rows))
	for _, l := range c.legs {
		row := c.rows[l.symbol]
		if !row.Populated {
			continue
		}
		r := *row
		if excludeBidAsk {
			r.Bid, r.BidQty, r.Ask, r.AskQty = 0, 0, 0, 0
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Strike != out[j].Strike {
			return out[i].Strike < out[j].Strike
		}
		return out[i].Right < out[j].Right
	})
	return out
}

// Stop flags the loop to exit and unsubscribes all legs. Safe to call from
// any goroutine, any number of times.
func (c *Chain) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		c.session.Unsubscribe(c.Symbols())
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		c.logger.Info().Msg("chain stopped")
	})
}
