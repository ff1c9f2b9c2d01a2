package hist

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"truedata-client/internal/config"
	tderr "truedata-client/internal/errors"
	"truedata-client/internal/logging"
	"truedata-client/internal/metrics"
	"truedata-client/internal/models"
)

// Known history segments accepted by the movers and bhavcopy endpoints.
var knownSegments = map[string]struct{}{
	"EQ": {}, "FO": {}, "CDS": {}, "MCX": {},
}

// Options tunes one history request. Zero values take the configured defaults.
type Options struct {
	BarSize         string // "1min", "5min", "15min", "30min", "60min", "eod"
	ResponseFormat  string // "csv" (default) or "json"
	TimestampFormat string
	BidAsk          bool
	Delivery        bool
}

// tokenResponse is the auth endpoint's JSON body.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// Client is the synchronous REST client for historical data. Calls are
// stateless apart from the lazily refreshed bearer token, whose lifecycle is
// lock-guarded so concurrent calls never double-login.
type Client struct {
	cfg     config.HistoryConfig
	creds   config.Credentials
	http    *http.Client
	logger  zerolog.Logger
	metrics *metrics.Metrics
	breaker *gobreaker.CircuitBreaker

	tokenMu     sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient creates a historical client. Metrics may be nil.
func NewClient(cfg config.HistoryConfig, creds config.Credentials, m *metrics.Metrics, logger zerolog.Logger) *Client {
	return &Client{
		cfg:     cfg,
		creds:   creds,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		logger:  logging.WithComponent(logger, "hist"),
		metrics: m,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "truedata-hist",
			MaxRequests: 3,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// login posts credentials to the token endpoint and stores the bearer token
// with expiry = now + server TTL - safety buffer. Called with tokenMu held.
func (c *Client) login(ctx context.Context) error {
	form := url.Values{}
	form.Set("username", c.creds.LoginID)
	form.Set("password", c.creds.Password)
	form.Set("grant_type", "password")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return tderr.Wrap(err, "build token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := c.http.Do(req)
	logging.LogAPICall(c.logger, http.MethodPost, "token", time.Since(start), err)
	if err != nil {
		return tderr.NewAuthError(0, "token endpoint unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return tderr.NewAuthError(resp.StatusCode, strings.TrimSpace(string(body)), nil)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return tderr.NewAuthError(resp.StatusCode, "malformed token response", err)
	}
	if tok.AccessToken == "" {
		return tderr.NewAuthError(resp.StatusCode, "empty access token", nil)
	}

	c.token = tok.AccessToken
	c.tokenExpiry = time.Now().
		Add(time.Duration(tok.ExpiresIn) * time.Second).
		Add(-c.cfg.TokenSafetyBuffer)
	c.logger.Info().Time("expires", c.tokenExpiry).Msg("history token refreshed")
	return nil
}

// ensureToken refreshes the bearer token if missing or past expiry.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}
	c.token = ""
	if err := c.login(ctx); err != nil {
		c.logger.Error().Err(err).Msg("history login failed")
		return "", err
	}
	return c.token, nil
}

// normalize applies defaults and validates options before dispatch.
func (c *Client) normalize(opts Options) (Options, error) {
	if opts.BarSize == "" {
		opts.BarSize = c.cfg.DefaultBarSize
	}
	opts.BarSize = strings.ToLower(strings.ReplaceAll(opts.BarSize, " ", ""))
	switch opts.BarSize {
	case "1min", "5min", "15min", "30min", "60min", "eod":
	default:
		return opts, tderr.NewConfigError("bar_size", opts.BarSize, "unsupported bar size")
	}
	if opts.ResponseFormat == "" {
		opts.ResponseFormat = "csv"
	}
	if opts.ResponseFormat != "csv" && opts.ResponseFormat != "json" {
		return opts, tderr.NewConfigError("response_format", opts.ResponseFormat, "must be csv or json")
	}
	if opts.TimestampFormat == "" {
		opts.TimestampFormat = c.cfg.TimestampFormat
	}
	return opts, nil
}

// get performs one authenticated, breaker-wrapped GET against the history
// server and returns the decompressed plain body. HTTP 429 responses carry a
// base64-encoded message and surface as a RateLimitError.
func (c *Client) get(ctx context.Context, base, endpoint string, params url.Values) ([]byte, error) {
	token, err := c.ensureToken(ctx)
	if err != nil {
		c.metrics.HistRequest(endpoint, "auth_error")
		return nil, err
	}

	reqURL := fmt.Sprintf("%s/%s?%s", base, endpoint, params.Encode())
	body, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, tderr.Wrap(err, "build request")
		}
		req.Header.Set("Authorization", "Bearer "+token)

		start := time.Now()
		resp, err := c.http.Do(req)
		logging.LogAPICall(c.logger, http.MethodGet, endpoint, time.Since(start), err)
		if err != nil {
			return nil, tderr.Wrapf(err, "%s request", endpoint)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, tderr.Wrapf(err, "%s read body", endpoint)
		}

		switch resp.StatusCode {
		case http.StatusOK:
			return Decompress(raw)
		case http.StatusTooManyRequests:
			msg := string(raw)
			if decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(msg)); err == nil {
				msg = string(decoded)
			}
			return nil, tderr.NewRateLimitError(endpoint, msg)
		case http.StatusUnauthorized:
			// Token rejected server-side; drop it so the next call re-logins.
			c.tokenMu.Lock()
			c.token = ""
			c.tokenMu.Unlock()
			return nil, tderr.ErrTokenExpired
		default:
			return nil, fmt.Errorf("%s: unexpected status %d", endpoint, resp.StatusCode)
		}
	})
	if err != nil {
		outcome := "error"
		var rle *tderr.RateLimitError
		if tderr.As(err, &rle) {
			outcome = "rate_limited"
		}
		c.metrics.HistRequest(endpoint, outcome)
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("history request failed")
		return nil, err
	}
	c.metrics.HistRequest(endpoint, "ok")
	return body.([]byte), nil
}

// Wire row shapes with string timestamps; converted to typed records using the
// per-request timestamp format.

type barRow struct {
	Timestamp string  `csv:"timestamp" json:"timestamp"`
	Open      float64 `csv:"open" json:"open"`
	High      float64 `csv:"high" json:"high"`
	Low       float64 `csv:"low" json:"low"`
	Close     float64 `csv:"close" json:"close"`
	Volume    int64   `csv:"volume" json:"volume"`
	OI        int64   `csv:"oi" json:"oi"`
}

type tickRow struct {
	Timestamp string  `csv:"timestamp" json:"timestamp"`
	LTP       float64 `csv:"ltp" json:"ltp"`
	Volume    int64   `csv:"volume" json:"volume"`
	OI        int64   `csv:"oi" json:"oi"`
	Bid       float64 `csv:"bid" json:"bid"`
	BidQty    int64   `csv:"bidqty" json:"bidqty"`
	Ask       float64 `csv:"ask" json:"ask"`
	AskQty    int64   `csv:"askqty" json:"askqty"`
}

func parseBars(body []byte, opts Options) ([]models.HistoricalBar, error) {
	var rows []*barRow
	if err := unmarshalBody(body, opts.ResponseFormat, &rows); err != nil {
		return nil, err
	}
	bars := make([]models.HistoricalBar, 0, len(rows))
	for _, r := range rows {
		ts, err := time.Parse(opts.TimestampFormat, r.Timestamp)
		if err != nil {
			return nil, tderr.Wrapf(err, "parse timestamp %q", r.Timestamp)
		}
		bars = append(bars, models.HistoricalBar{
			Timestamp: ts,
			Open:      r.Open, High: r.High, Low: r.Low, Close: r.Close,
			Volume: r.Volume, OI: r.OI,
		})
	}
	return bars, nil
}

func parseTicks(body []byte, opts Options) ([]models.HistoricalTick, error) {
	var rows []*tickRow
	if err := unmarshalBody(body, opts.ResponseFormat, &rows); err != nil {
		return nil, err
	}
	ticks := make([]models.HistoricalTick, 0, len(rows))
	for _, r := range rows {
		ts, err := time.Parse(opts.TimestampFormat, r.Timestamp)
		if err != nil {
			return nil, tderr.Wrapf(err, "parse timestamp %q", r.Timestamp)
		}
		ticks = append(ticks, models.HistoricalTick{
			Timestamp: ts,
			LTP:       r.LTP, Volume: r.Volume, OI: r.OI,
			Bid: r.Bid, BidQty: r.BidQty, Ask: r.Ask, AskQty: r.AskQty,
		})
	}
	return ticks, nil
}

func unmarshalBody(body []byte, format string, out interface{}) error {
	if len(body) == 0 {
		return tderr.ErrDataNotFound
	}
	switch format {
	case "json":
		if err := json.Unmarshal(body, out); err != nil {
			return tderr.Wrap(err, "decode json body")
		}
	default:
		if err := gocsv.UnmarshalBytes(body, out); err != nil {
			return tderr.Wrap(err, "decode csv body")
		}
	}
	return nil
}

// GetNHistoricBars returns the last n bars for the contract up to endTime.
func (c *Client) GetNHistoricBars(ctx context.Context, contract string, endTime time.Time, n int, opts Options) ([]models.HistoricalBar, error) {
	opts, err := c.normalize(opts)
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(contract))
	params.Set("nbars", strconv.Itoa(n))
	params.Set("interval", opts.BarSize)
	params.Set("to", endTime.Format(c.cfg.TimestampFormat))
	params.Set("response", opts.ResponseFormat)

	body, err := c.get(ctx, c.cfg.BaseURL, "getlastnbars", params)
	if err != nil {
		return nil, err
	}
	return parseBars(body, opts)
}

// GetHistoricBars returns bars for the contract between start and end.
func (c *Client) GetHistoricBars(ctx context.Context, contract string, start, end time.Time, opts Options) ([]models.HistoricalBar, error) {
	opts, err := c.normalize(opts)
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(contract))
	params.Set("from", start.Format(c.cfg.TimestampFormat))
	params.Set("to", end.Format(c.cfg.TimestampFormat))
	params.Set("interval", opts.BarSize)
	params.Set("response", opts.ResponseFormat)
	if opts.Delivery {
		params.Set("delivery", "true")
	}

	body, err := c.get(ctx, c.cfg.BaseURL, "getbars", params)
	if err != nil {
		return nil, err
	}
	return parseBars(body, opts)
}

// GetNHistoricTicks returns the last n ticks for the contract up to endTime.
func (c *Client) GetNHistoricTicks(ctx context.Context, contract string, endTime time.Time, n int, opts Options) ([]models.HistoricalTick, error) {
	opts, err := c.normalize(opts)
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(contract))
	params.Set("nticks", strconv.Itoa(n))
	params.Set("to", endTime.Format(c.cfg.TimestampFormat))
	params.Set("response", opts.ResponseFormat)
	if opts.BidAsk {
		params.Set("bidask", "1")
	}

	body, err := c.get(ctx, c.cfg.BaseURL, "getlastnticks", params)
	if err != nil {
		return nil, err
	}
	return parseTicks(body, opts)
}

// GetHistoricTicks returns ticks for the contract between start and end.
func (c *Client) GetHistoricTicks(ctx context.Context, contract string, start, end time.Time, opts Options) ([]models.HistoricalTick, error) {
	opts, err := c.normalize(opts)
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(contract))
	params.Set("from", start.Format(c.cfg.TimestampFormat))
	params.Set("to", end.Format(c.cfg.TimestampFormat))
	params.Set("response", opts.ResponseFormat)
	if opts.BidAsk {
		params.Set("bidask", "1")
	}

	body, err := c.get(ctx, c.cfg.BaseURL, "getticks", params)
	if err != nil {
		return nil, err
	}
	return parseTicks(body, opts)
}

// GetGainersLosers returns the top-n movers for a segment. An unknown segment
// yields an empty result with a warning, never an error.
func (c *Client) GetGainersLosers(ctx context.Context, segment string, topn int, gainers bool) ([]models.MoverRow, error) {
	segment = strings.ToUpper(segment)
	if _, ok := knownSegments[segment]; !ok {
		c.logger.Warn().Str("segment", segment).Msg("unknown segment for movers request")
		return nil, nil
	}

	endpoint := "gettopngainers"
	if !gainers {
		endpoint = "gettopnlosers"
	}
	params := url.Values{}
	params.Set("segment", segment)
	params.Set("topn", strconv.Itoa(topn))
	params.Set("response", "csv")

	body, err := c.get(ctx, c.cfg.BaseURL, endpoint, params)
	if err != nil {
		return nil, err
	}
	var rows []*models.MoverRow
	if err := unmarshalBody(body, "csv", &rows); err != nil {
		return nil, err
	}
	out := make([]models.MoverRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	return out, nil
}

// bhavcopyStatus is the completion-status response for one segment.
type bhavcopyStatus struct {
	Segment string `json:"segment"`
	Date    string `json:"date"`
}

// Bhavcopy fetches the end-of-day file for the segment and date. When
// onlyCompleted is set and the requested date is after the last completed run,
// an empty result is returned with a warning.
func (c *Client) Bhavcopy(ctx context.Context, segment string, date time.Time, onlyCompleted bool) ([]models.BhavcopyRow, error) {
	segment = strings.ToUpper(segment)
	if _, ok := knownSegments[segment]; !ok {
		c.logger.Warn().Str("segment", segment).Msg("unknown segment for bhavcopy request")
		return nil, nil
	}

	if onlyCompleted {
		statusParams := url.Values{}
		statusParams.Set("segment", segment)
		body, err := c.get(ctx, c.cfg.BhavcopyURL, "getbhavcopystatus", statusParams)
		if err != nil {
			return nil, err
		}
		var status bhavcopyStatus
		if err := json.Unmarshal(body, &status); err != nil {
			return nil, tderr.Wrap(err, "decode bhavcopy status")
		}
		completed, err := time.Parse("2006-01-02", status.Date)
		if err != nil {
			return nil, tderr.Wrapf(err, "parse bhavcopy status date %q", status.Date)
		}
		if date.After(completed) {
			c.logger.Warn().
				Str("requested", date.Format("2006-01-02")).
				Str("completed", status.Date).
				Msg("bhavcopy not yet completed for requested date")
			return nil, nil
		}
	}

	params := url.Values{}
	params.Set("segment", segment)
	params.Set("date", date.Format("2006-01-02"))
	params.Set("response", "csv")

	body, err := c.get(ctx, c.cfg.BhavcopyURL, "getbhavcopy", params)
	if err != nil {
		return nil, err
	}
	var rows []*models.BhavcopyRow
	if err := unmarshalBody(body, "csv", &rows); err != nil {
		return nil, err
	}
	out := make([]models.BhavcopyRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	return out, nil
}
