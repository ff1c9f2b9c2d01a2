// Package symbols resolves exchange-assigned numeric symbol ids to
// human-readable symbol strings, cached on disk once per calendar day.
package symbols

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog"

	"truedata-client/internal/config"
	tderr "truedata-client/internal/errors"
	"truedata-client/internal/logging"
	"truedata-client/internal/models"
	"truedata-client/pkg/utils"
)

const cacheFilePrefix = "sym_cache_"

// Cache maps symbol ids to symbols. The backing file is keyed by calendar day
// (sym_cache_{ddmmyy}.csv); files from other days are purged on load.
type Cache struct {
	cfg    config.CacheConfig
	http   *http.Client
	logger zerolog.Logger

	mu       sync.RWMutex
	byID     map[int]string
	bySymbol map[string]int
}

// NewCache creates a symbol cache. Call Load before resolving.
func NewCache(cfg config.CacheConfig, logger zerolog.Logger) *Cache {
	return &Cache{
		cfg:      cfg,
		http:     &http.Client{Timeout: 60 * time.Second},
		logger:   logging.WithComponent(logger, "symbols"),
		byID:     make(map[int]string),
		bySymbol: make(map[string]int),
	}
}

func (c *Cache) todayFile() string {
	return filepath.Join(c.cfg.Dir, cacheFilePrefix+time.Now().Format("020106")+".csv")
}

// Load populates the map from today's cache file, downloading the symbol
// master first if no file for today exists. Stale files are removed.
func (c *Cache) Load(ctx context.Context) error {
	path := c.todayFile()
	c.purgeStale(filepath.Base(path))

	rows, err := c.readFile(path)
	if err != nil {
		c.logger.Info().Str("path", path).Msg("no cache for today, downloading symbol master")
		rows, err = utils.RetryWithResult(ctx, utils.DefaultRetryConfig(), func() ([]*models.SymbolRow, error) {
			return c.download(ctx)
		})
		if err != nil {
			return err
		}
		if err := c.writeFile(path, rows); err != nil {
			c.logger.Warn().Err(err).Str("path", path).Msg("failed to persist symbol cache")
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID = make(map[int]string, len(rows))
	c.bySymbol = make(map[string]int, len(rows))
	for _, r := range rows {
		c.byID[r.SymbolID] = r.Symbol
		c.bySymbol[r.Symbol] = r.SymbolID
	}
	c.logger.Info().Int("symbols", len(rows)).Msg("symbol cache loaded")
	return nil
}

func (c *Cache) purgeStale(keep string) {
	entries, err := os.ReadDir(c.cfg.Dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, cacheFilePrefix) || name == keep {
			continue
		}
		if err := os.Remove(filepath.Join(c.cfg.Dir, name)); err == nil {
			c.logger.Debug().Str("file", name).Msg("purged stale symbol cache")
		}
	}
}

func (c *Cache) readFile(path string) ([]*models.SymbolRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var rows []*models.SymbolRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("decode symbol cache: %w", err)
	}
	return rows, nil
}

func (c *Cache) writeFile(path string, rows []*models.SymbolRow) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gocsv.MarshalFile(&rows, f)
}

func (c *Cache) download(ctx context.Context) ([]*models.SymbolRow, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		return nil, tderr.Wrap(err, "build symbol master request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, tderr.Wrap(err, "fetch symbol master")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("symbol master: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, tderr.Wrap(err, "read symbol master")
	}
	var rows []*models.SymbolRow
	if err := gocsv.UnmarshalBytes(body, &rows); err != nil {
		return nil, tderr.Wrap(err, "decode symbol master")
	}
	return rows, nil
}

// Resolve returns the symbol for a numeric id.
func (c *Cache) Resolve(id int) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.byID[id]
	return s, ok
}

// ID returns the numeric id for a symbol.
func (c *Cache) ID(symbol string) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.bySymbol[strings.ToUpper(symbol)]
	return id, ok
}

// Count returns the number of cached symbols.
func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}
