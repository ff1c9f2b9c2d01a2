package symbols

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"truedata-client/internal/config"
)

const testMasterCSV = `symbolid,symbol,segment
100,TCS,EQ
101,INFY,EQ
102,NIFTY25062619550CE,FO
`

func TestCache_DownloadAndResolve(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(testMasterCSV))
	}))
	defer srv.Close()

	dir := t.TempDir()
	c := NewCache(config.CacheConfig{Enabled: true, Dir: dir, URL: srv.URL}, zerolog.Nop())
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	if sym, ok := c.Resolve(100); !ok || sym != "TCS" {
		t.Errorf("Resolve(100) = %q %v", sym, ok)
	}
	if id, ok := c.ID("INFY"); !ok || id != 101 {
		t.Errorf("ID(INFY) = %d %v", id, ok)
	}
	if _, ok := c.Resolve(999); ok {
		t.Error("resolved unknown id")
	}
	if c.Count() != 3 {
		t.Errorf("count = %d, want 3", c.Count())
	}

	// Second load in the same day reads the persisted file, no new download.
	c2 := NewCache(config.CacheConfig{Enabled: true, Dir: dir, URL: srv.URL}, zerolog.Nop())
	if err := c2.Load(context.Background()); err != nil {
		t.Fatalf("second load: %v", err)
	}
	if calls != 1 {
		t.Errorf("download calls = %d, want 1", calls)
	}
	if sym, _ := c2.Resolve(102); sym != "NIFTY25062619550CE" {
		t.Errorf("Resolve(102) = %q from cached file", sym)
	}
}

func TestCache_DownloadRetriesTransientFailure(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(testMasterCSV))
	}))
	defer srv.Close()

	c := NewCache(config.CacheConfig{Enabled: true, Dir: t.TempDir(), URL: srv.URL}, zerolog.Nop())
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if calls != 3 {
		t.Errorf("download attempts = %d, want 3", calls)
	}
	if _, ok := c.ID("TCS"); !ok {
		t.Error("master not loaded after retries")
	}
}

func TestCache_PurgesStaleFiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testMasterCSV))
	}))
	defer srv.Close()

	dir := t.TempDir()
	yesterday := time.Now().AddDate(0, 0, -1).Format("020106")
	stale := filepath.Join(dir, cacheFilePrefix+yesterday+".csv")
	if err := os.WriteFile(stale, []byte("symbolid,symbol,segment\n1,OLD,EQ\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewCache(config.CacheConfig{Enabled: true, Dir: dir, URL: srv.URL}, zerolog.Nop())
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale cache file not purged")
	}
	if _, ok := c.ID("OLD"); ok {
		t.Error("stale entry survived")
	}
	if _, ok := c.ID("TCS"); !ok {
		t.Error("fresh master not loaded")
	}
}
