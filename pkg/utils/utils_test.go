package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"truedata-client/internal/models"
)

func TestMarketStatusAt(t *testing.T) {
	day := func(h, m int) time.Time {
		// Monday 2025-06-02 in IST.
		return time.Date(2025, 6, 2, h, m, 0, 0, IndiaLocation)
	}
	tests := []struct {
		name string
		at   time.Time
		want models.MarketStatus
	}{
		{"before pre-open", day(8, 30), models.MarketClosed},
		{"pre-open", day(9, 5), models.MarketPreOpen},
		{"open bell", day(9, 15), models.MarketOpen},
		{"mid session", day(12, 0), models.MarketOpen},
		{"after close", day(15, 45), models.MarketClosed},
		{"weekend", time.Date(2025, 6, 1, 12, 0, 0, 0, IndiaLocation), models.MarketClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MarketStatusAt(tt.at); got != tt.want {
				t.Errorf("MarketStatusAt(%s) = %s, want %s", tt.at, got, tt.want)
			}
		})
	}
}

func TestFormatIndianCurrency(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{1234.5, "₹1,234.50"},
		{1234567.89, "₹12,34,567.89"},
		{-50000, "-₹50,000.00"},
	}
	for _, tt := range tests {
		if got := FormatIndianCurrency(tt.in); got != tt.want {
			t.Errorf("FormatIndianCurrency(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	cfg := RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2}
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	attempts := 0
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2}
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return errors.New("permanent")
	})
	if err == nil {
		t.Fatal("retry succeeded unexpectedly")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}
