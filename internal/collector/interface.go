package collector

import (
	"context"
	"time"

	"github.com/newthinker/valscreen/internal/core"
)

// Config holds market-data source configuration
type Config struct {
	BaseURL           string
	CookieURL         string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	UserAgent         string

	// Circuit breaker: trips after MaxFailures consecutive failures and
	// probes again after Cooldown.
	MaxFailures uint32
	Cooldown    time.Duration
}

// DefaultConfig returns the default source configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:           "https://query1.finance.yahoo.com",
		CookieURL:         "https://fc.yahoo.com",
		Timeout:           10 * time.Second,
		RequestsPerSecond: 5,
		Burst:             1,
		UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
		MaxFailures:       5,
		Cooldown:          30 * time.Second,
	}
}

// SizeSource provides the cheap capitalization lookup used for ranking.
type SizeSource interface {
	FastSize(ctx context.Context, id core.Identifier) (float64, error)
}

// Source defines the market-data lookups the screener needs.
// Every call is bounded by the configured timeout.
type Source interface {
	SizeSource

	Name() string

	// Metadata returns name, sector, currency, capitalization and multiples.
	Metadata(ctx context.Context, id core.Identifier) (*core.Metadata, error)

	// AnnualStatements returns annual income-statement line items.
	AnnualStatements(ctx context.Context, id core.Identifier) (*core.Statement, error)

	// PriceHistory returns daily closes from start until now.
	PriceHistory(ctx context.Context, id core.Identifier, start time.Time) ([]core.PricePoint, error)
}
