package core

import (
	"sort"
	"time"
)

// Identifier is the canonical symbol the market-data source expects,
// including any venue suffix (AAPL, BRK-B, VOD.L, 0700.HK).
type Identifier string

func (id Identifier) String() string { return string(id) }

// Selection is a ranked subset of an index, largest capitalization first.
type Selection struct {
	Index       string       `json:"index"`
	Identifiers []Identifier `json:"identifiers"`
}

// Len returns the number of selected identifiers.
func (s Selection) Len() int { return len(s.Identifiers) }

// Metadata describes an instrument as reported by the market-data source.
// Zero values mean the field was not reported.
type Metadata struct {
	Identifier Identifier
	Name       string
	Sector     string
	Currency   string
	MarketCap  float64
	ForwardPE  float64
	TrailingPE float64
}

// LineItem is one row of a periodic financial statement.
type LineItem struct {
	Label  string
	Values []StatementValue
}

// StatementValue is a reported figure for a period ending at Date.
type StatementValue struct {
	Date  time.Time
	Value float64
}

// Statement holds annual line items in source order.
type Statement struct {
	Identifier Identifier
	Items      []LineItem
}

// EarningsPoint is the per-share earnings reported for one fiscal year.
type EarningsPoint struct {
	FiscalYear int
	Date       time.Time
	EPS        float64
}

// PricePoint is a daily close.
type PricePoint struct {
	Time  time.Time
	Close float64
}

// ValuationRecord is the outcome of a successful valuation.
type ValuationRecord struct {
	Identifier        Identifier `json:"identifier"`
	Name              string     `json:"name"`
	Sector            string     `json:"sector"`
	Currency          string     `json:"currency"`
	MarketCap         float64    `json:"market_cap"`
	ForwardPE         float64    `json:"forward_pe"`
	ForwardIsTrailing bool       `json:"forward_is_trailing"`
	TrailingPE        float64    `json:"trailing_pe,omitempty"`
	HistoricalPE      float64    `json:"historical_pe"`
	PremiumPct        float64    `json:"premium_pct"`
	YearsUsed         []int      `json:"years_used"`

	// ForwardVsTrailingPct compares the forward multiple with the trailing
	// one. It is a different metric from PremiumPct and is only set when
	// both multiples were reported.
	ForwardVsTrailingPct *float64 `json:"forward_vs_trailing_pct,omitempty"`

	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Skip records why an identifier produced no record.
type Skip struct {
	Identifier Identifier `json:"identifier"`
	Code       string     `json:"code"`
	Message    string     `json:"message"`
}

// ResultTable is the output of one batch run. Records are keyed by
// identifier; their order carries no meaning beyond determinism.
type ResultTable struct {
	Index      string            `json:"index"`
	Records    []ValuationRecord `json:"records"`
	Skipped    []Skip            `json:"skipped"`
	Total      int               `json:"total"`
	Cancelled  bool              `json:"cancelled"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

// IsEmpty reports whether no identifier produced a record.
func (t *ResultTable) IsEmpty() bool {
	return t == nil || len(t.Records) == 0
}

// Lookup finds the record for an identifier.
func (t *ResultTable) Lookup(id Identifier) (ValuationRecord, bool) {
	for _, r := range t.Records {
		if r.Identifier == id {
			return r, true
		}
	}
	return ValuationRecord{}, false
}

// Normalize sorts records and skips by identifier.
func (t *ResultTable) Normalize() {
	sort.Slice(t.Records, func(i, j int) bool {
		return t.Records[i].Identifier < t.Records[j].Identifier
	})
	sort.Slice(t.Skipped, func(i, j int) bool {
		return t.Skipped[i].Identifier < t.Skipped[j].Identifier
	})
}
