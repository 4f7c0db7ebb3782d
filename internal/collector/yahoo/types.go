package yahoo

import (
	"bytes"
	"encoding/json"
	"math"
)

// Yahoo API response types

type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// rawValue accepts both {"raw": 1.5, "fmt": "1.50"} and bare numbers.
// Non-numeric raws such as "Infinity" decode as absent.
type rawValue struct {
	raw float64
	ok  bool
}

func (v *rawValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		v.raw, v.ok = f, true
		return nil
	}

	var obj struct {
		Raw json.RawMessage `json:"raw"`
	}
	if err := json.Unmarshal(data, &obj); err != nil || len(obj.Raw) == 0 {
		return nil
	}
	if bytes.Equal(obj.Raw, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(obj.Raw, &f); err == nil {
		v.raw, v.ok = f, true
	}
	return nil
}

// Value returns the number, or 0 if it was absent or not finite.
func (v rawValue) Value() float64 {
	if !v.ok || math.IsNaN(v.raw) || math.IsInf(v.raw, 0) {
		return 0
	}
	return v.raw
}

// Present reports whether a finite number was decoded.
func (v rawValue) Present() bool {
	return v.ok && !math.IsNaN(v.raw) && !math.IsInf(v.raw, 0)
}

type quoteSummaryResponse struct {
	QuoteSummary struct {
		Result []quoteSummaryResult `json:"result"`
		Error  *apiError            `json:"error"`
	} `json:"quoteSummary"`
}

type quoteSummaryResult struct {
	Price                *priceModule         `json:"price"`
	SummaryDetail        *summaryDetailModule `json:"summaryDetail"`
	DefaultKeyStatistics *keyStatisticsModule `json:"defaultKeyStatistics"`
	AssetProfile         *assetProfileModule  `json:"assetProfile"`
}

type priceModule struct {
	ShortName string   `json:"shortName"`
	LongName  string   `json:"longName"`
	Currency  string   `json:"currency"`
	MarketCap rawValue `json:"marketCap"`
}

type summaryDetailModule struct {
	Currency   string   `json:"currency"`
	MarketCap  rawValue `json:"marketCap"`
	ForwardPE  rawValue `json:"forwardPE"`
	TrailingPE rawValue `json:"trailingPE"`
}

type keyStatisticsModule struct {
	ForwardPE rawValue `json:"forwardPE"`
}

type assetProfileModule struct {
	Sector   string `json:"sector"`
	Industry string `json:"industry"`
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []quoteResult `json:"result"`
		Error  *apiError     `json:"error"`
	} `json:"quoteResponse"`
}

type quoteResult struct {
	Symbol    string   `json:"symbol"`
	MarketCap rawValue `json:"marketCap"`
}

type timeseriesResponse struct {
	Timeseries struct {
		Result []map[string]json.RawMessage `json:"result"`
		Error  *apiError                    `json:"error"`
	} `json:"timeseries"`
}

type timeseriesMeta struct {
	Type []string `json:"type"`
}

type timeseriesPoint struct {
	AsOfDate      string   `json:"asOfDate"`
	PeriodType    string   `json:"periodType"`
	CurrencyCode  string   `json:"currencyCode"`
	ReportedValue rawValue `json:"reportedValue"`
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *apiError     `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta       chartMeta  `json:"meta"`
	Timestamp  []int64    `json:"timestamp"`
	Indicators indicators `json:"indicators"`
}

type chartMeta struct {
	Symbol   string `json:"symbol"`
	Currency string `json:"currency"`
}

type indicators struct {
	Quote []quoteIndicator `json:"quote"`
}

type quoteIndicator struct {
	Close []*float64 `json:"close"`
}
