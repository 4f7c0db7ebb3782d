package yahoo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/valscreen/internal/collector"
	"github.com/newthinker/valscreen/internal/core"
)

const summaryBody = `{"quoteSummary":{"result":[{
  "price":{"shortName":"Apple Inc.","currency":"USD","marketCap":{"raw":3000000000000,"fmt":"3T"}},
  "summaryDetail":{"forwardPE":{"raw":28.5,"fmt":"28.50"},"trailingPE":{"raw":"Infinity","fmt":"∞"}},
  "defaultKeyStatistics":{"forwardPE":{"raw":99.0}},
  "assetProfile":{"sector":"Technology","industry":"Consumer Electronics"}
}],"error":null}}`

const timeseriesBody = `{"timeseries":{"result":[
  {"meta":{"symbol":["AAPL"],"type":["annualBasicEPS"]},"timestamp":[1],"annualBasicEPS":[
    {"asOfDate":"2022-09-30","periodType":"12M","currencyCode":"USD","reportedValue":{"raw":6.15}}]},
  {"meta":{"symbol":["AAPL"],"type":["annualDilutedEPS"]},"timestamp":[1,2,3],"annualDilutedEPS":[
    {"asOfDate":"2022-09-30","periodType":"12M","currencyCode":"USD","reportedValue":{"raw":6.11}},
    null,
    {"asOfDate":"2021-09-30","periodType":"12M","currencyCode":"USD","reportedValue":{"raw":5.61}}]},
  {"meta":{"symbol":["AAPL"],"type":["annualNetIncome"]},"timestamp":[1],"annualNetIncome":[
    {"asOfDate":"2022-09-30","periodType":"12M","currencyCode":"USD","reportedValue":{"raw":99803000000}}]},
  {"meta":{"symbol":["AAPL"],"type":["annualTotalRevenue"]}}
],"error":null}}`

const chartBody = `{"chart":{"result":[{
  "meta":{"symbol":"AAPL","currency":"USD"},
  "timestamp":[1609459200,1609545600,1609632000],
  "indicators":{"quote":[{"close":[130.5,null,132.25]}]}
}],"error":null}}`

type recorderStub struct {
	mu    sync.Mutex
	calls map[string]int
}

func (r *recorderStub) RecordSourceRequest(endpoint string, status int, duration float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = make(map[string]int)
	}
	r.calls[endpoint]++
}

func newTestServer(t *testing.T, handler http.Handler) (*httptest.Server, *Yahoo) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	y := New(collector.Config{
		BaseURL:           server.URL,
		CookieURL:         server.URL + "/cookie",
		Timeout:           2 * time.Second,
		RequestsPerSecond: 1000,
		Burst:             100,
		MaxFailures:       3,
		Cooldown:          time.Minute,
	})
	return server, y
}

func TestYahoo_ImplementsSource(t *testing.T) {
	var _ collector.Source = (*Yahoo)(nil)
}

func TestYahoo_Name(t *testing.T) {
	y := New(collector.Config{})
	if y.Name() != "yahoo" {
		t.Errorf("expected 'yahoo', got '%s'", y.Name())
	}
}

func TestValidateSymbol(t *testing.T) {
	valid := []core.Identifier{"AAPL", "BRK-B", "BT-A.L", "0700.HK", "7203.T", "SAP.DE"}
	for _, id := range valid {
		if err := validateSymbol(id); err != nil {
			t.Errorf("expected %s to be valid: %v", id, err)
		}
	}
	invalid := []core.Identifier{"", "A B", "../etc", "TOOLONGSYMBOLNAME123.X"}
	for _, id := range invalid {
		if err := validateSymbol(id); err == nil {
			t.Errorf("expected %q to be invalid", id)
		}
	}
}

func TestYahoo_Metadata(t *testing.T) {
	var gotCrumb string
	mux := http.NewServeMux()
	mux.HandleFunc("/cookie", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "A3", Value: "session"})
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/v1/test/getcrumb", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("abc123"))
	})
	mux.HandleFunc("/v10/finance/quoteSummary/AAPL", func(w http.ResponseWriter, r *http.Request) {
		gotCrumb = r.URL.Query().Get("crumb")
		assert.Equal(t, summaryModules, r.URL.Query().Get("modules"))
		w.Write([]byte(summaryBody))
	})

	_, y := newTestServer(t, mux)
	rec := &recorderStub{}
	y.recorder = rec

	md, err := y.Metadata(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, "abc123", gotCrumb)
	assert.Equal(t, "Apple Inc.", md.Name)
	assert.Equal(t, "Technology", md.Sector)
	assert.Equal(t, "USD", md.Currency)
	assert.Equal(t, 3e12, md.MarketCap)
	assert.Equal(t, 28.5, md.ForwardPE)
	assert.Zero(t, md.TrailingPE, "non-numeric trailing P/E should decode as absent")

	assert.Equal(t, 1, rec.calls[endpointQuoteSummary])
	assert.Equal(t, 1, rec.calls[endpointCrumb])
}

func TestYahoo_Metadata_ForwardFromKeyStatistics(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v10/finance/quoteSummary/VOD.L", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"quoteSummary":{"result":[{
		  "price":{"longName":"Vodafone Group","currency":"GBp"},
		  "summaryDetail":{"forwardPE":{},"trailingPE":{"raw":18.2}},
		  "defaultKeyStatistics":{"forwardPE":{"raw":11.4}}
		}],"error":null}}`))
	})

	_, y := newTestServer(t, mux)
	md, err := y.Metadata(context.Background(), "VOD.L")
	require.NoError(t, err)

	assert.Equal(t, "Vodafone Group", md.Name)
	assert.Equal(t, "GBp", md.Currency)
	assert.Equal(t, 11.4, md.ForwardPE)
	assert.Equal(t, 18.2, md.TrailingPE)
	assert.Empty(t, md.Sector)
}

func TestYahoo_Metadata_RefreshesCrumbOnUnauthorized(t *testing.T) {
	var crumbCalls, summaryCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/test/getcrumb", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&crumbCalls, 1)
		if n == 1 {
			w.Write([]byte("stale"))
			return
		}
		w.Write([]byte("fresh"))
	})
	mux.HandleFunc("/v10/finance/quoteSummary/AAPL", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&summaryCalls, 1)
		if r.URL.Query().Get("crumb") != "fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(summaryBody))
	})

	_, y := newTestServer(t, mux)
	md, err := y.Metadata(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "Apple Inc.", md.Name)
	assert.Equal(t, int32(2), atomic.LoadInt32(&crumbCalls))
	assert.Equal(t, int32(2), atomic.LoadInt32(&summaryCalls))
}

func TestYahoo_Metadata_NotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v10/finance/quoteSummary/ZZZZ", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"quoteSummary":{"result":null,"error":{"code":"Not Found","description":"Quote not found"}}}`))
	})

	_, y := newTestServer(t, mux)
	_, err := y.Metadata(context.Background(), "ZZZZ")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrSourceUnavailable))
}

func TestYahoo_FastSize(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v7/finance/quote", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("symbols") {
		case "MSFT":
			w.Write([]byte(`{"quoteResponse":{"result":[{"symbol":"MSFT","marketCap":2800000000000}],"error":null}}`))
		default:
			w.Write([]byte(`{"quoteResponse":{"result":[{"symbol":"NOCAP"}],"error":null}}`))
		}
	})

	_, y := newTestServer(t, mux)

	size, err := y.FastSize(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Equal(t, 2.8e12, size)

	_, err = y.FastSize(context.Background(), "NOCAP")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrSchemaMismatch))
}

func TestYahoo_AnnualStatements(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/fundamentals-timeseries/v1/finance/timeseries/AAPL", func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("type"), "annualDilutedEPS")
		w.Write([]byte(timeseriesBody))
	})

	_, y := newTestServer(t, mux)
	stmt, err := y.AnnualStatements(context.Background(), "AAPL")
	require.NoError(t, err)

	require.Len(t, stmt.Items, 3)
	assert.Equal(t, "Net Income", stmt.Items[0].Label)
	assert.Equal(t, "Diluted EPS", stmt.Items[1].Label)
	assert.Equal(t, "Basic EPS", stmt.Items[2].Label)

	eps := stmt.Items[1].Values
	require.Len(t, eps, 2)
	assert.Equal(t, 2021, eps[0].Date.Year())
	assert.Equal(t, 5.61, eps[0].Value)
	assert.Equal(t, 6.11, eps[1].Value)
}

func TestYahoo_PriceHistory(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v8/finance/chart/AAPL", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		w.Write([]byte(chartBody))
	})

	_, y := newTestServer(t, mux)
	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	prices, err := y.PriceHistory(context.Background(), "AAPL", start)
	require.NoError(t, err)

	require.Len(t, prices, 2)
	assert.Equal(t, 130.5, prices[0].Close)
	assert.Equal(t, 132.25, prices[1].Close)
	assert.Equal(t, 2021, prices[1].Time.Year())
}

func TestYahoo_BreakerOpensOnServerErrors(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v8/finance/chart/AAPL", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, y := newTestServer(t, mux)
	for i := 0; i < 5; i++ {
		_, err := y.PriceHistory(context.Background(), "AAPL", time.Now().AddDate(-1, 0, 0))
		require.Error(t, err)
		assert.True(t, errors.Is(err, core.ErrSourceUnavailable))
	}

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "breaker should stop requests after 3 failures")
}

func TestYahoo_NotFoundDoesNotTripBreaker(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v8/finance/chart/NONE", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	})

	_, y := newTestServer(t, mux)
	for i := 0; i < 5; i++ {
		_, err := y.PriceHistory(context.Background(), "NONE", time.Now())
		require.Error(t, err)
	}
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))
}

func TestYahoo_Timeout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v8/finance/chart/SLOW", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	y := New(collector.Config{BaseURL: server.URL, Timeout: 50 * time.Millisecond, RequestsPerSecond: 100})
	_, err := y.PriceHistory(context.Background(), "SLOW", time.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrSourceUnavailable))
}

func TestYahoo_InvalidSymbol(t *testing.T) {
	y := New(collector.Config{})
	_, err := y.Metadata(context.Background(), "bad symbol")
	assert.True(t, errors.Is(err, core.ErrSourceUnavailable))
}

func TestRawValue(t *testing.T) {
	tests := []struct {
		in      string
		value   float64
		present bool
	}{
		{`{"raw":1.5,"fmt":"1.50"}`, 1.5, true},
		{`42`, 42, true},
		{`{}`, 0, false},
		{`{"raw":"Infinity"}`, 0, false},
		{`"n/a"`, 0, false},
		{`null`, 0, false},
	}
	for _, tc := range tests {
		var v rawValue
		require.NoError(t, v.UnmarshalJSON([]byte(tc.in)))
		assert.Equal(t, tc.value, v.Value(), tc.in)
		assert.Equal(t, tc.present, v.Present(), tc.in)
	}
}
