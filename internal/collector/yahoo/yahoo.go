package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/newthinker/valscreen/internal/collector"
	"github.com/newthinker/valscreen/internal/core"
)

const (
	endpointQuoteSummary = "quote_summary"
	endpointQuote        = "quote"
	endpointTimeseries   = "timeseries"
	endpointChart        = "chart"
	endpointCrumb        = "crumb"

	summaryModules = "price,summaryDetail,defaultKeyStatistics,assetProfile"

	// earliest period requested from the timeseries endpoint (1985-08-23)
	timeseriesEpoch = 493590046
)

// statementTypes maps timeseries keys to line-item labels, in output order.
var statementTypes = []struct {
	key   string
	label string
}{
	{"annualTotalRevenue", "Total Revenue"},
	{"annualNetIncome", "Net Income"},
	{"annualDilutedEPS", "Diluted EPS"},
	{"annualBasicEPS", "Basic EPS"},
}

// validSymbol matches identifiers like AAPL, BRK-B, BT-A.L, 0700.HK
var validSymbol = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9\-]{0,11}(\.[A-Za-z]{1,4})?$`)

// validateSymbol checks if a symbol has valid format
func validateSymbol(id core.Identifier) error {
	symbol := string(id)
	if symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if len(symbol) > 20 {
		return fmt.Errorf("symbol too long: %s", symbol)
	}
	if !validSymbol.MatchString(symbol) {
		return fmt.Errorf("invalid symbol format: %s", symbol)
	}
	return nil
}

// Recorder receives per-request metrics.
type Recorder interface {
	RecordSourceRequest(endpoint string, status int, duration float64)
}

// Option configures the Yahoo client.
type Option func(*Yahoo)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(y *Yahoo) { y.logger = logger }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(y *Yahoo) { y.recorder = r }
}

// WithHTTPClient replaces the HTTP client. Its timeout is left untouched.
func WithHTTPClient(c *http.Client) Option {
	return func(y *Yahoo) { y.client = c }
}

// statusError is a non-200 response.
type statusError struct {
	endpoint string
	status   int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.endpoint, e.status)
}

// Yahoo implements collector.Source against Yahoo Finance
type Yahoo struct {
	client   *http.Client
	config   collector.Config
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	logger   *zap.Logger
	recorder Recorder
	now      func() time.Time

	mu           sync.Mutex
	crumb        string
	crumbFetched bool
}

// New creates a new Yahoo source. Zero config fields take defaults.
func New(cfg collector.Config, opts ...Option) *Yahoo {
	cfg = withDefaults(cfg)

	jar, _ := cookiejar.New(nil)
	y := &Yahoo{
		client: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
		},
		config:  cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(y)
	}
	if y.logger == nil {
		y.logger = zap.NewNop()
	}

	y.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "yahoo",
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			y.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return y
}

func withDefaults(cfg collector.Config) collector.Config {
	def := collector.DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = def.MaxFailures
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	return cfg
}

// isSuccessful keeps client errors (unknown symbol) from tripping the
// breaker. Throttling and server errors count as failures.
func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.status >= 400 && se.status < 500 && se.status != http.StatusTooManyRequests
	}
	return false
}

func (y *Yahoo) Name() string {
	return "yahoo"
}

// Metadata fetches name, sector, currency, market cap and P/E multiples.
func (y *Yahoo) Metadata(ctx context.Context, id core.Identifier) (*core.Metadata, error) {
	if err := validateSymbol(id); err != nil {
		return nil, core.WrapError(core.ErrSourceUnavailable, err)
	}

	var resp quoteSummaryResponse
	path := "/v10/finance/quoteSummary/" + url.PathEscape(string(id))
	if err := y.getAuthorized(ctx, endpointQuoteSummary, path, url.Values{"modules": {summaryModules}}, &resp); err != nil {
		return nil, unavailable(id, err)
	}
	if resp.QuoteSummary.Error != nil {
		return nil, unavailable(id, fmt.Errorf("yahoo error: %s", resp.QuoteSummary.Error.Description))
	}
	if len(resp.QuoteSummary.Result) == 0 {
		return nil, unavailable(id, fmt.Errorf("no data"))
	}

	r := resp.QuoteSummary.Result[0]
	md := &core.Metadata{Identifier: id}
	if p := r.Price; p != nil {
		md.Name = coalesce(p.ShortName, p.LongName)
		md.Currency = p.Currency
		md.MarketCap = p.MarketCap.Value()
	}
	if sd := r.SummaryDetail; sd != nil {
		if md.Currency == "" {
			md.Currency = sd.Currency
		}
		if md.MarketCap == 0 {
			md.MarketCap = sd.MarketCap.Value()
		}
		md.ForwardPE = sd.ForwardPE.Value()
		md.TrailingPE = sd.TrailingPE.Value()
	}
	if ks := r.DefaultKeyStatistics; ks != nil && md.ForwardPE == 0 {
		md.ForwardPE = ks.ForwardPE.Value()
	}
	if ap := r.AssetProfile; ap != nil {
		md.Sector = ap.Sector
	}
	if md.Name == "" {
		md.Name = string(id)
	}

	return md, nil
}

// FastSize returns the market capitalization from the lightweight quote endpoint.
func (y *Yahoo) FastSize(ctx context.Context, id core.Identifier) (float64, error) {
	if err := validateSymbol(id); err != nil {
		return 0, core.WrapError(core.ErrSourceUnavailable, err)
	}

	var resp quoteResponse
	q := url.Values{"symbols": {string(id)}, "fields": {"marketCap"}}
	if err := y.getAuthorized(ctx, endpointQuote, "/v7/finance/quote", q, &resp); err != nil {
		return 0, unavailable(id, err)
	}
	if resp.QuoteResponse.Error != nil {
		return 0, unavailable(id, fmt.Errorf("yahoo error: %s", resp.QuoteResponse.Error.Description))
	}

	for _, r := range resp.QuoteResponse.Result {
		if !strings.EqualFold(r.Symbol, string(id)) {
			continue
		}
		if !r.MarketCap.Present() {
			break
		}
		return r.MarketCap.Value(), nil
	}
	return 0, core.WrapError(core.ErrSchemaMismatch, fmt.Errorf("%s: marketCap not reported", id))
}

// AnnualStatements fetches annual income-statement rows from the
// fundamentals timeseries endpoint.
func (y *Yahoo) AnnualStatements(ctx context.Context, id core.Identifier) (*core.Statement, error) {
	if err := validateSymbol(id); err != nil {
		return nil, core.WrapError(core.ErrSourceUnavailable, err)
	}

	keys := make([]string, len(statementTypes))
	for i, st := range statementTypes {
		keys[i] = st.key
	}
	q := url.Values{
		"symbol":  {string(id)},
		"type":    {strings.Join(keys, ",")},
		"period1": {strconv.FormatInt(timeseriesEpoch, 10)},
		"period2": {strconv.FormatInt(y.now().Unix(), 10)},
	}

	var resp timeseriesResponse
	path := "/ws/fundamentals-timeseries/v1/finance/timeseries/" + url.PathEscape(string(id))
	if err := y.get(ctx, endpointTimeseries, y.endpointURL(path, q), &resp); err != nil {
		return nil, unavailable(id, err)
	}
	if resp.Timeseries.Error != nil {
		return nil, unavailable(id, fmt.Errorf("yahoo error: %s", resp.Timeseries.Error.Description))
	}

	series := make(map[string][]core.StatementValue)
	for _, result := range resp.Timeseries.Result {
		key, values, err := parseTimeseries(result)
		if err != nil {
			y.logger.Debug("skipping timeseries entry", zap.String("identifier", string(id)), zap.Error(err))
			continue
		}
		if key != "" && len(values) > 0 {
			series[key] = values
		}
	}

	stmt := &core.Statement{Identifier: id}
	for _, st := range statementTypes {
		if values, ok := series[st.key]; ok {
			stmt.Items = append(stmt.Items, core.LineItem{Label: st.label, Values: values})
		}
	}
	return stmt, nil
}

func parseTimeseries(result map[string]json.RawMessage) (string, []core.StatementValue, error) {
	var meta timeseriesMeta
	raw, ok := result["meta"]
	if !ok {
		return "", nil, fmt.Errorf("missing meta")
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return "", nil, fmt.Errorf("decoding meta: %w", err)
	}
	if len(meta.Type) == 0 {
		return "", nil, fmt.Errorf("meta without type")
	}

	key := meta.Type[0]
	raw, ok = result[key]
	if !ok {
		return key, nil, nil
	}

	var points []*timeseriesPoint
	if err := json.Unmarshal(raw, &points); err != nil {
		return "", nil, fmt.Errorf("decoding %s: %w", key, err)
	}

	values := make([]core.StatementValue, 0, len(points))
	for _, p := range points {
		if p == nil || !p.ReportedValue.Present() {
			continue
		}
		date, err := time.Parse("2006-01-02", p.AsOfDate)
		if err != nil {
			continue
		}
		values = append(values, core.StatementValue{Date: date, Value: p.ReportedValue.Value()})
	}
	sort.Slice(values, func(i, j int) bool { return values[i].Date.Before(values[j].Date) })
	return key, values, nil
}

// PriceHistory fetches daily closes from start until now.
func (y *Yahoo) PriceHistory(ctx context.Context, id core.Identifier, start time.Time) ([]core.PricePoint, error) {
	if err := validateSymbol(id); err != nil {
		return nil, core.WrapError(core.ErrSourceUnavailable, err)
	}

	q := url.Values{
		"interval": {"1d"},
		"period1":  {strconv.FormatInt(start.Unix(), 10)},
		"period2":  {strconv.FormatInt(y.now().Unix(), 10)},
	}

	var result chartResponse
	path := "/v8/finance/chart/" + url.PathEscape(string(id))
	if err := y.get(ctx, endpointChart, y.endpointURL(path, q), &result); err != nil {
		return nil, unavailable(id, err)
	}
	if result.Chart.Error != nil {
		return nil, unavailable(id, fmt.Errorf("yahoo error: %s", result.Chart.Error.Description))
	}
	if len(result.Chart.Result) == 0 {
		return nil, unavailable(id, fmt.Errorf("no data"))
	}

	r := result.Chart.Result[0]
	if len(r.Indicators.Quote) == 0 {
		return []core.PricePoint{}, nil
	}
	closes := r.Indicators.Quote[0].Close

	data := make([]core.PricePoint, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue // Skip missing data
		}
		data = append(data, core.PricePoint{
			Time:  time.Unix(ts, 0).UTC(),
			Close: *closes[i],
		})
	}

	return data, nil
}

// getAuthorized sends the session crumb and refreshes it once on 401/403.
func (y *Yahoo) getAuthorized(ctx context.Context, endpoint, path string, q url.Values, dest any) error {
	crumb := y.currentCrumb(ctx)
	err := y.get(ctx, endpoint, y.endpointURL(path, withCrumb(q, crumb)), dest)

	var se *statusError
	if errors.As(err, &se) && (se.status == http.StatusUnauthorized || se.status == http.StatusForbidden) {
		crumb = y.refreshCrumb(ctx, crumb)
		err = y.get(ctx, endpoint, y.endpointURL(path, withCrumb(q, crumb)), dest)
	}
	return err
}

// get waits for the rate limiter, then performs one request through the
// circuit breaker, bounded by the configured timeout.
func (y *Yahoo) get(ctx context.Context, endpoint, rawURL string, dest any) error {
	if err := y.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, y.config.Timeout)
	defer cancel()

	_, err := y.breaker.Execute(func() (interface{}, error) {
		return nil, y.do(ctx, endpoint, rawURL, dest)
	})
	return err
}

func (y *Yahoo) do(ctx context.Context, endpoint, rawURL string, dest any) error {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", y.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := y.client.Do(req)
	if err != nil {
		y.record(endpoint, 0, start)
		return fmt.Errorf("fetching %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	y.record(endpoint, resp.StatusCode, start)

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return &statusError{endpoint: endpoint, status: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decoding %s response: %w", endpoint, err)
	}
	return nil
}

func (y *Yahoo) currentCrumb(ctx context.Context) string {
	y.mu.Lock()
	defer y.mu.Unlock()
	if !y.crumbFetched {
		y.crumb = y.fetchCrumb(ctx)
		y.crumbFetched = true
	}
	return y.crumb
}

// refreshCrumb fetches a new crumb unless another caller already
// replaced the stale one.
func (y *Yahoo) refreshCrumb(ctx context.Context, stale string) string {
	y.mu.Lock()
	defer y.mu.Unlock()
	if y.crumbFetched && y.crumb != stale {
		return y.crumb
	}
	y.crumb = y.fetchCrumb(ctx)
	y.crumbFetched = true
	return y.crumb
}

// fetchCrumb primes the cookie jar and reads a crumb. Failure yields ""
// and requests proceed without one.
func (y *Yahoo) fetchCrumb(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, y.config.Timeout)
	defer cancel()

	if y.config.CookieURL != "" {
		if req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.config.CookieURL, nil); err == nil {
			req.Header.Set("User-Agent", y.config.UserAgent)
			if resp, err := y.client.Do(req); err == nil {
				io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
				resp.Body.Close()
			}
		}
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.config.BaseURL+"/v1/test/getcrumb", nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", y.config.UserAgent)

	resp, err := y.client.Do(req)
	if err != nil {
		y.record(endpointCrumb, 0, start)
		y.logger.Debug("crumb request failed", zap.Error(err))
		return ""
	}
	defer resp.Body.Close()
	y.record(endpointCrumb, resp.StatusCode, start)

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil || resp.StatusCode != http.StatusOK {
		return ""
	}
	crumb := strings.TrimSpace(string(body))
	if strings.ContainsAny(crumb, "<{ ") {
		return ""
	}
	return crumb
}

func (y *Yahoo) endpointURL(path string, q url.Values) string {
	return y.config.BaseURL + path + "?" + q.Encode()
}

func (y *Yahoo) record(endpoint string, status int, start time.Time) {
	if y.recorder != nil {
		y.recorder.RecordSourceRequest(endpoint, status, time.Since(start).Seconds())
	}
}

func withCrumb(q url.Values, crumb string) url.Values {
	out := make(url.Values, len(q)+1)
	for k, v := range q {
		out[k] = v
	}
	if crumb != "" {
		out.Set("crumb", crumb)
	}
	return out
}

func unavailable(id core.Identifier, err error) error {
	return core.WrapError(core.ErrSourceUnavailable, fmt.Errorf("%s: %w", id, err))
}

// coalesce returns the first non-empty string.
func coalesce(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
