// Package valuation compares an instrument's current multiple with its own
// reconstructed historical average P/E.
package valuation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/valscreen/internal/collector"
	"github.com/newthinker/valscreen/internal/core"
)

// UnknownSector labels instruments without a sector classification.
const UnknownSector = "Unknown"

// Engine evaluates one instrument at a time. It holds no per-call state
// and is safe for concurrent use.
type Engine struct {
	source     collector.Source
	currencies *Currencies
	logger     *zap.Logger
	now        func() time.Time
}

// NewEngine creates an engine. A nil currency table uses the defaults.
func NewEngine(source collector.Source, currencies *Currencies, logger *zap.Logger) *Engine {
	if currencies == nil {
		currencies = NewCurrencies()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		source:     source,
		currencies: currencies,
		logger:     logger,
		now:        time.Now,
	}
}

// Evaluate returns a complete record, or a *core.Error describing why the
// instrument was skipped. It never returns both and never panics.
func (e *Engine) Evaluate(ctx context.Context, id core.Identifier) (rec *core.ValuationRecord, err error) {
	defer func() {
		if p := recover(); p != nil {
			e.logger.Error("valuation panicked",
				zap.String("identifier", string(id)),
				zap.Any("panic", p),
			)
			rec = nil
			err = core.WrapError(core.ErrUnexpected, fmt.Errorf("%s: %v", id, p))
		}
	}()

	md, err := e.source.Metadata(ctx, id)
	if err != nil {
		return nil, skip(id, core.ErrSourceUnavailable, err)
	}

	forward, isTrailing, ok := SelectMultiple(md.ForwardPE, md.TrailingPE)
	if !ok {
		return nil, core.WrapError(core.ErrNoMultiple, fmt.Errorf("%s", id))
	}

	stmt, err := e.source.AnnualStatements(ctx, id)
	if err != nil {
		return nil, skip(id, core.ErrSourceUnavailable, err)
	}
	series, err := EarningsSeries(stmt)
	if err != nil {
		return nil, skip(id, core.ErrSchemaMismatch, err)
	}
	if len(series) == 0 {
		return nil, core.WrapError(core.ErrNoEarnings, fmt.Errorf("%s", id))
	}

	// Fiscal years are calendar years, so averaging starts on 1 January
	// of the earliest one.
	first := series[0].Date
	start := time.Date(first.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	prices, err := e.source.PriceHistory(ctx, id, start)
	if err != nil {
		return nil, skip(id, core.ErrNoPriceHistory, err)
	}
	if len(prices) == 0 {
		return nil, core.WrapError(core.ErrNoPriceHistory, fmt.Errorf("%s", id))
	}

	recon, err := Reconstruct(series, prices, e.currencies.Divisor(md.Currency))
	if err != nil {
		return nil, skip(id, core.ErrUnexpected, err)
	}
	premium, err := Premium(forward, recon.HistoricalPE)
	if err != nil {
		return nil, skip(id, core.ErrDegenerate, err)
	}

	sector := md.Sector
	if sector == "" {
		sector = UnknownSector
	}

	rec = &core.ValuationRecord{
		Identifier:        id,
		Name:              md.Name,
		Sector:            sector,
		Currency:          md.Currency,
		MarketCap:         md.MarketCap,
		ForwardPE:         forward,
		ForwardIsTrailing: isTrailing,
		TrailingPE:        finiteOrZero(md.TrailingPE),
		HistoricalPE:      recon.HistoricalPE,
		PremiumPct:        premium,
		YearsUsed:         recon.YearsUsed(),
		EvaluatedAt:       e.now().UTC(),
	}
	if !isTrailing && positiveFinite(md.TrailingPE) {
		pct := (forward - md.TrailingPE) / md.TrailingPE * 100
		rec.ForwardVsTrailingPct = &pct
	}
	return rec, nil
}

// SelectMultiple picks the forward multiple, falling back to the trailing
// one. ok is false when neither is positive and finite.
func SelectMultiple(forward, trailing float64) (value float64, isTrailing, ok bool) {
	if positiveFinite(forward) {
		return forward, false, true
	}
	if positiveFinite(trailing) {
		return trailing, true, true
	}
	return 0, false, false
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

func finiteOrZero(v float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}
	return v
}

// skip keeps a structured error's code, or assigns fallback. Bare
// sentinels get the identifier attached.
func skip(id core.Identifier, fallback *core.Error, err error) *core.Error {
	var ce *core.Error
	if errors.As(err, &ce) {
		if ce.Cause != nil {
			return ce
		}
		return core.WrapError(ce, fmt.Errorf("%s", id))
	}
	return core.WrapError(fallback, fmt.Errorf("%s: %w", id, err))
}
