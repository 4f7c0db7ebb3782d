package app

import (
	"context"
	"errors"
	"time"

	"github.com/newthinker/valscreen/internal/batch"
	"github.com/newthinker/valscreen/internal/cache"
	"github.com/newthinker/valscreen/internal/core"
	"github.com/newthinker/valscreen/internal/metrics"
	"go.uber.org/zap"
)

const valuationKeyPrefix = "valuation:"

// outcome is the cached form of one evaluation: a record or a skip.
type outcome struct {
	Record *core.ValuationRecord `json:"record,omitempty"`
	Skip   *cachedSkip           `json:"skip,omitempty"`
}

type cachedSkip struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
}

func (s *cachedSkip) err() error {
	e := &core.Error{Code: s.Code, Message: s.Message}
	if s.Cause != "" {
		e.Cause = errors.New(s.Cause)
	}
	return e
}

// cachingEvaluator memoizes valuation outcomes per identifier. Skips that
// depend on source health are not stored.
type cachingEvaluator struct {
	next    batch.Evaluator
	cache   cache.Cache
	ttl     time.Duration
	metrics *metrics.Registry
	logger  *zap.Logger
}

func newCachingEvaluator(next batch.Evaluator, c cache.Cache, ttl time.Duration, m *metrics.Registry, logger *zap.Logger) *cachingEvaluator {
	return &cachingEvaluator{next: next, cache: c, ttl: ttl, metrics: m, logger: logger}
}

func (c *cachingEvaluator) Evaluate(ctx context.Context, id core.Identifier) (*core.ValuationRecord, error) {
	key := valuationKeyPrefix + string(id)

	var cached outcome
	hit, err := cache.GetJSON(ctx, c.cache, key, &cached)
	if err != nil {
		c.logger.Warn("valuation cache read failed", zap.String("identifier", string(id)), zap.Error(err))
	}
	hit = hit && (cached.Record != nil || cached.Skip != nil)
	c.metrics.RecordCache("valuation", hit)
	if hit {
		if cached.Record != nil {
			return cached.Record, nil
		}
		return nil, cached.Skip.err()
	}

	rec, evalErr := c.next.Evaluate(ctx, id)
	if store, ok := toOutcome(rec, evalErr); ok {
		if err := cache.SetJSON(ctx, c.cache, key, store, c.ttl); err != nil {
			c.logger.Warn("valuation cache write failed", zap.String("identifier", string(id)), zap.Error(err))
		}
	}
	return rec, evalErr
}

func toOutcome(rec *core.ValuationRecord, err error) (outcome, bool) {
	if err == nil {
		if rec == nil {
			return outcome{}, false
		}
		return outcome{Record: rec}, true
	}

	var ce *core.Error
	if !errors.As(err, &ce) || !cacheable(ce.Code) {
		return outcome{}, false
	}
	skip := &cachedSkip{Code: ce.Code, Message: ce.Message}
	if ce.Cause != nil {
		skip.Cause = ce.Cause.Error()
	}
	return outcome{Skip: skip}, true
}

func cacheable(code string) bool {
	switch code {
	case core.ErrSourceUnavailable.Code, core.ErrUnexpected.Code:
		return false
	}
	return true
}
