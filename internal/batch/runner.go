// Package batch evaluates a selection of instruments under a politeness
// budget and collects the outcomes into a result table.
package batch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/newthinker/valscreen/internal/core"
)

// Evaluator values a single instrument. A non-nil error is a skip reason.
type Evaluator interface {
	Evaluate(ctx context.Context, id core.Identifier) (*core.ValuationRecord, error)
}

// ProgressFunc is called after each item with a strictly increasing
// completed count. Calls never overlap.
type ProgressFunc func(completed, total int)

// Recorder counts evaluation outcomes.
type Recorder interface {
	RecordEvaluation(outcome string)
}

// Config holds orchestration settings.
type Config struct {
	Workers        int
	ItemsPerSecond float64
	Burst          int
}

// DefaultConfig returns the sequential baseline: one worker, four items per second.
func DefaultConfig() Config {
	return Config{
		Workers:        1,
		ItemsPerSecond: 4,
		Burst:          1,
	}
}

// Option configures a Runner.
type Option func(*Runner)

// WithRecorder sets the outcome recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// Runner drives the valuation engine over a selection.
type Runner struct {
	evaluator Evaluator
	config    Config
	logger    *zap.Logger
	recorder  Recorder
	now       func() time.Time
}

// NewRunner creates a runner. Non-positive settings take defaults.
func NewRunner(evaluator Evaluator, cfg Config, logger *zap.Logger, opts ...Option) *Runner {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.ItemsPerSecond <= 0 {
		cfg.ItemsPerSecond = def.ItemsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Runner{
		evaluator: evaluator,
		config:    cfg,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run evaluates every identifier once and returns the collected table.
// Cancelling ctx stops new items from starting; items already started
// run to completion and the partial table is returned with Cancelled set.
func (r *Runner) Run(ctx context.Context, sel core.Selection, progress ProgressFunc) *core.ResultTable {
	ids := unique(sel.Identifiers)
	table := &core.ResultTable{
		Index:     sel.Index,
		Records:   []core.ValuationRecord{},
		Skipped:   []core.Skip{},
		Total:     len(ids),
		StartedAt: r.now().UTC(),
	}

	r.logger.Info("batch started",
		zap.String("index", sel.Index),
		zap.Int("total", len(ids)),
		zap.Int("workers", r.config.Workers),
	)

	limiter := rate.NewLimiter(rate.Limit(r.config.ItemsPerSecond), r.config.Burst)
	jobs := make(chan core.Identifier)

	var (
		mu        sync.Mutex
		completed int
		wg        sync.WaitGroup
	)

	workers := min(r.config.Workers, max(len(ids), 1))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				rec, err := r.evaluate(ctx, id)

				mu.Lock()
				if err != nil {
					table.Skipped = append(table.Skipped, core.Skip{
						Identifier: id,
						Code:       core.Code(err),
						Message:    err.Error(),
					})
				} else {
					table.Records = append(table.Records, *rec)
				}
				completed++
				if progress != nil {
					progress(completed, len(ids))
				}
				mu.Unlock()
			}
		}()
	}

	cancelled := false
dispatch:
	for _, id := range ids {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		if err := limiter.Wait(ctx); err != nil {
			cancelled = true
			break
		}
		select {
		case jobs <- id:
		case <-ctx.Done():
			cancelled = true
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	table.Cancelled = cancelled
	table.FinishedAt = r.now().UTC()
	table.Normalize()

	r.logger.Info("batch finished",
		zap.String("index", sel.Index),
		zap.Int("records", len(table.Records)),
		zap.Int("skipped", len(table.Skipped)),
		zap.Int("total", table.Total),
		zap.Bool("cancelled", cancelled),
		zap.Duration("elapsed", table.FinishedAt.Sub(table.StartedAt)),
	)
	return table
}

// evaluate runs one item on a context detached from cancellation so an
// in-flight item finishes; remote calls stay bounded by their timeouts.
func (r *Runner) evaluate(ctx context.Context, id core.Identifier) (*core.ValuationRecord, error) {
	rec, err := r.evaluator.Evaluate(context.WithoutCancel(ctx), id)
	if err == nil && rec == nil {
		err = core.WrapError(core.ErrUnexpected, nil)
	}

	outcome := "ok"
	if err != nil {
		outcome = core.Code(err)
		r.logger.Debug("instrument skipped",
			zap.String("identifier", string(id)),
			zap.String("code", outcome),
			zap.Error(err),
		)
	}
	if r.recorder != nil {
		r.recorder.RecordEvaluation(outcome)
	}
	return rec, err
}

func unique(ids []core.Identifier) []core.Identifier {
	seen := make(map[core.Identifier]struct{}, len(ids))
	out := make([]core.Identifier, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
