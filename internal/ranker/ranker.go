// Package ranker orders index constituents by market capitalization.
package ranker

import (
	"context"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/newthinker/valscreen/internal/collector"
	"github.com/newthinker/valscreen/internal/core"
)

// Config holds ranking settings.
type Config struct {
	BatchSize int
	Workers   int
}

// DefaultConfig returns the default ranking settings.
func DefaultConfig() Config {
	return Config{
		BatchSize: 50,
		Workers:   8,
	}
}

// Ranker looks up sizes in batches and returns the largest instruments.
type Ranker struct {
	source collector.SizeSource
	config Config
	logger *zap.Logger
}

// New creates a ranker. Non-positive settings take defaults.
func New(source collector.SizeSource, cfg Config, logger *zap.Logger) *Ranker {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ranker{source: source, config: cfg, logger: logger}
}

// Rank returns at most min(limit, successful lookups) identifiers, largest
// first. Lookups that fail or report a non-positive size are dropped.
// If ctx is cancelled between batches, the sizes gathered so far are ranked.
func (r *Ranker) Rank(ctx context.Context, candidates []core.Identifier, limit uint) []core.Identifier {
	unique := dedupe(candidates)
	if limit == 0 || len(unique) == 0 {
		return []core.Identifier{}
	}

	var mu sync.Mutex
	sizes := make(map[core.Identifier]float64, len(unique))
	failed := 0

	for start := 0; start < len(unique); start += r.config.BatchSize {
		if ctx.Err() != nil {
			r.logger.Info("ranking interrupted",
				zap.Int("looked_up", start),
				zap.Int("candidates", len(unique)),
			)
			break
		}

		end := min(start+r.config.BatchSize, len(unique))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.config.Workers)

		for _, id := range unique[start:end] {
			g.Go(func() error {
				size, err := r.source.FastSize(gctx, id)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failed++
					r.logger.Debug("size lookup failed",
						zap.String("identifier", string(id)),
						zap.String("code", core.Code(err)),
					)
					return nil
				}
				if !(size > 0) || math.IsInf(size, 0) {
					failed++
					return nil
				}
				sizes[id] = size
				return nil
			})
		}
		_ = g.Wait()
	}

	ranked := Top(sizes, limit)
	r.logger.Info("ranked constituents",
		zap.Int("candidates", len(unique)),
		zap.Int("sized", len(sizes)),
		zap.Int("failed", failed),
		zap.Int("selected", len(ranked)),
	)
	return ranked
}

// Top sorts identifiers by size descending (identifier ascending on ties)
// and keeps the first limit.
func Top(sizes map[core.Identifier]float64, limit uint) []core.Identifier {
	ids := make([]core.Identifier, 0, len(sizes))
	for id := range sizes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		si, sj := sizes[ids[i]], sizes[ids[j]]
		if si != sj {
			return si > sj
		}
		return ids[i] < ids[j]
	})

	if uint(len(ids)) > limit {
		ids = ids[:limit]
	}
	return ids
}

func dedupe(ids []core.Identifier) []core.Identifier {
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
