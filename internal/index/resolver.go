package index

import (
	"context"

	"go.uber.org/zap"

	"github.com/newthinker/valscreen/internal/core"
)

// Resolver turns an index descriptor into its constituent identifiers.
type Resolver struct {
	fetcher TableFetcher
	logger  *zap.Logger
}

// NewResolver creates a resolver over the given fetcher.
func NewResolver(fetcher TableFetcher, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{fetcher: fetcher, logger: logger}
}

// Resolve fetches the descriptor's source document and extracts the
// constituent list. It never fails: any retrieval or parse problem is
// logged and yields an empty list.
func (r *Resolver) Resolve(ctx context.Context, d Descriptor) []core.Identifier {
	tables, err := r.fetcher.Fetch(ctx, d.URL)
	if err != nil {
		r.logger.Warn("fetching constituents failed",
			zap.String("index", d.Key),
			zap.String("url", d.URL),
			zap.Error(err),
		)
		return []core.Identifier{}
	}

	ids, err := Extract(tables, d)
	if err != nil {
		r.logger.Warn("invalid index descriptor", zap.String("index", d.Key), zap.Error(err))
		return []core.Identifier{}
	}
	if len(ids) == 0 {
		r.logger.Warn("no constituent table found",
			zap.String("index", d.Key),
			zap.Int("tables", len(tables)),
			zap.Int("threshold", d.Threshold()),
		)
		return ids
	}

	r.logger.Info("resolved constituents",
		zap.String("index", d.Key),
		zap.Int("count", len(ids)),
	)
	return ids
}

// Extract returns the identifiers of the first table that yields more
// than the descriptor's threshold. Tables at or below it are ignored.
// Each matcher scans the whole document before the next one is tried, so
// the shape heuristic only runs when no header matched a qualifying table.
func Extract(tables []Table, d Descriptor) ([]core.Identifier, error) {
	chain, err := d.Matchers()
	if err != nil {
		return nil, err
	}

	threshold := d.Threshold()
	for _, m := range chain {
		for _, t := range tables {
			col, ok := m.Match(t)
			if !ok {
				continue
			}
			ids := columnIdentifiers(t, col, d.Venue)
			if len(ids) > threshold {
				return ids, nil
			}
		}
	}
	return []core.Identifier{}, nil
}

func columnIdentifiers(t Table, col int, v Venue) []core.Identifier {
	seen := make(map[core.Identifier]struct{})
	var ids []core.Identifier
	for _, cell := range t.Column(col) {
		cell = CleanCell(cell)
		if isNullMarker(cell) {
			continue
		}
		id := Normalize(cell, v)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
