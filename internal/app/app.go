package app

import (
	"context"
	"fmt"
	"time"

	"github.com/newthinker/valscreen/internal/batch"
	"github.com/newthinker/valscreen/internal/cache"
	"github.com/newthinker/valscreen/internal/collector"
	"github.com/newthinker/valscreen/internal/collector/yahoo"
	"github.com/newthinker/valscreen/internal/config"
	"github.com/newthinker/valscreen/internal/core"
	"github.com/newthinker/valscreen/internal/index"
	"github.com/newthinker/valscreen/internal/metrics"
	"github.com/newthinker/valscreen/internal/ranker"
	"github.com/newthinker/valscreen/internal/storage/archive"
	"github.com/newthinker/valscreen/internal/valuation"
	"go.uber.org/zap"
)

const constituentKeyPrefix = "constituents:"

// Option customizes App construction.
type Option func(*App)

// WithSource replaces the default market-data source.
func WithSource(s collector.Source) Option {
	return func(a *App) { a.source = s }
}

// WithTableFetcher replaces the HTML constituent-page fetcher.
func WithTableFetcher(f index.TableFetcher) Option {
	return func(a *App) { a.fetcher = f }
}

// WithCache replaces the cache built from configuration.
func WithCache(c cache.Cache) Option {
	return func(a *App) { a.cache = c }
}

// WithMetrics shares an existing metrics registry.
func WithMetrics(m *metrics.Registry) Option {
	return func(a *App) { a.metrics = m }
}

// WithArchiver replaces the snapshot archiver built from configuration.
func WithArchiver(ar *archive.Archiver) Option {
	return func(a *App) { a.archiver = ar }
}

// App wires the screener pipeline: catalog, resolver, ranker, valuation
// engine and batch runner.
type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Registry

	catalog  *index.Catalog
	sources  *collector.Registry
	source   collector.Source
	fetcher  index.TableFetcher
	cache    cache.Cache
	archiver *archive.Archiver

	resolver *index.Resolver
	ranker   *ranker.Ranker
	runner   *batch.Runner
}

// New creates the application. Components not supplied through options
// are built from cfg.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Defaults()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &App{
		cfg:     cfg,
		logger:  logger,
		sources: collector.NewRegistry(),
	}
	for _, opt := range opts {
		opt(a)
	}

	catalog, err := index.NewCatalog(cfg.Descriptors()...)
	if err != nil {
		return nil, fmt.Errorf("building index catalog: %w", err)
	}
	a.catalog = catalog

	if a.metrics == nil {
		a.metrics = metrics.NewRegistry()
	}
	if a.source == nil {
		a.source = yahoo.New(cfg.Collector(),
			yahoo.WithLogger(logger),
			yahoo.WithRecorder(a.metrics))
	}
	a.sources.Register(a.source)

	if a.fetcher == nil {
		a.fetcher = index.NewHTMLTableFetcher(cfg.Source.TableTimeout, "")
	}
	if a.cache == nil {
		c, err := openCache(cfg)
		if err != nil {
			return nil, err
		}
		a.cache = c
	}
	if a.archiver == nil {
		ar, err := openArchive(cfg, logger)
		if err != nil {
			return nil, err
		}
		a.archiver = ar
	}

	engine := valuation.NewEngine(a.source, valuation.NewCurrencies(cfg.Currency.MinorUnits...), logger)

	var evaluator batch.Evaluator = engine
	if a.cache != nil && cfg.Cache.ValuationTTL > 0 {
		evaluator = newCachingEvaluator(engine, a.cache, cfg.Cache.ValuationTTL, a.metrics, logger)
	}

	a.resolver = index.NewResolver(a.fetcher, logger)
	a.ranker = ranker.New(a.source, cfg.RankerConfig(), logger)
	a.runner = batch.NewRunner(evaluator, cfg.BatchConfig(), logger, batch.WithRecorder(a.metrics))

	logger.Info("app initialized",
		zap.Int("indices", catalog.Len()),
		zap.Strings("sources", a.sources.Names()),
		zap.Bool("cache", a.cache != nil),
		zap.Bool("archive", a.archiver != nil),
	)
	return a, nil
}

func openCache(cfg *config.Config) (cache.Cache, error) {
	switch cfg.Cache.Backend {
	case "redis":
		c, err := cache.NewRedis(cfg.RedisConfig())
		if err != nil {
			return nil, fmt.Errorf("opening redis cache: %w", err)
		}
		return c, nil
	case "none":
		return nil, nil
	default:
		return cache.NewMemory(), nil
	}
}

func openArchive(cfg *config.Config, logger *zap.Logger) (*archive.Archiver, error) {
	var (
		storage archive.Storage
		err     error
	)
	switch cfg.Archive.Type {
	case "localfs":
		storage, err = archive.NewLocalFS(cfg.Archive.Path)
	case "s3":
		storage, err = archive.NewS3(cfg.S3Config())
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	return archive.NewArchiver(storage, logger), nil
}

// Indices returns the catalog ordered by key.
func (a *App) Indices() []index.Descriptor {
	return a.catalog.List()
}

// Index looks up one descriptor.
func (a *App) Index(key string) (index.Descriptor, bool) {
	return a.catalog.Get(key)
}

// Metrics returns the metrics registry.
func (a *App) Metrics() *metrics.Registry {
	return a.metrics
}

// Sources returns the registered market-data source names.
func (a *App) Sources() []string {
	return a.sources.Names()
}

// DefaultLimit is the selection size used when a caller gives none.
func (a *App) DefaultLimit() uint {
	if a.cfg.Ranking.DefaultLimit == 0 {
		return 50
	}
	return a.cfg.Ranking.DefaultLimit
}

// ResolveAndRank resolves the index constituents and keeps the limit
// largest by capitalization. Only an unknown index key is an error; data
// failures produce an empty selection.
func (a *App) ResolveAndRank(ctx context.Context, indexKey string, limit uint) (core.Selection, error) {
	d, ok := a.catalog.Get(indexKey)
	if !ok {
		return core.Selection{}, core.WrapError(core.ErrIndexNotFound, fmt.Errorf("%q", indexKey))
	}

	ids := a.constituents(ctx, d)
	a.metrics.SetConstituents(d.Key, len(ids))

	ranked := a.ranker.Rank(ctx, ids, limit)
	return core.Selection{Index: d.Key, Identifiers: ranked}, nil
}

// constituents serves the resolver through the cache. Empty lists are not
// cached so a transient failure is retried on the next call.
func (a *App) constituents(ctx context.Context, d index.Descriptor) []core.Identifier {
	key := constituentKeyPrefix + d.Key

	if a.cache != nil {
		var ids []core.Identifier
		hit, err := cache.GetJSON(ctx, a.cache, key, &ids)
		if err != nil {
			a.logger.Warn("constituent cache read failed", zap.String("index", d.Key), zap.Error(err))
		}
		a.metrics.RecordCache("constituents", hit)
		if hit && len(ids) > 0 {
			return ids
		}
	}

	ids := a.resolver.Resolve(ctx, d)
	if a.cache != nil && len(ids) > 0 && a.cfg.Cache.ConstituentTTL > 0 {
		if err := cache.SetJSON(ctx, a.cache, key, ids, a.cfg.Cache.ConstituentTTL); err != nil {
			a.logger.Warn("constituent cache write failed", zap.String("index", d.Key), zap.Error(err))
		}
	}
	return ids
}

// RunBatch values every identifier of the selection. It never fails: skips
// are listed in the table and cancellation returns the partial table.
func (a *App) RunBatch(ctx context.Context, sel core.Selection, progress batch.ProgressFunc) *core.ResultTable {
	a.metrics.ScanStarted()
	defer a.metrics.ScanFinished()

	start := time.Now()
	table := a.runner.Run(ctx, sel, progress)

	status := "complete"
	if table.Cancelled {
		status = "cancelled"
	}
	a.metrics.RecordScan(sel.Index, status, time.Since(start).Seconds())
	return table
}

// Scan is ResolveAndRank followed by RunBatch.
func (a *App) Scan(ctx context.Context, indexKey string, limit uint, progress batch.ProgressFunc) (*core.ResultTable, error) {
	sel, err := a.ResolveAndRank(ctx, indexKey, limit)
	if err != nil {
		return nil, err
	}
	return a.RunBatch(ctx, sel, progress), nil
}

// Archive saves a result snapshot. It fails when no archive is configured.
func (a *App) Archive(ctx context.Context, t *core.ResultTable) (string, error) {
	if a.archiver == nil {
		return "", core.WrapError(core.ErrConfigMissing, fmt.Errorf("archive.type is not set"))
	}
	return a.archiver.Save(ctx, t)
}

// LatestSnapshot loads the most recent archived table for an index.
func (a *App) LatestSnapshot(ctx context.Context, indexKey string) (*core.ResultTable, error) {
	if a.archiver == nil {
		return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("archive.type is not set"))
	}
	d, ok := a.catalog.Get(indexKey)
	if !ok {
		return nil, core.WrapError(core.ErrIndexNotFound, fmt.Errorf("%q", indexKey))
	}
	return a.archiver.Latest(ctx, d.Key)
}

// StartCacheJanitor purges expired entries from an in-memory cache every
// cache.purge_interval until ctx is done. It reports whether a janitor was
// started; Redis expires keys itself.
func (a *App) StartCacheJanitor(ctx context.Context) bool {
	mem, ok := a.cache.(*cache.Memory)
	interval := a.cfg.Cache.PurgeInterval
	if !ok || interval <= 0 {
		return false
	}
	go mem.Janitor(ctx, interval, func(n int) {
		a.logger.Debug("purged expired cache entries", zap.Int("count", n))
	})
	return true
}

// Close releases the cache connection.
func (a *App) Close() error {
	if a.cache != nil {
		return a.cache.Close()
	}
	return nil
}
