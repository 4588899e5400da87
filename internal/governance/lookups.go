package governance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/govconsole/internal/listing/filters"
)

// OptionSource loads the options of one lookup source.
type OptionSource interface {
	Options(ctx context.Context, source string) ([]filters.Option, error)
}

// Lookups serves lookup options through the versioned cache.
type Lookups struct {
	source OptionSource
	cache  *Cache
	logger *slog.Logger
}

// NewLookups wraps source with cache. A nil cache disables caching.
func NewLookups(source OptionSource, cache *Cache, logger *slog.Logger) *Lookups {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lookups{source: source, cache: cache, logger: logger}
}

// Options returns the options of source, loading them on a cache miss.
func (l *Lookups) Options(ctx context.Context, source string) ([]filters.Option, error) {
	key, err := l.cache.BuildKey(ctx, "lookups", source)
	if err != nil {
		l.logger.Warn("lookup cache unavailable", slog.String("source", source), slog.Any("error", err))
		return l.source.Options(ctx, source)
	}
	var opts []filters.Option
	err = l.cache.FetchJSON(ctx, key, &opts, func(ctx context.Context) (any, error) {
		return l.source.Options(ctx, source)
	})
	if err != nil {
		return nil, fmt.Errorf("governance: lookup %s: %w", source, err)
	}
	return opts, nil
}

// Load fetches several sources concurrently.
func (l *Lookups) Load(ctx context.Context, sources []string) (map[string][]filters.Option, error) {
	var mu sync.Mutex
	out := make(map[string][]filters.Option, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	for _, source := range sources {
		source := source
		g.Go(func() error {
			opts, err := l.Options(gctx, source)
			if err != nil {
				return err
			}
			mu.Lock()
			out[source] = opts
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Refresh invalidates every cached source and reloads sources, returning the
// number of options loaded.
func (l *Lookups) Refresh(ctx context.Context, sources []string) (int, error) {
	if err := l.cache.Bump(ctx); err != nil {
		return 0, fmt.Errorf("governance: bump lookups: %w", err)
	}
	loaded, err := l.Load(ctx, sources)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, opts := range loaded {
		total += len(opts)
	}
	return total, nil
}
