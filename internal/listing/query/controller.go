// Package query drives a paginated, sortable fetch from a canonical parameter
// object with consistent loading, empty and error semantics.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/odyssey-erp/govconsole/internal/listing"
)

var (
	// ErrDecode reports a payload whose entries or total cannot be decoded.
	ErrDecode = errors.New("query: decode payload")
	// ErrClosed is returned by operations on a closed controller.
	ErrClosed = errors.New("controller closed")
)

// Payload is the raw response of a list endpoint keyed by top-level field.
type Payload map[string]json.RawMessage

// Fetcher loads one page for params. It must honour ctx cancellation.
type Fetcher func(ctx context.Context, params listing.Params) (Payload, error)

// Fetch outcomes reported to a Recorder.
const (
	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomeFallback = "fallback"
	OutcomeAborted  = "aborted"
	OutcomeStale    = "stale"
)

// Recorder observes fetch outcomes, typically for metrics.
type Recorder interface {
	ObserveFetch(name, outcome string, elapsed time.Duration)
}

// Options configures a Controller. Zero values select the defaults.
type Options[T any] struct {
	Name       string
	EntriesKey string
	TotalKey   string
	Transform  func([]T) []T
	// Fallback rows replace a failed fetch. Meant for screens whose backend
	// does not exist yet, not as a resilience feature.
	Fallback      []T
	FormatError   func(error)
	OnEmpty       func(isEmpty bool)
	OnUpdated     func()
	ExcludeKeys   []string
	OwnPagination bool
	PageSize      int
	Recorder      Recorder
	Logger        *slog.Logger
}

// Handle is the imperative surface a host keeps of a controller.
type Handle interface {
	GetData(ctx context.Context) error
	Total() int
}

// Controller binds a Fetcher to a live parameter object. Every accepted
// parameter change produces a new search condition and exactly one fetch; a
// newer fetch cancels the one in flight and stale completions are dropped.
// Fetches are detached from the caller's cancellation: only a newer fetch or
// Close aborts them.
// A Controller never returns fetch failures to its host; they resolve to
// state transitions and observer callbacks.
type Controller[T any] struct {
	fetch Fetcher
	opts  Options[T]

	mu      sync.Mutex
	params  listing.Params
	mounted bool
	offset  int
	limit   int
	state   State[T]
	seq     uint64
	cancel  context.CancelFunc
	lastErr string
	closed  bool
	// unfetched is set when the current condition was aborted without a
	// newer fetch replacing it; rows then belong to an older condition.
	unfetched bool
}

// New builds a controller around fetch.
func New[T any](fetch Fetcher, opts Options[T]) *Controller[T] {
	if opts.EntriesKey == "" {
		opts.EntriesKey = "entries"
	}
	if opts.TotalKey == "" {
		opts.TotalKey = "total_count"
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 10
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Controller[T]{
		fetch: fetch,
		opts:  opts,
		limit: opts.PageSize,
		state: State[T]{Phase: PhaseIdle, Empty: EmptyNone, SearchCondition: listing.Params{}},
	}
}

// Mount accepts the initial params and fetches unconditionally.
func (c *Controller[T]) Mount(ctx context.Context, params listing.Params) State[T] {
	c.mu.Lock()
	c.params = params.Clone()
	c.adoptPaging(params)
	c.mounted = true
	c.mu.Unlock()
	return c.run(ctx)
}

// SetParams replaces the external params. Params structurally equal to the
// current ones trigger no fetch. Controller-owned paging restarts at the
// first page.
func (c *Controller[T]) SetParams(ctx context.Context, params listing.Params) State[T] {
	c.mu.Lock()
	if c.mounted && !c.unfetched && listing.Equal(c.params, params) {
		c.mu.Unlock()
		return c.State()
	}
	c.params = params.Clone()
	if c.opts.OwnPagination {
		c.offset = 0
	}
	c.adoptPaging(params)
	c.mounted = true
	c.mu.Unlock()
	return c.run(ctx)
}

// PageChange moves controller-owned pagination. It is a no-op unless the
// controller owns pagination.
func (c *Controller[T]) PageChange(ctx context.Context, offset, limit int) State[T] {
	c.mu.Lock()
	if !c.opts.OwnPagination || (offset == c.offset && limit == c.limit) {
		c.mu.Unlock()
		return c.State()
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = c.opts.PageSize
	}
	c.offset, c.limit = offset, limit
	c.mu.Unlock()
	return c.run(ctx)
}

// GetData refetches the current search condition. It only returns an error
// when the controller is closed.
func (c *Controller[T]) GetData(ctx context.Context) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return fmt.Errorf("query: %s: %w", c.opts.Name, ErrClosed)
	}
	c.run(ctx)
	return nil
}

// Total returns the total of the last completed fetch.
func (c *Controller[T]) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Total
}

// Handle exposes the imperative refetch surface.
func (c *Controller[T]) Handle() Handle {
	return c
}

// State returns a snapshot of the current state.
func (c *Controller[T]) State() State[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Close cancels any fetch in flight. Later calls are ignored.
func (c *Controller[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// adoptPaging tracks host-supplied offset and limit when the host owns paging.
func (c *Controller[T]) adoptPaging(params listing.Params) {
	if c.opts.OwnPagination {
		return
	}
	if v, ok := params.Int(listing.KeyOffset); ok {
		c.offset = v
	}
	if v, ok := params.Int(listing.KeyLimit); ok {
		c.limit = v
	}
}

// condition must be called with mu held.
func (c *Controller[T]) condition() listing.Params {
	paging := listing.Params{listing.KeyOffset: c.offset, listing.KeyLimit: c.limit}
	if c.opts.OwnPagination {
		return c.params.Merge(paging)
	}
	return paging.Merge(c.params)
}

func (c *Controller[T]) run(ctx context.Context) State[T] {
	c.mu.Lock()
	if c.closed {
		defer c.mu.Unlock()
		return c.state.clone()
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.seq++
	seq := c.seq
	fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	cond := c.condition()
	c.state.SearchCondition = cond
	c.advance(EventStart)
	c.mu.Unlock()

	started := time.Now()
	payload, err := c.fetch(fctx, cond.Clone())
	var (
		rows  []T
		total int
	)
	if err == nil {
		rows, total, err = c.decode(payload)
	}
	aborted := fctx.Err() != nil || errors.Is(err, context.Canceled)
	cancel()

	c.mu.Lock()
	if seq != c.seq {
		c.mu.Unlock()
		c.observe(OutcomeStale, started)
		c.opts.Logger.Debug("superseded fetch dropped", slog.String("list", c.opts.Name), slog.Uint64("seq", seq))
		return c.State()
	}
	c.cancel = nil
	if aborted && err != nil {
		c.unfetched = true
		c.advance(EventAbort)
		snapshot := c.state.clone()
		c.mu.Unlock()
		c.observe(OutcomeAborted, started)
		return snapshot
	}

	c.unfetched = false
	var notify []func()
	outcome := OutcomeSuccess
	if err == nil {
		if c.opts.Transform != nil {
			rows = c.opts.Transform(rows)
		}
		c.lastErr = ""
		c.state.Err = nil
		c.state.Degraded = false
		c.state.Rows = rows
		c.state.Total = total
		c.state.Empty = c.classify(cond, total)
		c.advance(EventResolve)
	} else {
		c.opts.Logger.Warn("list fetch failed", slog.String("list", c.opts.Name), slog.Any("error", err))
		c.state.Err = err
		repeated := err.Error() == c.lastErr
		c.lastErr = err.Error()
		if c.opts.Fallback != nil {
			outcome = OutcomeFallback
			c.state.Rows = append([]T{}, c.opts.Fallback...)
			c.state.Total = len(c.opts.Fallback)
			c.state.Degraded = true
			c.state.Empty = c.classify(cond, c.state.Total)
			if !repeated {
				notify = append(notify, c.formatError(err))
			}
		} else {
			outcome = OutcomeError
			c.state.Rows = nil
			c.state.Total = 0
			c.state.Degraded = false
			c.state.Empty = EmptyUnavailable
			notify = append(notify, c.formatError(err))
		}
		c.advance(EventReject)
	}
	c.advance(EventSettle)
	isEmpty := c.state.Total == 0
	if c.opts.OnEmpty != nil {
		notify = append(notify, func() { c.opts.OnEmpty(isEmpty) })
	}
	if c.opts.OnUpdated != nil {
		notify = append(notify, c.opts.OnUpdated)
	}
	snapshot := c.state.clone()
	c.mu.Unlock()

	c.observe(outcome, started)
	for _, fn := range notify {
		fn()
	}
	return snapshot
}

// classify must be called with mu held; it reads params, never a cache.
func (c *Controller[T]) classify(cond listing.Params, total int) EmptyState {
	switch {
	case total > 0:
		return EmptyNone
	case listing.IsBlank(cond, c.opts.ExcludeKeys...):
		return EmptyInitial
	default:
		return EmptyFiltered
	}
}

func (c *Controller[T]) formatError(err error) func() {
	return func() {
		if c.opts.FormatError != nil {
			c.opts.FormatError(err)
		}
	}
}

// advance must be called with mu held.
func (c *Controller[T]) advance(e Event) {
	next, ok := Advance(c.state.Phase, e)
	if !ok {
		c.opts.Logger.Error("invalid loading transition",
			slog.String("list", c.opts.Name),
			slog.String("phase", string(c.state.Phase)),
			slog.String("event", string(e)),
		)
		return
	}
	c.state.Phase = next
	c.state.Loading = next == PhaseLoading
}

func (c *Controller[T]) observe(outcome string, started time.Time) {
	if c.opts.Recorder != nil {
		c.opts.Recorder.ObserveFetch(c.opts.Name, outcome, time.Since(started))
	}
}

func (c *Controller[T]) decode(payload Payload) ([]T, int, error) {
	var rows []T
	if raw, ok := payload[c.opts.EntriesKey]; ok && len(raw) > 0 {
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, 0, fmt.Errorf("%w: %s: %v", ErrDecode, c.opts.EntriesKey, err)
		}
	}
	total := len(rows)
	if raw, ok := payload[c.opts.TotalKey]; ok && len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &total); err != nil {
			return nil, 0, fmt.Errorf("%w: %s: %v", ErrDecode, c.opts.TotalKey, err)
		}
	}
	return rows, total, nil
}
