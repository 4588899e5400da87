package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/govconsole/internal/governance"
	"github.com/odyssey-erp/govconsole/internal/listing"
	"github.com/odyssey-erp/govconsole/internal/listing/filters"
	"github.com/odyssey-erp/govconsole/internal/listing/query"
	"github.com/odyssey-erp/govconsole/internal/listing/sorting"
	"github.com/odyssey-erp/govconsole/internal/shared"
)

// OptionLoader loads the options of a lookup source.
type OptionLoader interface {
	Options(ctx context.Context, source string) ([]filters.Option, error)
}

// FetcherFactory binds a list fetch to an API resource.
type FetcherFactory func(resource string) query.Fetcher

// Dependencies are the collaborators shared by every workspace.
type Dependencies struct {
	Fetchers FetcherFactory
	Lookups  OptionLoader
	Recorder query.Recorder
	Logger   *slog.Logger
	// DemoFallback enables the fallback rows of screens that declare them.
	DemoFallback bool
}

// Workspace is the per-session state of one list screen. It owns the merged
// parameter object and is the only writer between the filter normalizer, the
// sort bridge and the query controller. Every merge replaces the object.
type Workspace struct {
	ID       string
	def      *Definition
	pageSize int

	mu        sync.Mutex
	params    listing.Params
	keyword   string
	filters   *filters.Normalizer
	sorter    *sorting.Bridge
	toasts    []shared.FlashMessage
	empty     bool
	updatedAt time.Time

	ctrl   *query.Controller[Row]
	logger *slog.Logger
}

// NewWorkspace builds the filter set, the sort bridge and the controller of
// def. Lookup options load concurrently; a failed lookup falls back to the
// static options or drops the filter with a warning toast.
func NewWorkspace(ctx context.Context, def *Definition, deps Dependencies) (*Workspace, error) {
	if deps.Fetchers == nil {
		return nil, errors.New("console: fetcher factory required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pageSize := def.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}
	w := &Workspace{
		ID:       uuid.NewString(),
		def:      def,
		pageSize: pageSize,
		params:   listing.Params{listing.KeyOffset: 0, listing.KeyLimit: pageSize},
		logger:   logger.With(slog.String("screen", def.Key)),
	}
	if def.Keyword {
		w.params = w.params.Merge(listing.Params{"keyword": ""})
	}

	configs, exclusions := w.filterConfigs(ctx, deps.Lookups)
	norm, err := filters.New(configs, filters.Settings{
		OnEmit:     w.mergeFilters,
		Exclusions: exclusions,
		Logger:     w.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("console: %s: %w", def.Key, err)
	}
	w.filters = norm

	sorter, err := sorting.New(def.SortConfig(), w.mergeSort)
	if err != nil {
		return nil, fmt.Errorf("console: %s: %w", def.Key, err)
	}
	w.sorter = sorter

	opts := query.Options[Row]{
		Name:          def.Key,
		EntriesKey:    def.EntriesKey,
		TotalKey:      def.TotalKey,
		FormatError:   w.formatError,
		OnEmpty:       w.setEmpty,
		OnUpdated:     w.touch,
		ExcludeKeys:   def.ExcludeKeys,
		OwnPagination: def.OwnPagination,
		PageSize:      pageSize,
		Recorder:      deps.Recorder,
		Logger:        w.logger,
	}
	if deps.DemoFallback && len(def.Fallback) > 0 {
		opts.Fallback = append([]Row{}, def.Fallback...)
	}
	w.ctrl = query.New[Row](deps.Fetchers(def.Resource), opts)

	w.mu.Lock()
	w.filters.Init()
	w.mu.Unlock()
	return w, nil
}

func (w *Workspace) filterConfigs(ctx context.Context, loader OptionLoader) ([]filters.Config, []filters.Exclusion) {
	loaded := make([][]filters.Option, len(w.def.Filters))
	failed := make([]error, len(w.def.Filters))
	if loader != nil {
		var g errgroup.Group
		g.SetLimit(4)
		for i, f := range w.def.Filters {
			if f.Lookup == "" {
				continue
			}
			i, source := i, f.Lookup
			g.Go(func() error {
				opts, err := loader.Options(ctx, source)
				if err == nil && len(opts) == 0 {
					err = fmt.Errorf("lookup %s returned no options", source)
				}
				loaded[i], failed[i] = opts, err
				return nil
			})
		}
		_ = g.Wait()
	}

	kept := map[string]struct{}{}
	configs := make([]filters.Config, 0, len(w.def.Filters))
	for i, f := range w.def.Filters {
		cfg := f.Config
		if f.Lookup != "" {
			switch {
			case loaded[i] != nil && failed[i] == nil:
				cfg.Options = loaded[i]
				cfg.Initial = nil
			case len(cfg.Options) == 0:
				w.logger.Warn("filter dropped", slog.String("filter", f.Key), slog.Any("error", failed[i]))
				w.toasts = append(w.toasts, shared.FlashMessage{Kind: "warning", Message: fmt.Sprintf("Filter %q is unavailable.", f.Label)})
				continue
			default:
				w.logger.Warn("lookup failed, using static options", slog.String("filter", f.Key), slog.Any("error", failed[i]))
			}
		}
		kept[f.Key] = struct{}{}
		configs = append(configs, cfg)
	}

	exclusions := make([]filters.Exclusion, 0, len(w.def.Exclusions))
	for _, ex := range w.def.Exclusions {
		_, when := kept[ex.When.Key]
		_, target := kept[ex.Disable.Key]
		if when && target {
			exclusions = append(exclusions, ex)
		}
	}
	return configs, exclusions
}

// mergeFilters and mergeSort run with mu held.
func (w *Workspace) mergeFilters(diff listing.Params) {
	w.params = w.params.Merge(diff).Merge(listing.Params{listing.KeyOffset: 0})
}

func (w *Workspace) mergeSort(spec sorting.Spec) {
	w.params = w.params.Merge(spec.Params()).Merge(listing.Params{listing.KeyOffset: 0})
}

func (w *Workspace) formatError(err error) {
	msg := fmt.Sprintf("Failed to load %s.", w.def.Title)
	var apiErr *governance.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		msg = fmt.Sprintf("Failed to load %s: %s", w.def.Title, apiErr.Message)
	}
	w.mu.Lock()
	w.toasts = append(w.toasts, shared.FlashMessage{Kind: "danger", Message: msg})
	w.mu.Unlock()
}

func (w *Workspace) setEmpty(isEmpty bool) {
	w.mu.Lock()
	w.empty = isEmpty
	w.mu.Unlock()
}

func (w *Workspace) touch() {
	w.mu.Lock()
	w.updatedAt = time.Now()
	w.mu.Unlock()
}

// Definition returns the screen definition.
func (w *Workspace) Definition() *Definition {
	return w.def
}

// Params returns a copy of the merged parameter object.
func (w *Workspace) Params() listing.Params {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.params.Clone()
}

// Mount runs the first fetch.
func (w *Workspace) Mount(ctx context.Context) {
	w.ctrl.Mount(ctx, w.Params())
}

// push hands the latest params to the controller. Reading the latest object
// at push time keeps the controller monotonic when requests interleave.
func (w *Workspace) push(ctx context.Context) {
	w.ctrl.SetParams(ctx, w.Params())
}

func (w *Workspace) mutate(ctx context.Context, fn func() error) error {
	w.mu.Lock()
	err := fn()
	w.mu.Unlock()
	if err != nil {
		return err
	}
	w.push(ctx)
	return nil
}

// Toggle flips a select option.
func (w *Workspace) Toggle(ctx context.Context, key, option string) error {
	return w.mutate(ctx, func() error { return w.filters.Toggle(key, option) })
}

// SetDateRange updates a date-range filter.
func (w *Workspace) SetDateRange(ctx context.Context, key string, start, end *time.Time) error {
	return w.mutate(ctx, func() error { return w.filters.SetDateRange(key, start, end) })
}

// BlurDateRange completes a pending range.
func (w *Workspace) BlurDateRange(ctx context.Context, key string) error {
	return w.mutate(ctx, func() error { return w.filters.BlurDateRange(key) })
}

// SetNodes replaces a tree selection.
func (w *Workspace) SetNodes(ctx context.Context, key string, ids []string) error {
	return w.mutate(ctx, func() error { return w.filters.SetNodes(key, ids) })
}

// Reset restores one filter.
func (w *Workspace) Reset(ctx context.Context, key string) error {
	return w.mutate(ctx, func() error { return w.filters.Reset(key) })
}

// ResetAll restores every filter.
func (w *Workspace) ResetAll(ctx context.Context) {
	_ = w.mutate(ctx, func() error {
		w.filters.ResetAll()
		return nil
	})
}

// ClearAll is the host-level "clear all filters" affordance: it re-runs the
// normalizer's init and clears the keyword.
func (w *Workspace) ClearAll(ctx context.Context) {
	_ = w.mutate(ctx, func() error {
		if w.def.Keyword {
			w.keyword = ""
			w.params = w.params.Merge(listing.Params{"keyword": ""})
		}
		w.filters.Init()
		return nil
	})
}

// Open marks a filter widget open. Open-state never triggers a fetch.
func (w *Workspace) Open(key string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.filters.Open(key)
}

// Close marks a filter widget closed.
func (w *Workspace) Close(key string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.filters.Close(key)
}

// ToggleOpen flips a filter widget.
func (w *Workspace) ToggleOpen(key string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.filters.ToggleOpen(key)
}

// SortClick cycles a column header.
func (w *Workspace) SortClick(ctx context.Context, column string) error {
	return w.mutate(ctx, func() error {
		_, err := w.sorter.Click(column)
		return err
	})
}

// SortOrder applies a table-native sort event.
func (w *Workspace) SortOrder(ctx context.Context, column string, order sorting.Order) error {
	return w.mutate(ctx, func() error {
		_, err := w.sorter.SetOrder(column, order)
		return err
	})
}

// SortPreset applies a named sort.
func (w *Workspace) SortPreset(ctx context.Context, preset string) error {
	return w.mutate(ctx, func() error {
		_, err := w.sorter.ApplyPreset(preset)
		return err
	})
}

// SetKeyword updates the search box and restarts at the first page.
func (w *Workspace) SetKeyword(ctx context.Context, keyword string) error {
	if !w.def.Keyword {
		return fmt.Errorf("console: %s: keyword search disabled: %w", w.def.Key, filters.ErrUnknownFilter)
	}
	return w.mutate(ctx, func() error {
		w.keyword = keyword
		w.params = w.params.Merge(listing.Params{"keyword": keyword, listing.KeyOffset: 0})
		return nil
	})
}

// Page moves to a 1-based page.
func (w *Workspace) Page(ctx context.Context, page int) {
	if page < 1 {
		page = 1
	}
	limit := w.pageSize
	offset := (page - 1) * limit
	if w.def.OwnPagination {
		w.ctrl.PageChange(ctx, offset, limit)
		return
	}
	_ = w.mutate(ctx, func() error {
		w.params = w.params.Merge(listing.Params{listing.KeyOffset: offset, listing.KeyLimit: limit})
		return nil
	})
}

// Refresh forces a refetch of the current search condition.
func (w *Workspace) Refresh(ctx context.Context) error {
	return w.ctrl.Handle().GetData(ctx)
}

// Shutdown cancels any fetch in flight.
func (w *Workspace) Shutdown() {
	w.ctrl.Close()
}

// FilterView is a filter as rendered.
type FilterView struct {
	filters.Entry
	Lookup string
}

// ColumnView is a column header with its sort indicator.
type ColumnView struct {
	ColumnDefinition
	Order sorting.Order
}

// View is the render model of a workspace.
type View struct {
	ID          string
	Key         string
	Title       string
	Description string
	CreateURL   string
	Keyword     string
	Searchable  bool
	Filters     []FilterView
	Columns     []ColumnView
	Presets     []sorting.Preset
	Sort        sorting.Spec
	Rows        []Row
	Pagination  shared.Pagination
	Empty       query.EmptyState
	IsEmpty     bool
	Loading     bool
	Degraded    bool
	Toasts      []shared.FlashMessage
	Params      listing.Params
	UpdatedAt   time.Time
}

// View builds the render model and drains pending toasts.
func (w *Workspace) View() View {
	st := w.ctrl.State()

	w.mu.Lock()
	defer w.mu.Unlock()

	lookups := make(map[string]string, len(w.def.Filters))
	for _, f := range w.def.Filters {
		lookups[f.Key] = f.Lookup
	}
	entries := w.filters.Entries()
	fv := make([]FilterView, 0, len(entries))
	for _, e := range entries {
		fv = append(fv, FilterView{Entry: e, Lookup: lookups[e.Config.Key]})
	}
	indicators := w.sorter.Indicators()
	cols := make([]ColumnView, 0, len(w.def.Columns))
	for _, c := range w.def.Columns {
		order := sorting.Unsorted
		if c.Sortable {
			order = indicators[c.Key]
		}
		cols = append(cols, ColumnView{ColumnDefinition: c, Order: order})
	}

	limit, ok := st.SearchCondition.Int(listing.KeyLimit)
	if !ok || limit <= 0 {
		limit = w.pageSize
	}
	offset, _ := st.SearchCondition.Int(listing.KeyOffset)
	toasts := w.toasts
	w.toasts = nil

	return View{
		ID:          w.ID,
		Key:         w.def.Key,
		Title:       w.def.Title,
		Description: w.def.Description,
		CreateURL:   w.def.CreateURL,
		Keyword:     w.keyword,
		Searchable:  w.def.Keyword,
		Filters:     fv,
		Columns:     cols,
		Presets:     w.sorter.Presets(),
		Sort:        w.sorter.Current(),
		Rows:        st.Rows,
		Pagination:  shared.NewPagination(offset, limit, st.Total),
		Empty:       st.Empty,
		IsEmpty:     w.empty,
		Loading:     st.Loading,
		Degraded:    st.Degraded,
		Toasts:      toasts,
		Params:      w.params.Clone(),
		UpdatedAt:   w.updatedAt,
	}
}
