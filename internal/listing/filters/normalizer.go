package filters

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/govconsole/internal/listing"
)

var validate = validator.New()

// EmitFunc receives the canonical parameter object after a semantic change.
type EmitFunc func(listing.Params)

// Settings configures a Normalizer.
type Settings struct {
	OnEmit     EmitFunc
	Exclusions []Exclusion
	Logger     *slog.Logger
}

// Entry is a read model of one filter for rendering.
type Entry struct {
	Config  Config
	Value   Value
	Open    bool
	Options []Option
}

// Normalizer owns a FilterSet and emits its canonical form whenever it
// changes. It is not safe for concurrent use; the owning workspace serializes
// access.
type Normalizer struct {
	configs    []Config
	index      map[string]int
	values     map[string]*Value
	open       map[string]bool
	exclusions []Exclusion
	last       listing.Params
	onEmit     EmitFunc
	logger     *slog.Logger
}

// New validates configs and builds the default FilterSet. Nothing is emitted
// until Init is called.
func New(configs []Config, settings Settings) (*Normalizer, error) {
	n := &Normalizer{
		index:      make(map[string]int, len(configs)),
		values:     make(map[string]*Value, len(configs)),
		open:       make(map[string]bool, len(configs)),
		exclusions: append([]Exclusion{}, settings.Exclusions...),
		onEmit:     settings.OnEmit,
		logger:     settings.Logger,
	}
	if n.logger == nil {
		n.logger = slog.Default()
	}
	for _, cfg := range configs {
		if err := validate.Struct(cfg); err != nil {
			return nil, fmt.Errorf("filters: %s: %w: %v", cfg.Key, ErrInvalidConfig, err)
		}
		if _, dup := n.index[cfg.Key]; dup {
			return nil, fmt.Errorf("filters: duplicate key %s: %w", cfg.Key, ErrInvalidConfig)
		}
		normalized, err := normalizeConfig(cfg)
		if err != nil {
			return nil, err
		}
		n.index[cfg.Key] = len(n.configs)
		n.configs = append(n.configs, normalized)
	}
	for _, ex := range n.exclusions {
		if err := n.checkExclusion(ex); err != nil {
			return nil, err
		}
	}
	n.resetValues()
	return n, nil
}

// normalizeConfig returns a copy of cfg with a sentinel entry on select kinds
// and concrete options carrying a value.
func normalizeConfig(cfg Config) (Config, error) {
	out := cfg
	out.Initial = append([]string{}, cfg.Initial...)
	out.Options = make([]Option, 0, len(cfg.Options)+1)
	hasSentinel := false
	for _, o := range cfg.Options {
		if o.Value == nil && o.Key != SentinelKey {
			o.Value = o.Key
		}
		if cfg.Kind.IsSelect() && isSentinel(cfg.Kind, o) {
			o.Key = SentinelKey
			o.Value = sentinelFor(cfg.Kind).Value
			hasSentinel = true
		}
		out.Options = append(out.Options, o)
	}
	if !cfg.Kind.IsSelect() {
		return out, nil
	}
	if len(out.Options) == 0 || (hasSentinel && len(out.Options) == 1) {
		return Config{}, fmt.Errorf("filters: %s: select without options: %w", cfg.Key, ErrInvalidConfig)
	}
	if !hasSentinel {
		out.Options = append([]Option{sentinelFor(cfg.Kind)}, out.Options...)
	}
	for _, key := range out.Initial {
		if _, ok := findOption(out.Options, key); !ok {
			return Config{}, fmt.Errorf("filters: %s: initial %q: %w", cfg.Key, key, ErrUnknownOption)
		}
	}
	return out, nil
}

func (n *Normalizer) checkExclusion(ex Exclusion) error {
	if err := validate.Struct(ex); err != nil {
		return fmt.Errorf("filters: exclusion: %w: %v", ErrInvalidConfig, err)
	}
	when, ok := n.config(ex.When.Key)
	if !ok || !when.Kind.IsSelect() {
		return fmt.Errorf("filters: exclusion trigger %s: %w", ex.When.Key, ErrInvalidConfig)
	}
	if _, ok := findOption(when.Options, ex.When.Option); !ok {
		return fmt.Errorf("filters: exclusion trigger %s/%s: %w", ex.When.Key, ex.When.Option, ErrUnknownOption)
	}
	target, ok := n.config(ex.Disable.Key)
	if !ok || !target.Kind.IsSelect() {
		return fmt.Errorf("filters: exclusion target %s: %w", ex.Disable.Key, ErrInvalidConfig)
	}
	for _, key := range ex.Disable.Options {
		if _, ok := findOption(target.Options, key); !ok || key == SentinelKey {
			return fmt.Errorf("filters: exclusion target %s/%s: %w", ex.Disable.Key, key, ErrUnknownOption)
		}
	}
	return nil
}

// Init resets every filter to its default, forgets the last emitted snapshot
// and emits once, so the host loads an unfiltered first page.
func (n *Normalizer) Init() {
	n.resetValues()
	for k := range n.open {
		delete(n.open, k)
	}
	n.last = nil
	n.emit()
}

// Toggle flips optionKey on a multi-select or replaces the choice of a
// single-select, then emits.
func (n *Normalizer) Toggle(key, optionKey string) error {
	cfg, v, err := n.lookup(key)
	if err != nil {
		return err
	}
	if !cfg.Kind.IsSelect() {
		return fmt.Errorf("filters: toggle %s: %w", key, ErrKindMismatch)
	}
	opt, ok := findOption(cfg.Options, optionKey)
	if !ok {
		return fmt.Errorf("filters: %s/%s: %w", key, optionKey, ErrUnknownOption)
	}
	switch cfg.Kind {
	case KindMultiSelect:
		switch {
		case isSentinel(cfg.Kind, opt):
			v.Selected = []Option{opt}
		case v.Has(optionKey):
			v.Selected = removeOption(v.Selected, optionKey)
			if len(v.Selected) == 0 {
				v.Selected = []Option{sentinelOf(cfg)}
			}
		default:
			if n.isDisabled(cfg, opt) {
				return fmt.Errorf("filters: %s/%s: %w", key, optionKey, ErrOptionDisabled)
			}
			v.Selected = append(withoutSentinel(cfg.Kind, v.Selected), opt)
		}
	case KindSingleSelect:
		if !isSentinel(cfg.Kind, opt) && n.isDisabled(cfg, opt) {
			return fmt.Errorf("filters: %s/%s: %w", key, optionKey, ErrOptionDisabled)
		}
		v.Selected = []Option{opt}
		n.open[key] = false
	default:
		return fmt.Errorf("filters: toggle %s: %w", key, ErrKindMismatch)
	}
	n.emit()
	return nil
}

// SetDateRange updates a date-range filter. A range with only one bound is
// kept pending and not emitted; clearing both bounds restores the
// unrestricted state.
func (n *Normalizer) SetDateRange(key string, start, end *time.Time) error {
	cfg, v, err := n.lookup(key)
	if err != nil {
		return err
	}
	if cfg.Kind != KindDateRange {
		return fmt.Errorf("filters: date range %s: %w", key, ErrKindMismatch)
	}
	next := DateRange{Start: start, End: end}.clone()
	switch {
	case next.IsZero():
		v.Range = DateRange{}
		v.Pending = DateRange{}
	case next.Start != nil && next.End != nil:
		if next.End.Before(*next.Start) {
			return fmt.Errorf("filters: %s: end before start: %w", key, ErrInvalidRange)
		}
		v.Range = next
		v.Pending = DateRange{}
	default:
		v.Pending = next
		return nil
	}
	n.emit()
	return nil
}

// BlurDateRange completes a pending start-only range with the end of the
// start's day and emits it.
func (n *Normalizer) BlurDateRange(key string) error {
	cfg, v, err := n.lookup(key)
	if err != nil {
		return err
	}
	if cfg.Kind != KindDateRange {
		return fmt.Errorf("filters: blur %s: %w", key, ErrKindMismatch)
	}
	n.open[key] = false
	switch {
	case v.Pending.IsZero():
		return nil
	case v.Pending.Start == nil:
		return fmt.Errorf("filters: %s: missing start: %w", key, ErrIncompleteRange)
	}
	start := *v.Pending.Start
	end := EndOfDay(start)
	v.Range = DateRange{Start: &start, End: &end}
	v.Pending = DateRange{}
	n.emit()
	return nil
}

// SetNodes replaces the selected node ids of a tree filter and emits.
func (n *Normalizer) SetNodes(key string, ids []string) error {
	cfg, v, err := n.lookup(key)
	if err != nil {
		return err
	}
	if cfg.Kind != KindTreeMultiSelect {
		return fmt.Errorf("filters: nodes %s: %w", key, ErrKindMismatch)
	}
	seen := make(map[string]struct{}, len(ids))
	nodes := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		nodes = append(nodes, id)
	}
	v.Nodes = nodes
	n.emit()
	return nil
}

// Reset restores one filter to its default and emits.
func (n *Normalizer) Reset(key string) error {
	cfg, _, err := n.lookup(key)
	if err != nil {
		return err
	}
	def := defaultValue(cfg)
	n.values[key] = &def
	n.open[key] = false
	n.emit()
	return nil
}

// ResetAll restores every filter to its default and emits at most once.
func (n *Normalizer) ResetAll() {
	n.resetValues()
	n.emit()
}

// Canonical returns the current canonical parameter object.
func (n *Normalizer) Canonical() listing.Params {
	out := make(listing.Params, len(n.configs))
	for _, cfg := range n.configs {
		out[cfg.Key] = n.values[cfg.Key].canonical()
	}
	return out
}

// LastEmitted returns a copy of the last emitted snapshot, or nil.
func (n *Normalizer) LastEmitted() listing.Params {
	if n.last == nil {
		return nil
	}
	return n.last.Clone()
}

// Keys returns the filter keys in configuration order.
func (n *Normalizer) Keys() []string {
	keys := make([]string, 0, len(n.configs))
	for _, cfg := range n.configs {
		keys = append(keys, cfg.Key)
	}
	return keys
}

// Value returns a copy of the filter's widget-native state.
func (n *Normalizer) Value(key string) (Value, error) {
	_, v, err := n.lookup(key)
	if err != nil {
		return Value{}, err
	}
	return v.clone(), nil
}

// Snapshot returns copies of every filter value keyed by filter key.
func (n *Normalizer) Snapshot() map[string]Value {
	out := make(map[string]Value, len(n.values))
	for k, v := range n.values {
		out[k] = v.clone()
	}
	return out
}

// Entries returns a render model of every filter in configuration order.
func (n *Normalizer) Entries() []Entry {
	out := make([]Entry, 0, len(n.configs))
	for _, cfg := range n.configs {
		entry := Entry{
			Config: cfg,
			Value:  n.values[cfg.Key].clone(),
			Open:   n.open[cfg.Key],
		}
		if cfg.Kind.IsSelect() {
			entry.Options = n.options(cfg)
		}
		out = append(out, entry)
	}
	return out
}

func (n *Normalizer) emit() bool {
	candidate := n.Canonical()
	if n.last != nil && listing.Equal(n.last, candidate) {
		n.logger.Debug("filter emission suppressed", slog.Any("params", candidate))
		return false
	}
	n.last = candidate.Clone()
	if n.onEmit != nil {
		n.onEmit(candidate)
	}
	return true
}

func (n *Normalizer) resetValues() {
	for _, cfg := range n.configs {
		def := defaultValue(cfg)
		n.values[cfg.Key] = &def
	}
}

func (n *Normalizer) lookup(key string) (Config, *Value, error) {
	cfg, ok := n.config(key)
	if !ok {
		return Config{}, nil, fmt.Errorf("filters: %s: %w", key, ErrUnknownFilter)
	}
	return cfg, n.values[key], nil
}

func (n *Normalizer) config(key string) (Config, bool) {
	i, ok := n.index[key]
	if !ok {
		return Config{}, false
	}
	return n.configs[i], true
}

func defaultValue(cfg Config) Value {
	v := Value{Kind: cfg.Kind}
	switch cfg.Kind {
	case KindMultiSelect, KindSingleSelect:
		for _, key := range cfg.Initial {
			opt, _ := findOption(cfg.Options, key)
			if isSentinel(cfg.Kind, opt) {
				continue
			}
			v.Selected = append(v.Selected, opt)
			if cfg.Kind == KindSingleSelect {
				break
			}
		}
		if len(v.Selected) == 0 {
			v.Selected = []Option{sentinelOf(cfg)}
		}
	case KindTreeMultiSelect:
		v.Nodes = append([]string{}, cfg.Initial...)
	}
	return v
}

// sentinelOf returns the sentinel entry of a normalized config, keeping a
// label set in the definition.
func sentinelOf(cfg Config) Option {
	if o, ok := findOption(cfg.Options, SentinelKey); ok {
		return o
	}
	return sentinelFor(cfg.Kind)
}

func findOption(options []Option, key string) (Option, bool) {
	for _, o := range options {
		if o.Key == key {
			return o, true
		}
	}
	return Option{}, false
}

func removeOption(options []Option, key string) []Option {
	out := make([]Option, 0, len(options))
	for _, o := range options {
		if o.Key != key {
			out = append(out, o)
		}
	}
	return out
}

func withoutSentinel(kind Kind, options []Option) []Option {
	out := make([]Option, 0, len(options)+1)
	for _, o := range options {
		if !isSentinel(kind, o) {
			out = append(out, o)
		}
	}
	return out
}
