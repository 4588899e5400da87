// Package sorting maps a table's per-column tri-state sort indicator to the
// API's {sort, direction} pair and back.
package sorting

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/govconsole/internal/listing"
)

var (
	ErrUnknownColumn    = errors.New("unknown sort column")
	ErrUnknownPreset    = errors.New("unknown sort preset")
	ErrInvalidDirection = errors.New("invalid sort direction")
	ErrInvalidConfig    = errors.New("invalid sort config")
)

var validate = validator.New()

// Direction is the API sort direction.
type Direction string

const (
	ASC  Direction = "ASC"
	DESC Direction = "DESC"
)

// ParseDirection accepts ASC/DESC in any case.
func ParseDirection(raw string) (Direction, error) {
	switch Direction(strings.ToUpper(strings.TrimSpace(raw))) {
	case ASC:
		return ASC, nil
	case DESC:
		return DESC, nil
	}
	return "", fmt.Errorf("sorting: %q: %w", raw, ErrInvalidDirection)
}

// Spec is the API-side sort.
type Spec struct {
	Key       string    `yaml:"key" json:"sort" validate:"required"`
	Direction Direction `yaml:"direction" json:"direction" validate:"required,oneof=ASC DESC"`
}

// Params renders the sort as query parameters.
func (s Spec) Params() listing.Params {
	return listing.Params{listing.KeySort: s.Key, listing.KeyDirection: string(s.Direction)}
}

// DefaultSpec is used when a config does not name a default.
var DefaultSpec = Spec{Key: "updated_at", Direction: DESC}

// Column maps a UI column to its API field.
type Column struct {
	Key    string `yaml:"key" json:"key" validate:"required"`
	APIKey string `yaml:"api_key" json:"api_key"`
}

func (c Column) apiKey() string {
	if c.APIKey == "" {
		return c.Key
	}
	return c.APIKey
}

// Preset is a named sort offered outside the table header, e.g. "newest first".
type Preset struct {
	Key   string `yaml:"key" json:"key" validate:"required"`
	Label string `yaml:"label" json:"label"`
	Spec  Spec   `yaml:"spec" json:"spec"`
}

// Config describes the sortable columns of one screen.
type Config struct {
	Columns []Column `yaml:"columns" validate:"dive"`
	Default Spec     `yaml:"default"`
	Presets []Preset `yaml:"presets" validate:"dive"`
}

// ChangeFunc receives every sort the bridge emits.
type ChangeFunc func(Spec)

// Bridge keeps the column indicators and the API sort consistent. At most one
// column is in a non-unsorted state at any time.
type Bridge struct {
	mu       sync.Mutex
	columns  []Column
	byKey    map[string]int
	byAPI    map[string]int
	presets  map[string]Preset
	ordered  []Preset
	fallback Spec
	current  Spec
	active   string
	order    Order
	onChange ChangeFunc
}

// New validates cfg and emits the default sort immediately.
func New(cfg Config, onChange ChangeFunc) (*Bridge, error) {
	if cfg.Default == (Spec{}) {
		cfg.Default = DefaultSpec
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("sorting: %w: %v", ErrInvalidConfig, err)
	}
	b := &Bridge{
		columns:  append([]Column{}, cfg.Columns...),
		byKey:    make(map[string]int, len(cfg.Columns)),
		byAPI:    make(map[string]int, len(cfg.Columns)),
		presets:  make(map[string]Preset, len(cfg.Presets)),
		ordered:  append([]Preset{}, cfg.Presets...),
		fallback: cfg.Default,
		onChange: onChange,
	}
	for i, c := range b.columns {
		if _, dup := b.byKey[c.Key]; dup {
			return nil, fmt.Errorf("sorting: duplicate column %s: %w", c.Key, ErrInvalidConfig)
		}
		b.byKey[c.Key] = i
		b.byAPI[c.apiKey()] = i
	}
	for _, p := range cfg.Presets {
		if err := validate.Struct(p.Spec); err != nil {
			return nil, fmt.Errorf("sorting: preset %s: %w: %v", p.Key, ErrInvalidConfig, err)
		}
		b.presets[p.Key] = p
	}
	b.mu.Lock()
	b.applyLocked(b.fallback)
	spec, cb := b.current, b.onChange
	b.mu.Unlock()
	if cb != nil {
		cb(spec)
	}
	return b, nil
}

// Click advances a column through unsorted, descend, ascend and back.
func (b *Bridge) Click(column string) (Spec, error) {
	b.mu.Lock()
	if _, ok := b.byKey[column]; !ok {
		b.mu.Unlock()
		return Spec{}, fmt.Errorf("sorting: click %s: %w", column, ErrUnknownColumn)
	}
	from := Unsorted
	if b.active == column {
		from = b.order
	}
	next, _ := Next(from, EventClick)
	return b.setOrderLocked(column, next)
}

// SetOrder applies a table-native sort event carrying an explicit order.
func (b *Bridge) SetOrder(column string, order Order) (Spec, error) {
	b.mu.Lock()
	if _, ok := b.byKey[column]; !ok && order != Unsorted {
		b.mu.Unlock()
		return Spec{}, fmt.Errorf("sorting: order %s: %w", column, ErrUnknownColumn)
	}
	if !order.valid() {
		b.mu.Unlock()
		return Spec{}, fmt.Errorf("sorting: order %q: %w", order, ErrInvalidDirection)
	}
	return b.setOrderLocked(column, order)
}

// setOrderLocked must be entered with mu held; it releases it before
// invoking the change callback.
func (b *Bridge) setOrderLocked(column string, order Order) (Spec, error) {
	spec := b.fallback
	if order != Unsorted {
		spec = Spec{Key: b.columns[b.byKey[column]].apiKey(), Direction: order.direction()}
	}
	b.applyLocked(spec)
	if order == Unsorted {
		// The fallback may map to a column, but the clicked one stays clear.
		if b.active == column {
			b.active, b.order = "", Unsorted
		}
	}
	out, cb := b.current, b.onChange
	b.mu.Unlock()
	if cb != nil {
		cb(out)
	}
	return out, nil
}

// Apply handles an API-originated sort change and syncs the indicators.
func (b *Bridge) Apply(spec Spec) (Spec, error) {
	if err := validate.Struct(spec); err != nil {
		return Spec{}, fmt.Errorf("sorting: apply: %w: %v", ErrInvalidDirection, err)
	}
	b.mu.Lock()
	b.applyLocked(spec)
	out, cb := b.current, b.onChange
	b.mu.Unlock()
	if cb != nil {
		cb(out)
	}
	return out, nil
}

// ApplyPreset applies a named preset.
func (b *Bridge) ApplyPreset(key string) (Spec, error) {
	b.mu.Lock()
	p, ok := b.presets[key]
	b.mu.Unlock()
	if !ok {
		return Spec{}, fmt.Errorf("sorting: preset %s: %w", key, ErrUnknownPreset)
	}
	return b.Apply(p.Spec)
}

func (b *Bridge) applyLocked(spec Spec) {
	b.current = spec
	b.active, b.order = "", Unsorted
	if i, ok := b.byAPI[spec.Key]; ok {
		b.active = b.columns[i].Key
		b.order = orderFor(spec.Direction)
	}
}

// Current returns the sort the API last received.
func (b *Bridge) Current() Spec {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Indicator returns the visual order of column.
func (b *Bridge) Indicator(column string) Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active == column {
		return b.order
	}
	return Unsorted
}

// Indicators returns the visual order of every column.
func (b *Bridge) Indicators() map[string]Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]Order, len(b.columns))
	for _, c := range b.columns {
		out[c.Key] = Unsorted
	}
	if b.active != "" {
		out[b.active] = b.order
	}
	return out
}

// Presets returns the configured presets in declaration order.
func (b *Bridge) Presets() []Preset {
	return append([]Preset{}, b.ordered...)
}

// Default returns the sort used when no column is active.
func (b *Bridge) Default() Spec {
	return b.fallback
}
