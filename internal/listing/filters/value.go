// Package filters normalizes the state of heterogeneous filter widgets into a
// canonical, deduplicated query-parameter object.
package filters

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifies the widget type behind a filter key.
type Kind string

const (
	KindMultiSelect     Kind = "multi_select"
	KindSingleSelect    Kind = "single_select"
	KindDateRange       Kind = "date_range"
	KindTreeMultiSelect Kind = "tree_multi_select"
)

// IsSelect reports whether the kind carries a sentinel option.
func (k Kind) IsSelect() bool {
	return k == KindMultiSelect || k == KindSingleSelect
}

// SentinelKey is the option key of the "unrestricted" entry.
const SentinelKey = "all"

// Sentinel option values.
const (
	SentinelMultiValue  = -1
	SentinelSingleValue = ""
)

var (
	ErrUnknownFilter   = errors.New("unknown filter")
	ErrKindMismatch    = errors.New("operation not supported by filter kind")
	ErrUnknownOption   = errors.New("unknown option")
	ErrOptionDisabled  = errors.New("option disabled")
	ErrInvalidRange    = errors.New("invalid date range")
	ErrIncompleteRange = errors.New("incomplete date range")
	ErrInvalidConfig   = errors.New("invalid filter config")
)

// Option is one selectable entry of a select widget.
type Option struct {
	Key      string `yaml:"key" json:"key" validate:"required"`
	Label    string `yaml:"label" json:"label"`
	Value    any    `yaml:"value" json:"value"`
	Disabled bool   `yaml:"disabled" json:"disabled,omitempty"`
}

// Config describes one filter widget.
type Config struct {
	Key     string   `yaml:"key" json:"key" validate:"required"`
	Kind    Kind     `yaml:"kind" json:"kind" validate:"required,oneof=multi_select single_select date_range tree_multi_select"`
	Label   string   `yaml:"label" json:"label"`
	Options []Option `yaml:"options" json:"options,omitempty" validate:"dive"`
	// Initial lists option keys (selects) or node ids (trees) selected on init.
	Initial []string `yaml:"initial" json:"initial,omitempty"`
}

// Trigger names the option whose selection activates an exclusion.
type Trigger struct {
	Key    string `yaml:"key" json:"key" validate:"required"`
	Option string `yaml:"option" json:"option" validate:"required"`
}

// Target names the options an active exclusion makes non-selectable.
type Target struct {
	Key     string   `yaml:"key" json:"key" validate:"required"`
	Options []string `yaml:"options" json:"options" validate:"required,min=1"`
}

// Exclusion declares that selecting When makes Disable unreachable.
type Exclusion struct {
	When    Trigger `yaml:"when" json:"when"`
	Disable Target  `yaml:"disable" json:"disable"`
}

// DateRange holds optional bounds of a date-range widget.
type DateRange struct {
	Start *time.Time
	End   *time.Time
}

// IsZero reports whether neither bound is set.
func (r DateRange) IsZero() bool {
	return r.Start == nil && r.End == nil
}

func (r DateRange) clone() DateRange {
	var out DateRange
	if r.Start != nil {
		s := *r.Start
		out.Start = &s
	}
	if r.End != nil {
		e := *r.End
		out.End = &e
	}
	return out
}

// Value is the widget-native state of one filter. Only the fields matching
// Kind are meaningful.
type Value struct {
	Kind Kind
	// Selected holds the chosen options of a select, sentinel included.
	Selected []Option
	// Range is the last complete date range; Pending holds bounds still
	// being edited.
	Range   DateRange
	Pending DateRange
	Nodes   []string
}

// IsUnrestricted reports whether the value applies no restriction.
func (v Value) IsUnrestricted() bool {
	switch v.Kind {
	case KindMultiSelect, KindSingleSelect:
		return len(v.Selected) == 1 && isSentinel(v.Kind, v.Selected[0])
	case KindDateRange:
		return v.Range.IsZero()
	case KindTreeMultiSelect:
		return len(v.Nodes) == 0
	}
	return true
}

// Has reports whether optionKey is currently selected.
func (v Value) Has(optionKey string) bool {
	for _, o := range v.Selected {
		if o.Key == optionKey {
			return true
		}
	}
	return false
}

func (v Value) clone() Value {
	out := Value{Kind: v.Kind, Range: v.Range.clone(), Pending: v.Pending.clone()}
	if v.Selected != nil {
		out.Selected = append([]Option{}, v.Selected...)
	}
	if v.Nodes != nil {
		out.Nodes = append([]string{}, v.Nodes...)
	}
	return out
}

func (v Value) canonical() any {
	switch v.Kind {
	case KindMultiSelect:
		values := []any{}
		for _, o := range v.Selected {
			if !isSentinel(v.Kind, o) {
				values = append(values, o.Value)
			}
		}
		return values
	case KindSingleSelect:
		if len(v.Selected) == 0 || isSentinel(v.Kind, v.Selected[0]) {
			return SentinelSingleValue
		}
		return v.Selected[0].Value
	case KindDateRange:
		out := map[string]int64{}
		if v.Range.Start != nil && v.Range.End != nil {
			out["start_time"] = v.Range.Start.Unix()
			out["end_time"] = v.Range.End.Unix()
		}
		return out
	case KindTreeMultiSelect:
		return append([]string{}, v.Nodes...)
	}
	return nil
}

func sentinelFor(kind Kind) Option {
	if kind == KindSingleSelect {
		return Option{Key: SentinelKey, Label: "All", Value: SentinelSingleValue}
	}
	return Option{Key: SentinelKey, Label: "All", Value: SentinelMultiValue}
}

func isSentinel(kind Kind, o Option) bool {
	if o.Key == SentinelKey {
		return true
	}
	switch kind {
	case KindMultiSelect:
		return fmt.Sprint(o.Value) == fmt.Sprint(SentinelMultiValue)
	case KindSingleSelect:
		return o.Value == nil || fmt.Sprint(o.Value) == SentinelSingleValue
	}
	return false
}

// EndOfDay returns the last second of t's day in t's location.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, t.Location())
}
