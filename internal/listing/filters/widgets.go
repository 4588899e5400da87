package filters

import "fmt"

// Widget open-state transitions. Opening one widget never closes another;
// only choosing a single-select value or blurring a date range closes a
// widget implicitly. Open-state changes never emit.

// Open marks the widget of key as open.
func (n *Normalizer) Open(key string) error {
	if _, ok := n.config(key); !ok {
		return fmt.Errorf("filters: open %s: %w", key, ErrUnknownFilter)
	}
	n.open[key] = true
	return nil
}

// Close marks the widget of key as closed.
func (n *Normalizer) Close(key string) error {
	if _, ok := n.config(key); !ok {
		return fmt.Errorf("filters: close %s: %w", key, ErrUnknownFilter)
	}
	n.open[key] = false
	return nil
}

// ToggleOpen flips the widget of key and returns the new state.
func (n *Normalizer) ToggleOpen(key string) (bool, error) {
	if _, ok := n.config(key); !ok {
		return false, fmt.Errorf("filters: toggle open %s: %w", key, ErrUnknownFilter)
	}
	n.open[key] = !n.open[key]
	return n.open[key], nil
}

// IsOpen reports whether the widget of key is open.
func (n *Normalizer) IsOpen(key string) bool {
	return n.open[key]
}

// Options returns the option list of a select filter with options made
// unreachable by an active exclusion marked Disabled. The stored config is
// never modified.
func (n *Normalizer) Options(key string) ([]Option, error) {
	cfg, ok := n.config(key)
	if !ok {
		return nil, fmt.Errorf("filters: options %s: %w", key, ErrUnknownFilter)
	}
	if !cfg.Kind.IsSelect() {
		return nil, fmt.Errorf("filters: options %s: %w", key, ErrKindMismatch)
	}
	return n.options(cfg), nil
}

func (n *Normalizer) options(cfg Config) []Option {
	excluded := n.excluded(cfg.Key)
	out := make([]Option, len(cfg.Options))
	for i, o := range cfg.Options {
		if _, ok := excluded[o.Key]; ok {
			o.Disabled = true
		}
		out[i] = o
	}
	return out
}

func (n *Normalizer) isDisabled(cfg Config, opt Option) bool {
	if opt.Disabled {
		return true
	}
	_, ok := n.excluded(cfg.Key)[opt.Key]
	return ok
}

// excluded collects the option keys of target disabled by active exclusions.
func (n *Normalizer) excluded(target string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, ex := range n.exclusions {
		if ex.Disable.Key != target {
			continue
		}
		trigger, ok := n.values[ex.When.Key]
		if !ok || !trigger.Has(ex.When.Option) {
			continue
		}
		for _, key := range ex.Disable.Options {
			out[key] = struct{}{}
		}
	}
	return out
}
