// Package console hosts the list screens of the governance console: screen
// definitions, per-session workspaces and their HTTP surface.
package console

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/govconsole/internal/listing"
	"github.com/odyssey-erp/govconsole/internal/listing/filters"
	"github.com/odyssey-erp/govconsole/internal/listing/sorting"
)

//go:embed screens/*.yaml
var screenFS embed.FS

var (
	ErrUnknownScreen     = errors.New("unknown screen")
	ErrInvalidDefinition = errors.New("invalid screen definition")
)

var validate = validator.New()

// Row is one table row as returned by the governance API.
type Row map[string]any

// FilterDefinition is a filter widget; Lookup names an API option source
// loaded in place of, or ahead of, the static options.
type FilterDefinition struct {
	filters.Config `yaml:",inline"`
	Lookup         string `yaml:"lookup"`
}

// ColumnDefinition is one table column.
type ColumnDefinition struct {
	Key      string `yaml:"key" validate:"required"`
	Label    string `yaml:"label" validate:"required"`
	APIKey   string `yaml:"api_key"`
	Sortable bool   `yaml:"sortable"`
	Format   string `yaml:"format" validate:"omitempty,oneof=text datetime badge number"`
}

// SortDefinition holds the default sort and the named presets.
type SortDefinition struct {
	Default sorting.Spec     `yaml:"default"`
	Presets []sorting.Preset `yaml:"presets" validate:"dive"`
}

// Definition describes one list screen.
type Definition struct {
	Key           string              `yaml:"key" validate:"required"`
	Title         string              `yaml:"title" validate:"required"`
	Description   string              `yaml:"description"`
	Resource      string              `yaml:"resource" validate:"required"`
	EntriesKey    string              `yaml:"entries_key"`
	TotalKey      string              `yaml:"total_key"`
	PageSize      int                 `yaml:"page_size" validate:"omitempty,min=1,max=200"`
	OwnPagination bool                `yaml:"own_pagination"`
	Keyword       bool                `yaml:"keyword"`
	ExcludeKeys   []string            `yaml:"exclude_keys"`
	Filters       []FilterDefinition  `yaml:"filters" validate:"dive"`
	Exclusions    []filters.Exclusion `yaml:"exclusions" validate:"dive"`
	Columns       []ColumnDefinition  `yaml:"columns" validate:"required,min=1,dive"`
	Sort          SortDefinition      `yaml:"sort"`
	CreateURL     string              `yaml:"create_url"`
	// Fallback rows are shown when the list endpoint fails. Demo screens only.
	Fallback []Row `yaml:"fallback"`
}

// SortConfig derives the sort bridge config from the column table.
func (d *Definition) SortConfig() sorting.Config {
	cfg := sorting.Config{Default: d.Sort.Default, Presets: d.Sort.Presets}
	for _, c := range d.Columns {
		if c.Sortable {
			cfg.Columns = append(cfg.Columns, sorting.Column{Key: c.Key, APIKey: c.APIKey})
		}
	}
	return cfg
}

// LookupSources lists the distinct option sources the screen depends on.
func (d *Definition) LookupSources() []string {
	var out []string
	seen := map[string]struct{}{}
	for _, f := range d.Filters {
		if f.Lookup == "" {
			continue
		}
		if _, ok := seen[f.Lookup]; ok {
			continue
		}
		seen[f.Lookup] = struct{}{}
		out = append(out, f.Lookup)
	}
	return out
}

func (d *Definition) applyDefaults() {
	if d.Sort.Default == (sorting.Spec{}) {
		d.Sort.Default = sorting.DefaultSpec
	}
	if d.PageSize == 0 {
		d.PageSize = 10
	}
}

func (d *Definition) check() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidDefinition, d.Key, err)
	}
	for _, f := range d.Filters {
		if f.Kind.IsSelect() && f.Lookup == "" && len(f.Options) == 0 {
			return fmt.Errorf("%w: %s: filter %s has neither options nor lookup", ErrInvalidDefinition, d.Key, f.Key)
		}
	}
	// Lookup options are unknown until a workspace loads them, so lookup
	// filters accept any key their initial selection or exclusions name.
	configs := make([]filters.Config, 0, len(d.Filters))
	for _, f := range d.Filters {
		cfg := f.Config
		if f.Kind.IsSelect() {
			for _, o := range cfg.Options {
				sentinel := o.Key == filters.SentinelKey || (f.Kind == filters.KindSingleSelect && o.Value == filters.SentinelSingleValue)
				if !sentinel && o.Value != nil && listing.Falsy(o.Value) {
					return fmt.Errorf("%w: %s: filter %s option %s: value %v reads as unfiltered", ErrInvalidDefinition, d.Key, f.Key, o.Key, o.Value)
				}
			}
		}
		if f.Lookup != "" {
			cfg.Options = withReferencedKeys(cfg.Options, f.Key, cfg.Initial, d.Exclusions)
		}
		configs = append(configs, cfg)
	}
	if _, err := filters.New(configs, filters.Settings{Exclusions: d.Exclusions}); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidDefinition, d.Key, err)
	}
	if _, err := sorting.New(d.SortConfig(), nil); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidDefinition, d.Key, err)
	}
	return nil
}

// withReferencedKeys returns options extended with a stand-in for every key
// the filter's initial selection or an exclusion names.
func withReferencedKeys(options []filters.Option, key string, initial []string, exclusions []filters.Exclusion) []filters.Option {
	refs := append([]string{}, initial...)
	for _, ex := range exclusions {
		if ex.When.Key == key {
			refs = append(refs, ex.When.Option)
		}
		if ex.Disable.Key == key {
			refs = append(refs, ex.Disable.Options...)
		}
	}
	out := append([]filters.Option{}, options...)
	seen := make(map[string]struct{}, len(out))
	for _, o := range out {
		seen[o.Key] = struct{}{}
	}
	for _, ref := range refs {
		if _, ok := seen[ref]; ok || ref == filters.SentinelKey {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, filters.Option{Key: ref})
	}
	if len(out) == 0 {
		out = append(out, filters.Option{Key: "lookup"})
	}
	return out
}

// Registry holds the validated screen definitions.
type Registry struct {
	screens map[string]*Definition
	order   []string
}

// LoadRegistry reads the embedded screen definitions.
func LoadRegistry() (*Registry, error) {
	return LoadRegistryFS(screenFS, "screens")
}

// LoadRegistryFS reads every *.yaml file under dir of fsys.
func LoadRegistryFS(fsys fs.FS, dir string) (*Registry, error) {
	files, err := fs.Glob(fsys, path.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	reg := &Registry{screens: make(map[string]*Definition, len(files))}
	for _, name := range files {
		raw, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, err
		}
		var def Definition
		if err := yaml.Unmarshal(raw, &def); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDefinition, name, err)
		}
		if err := reg.add(&def); err != nil {
			return nil, err
		}
	}
	sort.Strings(reg.order)
	return reg, nil
}

func (r *Registry) add(def *Definition) error {
	def.applyDefaults()
	if err := def.check(); err != nil {
		return err
	}
	if _, dup := r.screens[def.Key]; dup {
		return fmt.Errorf("%w: duplicate screen %s", ErrInvalidDefinition, def.Key)
	}
	r.screens[def.Key] = def
	r.order = append(r.order, def.Key)
	return nil
}

// Get returns the definition of key.
func (r *Registry) Get(key string) (*Definition, error) {
	def, ok := r.screens[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScreen, key)
	}
	return def, nil
}

// List returns every definition ordered by key.
func (r *Registry) List() []*Definition {
	out := make([]*Definition, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.screens[key])
	}
	return out
}

// LookupSources returns the distinct lookup sources across all screens.
func (r *Registry) LookupSources() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, def := range r.List() {
		for _, src := range def.LookupSources() {
			if _, ok := seen[src]; ok {
				continue
			}
			seen[src] = struct{}{}
			out = append(out, src)
		}
	}
	return out
}
