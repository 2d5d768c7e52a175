package tables

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"gopkg.in/yaml.v3"
)

//go:embed definitions/*.toml
var embedded embed.FS

// ErrUnknownTable is returned for a table name with no definition
var ErrUnknownTable = errors.New("unknown table")

// Pagination modes
const (
	PaginationOffset = "offset"
	PaginationSeek   = "seek"
)

// Column describes one rendered column
type Column struct {
	Data        string   `toml:"data" yaml:"data" json:"data" validate:"required"`
	Title       string   `toml:"title" yaml:"title" json:"title"`
	Format      string   `toml:"format" yaml:"format" json:"format,omitempty" validate:"omitempty,oneof=text currency date bar-currency candidate committee url total"`
	Class       string   `toml:"class" yaml:"class" json:"className,omitempty"`
	Orderable   *bool    `toml:"orderable" yaml:"orderable" json:"-"`
	URLAttr     string   `toml:"url_attr" yaml:"url_attr" json:"-" validate:"required_if=Format url"`
	TotalPath   string   `toml:"total_path" yaml:"total_path" json:"-" validate:"required_if=Format total"`
	TotalParams []string `toml:"total_params" yaml:"total_params" json:"-"`
}

// IsOrderable reports whether the column can be sorted; columns are orderable unless disabled
func (c Column) IsOrderable() bool {
	return c.Orderable == nil || *c.Orderable
}

// Definition describes one data table: where its rows come from, how they page,
// which form fields filter it and how each column renders.
type Definition struct {
	Name        string            `toml:"name" yaml:"name" validate:"required"`
	Title       string            `toml:"title" yaml:"title" validate:"required"`
	Description string            `toml:"description" yaml:"description"`
	Path        string            `toml:"path" yaml:"path" validate:"required"`
	BaseQuery   map[string]string `toml:"base_query" yaml:"base_query"`
	Pagination  string            `toml:"pagination" yaml:"pagination" validate:"required,oneof=offset seek"`
	Filters     []string          `toml:"filters" yaml:"filters"`
	HideNull    *bool             `toml:"hide_null" yaml:"hide_null"`
	Lazy        bool              `toml:"lazy" yaml:"lazy"`
	DetailPath  string            `toml:"detail_path" yaml:"detail_path"`
	Panel       string            `toml:"panel" yaml:"panel"`
	Columns     []Column          `toml:"columns" yaml:"columns" validate:"required,min=1,dive"`

	descriptionHTML template.HTML
	panel           *template.Template
}

// UseHideNull reports whether draws send sort_hide_null; enabled unless disabled
func (d *Definition) UseHideNull() bool {
	return d.HideNull == nil || *d.HideNull
}

// UseFilters reports whether the table has a filter form
func (d *Definition) UseFilters() bool {
	return len(d.Filters) > 0
}

// DescriptionHTML returns the rendered markdown description
func (d *Definition) DescriptionHTML() template.HTML {
	return d.descriptionHTML
}

// HasPanel reports whether rows open a detail panel
func (d *Definition) HasPanel() bool {
	return d.panel != nil
}

// Catalog holds the validated table definitions by name
type Catalog struct {
	definitions map[string]*Definition
}

// LoadCatalog loads the embedded definitions, then applies user definitions from dir
// (.toml, .yaml, .yml). A user file whose name matches an embedded table replaces it.
func LoadCatalog(dir string, logger arbor.ILogger) (*Catalog, error) {
	catalog := &Catalog{definitions: make(map[string]*Definition)}
	validate := newValidator()

	entries, err := fs.ReadDir(embedded, "definitions")
	if err != nil {
		return nil, fmt.Errorf("failed to list embedded definitions: %w", err)
	}
	for _, entry := range entries {
		data, err := embedded.ReadFile("definitions/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read embedded definition %s: %w", entry.Name(), err)
		}
		def, err := parseDefinition(entry.Name(), data)
		if err != nil {
			return nil, err
		}
		if err := catalog.add(def, validate); err != nil {
			return nil, err
		}
	}

	if dir == "" {
		return catalog, nil
	}

	files, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		logger.Debug().Str("dir", dir).Msg("No user table definitions directory")
		return catalog, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read table definitions directory: %w", err)
	}

	for _, file := range files {
		if file.IsDir() {
			continue
		}
		path := filepath.Join(dir, file.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read table definition %s: %w", path, err)
		}
		def, err := parseDefinition(file.Name(), data)
		if errors.Is(err, errUnsupportedFormat) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := catalog.add(def, validate); err != nil {
			return nil, err
		}
		logger.Info().Str("table", def.Name).Str("file", path).Msg("Loaded user table definition")
	}

	return catalog, nil
}

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

var errUnsupportedFormat = errors.New("unsupported definition format")

func parseDefinition(filename string, data []byte) (*Definition, error) {
	var def Definition
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".toml":
		if err := toml.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("failed to parse table definition %s: %w", filename, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("failed to parse table definition %s: %w", filename, err)
		}
	default:
		return nil, errUnsupportedFormat
	}

	if def.Name == "" {
		def.Name = strings.TrimSuffix(filename, filepath.Ext(filename))
	}
	return &def, nil
}

func (c *Catalog) add(def *Definition, validate *validator.Validate) error {
	if err := validate.Struct(def); err != nil {
		return fmt.Errorf("invalid table definition %s: %w", def.Name, err)
	}

	if def.Description != "" {
		md := goldmark.New(goldmark.WithExtensions(extension.GFM))
		var buf bytes.Buffer
		if err := md.Convert([]byte(def.Description), &buf); err != nil {
			return fmt.Errorf("failed to render description of %s: %w", def.Name, err)
		}
		def.descriptionHTML = template.HTML(buf.String())
	}

	if def.Panel != "" {
		panel, err := template.New(def.Name).Funcs(templateFuncs).Parse(def.Panel)
		if err != nil {
			return fmt.Errorf("failed to parse panel template of %s: %w", def.Name, err)
		}
		def.panel = panel
	}

	c.definitions[def.Name] = def
	return nil
}

// Get returns the definition for name
func (c *Catalog) Get(name string) (*Definition, error) {
	def, ok := c.definitions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	return def, nil
}

// List returns all definitions ordered by name
func (c *Catalog) List() []*Definition {
	defs := make([]*Definition, 0, len(c.definitions))
	for _, def := range c.definitions {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(a, b int) bool { return defs[a].Name < defs[b].Name })
	return defs
}
