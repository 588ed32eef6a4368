// Package extractor derives previews and metadata from data files. Extractors
// are registered explicitly under a file extension.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"labtree/internal/record"
)

// Kind selects how a preview is rendered downstream.
type Kind string

const (
	KindNone     Kind = ""
	KindLine     Kind = "line"     // vector plot, stored as svg
	KindWaves    Kind = "waves"    // raster photo, stored as jpg
	KindContours Kind = "contours" // raster micrograph, stored as png
)

// Ext returns the preview file extension for k.
func (k Kind) Ext() string {
	switch k {
	case KindLine:
		return "svg"
	case KindWaves:
		return "jpg"
	case KindContours:
		return "png"
	}
	return ""
}

// DefaultMaxPreviewSize bounds the longest side of raster previews in pixels.
const DefaultMaxPreviewSize = 600

// ErrUnknownExtractor is returned when the configuration names an extractor
// that is not built in.
var ErrUnknownExtractor = errors.New("unknown extractor")

// Meta is the metadata an extractor derives from a file.
type Meta struct {
	// DocType is the kind of record to create, measurement when empty.
	DocType         record.Kind
	MeasurementType []string
	MetaVendor      map[string]any
	MetaUser        map[string]any
}

// Result is the output of an extractor.
type Result struct {
	Preview []byte
	Kind    Kind
	Meta    Meta
}

// Type returns the record type list for a file described by r.
func (r Result) Type() []string {
	kind := r.Meta.DocType
	if kind == "" {
		kind = record.KindMeasurement
	}
	return record.TypeFor(kind, r.Meta.MeasurementType...)
}

// Extractor produces a preview and metadata for one file.
type Extractor interface {
	Extract(ctx context.Context, absPath string, doc *record.Record) (Result, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, absPath string, doc *record.Record) (Result, error)

// Extract calls f.
func (f ExtractorFunc) Extract(ctx context.Context, absPath string, doc *record.Record) (Result, error) {
	return f(ctx, absPath, doc)
}

// None is the extractor for files without a preview.
var None = ExtractorFunc(func(ctx context.Context, absPath string, doc *record.Record) (Result, error) {
	return Result{Kind: KindNone}, nil
})

// Registry maps file extensions to extractors.
type Registry struct {
	byExt map[string]Extractor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byExt: make(map[string]Extractor)}
}

// Builtins returns the built-in extractors by name.
func Builtins(maxPreviewSize int) map[string]Extractor {
	if maxPreviewSize <= 0 {
		maxPreviewSize = DefaultMaxPreviewSize
	}
	return map[string]Extractor{
		"csv":        NewCSV(),
		"markdown":   NewMarkdown(),
		"photo":      NewImage(KindWaves, maxPreviewSize),
		"micrograph": NewImage(KindContours, maxPreviewSize),
		"none":       None,
	}
}

// defaultExtensions is the registry used when no configuration file is given.
var defaultExtensions = map[string]string{
	"csv":  "csv",
	"tsv":  "csv",
	"md":   "markdown",
	"jpg":  "photo",
	"jpeg": "photo",
	"gif":  "photo",
	"png":  "micrograph",
}

// DefaultRegistry returns the registry of built-in extractors under their
// default extensions.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	builtins := Builtins(DefaultMaxPreviewSize)
	for ext, name := range defaultExtensions {
		r.Register(ext, builtins[name])
	}
	return r
}

// Register associates ext (without dot, case insensitive) with e.
func (r *Registry) Register(ext string, e Extractor) {
	r.byExt[normalizeExt(ext)] = e
}

// Lookup returns the extractor for the extension of name.
func (r *Registry) Lookup(name string) (Extractor, bool) {
	e, ok := r.byExt[normalizeExt(path.Ext(name))]
	return e, ok
}

// Extensions lists the registered extensions in order.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Extract runs the extractor registered for absPath. Unregistered files yield
// an empty measurement result.
func (r *Registry) Extract(ctx context.Context, absPath string, doc *record.Record) (Result, error) {
	e, ok := r.Lookup(absPath)
	if !ok {
		e = None
	}
	res, err := e.Extract(ctx, absPath, doc)
	if err != nil {
		return Result{}, fmt.Errorf("extract %s: %w", path.Base(absPath), err)
	}
	if res.Meta.MetaVendor == nil {
		res.Meta.MetaVendor = map[string]any{}
	}
	if res.Meta.MetaUser == nil {
		res.Meta.MetaUser = map[string]any{}
	}
	return res, nil
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// FileConfig is the YAML layout of an extractor configuration file.
type FileConfig struct {
	MaxPreviewSize int `yaml:"max_preview_size"`
	// Extensions maps a file extension to a built-in extractor name.
	Extensions map[string]string `yaml:"extensions"`
	// Replace drops the default extension mapping instead of extending it.
	Replace bool `yaml:"replace"`
}

// LoadRegistry builds a registry from the YAML file at path. An empty path
// returns DefaultRegistry.
func LoadRegistry(path string) (*Registry, error) {
	if path == "" {
		return DefaultRegistry(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read extractor config: %w", err)
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse extractor config %s: %w", path, err)
	}
	return NewRegistryFromConfig(cfg)
}

// NewRegistryFromConfig builds a registry from a parsed configuration.
func NewRegistryFromConfig(cfg FileConfig) (*Registry, error) {
	builtins := Builtins(cfg.MaxPreviewSize)
	r := NewRegistry()
	if !cfg.Replace {
		for ext, name := range defaultExtensions {
			r.Register(ext, builtins[name])
		}
	}
	for ext, name := range cfg.Extensions {
		e, ok := builtins[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q for extension %q", ErrUnknownExtractor, name, ext)
		}
		r.Register(ext, e)
	}
	return r, nil
}
