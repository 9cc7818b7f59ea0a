package analysis

import (
	"context"
	"fmt"
	"sort"

	"github.com/jo-hoe/medscan/internal/document"
)

// Analyzer produces findings for a scanned document
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, doc *document.Document) (*document.Analysis, error)
}

// AnalyzerFactory creates an analyzer from configuration parameters
type AnalyzerFactory func(params map[string]any) (Analyzer, error)

// AnalyzerConfig binds an analyzer kind to the document type it handles
type AnalyzerConfig struct {
	DocumentType string         `yaml:"document_type" json:"document_type"`
	Name         string         `yaml:"name" json:"name"`
	Params       map[string]any `yaml:",inline" json:"-"`
}

// AnalyzerRegistry manages the analyzer kinds available to the configuration
type AnalyzerRegistry struct {
	factories map[string]AnalyzerFactory
}

func NewAnalyzerRegistry() *AnalyzerRegistry {
	return &AnalyzerRegistry{
		factories: make(map[string]AnalyzerFactory),
	}
}

// Register adds an analyzer factory to the registry
func (r *AnalyzerRegistry) Register(name string, factory AnalyzerFactory) error {
	if name == "" {
		return fmt.Errorf("analyzer name cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("analyzer factory cannot be nil")
	}
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("analyzer %s is already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// Create instantiates an analyzer by name with the given parameters
func (r *AnalyzerRegistry) Create(name string, params map[string]any) (Analyzer, error) {
	factory, exists := r.factories[name]
	if !exists {
		return nil, fmt.Errorf("unknown analyzer: %s", name)
	}
	analyzer, err := factory(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create analyzer %s: %w", name, err)
	}
	return analyzer, nil
}

func (r *AnalyzerRegistry) IsRegistered(name string) bool {
	_, exists := r.factories[name]
	return exists
}

func (r *AnalyzerRegistry) RegisteredNames() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry holds every built-in analyzer kind
var DefaultRegistry = NewAnalyzerRegistry()

func mustRegister(name string, factory AnalyzerFactory) {
	if err := DefaultRegistry.Register(name, factory); err != nil {
		panic(fmt.Sprintf("failed to register %s: %v", name, err))
	}
}

// BuildAnalyzers creates the per-type analyzer table. Each document type may
// be bound at most once.
func BuildAnalyzers(registry *AnalyzerRegistry, configs []AnalyzerConfig) (map[document.Type]Analyzer, error) {
	analyzers := make(map[document.Type]Analyzer, len(configs))
	for i, cfg := range configs {
		docType, err := document.ParseType(cfg.DocumentType)
		if err != nil {
			return nil, fmt.Errorf("analyzer at index %d: %w", i, err)
		}
		if _, exists := analyzers[docType]; exists {
			return nil, fmt.Errorf("duplicate analyzer for document type %s", docType)
		}
		analyzer, err := registry.Create(cfg.Name, cfg.Params)
		if err != nil {
			return nil, fmt.Errorf("analyzer at index %d (%s): %w", i, cfg.Name, err)
		}
		analyzers[docType] = analyzer
	}
	return analyzers, nil
}
