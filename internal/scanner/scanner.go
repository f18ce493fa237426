package scanner

import (
	"fmt"

	"leadscanner/internal/domain"
	"leadscanner/internal/ports"
)

// Registry keeps a mapping from source types to their fetch adapters.
type Registry struct {
	adapters map[domain.SourceType]ports.SourceAdapter
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: map[domain.SourceType]ports.SourceAdapter{}}
}

// Register adds or replaces the adapter for its source type.
func (r *Registry) Register(adapter ports.SourceAdapter) {
	if r.adapters == nil {
		r.adapters = map[domain.SourceType]ports.SourceAdapter{}
	}
	r.adapters[adapter.Type()] = adapter
}

// Resolve returns the adapter for a source type or an error if it is absent.
func (r *Registry) Resolve(typ domain.SourceType) (ports.SourceAdapter, error) {
	if adapter, ok := r.adapters[typ]; ok {
		return adapter, nil
	}
	return nil, fmt.Errorf("no adapter registered for source type %s", typ)
}
