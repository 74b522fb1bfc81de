package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fzalvarez/vetscribe/pkg/provider/llm"
	"github.com/fzalvarez/vetscribe/pkg/recognition"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory
// has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	recognition map[string]func(ProviderEntry) (recognition.Provider, error)
	analysis    map[string]func(ProviderEntry) (llm.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		recognition: make(map[string]func(ProviderEntry) (recognition.Provider, error)),
		analysis:    make(map[string]func(ProviderEntry) (llm.Provider, error)),
	}
}

// RegisterRecognition registers a recognition provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterRecognition(name string, factory func(ProviderEntry) (recognition.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recognition[name] = factory
}

// RegisterAnalysis registers an analysis (LLM) provider factory under name.
func (r *Registry) RegisterAnalysis(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.analysis[name] = factory
}

// CreateRecognition instantiates a recognition provider using the factory
// registered under entry.Name. Returns [ErrProviderNotRegistered] if no
// factory has been registered for that name.
func (r *Registry) CreateRecognition(entry ProviderEntry) (recognition.Provider, error) {
	r.mu.RLock()
	factory, ok := r.recognition[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: recognition provider %q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateAnalysis instantiates an analysis provider using the factory
// registered under entry.Name. Returns [ErrProviderNotRegistered] if no
// factory has been registered for that name.
func (r *Registry) CreateAnalysis(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.analysis[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: analysis provider %q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
