package engine

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Factory creates an unstarted engine.
type Factory func(logger *slog.Logger) Engine

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds an engine factory to the registry.
// Called by engine implementations in their init() functions.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Lookup retrieves an engine factory by name.
func Lookup(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// New creates an unstarted engine for cfg.Type.
// A nil logger is replaced with a discard logger.
func New(cfg Config, logger *slog.Logger) (Engine, error) {
	if cfg.Type == "" {
		return nil, fmt.Errorf("engine type not specified")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	factory, ok := Lookup(cfg.Type)
	if !ok {
		return nil, &UnknownEngineError{
			Type:      cfg.Type,
			Available: List(),
		}
	}
	return factory(logger), nil
}

// List returns all registered engine names (sorted).
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnknownEngineError is returned when an unregistered engine type is requested.
type UnknownEngineError struct {
	Type      string
	Available []string
}

func (e *UnknownEngineError) Error() string {
	return fmt.Sprintf("unknown engine type %q\nAvailable engines: %v\nHint: Check engine.type in leapmp.yaml", e.Type, e.Available)
}
