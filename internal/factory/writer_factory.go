package factory

import (
	"fmt"
	"log"
	"sort"
	"sync"

	"spintraffic/internal/config"
	"spintraffic/internal/model"
)

// WriterFactory creates a writer from the configuration. It returns a nil
// writer when the sink is not enabled.
type WriterFactory func(cfg *config.Config) (model.Writer, error)

var (
	mu sync.RWMutex
	// registry holds the mapping of writer types to their factory functions.
	registry = make(map[string]WriterFactory)
)

// RegisterWriter registers a new writer type with its factory function.
func RegisterWriter(name string, factory WriterFactory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("writer type '%s' already registered", name))
	}
	registry[name] = factory
}

// Registered returns the names of all registered writer types, sorted.
func Registered() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create builds every writer enabled by the configuration, in name order.
// A writer that fails to initialize is logged and skipped so that one
// unavailable sink does not keep the others from running.
func Create(cfg *config.Config) []model.Writer {
	var writers []model.Writer
	for _, name := range Registered() {
		mu.RLock()
		factory := registry[name]
		mu.RUnlock()

		writer, err := factory(cfg)
		if err != nil {
			log.Printf("Warning: failed to create writer type '%s': %v, skipping.", name, err)
			continue
		}
		if writer == nil {
			continue
		}
		log.Printf("Writer '%s' enabled.", writer.Name())
		writers = append(writers, writer)
	}
	return writers
}
