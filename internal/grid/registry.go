// ABOUTME: Grid source registry for registering and retrieving grids by name.
// ABOUTME: Grid packages register themselves in init() functions.

package grid

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
)

// Source produces a grid's descriptor for one request.
type Source interface {
	// Name is the grid name callers request.
	Name() string
	// Location identifies where the grid is defined, for error messages.
	Location() string
	// Load builds a fresh descriptor. It must not load rows; that happens
	// in Descriptor.JSONObject after access was granted.
	Load(ctx context.Context, req *Request) (*Descriptor, error)
}

// DatabaseSource is implemented by sources that need the shared database.
type DatabaseSource interface {
	Source
	SetDB(db *sql.DB) error
}

// Seeder is implemented by sources that can generate sample rows.
type Seeder interface {
	Source
	Seed(ctx context.Context, size string) (SeedData, error)
}

// SeedData represents data generation results
type SeedData struct {
	Summary string         // Human-readable summary
	Records map[string]int // Resource counts: {"sales": 50}
}

// Finder maps a grid name to its source.
type Finder interface {
	Find(name string) (Source, bool)
}

// FinderFunc adapts a function to Finder.
type FinderFunc func(name string) (Source, bool)

func (f FinderFunc) Find(name string) (Source, bool) { return f(name) }

// Finders consults each finder in order.
type Finders []Finder

func (fs Finders) Find(name string) (Source, bool) {
	for _, f := range fs {
		if f == nil {
			continue
		}
		if src, ok := f.Find(name); ok {
			return src, true
		}
	}
	return nil, false
}

var (
	registry = make(map[string]Source)
	mu       sync.RWMutex
)

// Register adds a source to the registry
func Register(src Source) {
	mu.Lock()
	defer mu.Unlock()

	name := src.Name()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("grid %q already registered", name))
	}
	registry[name] = src
}

// Get retrieves a source by name
func Get(name string) (Source, bool) {
	mu.RLock()
	defer mu.RUnlock()
	src, ok := registry[name]
	return src, ok
}

// Registered is the Finder over the global registry.
var Registered Finder = FinderFunc(Get)

// All returns all registered sources ordered by name
func All() []Source {
	mu.RLock()
	defer mu.RUnlock()

	sources := make([]Source, 0, len(registry))
	for _, src := range registry {
		sources = append(sources, src)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].Name() < sources[j].Name() })
	return sources
}

// Names returns all registered grid names, sorted
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
