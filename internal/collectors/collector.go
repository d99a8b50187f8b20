// Package collectors contains the per-source adapters of the ingestion
// fabric. Each collector owns its remote protocol and emits RawEvents to the
// event publisher.
package collectors

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ajitpratap0/marketpulse/internal/events"
)

// Params are free-form collect parameters (e.g. subreddit, limit, symbol)
type Params map[string]string

// Get returns the value for key or def when absent
func (p Params) Get(key, def string) string {
	if v, ok := p[key]; ok && v != "" {
		return v
	}
	return def
}

// Collector is the uniform capability set every source adapter implements.
// Collect returns the number of events accepted by the publisher.
type Collector interface {
	Name() string
	Source() events.SourceType
	Initialize(ctx context.Context) error
	Collect(ctx context.Context, params Params) (int, error)
	Close() error
	Health(ctx context.Context) error
}

// StreamingCollector is implemented by collectors holding a persistent
// connection. Collect starts the stream if it is not already running.
type StreamingCollector interface {
	Collector
	StartStream(ctx context.Context) error
	StopStream() error
}

// EventPublisher is the slice of the bus publisher the fabric needs
type EventPublisher interface {
	PublishRawEvent(ctx context.Context, ev *events.RawEvent) (string, error)
}

// Constructor builds a collector from its config and the shared publisher
type Constructor func(cfg CollectorConfig, pub EventPublisher) (Collector, error)

// CollectorConfig is the per-collector slice of the service configuration
type CollectorConfig struct {
	Name              string
	Enabled           bool
	APIKey            string
	Endpoint          string
	Symbols           []string
	FeedURLs          []string
	Series            []string
	IntervalSeconds   int
	RequestsPerMinute int
	DailyQuota        int
	RedisAddr         string
}

// Registry maps source names to collector constructors. No reflection; the
// closed set of variants is registered explicitly at startup.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Register adds a constructor under name. Registering a duplicate name is a
// programming error and panics early.
func (r *Registry) Register(name string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.constructors[name]; exists {
		panic(fmt.Sprintf("collector %q registered twice", name))
	}
	r.constructors[name] = ctor
}

// Build constructs the named collector
func (r *Registry) Build(name string, cfg CollectorConfig, pub EventPublisher) (Collector, error) {
	r.mu.RLock()
	ctor, ok := r.constructors[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown collector: %s", name)
	}
	return ctor(cfg, pub)
}

// Known reports whether name is a registered collector variant
func (r *Registry) Known(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.constructors[name]
	return ok
}

// Names returns the registered collector names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
