package capability

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry holds the configured detectors and recognizers along with a
// shared rate limiter per provider. The pipeline resolves providers by
// name so swapping the detection model is a config change.
type Registry struct {
	mu          sync.RWMutex
	detectors   map[string]Detector
	recognizers map[string]Recognizer
	limiters    map[string]*RateLimiter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		detectors:   make(map[string]Detector),
		recognizers: make(map[string]Recognizer),
		limiters:    make(map[string]*RateLimiter),
	}
}

// RegisterDetector adds a detector to the registry.
func (r *Registry) RegisterDetector(d Detector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detectors[d.Name()] = d
	r.limiters[d.Name()] = NewRateLimiter(d.RequestsPerSecond())
}

// RegisterRecognizer adds a recognizer to the registry.
func (r *Registry) RegisterRecognizer(rec Recognizer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recognizers[rec.Name()] = rec
	r.limiters[rec.Name()] = NewRateLimiter(rec.RequestsPerSecond())
}

// Detector resolves a detector by name.
func (r *Registry) Detector(name string) (Detector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.detectors[name]
	if !ok {
		return nil, fmt.Errorf("unknown detector %q (have %v)", name, mapKeys(r.detectors))
	}
	return d, nil
}

// Recognizer resolves a recognizer by name.
func (r *Registry) Recognizer(name string) (Recognizer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.recognizers[name]
	if !ok {
		return nil, fmt.Errorf("unknown recognizer %q (have %v)", name, mapKeys(r.recognizers))
	}
	return rec, nil
}

// Wait blocks on the named provider's rate limiter.
func (r *Registry) Wait(ctx context.Context, provider string) error {
	r.mu.RLock()
	limiter, ok := r.limiters[provider]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return limiter.Wait(ctx)
}

// LimiterStatus returns the rate limiter status for each provider.
func (r *Registry) LimiterStatus() map[string]RateLimiterStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]RateLimiterStatus, len(r.limiters))
	for name, l := range r.limiters {
		out[name] = l.Status()
	}
	return out
}

// Providers lists the registered provider names, detectors first.
func (r *Registry) Providers() (detectors, recognizers []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	detectors = mapKeys(r.detectors)
	recognizers = mapKeys(r.recognizers)
	return detectors, recognizers
}

func mapKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
