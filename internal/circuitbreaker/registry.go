package circuitbreaker

import (
	"sync"
)

// Registry owns one breaker per source. Breakers are created lazily
// with a shared configuration the first time a source is seen.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	config   Config
	// onStateChange receives the source name along with the transition.
	onStateChange func(source string, from, to State)
}

// NewRegistry creates a breaker registry with the given shared config.
// The config's own OnStateChange is ignored; use the registry-level
// callback to observe transitions with the source name attached.
func NewRegistry(config Config, onStateChange func(source string, from, to State)) *Registry {
	config.OnStateChange = nil
	return &Registry{
		breakers:      make(map[string]*Breaker),
		config:        config,
		onStateChange: onStateChange,
	}
}

// Get returns the breaker for a source, creating it if needed.
func (r *Registry) Get(source string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[source]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.breakers[source]; ok {
		return b
	}

	cfg := r.config
	if r.onStateChange != nil {
		name := source
		cfg.OnStateChange = func(from, to State) {
			r.onStateChange(name, from, to)
		}
	}
	b = New(cfg)
	r.breakers[source] = b
	return b
}

// CanExecute reports whether the source's breaker permits execution.
func (r *Registry) CanExecute(source string) bool {
	return r.Get(source).CanExecute()
}

// RecordSuccess records a success against the source's breaker.
func (r *Registry) RecordSuccess(source string) {
	r.Get(source).RecordSuccess()
}

// RecordFailure records a failure against the source's breaker.
func (r *Registry) RecordFailure(source string) {
	r.Get(source).RecordFailure()
}

// Snapshot returns the stats of every known breaker, keyed by source.
func (r *Registry) Snapshot() map[string]Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Stats, len(r.breakers))
	for source, b := range r.breakers {
		out[source] = b.GetStats()
	}
	return out
}

// Restore rebuilds breakers from a checkpoint. Existing breakers for
// the same sources are overwritten.
func (r *Registry) Restore(snapshot map[string]Stats) {
	for source, stats := range snapshot {
		r.Get(source).restore(stats)
	}
}
