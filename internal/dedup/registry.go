// Package dedup guards against the same source filename being claimed by two
// watcher-triggered runs within one process lifetime.
package dedup

import "sync"

// Registry is a concurrency-safe set of claimed filenames. Entries are never
// evicted; a restart is needed to reprocess a same-named file through the
// watcher. Manual retry bypasses the registry entirely.
type Registry struct {
	mu      sync.Mutex
	claimed map[string]struct{}
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{claimed: make(map[string]struct{})}
}

// Seed marks filenames as already handled. It is called once at startup with
// every filename whose item is processing or completed.
func (r *Registry) Seed(filenames ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range filenames {
		if name == "" {
			continue
		}
		r.claimed[name] = struct{}{}
	}
}

// Claim adds filename and reports whether it was newly added.
func (r *Registry) Claim(filename string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.claimed[filename]; ok {
		return false
	}
	r.claimed[filename] = struct{}{}
	return true
}

// Contains reports whether filename has been claimed or seeded.
func (r *Registry) Contains(filename string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.claimed[filename]
	return ok
}

// Len returns the number of claimed filenames.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.claimed)
}
