package publisher

import (
	"sync"

	"github.com/maheshrc27/nextpost/internal/platform"
)

type Registry struct {
	mu         sync.RWMutex
	publishers map[platform.Kind]Publisher
}

func NewRegistry() *Registry {
	return &Registry{publishers: make(map[platform.Kind]Publisher)}
}

// Register binds p to every given kind, replacing earlier bindings.
func (r *Registry) Register(p Publisher, kinds ...platform.Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range kinds {
		r.publishers[k] = p
	}
}

func (r *Registry) For(kind platform.Kind) (Publisher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.publishers[kind]
	if !ok {
		return nil, &UnsupportedPlatformError{Platform: kind}
	}
	return p, nil
}

func (r *Registry) Supported() []platform.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []platform.Kind
	for _, k := range platform.Kinds() {
		if _, ok := r.publishers[k]; ok {
			out = append(out, k)
		}
	}
	return out
}
