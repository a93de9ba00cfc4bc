package provider

import (
	"sort"
	"sync"
)

// Registry manages provider clients. Registration happens once at
// startup; lookups are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]Client),
	}
}

// Register adds a client to the registry. The client's descriptor must
// validate; a bad descriptor is a programming error.
func (r *Registry) Register(c Client) error {
	if err := c.Descriptor().Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.Name()] = c
	return nil
}

// Get retrieves a client by provider id
func (r *Registry) Get(id string) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	return c, ok
}

// ListByCapability returns all clients declaring the capability,
// sorted by id for deterministic iteration.
func (r *Registry) ListByCapability(cap Capability) []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Client
	for _, c := range r.clients {
		if c.Descriptor().HasCapability(cap) {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name() < result[j].Name()
	})
	return result
}

// All returns every registered client sorted by id.
func (r *Registry) All() []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Client, 0, len(r.clients))
	for _, c := range r.clients {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name() < result[j].Name()
	})
	return result
}
