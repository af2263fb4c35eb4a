package dissect

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

const resolverCacheSize = 4096

// Resolver maps raw addresses to display names. Lookups go through a
// bounded LRU so a huge capture cannot grow the resolution state
// without limit.
type Resolver struct {
	names map[string]string
	cache *lru.Cache[string, string]
}

func NewResolver(names map[string]string) *Resolver {
	cache, _ := lru.New[string, string](resolverCacheSize)
	if names == nil {
		names = make(map[string]string)
	}
	return &Resolver{names: names, cache: cache}
}

// Resolve returns the display name for addr, or addr itself when no
// name is known. The empty address resolves to itself.
func (r *Resolver) Resolve(addr string) string {
	if addr == "" {
		return ""
	}
	if name, ok := r.cache.Get(addr); ok {
		return name
	}
	name, ok := r.names[addr]
	if !ok {
		name = addr
	}
	r.cache.Add(addr, name)
	return name
}

// Learn registers a name for an address and drops any cached result.
func (r *Resolver) Learn(addr, name string) {
	r.names[addr] = name
	r.cache.Remove(addr)
}
