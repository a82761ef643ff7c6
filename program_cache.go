package settings

import "sync"

// ProgramCache stores compiled constraint programs keyed by expression
// strings. Implementations must be safe for concurrent use.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// MapProgramCache is a mutex-guarded map cache suitable for most engines:
// the catalog's constraint set is small and fixed at deploy time, so no
// eviction is needed.
type MapProgramCache struct {
	mu       sync.RWMutex
	programs map[string]any
}

// NewMapProgramCache constructs an empty cache.
func NewMapProgramCache() *MapProgramCache {
	return &MapProgramCache{programs: map[string]any{}}
}

func (c *MapProgramCache) Get(key string) (any, bool) {
	c.mu.RLock()
	value, ok := c.programs[key]
	c.mu.RUnlock()
	return value, ok
}

func (c *MapProgramCache) Set(key string, value any) {
	c.mu.Lock()
	if c.programs == nil {
		c.programs = map[string]any{}
	}
	c.programs[key] = value
	c.mu.Unlock()
}
