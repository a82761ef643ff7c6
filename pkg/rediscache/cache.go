// Package rediscache implements the engine's ResolutionCache on Redis.
//
// Invalidation is generation-based: every scope instance owns a counter,
// and each cached entry remembers the counters of every node on its walk
// path at the moment it was stored. A save bumps the counters of the
// touched scope instances, which implicitly invalidates the whole subtree
// without scanning keys. Reads that race a save may briefly observe the
// previous value, which the engine's caching contract allows.
package rediscache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	settings "github.com/workforcekit/go-settings"
)

// Cache stores resolved settings in Redis.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// Option configures a Cache.
type Option func(*Cache)

// WithPrefix namespaces all keys; defaults to "settings".
func WithPrefix(prefix string) Option {
	return func(c *Cache) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// WithTTL bounds entry lifetime regardless of invalidation; defaults to an
// hour.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// New wraps a Redis client.
func New(client *redis.Client, opts ...Option) *Cache {
	cache := &Cache{
		client: client,
		prefix: "settings",
		ttl:    time.Hour,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cache)
		}
	}
	return cache
}

type entry struct {
	Value       any                 `json:"value"`
	Source      settings.Ref        `json:"source"`
	Locked      bool                `json:"locked"`
	Definition  settings.Definition `json:"definition"`
	Generations map[string]int64    `json:"generations"`
}

func (c *Cache) valueKey(module, key string, scope settings.Context) string {
	path := scope.Path()
	parts := make([]string, 0, len(path))
	for _, ref := range path {
		parts = append(parts, ref.Identifier())
	}
	return c.prefix + ":v:" + module + ":" + key + ":" + strings.Join(parts, "|")
}

func (c *Cache) genKey(module string, ref settings.Ref) string {
	return c.prefix + ":g:" + module + ":" + ref.Identifier()
}

func (c *Cache) generations(ctx context.Context, module string, scope settings.Context) (map[string]int64, error) {
	path := scope.Path()
	keys := make([]string, len(path))
	for i, ref := range path {
		keys[i] = c.genKey(module, ref)
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	gens := make(map[string]int64, len(path))
	for i, ref := range path {
		gens[ref.Identifier()] = parseGeneration(values[i])
	}
	return gens, nil
}

func parseGeneration(value any) int64 {
	raw, ok := value.(string)
	if !ok {
		return 0
	}
	var gen int64
	for _, r := range raw {
		if r < '0' || r > '9' {
			return 0
		}
		gen = gen*10 + int64(r-'0')
	}
	return gen
}

// Get returns the cached effective setting when every scope node on the
// path still carries the generation observed at Set time.
func (c *Cache) Get(ctx context.Context, module, key string, scope settings.Context) (settings.EffectiveSetting, bool) {
	payload, err := c.client.Get(ctx, c.valueKey(module, key, scope)).Bytes()
	if err != nil {
		return settings.EffectiveSetting{}, false
	}
	var cached entry
	if err := json.Unmarshal(payload, &cached); err != nil {
		return settings.EffectiveSetting{}, false
	}
	gens, err := c.generations(ctx, module, scope)
	if err != nil {
		return settings.EffectiveSetting{}, false
	}
	for node, gen := range cached.Generations {
		if gens[node] != gen {
			return settings.EffectiveSetting{}, false
		}
	}

	setting := settings.EffectiveSetting{
		Source:     cached.Source,
		Locked:     cached.Locked,
		Definition: cached.Definition,
	}
	// Values round-tripped through JSON; coerce them back into the
	// declared type.
	if coerced, err := cached.Definition.Type.Coerce(cached.Value); err == nil {
		setting.Value = coerced
	} else {
		return settings.EffectiveSetting{}, false
	}
	if coerced, err := cached.Definition.Type.Coerce(cached.Definition.Default); err == nil {
		setting.Definition.Default = coerced
	}
	return setting, true
}

// Set stores the effective setting together with the current generation of
// every scope node on the path. Failures are swallowed: the cache is a
// performance layer, never a correctness layer.
func (c *Cache) Set(ctx context.Context, module, key string, scope settings.Context, setting settings.EffectiveSetting) {
	gens, err := c.generations(ctx, module, scope)
	if err != nil {
		return
	}
	payload, err := json.Marshal(entry{
		Value:       setting.Value,
		Source:      setting.Source,
		Locked:      setting.Locked,
		Definition:  setting.Definition,
		Generations: gens,
	})
	if err != nil {
		return
	}
	c.client.Set(ctx, c.valueKey(module, key, scope), payload, c.ttl)
}

// Invalidate bumps the generation counter of every touched scope instance,
// invalidating all cached entries whose walk passes through them.
func (c *Cache) Invalidate(ctx context.Context, module string, refs []settings.Ref) error {
	pipe := c.client.Pipeline()
	for _, ref := range refs {
		pipe.Incr(ctx, c.genKey(module, ref))
	}
	_, err := pipe.Exec(ctx)
	return err
}

var _ settings.ResolutionCache = (*Cache)(nil)
