package policy

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/lessucettes/adresu-automod/internal/config"
	"github.com/lessucettes/adresu-automod/internal/store"
)

const (
	defaultCacheSize = 4096
	defaultCacheTTL  = 5 * time.Minute
)

// Resolver caches effective policies per guild. Concurrent misses for one
// guild share a single store read.
type Resolver struct {
	defaults atomic.Pointer[config.AutomodConfig]
	source   store.OverrideStore
	cache    *lru.LRU[string, *EffectivePolicy]
	sf       singleflight.Group
}

func NewResolver(defaults config.AutomodConfig, source store.OverrideStore, cacheTTL time.Duration) *Resolver {
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	r := &Resolver{
		source: source,
		cache:  lru.NewLRU[string, *EffectivePolicy](defaultCacheSize, nil, cacheTTL),
	}
	r.defaults.Store(&defaults)
	return r
}

// Resolve returns the guild's effective policy. If the override store fails
// the global defaults are returned together with the error.
func (r *Resolver) Resolve(ctx context.Context, guildID string) (*EffectivePolicy, error) {
	if p, ok := r.cache.Get(guildID); ok {
		return p, nil
	}

	v, err, _ := r.sf.Do(guildID, func() (any, error) {
		if p, ok := r.cache.Get(guildID); ok {
			return p, nil
		}
		defaults := *r.defaults.Load()
		o, err := r.source.GuildOverrides(ctx, guildID)
		if err != nil {
			return Merge(guildID, defaults, nil), fmt.Errorf("load overrides for guild %s: %w", guildID, err)
		}
		p := Merge(guildID, defaults, o)
		r.cache.Add(guildID, p)
		return p, nil
	})
	return v.(*EffectivePolicy), err
}

// SetDefaults swaps the global defaults and drops every cached policy.
func (r *Resolver) SetDefaults(defaults config.AutomodConfig) {
	r.defaults.Store(&defaults)
	r.cache.Purge()
}

func (r *Resolver) Invalidate(guildID string) {
	r.cache.Remove(guildID)
}

// Seed writes static overrides into the store and evicts the affected guilds.
func (r *Resolver) Seed(ctx context.Context, guilds map[string]config.GuildOverrides) error {
	for id, o := range guilds {
		if err := r.source.PutGuildOverrides(ctx, id, o); err != nil {
			return fmt.Errorf("store overrides for guild %s: %w", id, err)
		}
		r.Invalidate(id)
	}
	return nil
}
