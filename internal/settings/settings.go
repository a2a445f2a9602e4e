// Package settings serves operator-controlled settings such as the kill switch
// from a short-lived cache in front of the settings table.
package settings

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/pepeccz/msi-a-sub001/internal/store"
)

// Setting keys read by the intake gate.
const (
	// KeyAgentEnabled holds whether the automated agent may answer. "false" activates the kill switch.
	KeyAgentEnabled = "agent_enabled"
	// KeyAgentDisabledMessage holds the auto-reply sent while the kill switch is active.
	KeyAgentDisabledMessage = "agent_disabled_message"
)

// DefaultAgentDisabledMessage is sent when KeyAgentDisabledMessage is unset.
const DefaultAgentDisabledMessage = "Hola, en este momento nuestro asistente automático no está disponible. " +
	"Un miembro del equipo te atenderá lo antes posible. Gracias por tu paciencia."

// Cache defaults.
const (
	DefaultCacheTTL  = 30 * time.Second
	DefaultCacheSize = 128
)

// Provider reads a setting. ok is false when the key is not set.
type Provider interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
}

// RepoProvider adapts a store.SettingsRepo to Provider without caching.
type RepoProvider struct {
	repo store.SettingsRepo
}

func NewRepoProvider(repo store.SettingsRepo) *RepoProvider {
	return &RepoProvider{repo: repo}
}

func (p *RepoProvider) Get(ctx context.Context, key string) (string, bool, error) {
	return p.repo.GetSetting(ctx, key)
}

// Opts holds configuration for CachedProvider.
type Opts struct {
	TTL  time.Duration
	Size int
}

// Option defines a configuration option for CachedProvider.
type Option func(*Opts)

// WithTTL sets how long a read is served from the cache.
func WithTTL(ttl time.Duration) Option {
	return func(o *Opts) {
		o.TTL = ttl
	}
}

// WithSize bounds the number of cached keys.
func WithSize(size int) Option {
	return func(o *Opts) {
		o.Size = size
	}
}

type cachedValue struct {
	value string
	ok    bool
}

// CachedProvider caches settings for a short TTL and coalesces concurrent misses
// for the same key into one repository read. Read errors are never cached.
type CachedProvider struct {
	repo  store.SettingsRepo
	cache *expirable.LRU[string, cachedValue]
	group singleflight.Group
}

// NewCachedProvider creates a cache in front of repo.
func NewCachedProvider(repo store.SettingsRepo, opts ...Option) *CachedProvider {
	cfg := Opts{TTL: DefaultCacheTTL, Size: DefaultCacheSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCacheTTL
	}
	if cfg.Size <= 0 {
		cfg.Size = DefaultCacheSize
	}
	slog.Debug("settings.NewCachedProvider", "ttl", cfg.TTL, "size", cfg.Size)
	return &CachedProvider{
		repo:  repo,
		cache: expirable.NewLRU[string, cachedValue](cfg.Size, nil, cfg.TTL),
	}
}

func (p *CachedProvider) Get(ctx context.Context, key string) (string, bool, error) {
	if v, hit := p.cache.Get(key); hit {
		return v.value, v.ok, nil
	}
	res, err, shared := p.group.Do(key, func() (interface{}, error) {
		value, ok, err := p.repo.GetSetting(ctx, key)
		if err != nil {
			return nil, err
		}
		v := cachedValue{value: value, ok: ok}
		p.cache.Add(key, v)
		return v, nil
	})
	if err != nil {
		slog.Warn("CachedProvider.Get: read failed", "key", key, "error", err)
		return "", false, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	v := res.(cachedValue)
	slog.Debug("CachedProvider.Get: loaded", "key", key, "found", v.ok, "shared", shared)
	return v.value, v.ok, nil
}

// Set writes the value and drops the cached entry so the next Get sees it.
func (p *CachedProvider) Set(ctx context.Context, key, value string) error {
	if err := p.repo.SetSetting(ctx, key, value); err != nil {
		return err
	}
	p.Invalidate(key)
	slog.Info("CachedProvider.Set: setting updated", "key", key)
	return nil
}

// Invalidate drops a cached key, or every key when key is empty.
func (p *CachedProvider) Invalidate(key string) {
	if key == "" {
		p.cache.Purge()
		return
	}
	p.cache.Remove(key)
}

// ParseEnabled interprets a stored boolean setting. Unrecognized values count as enabled.
func ParseEnabled(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "false", "0", "no", "off":
		return false
	default:
		return true
	}
}

// KillSwitchActive reports whether the operator has disabled the agent.
// A missing key or a failed read leaves the agent running.
func KillSwitchActive(ctx context.Context, p Provider) bool {
	value, ok, err := p.Get(ctx, KeyAgentEnabled)
	if err != nil {
		slog.Error("settings.KillSwitchActive: read failed, treating as inactive", "error", err)
		return false
	}
	if !ok {
		return false
	}
	return !ParseEnabled(value)
}

// AutoReplyMessage returns the configured kill-switch auto-reply or the default.
func AutoReplyMessage(ctx context.Context, p Provider) string {
	value, ok, err := p.Get(ctx, KeyAgentDisabledMessage)
	if err != nil {
		slog.Warn("settings.AutoReplyMessage: read failed, using default", "error", err)
		return DefaultAgentDisabledMessage
	}
	if !ok || strings.TrimSpace(value) == "" {
		return DefaultAgentDisabledMessage
	}
	return value
}
