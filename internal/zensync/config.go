package zensync

import (
	"net/url"
	"strings"
	"sync"
)

// ConfigStore resolves the effective remote-connection pair: an explicit
// override persisted in the local cache wins over the bundled defaults.
// Load never fails; a store with no defaults and no override simply reports
// unconfigured.
type ConfigStore struct {
	mu       sync.Mutex
	cache    *Cache
	defaults RemoteConfig
	onChange func()
}

func NewConfigStore(cache *Cache, defaults RemoteConfig) *ConfigStore {
	return &ConfigStore{
		cache: cache,
		defaults: RemoteConfig{
			URL: strings.TrimSpace(defaults.URL),
			Key: strings.TrimSpace(defaults.Key),
		},
	}
}

// SetOnChange registers the invalidation hook fired after Save and Clear.
func (s *ConfigStore) SetOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *ConfigStore) Load() RemoteConfig {
	if override := s.cache.Config(); override != nil {
		return *override
	}
	return s.defaults
}

func (s *ConfigStore) Save(rawURL, key string) {
	s.cache.SetConfig(&RemoteConfig{
		URL: strings.TrimSpace(rawURL),
		Key: strings.TrimSpace(key),
	})
	s.notify()
}

func (s *ConfigStore) Clear() {
	s.cache.SetConfig(nil)
	s.notify()
}

// IsConfigured reports syntactic validity only, not reachability. The access
// key is required for the HTTP driver; DSN drivers carry credentials in the
// URL itself.
func (s *ConfigStore) IsConfigured() bool {
	cfg := s.Load()
	if cfg.URL == "" || !validRemoteURL(cfg.URL) {
		return false
	}
	if remoteURLNeedsKey(cfg.URL) && cfg.Key == "" {
		return false
	}
	return true
}

func (s *ConfigStore) notify() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func validRemoteURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return parsed.Scheme != "" && (parsed.Host != "" || parsed.Opaque != "")
}

func remoteURLNeedsKey(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(parsed.Scheme)
	return scheme == "http" || scheme == "https"
}
