package zensync

import (
	"fmt"
	"net/url"
	"strings"
)

// BuildRemoteStore selects a driver from the config URL scheme:
//
//	https://host  — Supabase-style REST endpoint (key required)
//	postgres://…  — direct SQL connection
//	mongodb://…   — document store
func BuildRemoteStore(cfg RemoteConfig) (RemoteStore, error) {
	raw := strings.TrimSpace(cfg.URL)
	if raw == "" {
		return nil, ErrNotConfigured
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		return NewPostgRESTClient(PostgRESTClientOptions{BaseURL: raw, APIKey: cfg.Key})
	case "postgres", "postgresql":
		return NewPostgresRemoteStore(raw)
	case "mongodb", "mongodb+srv":
		return NewMongoRemoteStore(raw)
	default:
		return nil, fmt.Errorf("%w: unsupported remote scheme %q", ErrInvalidConfig, parsed.Scheme)
	}
}
