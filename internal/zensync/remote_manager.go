package zensync

import (
	"context"
	"log"
	"sync"
)

// RemoteManager lazily holds at most one live RemoteStore, built from the
// current effective config. The instance is reused until the config changes
// or Invalidate is called; a nil return means the remote tier is unavailable
// and callers fall through to the local cache.
type RemoteManager struct {
	mu         sync.Mutex
	config     *ConfigStore
	build      func(RemoteConfig) (RemoteStore, error)
	current    RemoteStore
	currentCfg RemoteConfig
}

func NewRemoteManager(config *ConfigStore) *RemoteManager {
	return &RemoteManager{config: config, build: BuildRemoteStore}
}

// Get returns the shared client for the effective config, or nil when the
// store is unconfigured or the client cannot be built. Build failures are
// logged, never returned; callers treat nil as remote-off.
func (m *RemoteManager) Get() RemoteStore {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.config.IsConfigured() {
		m.closeLocked()
		return nil
	}
	cfg := m.config.Load()
	if m.current != nil && cfg == m.currentCfg {
		return m.current
	}
	m.closeLocked()
	client, err := m.build(cfg)
	if err != nil {
		log.Printf("zensync: remote client build failed: %v", err)
		return nil
	}
	m.current = client
	m.currentCfg = cfg
	return client
}

// Invalidate drops the cached client so the next Get rebuilds from config.
func (m *RemoteManager) Invalidate() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.closeLocked()
	m.mu.Unlock()
}

// TestConnection discards any cached client, builds a fresh one from the
// effective config, and probes it. On success the fresh client is kept.
func (m *RemoteManager) TestConnection(ctx context.Context) error {
	if m == nil {
		return ErrNotConfigured
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
	if !m.config.IsConfigured() {
		return ErrNotConfigured
	}
	cfg := m.config.Load()
	client, err := m.build(cfg)
	if err != nil {
		return err
	}
	if err := client.Ping(ctx); err != nil {
		_ = client.Close()
		return err
	}
	m.current = client
	m.currentCfg = cfg
	return nil
}

func (m *RemoteManager) Close() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.closeLocked()
	m.mu.Unlock()
}

func (m *RemoteManager) closeLocked() {
	if m.current == nil {
		return
	}
	if err := m.current.Close(); err != nil {
		log.Printf("zensync: remote client close failed: %v", err)
	}
	m.current = nil
	m.currentCfg = RemoteConfig{}
}
