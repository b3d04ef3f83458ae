// control/store.go
// Author: momentics <momentics@gmail.com>
//
// Thread-safe configuration store with validated updates and reload
// listeners.

package control

import (
	"sync"
)

// ConfigStore holds the live Config.
type ConfigStore struct {
	mu        sync.RWMutex
	config    Config
	listeners []func(Config)
}

// NewConfigStore validates cfg and stores it.
func NewConfigStore(cfg Config) (*ConfigStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ConfigStore{config: cfg}, nil
}

// Config returns the current configuration.
func (cs *ConfigStore) Config() Config {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.config
}

// GetSnapshot returns the current configuration keyed by name.
func (cs *ConfigStore) GetSnapshot() map[string]any {
	return cs.Config().asMap()
}

// SetConfig applies reloadable keys atomically: either every key is
// applied and validated, or nothing changes. Listeners run synchronously
// after the update, in registration order.
func (cs *ConfigStore) SetConfig(values map[string]any) error {
	cs.mu.Lock()
	next := cs.config
	for k, v := range values {
		if err := next.apply(k, v); err != nil {
			cs.mu.Unlock()
			return err
		}
	}
	if err := next.Validate(); err != nil {
		cs.mu.Unlock()
		return err
	}
	cs.config = next
	listeners := append([]func(Config){}, cs.listeners...)
	cs.mu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
	return nil
}

// OnReload registers a listener called with the new configuration.
func (cs *ConfigStore) OnReload(fn func(Config)) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}
