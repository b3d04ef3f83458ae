// control/controller.go
// Author: momentics <momentics@gmail.com>
//
// Controller bundles configuration, metrics and probes behind api.Control.

package control

import (
	"github.com/momentics/hioload-gateway/api"
)

// Controller implements api.Control.
type Controller struct {
	Store   *ConfigStore
	Metrics *Metrics
	Probes  *DebugProbes
}

var _ api.Control = (*Controller)(nil)

// GetConfig returns the configuration snapshot.
func (c *Controller) GetConfig() map[string]any { return c.Store.GetSnapshot() }

// SetConfig applies reloadable keys.
func (c *Controller) SetConfig(cfg map[string]any) error { return c.Store.SetConfig(cfg) }

// OnReload registers a listener that does not need the new values.
func (c *Controller) OnReload(fn func()) { c.Store.OnReload(func(Config) { fn() }) }

// RegisterDebugProbe adds a named probe.
func (c *Controller) RegisterDebugProbe(name string, fn func() any) {
	c.Probes.RegisterProbe(name, fn)
}

// Stats merges counters and probe output; probe names are prefixed with
// "debug.".
func (c *Controller) Stats() map[string]any {
	out := make(map[string]any)
	// Probes run first so the gauges they sample are current.
	for k, v := range c.Probes.DumpState() {
		out["debug."+k] = v
	}
	for k, v := range c.Metrics.GetSnapshot() {
		out[k] = v
	}
	return out
}
