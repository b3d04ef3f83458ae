// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Gateway configuration and its validation.

package control

import (
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/momentics/hioload-gateway/api"
)

// Config holds startup settings. Only SessionIdleTimeout and LogLevel can
// change at runtime.
type Config struct {
	Schedulers           int
	SessionsPerScheduler int
	SessionIdleTimeout   time.Duration
	ChunkPoolCapacity    int
	Namespace            string
	LogLevel             string
	PinSchedulers        bool
}

// Config keys understood by ConfigStore.SetConfig and GetSnapshot.
const (
	KeySchedulers           = "schedulers"
	KeySessionsPerScheduler = "sessions_per_scheduler"
	KeySessionIdleTimeout   = "session.idle_timeout"
	KeyChunkPoolCapacity    = "chunk_pool.capacity"
	KeyNamespace            = "namespace"
	KeyLogLevel             = "log.level"
	KeyPinSchedulers        = "pin_schedulers"
)

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Schedulers:           runtime.NumCPU(),
		SessionsPerScheduler: 4096,
		SessionIdleTimeout:   30 * time.Minute,
		ChunkPoolCapacity:    8192,
		Namespace:            "default",
		LogLevel:             "info",
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.Schedulers <= 0 || c.Schedulers > 254:
		return fmt.Errorf("config: schedulers %d out of range 1..254: %w", c.Schedulers, api.ErrInvalidArgument)
	case c.SessionsPerScheduler <= 0:
		return fmt.Errorf("config: sessions per scheduler must be positive: %w", api.ErrInvalidArgument)
	case c.SessionIdleTimeout < 0:
		return fmt.Errorf("config: negative session idle timeout: %w", api.ErrInvalidArgument)
	case c.ChunkPoolCapacity <= 0:
		return fmt.Errorf("config: chunk pool capacity must be positive: %w", api.ErrInvalidArgument)
	case c.Namespace == "":
		return fmt.Errorf("config: empty namespace: %w", api.ErrInvalidArgument)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: log level %q: %w", c.LogLevel, api.ErrInvalidArgument)
	}
	return nil
}

// asMap flattens c for api.Control.GetConfig.
func (c Config) asMap() map[string]any {
	return map[string]any{
		KeySchedulers:           c.Schedulers,
		KeySessionsPerScheduler: c.SessionsPerScheduler,
		KeySessionIdleTimeout:   c.SessionIdleTimeout,
		KeyChunkPoolCapacity:    c.ChunkPoolCapacity,
		KeyNamespace:            c.Namespace,
		KeyLogLevel:             c.LogLevel,
		KeyPinSchedulers:        c.PinSchedulers,
	}
}

// apply sets one reloadable key.
func (c *Config) apply(key string, v any) error {
	switch key {
	case KeySessionIdleTimeout:
		switch t := v.(type) {
		case time.Duration:
			c.SessionIdleTimeout = t
		case string:
			d, err := time.ParseDuration(t)
			if err != nil {
				return fmt.Errorf("config: %s: %w", key, api.ErrInvalidArgument)
			}
			c.SessionIdleTimeout = d
		default:
			return fmt.Errorf("config: %s has type %T: %w", key, v, api.ErrInvalidArgument)
		}
	case KeyLogLevel:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("config: %s has type %T: %w", key, v, api.ErrInvalidArgument)
		}
		c.LogLevel = s
	case KeySchedulers, KeySessionsPerScheduler, KeyChunkPoolCapacity, KeyNamespace, KeyPinSchedulers:
		return fmt.Errorf("config: %s is fixed at startup: %w", key, api.ErrInvalidArgument)
	default:
		return fmt.Errorf("config: unknown key %q: %w", key, api.ErrInvalidArgument)
	}
	return nil
}
