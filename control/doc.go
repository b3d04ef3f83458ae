// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, hot reload, metrics and debug introspection for the
// gateway core.
//
// Provides concurrent-safe state handling primitives including:
//   - Typed configuration with validation and reloadable keys
//   - zap logger construction with an adjustable level
//   - OpenTelemetry counters mirrored into a snapshot map
//   - Named debug probes
package control
