// Package werrors is the typed error taxonomy used across the replication
// core (spec §7): transient network conditions never reach the application
// as errors (they're absorbed by the ack engine and jitter buffer), but
// protocol violations, resource exhaustion, and bad configuration do, as one
// of the concrete types below so callers can switch on them with errors.As.
package werrors

import "fmt"

// ProtocolViolation is fatal for the connection it was raised on: unknown
// NaiaId, duplicate Create for a live key, Update for an unknown key, or a
// malformed header. Never panics; always surfaces as Disconnection(reason).
type ProtocolViolation struct {
	Reason string
}

func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("protocol violation: %s", e.Reason)
}

// SpawnRejected is returned when a local key space (object/entity/component)
// is exhausted (>= 65535 live keys) and a spawn was refused rather than
// risking key collision (spec §7, §9 open question: refuse-and-surface).
type SpawnRejected struct {
	Space string
}

func (e *SpawnRejected) Error() string {
	return fmt.Sprintf("spawn rejected: %s key space exhausted", e.Space)
}

// ConfigError fails construction of a Config, Connection, or Manifest before
// any network activity begins.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config field %q: %s", e.Field, e.Reason)
}

// HandshakeFailed is returned when a connection attempt never reaches
// HandshakeConnected: retry exhaustion or an explicit SERVER_REJECT.
type HandshakeFailed struct {
	Reason string
}

func (e *HandshakeFailed) Error() string {
	return fmt.Sprintf("handshake failed: %s", e.Reason)
}
