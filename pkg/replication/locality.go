// Package replication implements the replicate lifecycle state machine,
// local key allocation, and the sender/receiver halves of the replication
// manager (spec §4.7, the hardest component). Grounded on
// original_source/client/src/server_connection.rs's incoming-action
// handling and the arena+stable-index redesign mandated by spec §9 in place
// of the source's shared-by-reference entity/component graphs.
package replication

import "github.com/statewire-org/statewire/pkg/werrors"

// LocalityStatus tracks the server's view of a replicate's lifecycle on a
// given connection (spec §3 "Locality status"):
//
//	Creating --ack create--> Created --mark delete--> Deleting --ack delete--> destroyed
type LocalityStatus uint8

const (
	LocalityCreating LocalityStatus = iota
	LocalityCreated
	LocalityDeleting
	LocalityDestroyed
)

func (s LocalityStatus) String() string {
	switch s {
	case LocalityCreating:
		return "Creating"
	case LocalityCreated:
		return "Created"
	case LocalityDeleting:
		return "Deleting"
	case LocalityDestroyed:
		return "Destroyed"
	default:
		return "Unknown"
	}
}

// AdvanceOnCreateAck transitions Creating -> Created. Any other state is a
// no-op: the invariant "no Creating->Deleting transition is observable"
// means a create-ack arriving after a delete was already marked must not
// resurrect the record (spec §3).
func (s LocalityStatus) AdvanceOnCreateAck() LocalityStatus {
	if s == LocalityCreating {
		return LocalityCreated
	}
	return s
}

// MarkDelete transitions Created -> Deleting. The server must defer marking
// a delete on a Creating record until it reaches Created (spec §3: "server
// defers the delete until Created") — callers are expected to hold the
// delete request rather than call MarkDelete while still Creating.
func (s LocalityStatus) MarkDelete() LocalityStatus {
	if s == LocalityCreated {
		return LocalityDeleting
	}
	return s
}

// AdvanceOnDeleteAck transitions Deleting -> Destroyed.
func (s LocalityStatus) AdvanceOnDeleteAck() LocalityStatus {
	if s == LocalityDeleting {
		return LocalityDestroyed
	}
	return s
}

// CanSendUpdate reports whether a replicate in this state may carry an
// Update action (spec §3: "never sent an update while in Creating or
// Deleting").
func (s LocalityStatus) CanSendUpdate() bool {
	return s == LocalityCreated
}

// ErrKeySpaceExhausted is returned by key allocators once 65535 keys are
// concurrently live (spec §7 "Resource exhaustion": "local key space full
// (>= 65535 live) -> refuse spawn, surface as SpawnRejected"). The open
// question on eviction policy is resolved per spec §9: refuse, never evict.
var ErrKeySpaceExhausted = &werrors.SpawnRejected{Space: "local-key"}
