// Package server is the room/user orchestrator that sits above
// pkg/connection: it owns the RoomKey->Room and UserKey->*ServerConnection
// tables, decides what each user is in scope for, and drives every
// connection's single-threaded per-tick loop (SPEC_FULL.md §4.11, §5).
package server

import "github.com/rs/xid"

// UserKey globally and uniquely identifies one connected client for the
// lifetime of the process, independent of its local replicate keys (which
// are scoped to a single ServerConnection and reused after free).
type UserKey string

// RoomKey globally and uniquely identifies one room.
type RoomKey string

// NewUserKey mints a fresh globally unique, sortable user id (grounded on
// the xid usage for connection identifiers).
func NewUserKey() UserKey { return UserKey(xid.New().String()) }

// NewRoomKey mints a fresh globally unique room id.
func NewRoomKey() RoomKey { return RoomKey(xid.New().String()) }
