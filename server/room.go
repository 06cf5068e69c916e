package server

import "github.com/statewire-org/statewire/pkg/protocol"

// Room is a set of users plus the set of replicate variants (NaiaIds)
// recorded as present through NoteVariant (SPEC_FULL.md §4.11). It holds no
// object or entity keys: local keys are only meaningful within the
// ServerConnection that allocated them, and the mapping from "this room's
// object" to "this user's local key for it" is the per-connection
// Sender/Receiver's job, not Room's.
type Room struct {
	Key RoomKey

	users   map[UserKey]struct{}
	objects map[protocol.NaiaId]struct{} // distinct object variants present, for scope decisions
}

// NewRoom creates an empty room.
func NewRoom(key RoomKey) *Room {
	return &Room{Key: key, users: make(map[UserKey]struct{}), objects: make(map[protocol.NaiaId]struct{})}
}

// Join adds a user to the room.
func (r *Room) Join(user UserKey) { r.users[user] = struct{}{} }

// Leave removes a user from the room.
func (r *Room) Leave(user UserKey) { delete(r.users, user) }

// Has reports whether user is a current member.
func (r *Room) Has(user UserKey) bool {
	_, ok := r.users[user]
	return ok
}

// Members returns the room's current user set.
func (r *Room) Members() []UserKey {
	out := make([]UserKey, 0, len(r.users))
	for u := range r.users {
		out = append(out, u)
	}
	return out
}

// NoteVariant records that this room now contains at least one replicate
// of the given variant, for scope functions that branch on room contents.
func (r *Room) NoteVariant(id protocol.NaiaId) { r.objects[id] = struct{}{} }

// HasVariant reports whether the room has ever held the given variant.
func (r *Room) HasVariant(id protocol.NaiaId) bool {
	_, ok := r.objects[id]
	return ok
}

// Empty reports whether the room has no members left, a candidate for
// garbage collection by the orchestrator.
func (r *Room) Empty() bool { return len(r.users) == 0 }
