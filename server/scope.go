package server

// ScopeFunc decides whether room's contents should be replicated to user.
// Pluggable the way the teacher's rpc.ServiceDesc lets callers register
// their own method handlers (SPEC_FULL.md §4.11). Server.InScope applies
// it; Server.Tick does not call it, so it does not by itself decide what
// enters or leaves a user's Sender.
type ScopeFunc func(s *Server, room *Room, user UserKey) bool

// DefaultScope replicates everything in every room the user has joined.
func DefaultScope(_ *Server, room *Room, user UserKey) bool {
	return room.Has(user)
}
