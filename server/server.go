package server

import (
	"net"
	"time"

	"github.com/statewire-org/statewire/internal/logging"
	"github.com/statewire-org/statewire/internal/transport"
	"github.com/statewire-org/statewire/pkg/command"
	"github.com/statewire-org/statewire/pkg/connection"
	"github.com/statewire-org/statewire/pkg/header"
	"github.com/statewire-org/statewire/pkg/metrics"
	"github.com/statewire-org/statewire/pkg/packetio"
	"github.com/statewire-org/statewire/pkg/protocol"
	"github.com/statewire-org/statewire/pkg/replication"
	"github.com/statewire-org/statewire/pkg/wire"
	"go.uber.org/zap"
)

// maxDatagramsPerTick bounds how many incoming packets Tick will drain in
// one call, so a flood of traffic can't starve the rest of the
// single-threaded loop (spec §5: "the engine never blocks except on the
// substrate's non-blocking I/O" — draining still has to terminate).
const maxDatagramsPerTick = 4096

// Server is the room/user orchestrator above pkg/connection (SPEC_FULL.md
// §4.11): it owns the RoomKey->Room and UserKey->*ServerConnection tables,
// drives each connection's handshake and heartbeat lifecycle once per
// Tick, and holds the ScopeFunc that InScope applies. Tick does not consult
// the scope: nothing is added to or removed from a user's Sender by it.
type Server struct {
	cfg       connection.Config
	manifest  *protocol.Manifest
	substrate transport.Substrate
	scope     ScopeFunc
	metrics   *metrics.Collector

	rooms map[RoomKey]*Room
	users map[UserKey]*connection.ServerConnection

	addrToUser    map[string]UserKey
	pendingByAddr map[string]*connection.ServerConnection
}

// New creates an orchestrator bound to substrate, using scope (or
// DefaultScope if nil) to decide replication visibility.
func New(cfg connection.Config, manifest *protocol.Manifest, substrate transport.Substrate, scope ScopeFunc) *Server {
	if scope == nil {
		scope = DefaultScope
	}
	return &Server{
		cfg:           cfg,
		manifest:      manifest,
		substrate:     substrate,
		scope:         scope,
		metrics:       metrics.NewCollector("statewire_server"),
		rooms:         make(map[RoomKey]*Room),
		users:         make(map[UserKey]*connection.ServerConnection),
		addrToUser:    make(map[string]UserKey),
		pendingByAddr: make(map[string]*connection.ServerConnection),
	}
}

// Metrics exposes the Prometheus collector for registration with an
// exporter.
func (s *Server) Metrics() *metrics.Collector { return s.metrics }

// CreateRoom allocates and registers a new room.
func (s *Server) CreateRoom() *Room {
	room := NewRoom(NewRoomKey())
	s.rooms[room.Key] = room
	return room
}

// Room looks up a room by key.
func (s *Server) Room(key RoomKey) (*Room, bool) {
	r, ok := s.rooms[key]
	return r, ok
}

// JoinRoom adds user to room, failing silently if either is unknown to the
// caller's own bookkeeping (callers are expected to have validated both).
func (s *Server) JoinRoom(room *Room, user UserKey) { room.Join(user) }

// LeaveRoom removes user from room, deleting the room once it's empty.
func (s *Server) LeaveRoom(room *Room, user UserKey) {
	room.Leave(user)
	if room.Empty() {
		delete(s.rooms, room.Key)
	}
}

// Connection returns the live ServerConnection for user, if connected.
func (s *Server) Connection(user UserKey) (*connection.ServerConnection, bool) {
	c, ok := s.users[user]
	return c, ok
}

// AllConnections returns the live user->connection table, for callers that
// drive per-user application logic once per Tick.
func (s *Server) AllConnections() map[UserKey]*connection.ServerConnection {
	return s.users
}

// InScope applies the configured ScopeFunc, deciding whether room's
// contents should be replicated to user (spec §4.11).
func (s *Server) InScope(room *Room, user UserKey) bool {
	return s.scope(s, room, user)
}

// Tick drains pending datagrams, advances every connection's handshake and
// heartbeat/disconnect bookkeeping, and reports users that disconnected
// this tick so the caller can release their room memberships and
// application-level state (spec §4.10, §4.11).
func (s *Server) Tick(now time.Time) (disconnected []UserKey) {
	s.drainIncoming(now)

	for key, conn := range s.users {
		if conn.ShouldDisconnect(now) {
			conn.Disconnect()
			disconnected = append(disconnected, key)
			delete(s.users, key)
			delete(s.addrToUser, conn.PeerAddr.String())
			s.metrics.Remove(string(key))
			logging.Info("user disconnected: timeout", zap.String("user", string(key)))
			continue
		}
		s.sendReplication(conn, now)
		if conn.ShouldSendHeartbeat(now) {
			s.sendHeartbeat(conn, now)
		}
		s.metrics.Update(string(key), metrics.ConnStats{
			RTT:           conn.Ping.RTT(),
			Jitter:        conn.Ping.Jitter(),
			LiveLocalKeys: conn.Replication.LiveObjectKeys() + conn.Replication.LiveEntityKeys(),
		})
	}
	return disconnected
}

// sendReplication places at most one reliable action, one dirty object's
// update and one dirty component's update, each as its own one-action
// replicate block, into a single MTU-bounded packet and sends it, mirroring
// the reservation-pattern "place what fits, leave the rest queued" rule
// (spec §4.5, §4.7). Reliable Create/Delete take priority over Updates, the
// same ordering pkg/message.Manager uses for reliable-vs-unreliable blocks.
func (s *Server) sendReplication(conn *connection.ServerConnection, now time.Time) {
	w := packetio.NewWriter(s.cfg.MTU)

	var placedAction bool
	if action, ok := conn.Replication.NextReliableAction(); ok {
		body := wire.NewWriter()
		body.WriteU8(1) // action_count
		replication.EncodeAction(body, action)
		placedAction = w.TryWriteBlock(packetio.ManagerReplicate, body.Bytes())
	}

	var updatedKey protocol.LocalObjectKey
	var updateMask *protocol.StateMask
	var placedUpdate bool
	if key, action, ok := conn.Replication.NextUpdate(); ok {
		body := wire.NewWriter()
		body.WriteU8(1)
		replication.EncodeAction(body, action)
		if w.TryWriteBlock(packetio.ManagerReplicate, body.Bytes()) {
			updatedKey, updateMask, placedUpdate = key, action.Mask, true
		}
	}

	var updatedComponent protocol.LocalComponentKey
	var componentUpdateMask *protocol.StateMask
	var placedComponentUpdate bool
	if key, action, ok := conn.Replication.NextComponentUpdate(); ok {
		body := wire.NewWriter()
		body.WriteU8(1)
		replication.EncodeAction(body, action)
		if w.TryWriteBlock(packetio.ManagerReplicate, body.Bytes()) {
			updatedComponent, componentUpdateMask, placedComponentUpdate = key, action.Mask, true
		}
	}

	if w.Len() == 0 && !conn.Messages.HasPending() {
		return
	}

	h := conn.BuildHeader(header.PacketData, now)
	conn.Messages.WriteNext(h.PacketIndex, func(body []byte) bool {
		return w.TryWriteBlock(packetio.ManagerMessage, body)
	})

	if w.Len() == 0 {
		return
	}

	out := wire.NewWriter()
	h.WriteTo(out)
	out.WriteBytes(w.Bytes())
	if err := s.substrate.Send(conn.PeerAddr, out.Bytes()); err != nil {
		logging.Warn("replication send failed", zap.Error(err))
		return
	}
	conn.RecordSent(now)

	if placedAction {
		conn.Replication.ConfirmPlaced(h.PacketIndex)
	}
	if placedUpdate {
		conn.Replication.ConfirmUpdateSent(updatedKey, updateMask)
	}
	if placedComponentUpdate {
		conn.Replication.ConfirmComponentUpdateSent(updatedComponent, componentUpdateMask)
	}
}

func (s *Server) sendHeartbeat(conn *connection.ServerConnection, now time.Time) {
	h := conn.BuildHeader(header.PacketHeartbeat, now)
	w := wire.NewWriter()
	h.WriteTo(w)
	if err := s.substrate.Send(conn.PeerAddr, w.Bytes()); err != nil {
		logging.Warn("heartbeat send failed", zap.Error(err))
		return
	}
	conn.RecordSent(now)
}

func (s *Server) drainIncoming(now time.Time) {
	for i := 0; i < maxDatagramsPerTick; i++ {
		addr, payload, ok, err := s.substrate.Recv()
		if err != nil {
			logging.Warn("substrate recv error", zap.Error(err))
			return
		}
		if !ok {
			return
		}
		s.handleDatagram(addr, payload, now)
	}
}

func (s *Server) handleDatagram(addr *net.UDPAddr, payload []byte, now time.Time) {
	r := wire.NewReader(payload)
	h, err := header.ReadStandardHeader(r)
	if err != nil {
		logging.Warn("malformed header, dropping datagram", zap.Error(err))
		return
	}

	key := addr.String()

	if h.Type == header.PacketClientHandshake {
		s.handleHandshake(addr, key, r, now)
		return
	}

	userKey, ok := s.addrToUser[key]
	if !ok {
		return // data from an unknown/not-yet-accepted peer, ignore
	}
	conn := s.users[userKey]
	conn.OnHeaderReceived(h, now)

	switch h.Type {
	case header.PacketData:
		body, err := r.ReadBytes()
		if err != nil {
			return
		}
		if err := s.decodeDataBlocks(conn, h.HostTick, body); err != nil {
			logging.Warn("protocol violation, disconnecting user", zap.String("user", string(userKey)), zap.Error(err))
			conn.Disconnect()
		}
	case header.PacketPing:
		s.replyPong(conn, r, now)
	case header.PacketPong:
		_, _ = r.ReadBytes()
	case header.PacketHeartbeat, header.PacketDisconnect:
		if h.Type == header.PacketDisconnect {
			conn.Disconnect()
		}
	}
}

// decodeDataBlocks unpacks the packetio sub-blocks one PacketData datagram
// carries and routes each to the manager it belongs to (spec §4.5).
func (s *Server) decodeDataBlocks(conn *connection.ServerConnection, hostTick uint16, body []byte) error {
	blocks, err := packetio.ReadBlocks(body)
	if err != nil {
		return err
	}
	for _, b := range blocks {
		switch b.Manager {
		case packetio.ManagerReplicate:
			if err := conn.Incoming.DecodeBlock(wire.NewReader(b.Body)); err != nil {
				return err
			}
		case packetio.ManagerMessage:
			msg, err := conn.Messages.Decode(b.Body)
			if err != nil {
				return err
			}
			conn.Messages.OnReceive(msg)
		case packetio.ManagerCommand:
			if err := command.DecodeCommandBlock(wire.NewReader(b.Body), s.manifest, hostTick, conn.Commands); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Server) replyPong(conn *connection.ServerConnection, r *wire.Reader, now time.Time) {
	payload, err := r.ReadBytes()
	if err != nil {
		return
	}
	h := conn.BuildHeader(header.PacketPong, now)
	w := wire.NewWriter()
	h.WriteTo(w)
	w.WriteBytes(payload)
	if err := s.substrate.Send(conn.PeerAddr, w.Bytes()); err == nil {
		conn.RecordSent(now)
	}
}

// handleHandshake advances the server side of the CLIENT_HELLO ->
// SERVER_CHALLENGE -> CLIENT_CHALLENGE -> SERVER_ACCEPT flow (spec §4.10).
// A datagram is distinguished as HELLO vs CHALLENGE-reply purely by
// whether this addr already has a pending handshake.
func (s *Server) handleHandshake(addr *net.UDPAddr, addrKey string, _ *wire.Reader, now time.Time) {
	if _, already := s.addrToUser[addrKey]; already {
		return
	}

	conn, pending := s.pendingByAddr[addrKey]
	if !pending {
		conn = connection.NewServerConnection(s.cfg, s.manifest, addr, now)
		s.pendingByAddr[addrKey] = conn
		s.sendChallenge(conn, now)
		return
	}

	conn.AcceptChallenge(now)
	delete(s.pendingByAddr, addrKey)
	userKey := NewUserKey()
	s.users[userKey] = conn
	s.addrToUser[addrKey] = userKey
	s.sendAccept(conn, now)
	logging.Info("user connected", zap.String("user", string(userKey)), zap.String("addr", addrKey))
}

func (s *Server) sendChallenge(conn *connection.ServerConnection, now time.Time) {
	h := conn.BuildHeader(header.PacketServerHandshake, now)
	w := wire.NewWriter()
	h.WriteTo(w)
	w.WriteBytes(conn.Nonce())
	_ = s.substrate.Send(conn.PeerAddr, w.Bytes())
	conn.RecordSent(now)
}

func (s *Server) sendAccept(conn *connection.ServerConnection, now time.Time) {
	h := conn.BuildHeader(header.PacketServerHandshake, now)
	w := wire.NewWriter()
	h.WriteTo(w)
	_ = s.substrate.Send(conn.PeerAddr, w.Bytes())
	conn.RecordSent(now)
}
