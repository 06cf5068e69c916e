package connection

import (
	"time"

	"github.com/statewire-org/statewire/pkg/command"
	"github.com/statewire-org/statewire/pkg/header"
	"github.com/statewire-org/statewire/pkg/message"
	"github.com/statewire-org/statewire/pkg/ping"
	"github.com/statewire-org/statewire/pkg/protocol"
	"github.com/statewire-org/statewire/pkg/replication"
	"github.com/statewire-org/statewire/pkg/tick"
	"github.com/statewire-org/statewire/pkg/wire"
	"github.com/statewire-org/statewire/pkg/world"
)

// Status is the coarse connection lifecycle state (spec §4.10).
type Status uint8

const (
	StatusHandshaking Status = iota
	StatusConnected
	StatusDisconnected
)

// Config bundles the connection-lifetime tunables spec §6 lists under
// "Configuration".
type Config struct {
	DisconnectionTimeout  time.Duration
	HeartbeatInterval     time.Duration
	PingInterval          time.Duration
	RTTSampleSize         int
	SendHandshakeInterval time.Duration
	TickDuration          time.Duration
	CommandHistorySize    int
	MTU                   int
}

// DefaultConfig matches the spec's implied defaults for a LAN-scale game.
func DefaultConfig() Config {
	return Config{
		DisconnectionTimeout:  5 * time.Second,
		HeartbeatInterval:     2 * time.Second,
		PingInterval:          time.Second,
		RTTSampleSize:         ping.DefaultSampleSize,
		SendHandshakeInterval: 500 * time.Millisecond,
		TickDuration:          50 * time.Millisecond,
		CommandHistorySize:    command.DefaultHistorySize,
		MTU:                   508,
	}
}

// Connection is a single peer's shared manager set: ack engine, ping
// estimator, tick clock, message manager, world bindings, and a jitter
// buffer for incoming data packets. Every per-peer
// ServerConnection/ClientConnection embeds this and adds its own
// replication and command state on top (spec §3
// "Ownership": "each ServerConnection exclusively owns its managers").
type Connection struct {
	cfg Config

	Manifest *protocol.Manifest

	Status    Status
	Handshake HandshakeState

	Acks     *header.AckEngine
	Ping     *ping.Manager
	Tick     *tick.Manager
	Messages *message.Manager
	Bindings *world.Bindings

	// JitterBuffer holds raw data-packet payloads ([]byte) keyed by the
	// server tick each describes; FrameBegin releases them in tick order
	// (spec §4.9).
	JitterBuffer *wire.TickQueue

	lastReceivedAt time.Time
	lastSentAt     time.Time
	haveReceived   bool
}

// NewConnection wires a fresh manager set for one peer.
func NewConnection(cfg Config, manifest *protocol.Manifest, onDelivered header.DeliveryCallback, onDropped header.DropCallback) *Connection {
	return &Connection{
		cfg:          cfg,
		Manifest:     manifest,
		Status:       StatusHandshaking,
		Acks:         header.NewAckEngine(header.DefaultAckWindow, onDelivered, onDropped),
		Ping:         ping.NewManager(cfg.PingInterval, cfg.RTTSampleSize),
		Tick:         tick.NewManager(cfg.TickDuration),
		Messages:     message.NewManager(manifest),
		Bindings:     world.NewBindings(),
		JitterBuffer: wire.NewTickQueue(),
	}
}

// OnPacketReceived records that a packet just arrived, used for both the
// ack engine's last_received tracking and the disconnection timeout (spec
// §4.10 "should_drop(): no message received within disconnection_timeout").
func (c *Connection) OnPacketReceived(packetIndex uint16, now time.Time) {
	c.Acks.OnReceive(packetIndex)
	c.lastReceivedAt = now
	c.haveReceived = true
}

// ShouldDisconnect reports whether the peer has gone silent for longer than
// DisconnectionTimeout (spec §4.10).
func (c *Connection) ShouldDisconnect(now time.Time) bool {
	if !c.haveReceived {
		return false
	}
	return now.Sub(c.lastReceivedAt) >= c.cfg.DisconnectionTimeout
}

// RecordSent marks that a packet (of any kind) was just sent, resetting the
// heartbeat clock.
func (c *Connection) RecordSent(now time.Time) {
	c.lastSentAt = now
}

// ShouldSendHeartbeat reports whether HeartbeatInterval has elapsed with
// nothing else sent (spec §4.10: "if now - last_sent >= heartbeat_interval
// and nothing else to send, emit a Heartbeat").
func (c *Connection) ShouldSendHeartbeat(now time.Time) bool {
	return c.lastSentAt.IsZero() || now.Sub(c.lastSentAt) >= c.cfg.HeartbeatInterval
}

// BuildHeader assembles the outgoing StandardHeader for packetType, drawing
// packet_index and ack fields from the ack engine and host_tick from the
// tick manager (spec §4.2).
func (c *Connection) BuildHeader(packetType header.PacketType, now time.Time) header.StandardHeader {
	idx := c.Acks.RecordOutgoing(now)
	lastRecv, bitfield := c.Acks.AckFields()
	return header.StandardHeader{
		Type:              packetType,
		PacketIndex:       idx,
		LastReceivedIndex: lastRecv,
		AckBitfield:       bitfield,
		HostTick:          c.Tick.ClientTick(),
	}
}

// OnHeaderReceived folds a peer header's ack fields into the ack engine and
// the tick manager's server-tick projection (spec §4.2, §4.4).
func (c *Connection) OnHeaderReceived(h header.StandardHeader, now time.Time) {
	c.OnPacketReceived(h.PacketIndex, now)
	c.Acks.ProcessAck(h.LastReceivedIndex, h.AckBitfield, now)
	c.Tick.RecordServerTick(h.HostTick, c.Ping.RTT(), c.Ping.Jitter())
}

// FrameBegin pops every jitter-buffered data packet whose tick is not later
// than the current server-tick estimate, in non-decreasing tick order
// (spec §4.9, invariant 6). Returns nil if the tick manager has no server
// estimate yet or nothing is ready.
func (c *Connection) FrameBegin() [][]byte {
	serverTick, ok := c.Tick.ServerTick()
	if !ok {
		return nil
	}
	var out [][]byte
	for {
		_, payload, ok := c.JitterBuffer.PopItem(serverTick)
		if !ok {
			break
		}
		out = append(out, payload.([]byte))
	}
	return out
}

// ReplicationSender/ReplicationReceiver are convenience aliases so callers don't
// need to import pkg/replication directly just to hold a reference.
type (
	ReplicationSender   = replication.Sender
	ReplicationReceiver = replication.Receiver
)
