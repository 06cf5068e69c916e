package connection

import (
	"crypto/rand"
	"net"
	"time"

	"github.com/statewire-org/statewire/pkg/command"
	"github.com/statewire-org/statewire/pkg/protocol"
	"github.com/statewire-org/statewire/pkg/replication"
	"github.com/statewire-org/statewire/pkg/werrors"
)

// MaxHandshakeAttempts bounds CLIENT_HELLO/CLIENT_CHALLENGE retries before
// the client gives up (spec §4.10: "Connected -> Disconnected on ... (c)
// handshake retry exhaustion").
const MaxHandshakeAttempts = 8

// ClientConnection is the client side of one server link: the shared
// manager set plus the handshake-retry bookkeeping and a Sender/Receiver
// pair scoped to this connection's manifest.
type ClientConnection struct {
	*Connection

	ServerAddr *net.UDPAddr
	nonce      []byte

	attempts    int
	lastAttempt time.Time

	Replication *replication.Sender
	Incoming    *replication.Receiver

	// Commands queues this client's own outgoing pawn commands (spec §4.8).
	Commands *command.DualCommandSender
	// replays holds, per locally predicted pawn, the replay buffer fed
	// alongside Commands and drained against server snapshots via
	// ReconcileSnapshot (spec §4.8, invariant 5). Populated lazily through
	// RegisterPawnReplay.
	replays map[protocol.PawnKey]*command.DualCommandReceiver
}

// NewClientConnection starts a connection in the handshaking state, ready
// to send CLIENT_HELLO.
func NewClientConnection(cfg Config, manifest *protocol.Manifest, serverAddr *net.UDPAddr) *ClientConnection {
	cc := &ClientConnection{
		Connection:  NewConnection(cfg, manifest, nil, nil),
		ServerAddr:  serverAddr,
		Replication: replication.NewSender(manifest),
		Incoming:    replication.NewReceiver(manifest),
		Commands:    command.NewDualCommandSender(cfg.CommandHistorySize),
		replays:     make(map[protocol.PawnKey]*command.DualCommandReceiver),
	}
	cc.Acks.SetCallbacks(
		func(packetIndex uint16, rtt time.Duration) {
			cc.Replication.NotifyActionDelivered(packetIndex)
			cc.Messages.NotifyPacketDelivered(packetIndex)
			cc.Commands.NotifyDelivered(packetIndex)
		},
		func(packetIndex uint16) {
			cc.Replication.NotifyActionDropped(packetIndex)
			cc.Messages.NotifyPacketDropped(packetIndex)
			cc.Commands.NotifyDropped(packetIndex)
		},
	)
	cc.Handshake = HandshakeAwaitingChallenge
	return cc
}

// RegisterPawnReplay starts buffering a local replay history for pawn,
// invoking hook to reapply each command still newer than the latest
// server-confirmed tick (spec §4.8 "process_command_replay hook"). A
// predicted pawn must register before QueueCommand will feed its replay
// buffer.
func (c *ClientConnection) RegisterPawnReplay(pawn protocol.PawnKey, hook command.ReplayHook) {
	c.replays[pawn] = command.NewDualCommandReceiver(hook)
}

// QueueCommand records a freshly issued command for pawn at tick, both for
// network send (Commands) and, if pawn has a registered replay buffer, for
// later reconciliation against a server snapshot.
func (c *ClientConnection) QueueCommand(pawn protocol.PawnKey, tick uint16, cmd command.Command) {
	c.Commands.QueueCommand(pawn, tick, cmd)
	if r, ok := c.replays[pawn]; ok {
		r.BufferCommand(pawn, tick, cmd)
	}
}

// ReconcileSnapshot replays pawn's buffered commands newer than serverTick
// against its just-corrected local state, if pawn has a registered replay
// buffer (spec §4.8, invariant 5). A no-op for an unregistered pawn.
func (c *ClientConnection) ReconcileSnapshot(pawn protocol.PawnKey, serverTick uint16) {
	if r, ok := c.replays[pawn]; ok {
		r.ReconcileSnapshot(pawn, serverTick)
	}
}

// ShouldRetryHandshake reports whether it is time to (re)send the next
// handshake packet, and advances/bounds the attempt counter. Returns false
// with a non-nil error once MaxHandshakeAttempts is exceeded, setting
// Status to StatusDisconnected itself.
func (c *ClientConnection) ShouldRetryHandshake(now time.Time, retryInterval time.Duration) (bool, error) {
	if c.Handshake == HandshakeConnected || c.Handshake == HandshakeRejected {
		return false, nil
	}
	if !c.lastAttempt.IsZero() && now.Sub(c.lastAttempt) < retryInterval {
		return false, nil
	}
	if c.attempts >= MaxHandshakeAttempts {
		c.Status = StatusDisconnected
		return false, &werrors.HandshakeFailed{Reason: "retry exhaustion"}
	}
	c.attempts++
	c.lastAttempt = now
	return true, nil
}

// OnChallenge records the server's nonce and advances to
// HandshakeAwaitingAccept. The stored nonce is not used afterwards: the
// CLIENT_CHALLENGE reply that client.Client sends is a bare header.
func (c *ClientConnection) OnChallenge(nonce []byte) {
	c.nonce = append([]byte(nil), nonce...)
	c.Handshake = HandshakeAwaitingAccept
	c.attempts = 0
}

// OnAccept completes the handshake.
func (c *ClientConnection) OnAccept(now time.Time) {
	c.Handshake = HandshakeConnected
	c.Status = StatusConnected
	c.lastReceivedAt = now
	c.haveReceived = true
}

// OnReject marks the handshake as permanently failed.
func (c *ClientConnection) OnReject() {
	c.Handshake = HandshakeRejected
	c.Status = StatusDisconnected
}

// GenerateNonce returns a fresh random nonce for a challenge reply,
// used by tests and by a server driving its own handshake side.
func GenerateNonce(n int) []byte {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return buf
}
