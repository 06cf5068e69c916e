package connection

import (
	"net"
	"time"

	"github.com/statewire-org/statewire/pkg/command"
	"github.com/statewire-org/statewire/pkg/protocol"
	"github.com/statewire-org/statewire/pkg/replication"
)

// ServerConnection is the server's view of one connected client: the
// shared manager set, the handshake state it's tracking for that client,
// and the Sender/Receiver pair scoped to this client's replication graph.
type ServerConnection struct {
	*Connection

	PeerAddr *net.UDPAddr

	ServerHandshake ServerHandshakeState
	nonce           []byte

	Replication *replication.Sender
	Incoming    *replication.Receiver

	// Commands is this client's incoming pawn-command intake, keyed by the
	// client tick each command was issued at (spec §4.8).
	Commands *command.ServerReceiver
}

// NewServerConnection begins tracking a client that just sent CLIENT_HELLO.
func NewServerConnection(cfg Config, manifest *protocol.Manifest, peerAddr *net.UDPAddr, now time.Time) *ServerConnection {
	sc := &ServerConnection{
		Connection:  NewConnection(cfg, manifest, nil, nil),
		PeerAddr:    peerAddr,
		Replication: replication.NewSender(manifest),
		Incoming:    replication.NewReceiver(manifest),
		Commands:    command.NewServerReceiver(cfg.CommandHistorySize),
	}
	sc.Acks.SetCallbacks(
		func(packetIndex uint16, rtt time.Duration) {
			sc.Replication.NotifyActionDelivered(packetIndex)
			sc.Messages.NotifyPacketDelivered(packetIndex)
		},
		func(packetIndex uint16) {
			sc.Replication.NotifyActionDropped(packetIndex)
			sc.Messages.NotifyPacketDropped(packetIndex)
		},
	)
	sc.ServerHandshake = ServerAwaitingChallengeReply
	sc.nonce = GenerateNonce(16)
	sc.lastReceivedAt = now
	sc.haveReceived = true
	return sc
}

// Nonce returns the challenge nonce sent to this client in
// SERVER_CHALLENGE. The client's CLIENT_CHALLENGE reply does not carry it
// back, and nothing compares a reply against it.
func (s *ServerConnection) Nonce() []byte { return s.nonce }

// AcceptChallenge completes the handshake for this client. It does not
// inspect the CLIENT_CHALLENGE reply: Server.handleHandshake accepts any
// second handshake datagram from a pending address.
func (s *ServerConnection) AcceptChallenge(now time.Time) {
	s.ServerHandshake = ServerAccepted
	s.Handshake = HandshakeConnected
	s.Status = StatusConnected
	s.lastReceivedAt = now
	s.haveReceived = true
}

// Reject marks the connection disconnected without ever reaching
// StatusConnected (spec §4.10: SERVER_REJECT).
func (s *ServerConnection) Reject() {
	s.Handshake = HandshakeRejected
	s.Status = StatusDisconnected
}

// Disconnect transitions a connected client to disconnected, freeing no
// keys itself — the caller (the server's replication graph owner) is
// responsible for reclaiming every local key this connection allocated,
// since ServerConnection only tracks its manager state, not the room
// membership that owns those keys (spec §4.11 "Room" design).
func (s *ServerConnection) Disconnect() {
	s.Status = StatusDisconnected
}
