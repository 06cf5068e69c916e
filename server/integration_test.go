package server_test

import (
	"net"
	"testing"
	"time"

	statewireclient "github.com/statewire-org/statewire/client"
	"github.com/statewire-org/statewire/pkg/command"
	"github.com/statewire-org/statewire/pkg/connection"
	"github.com/statewire-org/statewire/pkg/protocol"
	"github.com/statewire-org/statewire/pkg/replication"
	"github.com/statewire-org/statewire/pkg/wire"
	"github.com/statewire-org/statewire/server"
	"github.com/stretchr/testify/require"
)

type counter struct {
	mask *protocol.StateMask
	N    *protocol.Property[int32]
}

func newCounter() protocol.Replicate {
	mask := protocol.NewStateMask(1)
	return &counter{mask: mask, N: protocol.NewI32Property(0, mask, 0)}
}

func (c *counter) NaiaId() protocol.NaiaId                           { return 0 }
func (c *counter) Guaranteed() bool                                  { return true }
func (c *counter) Mask() *protocol.StateMask                         { return c.mask }
func (c *counter) WriteFull(w *wire.Writer)                          { c.N.WriteFull(w) }
func (c *counter) ReadFull(r *wire.Reader) error                     { return c.N.ReadFull(r) }
func (c *counter) WriteUpdate(w *wire.Writer, m *protocol.StateMask) { c.N.WriteIfDirty(w, m) }
func (c *counter) ReadUpdate(r *wire.Reader, m *protocol.StateMask) error {
	return c.N.ReadIfDirty(r, m)
}
func (c *counter) Clone() protocol.Replicate {
	cp := newCounter().(*counter)
	cp.N.SetSilent(c.N.Get())
	return cp
}

func newTestManifest(t *testing.T) *protocol.Manifest {
	b := protocol.NewManifestBuilder()
	_, err := b.Register(newCounter)
	require.NoError(t, err)
	return b.Build()
}

// pairLink is an in-memory datagram substrate that delivers everything one
// side sends straight into the other side's inbox, for deterministic tests
// without a real socket.
type pairLink struct {
	self  *net.UDPAddr
	peer  *net.UDPAddr
	inbox chan packetAt
}

type packetAt struct {
	from    *net.UDPAddr
	payload []byte
}

func newPairLink(self, peer *net.UDPAddr) *pairLink {
	return &pairLink{self: self, peer: peer, inbox: make(chan packetAt, 256)}
}

func newWirePair(aAddr, bAddr *net.UDPAddr) (*pairLink, *pairLink) {
	a := newPairLink(aAddr, bAddr)
	b := newPairLink(bAddr, aAddr)
	return a, b
}

func (l *pairLink) sendTo(dst *pairLink, payload []byte) {
	dst.inbox <- packetAt{from: l.self, payload: append([]byte(nil), payload...)}
}

func (l *pairLink) Recv() (*net.UDPAddr, []byte, bool, error) {
	select {
	case p := <-l.inbox:
		return p.from, p.payload, true, nil
	default:
		return nil, nil, false, nil
	}
}

func (l *pairLink) LocalAddr() net.Addr { return l.self }
func (l *pairLink) Close() error        { return nil }

// linkedSubstrate binds a pairLink to the peer it sends into.
type linkedSubstrate struct {
	*pairLink
	peerLink *pairLink
}

func (l *linkedSubstrate) Send(addr *net.UDPAddr, payload []byte) error {
	l.pairLink.sendTo(l.peerLink, payload)
	return nil
}

func addrs(t *testing.T) (*net.UDPAddr, *net.UDPAddr) {
	a, err := net.ResolveUDPAddr("udp", "127.0.0.1:9001")
	require.NoError(t, err)
	b, err := net.ResolveUDPAddr("udp", "127.0.0.1:9002")
	require.NoError(t, err)
	return a, b
}

// TestHandshakeThenReplicationDelivery drives a full client<->server
// handshake over an in-memory link, then a server-spawned object reaching
// the client's Incoming event stream.
func TestHandshakeThenReplicationDelivery(t *testing.T) {
	serverAddr, clientAddr := addrs(t)
	serverLink, clientLink := newWirePair(serverAddr, clientAddr)
	serverSub := &linkedSubstrate{pairLink: serverLink, peerLink: clientLink}
	clientSub := &linkedSubstrate{pairLink: clientLink, peerLink: serverLink}

	cfg := connection.DefaultConfig()
	srv := server.New(cfg, newTestManifest(t), serverSub, nil)
	room := srv.CreateRoom()

	cl := statewireclient.Dial(cfg, newTestManifest(t), clientSub, serverAddr)

	now := time.Now()
	step := 10 * time.Millisecond

	var connectedUser server.UserKey
	for i := 0; i < 50 && connectedUser == ""; i++ {
		now = now.Add(step)
		srv.Tick(now)
		events := cl.Tick(now)
		for _, ev := range events {
			if ev.Type == statewireclient.EventConnected {
				require.Equal(t, connection.StatusConnected, cl.Connection().Status)
			}
		}
		for user := range srv.AllConnections() {
			connectedUser = user
		}
	}
	require.NotEmpty(t, connectedUser, "handshake must complete within 50 ticks")
	require.Equal(t, connection.StatusConnected, cl.Connection().Status)

	room.Join(connectedUser)
	conn, ok := srv.Connection(connectedUser)
	require.True(t, ok)
	_, err := conn.Replication.SpawnObject(newCounter())
	require.NoError(t, err)

	var gotCreate bool
	for i := 0; i < 50 && !gotCreate; i++ {
		now = now.Add(step)
		srv.Tick(now)
		events := cl.Tick(now)
		for _, ev := range events {
			if ev.Type == statewireclient.EventReplication && ev.Replication.Type == replication.ActionCreateObject {
				gotCreate = true
			}
		}
	}
	require.True(t, gotCreate, "client must observe the server-spawned object's Create within 50 ticks")
}

// TestCommandDelivery_ClientToServer drives a handshake, then queues a
// client-predicted command and confirms the server's ServerReceiver
// actually observes it (spec §4.8, invariant 5, scenario S3) — the command
// subsystem must be reachable from client.Tick/server.Tick, not just
// exercised in pkg/command's own unit tests.
func TestCommandDelivery_ClientToServer(t *testing.T) {
	serverAddr, clientAddr := addrs(t)
	serverLink, clientLink := newWirePair(serverAddr, clientAddr)
	serverSub := &linkedSubstrate{pairLink: serverLink, peerLink: clientLink}
	clientSub := &linkedSubstrate{pairLink: clientLink, peerLink: serverLink}

	cfg := connection.DefaultConfig()
	manifest := newTestManifest(t)
	srv := server.New(cfg, manifest, serverSub, nil)
	cl := statewireclient.Dial(cfg, manifest, clientSub, serverAddr)

	now := time.Now()
	step := 10 * time.Millisecond

	var connectedUser server.UserKey
	for i := 0; i < 50 && connectedUser == ""; i++ {
		now = now.Add(step)
		srv.Tick(now)
		cl.Tick(now)
		for user := range srv.AllConnections() {
			connectedUser = user
		}
	}
	require.NotEmpty(t, connectedUser, "handshake must complete within 50 ticks")

	pawn := protocol.ObjectPawnKey(1)
	cmd := newCounter().(*counter)
	cmd.N.SetSilent(7)
	issuedTick := cl.Connection().Tick.ClientTick()
	cl.Connection().QueueCommand(pawn, issuedTick, cmd)

	conn, ok := srv.Connection(connectedUser)
	require.True(t, ok)

	var got map[protocol.PawnKey]command.Command
	for i := 0; i < 50 && got == nil; i++ {
		now = now.Add(step)
		srv.Tick(now)
		cl.Tick(now)
		if cmds := conn.Commands.PopIncomingCommands(issuedTick); cmds != nil {
			got = cmds
		}
	}
	require.NotNil(t, got, "server must observe the client's queued command within 50 ticks")
	require.Equal(t, int32(7), got[pawn].(*counter).N.Get())
}
