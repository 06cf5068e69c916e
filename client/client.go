// Package client is the application-facing driver over
// pkg/connection.ClientConnection: it owns the handshake retry loop, ping
// scheduling, and the Event stream an application pumps each frame (spec
// §2 "Client"/"Server" roles, §6 "API shape").
package client

import (
	"net"
	"time"

	"github.com/statewire-org/statewire/internal/logging"
	"github.com/statewire-org/statewire/internal/transport"
	"github.com/statewire-org/statewire/pkg/connection"
	"github.com/statewire-org/statewire/pkg/header"
	"github.com/statewire-org/statewire/pkg/packetio"
	"github.com/statewire-org/statewire/pkg/protocol"
	"github.com/statewire-org/statewire/pkg/replication"
	"github.com/statewire-org/statewire/pkg/wire"
	"go.uber.org/zap"
)

// EventType discriminates what Tick handed back to the application this
// frame.
type EventType uint8

const (
	EventConnected EventType = iota
	EventDisconnected
	EventReplication
)

// Event is one application-visible thing that happened this Tick (spec §6
// "the application drains an Event queue after each Tick").
type Event struct {
	Type        EventType
	Replication replication.Event
}

// Client drives one server connection end-to-end: handshake, heartbeats,
// ping sampling, and replication decode, surfaced as a flat Event stream.
type Client struct {
	conn      *connection.ClientConnection
	substrate transport.Substrate
	cfg       connection.Config

	events []Event
}

// Dial starts a handshake to serverAddr over substrate. The connection is
// not usable until Tick observes EventConnected.
func Dial(cfg connection.Config, manifest *protocol.Manifest, substrate transport.Substrate, serverAddr *net.UDPAddr) *Client {
	return &Client{
		conn:      connection.NewClientConnection(cfg, manifest, serverAddr),
		substrate: substrate,
		cfg:       cfg,
	}
}

// Connection exposes the underlying connection state for callers that need
// direct access to Replication/Incoming/Tick/Ping.
func (c *Client) Connection() *connection.ClientConnection { return c.conn }

// Tick drains incoming datagrams, advances the handshake and ping/heartbeat
// clocks, and returns this frame's events. The caller is expected to call
// Tick once per frame from a single goroutine (spec §5).
func (c *Client) Tick(now time.Time) []Event {
	c.events = c.events[:0]
	c.conn.Tick.MarkFrame(now)
	c.drainIncoming(now)

	switch c.conn.Status {
	case connection.StatusHandshaking:
		c.driveHandshake(now)
	case connection.StatusConnected:
		c.driveConnected(now)
	}

	return c.events
}

func (c *Client) driveHandshake(now time.Time) {
	shouldSend, err := c.conn.ShouldRetryHandshake(now, c.cfg.SendHandshakeInterval)
	if err != nil {
		c.events = append(c.events, Event{Type: EventDisconnected})
		return
	}
	if !shouldSend {
		return
	}
	h := c.conn.BuildHeader(header.PacketClientHandshake, now)
	w := wire.NewWriter()
	h.WriteTo(w)
	if err := c.substrate.Send(c.conn.ServerAddr, w.Bytes()); err != nil {
		logging.Warn("handshake send failed", zap.Error(err))
		return
	}
	c.conn.RecordSent(now)
}

func (c *Client) driveConnected(now time.Time) {
	if c.conn.ShouldDisconnect(now) {
		c.conn.Status = connection.StatusDisconnected
		c.events = append(c.events, Event{Type: EventDisconnected})
		return
	}
	if c.conn.Ping.ShouldSendPing(now) {
		c.sendPing(now)
	}
	c.sendData(now)
	if c.conn.ShouldSendHeartbeat(now) {
		c.sendHeartbeat(now)
	}
	for {
		ev, ok := c.conn.Incoming.PopEvent()
		if !ok {
			break
		}
		c.events = append(c.events, Event{Type: EventReplication, Replication: ev})
	}
}

func (c *Client) sendPing(now time.Time) {
	_, payload := c.conn.Ping.BuildPing(now)
	h := c.conn.BuildHeader(header.PacketPing, now)
	w := wire.NewWriter()
	h.WriteTo(w)
	w.WriteBytes(payload)
	if err := c.substrate.Send(c.conn.ServerAddr, w.Bytes()); err == nil {
		c.conn.RecordSent(now)
	}
}

// sendData drains pending outgoing messages and pawn command blocks into a
// single MTU-bounded PacketData datagram, mirroring server.sendReplication's
// "place what fits, leave the rest queued" reservation pattern (spec §4.5,
// §4.8). The client never replicates (server authoritative), so unlike the
// server's send path there is no Replication block here.
func (c *Client) sendData(now time.Time) {
	w := packetio.NewWriter(c.cfg.MTU)

	type placedCommand struct {
		pawn protocol.PawnKey
		tick uint16
	}
	var placed []placedCommand
	for _, pawn := range c.conn.Commands.PendingPawns() {
		cmd, tick, ok := c.conn.Commands.PeekNewest(pawn)
		if !ok {
			continue
		}
		naiaID, ok := c.conn.Manifest.IDOf(cmd)
		if !ok {
			continue
		}
		body := wire.NewWriter()
		if !c.conn.Commands.WriteCommandBlock(body, pawn, naiaID) {
			continue
		}
		if !w.TryWriteBlock(packetio.ManagerCommand, body.Bytes()) {
			break
		}
		placed = append(placed, placedCommand{pawn: pawn, tick: tick})
	}

	if w.Len() == 0 && !c.conn.Messages.HasPending() {
		return
	}

	h := c.conn.BuildHeader(header.PacketData, now)
	c.conn.Messages.WriteNext(h.PacketIndex, func(body []byte) bool {
		return w.TryWriteBlock(packetio.ManagerMessage, body)
	})

	if w.Len() == 0 {
		return
	}

	out := wire.NewWriter()
	h.WriteTo(out)
	out.WriteBytes(w.Bytes())
	if err := c.substrate.Send(c.conn.ServerAddr, out.Bytes()); err != nil {
		logging.Warn("data send failed", zap.Error(err))
		return
	}
	c.conn.RecordSent(now)

	for _, p := range placed {
		c.conn.Commands.MarkSent(h.PacketIndex, p.pawn, p.tick)
	}
}

func (c *Client) sendHeartbeat(now time.Time) {
	h := c.conn.BuildHeader(header.PacketHeartbeat, now)
	w := wire.NewWriter()
	h.WriteTo(w)
	if err := c.substrate.Send(c.conn.ServerAddr, w.Bytes()); err == nil {
		c.conn.RecordSent(now)
	}
}

func (c *Client) drainIncoming(now time.Time) {
	for {
		addr, payload, ok, err := c.substrate.Recv()
		if err != nil {
			logging.Warn("substrate recv error", zap.Error(err))
			return
		}
		if !ok {
			return
		}
		if addr != nil && addr.String() != c.conn.ServerAddr.String() {
			continue // ignore stray datagrams from anyone but the dialed server
		}
		c.handleDatagram(payload, now)
	}
}

func (c *Client) handleDatagram(payload []byte, now time.Time) {
	r := wire.NewReader(payload)
	h, err := header.ReadStandardHeader(r)
	if err != nil {
		return
	}

	switch h.Type {
	case header.PacketServerHandshake:
		c.handleHandshakeReply(h, r, now)
		return
	}

	if c.conn.Status != connection.StatusConnected {
		return
	}
	c.conn.OnHeaderReceived(h, now)

	switch h.Type {
	case header.PacketData:
		body, err := r.ReadBytes()
		if err != nil {
			return
		}
		if err := c.decodeDataBlocks(body); err != nil {
			logging.Warn("protocol violation, disconnecting", zap.Error(err))
			c.conn.Status = connection.StatusDisconnected
			c.events = append(c.events, Event{Type: EventDisconnected})
		}
	case header.PacketPong:
		payload, err := r.ReadBytes()
		if err == nil {
			c.conn.Ping.ProcessPong(payload, now)
		}
	}
}

// decodeDataBlocks unpacks the packetio sub-blocks one PacketData datagram
// carries and routes each to the manager it belongs to (spec §4.5).
func (c *Client) decodeDataBlocks(body []byte) error {
	blocks, err := packetio.ReadBlocks(body)
	if err != nil {
		return err
	}
	for _, b := range blocks {
		switch b.Manager {
		case packetio.ManagerReplicate:
			if err := c.conn.Incoming.DecodeBlock(wire.NewReader(b.Body)); err != nil {
				return err
			}
		case packetio.ManagerMessage:
			msg, err := c.conn.Messages.Decode(b.Body)
			if err != nil {
				return err
			}
			c.conn.Messages.OnReceive(msg)
		}
	}
	return nil
}

func (c *Client) handleHandshakeReply(h header.StandardHeader, r *wire.Reader, now time.Time) {
	switch c.conn.Handshake {
	case connection.HandshakeAwaitingChallenge:
		nonce, err := r.ReadBytes()
		if err != nil {
			return
		}
		c.conn.OnChallenge(nonce)
		// Reply to the challenge immediately rather than waiting for the
		// next retry tick. The reply is a bare header without the nonce.
		reply := c.conn.BuildHeader(header.PacketClientHandshake, now)
		w := wire.NewWriter()
		reply.WriteTo(w)
		if err := c.substrate.Send(c.conn.ServerAddr, w.Bytes()); err == nil {
			c.conn.RecordSent(now)
		}
	case connection.HandshakeAwaitingAccept:
		c.conn.OnAccept(now)
		c.conn.OnHeaderReceived(h, now)
		c.events = append(c.events, Event{Type: EventConnected})
	}
}
