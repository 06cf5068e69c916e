// Command demoserver runs a minimal statewire server: one room, open to
// whoever completes the handshake, where each connected user is sent its
// own replicated counter that increments every tick.
package main

import (
	"flag"
	"time"

	"github.com/statewire-org/statewire/internal/logging"
	"github.com/statewire-org/statewire/internal/transport"
	"github.com/statewire-org/statewire/pkg/connection"
	"github.com/statewire-org/statewire/pkg/protocol"
	"github.com/statewire-org/statewire/pkg/wire"
	"github.com/statewire-org/statewire/server"
	"go.uber.org/zap"
)

type seat struct {
	key protocol.LocalObjectKey
	obj *counter
}

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

func main() {
	addr := flag.String("addr", ":9700", "UDP listen address")
	flag.Parse()

	sub, err := transport.NewUDPSubstrate(*addr, 1200, 5*time.Millisecond)
	if err != nil {
		logging.Error("failed to bind", zap.Error(err))
		return
	}
	defer sub.Close()

	builder := protocol.NewManifestBuilder()
	if _, err := builder.Register(newCounter); err != nil {
		logging.Error("manifest build failed", zap.Error(err))
		return
	}
	manifest := builder.Build()

	cfg := connection.DefaultConfig()
	srv := server.New(cfg, manifest, sub, nil)
	room := srv.CreateRoom()
	roster := make(map[server.UserKey]*seat)

	logging.Info("demoserver listening", zap.String("addr", *addr), zap.String("room", string(room.Key)))

	ticker := time.NewTicker(cfg.TickDuration)
	defer ticker.Stop()

	for now := range ticker.C {
		disconnected := srv.Tick(now)
		for _, user := range disconnected {
			srv.LeaveRoom(room, user)
			delete(roster, user)
		}

		for user, conn := range srv.AllConnections() {
			s, known := roster[user]
			if !known {
				room.Join(user)
				obj := newCounter().(*counter)
				key, err := conn.Replication.SpawnObject(obj)
				if err != nil {
					logging.Warn("spawn rejected", zap.Error(err))
					continue
				}
				roster[user] = &seat{key: key, obj: obj}
				continue
			}
			s.obj.N.Set(s.obj.N.Get() + 1)
			conn.Replication.MarkDirty(s.key)
		}
	}
}
