// Command democlient connects to a demoserver instance and logs every
// replication event it observes.
package main

import (
	"flag"
	"time"

	"github.com/statewire-org/statewire/client"
	"github.com/statewire-org/statewire/internal/logging"
	"github.com/statewire-org/statewire/internal/transport"
	"github.com/statewire-org/statewire/pkg/connection"
	"github.com/statewire-org/statewire/pkg/protocol"
	"github.com/statewire-org/statewire/pkg/wire"
	"go.uber.org/zap"
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

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9700", "server UDP address")
	localAddr := flag.String("addr", ":0", "local UDP bind address")
	flag.Parse()

	sub, err := transport.NewUDPSubstrate(*localAddr, 1200, 5*time.Millisecond)
	if err != nil {
		logging.Error("failed to bind", zap.Error(err))
		return
	}
	defer sub.Close()

	target, err := transport.ResolveUDPTarget(*serverAddr)
	if err != nil {
		logging.Error("failed to resolve server address", zap.Error(err))
		return
	}

	builder := protocol.NewManifestBuilder()
	if _, err := builder.Register(newCounter); err != nil {
		logging.Error("manifest build failed", zap.Error(err))
		return
	}
	manifest := builder.Build()

	cfg := connection.DefaultConfig()
	cl := client.Dial(cfg, manifest, sub, target)

	ticker := time.NewTicker(cfg.TickDuration)
	defer ticker.Stop()

	for now := range ticker.C {
		for _, ev := range cl.Tick(now) {
			switch ev.Type {
			case client.EventConnected:
				logging.Info("connected to server")
			case client.EventDisconnected:
				logging.Info("disconnected from server")
			case client.EventReplication:
				logging.Info("replication event", zap.Uint8("type", uint8(ev.Replication.Type)))
			}
		}
	}
}
